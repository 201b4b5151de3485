package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/stead/internal/ir"
)

// Insert compiles an INSERT of every field of class from row.
// Absent fields are written as NULL.
func (c *SQLCompiler) Insert(class *ir.ClassInfo, row ir.IRObject) (string, []any, error) {
	cols := make([]string, len(class.Fields))
	marks := make([]string, len(class.Fields))
	params := make([]any, len(class.Fields))
	for i, f := range class.Fields {
		p, err := irValueToParam(row[f.Name])
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		cols[i] = quoteIdent(f.Name)
		marks[i] = "?"
		params[i] = p
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(class.Table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return sql, params, nil
}

// Update compiles an UPDATE of every non-key field, matched on the primary key.
func (c *SQLCompiler) Update(class *ir.ClassInfo, row ir.IRObject) (string, []any, error) {
	sets := []string{}
	params := []any{}
	for _, f := range class.Fields {
		if f.Name == class.PrimaryKey {
			continue
		}
		p, err := irValueToParam(row[f.Name])
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		sets = append(sets, quoteIdent(f.Name)+" = ?")
		params = append(params, p)
	}
	key, err := irValueToParam(row[class.PrimaryKey])
	if err != nil {
		return "", nil, fmt.Errorf("primary key: %w", err)
	}
	if key == nil {
		return "", nil, fmt.Errorf("update %s: primary key is null", class.Name)
	}
	if len(sets) == 0 {
		// Key-only class: nothing to update, touch the row so RowsAffected is meaningful.
		sets = append(sets, quoteIdent(class.PrimaryKey)+" = "+quoteIdent(class.PrimaryKey))
	}
	params = append(params, key)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(class.Table), strings.Join(sets, ", "), quoteIdent(class.PrimaryKey))
	return sql, params, nil
}

// InsertTuple compiles an idempotent link-table insert.
func (c *SQLCompiler) InsertTuple(rel *ir.RelationInfo, left, right ir.IRValue) (string, []any, error) {
	params, err := tupleParams(left, right)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)",
		quoteIdent(rel.Table), quoteIdent(rel.Left.Column), quoteIdent(rel.Right.Column))
	return sql, params, nil
}

// DeleteTuple compiles a link-table delete of one pair.
func (c *SQLCompiler) DeleteTuple(rel *ir.RelationInfo, left, right ir.IRValue) (string, []any, error) {
	params, err := tupleParams(left, right)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
		quoteIdent(rel.Table), quoteIdent(rel.Left.Column), quoteIdent(rel.Right.Column))
	return sql, params, nil
}

func tupleParams(left, right ir.IRValue) ([]any, error) {
	l, err := irValueToParam(left)
	if err != nil {
		return nil, fmt.Errorf("left key: %w", err)
	}
	r, err := irValueToParam(right)
	if err != nil {
		return nil, fmt.Errorf("right key: %w", err)
	}
	if l == nil || r == nil {
		return nil, fmt.Errorf("tuple keys must not be null")
	}
	return []any{l, r}, nil
}

// CreateTable compiles the DDL for a class table.
func (c *SQLCompiler) CreateTable(class *ir.ClassInfo) string {
	cols := make([]string, len(class.Fields))
	for i, f := range class.Fields {
		col := quoteIdent(f.Name) + " " + columnType(f.Type)
		switch {
		case f.Name == class.PrimaryKey:
			col += " PRIMARY KEY NOT NULL"
		case !f.Nullable:
			col += " NOT NULL"
		}
		cols[i] = col
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		quoteIdent(class.Table), strings.Join(cols, ",\n    "))
}

// CreateLinkTable compiles the DDL for a relation's link table.
func (c *SQLCompiler) CreateLinkTable(rel *ir.RelationInfo) (string, error) {
	left, err := c.class(rel.Left.Class)
	if err != nil {
		return "", fmt.Errorf("relation %s left: %w", rel.Name, err)
	}
	right, err := c.class(rel.Right.Class)
	if err != nil {
		return "", fmt.Errorf("relation %s right: %w", rel.Name, err)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s %s NOT NULL,\n    %s %s NOT NULL,\n    PRIMARY KEY (%s, %s)\n)",
		quoteIdent(rel.Table),
		quoteIdent(rel.Left.Column), columnType(left.KeyField().Type),
		quoteIdent(rel.Right.Column), columnType(right.KeyField().Type),
		quoteIdent(rel.Left.Column), quoteIdent(rel.Right.Column)), nil
}

// columnType maps a scalar field type to its SQLite storage class.
// Booleans are stored as 0/1 integers.
func columnType(t string) string {
	switch t {
	case ir.TypeInt, ir.TypeBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}
