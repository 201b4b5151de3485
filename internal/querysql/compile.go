package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
)

// SQLCompiler compiles QueryIR and object writes to parameterized SQL for SQLite.
//
// CRITICAL: ALL selects include ORDER BY with the primary key as final tiebreaker.
// CRITICAL: All values are parameterized (never interpolated).
// Identifiers are always double-quoted so field names like "group" are legal.
type SQLCompiler struct {
	schema *ir.Schema
}

// NewSQLCompiler creates a compiler bound to schema metadata.
func NewSQLCompiler(schema *ir.Schema) *SQLCompiler {
	return &SQLCompiler{schema: schema}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple. The selected columns are always the
// full field list of the result class, in declaration order.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Related:
		return c.compileRelated(query)
	case *queryir.Related:
		return c.compileRelated(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// ResultClass returns the class whose rows a query produces.
func (c *SQLCompiler) ResultClass(q queryir.Query) (*ir.ClassInfo, error) {
	switch query := q.(type) {
	case queryir.Select:
		return c.class(query.From)
	case *queryir.Select:
		return c.class(query.From)
	case queryir.Related:
		_, far, err := c.relationSides(query)
		if err != nil {
			return nil, err
		}
		return c.class(far.Class)
	case *queryir.Related:
		_, far, err := c.relationSides(*query)
		if err != nil {
			return nil, err
		}
		return c.class(far.Class)
	default:
		return nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) class(name string) (*ir.ClassInfo, error) {
	class, ok := c.schema.Class(name)
	if !ok {
		return nil, fmt.Errorf("unknown class %q", name)
	}
	return class, nil
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	class, err := c.class(q.From)
	if err != nil {
		return "", nil, err
	}

	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter, "")
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	orderTerms := make([]string, 0, len(q.OrderBy)+1)
	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		orderTerms = append(orderTerms, fmt.Sprintf("%s %s", quoteIdent(o.Field), dir))
	}
	orderTerms = append(orderTerms, stableOrderKey(class, ""))

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		columnList(class, ""),
		quoteIdent(class.Table),
		whereClause,
		strings.Join(orderTerms, ", "))

	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, int64(q.Limit))
	}
	return sql, params, nil
}

// compileRelated joins the far class table with the link table.
func (c *SQLCompiler) compileRelated(q queryir.Related) (string, []any, error) {
	rel, ok := c.schema.Relation(q.Relation)
	if !ok {
		return "", nil, fmt.Errorf("unknown relation %q", q.Relation)
	}
	master, far, err := c.relationSides(q)
	if err != nil {
		return "", nil, err
	}
	farClass, err := c.class(far.Class)
	if err != nil {
		return "", nil, err
	}
	key, err := irValueToParam(q.MasterKey)
	if err != nil {
		return "", nil, fmt.Errorf("convert master key: %w", err)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s t INNER JOIN %s l ON l.%s = t.%s WHERE l.%s = ? ORDER BY %s",
		columnList(farClass, "t"),
		quoteIdent(farClass.Table),
		quoteIdent(rel.Table),
		quoteIdent(far.Column),
		quoteIdent(farClass.PrimaryKey),
		quoteIdent(master.Column),
		stableOrderKey(farClass, "t"))

	return sql, []any{key}, nil
}

func (c *SQLCompiler) relationSides(q queryir.Related) (master, far ir.RelationSide, err error) {
	rel, ok := c.schema.Relation(q.Relation)
	if !ok {
		return master, far, fmt.Errorf("unknown relation %q", q.Relation)
	}
	switch q.MasterSide {
	case queryir.SideLeft:
		return rel.Left, rel.Right, nil
	case queryir.SideRight:
		return rel.Right, rel.Left, nil
	default:
		return master, far, fmt.Errorf("invalid master side %q", q.MasterSide)
	}
}

// stableOrderKey returns the primary-key tiebreaker.
// COLLATE BINARY ensures deterministic text ordering across SQLite versions.
func stableOrderKey(class *ir.ClassInfo, alias string) string {
	col := quoteIdent(class.PrimaryKey)
	if alias != "" {
		col = alias + "." + col
	}
	if class.KeyField().Type == ir.TypeString {
		return col + " ASC COLLATE BINARY"
	}
	return col + " ASC"
}

func columnList(class *ir.ClassInfo, alias string) string {
	cols := make([]string, len(class.Fields))
	for i, f := range class.Fields {
		cols[i] = quoteIdent(f.Name)
		if alias != "" {
			cols[i] = alias + "." + cols[i]
		}
	}
	return strings.Join(cols, ", ")
}

// compilePredicate compiles a queryir.Predicate to SQL WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate, alias string) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compareSQL(pred.Field, "=", pred.Value, alias)
	case *queryir.Equals:
		return compareSQL(pred.Field, "=", pred.Value, alias)
	case queryir.NotEquals:
		return compareSQL(pred.Field, "<>", pred.Value, alias)
	case *queryir.NotEquals:
		return compareSQL(pred.Field, "<>", pred.Value, alias)
	case queryir.IsNull:
		return qualified(pred.Field, alias) + " IS NULL", nil, nil
	case *queryir.IsNull:
		return qualified(pred.Field, alias) + " IS NULL", nil, nil
	case queryir.And:
		return c.compileGroup(pred.Predicates, " AND ", "1 = 1", alias)
	case *queryir.And:
		return c.compileGroup(pred.Predicates, " AND ", "1 = 1", alias)
	case queryir.Or:
		return c.compileGroup(pred.Predicates, " OR ", "1 = 0", alias)
	case *queryir.Or:
		return c.compileGroup(pred.Predicates, " OR ", "1 = 0", alias)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compareSQL compiles a binary comparison. A NULL literal compiles to a
// comparison that SQLite evaluates as NULL, which never matches; this keeps
// SQL and in-memory evaluation in agreement.
func compareSQL(field, op string, value ir.IRValue, alias string) (string, []any, error) {
	param, err := irValueToParam(value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return fmt.Sprintf("%s %s ?", qualified(field, alias), op), []any{param}, nil
}

func (c *SQLCompiler) compileGroup(preds []queryir.Predicate, sep, empty, alias string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(preds))
	var allParams []any
	for _, pred := range preds {
		sql, params, err := c.compilePredicate(pred, alias)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		allParams = append(allParams, params...)
	}

	if len(parts) == 1 {
		return parts[0], allParams, nil
	}
	return "(" + strings.Join(parts, sep) + ")", allParams, nil
}

func qualified(field, alias string) string {
	if alias == "" {
		return quoteIdent(field)
	}
	return alias + "." + quoteIdent(field)
}

// quoteIdent quotes an SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
// Supports string, int, bool and null. Arrays and objects are not valid columns.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}

// ParamFor converts a value for use as a statement parameter.
func ParamFor(v ir.IRValue) (any, error) {
	return irValueToParam(v)
}
