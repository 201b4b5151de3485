package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/stead/internal/ir"
)

func testSchema() *ir.Schema {
	return &ir.Schema{
		Classes: []ir.ClassInfo{
			{Name: "Group", Table: "group", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{
					{Name: "id", Type: ir.TypeString},
					{Name: "active", Type: ir.TypeBool},
				}},
			{Name: "Contact", Table: "contact", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{
					{Name: "id", Type: ir.TypeString},
					{Name: "name", Type: ir.TypeString},
					{Name: "age", Type: ir.TypeInt, Nullable: true},
					{Name: "group", Type: ir.TypeString, Nullable: true, References: "Group"},
				}},
			{Name: "Audit", Table: "audit", DataSource: "archive", PrimaryKey: "id",
				Fields: []ir.FieldInfo{{Name: "id", Type: ir.TypeInt}}},
		},
		Relations: []ir.RelationInfo{
			{Name: "Membership", Table: "membership", DataSource: "main",
				Left:  ir.RelationSide{Class: "Group", Column: "group_id"},
				Right: ir.RelationSide{Class: "Contact", Column: "contact_id"}},
		},
	}
}

// createTestStore creates a store with its class tables in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open("main", path, testSchema())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	return s
}

func mustClass(t *testing.T, s *Store, name string) *ir.ClassInfo {
	t.Helper()
	c, ok := s.schema.Class(name)
	if !ok {
		t.Fatalf("class %s not in schema", name)
	}
	return c
}

func mustRelation(t *testing.T, s *Store, name string) *ir.RelationInfo {
	t.Helper()
	r, ok := s.schema.Relation(name)
	if !ok {
		t.Fatalf("relation %s not in schema", name)
	}
	return r
}

// inUnit runs fn inside a committed unit of work.
func inUnit(t *testing.T, s *Store, fn func(ctx context.Context)) {
	t.Helper()
	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open unit failed: %v", err)
	}
	fn(ctx)
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func contactRow(id, name string, group ir.IRValue) ir.IRObject {
	return ir.IRObject{
		"id":    ir.IRString(id),
		"name":  ir.IRString(name),
		"age":   ir.IRNull{},
		"group": group,
	}
}
