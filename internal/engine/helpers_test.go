package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/source"
)

// testSchema:
//
//	Group(id, name?)               main, cacheable
//	Contact(id, name, group?)      main, group -> Group
//	Node(id, peer?)                main, peer -> Node
//	Party(id, name?) <- Person(email?)
//	Counter(id int)                main
//	Audit(id, note?)               archive
//	Membership: Group.group_id <-> Contact.contact_id
func testSchema() *ir.Schema {
	str := func(name string, nullable bool) ir.FieldInfo {
		return ir.FieldInfo{Name: name, Type: ir.TypeString, Nullable: nullable}
	}
	ref := func(name, target string) ir.FieldInfo {
		return ir.FieldInfo{Name: name, Type: ir.TypeString, Nullable: true, References: target}
	}
	return &ir.Schema{
		Classes: []ir.ClassInfo{
			{Name: "Group", Table: "group", DataSource: "main", PrimaryKey: "id", Cacheable: true,
				Fields: []ir.FieldInfo{str("id", false), str("name", true)}},
			{Name: "Contact", Table: "contact", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{str("id", false), str("name", false), ref("group", "Group")}},
			{Name: "Node", Table: "node", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{str("id", false), ref("peer", "Node")}},
			{Name: "Party", Table: "party", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{str("id", false), str("name", true)}},
			{Name: "Person", Table: "person", DataSource: "main", PrimaryKey: "id", Parent: "Party",
				Fields: []ir.FieldInfo{str("id", false), str("name", true), str("email", true)}},
			{Name: "Counter", Table: "counter", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{{Name: "id", Type: ir.TypeInt}}},
			{Name: "Audit", Table: "audit", DataSource: "archive", PrimaryKey: "id",
				Fields: []ir.FieldInfo{str("id", false), str("note", true)}},
		},
		Relations: []ir.RelationInfo{
			{Name: "Membership", Table: "membership", DataSource: "main",
				Left:  ir.RelationSide{Class: "Group", Column: "group_id"},
				Right: ir.RelationSide{Class: "Contact", Column: "contact_id"}},
		},
	}
}

type testEnv struct {
	schema   *ir.Schema
	registry *Registry
	main     *source.Memory
	archive  *source.Memory
}

func newTestEnv() *testEnv {
	schema := testSchema()
	return &testEnv{
		schema:   schema,
		registry: NewRegistry(schema),
		main:     source.NewMemory("main", schema),
		archive:  source.NewMemory("archive", schema),
	}
}

func (e *testEnv) newTx(opts ...Option) *Transaction {
	base := []Option{
		WithDataSource(e.main),
		WithDataSource(e.archive),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(NewFixedGenerator("tx-1", "tx-2", "tx-3")),
	}
	return New(e.registry, append(base, opts...)...)
}

func (e *testEnv) class(t *testing.T, name string) *ir.ClassInfo {
	t.Helper()
	c, ok := e.schema.Class(name)
	require.True(t, ok, "class %s", name)
	return c
}

func (e *testEnv) relation(t *testing.T, name string) *ir.RelationInfo {
	t.Helper()
	r, ok := e.schema.Relation(name)
	require.True(t, ok, "relation %s", name)
	return r
}

// seedGroup stores group g with contacts C1..C3 linked both by foreign key
// and through Membership.
func (e *testEnv) seedGroup(t *testing.T) {
	t.Helper()
	e.main.Seed(e.class(t, "Group"), ir.IRObject{"id": ir.IRString("g"), "name": ir.IRString("Friends")})
	rel := e.relation(t, "Membership")
	for _, id := range []string{"C1", "C2", "C3"} {
		e.main.Seed(e.class(t, "Contact"), contactRow(id, "name-"+id, ir.IRString("g")))
		e.main.SeedTuple(rel, ir.IRString("g"), ir.IRString(id))
	}
}

func contactRow(id, name string, group ir.IRValue) ir.IRObject {
	return ir.IRObject{"id": ir.IRString(id), "name": ir.IRString(name), "group": group}
}

func mustCreate(t *testing.T, tx *Transaction, class, key string, fields ir.IRObject) *Object {
	t.Helper()
	obj, err := tx.CreateNew(class, ir.IRString(key))
	require.NoError(t, err)
	for _, name := range fields.SortedKeys() {
		require.NoError(t, obj.Set(name, fields[name]))
	}
	return obj
}

func mustGet(t *testing.T, tx *Transaction, class, key string) *Object {
	t.Helper()
	obj, err := tx.Get(context.Background(), class, ir.IRString(key))
	require.NoError(t, err)
	return obj
}
