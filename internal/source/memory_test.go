package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
)

func memSchema() *ir.Schema {
	return &ir.Schema{
		Classes: []ir.ClassInfo{
			{Name: "Group", Table: "group", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{{Name: "id", Type: ir.TypeString}}},
			{Name: "Contact", Table: "contact", DataSource: "main", PrimaryKey: "id",
				Fields: []ir.FieldInfo{
					{Name: "id", Type: ir.TypeString},
					{Name: "name", Type: ir.TypeString},
					{Name: "group", Type: ir.TypeString, Nullable: true, References: "Group"},
				}},
		},
		Relations: []ir.RelationInfo{
			{Name: "Membership", Table: "membership", DataSource: "main",
				Left:  ir.RelationSide{Class: "Group", Column: "group_id"},
				Right: ir.RelationSide{Class: "Contact", Column: "contact_id"}},
		},
	}
}

func contact(id, name string) ir.IRObject {
	return ir.IRObject{"id": ir.IRString(id), "name": ir.IRString(name), "group": ir.IRNull{}}
}

func TestMemory_UnitOfWork(t *testing.T) {
	ctx := context.Background()
	s := memSchema()
	contactClass, _ := s.Class("Contact")
	m := NewMemory("main", s)

	require.NoError(t, m.Open(ctx))
	require.NoError(t, m.Insert(ctx, contactClass, contact("C1", "Ann")))

	// Read-your-writes inside the unit.
	rows, err := m.LoadObjectList(ctx, queryir.Select{From: "Contact"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Empty(t, m.Rows("Contact"), "not visible to committed view before commit")

	require.NoError(t, m.Commit(ctx))
	assert.Len(t, m.Rows("Contact"), 1)

	require.NoError(t, m.Open(ctx))
	require.NoError(t, m.Insert(ctx, contactClass, contact("C2", "Bob")))
	require.NoError(t, m.Rollback(ctx))
	assert.Len(t, m.Rows("Contact"), 1)

	assert.Equal(t, []string{
		"open",
		`insert Contact "C1"`,
		"commit",
		"open",
		`insert Contact "C2"`,
		"rollback",
	}, m.Ops())
}

func TestMemory_WriteErrors(t *testing.T) {
	ctx := context.Background()
	s := memSchema()
	contactClass, _ := s.Class("Contact")
	m := NewMemory("main", s)

	err := m.Insert(ctx, contactClass, contact("C1", "Ann"))
	assert.ErrorContains(t, err, "outside unit of work")

	require.NoError(t, m.Open(ctx))
	assert.ErrorContains(t, m.Open(ctx), "already open")

	require.NoError(t, m.Insert(ctx, contactClass, contact("C1", "Ann")))
	assert.ErrorContains(t, m.Insert(ctx, contactClass, contact("C1", "Ann")), "UNIQUE")
	assert.ErrorContains(t, m.Insert(ctx, contactClass, ir.IRObject{"id": ir.IRString("C9")}), "NOT NULL")
	assert.ErrorContains(t, m.Update(ctx, contactClass, contact("C5", "x")), "no such row")
	assert.ErrorContains(t, m.Insert(ctx, contactClass, ir.IRObject{"name": ir.IRString("x")}), "primary key is null")
}

func TestMemory_LoadFiltered(t *testing.T) {
	ctx := context.Background()
	s := memSchema()
	contactClass, _ := s.Class("Contact")
	m := NewMemory("main", s)

	c1 := contact("C1", "Ann")
	c1["group"] = ir.IRString("g")
	c2 := contact("C2", "Bob")
	c2["group"] = ir.IRString("g")
	m.Seed(contactClass, contact("C3", "Cid"), c2, c1)

	rows, err := m.LoadObjectList(ctx, queryir.Select{
		From:   "Contact",
		Filter: queryir.Eq("group", ir.IRString("g")),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ir.IRString("C1"), rows[0]["id"])
	assert.Equal(t, ir.IRString("C2"), rows[1]["id"])

	_, err = m.LoadObjectList(ctx, queryir.Select{From: "Nope"})
	assert.Error(t, err)
}

func TestMemory_Tuples(t *testing.T) {
	ctx := context.Background()
	s := memSchema()
	groupClass, _ := s.Class("Group")
	contactClass, _ := s.Class("Contact")
	rel, _ := s.Relation("Membership")
	m := NewMemory("main", s)

	m.Seed(groupClass, ir.IRObject{"id": ir.IRString("g")})
	m.Seed(contactClass, contact("C1", "a"), contact("C2", "b"))
	m.SeedTuple(rel, ir.IRString("g"), ir.IRString("C2"))

	require.NoError(t, m.Open(ctx))
	require.NoError(t, m.InsertTuple(ctx, rel, ir.IRString("g"), ir.IRString("C1")))
	require.NoError(t, m.InsertTuple(ctx, rel, ir.IRString("g"), ir.IRString("C1")))
	require.NoError(t, m.DeleteTuple(ctx, rel, ir.IRString("g"), ir.IRString("C2")))
	require.NoError(t, m.Commit(ctx))

	rows, err := m.LoadRefObjectList(ctx, queryir.Related{
		Relation: "Membership", MasterSide: queryir.SideLeft, MasterKey: ir.IRString("g"),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRString("C1"), rows[0]["id"])
	assert.Equal(t, 1, m.TupleCount("Membership"))

	groups, err := m.LoadRefObjectList(ctx, queryir.Related{
		Relation: "Membership", MasterSide: queryir.SideRight, MasterKey: ir.IRString("C1"),
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, ir.IRString("g"), groups[0]["id"])
}

func TestRegistry(t *testing.T) {
	m := NewMemory("main", memSchema())
	r := Registry{"main": m}

	ds, err := r.Get("main")
	require.NoError(t, err)
	assert.Equal(t, "main", ds.Name())

	_, err = r.Get("other")
	var unknown *UnknownDataSourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "other", unknown.Name)
}
