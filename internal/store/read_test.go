package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
)

func selectAll(class string) queryir.Select {
	return queryir.Select{From: class}
}

func seedContacts(t *testing.T, s *Store) {
	t.Helper()
	inUnit(t, s, func(ctx context.Context) {
		require.NoError(t, s.Insert(ctx, mustClass(t, s, "Group"), groupRow("g", true)))
		require.NoError(t, s.Insert(ctx, mustClass(t, s, "Group"), groupRow("h", false)))
		// Insert out of key order to prove ORDER BY.
		require.NoError(t, s.Insert(ctx, mustClass(t, s, "Contact"), contactRow("C3", "Cid", ir.IRString("g"))))
		require.NoError(t, s.Insert(ctx, mustClass(t, s, "Contact"), contactRow("C1", "Ann", ir.IRString("g"))))
		require.NoError(t, s.Insert(ctx, mustClass(t, s, "Contact"), contactRow("C2", "Bob", ir.IRString("h"))))
		require.NoError(t, s.Insert(ctx, mustClass(t, s, "Contact"), contactRow("C4", "Dee", ir.IRNull{})))
	})
}

func ids(rows []ir.IRObject) []string {
	out := []string{}
	for _, r := range rows {
		out = append(out, string(r["id"].(ir.IRString)))
	}
	return out
}

func TestLoadObjectList_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.LoadObjectList(context.Background(), selectAll("Contact"))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestLoadObjectList_DeterministicOrder(t *testing.T) {
	s := createTestStore(t)
	seedContacts(t, s)

	rows, err := s.LoadObjectList(context.Background(), selectAll("Contact"))
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2", "C3", "C4"}, ids(rows))
}

func TestLoadObjectList_TypesRoundTrip(t *testing.T) {
	s := createTestStore(t)
	seedContacts(t, s)

	groups, err := s.LoadObjectList(context.Background(), selectAll("Group"))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, ir.IRObject{"id": ir.IRString("g"), "active": ir.IRBool(true)}, groups[0])
	assert.Equal(t, ir.IRBool(false), groups[1]["active"])

	contacts, err := s.LoadObjectList(context.Background(), queryir.Select{
		From:   "Contact",
		Filter: &queryir.IsNull{Field: "group"},
	})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, ir.IRNull{}, contacts[0]["group"])
	assert.Equal(t, ir.IRNull{}, contacts[0]["age"])
}

func TestLoadObjectList_FilterOrderLimit(t *testing.T) {
	s := createTestStore(t)
	seedContacts(t, s)
	ctx := context.Background()

	rows, err := s.LoadObjectList(ctx, queryir.Select{
		From:   "Contact",
		Filter: queryir.Eq("group", ir.IRString("g")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C3"}, ids(rows))

	rows, err = s.LoadObjectList(ctx, queryir.Select{
		From:    "Contact",
		OrderBy: []queryir.Order{{Field: "name", Desc: true}},
		Limit:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C4", "C3"}, ids(rows))
}

func TestLoadObjectList_SeesOpenUnit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Insert(ctx, mustClass(t, s, "Group"), groupRow("g", true)))

	rows, err := s.LoadObjectList(ctx, selectAll("Group"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	require.NoError(t, s.Rollback(ctx))
}

func TestLoadRefObjectList(t *testing.T) {
	s := createTestStore(t)
	seedContacts(t, s)
	rel := mustRelation(t, s, "Membership")

	inUnit(t, s, func(ctx context.Context) {
		require.NoError(t, s.InsertTuple(ctx, rel, ir.IRString("g"), ir.IRString("C3")))
		require.NoError(t, s.InsertTuple(ctx, rel, ir.IRString("g"), ir.IRString("C1")))
		require.NoError(t, s.InsertTuple(ctx, rel, ir.IRString("h"), ir.IRString("C1")))
	})

	ctx := context.Background()
	members, err := s.LoadRefObjectList(ctx, queryir.Related{
		Relation: "Membership", MasterSide: queryir.SideLeft, MasterKey: ir.IRString("g"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C3"}, ids(members))

	groups, err := s.LoadRefObjectList(ctx, queryir.Related{
		Relation: "Membership", MasterSide: queryir.SideRight, MasterKey: ir.IRString("C1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "h"}, ids(groups))
}

func TestLoad_UnknownClass(t *testing.T) {
	s := createTestStore(t)
	_, err := s.LoadObjectList(context.Background(), selectAll("Nope"))
	assert.ErrorContains(t, err, "unknown class")
}
