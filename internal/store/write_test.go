package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stead/internal/ir"
)

func groupRow(id string, active bool) ir.IRObject {
	return ir.IRObject{"id": ir.IRString(id), "active": ir.IRBool(active)}
}

func TestInsert_Basic(t *testing.T) {
	s := createTestStore(t)

	inUnit(t, s, func(ctx context.Context) {
		if err := s.Insert(ctx, mustClass(t, s, "Group"), groupRow("g", true)); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	})

	var id string
	var active int64
	err := s.db.QueryRow(`SELECT "id", "active" FROM "group"`).Scan(&id, &active)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if id != "g" || active != 1 {
		t.Errorf("row = (%q, %d), want (\"g\", 1)", id, active)
	}
}

func TestInsert_DuplicateKeyFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	group := mustClass(t, s, "Group")

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Insert(ctx, group, groupRow("g", true)))
	err := s.Insert(ctx, group, groupRow("g", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")
	require.NoError(t, s.Rollback(ctx))
}

func TestInsert_NotNullEnforced(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	defer s.Rollback(ctx)
	err := s.Insert(ctx, mustClass(t, s, "Contact"), ir.IRObject{"id": ir.IRString("C1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT NULL")
}

func TestWrite_OutsideUnitFails(t *testing.T) {
	s := createTestStore(t)
	err := s.Insert(context.Background(), mustClass(t, s, "Group"), groupRow("g", true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside unit of work")
}

func TestUnitOfWork_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.ErrorContains(t, s.Commit(ctx), "without open unit")
	assert.NoError(t, s.Rollback(ctx), "rollback without unit is a no-op")

	require.NoError(t, s.Open(ctx))
	assert.ErrorContains(t, s.Open(ctx), "already open")
	require.NoError(t, s.Rollback(ctx))
}

func TestUpdate(t *testing.T) {
	s := createTestStore(t)
	contact := mustClass(t, s, "Contact")

	inUnit(t, s, func(ctx context.Context) {
		require.NoError(t, s.Insert(ctx, contact, contactRow("C1", "Ann", ir.IRNull{})))
	})
	inUnit(t, s, func(ctx context.Context) {
		row := contactRow("C1", "Anne", ir.IRNull{})
		row["age"] = ir.IRInt(41)
		require.NoError(t, s.Update(ctx, contact, row))

		err := s.Update(ctx, contact, contactRow("C9", "Nobody", ir.IRNull{}))
		assert.ErrorContains(t, err, "no such row")
	})

	rows, err := s.LoadObjectList(context.Background(), selectAll("Contact"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRString("Anne"), rows[0]["name"])
	assert.Equal(t, ir.IRInt(41), rows[0]["age"])
}

func TestRollback_DiscardsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Insert(ctx, mustClass(t, s, "Group"), groupRow("g", true)))
	require.NoError(t, s.Rollback(ctx))

	rows, err := s.LoadObjectList(ctx, selectAll("Group"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTuples(t *testing.T) {
	s := createTestStore(t)
	rel := mustRelation(t, s, "Membership")

	inUnit(t, s, func(ctx context.Context) {
		require.NoError(t, s.Insert(ctx, mustClass(t, s, "Group"), groupRow("g", true)))
		for _, id := range []string{"C1", "C2"} {
			require.NoError(t, s.Insert(ctx, mustClass(t, s, "Contact"), contactRow(id, id, ir.IRNull{})))
			require.NoError(t, s.InsertTuple(ctx, rel, ir.IRString("g"), ir.IRString(id)))
		}
		// Re-inserting an existing pair is ignored.
		require.NoError(t, s.InsertTuple(ctx, rel, ir.IRString("g"), ir.IRString("C1")))
	})

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM "membership"`).Scan(&count))
	assert.Equal(t, 2, count)

	inUnit(t, s, func(ctx context.Context) {
		require.NoError(t, s.DeleteTuple(ctx, rel, ir.IRString("g"), ir.IRString("C1")))
		require.NoError(t, s.DeleteTuple(ctx, rel, ir.IRString("g"), ir.IRString("C404")))
	})

	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM "membership"`).Scan(&count))
	assert.Equal(t, 1, count)
}
