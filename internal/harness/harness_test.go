package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaDir = "testdata/schema"

func intPtr(n int) *int { return &n }

// =============================================================================
// Scenario files
// =============================================================================

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/group_membership.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, first.Pass, first.Errors)
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, string(first.Snapshot), string(second.Snapshot))
}

// =============================================================================
// Step execution
// =============================================================================

func TestRun_TraceRecordsTargets(t *testing.T) {
	scenario := &Scenario{
		Name:        "trace",
		Description: "trace targets",
		Schema:      testSchemaDir,
		Seed: []SeedRow{
			{Class: "Group", Row: map[string]any{"id": "g", "name": "Friends"}},
		},
		Steps: []Step{
			{Op: OpGet, Class: "Group", Key: "g"},
			{Op: OpLoadView, Class: "Group", Key: "g", View: &ViewRef{Relation: "Membership", Side: "left"}},
			{Op: OpBegin},
		},
		Assertions: []Assertion{{Type: AssertDirtyCount, Count: intPtr(0)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceEvent{Seq: 1, Op: OpGet, Target: "Group(g)", Outcome: "ok"}, result.Trace[0])
	assert.Equal(t, "Group(g).Membership[left]", result.Trace[1].Target)
	assert.Equal(t, "tx-2", result.Trace[2].Target)
}

func TestRun_UnexpectedErrorStops(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing",
		Description: "get of a missing row",
		Schema:      testSchemaDir,
		Steps: []Step{
			{Op: OpGet, Class: "Group", Key: "nope"},
			{Op: OpCommit},
		},
		Assertions: []Assertion{{Type: AssertDirtyCount, Count: intPtr(0)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1, "execution stops at the failing step")
	assert.Equal(t, "error: OBJECT_NOT_FOUND", result.Trace[0].Outcome)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] get Group(nope)")
	assert.Nil(t, result.Snapshot)
}

func TestRun_ExpectedErrorNotRaised(t *testing.T) {
	scenario := &Scenario{
		Name:        "no_cycle",
		Description: "commit expected to fail succeeds",
		Schema:      testSchemaDir,
		Steps: []Step{
			{Op: OpCreate, Class: "Node", Key: "A"},
			{Op: OpCommit, ExpectError: "CYCLIC_REFERENCE"},
		},
		Assertions: []Assertion{{Type: AssertDirtyCount, Count: intPtr(0)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error CYCLIC_REFERENCE, got success")
}

func TestRun_ExpectedErrorByMessage(t *testing.T) {
	scenario := &Scenario{
		Name:        "immutable_key",
		Description: "primary keys cannot change",
		Schema:      testSchemaDir,
		Seed: []SeedRow{
			{Class: "Group", Row: map[string]any{"id": "g", "name": "Friends"}},
		},
		Steps: []Step{
			{Op: OpSet, Class: "Group", Key: "g", Fields: map[string]any{"id": "h"}, ExpectError: "primary key is immutable"},
		},
		Assertions: []Assertion{
			{Type: AssertFieldValues, Class: "Group", Key: "g", Expect: map[string]any{"id": "g"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Contains(t, result.Trace[0].Outcome, "primary key is immutable")
}

func TestRun_Rollback(t *testing.T) {
	scenario := &Scenario{
		Name:        "rollback",
		Description: "rollback discards pending changes",
		Schema:      testSchemaDir,
		Seed: []SeedRow{
			{Class: "Group", Row: map[string]any{"id": "g", "name": "Friends"}},
		},
		Steps: []Step{
			{Op: OpSet, Class: "Group", Key: "g", Fields: map[string]any{"name": "Enemies"}},
			{Op: OpCreate, Class: "Group", Key: "h"},
			{Op: OpRollback},
		},
		Assertions: []Assertion{
			{Type: AssertDirtyCount, Count: intPtr(0)},
			{Type: AssertObjectState, Class: "Group", Key: "h", State: "not registered"},
			{Type: AssertFieldValues, Class: "Group", Key: "g", Expect: map[string]any{"name": "Friends"}},
			{Type: AssertStoredRows, Class: "Group", Count: intPtr(1)},
			{Type: AssertOps, DataSource: "main", Ops: []string{}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_SharedCache(t *testing.T) {
	scenario := &Scenario{
		Name:        "cache",
		Description: "committed cacheable objects are served to the next transaction",
		Schema:      testSchemaDir,
		Cache:       true,
		Steps: []Step{
			{Op: OpCreate, Class: "Group", Key: "g", Fields: map[string]any{"name": "Friends"}},
			{Op: OpCommit},
			{Op: OpBegin},
			{Op: OpGet, Class: "Group", Key: "g"},
		},
		Assertions: []Assertion{
			{Type: AssertObjectState, Class: "Group", Key: "g", State: "clean"},
			{Type: AssertFieldValues, Class: "Group", Key: "g", Expect: map[string]any{"name": "Friends"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

// =============================================================================
// Setup failures
// =============================================================================

func TestRun_InvalidSchema(t *testing.T) {
	scenario := &Scenario{
		Name:       "bad_schema",
		Schema:     t.TempDir(),
		Steps:      []Step{{Op: OpCommit}},
		Assertions: []Assertion{{Type: AssertDirtyCount, Count: intPtr(0)}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}

func TestRun_UnknownSeedClass(t *testing.T) {
	scenario := &Scenario{
		Name:       "bad_seed",
		Schema:     testSchemaDir,
		Seed:       []SeedRow{{Class: "Ghost", Row: map[string]any{"id": "x"}}},
		Steps:      []Step{{Op: OpCommit}},
		Assertions: []Assertion{{Type: AssertDirtyCount, Count: intPtr(0)}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown class "Ghost"`)
}
