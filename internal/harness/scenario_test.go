package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content next to an empty schema directory and
// returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schema"), 0755))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validHeader = `
name: example
description: "example scenario"
schema: schema
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, validHeader+`
seed:
  - class: Group
    row: {id: g, name: Friends}
  - {relation: Membership, left: g, right: C1}
steps:
  - op: get
    class: Group
    key: g
  - op: add_member
    class: Group
    key: g
    view: {relation: Membership, side: left}
    member: C1
  - op: commit
    expect_error: CYCLIC_REFERENCE
assertions:
  - type: tuple_count
    relation: Membership
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "example", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "schema"), scenario.Schema)
	require.Len(t, scenario.Seed, 2)
	assert.Equal(t, "Friends", scenario.Seed[0].Row["name"])
	assert.Equal(t, "Membership", scenario.Seed[1].Relation)
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, &ViewRef{Relation: "Membership", Side: "left"}, scenario.Steps[1].View)
	assert.Equal(t, "C1", scenario.Steps[1].Member)
	assert.Equal(t, "CYCLIC_REFERENCE", scenario.Steps[2].ExpectError)
	require.Len(t, scenario.Assertions, 1)
	require.NotNil(t, scenario.Assertions[0].Count)
	assert.Equal(t, 1, *scenario.Assertions[0].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, validHeader+`
stpes: []
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingSchemaDir(t *testing.T) {
	path := writeScenario(t, `
name: example
description: "example scenario"
schema: elsewhere
steps: [{op: commit}]
assertions: [{type: dirty_count, count: 0}]
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema directory not found")
}

// =============================================================================
// Validation
// =============================================================================

func TestLoadScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: `
description: "x"
schema: schema
steps: [{op: commit}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: "name is required",
		},
		{
			name: "no steps",
			body: validHeader + `
assertions: [{type: dirty_count, count: 0}]
`,
			want: "steps list is required",
		},
		{
			name: "no assertions",
			body: validHeader + `
steps: [{op: commit}]
`,
			want: "assertions list is required",
		},
		{
			name: "seed class and relation",
			body: validHeader + `
seed: [{class: Group, relation: Membership, row: {id: g}}]
steps: [{op: commit}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: "seed[0]: class and relation are exclusive",
		},
		{
			name: "seed tuple without right",
			body: validHeader + `
seed: [{relation: Membership, left: g}]
steps: [{op: commit}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: "seed[0]: left and right are required",
		},
		{
			name: "unknown op",
			body: validHeader + `
steps: [{op: explode}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: `steps[0]: unknown op "explode"`,
		},
		{
			name: "get without key",
			body: validHeader + `
steps: [{op: get, class: Group}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: "steps[0]: get requires class and key",
		},
		{
			name: "add member without view",
			body: validHeader + `
steps: [{op: add_member, class: Group, key: g, member: C1}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: "steps[0]: view is required",
		},
		{
			name: "relation view without side",
			body: validHeader + `
steps: [{op: load_view, class: Group, key: g, view: {relation: Membership}}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: "steps[0].view: side is required",
		},
		{
			name: "remove member without member",
			body: validHeader + `
steps: [{op: remove_member, class: Group, key: g, view: {class: Contact, field: group}}]
assertions: [{type: dirty_count, count: 0}]
`,
			want: "steps[0]: remove_member requires member",
		},
		{
			name: "unknown assertion",
			body: validHeader + `
steps: [{op: commit}]
assertions: [{type: vibes}]
`,
			want: `assertions[0]: unknown assertion type "vibes"`,
		},
		{
			name: "stored rows without count",
			body: validHeader + `
steps: [{op: commit}]
assertions: [{type: stored_rows, class: Group}]
`,
			want: "assertions[0]: stored_rows requires class and count",
		},
		{
			name: "members without expectation",
			body: validHeader + `
steps: [{op: commit}]
assertions: [{type: members, class: Group, key: g, view: {class: Contact, field: group}}]
`,
			want: "assertions[0]: members requires members or count",
		},
		{
			name: "ops without datasource",
			body: validHeader + `
steps: [{op: commit}]
assertions: [{type: ops, ops: [open]}]
`,
			want: "assertions[0]: ops requires datasource and ops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestViewRef_String(t *testing.T) {
	assert.Equal(t, "Membership[right]", (&ViewRef{Relation: "Membership", Side: "right"}).String())
	assert.Equal(t, "Contact.group", (&ViewRef{Class: "Contact", Field: "group"}).String())
}
