package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const contactsCUE = `package contacts

class: Group: {
	cacheable: true
	fields: {
		id:   string
		name: string | null
	}
}

class: Contact: {
	fields: {
		id:    string
		name:  string
		group: string | null
	}
	refs: group: "Group"
}

relation: Membership: {
	left: {class: "Group", column: "group_id"}
	right: {class: "Contact", column: "contact_id"}
}
`

// writeFile writes content to dir/name, creating parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeProject lays out schema/schema.cue and a stead.yaml using a sqlite
// "main" data source, and returns the config path.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "schema/schema.cue", contactsCUE)
	return writeFile(t, dir, "stead.yaml", `
schema: schema
datasources:
  main:
    driver: sqlite
    path: main.db
cache:
  driver: memory
`)
}

// execute runs the root command and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
