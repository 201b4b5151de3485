package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDir(t *testing.T) {
	res, errs := LoadDir("testdata/contacts")
	require.Empty(t, errs)
	assert.Equal(t, 1, res.FileCount)
	assert.Len(t, res.Schema.Classes, 2)
	assert.Len(t, res.Schema.Relations, 1)
	assert.Empty(t, res.Warnings)
}

func TestLoadDir_Errors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.cue")
	require.NoError(t, os.WriteFile(file, []byte("x: 1\n"), 0o644))

	broken := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(broken, "a.cue"), []byte("class: {\n"), 0o644))

	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", "testdata/nope", ErrCodeNotFound},
		{"not a directory", file, ErrCodeNotFound},
		{"no files", "testdata/empty", ErrCodeNoFiles},
		{"syntax error", broken, ErrCodeLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadDir(tt.dir)
			require.Len(t, errs, 1)
			var le *LoadError
			require.ErrorAs(t, errs[0], &le)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoadDir_ValidationErrors(t *testing.T) {
	_, errs := LoadDir("testdata/invalid")
	require.Len(t, errs, 2)

	var codes []string
	for _, err := range errs {
		var ve ValidationError
		require.ErrorAs(t, err, &ve)
		codes = append(codes, ve.Code)
	}
	assert.Equal(t, []string{ErrMissingKey, ErrUnknownParent}, codes)
}
