package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stead/internal/config"
	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/source"
)

func schemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "schema.cue", contactsCUE)
	return dir
}

func TestOpenEnvironment_Memory(t *testing.T) {
	cfg := &config.Config{
		Schema:      schemaDir(t),
		DataSources: map[string]config.DataSource{"main": {Driver: config.DriverMemory}},
		Cache:       config.Cache{Driver: config.CacheMemory, TTL: time.Minute},
	}

	env, err := OpenEnvironment(context.Background(), cfg)
	require.NoError(t, err)
	defer env.Close()

	assert.Len(t, env.Schema.Classes, 2)
	assert.Contains(t, env.Sources, "main")
	assert.Empty(t, env.Stores)
	assert.NotNil(t, env.Cache)

	ctx := context.Background()
	tx := env.NewTransaction(slog.New(slog.DiscardHandler))
	g, err := tx.CreateNew("Group", ir.IRString("g"))
	require.NoError(t, err)
	require.NoError(t, g.Set("name", ir.IRString("Friends")))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Close())

	mem := env.Sources["main"].(*source.Memory)
	assert.Len(t, mem.Rows("Group"), 1)
}

func TestOpenEnvironment_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Schema:      schemaDir(t),
		DataSources: map[string]config.DataSource{"main": {Driver: config.DriverSQLite, Path: filepath.Join(dir, "main.db")}},
	}

	env, err := OpenEnvironment(context.Background(), cfg)
	require.NoError(t, err)

	require.Contains(t, env.Stores, "main")
	assert.Same(t, env.Stores["main"], env.Sources["main"])
	assert.Nil(t, env.Cache)
	require.NoError(t, env.Close())
	require.NoError(t, env.Close(), "second close is a no-op")

	_, err = os.Stat(filepath.Join(dir, "main.db"))
	assert.NoError(t, err)
}

func TestOpenEnvironment_UnconfiguredDataSource(t *testing.T) {
	cfg := &config.Config{
		Schema:      schemaDir(t),
		DataSources: map[string]config.DataSource{"other": {Driver: config.DriverMemory}},
	}

	_, err := OpenEnvironment(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schema uses data source "main", which is not configured`)
}

func TestOpenEnvironment_InvalidSchema(t *testing.T) {
	cfg := &config.Config{
		Schema:      filepath.Join(t.TempDir(), "missing"),
		DataSources: map[string]config.DataSource{"main": {Driver: config.DriverMemory}},
	}

	_, err := OpenEnvironment(context.Background(), cfg)
	require.Error(t, err)
	code, _ := schemaErrorCode(err)
	assert.Equal(t, ErrCodeNotFound, code)
}

func TestLoadConfig_DefaultFallback(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(&RootOptions{})
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_ExplicitMissing(t *testing.T) {
	_, err := loadConfig(&RootOptions{Config: filepath.Join(t.TempDir(), "stead.yaml")})
	require.Error(t, err)
}
