package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/stead/internal/cache"
	"github.com/roach88/stead/internal/config"
	"github.com/roach88/stead/internal/engine"
	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/schema"
	"github.com/roach88/stead/internal/source"
	"github.com/roach88/stead/internal/store"
)

// Error code constants for failures outside schema loading.
// Schema load codes (E001-E007) and validation codes (E120+) live in
// the schema package.
const (
	ErrCodeGeneric     = schema.ErrCodeGeneric
	ErrCodeNotFound    = schema.ErrCodeNotFound
	ErrCodeWriteFailed = "E008" // File write error
	ErrCodeConfig      = "E010" // Config file unreadable or invalid
	ErrCodeDataSource  = "E011" // Data source or cache could not be opened
	ErrCodeSnapshot    = "E012" // Snapshot file unreadable
)

// loadConfig reads the file named by --config. A missing default file
// falls back to config.Default; a missing explicit file is an error.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.Config
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && path == DefaultConfigFile {
		return config.Default(), nil
	}
	return config.Load(path)
}

// schemaErrorCode extracts the code and message of a schema load error.
func schemaErrorCode(err error) (string, string) {
	var loadErr *schema.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var valErr schema.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Code, valErr.Field + ": " + valErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// Environment is everything a command needs to start transactions: the
// compiled schema, one open data source per configured name and the
// optional second-level cache.
type Environment struct {
	Config   *config.Config
	Schema   *ir.Schema
	Registry *engine.Registry
	Sources  source.Registry
	Stores   map[string]*store.Store // the sqlite-backed subset of Sources
	Cache    engine.CacheBridge

	closers []func() error
}

// OpenEnvironment loads the configured schema and opens its data sources
// and cache. Every data source the schema names must be configured.
func OpenEnvironment(ctx context.Context, cfg *config.Config) (*Environment, error) {
	loaded, errs := schema.LoadDir(cfg.Schema)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	s := loaded.Schema
	for _, name := range s.DataSources() {
		if _, ok := cfg.DataSources[name]; !ok {
			return nil, fmt.Errorf("schema uses data source %q, which is not configured", name)
		}
	}

	env := &Environment{
		Config:   cfg,
		Schema:   s,
		Registry: engine.NewRegistry(s),
		Sources:  source.Registry{},
		Stores:   map[string]*store.Store{},
	}
	for _, name := range cfg.DataSourceNames() {
		ds := cfg.DataSources[name]
		switch ds.Driver {
		case config.DriverSQLite:
			st, err := store.Open(name, ds.Path, s)
			if err != nil {
				_ = env.Close()
				return nil, fmt.Errorf("open data source %s: %w", name, err)
			}
			env.Sources[name] = st
			env.Stores[name] = st
			env.closers = append(env.closers, st.Close)
		case config.DriverMemory:
			mem := source.NewMemory(name, s)
			env.Sources[name] = mem
			env.closers = append(env.closers, mem.Close)
		}
	}

	switch cfg.Cache.Driver {
	case config.CacheMemory:
		ttl := cfg.Cache.TTL
		if ttl == 0 {
			ttl = cache.DefaultTTL
		}
		env.Cache = cache.NewMemory(ttl)
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.Cache.Prefix,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			_ = env.Close()
			return nil, err
		}
		env.Cache = r
		env.closers = append(env.closers, r.Close)
	}
	return env, nil
}

// NewTransaction starts a transaction over the environment's data sources.
func (e *Environment) NewTransaction(logger *slog.Logger) *engine.Transaction {
	opts := []engine.Option{
		engine.WithDataSources(e.Sources),
		engine.WithLogger(logger),
	}
	if e.Cache != nil {
		opts = append(opts, engine.WithCache(e.Cache))
	}
	if e.Config.MaxPrecommitRounds > 0 {
		opts = append(opts, engine.WithMaxPrecommitRounds(e.Config.MaxPrecommitRounds))
	}
	return engine.New(e.Registry, opts...)
}

// Close releases data sources and the cache in reverse opening order.
func (e *Environment) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// openFromFlags loads the config and opens its environment, mapping
// failures to command errors.
func openFromFlags(ctx context.Context, opts *RootOptions, formatter *OutputFormatter) (*Environment, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, commandError(formatter, ErrCodeConfig, err.Error())
	}
	formatter.VerboseLog("Schema directory: %s", cfg.Schema)

	env, err := OpenEnvironment(ctx, cfg)
	if err != nil {
		var loadErr *schema.LoadError
		var valErr schema.ValidationError
		if errors.As(err, &loadErr) || errors.As(err, &valErr) {
			code, message := schemaErrorCode(err)
			return nil, commandError(formatter, code, message)
		}
		return nil, commandError(formatter, ErrCodeDataSource, err.Error())
	}
	for _, name := range cfg.DataSourceNames() {
		formatter.VerboseLog("Data source %s: %s", name, cfg.DataSources[name].Driver)
	}
	return env, nil
}

// commandError reports a command-level failure (exit code 2).
func commandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
