// Package config reads the stead YAML configuration file.
//
//	schema: ./schema
//	datasources:
//	  main:
//	    driver: sqlite
//	    path: ./data/main.db
//	  archive:
//	    driver: memory
//	cache:
//	  driver: redis
//	  addr: localhost:6379
//	  ttl: 5m
//	max_precommit_rounds: 1000
//
// Relative paths are resolved against the directory of the file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Data source drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Cache drivers.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the parsed configuration file.
type Config struct {
	// Schema is the directory of CUE class and relation declarations.
	Schema string `yaml:"schema"`

	// DataSources maps data source names used by the schema to backends.
	DataSources map[string]DataSource `yaml:"datasources"`

	Cache Cache `yaml:"cache,omitempty"`

	// MaxPrecommitRounds bounds BeforeCommit hook executions per commit.
	// Zero means the engine default.
	MaxPrecommitRounds int `yaml:"max_precommit_rounds,omitempty"`
}

// DataSource configures one named data source.
type DataSource struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"` // sqlite only
}

// Cache configures the second-level cache.
type Cache struct {
	Driver   string        `yaml:"driver,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
	Addr     string        `yaml:"addr,omitempty"`     // redis only
	Password string        `yaml:"password,omitempty"` // redis only
	DB       int           `yaml:"db,omitempty"`       // redis only
	Prefix   string        `yaml:"prefix,omitempty"`   // redis only
}

// Default returns the configuration used when no file is given: schema in
// ./schema and an in-memory "main" data source.
func Default() *Config {
	return &Config{
		Schema:      "schema",
		DataSources: map[string]DataSource{"main": {Driver: DriverMemory}},
		Cache:       Cache{Driver: CacheNone},
	}
}

// Load reads and validates a configuration file.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes and validates configuration bytes. Paths are left as written.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = CacheNone
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and driver names.
func (c *Config) Validate() error {
	if c.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(c.DataSources) == 0 {
		return fmt.Errorf("at least one data source is required")
	}
	for _, name := range c.DataSourceNames() {
		ds := c.DataSources[name]
		switch ds.Driver {
		case DriverSQLite:
			if ds.Path == "" {
				return fmt.Errorf("datasources.%s: path is required for sqlite", name)
			}
		case DriverMemory:
		default:
			return fmt.Errorf("datasources.%s: unknown driver %q", name, ds.Driver)
		}
	}
	switch c.Cache.Driver {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache: addr is required for redis")
		}
	default:
		return fmt.Errorf("cache: unknown driver %q", c.Cache.Driver)
	}
	if c.MaxPrecommitRounds < 0 {
		return fmt.Errorf("max_precommit_rounds must not be negative")
	}
	return nil
}

// DataSourceNames returns the configured names in sorted order.
func (c *Config) DataSourceNames() []string {
	names := make([]string, 0, len(c.DataSources))
	for name := range c.DataSources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Config) resolvePaths(base string) {
	if !filepath.IsAbs(c.Schema) {
		c.Schema = filepath.Join(base, c.Schema)
	}
	for name, ds := range c.DataSources {
		if ds.Path != "" && ds.Path != ":memory:" && !filepath.IsAbs(ds.Path) {
			ds.Path = filepath.Join(base, ds.Path)
			c.DataSources[name] = ds
		}
	}
}
