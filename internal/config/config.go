// Package config loads compiler settings from a CUE or YAML file, then
// applies .env and environment overrides.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/graphc/internal/backend/sql"
	"github.com/roach88/graphc/internal/compiler"
	"github.com/roach88/graphc/internal/querysql"
)

//go:embed schema.cue
var configSchema string

// Environment variables that override file values.
const (
	EnvBackend     = "GRAPHC_BACKEND"
	EnvSchema      = "GRAPHC_SCHEMA"
	EnvCacheDriver = "GRAPHC_CACHE_DRIVER"
	EnvCachePath   = "GRAPHC_CACHE_PATH"
)

// Cache drivers.
const (
	CacheSQLite = "sqlite"
	CacheBadger = "badger"
	CacheNone   = "none"
)

// Config is the full compiler configuration.
type Config struct {
	Backend              string              `json:"backend,omitempty" yaml:"backend,omitempty"`
	SchemaPath           string              `json:"schema,omitempty" yaml:"schema,omitempty"`
	TypeEquivalenceHints map[string][]string `json:"type_equivalence_hints,omitempty" yaml:"type_equivalence_hints,omitempty"`
	SQL                  SQL                 `json:"sql,omitempty" yaml:"sql,omitempty"`
	Cache                Cache               `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// SQL configures the relational backend.
type SQL struct {
	Dialect string                                    `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	Tables  map[string]string                         `json:"tables,omitempty" yaml:"tables,omitempty"`
	Joins   map[string]map[string]sql.JoinDescriptor `json:"joins,omitempty" yaml:"joins,omitempty"`
}

// Schema returns the table and join mapping for the SQL backend.
func (s SQL) Schema() sql.Schema {
	return sql.Schema{Tables: s.Tables, Joins: s.Joins}
}

// Cache selects the compiled-query cache.
type Cache struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend: string(compiler.BackendMatch),
		SQL:     SQL{Dialect: string(querysql.SQLite)},
		Cache:   Cache{Driver: CacheSQLite, Path: filepath.Join(".graphc", "cache.db")},
	}
}

// Error reports an invalid configuration value, with its CUE position
// when one is known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load builds a Config from defaults, the optional file at path, the
// optional dotenv file, and the process environment, in that order.
// A missing dotenv file is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.merge(file)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		return decodeCUE(path, data)
	case ".yaml", ".yml":
		return decodeYAML(data)
	default:
		return Config{}, &Error{Field: "config", Message: fmt.Sprintf("unsupported config file extension %q (want .cue, .yaml or .yml)", ext)}
	}
}

// decodeCUE unifies the file with the closed #Config definition, so
// unknown fields and out-of-range values fail with a position.
func decodeCUE(path string, data []byte) (Config, error) {
	ctx := cuecontext.New()
	def := ctx.CompileString(configSchema, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return Config{}, fmt.Errorf("config schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(err)
	}
	return cfg, nil
}

func decodeYAML(data []byte) (Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	e := &Error{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}

// merge overlays the non-empty values of other onto c.
func (c *Config) merge(other Config) {
	if other.Backend != "" {
		c.Backend = other.Backend
	}
	if other.SchemaPath != "" {
		c.SchemaPath = other.SchemaPath
	}
	if other.TypeEquivalenceHints != nil {
		c.TypeEquivalenceHints = other.TypeEquivalenceHints
	}
	if other.SQL.Dialect != "" {
		c.SQL.Dialect = other.SQL.Dialect
	}
	if other.SQL.Tables != nil {
		c.SQL.Tables = other.SQL.Tables
	}
	if other.SQL.Joins != nil {
		c.SQL.Joins = other.SQL.Joins
	}
	if other.Cache.Driver != "" {
		c.Cache.Driver = other.Cache.Driver
	}
	if other.Cache.Path != "" {
		c.Cache.Path = other.Cache.Path
	}
}

func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		EnvBackend:     &c.Backend,
		EnvSchema:      &c.SchemaPath,
		EnvCacheDriver: &c.Cache.Driver,
		EnvCachePath:   &c.Cache.Path,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks values that the file formats cannot constrain on their
// own, such as values coming from the environment.
func (c Config) Validate() error {
	if _, err := compiler.ParseBackend(c.Backend); err != nil {
		return &Error{Field: "backend", Message: err.Error()}
	}
	if _, err := querysql.ParseDialect(c.SQL.Dialect); err != nil {
		return &Error{Field: "sql.dialect", Message: err.Error()}
	}
	switch c.Cache.Driver {
	case CacheSQLite, CacheBadger:
		if c.Cache.Path == "" {
			return &Error{Field: "cache.path", Message: fmt.Sprintf("the %s cache needs a path", c.Cache.Driver)}
		}
	case CacheNone:
	default:
		return &Error{Field: "cache.driver", Message: fmt.Sprintf("unknown cache driver %q", c.Cache.Driver)}
	}
	return nil
}
