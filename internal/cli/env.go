package cli

import (
	"fmt"
	"log/slog"

	"github.com/roach88/graphc/internal/cache"
	"github.com/roach88/graphc/internal/compiler"
	"github.com/roach88/graphc/internal/config"
	"github.com/roach88/graphc/internal/fixture"
	"github.com/roach88/graphc/internal/querysql"
	"github.com/roach88/graphc/internal/schema"
)

// environment is everything a command needs besides its arguments.
type environment struct {
	cfg     config.Config
	backend compiler.Backend
	opts    compiler.Options
}

// loadEnvironment reads the config, the GraphQL schema it names and opens
// the cache. With noCache set the cache is skipped. Callers must close.
func loadEnvironment(root *RootOptions, noCache bool) (*environment, error) {
	cfg, err := config.Load(root.Config, root.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	backend, err := compiler.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	dialect, err := querysql.ParseDialect(cfg.SQL.Dialect)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	env := &environment{
		cfg:     cfg,
		backend: backend,
		opts: compiler.Options{
			Hints:   cfg.TypeEquivalenceHints,
			SQL:     cfg.SQL.Schema(),
			Dialect: dialect,
			Logger:  slog.Default(),
		},
	}
	if cfg.SchemaPath != "" {
		s, err := schema.Load(cfg.SchemaPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "loading schema", err)
		}
		env.opts.Schema = s
	}
	if !noCache {
		store, err := cache.Open(cfg.Cache.Driver, cfg.Cache.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "opening cache", err)
		}
		env.opts.Cache = store
	}
	return env, nil
}

func (e *environment) Close() error {
	if e.opts.Cache == nil {
		return nil
	}
	return e.opts.Cache.Close()
}

// loadFixtures loads every path, collecting failures instead of stopping
// at the first.
func loadFixtures(paths []string) ([]*fixture.Query, []error) {
	var (
		queries []*fixture.Query
		errs    []error
	)
	for _, p := range paths {
		q, err := fixture.Load(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		queries = append(queries, q)
	}
	return queries, errs
}

// fixtureExitCode is ExitFailure when every error rejects a query and
// ExitCommandError when any file could not be read.
func fixtureExitCode(errs []error) int {
	for _, err := range errs {
		if !IsQueryError(err) {
			return ExitCommandError
		}
	}
	return ExitFailure
}
