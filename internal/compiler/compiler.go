// Package compiler runs the full pipeline for one backend: fingerprint,
// schema checks, cache lookup, lowering and emission.
package compiler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/graphc/internal/backend/cypher"
	"github.com/roach88/graphc/internal/backend/gremlin"
	"github.com/roach88/graphc/internal/backend/match"
	"github.com/roach88/graphc/internal/backend/sql"
	"github.com/roach88/graphc/internal/cache"
	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/lowering"
	"github.com/roach88/graphc/internal/querysql"
	"github.com/roach88/graphc/internal/schema"
)

// Backend names a target query language.
type Backend string

const (
	BackendMatch   Backend = "match"
	BackendGremlin Backend = "gremlin"
	BackendCypher  Backend = "cypher"
	BackendSQL     Backend = "sql"
)

// Backends lists every backend in a stable order.
func Backends() []Backend {
	return []Backend{BackendMatch, BackendGremlin, BackendCypher, BackendSQL}
}

// ParseBackend accepts a backend name.
func ParseBackend(s string) (Backend, error) {
	for _, b := range Backends() {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want match, gremlin, cypher or sql)", s)
}

// resultNamespace scopes the name-based result IDs.
var resultNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/roach88/graphc/compilation"))

// Input is one query in IR form.
type Input struct {
	Name   string
	Blocks []ir.Block
	Meta   *ir.QueryMetadataTable

	// Hints, when set, replace Options.Hints for this query.
	Hints map[string][]string
}

// Options carries the inputs besides the query itself. Every field is
// optional.
type Options struct {
	// Schema, when set, is checked against the metadata table and
	// contributes its version to the cache key. Its equivalence hints are
	// used when Hints is nil.
	Schema *schema.Schema

	// Hints are type equivalence hints for the Gremlin backend.
	Hints map[string][]string

	// SQL is the table mapping for the SQL backend.
	SQL sql.Schema

	// Dialect selects the SQL dialect; empty means SQLite.
	Dialect querysql.Dialect

	// Cache stores compiled queries. Nil disables caching.
	Cache cache.Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Result is one compiled query.
type Result struct {
	// ID is a name-based UUID of Key, so identical compilations share it.
	ID          uuid.UUID
	Name        string
	Backend     Backend
	Fingerprint string
	Key         string
	Query       string
	Args        []querysql.Arg
	Warnings    []string

	// Passes lists the lowering passes in the order they ran. Empty on a
	// cache hit.
	Passes   []string
	CacheHit bool
}

// Compile compiles in for backend.
func Compile(ctx context.Context, in Input, backend Backend, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if in.Meta == nil {
		return Result{}, fmt.Errorf("query %s has no metadata table", in.Name)
	}

	fp, err := ir.QueryFingerprint(in.Blocks)
	if err != nil {
		return Result{}, err
	}

	var schemaVersion string
	hints := in.Hints
	if hints == nil {
		hints = opts.Hints
	}
	if opts.Schema != nil {
		if err := opts.Schema.CheckMetadata(in.Meta); err != nil {
			return Result{}, err
		}
		schemaVersion = opts.Schema.Version()
		if hints == nil {
			hints = opts.Schema.TypeEquivalenceHints()
		}
	}

	key, err := compilationKey(fp, backend, hints, schemaVersion, opts)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		ID:          uuid.NewSHA1(resultNamespace, []byte(key)),
		Name:        in.Name,
		Backend:     backend,
		Fingerprint: fp,
		Key:         key,
	}

	if opts.Cache != nil {
		e, ok, err := opts.Cache.Get(ctx, key)
		if err != nil {
			return Result{}, err
		}
		if ok && len(e.Queries) == 1 {
			res.Query = e.Queries[0]
			res.Args = e.Args
			res.Warnings = e.Warnings
			res.CacheHit = true
			logger.Info("compiled query", "name", in.Name, "backend", backend, "fingerprint", fp, "cache_hit", true)
			return res, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	trace := lowering.Tracer(func(pass string, size int) {
		res.Passes = append(res.Passes, pass)
		logger.Debug("lowering pass", "pass", pass, "backend", backend, "blocks", size)
	})

	switch backend {
	case BackendMatch:
		res.Query, err = match.Compile(in.Blocks, in.Meta, trace)
	case BackendGremlin:
		res.Query, err = gremlin.Compile(in.Blocks, in.Meta, hints, trace)
	case BackendCypher:
		res.Query, err = cypher.Compile(in.Blocks, in.Meta, trace)
	case BackendSQL:
		var st sql.Statement
		st, err = sql.Compile(in.Blocks, in.Meta, opts.SQL, dialect(opts), trace)
		res.Query, res.Args, res.Warnings = st.SQL, st.Args, st.Warnings
	default:
		_, err = ParseBackend(string(backend))
	}
	if err != nil {
		return Result{}, err
	}

	if opts.Cache != nil {
		e := cache.Entry{
			Key:           key,
			Backend:       string(backend),
			Fingerprint:   fp,
			SchemaVersion: schemaVersion,
			Queries:       []string{res.Query},
			Args:          res.Args,
			Warnings:      res.Warnings,
		}
		if err := opts.Cache.Put(ctx, e); err != nil {
			return Result{}, err
		}
	}
	logger.Info("compiled query", "name", in.Name, "backend", backend, "fingerprint", fp, "cache_hit", false)
	return res, nil
}

func dialect(opts Options) querysql.Dialect {
	if opts.Dialect == "" {
		return querysql.SQLite
	}
	return opts.Dialect
}

// compilationKey folds in only the inputs that affect backend's output:
// hints for Gremlin, the dialect and table mapping for SQL.
func compilationKey(fp string, backend Backend, hints map[string][]string, schemaVersion string, opts Options) (string, error) {
	name := string(backend)
	switch backend {
	case BackendGremlin:
	case BackendSQL:
		digest, err := opts.SQL.Digest()
		if err != nil {
			return "", err
		}
		name += "/" + string(dialect(opts))
		schemaVersion += "/" + digest
		hints = nil
	default:
		hints = nil
	}
	return ir.CompilationKey(fp, name, hints, schemaVersion)
}
