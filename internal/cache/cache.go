// Package cache stores compiled queries by compilation key.
//
// A compilation key hashes the query fingerprint together with the
// backend, the type equivalence hints and the schema version (see
// ir.CompilationKey), so an entry never needs invalidating: any input
// change produces a different key.
//
// Two stores are provided. SQLiteStore keeps entries in a single SQLite
// file and is the default. BadgerStore keeps them in a Badger key-value
// directory. Entry values are msgpack-encoded in both.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/graphc/internal/querysql"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store is closed")

// Entry is one compiled query.
type Entry struct {
	Key           string         `msgpack:"key"`
	Backend       string         `msgpack:"backend"`
	Fingerprint   string         `msgpack:"fingerprint"`
	SchemaVersion string         `msgpack:"schema_version,omitempty"`
	Queries       []string       `msgpack:"queries"`
	Args          []querysql.Arg `msgpack:"args,omitempty"`
	Warnings      []string       `msgpack:"warnings,omitempty"`
}

// Store is a compiled-query cache.
type Store interface {
	// Get returns the entry for key. ok is false on a miss.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)
	// Put stores e under e.Key, replacing any previous entry.
	Put(ctx context.Context, e Entry) error
	Close() error
}

// Lister is implemented by stores that can enumerate what they hold.
type Lister interface {
	// Fingerprints lists the distinct query fingerprints with a cached
	// compilation for backend.
	Fingerprints(ctx context.Context, backend string) ([]string, error)
}

// Open opens the store for driver: "sqlite", "badger" or "none".
func Open(driver, path string) (Store, error) {
	switch driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "badger":
		b, err := OpenBadger(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "none", "":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", driver)
}

// Nop is a Store that never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }
func (Nop) Put(context.Context, Entry) error                 { return nil }
func (Nop) Close() error                                     { return nil }

// Fingerprints implements Lister; a Nop store is always empty.
func (Nop) Fingerprints(context.Context, string) ([]string, error) { return nil, nil }

func encodeEntry(e Entry) ([]byte, error) {
	if e.Key == "" {
		return nil, fmt.Errorf("cache: entry has no key")
	}
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("cache: encode entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("cache: decode entry: %w", err)
	}
	for i := range e.Args {
		e.Args[i].Value = widenInt(e.Args[i].Value)
	}
	return e, nil
}

// widenInt undoes msgpack's compact integer encoding. SQL literal
// arguments are always int64.
func widenInt(v any) any {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	}
	return v
}
