package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "compilation/"

// BadgerStore is a Store backed by a Badger directory.
type BadgerStore struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// OpenBadger opens the Badger directory at dir. An empty dir keeps the
// store in memory.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) ensureOpen() error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return nil
}

// Get implements Store.
func (b *BadgerStore) Get(_ context.Context, key string) (Entry, bool, error) {
	if err := b.ensureOpen(); err != nil {
		return Entry{}, false, err
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Put implements Store.
func (b *BadgerStore) Put(_ context.Context, e Entry) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+e.Key), data)
	}); err != nil {
		return fmt.Errorf("cache: write %s: %w", e.Key, err)
	}
	return nil
}

// Fingerprints implements Lister. Badger keeps no insertion order, so the
// fingerprints are sorted.
func (b *BadgerStore) Fingerprints(_ context.Context, backend string) ([]string, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := decodeEntry(data)
			if err != nil {
				return err
			}
			if e.Backend == backend {
				seen[e.Fingerprint] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache: list fingerprints: %w", err)
	}
	out := make([]string, 0, len(seen))
	for fp := range seen {
		out = append(out, fp)
	}
	slices.Sort(out)
	return out, nil
}

// Close closes the database. Closing twice is a no-op.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
