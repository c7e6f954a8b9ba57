package store

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

var _ KV = (*Pebble)(nil)

// Pebble is a persistent KV. Batches are committed with a WAL sync so an
// acknowledged write survives a crash.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at path. opts may be nil.
func OpenPebble(path string, opts *pebble.Options) (*Pebble, error) {
	if opts == nil {
		cache := pebble.NewCache(8 << 20) // 8 MB cache
		// Open takes its own reference.
		defer cache.Unref()
		opts = &pebble.Options{
			Cache:        cache,
			MemTableSize: 4 << 20,
		}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

func (s *Pebble) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// value is only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (s *Pebble) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Pebble) NewBatch() Batch {
	return &pebbleBatch{b: s.db.NewBatch()}
}

func (s *Pebble) Close() error {
	return s.db.Close()
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (p *pebbleBatch) Put(key, value []byte) error {
	return p.b.Set(key, value, nil)
}

func (p *pebbleBatch) Write() error {
	defer p.b.Close()
	return p.b.Commit(pebble.Sync)
}

func (p *pebbleBatch) Discard() {
	_ = p.b.Close()
}
