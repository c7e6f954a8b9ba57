package store

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/database/prefixdb"
)

// ErrNotFound is returned by Get when a key is absent in any backend.
var ErrNotFound = database.ErrNotFound

var ErrUnknownBackend = errors.New("unknown store backend")

const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
)

// KV is the narrow key-value surface persisted components depend on.
type KV interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	NewBatch() Batch
	Close() error
}

// Batch collects writes that become visible together on Write. A batch
// that will not be written must be released with Discard.
type Batch interface {
	Put(key, value []byte) error
	Write() error
	Discard()
}

type Config struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Open returns the store named by cfg.Backend.
func Open(cfg Config) (KV, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		var db database.Database = memdb.New()
		if cfg.Namespace != "" {
			db = prefixdb.New([]byte(cfg.Namespace), db)
		}
		return NewAvalanche(db), nil
	case BackendPebble:
		if cfg.Path == "" {
			return nil, fmt.Errorf("pebble store requires a path")
		}
		return OpenPebble(cfg.Path, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
