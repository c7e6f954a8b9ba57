package store

import (
	"github.com/ava-labs/avalanchego/database"
)

var _ KV = (*Avalanche)(nil)

// Avalanche adapts an avalanchego database (memdb, prefixdb, leveldb) to KV.
type Avalanche struct {
	db database.Database
}

func NewAvalanche(db database.Database) *Avalanche {
	return &Avalanche{db: db}
}

func (a *Avalanche) Get(key []byte) ([]byte, error) {
	return a.db.Get(key)
}

func (a *Avalanche) Has(key []byte) (bool, error) {
	return a.db.Has(key)
}

func (a *Avalanche) NewBatch() Batch {
	return avalancheBatch{a.db.NewBatch()}
}

func (a *Avalanche) Close() error {
	return a.db.Close()
}

type avalancheBatch struct {
	database.Batch
}

func (b avalancheBatch) Discard() {
	b.Reset()
}
