package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a persister used after Close.
var ErrClosed = errors.New("storage: persister closed")

// KV is one key/value pair of a database.
type KV struct {
	Key   string
	Value []byte
}

// Snapshot is a point-in-time copy of the keyspace. DBs is indexed by
// database number. Values are shared with the live keyspace and must not
// be modified.
type Snapshot struct {
	CreatedAt time.Time
	DBs       [][]KV
}

// Len returns the number of keys across all databases.
func (s *Snapshot) Len() int {
	n := 0
	for _, db := range s.DBs {
		n += len(db)
	}
	return n
}

// LoadFunc receives one persisted pair. The slices are owned by the
// callee.
type LoadFunc func(db int, key, value []byte) error

// Persister writes and reads whole keyspace snapshots.
//
// Save replaces whatever was stored before. Load calls fn for every stored
// pair and returns nil when nothing has been stored yet; an error from fn
// stops the load and is returned.
type Persister interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, fn LoadFunc) error
	Close() error
}
