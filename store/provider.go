package store

import "errors"

// ErrNotFound is returned by Get when no value exists for a key.
var ErrNotFound = errors.New("store: key not found")

// BatchOp is one write inside an atomic batch.
type BatchOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Provider abstracts the key-value backend (LevelDB, Bolt, in-memory).
// It is the minimal surface the finalized store needs: point reads and
// atomic multi-key writes. Implementations must allow concurrent readers
// during writes.
type Provider interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	WriteBatch(ops []BatchOp) error
	Close() error
}
