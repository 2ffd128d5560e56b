// Bolt provider - single-file backend, useful for constrained deployments

package store

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/veraxlabs/verax/logx"
)

var boltBucket = []byte("chainstate")

// BoltProvider persists into a single bbolt file. All keys live in one
// bucket; the prefix scheme in keys.go does the namespacing.
type BoltProvider struct {
	path string
	db   *bolt.DB
}

// NewBoltProvider opens (or creates) a bbolt database file under dir.
func NewBoltProvider(dir string) (*BoltProvider, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory path cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	path := filepath.Join(filepath.Clean(dir), "chainstate.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	logx.Info("STORE", fmt.Sprintf("Opened bolt backend at %s", path))
	return &BoltProvider{path: path, db: db}, nil
}

func (p *BoltProvider) Get(key []byte) ([]byte, error) {
	var out []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(boltBucket).Get(key)
		if val == nil {
			return ErrNotFound
		}
		out = make([]byte, len(val))
		copy(out, val)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *BoltProvider) Has(key []byte) (bool, error) {
	var found bool
	err := p.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(boltBucket).Get(key) != nil
		return nil
	})
	return found, err
}

func (p *BoltProvider) Put(key, value []byte) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

func (p *BoltProvider) WriteBatch(ops []BatchOp) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		for _, op := range ops {
			if op.Delete {
				if err := bucket.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BoltProvider) Close() error {
	return p.db.Close()
}
