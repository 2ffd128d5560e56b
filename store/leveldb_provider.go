// LevelDB provider - default backend

package store

import (
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/veraxlabs/verax/logx"
)

// LevelDBProvider persists into a LevelDB database directory.
type LevelDBProvider struct {
	dir string
	db  *leveldb.DB
}

// NewLevelDBProvider opens (or creates) a LevelDB database at dir.
func NewLevelDBProvider(dir string) (*LevelDBProvider, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory path cannot be empty")
	}

	db, err := leveldb.OpenFile(filepath.Clean(dir), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB at %s: %w", dir, err)
	}

	logx.Info("STORE", fmt.Sprintf("Opened LevelDB backend at %s", dir))
	return &LevelDBProvider{dir: dir, db: db}, nil
}

func (p *LevelDBProvider) Get(key []byte) ([]byte, error) {
	val, err := p.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return val, nil
}

func (p *LevelDBProvider) Has(key []byte) (bool, error) {
	ok, err := p.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("leveldb has: %w", err)
	}
	return ok, nil
}

func (p *LevelDBProvider) Put(key, value []byte) error {
	if err := p.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

func (p *LevelDBProvider) WriteBatch(ops []BatchOp) error {
	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Delete {
			batch.Delete(op.Key)
		} else {
			batch.Put(op.Key, op.Value)
		}
	}
	if err := p.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb batch write: %w", err)
	}
	return nil
}

func (p *LevelDBProvider) Close() error {
	return p.db.Close()
}
