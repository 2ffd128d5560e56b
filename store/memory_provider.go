// In-memory provider - tests and throwaway nodes

package store

import (
	"sync"
)

// MemoryProvider keeps everything in a map. Safe for concurrent use.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string][]byte

	// failWrites, when set, makes every write fail. Lets tests exercise
	// the storage-error path without a broken disk.
	failWrites error
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string][]byte)}
}

// FailWrites makes all subsequent writes return err (nil restores normal
// operation).
func (p *MemoryProvider) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWrites = err
}

func (p *MemoryProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (p *MemoryProvider) Has(key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.data[string(key)]
	return ok, nil
}

func (p *MemoryProvider) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWrites != nil {
		return p.failWrites
	}
	val := make([]byte, len(value))
	copy(val, value)
	p.data[string(key)] = val
	return nil
}

func (p *MemoryProvider) WriteBatch(ops []BatchOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWrites != nil {
		return p.failWrites
	}
	for _, op := range ops {
		if op.Delete {
			delete(p.data, string(op.Key))
			continue
		}
		val := make([]byte, len(op.Value))
		copy(val, op.Value)
		p.data[string(op.Key)] = val
	}
	return nil
}

func (p *MemoryProvider) Close() error { return nil }
