package store

import (
	"fmt"
)

// NewProvider selects a backend by name. Unknown names fail at startup
// rather than falling back silently.
func NewProvider(backend, dir string) (Provider, error) {
	switch backend {
	case "", "leveldb":
		return NewLevelDBProvider(dir)
	case "bolt":
		return NewBoltProvider(dir)
	case "memory":
		return NewMemoryProvider(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
