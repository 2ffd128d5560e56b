package store

import (
	"encoding/binary"

	"github.com/veraxlabs/verax/types"
)

// Key prefixes. All namespacing happens here so every backend stores the
// same byte layout.
const (
	prefixMeta     = "meta:"
	prefixBlock    = "block:"
	prefixHeight   = "height:"
	prefixUTXO     = "utxo:"
	prefixNull     = "null:"
	prefixRoot     = "croot:"
	prefixRootIdx  = "crootidx:"
	prefixTree     = "tree:"
	prefixTxHeight = "txloc:"

	keyTip = "tip"
)

func metaKey(name string) []byte {
	return []byte(prefixMeta + name)
}

func blockKey(hash types.Hash) []byte {
	return append([]byte(prefixBlock), hash[:]...)
}

func heightKey(height uint64) []byte {
	buf := make([]byte, len(prefixHeight)+8)
	copy(buf, prefixHeight)
	binary.BigEndian.PutUint64(buf[len(prefixHeight):], height)
	return buf
}

func utxoKey(op types.Outpoint) []byte {
	return append([]byte(prefixUTXO), op.Bytes()...)
}

func nullifierKey(pool types.Pool, nf types.Hash) []byte {
	buf := append([]byte(prefixNull), byte(pool))
	return append(buf, nf[:]...)
}

func rootKey(pool types.Pool, height uint64) []byte {
	buf := append([]byte(prefixRoot), byte(pool))
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	return append(buf, h[:]...)
}

func rootIdxKey(pool types.Pool, root types.Hash) []byte {
	buf := append([]byte(prefixRootIdx), byte(pool))
	return append(buf, root[:]...)
}

func treeKey(pool types.Pool) []byte {
	return append([]byte(prefixTree), byte(pool))
}

func txHeightKey(hash types.Hash) []byte {
	return append([]byte(prefixTxHeight), hash[:]...)
}

func poolBalanceKey(pool types.Pool) []byte {
	return append([]byte(prefixMeta+"poolbal:"), byte(pool))
}

func encodeInt64(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func encodeHeight(height uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return buf[:]
}

func decodeHeight(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
