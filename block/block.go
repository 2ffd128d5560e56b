package block

import (
	"crypto/sha256"
	"time"

	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

const (
	// MaxBlockSize is the hard cap on a serialized block.
	MaxBlockSize = 2_000_000

	// MaxSolutionSize bounds the proof-of-work solution blob carried in the
	// header.
	MaxSolutionSize = 1344
)

// PoolRoot records the commitment-tree root of one shielded pool as of this
// block. Roots appear in pool order and only for pools active at the
// block's height.
type PoolRoot struct {
	Pool types.Pool `json:"pool"`
	Root types.Hash `json:"root"`
}

// Header carries everything needed to chain and proof-of-work-check a block
// without its transactions.
type Header struct {
	Version    uint32     `json:"version"`
	ParentHash types.Hash `json:"parent_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	PoolRoots  []PoolRoot `json:"pool_roots"`
	Timestamp  int64      `json:"timestamp"` // Unix seconds
	Bits       uint32     `json:"bits"`      // compact difficulty target
	Nonce      [32]byte   `json:"nonce"`
	Solution   []byte     `json:"solution"`
}

// Block is a header plus its ordered transactions. Identity is the double
// SHA-256 of the serialized header.
type Block struct {
	Header       Header                     `json:"header"`
	Transactions []*transaction.Transaction `json:"transactions"`
}

// Hash returns the block identity.
func (h *Header) Hash() types.Hash {
	first := sha256.Sum256(h.serialize())
	return sha256.Sum256(first[:])
}

func (b *Block) Hash() types.Hash { return b.Header.Hash() }

// Time returns the header timestamp as a time.Time.
func (h *Header) Time() time.Time { return time.Unix(h.Timestamp, 0) }

// PoolRoot returns the recorded commitment root for pool, if present.
func (h *Header) PoolRoot(pool types.Pool) (types.Hash, bool) {
	for _, pr := range h.PoolRoots {
		if pr.Pool == pool {
			return pr.Root, true
		}
	}
	return types.Hash{}, false
}

// TxHashes returns the content hashes of all transactions in order.
func (b *Block) TxHashes() []types.Hash {
	hashes := make([]types.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return hashes
}

// MerkleRoot computes the Merkle root over the ordered transaction hashes,
// duplicating the final hash at odd levels.
func MerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.ZeroHash
	}
	level := make([]types.Hash, len(hashes))
	copy(level, hashes)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right types.Hash) types.Hash {
	var buf [2 * types.HashSize]byte
	copy(buf[:], left[:])
	copy(buf[types.HashSize:], right[:])
	first := sha256.Sum256(buf[:])
	return sha256.Sum256(first[:])
}
