// Package commitment implements the append-only note commitment
// accumulator kept per shielded pool.
//
// The tree is never rebuilt: only the roots of the complete binary subtrees
// along its left edge are retained, one slot per bit of the leaf count.
// Appending a leaf works exactly like binary increment, carrying subtree
// roots upward until a free slot is found. That keeps appends O(log n) and
// a full clone (needed for every chain fork) O(log n) as well.
package commitment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/veraxlabs/verax/types"
)

// treeTag domain-separates commitment-tree node hashes.
var treeTag = []byte("VeraxCmtTree")

// maxLevels bounds the tree depth; 2^64 leaves is unreachable but the
// serialized form still needs a sane cap.
const maxLevels = 64

// Tree is the incremental accumulator for one pool. The zero value is not
// usable; construct with New.
type Tree struct {
	pool  types.Pool
	count uint64
	// edge[i] holds the root of a complete subtree of 2^i leaves, valid
	// exactly when bit i of count is set.
	edge [maxLevels]types.Hash
}

// New returns an empty tree for pool.
func New(pool types.Pool) *Tree {
	return &Tree{pool: pool}
}

func (t *Tree) Pool() types.Pool { return t.pool }

// Size returns the number of leaves appended so far.
func (t *Tree) Size() uint64 { return t.count }

// Append adds a note commitment as the next leaf.
func (t *Tree) Append(leaf types.Hash) {
	carry := leaf
	level := 0
	for t.count&(1<<level) != 0 {
		carry = t.hashNode(t.edge[level], carry)
		level++
	}
	t.edge[level] = carry
	t.count++
}

// Root returns the accumulator digest over all appended leaves. The empty
// tree has a well-defined pool-specific root.
func (t *Tree) Root() types.Hash {
	if t.count == 0 {
		return t.emptyRoot()
	}

	var acc types.Hash
	have := false
	for level := 0; level < maxLevels; level++ {
		if t.count&(1<<level) == 0 {
			continue
		}
		if !have {
			acc = t.edge[level]
			have = true
			continue
		}
		acc = t.hashNode(t.edge[level], acc)
	}
	return acc
}

// Clone returns an independent copy sharing no mutable state.
func (t *Tree) Clone() *Tree {
	cp := *t
	return &cp
}

func (t *Tree) hashNode(left, right types.Hash) types.Hash {
	h, _ := blake2b.New256(nil)
	h.Write(treeTag)
	h.Write([]byte{byte(t.pool)})
	h.Write(left[:])
	h.Write(right[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (t *Tree) emptyRoot() types.Hash {
	h, _ := blake2b.New256(nil)
	h.Write(treeTag)
	h.Write([]byte{byte(t.pool), 0})
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Serialize encodes the tree for persistence: pool, leaf count, then the
// left-edge roots for each set bit of the count, low level first.
func (t *Tree) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(t.pool))
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], t.count)
	buf.Write(u64[:])
	for level := 0; level < maxLevels; level++ {
		if t.count&(1<<level) != 0 {
			buf.Write(t.edge[level][:])
		}
	}
	return buf.Bytes()
}

// Deserialize restores a tree written by Serialize.
func Deserialize(data []byte) (*Tree, error) {
	r := bytes.NewReader(data)

	poolByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("malformed commitment tree: %w", err)
	}
	pool := types.Pool(poolByte)
	if !pool.Valid() {
		return nil, fmt.Errorf("malformed commitment tree: unknown pool %d", poolByte)
	}

	var u64 [8]byte
	if _, err := io.ReadFull(r, u64[:]); err != nil {
		return nil, fmt.Errorf("malformed commitment tree: %w", err)
	}

	t := &Tree{pool: pool, count: binary.LittleEndian.Uint64(u64[:])}
	for level := 0; level < maxLevels; level++ {
		if t.count&(1<<level) == 0 {
			continue
		}
		if _, err := io.ReadFull(r, t.edge[level][:]); err != nil {
			return nil, fmt.Errorf("malformed commitment tree: %w", err)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("malformed commitment tree: %d trailing bytes", r.Len())
	}
	return t, nil
}
