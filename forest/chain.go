// Package forest tracks every candidate chain extending from the finalized
// tip.
//
// Each accepted block becomes one immutable node in an arena keyed by chain
// ID. A node layers its own state delta (created and spent outputs,
// revealed nullifiers, advanced commitment trees) over its parent, so a
// "chain" is simply the parent-linked path from a tip node down to the
// finalized root. Extension allocates a new node and never touches
// ancestors; a reader holding a node keeps a consistent view even after
// the forest prunes or re-roots elsewhere.
package forest

import (
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/commitment"
	"github.com/veraxlabs/verax/store"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// ChainID identifies one node in the forest arena.
type ChainID uint64

// blockDelta is the state contribution of a single block, built once at
// insertion and never mutated.
type blockDelta struct {
	created    map[types.Outpoint]*transaction.UnspentOutput
	spent      map[types.Outpoint]struct{}
	nullifiers map[types.Pool]map[types.Hash]struct{}
	trees      map[types.Pool]*commitment.Tree // post-block states
	roots      map[types.Pool]types.Hash       // post-block roots
	balances   map[types.Pool]int64            // post-block pool balances
}

// Chain is one candidate chain, identified by its tip block. Immutable
// after construction, except the parent link: re-rooting clears it
// atomically once the parent block is finalized, and readers traversing a
// chain concurrently see either state safely.
type Chain struct {
	id       ChainID
	parentID ChainID               // 0 when the parent is the finalized root
	parent   atomic.Pointer[Chain] // set at insertion; nil at the root
	blk      *block.Block
	hash     types.Hash
	height   uint64
	work     *uint256.Int // cumulative from genesis
	seq      uint64       // insertion order, breaks equal-work ties
	delta    *blockDelta
	forest   *Forest
}

func (c *Chain) ID() ChainID         { return c.id }
func (c *Chain) Hash() types.Hash    { return c.hash }
func (c *Chain) Height() uint64      { return c.height }
func (c *Chain) Block() *block.Block { return c.blk }

// Parent returns the chain this one extends, or nil when it sits directly
// on the finalized tip.
func (c *Chain) Parent() *Chain { return c.parent.Load() }

// Work returns the cumulative proof-of-work from genesis through this tip.
func (c *Chain) Work() *uint256.Int { return new(uint256.Int).Set(c.work) }

// Blocks returns the chain's unfinalized blocks in height order, oldest
// first.
func (c *Chain) Blocks() []*block.Block {
	var out []*block.Block
	for node := c; node != nil; node = node.parent.Load() {
		out = append(out, node.blk)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ancestorAt returns the chain node at height, or nil when height is at or
// below the finalized root.
func (c *Chain) ancestorAt(height uint64) *Chain {
	for node := c; node != nil; node = node.parent.Load() {
		if node.height == height {
			return node
		}
		if node.height < height {
			return nil
		}
	}
	return nil
}

// containsNode reports whether other lies on this chain's path.
func (c *Chain) containsNode(other *Chain) bool {
	node := c.ancestorAt(other.height)
	return node != nil && node.id == other.id
}

// LookupOutput resolves an outpoint in this chain's view: the chain's own
// deltas first, then the finalized set. Returns (nil, false) when the
// output never existed in this view or was already spent.
func (c *Chain) LookupOutput(op types.Outpoint) (*transaction.UnspentOutput, bool, error) {
	for node := c; node != nil; node = node.parent.Load() {
		if _, spent := node.delta.spent[op]; spent {
			return nil, false, nil
		}
		if utxo, ok := node.delta.created[op]; ok {
			return utxo, true, nil
		}
	}
	return c.forest.finalized.LookupOutput(op)
}

// HasNullifier reports whether nf was already revealed in this chain's
// view of pool.
func (c *Chain) HasNullifier(pool types.Pool, nf types.Hash) (bool, error) {
	for node := c; node != nil; node = node.parent.Load() {
		if set, ok := node.delta.nullifiers[pool]; ok {
			if _, hit := set[nf]; hit {
				return true, nil
			}
		}
	}
	return c.forest.finalized.HasNullifier(pool, nf)
}

// HasAnchor reports whether root was pool's commitment root at any height
// in this chain's view. Spends prove against historical anchors, so every
// root along the chain and in finalized history is acceptable.
func (c *Chain) HasAnchor(pool types.Pool, root types.Hash) (bool, error) {
	for node := c; node != nil; node = node.parent.Load() {
		if r, ok := node.delta.roots[pool]; ok && r == root {
			return true, nil
		}
	}
	if r, ok := c.forest.rootTreeRoot(pool); ok && r == root {
		return true, nil
	}
	return c.forest.finalized.HasCommitmentRoot(pool, root)
}

// TreeRoot returns pool's commitment root as of this chain's tip.
func (c *Chain) TreeRoot(pool types.Pool) (types.Hash, bool) {
	for node := c; node != nil; node = node.parent.Load() {
		if r, ok := node.delta.roots[pool]; ok {
			return r, true
		}
	}
	return c.forest.rootTreeRoot(pool)
}

// tree returns pool's commitment tree as of this chain's tip. The returned
// tree is shared; callers clone before appending.
func (c *Chain) tree(pool types.Pool) *commitment.Tree {
	for node := c; node != nil; node = node.parent.Load() {
		if t, ok := node.delta.trees[pool]; ok {
			return t
		}
	}
	return c.forest.rootTree(pool)
}

// poolBalance returns pool's value balance as of this chain's tip.
func (c *Chain) poolBalance(pool types.Pool) int64 {
	for node := c; node != nil; node = node.parent.Load() {
		if bal, ok := node.delta.balances[pool]; ok {
			return bal
		}
	}
	return c.forest.rootPoolBalance(pool)
}

// StoreDelta converts this node's delta into the finalized-store form.
func (c *Chain) StoreDelta() *store.Delta {
	d := &store.Delta{
		Created:      c.delta.created,
		Trees:        c.delta.trees,
		PoolBalances: c.delta.balances,
	}
	for op := range c.delta.spent {
		d.Spent = append(d.Spent, op)
	}
	if len(c.delta.nullifiers) > 0 {
		d.Nullifiers = make(map[types.Pool][]types.Hash)
		for pool, set := range c.delta.nullifiers {
			for nf := range set {
				d.Nullifiers[pool] = append(d.Nullifiers[pool], nf)
			}
		}
	}
	return d
}
