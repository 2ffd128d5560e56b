package forest

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/commitment"
	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/store"
	"github.com/veraxlabs/verax/types"
)

// ErrAlreadyKnown is returned by Extend when the block hash is already a
// node in the forest. The existing node is returned alongside, so callers
// can treat re-submission as idempotent success.
var ErrAlreadyKnown = fmt.Errorf("block already in forest")

// Forest is the set of candidate chains rooted at the finalized tip. All
// mutation happens through the commit pipeline's single writer; reads may
// come from anywhere.
type Forest struct {
	mu        sync.RWMutex
	params    *config.Params
	finalized *store.FinalizedStore

	nodes  map[ChainID]*Chain
	tips   map[ChainID]*Chain
	byHash map[types.Hash]*Chain

	rootHeight   uint64
	rootHash     types.Hash
	rootWork     *uint256.Int
	rootTrees    map[types.Pool]*commitment.Tree
	rootBalances map[types.Pool]int64

	nextID  ChainID
	nextSeq uint64
}

// NewForest builds an empty forest rooted at the finalized tip.
func NewForest(params *config.Params, finalized *store.FinalizedStore) (*Forest, error) {
	height, hash, work := finalized.Tip()

	f := &Forest{
		params:       params,
		finalized:    finalized,
		nodes:        make(map[ChainID]*Chain),
		tips:         make(map[ChainID]*Chain),
		byHash:       make(map[types.Hash]*Chain),
		rootHeight:   height,
		rootHash:     hash,
		rootWork:     work,
		rootTrees:    make(map[types.Pool]*commitment.Tree),
		rootBalances: make(map[types.Pool]int64),
		nextID:       1,
		nextSeq:      1,
	}

	for _, pool := range types.Pools {
		tree, err := finalized.Tree(pool)
		if err != nil {
			return nil, fmt.Errorf("load %s tree: %w", pool, err)
		}
		f.rootTrees[pool] = tree
		bal, err := finalized.PoolBalance(pool)
		if err != nil {
			return nil, fmt.Errorf("load %s balance: %w", pool, err)
		}
		f.rootBalances[pool] = bal
	}

	return f, nil
}

// Root returns the finalized tip the forest is anchored on.
func (f *Forest) Root() (uint64, types.Hash) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rootHeight, f.rootHash
}

func (f *Forest) rootTree(pool types.Pool) *commitment.Tree {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rootTrees[pool]
}

func (f *Forest) rootTreeRoot(pool types.Pool) (types.Hash, bool) {
	f.mu.RLock()
	tree, ok := f.rootTrees[pool]
	f.mu.RUnlock()
	if !ok {
		return types.Hash{}, false
	}
	return tree.Root(), true
}

func (f *Forest) rootPoolBalance(pool types.Pool) int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rootBalances[pool]
}

// NodeByHash returns the forest node carrying the block hash, if any.
func (f *Forest) NodeByHash(hash types.Hash) (*Chain, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	node, ok := f.byHash[hash]
	return node, ok
}

// HasParent reports whether a block naming parentHash can be attached:
// either to the finalized root or to an existing node.
func (f *Forest) HasParent(parentHash types.Hash) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if parentHash == f.rootHash {
		return true
	}
	_, ok := f.byHash[parentHash]
	return ok
}

// Tips returns a snapshot of all candidate chains.
func (f *Forest) Tips() []*Chain {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Chain, 0, len(f.tips))
	for _, tip := range f.tips {
		out = append(out, tip)
	}
	return out
}

// View returns the verification context for a block extending parentHash:
// the parent chain (nil when extending the root) plus store fallthrough.
// The bool is false when the parent is unknown.
func (f *Forest) View(parentHash types.Hash) (*View, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if parentHash == f.rootHash {
		return &View{forest: f, parent: nil}, true
	}
	node, ok := f.byHash[parentHash]
	if !ok {
		return nil, false
	}
	return &View{forest: f, parent: node}, true
}

// Extend attaches a verified block to the chain ending at its parent hash,
// producing a new immutable chain. When the parent is a tip this extends
// that chain; when it is an interior node or the root, a new fork comes
// into existence. The block's contextual validity (unspent inputs, unseen
// nullifiers, anchor and root continuity, pool turnstile) is checked here
// against exactly this chain's view.
func (f *Forest) Extend(blk *block.Block) (*Chain, error) {
	hash := blk.Hash()

	f.mu.RLock()
	if existing, ok := f.byHash[hash]; ok {
		f.mu.RUnlock()
		return existing, ErrAlreadyKnown
	}
	var parent *Chain
	parentHash := blk.Header.ParentHash
	if parentHash != f.rootHash {
		node, ok := f.byHash[parentHash]
		if !ok {
			f.mu.RUnlock()
			return nil, errors.Contextual(errors.CodeOrphanBlock, "parent %s not in forest", parentHash.Short())
		}
		parent = node
	}
	var height uint64
	if parent != nil {
		height = parent.height + 1
	} else {
		height = f.rootHeight + 1
	}
	f.mu.RUnlock()

	// Delta construction reads only immutable nodes and the finalized
	// store, so it runs outside the lock. The pipeline's single writer is
	// the only caller.
	delta, err := f.applyBlock(parent, blk, height)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byHash[hash]; ok {
		return existing, ErrAlreadyKnown
	}

	parentWork := f.rootWork
	var parentID ChainID
	if parent != nil {
		parentWork = parent.work
		parentID = parent.id
	}

	node := &Chain{
		id:       f.nextID,
		parentID: parentID,
		blk:      blk,
		hash:     hash,
		height:   height,
		work:     new(uint256.Int).Add(parentWork, block.Work(blk.Header.Bits)),
		seq:      f.nextSeq,
		delta:    delta,
		forest:   f,
	}
	node.parent.Store(parent)
	f.nextID++
	f.nextSeq++

	f.nodes[node.id] = node
	f.byHash[hash] = node
	f.tips[node.id] = node
	if parent != nil {
		delete(f.tips, parent.id)
	}

	logx.Debug("FOREST", fmt.Sprintf("Chain %d extended to height %d tip %s work %s",
		node.id, height, hash.Short(), node.work.Dec()))
	return node, nil
}

// BestChain returns the candidate chain with the greatest cumulative work.
// Equal work resolves to the earliest-inserted tip, so selection is
// deterministic regardless of arrival interleaving. Returns nil when the
// forest is empty.
func (f *Forest) BestChain() *Chain {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bestLocked()
}

func (f *Forest) bestLocked() *Chain {
	var best *Chain
	for _, tip := range f.tips {
		if best == nil {
			best = tip
			continue
		}
		switch tip.work.Cmp(best.work) {
		case 1:
			best = tip
		case 0:
			if tip.seq < best.seq {
				best = tip
			}
		}
	}
	return best
}

// NextFinalizable returns the oldest unfinalized block of the best chain
// once the chain's length beyond it exceeds the finality depth, or nil
// when nothing is ready to finalize.
func (f *Forest) NextFinalizable() *Chain {
	f.mu.RLock()
	defer f.mu.RUnlock()

	best := f.bestLocked()
	if best == nil {
		return nil
	}
	if best.height-f.rootHeight <= f.params.FinalityDepth {
		return nil
	}
	return best.ancestorAt(f.rootHeight + 1)
}

// Reroot makes node the new finalized root after its block has been
// appended to the store. Every chain that does not descend from node
// diverged at or below its height and is pruned; node itself leaves the
// arena, and its children reattach directly to the root.
func (f *Forest) Reroot(node *Chain) {
	f.mu.Lock()
	defer f.mu.Unlock()

	survivors := make(map[ChainID]*Chain)
	for id, tip := range f.tips {
		if tip.containsNode(node) {
			survivors[id] = tip
		}
	}

	pruned := len(f.tips) - len(survivors)

	nodes := make(map[ChainID]*Chain)
	byHash := make(map[types.Hash]*Chain)
	for _, tip := range survivors {
		for n := tip; n != nil && n.id != node.id; n = n.parent.Load() {
			nodes[n.id] = n
			byHash[n.hash] = n
		}
	}
	// Children of the new root lose their parent pointer; their lookups
	// now fall through to the finalized store. The pointer is cleared
	// atomically because verification workers may be walking these nodes
	// right now, outside the forest lock.
	for _, n := range nodes {
		if n.parentID == node.id {
			n.parent.Store(nil)
			n.parentID = 0
		}
	}

	f.nodes = nodes
	f.byHash = byHash
	f.tips = survivors

	f.rootHeight = node.height
	f.rootHash = node.hash
	f.rootWork = new(uint256.Int).Set(node.work)
	for pool, tree := range node.delta.trees {
		f.rootTrees[pool] = tree
	}
	for pool, bal := range node.delta.balances {
		f.rootBalances[pool] = bal
	}

	if pruned > 0 {
		logx.Info("FOREST", fmt.Sprintf("Re-rooted at height %d hash %s, pruned %d sibling chain(s)",
			node.height, node.hash.Short(), pruned))
	}
}

// Len returns the number of nodes currently tracked.
func (f *Forest) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.nodes)
}
