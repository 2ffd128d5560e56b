package forest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/commitment"
	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/store"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

func newTestForest(t *testing.T) (*Forest, *store.FinalizedStore, *config.Params) {
	t.Helper()
	params := config.TestParams()
	finalized, err := store.NewFinalizedStore(store.NewMemoryProvider(), params)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	f, err := NewForest(params, finalized)
	if err != nil {
		t.Fatalf("build forest: %v", err)
	}
	return f, finalized, params
}

func coinbaseAt(height uint64, tag string) *transaction.Transaction {
	return &transaction.Transaction{
		Version: 1,
		Outputs: []transaction.TxOut{{
			Value:      50 * 100_000_000,
			KeyAlg:     transaction.KeyAlgSecp256k1,
			PubKeyHash: transaction.PubKeyDigest([]byte(fmt.Sprintf("miner-%d-%s", height, tag))),
		}},
	}
}

// buildOn assembles a block extending parent (nil = the finalized root)
// with a fresh coinbase plus txs, computing the pool roots the header must
// declare. Forest tests bypass the verifier, so no proof-of-work grinding.
func buildOn(f *Forest, parent *Chain, tag string, txs ...*transaction.Transaction) *block.Block {
	var height uint64
	var parentHash types.Hash
	if parent != nil {
		height = parent.height + 1
		parentHash = parent.hash
	} else {
		rootHeight, rootHash := f.Root()
		height = rootHeight + 1
		parentHash = rootHash
	}

	all := append([]*transaction.Transaction{coinbaseAt(height, tag)}, txs...)

	blk := &block.Block{
		Header: block.Header{
			Version:    1,
			ParentHash: parentHash,
			Timestamp:  1708300800 + int64(height)*75,
			Bits:       0x207fffff,
		},
		Transactions: all,
	}
	blk.Header.MerkleRoot = block.MerkleRoot(blk.TxHashes())

	rules := f.params.RuleSetForHeight(height)
	for _, pool := range rules.ActivePools {
		var tree *commitment.Tree
		if parent != nil {
			tree = parent.tree(pool).Clone()
		} else {
			tree = f.rootTree(pool).Clone()
		}
		for _, tx := range all {
			for _, b := range tx.Bundles {
				if b.Pool != pool {
					continue
				}
				for _, out := range b.Outputs {
					tree.Append(out.Commitment)
				}
			}
		}
		blk.Header.PoolRoots = append(blk.Header.PoolRoots, block.PoolRoot{Pool: pool, Root: tree.Root()})
	}
	return blk
}

func mustExtend(t *testing.T, f *Forest, parent *Chain, tag string, txs ...*transaction.Transaction) *Chain {
	t.Helper()
	node, err := f.Extend(buildOn(f, parent, tag, txs...))
	if err != nil {
		t.Fatalf("extend %s: %v", tag, err)
	}
	return node
}

func spendTx(prev types.Outpoint) *transaction.Transaction {
	return &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: prev}},
		Outputs: []transaction.TxOut{{
			Value:      1000,
			KeyAlg:     transaction.KeyAlgSecp256k1,
			PubKeyHash: transaction.PubKeyDigest([]byte("dest")),
		}},
	}
}

func TestExtendLinearChain(t *testing.T) {
	f, _, _ := newTestForest(t)

	n1 := mustExtend(t, f, nil, "a")
	n2 := mustExtend(t, f, n1, "a")
	n3 := mustExtend(t, f, n2, "a")

	best := f.BestChain()
	if best == nil || best.Hash() != n3.Hash() {
		t.Fatal("best chain should end at the last extension")
	}
	if best.Height() != 3 {
		t.Errorf("best height %d, want 3", best.Height())
	}
	if len(f.Tips()) != 1 {
		t.Errorf("tips %d, want 1", len(f.Tips()))
	}
	if got := len(best.Blocks()); got != 3 {
		t.Errorf("unfinalized blocks %d, want 3", got)
	}
}

func TestExtendDuplicate(t *testing.T) {
	f, _, _ := newTestForest(t)
	blk := buildOn(f, nil, "a")

	first, err := f.Extend(blk)
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.Extend(blk)
	if err != ErrAlreadyKnown {
		t.Fatalf("expected ErrAlreadyKnown, got %v", err)
	}
	if again.ID() != first.ID() {
		t.Error("duplicate extension should return the existing node")
	}
}

func TestExtendUnknownParent(t *testing.T) {
	f, _, _ := newTestForest(t)
	blk := buildOn(f, nil, "a")
	blk.Header.ParentHash = types.Hash{0xde, 0xad}

	_, err := f.Extend(blk)
	if !errors.IsContextual(err) || errors.CodeOf(err) != errors.CodeOrphanBlock {
		t.Fatalf("expected contextual orphan error, got %v", err)
	}
}

func TestDoubleSpendOnSameChain(t *testing.T) {
	f, _, _ := newTestForest(t)

	n1 := mustExtend(t, f, nil, "a")
	cb := n1.Block().Transactions[0]
	prev := types.Outpoint{TxHash: cb.Hash(), Index: 0}

	n2 := mustExtend(t, f, n1, "a", spendTx(prev))

	_, err := f.Extend(buildOn(f, n2, "a", spendTx(prev)))
	if errors.CodeOf(err) != errors.CodeDoubleSpend {
		t.Fatalf("expected double spend, got %v", err)
	}
}

func TestDoubleSpendWithinBlock(t *testing.T) {
	f, _, _ := newTestForest(t)

	n1 := mustExtend(t, f, nil, "a")
	cb := n1.Block().Transactions[0]
	prev := types.Outpoint{TxHash: cb.Hash(), Index: 0}

	tx1 := spendTx(prev)
	tx2 := spendTx(prev)
	tx2.Outputs[0].Value = 2000 // distinct hash, same outpoint

	_, err := f.Extend(buildOn(f, n1, "a", tx1, tx2))
	if errors.CodeOf(err) != errors.CodeDoubleSpend {
		t.Fatalf("expected double spend, got %v", err)
	}
}

func TestSpendOnSiblingForkIsIndependent(t *testing.T) {
	f, _, _ := newTestForest(t)

	n1 := mustExtend(t, f, nil, "a")
	cb := n1.Block().Transactions[0]
	prev := types.Outpoint{TxHash: cb.Hash(), Index: 0}

	// Spend the output on two competing children of n1: both are valid,
	// each on its own chain.
	mustExtend(t, f, n1, "left", spendTx(prev))
	mustExtend(t, f, n1, "right", spendTx(prev))

	if len(f.Tips()) != 2 {
		t.Fatalf("tips %d, want 2", len(f.Tips()))
	}
}

func TestUnknownOutput(t *testing.T) {
	f, _, _ := newTestForest(t)
	_, err := f.Extend(buildOn(f, nil, "a", spendTx(types.Outpoint{TxHash: types.Hash{0xff}})))
	if errors.CodeOf(err) != errors.CodeUnknownOutput {
		t.Fatalf("expected unknown output, got %v", err)
	}
}

func TestChainedSpendWithinBlock(t *testing.T) {
	f, _, _ := newTestForest(t)

	n1 := mustExtend(t, f, nil, "a")
	cb := n1.Block().Transactions[0]

	tx1 := spendTx(types.Outpoint{TxHash: cb.Hash(), Index: 0})
	tx2 := spendTx(types.Outpoint{TxHash: tx1.Hash(), Index: 0})

	// tx2 spends tx1's output created earlier in the same block.
	mustExtend(t, f, n1, "a", tx1, tx2)
}

func TestEqualWorkTieBreakBySubmissionOrder(t *testing.T) {
	f, _, _ := newTestForest(t)

	first := mustExtend(t, f, nil, "first")
	mustExtend(t, f, nil, "second")

	best := f.BestChain()
	if best.Hash() != first.Hash() {
		t.Fatal("equal work must resolve to the earlier submission")
	}

	// A longer fork overtakes regardless of insertion order.
	tips := f.Tips()
	var other *Chain
	for _, tip := range tips {
		if tip.Hash() != first.Hash() {
			other = tip
		}
	}
	grown := mustExtend(t, f, other, "second")
	if f.BestChain().Hash() != grown.Hash() {
		t.Fatal("more cumulative work must win")
	}
}

func TestNullifierUniquenessOnChain(t *testing.T) {
	f, _, _ := newTestForest(t)

	anchor := f.rootTree(types.PoolSprout).Root()
	shielded := func(nf types.Hash) *transaction.Transaction {
		return &transaction.Transaction{
			Version: 1,
			Bundles: []transaction.Bundle{{
				Pool: types.PoolSprout,
				Spends: []transaction.Spend{{
					Nullifier: nf,
					Anchor:    anchor,
					Proof:     []byte{1},
				}},
			}},
		}
	}

	// Shield some value first so the unshielding spend has balance. A
	// negative value balance moves transparent value into the pool.
	shieldTx := &transaction.Transaction{
		Version: 1,
		Bundles: []transaction.Bundle{{
			Pool:         types.PoolSprout,
			ValueBalance: -10_000,
			Outputs:      []transaction.Output{{Commitment: types.Hash{0xc1}, Proof: []byte{1}}},
		}},
	}
	n1 := mustExtend(t, f, nil, "a", shieldTx)

	nf := types.Hash{0xaa}
	n2 := mustExtend(t, f, n1, "a", shielded(nf))

	_, err := f.Extend(buildOn(f, n2, "a", shielded(nf)))
	if errors.CodeOf(err) != errors.CodeDuplicateNullifier {
		t.Fatalf("expected duplicate nullifier, got %v", err)
	}
}

func TestBadAnchor(t *testing.T) {
	f, _, _ := newTestForest(t)

	tx := &transaction.Transaction{
		Version: 1,
		Bundles: []transaction.Bundle{{
			Pool: types.PoolSprout,
			Spends: []transaction.Spend{{
				Nullifier: types.Hash{1},
				Anchor:    types.Hash{0xba, 0xd0},
				Proof:     []byte{1},
			}},
		}},
	}
	_, err := f.Extend(buildOn(f, nil, "a", tx))
	if errors.CodeOf(err) != errors.CodeBadAnchor {
		t.Fatalf("expected bad anchor, got %v", err)
	}
}

func TestPoolTurnstile(t *testing.T) {
	f, _, _ := newTestForest(t)

	shield := &transaction.Transaction{
		Version: 1,
		Bundles: []transaction.Bundle{{
			Pool:         types.PoolSprout,
			ValueBalance: -100,
			Outputs:      []transaction.Output{{Commitment: types.Hash{0xc1}, Proof: []byte{1}}},
		}},
	}
	n1 := mustExtend(t, f, nil, "a", shield)

	// Unshielding more than the pool ever received must fail.
	drain := &transaction.Transaction{
		Version: 1,
		Bundles: []transaction.Bundle{{
			Pool:         types.PoolSprout,
			ValueBalance: 150,
			Spends: []transaction.Spend{{
				Nullifier: types.Hash{2},
				Anchor:    n1.Block().Header.PoolRoots[0].Root,
				Proof:     []byte{1},
			}},
		}},
	}
	_, err := f.Extend(buildOn(f, n1, "a", drain))
	if errors.CodeOf(err) != errors.CodePoolExhausted {
		t.Fatalf("expected pool exhausted, got %v", err)
	}

	// Unshielding exactly the shielded amount is fine.
	drain.Bundles[0].ValueBalance = 100
	mustExtend(t, f, n1, "a", drain)
}

func TestBadCommitmentRoot(t *testing.T) {
	f, _, _ := newTestForest(t)

	blk := buildOn(f, nil, "a")
	blk.Header.PoolRoots[0].Root[0] ^= 1

	_, err := f.Extend(blk)
	if errors.CodeOf(err) != errors.CodeBadCommitmentRoot {
		t.Fatalf("expected bad commitment root, got %v", err)
	}
}

func TestMissingPoolRoot(t *testing.T) {
	f, _, _ := newTestForest(t)

	blk := buildOn(f, nil, "a")
	blk.Header.PoolRoots = nil

	_, err := f.Extend(blk)
	if errors.CodeOf(err) != errors.CodeBadCommitmentRoot {
		t.Fatalf("expected bad commitment root, got %v", err)
	}
}

func TestNextFinalizableAndReroot(t *testing.T) {
	f, finalized, params := newTestForest(t)
	params.FinalityDepth = 2

	n1 := mustExtend(t, f, nil, "main")
	sibling := mustExtend(t, f, nil, "fork")
	n2 := mustExtend(t, f, n1, "main")

	if f.NextFinalizable() != nil {
		t.Fatal("nothing should finalize at depth 2 with best height 2")
	}

	n3 := mustExtend(t, f, n2, "main")
	ready := f.NextFinalizable()
	if ready == nil || ready.ID() != n1.ID() {
		t.Fatalf("expected n1 to become finalizable")
	}

	if err := finalized.Append(ready.Block(), ready.Height(), ready.StoreDelta()); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Reroot(ready)

	rootHeight, rootHash := f.Root()
	if rootHeight != 1 || rootHash != n1.Hash() {
		t.Fatalf("root at %d/%s, want 1/%s", rootHeight, rootHash.Short(), n1.Hash().Short())
	}
	if _, ok := f.NodeByHash(sibling.Hash()); ok {
		t.Error("sibling fork must be pruned at re-root")
	}
	if _, ok := f.NodeByHash(n3.Hash()); !ok {
		t.Error("descendants of the new root must survive")
	}
	if len(f.Tips()) != 1 {
		t.Errorf("tips %d, want 1", len(f.Tips()))
	}

	// The surviving chain still resolves state created before the root
	// moved, now through the finalized store.
	cb := n1.Block().Transactions[0]
	utxo, ok, err := f.BestChain().LookupOutput(types.Outpoint{TxHash: cb.Hash(), Index: 0})
	if err != nil || !ok {
		t.Fatalf("lookup through finalized fallthrough failed: %v ok=%v", err, ok)
	}
	if !utxo.Coinbase {
		t.Error("expected the coinbase output")
	}
}

func TestConcurrentReadsDuringReroot(t *testing.T) {
	f, finalized, params := newTestForest(t)
	params.FinalityDepth = 1

	n1 := mustExtend(t, f, nil, "main")
	n2 := mustExtend(t, f, n1, "main")
	n3 := mustExtend(t, f, n2, "main")
	tip := mustExtend(t, f, n3, "main")

	cb := n1.Block().Transactions[0]
	op := types.Outpoint{TxHash: cb.Hash(), Index: 0}

	// Readers walk the chain from the tip while finalization clears parent
	// pointers underneath them. Run with -race this guards the handoff.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, ok, err := tip.LookupOutput(op); err != nil || !ok {
					t.Errorf("lookup failed mid-finalization: %v ok=%v", err, ok)
					return
				}
				if seen, err := tip.HasNullifier(types.PoolSprout, types.Hash{0xaa}); err != nil || seen {
					t.Errorf("nullifier check failed mid-finalization: %v seen=%v", err, seen)
					return
				}
			}
		}()
	}

	for {
		node := f.NextFinalizable()
		if node == nil {
			break
		}
		if err := finalized.Append(node.Block(), node.Height(), node.StoreDelta()); err != nil {
			t.Fatalf("append: %v", err)
		}
		f.Reroot(node)
	}
	close(done)
	wg.Wait()

	rootHeight, _ := f.Root()
	if rootHeight != 3 {
		t.Fatalf("root height %d, want 3", rootHeight)
	}
	// The tip still resolves the now-finalized coinbase through the store
	// fallthrough.
	if _, ok, err := tip.LookupOutput(op); err != nil || !ok {
		t.Fatalf("lookup after re-root: %v ok=%v", err, ok)
	}
}

func TestViewHeadersBack(t *testing.T) {
	f, _, _ := newTestForest(t)

	n1 := mustExtend(t, f, nil, "a")
	n2 := mustExtend(t, f, n1, "a")

	view, ok := f.View(n2.Hash())
	if !ok {
		t.Fatal("view on known tip")
	}
	headers, err := view.HeadersBack(10)
	if err != nil {
		t.Fatal(err)
	}
	// Two forest nodes plus genesis from the finalized store.
	if len(headers) != 3 {
		t.Fatalf("headers %d, want 3", len(headers))
	}
	for i := 1; i < len(headers); i++ {
		if headers[i].ParentHash != headers[i-1].Hash() {
			t.Fatalf("headers not oldest-first linked at %d", i)
		}
	}
	if headers[len(headers)-1].Hash() != n2.Hash() {
		t.Error("last header should be the view tip")
	}

	if view.Height() != 2 || view.TipHash() != n2.Hash() {
		t.Error("view tip mismatch")
	}
}
