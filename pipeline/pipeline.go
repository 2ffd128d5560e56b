// Package pipeline drives candidate blocks from submission to commitment.
//
// Verification runs concurrently across a bounded worker pool, but every
// state mutation (forest extension, finalization, re-rooting) passes
// through one serialization point, so the forest only ever sees blocks in
// a consistent order. Blocks whose parent has not arrived yet park in an
// orphan index and re-enter automatically when the parent commits.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/lightninglabs/neutrino/cache/lru"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/events"
	"github.com/veraxlabs/verax/forest"
	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/mempool"
	"github.com/veraxlabs/verax/monitoring"
	"github.com/veraxlabs/verax/store"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
	"github.com/veraxlabs/verax/verify"
)

// Status is the outcome of a block submission.
type Status int

const (
	// StatusCommitted: the block verified and joined a candidate chain.
	StatusCommitted Status = iota + 1

	// StatusAlreadyKnown: the block is already in the forest or finalized.
	StatusAlreadyKnown

	// StatusPending: the block's parent is unknown; it is parked and will
	// re-enter when the parent commits.
	StatusPending

	// StatusRejected: verification failed, or the engine is halted. The
	// error carries the reason.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusAlreadyKnown:
		return "already_known"
	case StatusPending:
		return "pending"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is what a submission resolves to. Err is set only for
// StatusRejected.
type Result struct {
	Status Status
	Err    error
}

// cachedRejection remembers why a block failed so resubmission of known
// garbage is refused without re-verifying.
type cachedRejection struct {
	code errors.Code
	msg  string
}

func (c *cachedRejection) Size() (uint64, error) { return 1, nil }

const (
	maxOrphansPerParent = 64
	maxOrphansTotal     = 512
)

// CommitPipeline owns all chain-state mutation. Submissions verify in the
// caller's goroutine, gated by a semaphore; commits serialize through
// commitMu.
type CommitPipeline struct {
	params    *config.Params
	finalized *store.FinalizedStore
	forest    *forest.Forest
	full      *verify.FullVerifier
	ckpt      *verify.CheckpointVerifier
	pool      *mempool.Mempool
	bus       *events.EventBus

	verifySem chan struct{}
	rejected  *lru.Cache[types.Hash, *cachedRejection]

	// commitMu is the serialization point: forest extension, best-chain
	// selection, finalization and orphan release all happen under it.
	commitMu   sync.Mutex
	bestTip    types.Hash
	bestHeight uint64

	mu       sync.Mutex
	orphans  map[types.Hash][]*block.Block // parent hash -> waiting blocks
	parked   map[types.Hash]types.Hash     // parked block hash -> its parent
	arrival  []types.Hash                  // parked hashes, oldest first
	inFlight map[types.Hash]struct{}
	haltErr  error
}

// New builds the pipeline. verifyWorkers bounds concurrent block
// verification; rejectCacheSize bounds the remembered-invalid index.
func New(
	params *config.Params,
	finalized *store.FinalizedStore,
	chainForest *forest.Forest,
	full *verify.FullVerifier,
	ckpt *verify.CheckpointVerifier,
	pool *mempool.Mempool,
	bus *events.EventBus,
	verifyWorkers int,
	rejectCacheSize int,
) *CommitPipeline {
	if verifyWorkers <= 0 {
		verifyWorkers = 4
	}
	if rejectCacheSize <= 0 {
		rejectCacheSize = 1024
	}

	rootHeight, rootHash := chainForest.Root()
	p := &CommitPipeline{
		params:     params,
		finalized:  finalized,
		forest:     chainForest,
		full:       full,
		ckpt:       ckpt,
		pool:       pool,
		bus:        bus,
		verifySem:  make(chan struct{}, verifyWorkers),
		rejected:   lru.NewCache[types.Hash, *cachedRejection](uint64(rejectCacheSize)),
		bestTip:    rootHash,
		bestHeight: rootHeight,
		orphans:    make(map[types.Hash][]*block.Block),
		parked:     make(map[types.Hash]types.Hash),
		inFlight:   make(map[types.Hash]struct{}),
	}
	return p
}

// Halted returns the storage error that stopped the engine, if any.
func (p *CommitPipeline) Halted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.haltErr
}

func (p *CommitPipeline) halt(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.haltErr == nil {
		p.haltErr = err
		logx.Error("PIPELINE", fmt.Sprintf("Engine halted: %v", err))
	}
}

// SubmitBlock runs a block through the full ladder: dedup, orphan parking,
// verification and commitment. Resubmitting any block is safe and returns
// a stable outcome: committed blocks report AlreadyKnown, remembered
// failures report the original rejection.
func (p *CommitPipeline) SubmitBlock(blk *block.Block) Result {
	hash := blk.Hash()

	if err := p.Halted(); err != nil {
		return rejected(errors.Storage(err, "engine halted"))
	}

	if cached, err := p.rejected.Get(hash); err == nil {
		return rejected(errors.Consensus(errors.CodeKnownInvalid,
			"block %s previously rejected: %s (%s)", hash.Short(), cached.msg, cached.code))
	}
	if known, res := p.alreadyKnown(hash); known {
		return res
	}

	p.mu.Lock()
	if _, dup := p.inFlight[hash]; dup {
		p.mu.Unlock()
		return Result{Status: StatusPending}
	}
	if _, dup := p.parked[hash]; dup {
		p.mu.Unlock()
		return Result{Status: StatusPending}
	}
	p.inFlight[hash] = struct{}{}
	p.mu.Unlock()

	res := p.process(blk)

	p.mu.Lock()
	delete(p.inFlight, hash)
	p.mu.Unlock()
	return res
}

func (p *CommitPipeline) alreadyKnown(hash types.Hash) (bool, Result) {
	if _, ok := p.forest.NodeByHash(hash); ok {
		return true, Result{Status: StatusAlreadyKnown}
	}
	final, err := p.finalized.IsFinalized(hash)
	if err != nil {
		p.halt(err)
		return true, rejected(err)
	}
	if final {
		return true, Result{Status: StatusAlreadyKnown}
	}
	return false, Result{}
}

// process verifies and commits one block whose hash is marked in flight.
func (p *CommitPipeline) process(blk *block.Block) Result {
	hash := blk.Hash()
	parentHash := blk.Header.ParentHash

	if !p.forest.HasParent(parentHash) {
		final, err := p.finalized.IsFinalized(parentHash)
		if err != nil {
			p.halt(err)
			return rejected(err)
		}
		if final {
			// The parent is finalized history but not the root, so the
			// block forks below the finality depth and can never attach.
			err := errors.Consensus(errors.CodeFinalizedFork,
				"block %s forks from finalized block %s below the finality depth", hash.Short(), parentHash.Short())
			p.cacheRejection(hash, err)
			return rejected(err)
		}
		p.park(blk)
		return Result{Status: StatusPending}
	}

	view, ok := p.forest.View(parentHash)
	if !ok {
		// Parent pruned between the check and the view; the fork lost.
		err := errors.Consensus(errors.CodeFinalizedFork,
			"block %s parent %s pruned by finalization", hash.Short(), parentHash.Short())
		p.cacheRejection(hash, err)
		return rejected(err)
	}

	p.verifySem <- struct{}{}
	start := time.Now()
	var verr error
	height := view.Height() + 1
	if p.ckpt != nil && p.ckpt.Covered(height) {
		verr = p.ckpt.Verify(blk, view)
	} else {
		verr = p.full.VerifyBlock(blk, view)
	}
	monitoring.RecordVerifyDuration(time.Since(start))
	<-p.verifySem

	if verr != nil {
		if errors.IsStorage(verr) {
			p.halt(verr)
			return rejected(verr)
		}
		if errors.IsContextual(verr) {
			// The view moved under us (parent finalized mid-verify).
			return rejected(verr)
		}
		p.cacheRejection(hash, verr)
		p.bus.Publish(events.NewBlockRejected(hash, string(errors.CodeOf(verr)), verr.Error()))
		monitoring.RecordRejectedBlock(string(errors.CodeOf(verr)))
		logx.Warn("PIPELINE", fmt.Sprintf("Rejected block %s: %v", hash.Short(), verr))
		return rejected(verr)
	}

	return p.commit(blk)
}

// commit extends the forest with one verified block, then re-enters any
// blocks that were parked waiting for it. Orphan release runs after the
// commit lock drops, so released blocks verify on the worker semaphore
// like any other submission.
func (p *CommitPipeline) commit(blk *block.Block) Result {
	res := p.commitBlock(blk)
	if res.Status == StatusCommitted {
		p.releaseOrphans(blk.Hash())
	}
	return res
}

// commitBlock is the serialization point. Exactly one goroutine at a time
// extends the forest, updates the best tip and runs finalization.
func (p *CommitPipeline) commitBlock(blk *block.Block) Result {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	hash := blk.Hash()

	node, err := p.forest.Extend(blk)
	if err == forest.ErrAlreadyKnown {
		return Result{Status: StatusAlreadyKnown}
	}
	if err != nil {
		if errors.IsStorage(err) {
			p.halt(err)
			return rejected(err)
		}
		if errors.IsContextual(err) {
			// Parent vanished at the last moment: the verified result is
			// for a chain that lost. Discard without caching; the block
			// itself was never proven invalid.
			return rejected(err)
		}
		p.cacheRejection(hash, err)
		p.bus.Publish(events.NewBlockRejected(hash, string(errors.CodeOf(err)), err.Error()))
		monitoring.RecordRejectedBlock(string(errors.CodeOf(err)))
		logx.Warn("PIPELINE", fmt.Sprintf("Rejected block %s: %v", hash.Short(), err))
		return rejected(err)
	}

	monitoring.IncreaseCommittedBlockCount()
	monitoring.RecordBlockSizeBytes(blk.Size())
	monitoring.RecordTxInBlock(len(blk.Transactions))
	monitoring.SetForestSize(p.forest.Len())

	best := p.forest.BestChain()
	onBest := best != nil && best.Hash() == node.Hash()
	p.bus.Publish(events.NewBlockCommitted(hash, node.Height(), len(blk.Transactions), onBest))

	if best != nil && best.Hash() != p.bestTip {
		extendedOldTip := blk.Header.ParentHash == p.bestTip && best.Hash() == hash
		if !extendedOldTip {
			p.bus.Publish(events.NewChainReorged(p.bestTip, best.Hash(), best.Height()))
			monitoring.IncreaseReorgCount()
			logx.Info("PIPELINE", fmt.Sprintf("Reorg: tip %s -> %s at height %d",
				p.bestTip.Short(), best.Hash().Short(), best.Height()))
			p.recheckMempool(best)
		}
		p.bestTip = best.Hash()
		p.bestHeight = best.Height()
		monitoring.SetTipHeight(best.Height())
	}

	if onBest && p.pool != nil {
		p.pool.RemoveCommitted(blk)
		monitoring.SetMempoolSize(p.pool.Len())
	}

	if err := p.finalize(); err != nil {
		return rejected(err)
	}

	return Result{Status: StatusCommitted}
}

// finalize moves best-chain blocks past the finality depth into the
// durable store, one at a time, oldest first. A storage failure halts the
// engine: retrying could interleave with a partial batch and fork the
// finalized history.
func (p *CommitPipeline) finalize() error {
	for {
		node := p.forest.NextFinalizable()
		if node == nil {
			return nil
		}
		if err := p.finalized.Append(node.Block(), node.Height(), node.StoreDelta()); err != nil {
			p.halt(err)
			return err
		}
		p.forest.Reroot(node)
		p.bus.Publish(events.NewBlockFinalized(node.Hash(), node.Height()))
		monitoring.SetFinalizedHeight(node.Height())
		monitoring.SetForestSize(p.forest.Len())
	}
}

// recheckMempool drops queued transactions that no longer resolve against
// the new best chain after a reorg.
func (p *CommitPipeline) recheckMempool(best *forest.Chain) {
	if p.pool == nil {
		return
	}
	dropped := p.pool.Retain(func(tx *transaction.Transaction) bool {
		for _, in := range tx.Inputs {
			_, ok, err := best.LookupOutput(in.PrevOut)
			if err != nil || !ok {
				return false
			}
		}
		for pool, nfs := range tx.Nullifiers() {
			for _, nf := range nfs {
				seen, err := best.HasNullifier(pool, nf)
				if err != nil || seen {
					return false
				}
			}
		}
		return true
	})
	if dropped > 0 {
		logx.Info("PIPELINE", fmt.Sprintf("Dropped %d mempool transaction(s) invalidated by reorg", dropped))
	}
	monitoring.SetMempoolSize(p.pool.Len())
}

// park stores an orphan block until its parent commits. Parking is bounded
// per parent and across the whole index; once the index is full the
// longest-parked block makes room, so unknown-parent spam cannot grow
// without limit.
func (p *CommitPipeline) park(blk *block.Block) {
	hash := blk.Hash()
	parentHash := blk.Header.ParentHash

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.orphans[parentHash]) >= maxOrphansPerParent {
		logx.Warn("PIPELINE", fmt.Sprintf("Orphan index full for parent %s, dropping block %s",
			parentHash.Short(), hash.Short()))
		return
	}
	for len(p.parked) >= maxOrphansTotal {
		if !p.evictOldestLocked() {
			break
		}
	}
	p.orphans[parentHash] = append(p.orphans[parentHash], blk)
	p.parked[hash] = parentHash
	p.arrival = append(p.arrival, hash)
	monitoring.IncreaseOrphanedBlockCount()
	logx.Debug("PIPELINE", fmt.Sprintf("Parked orphan %s waiting for parent %s", hash.Short(), parentHash.Short()))
}

// evictOldestLocked drops the longest-parked block to make room. Arrival
// entries whose block was already released or dropped are skipped.
func (p *CommitPipeline) evictOldestLocked() bool {
	for len(p.arrival) > 0 {
		victim := p.arrival[0]
		p.arrival = p.arrival[1:]
		parentHash, ok := p.parked[victim]
		if !ok {
			continue
		}
		delete(p.parked, victim)
		waiting := p.orphans[parentHash]
		for i, blk := range waiting {
			if blk.Hash() == victim {
				waiting = append(waiting[:i], waiting[i+1:]...)
				break
			}
		}
		if len(waiting) == 0 {
			delete(p.orphans, parentHash)
		} else {
			p.orphans[parentHash] = waiting
		}
		logx.Warn("PIPELINE", fmt.Sprintf("Orphan index full, evicting oldest parked block %s", victim.Short()))
		return true
	}
	return false
}

// dropWaiters discards every block parked under a rejected parent,
// cascading: once a parent is known invalid, nothing waiting on it can
// ever attach.
func (p *CommitPipeline) dropWaiters(parentHash types.Hash) {
	queue := []types.Hash{parentHash}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		p.mu.Lock()
		waiting := p.orphans[next]
		delete(p.orphans, next)
		for _, blk := range waiting {
			delete(p.parked, blk.Hash())
		}
		p.mu.Unlock()

		for _, blk := range waiting {
			hash := blk.Hash()
			logx.Debug("PIPELINE", fmt.Sprintf("Dropping parked block %s: parent %s rejected",
				hash.Short(), next.Short()))
			queue = append(queue, hash)
		}
	}
}

// releaseOrphans re-enters every block that was waiting for parentHash.
// Each released block runs the normal ladder, so verification is gated by
// the worker semaphore and a committed orphan cascades into its own
// waiters. Must not be called with commitMu held.
func (p *CommitPipeline) releaseOrphans(parentHash types.Hash) {
	p.mu.Lock()
	waiting := p.orphans[parentHash]
	delete(p.orphans, parentHash)
	for _, blk := range waiting {
		delete(p.parked, blk.Hash())
	}
	p.mu.Unlock()

	for _, blk := range waiting {
		hash := blk.Hash()
		logx.Debug("PIPELINE", fmt.Sprintf("Releasing orphan %s", hash.Short()))
		if known, _ := p.alreadyKnown(hash); known {
			continue
		}
		// Skip the in-flight bookkeeping: the orphan was deduplicated when
		// parked, and a racing duplicate submission is settled by Extend.
		res := p.process(blk)
		if res.Status == StatusRejected && res.Err != nil {
			logx.Warn("PIPELINE", fmt.Sprintf("Released orphan %s rejected: %v", hash.Short(), res.Err))
		}
	}
}

// BestView returns the verification view at the current best tip, used for
// mempool admission.
func (p *CommitPipeline) BestView() verify.ChainView {
	best := p.forest.BestChain()
	if best != nil {
		if view, ok := p.forest.View(best.Hash()); ok {
			return view
		}
	}
	_, rootHash := p.forest.Root()
	view, _ := p.forest.View(rootHash)
	return view
}

// BestTip returns the current best chain tip.
func (p *CommitPipeline) BestTip() (uint64, types.Hash) {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	return p.bestHeight, p.bestTip
}

// OrphanCount returns the number of parked blocks.
func (p *CommitPipeline) OrphanCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.parked)
}

func (p *CommitPipeline) cacheRejection(hash types.Hash, err error) {
	_, _ = p.rejected.Put(hash, &cachedRejection{
		code: errors.CodeOf(err),
		msg:  err.Error(),
	})
	p.dropWaiters(hash)
}

func rejected(err error) Result {
	return Result{Status: StatusRejected, Err: err}
}
