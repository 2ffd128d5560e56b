// Package service assembles the engine from its parts and exposes the
// external surface: block and transaction submission, chain queries and
// event subscription.
package service

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/events"
	"github.com/veraxlabs/verax/forest"
	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/mempool"
	"github.com/veraxlabs/verax/monitoring"
	"github.com/veraxlabs/verax/pipeline"
	"github.com/veraxlabs/verax/store"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
	"github.com/veraxlabs/verax/verify"
)

// Options tunes engine construction beyond the consensus parameters.
type Options struct {
	// VerifyWorkers bounds concurrent block verification.
	VerifyWorkers int

	// RejectCacheSize bounds the remembered-invalid block index.
	RejectCacheSize int

	// MempoolMaxTxs bounds the transaction queue.
	MempoolMaxTxs int

	// Proofs overrides the shielded proof checker. Nil selects Groth16
	// with the network's verifying keys, or permissive checking on test
	// networks that carry none.
	Proofs verify.ProofChecker
}

// Engine is the fully assembled validation and chain-state engine.
type Engine struct {
	params    *config.Params
	finalized *store.FinalizedStore
	forest    *forest.Forest
	verifier  *verify.FullVerifier
	pipeline  *pipeline.CommitPipeline
	mempool   *mempool.Mempool
	bus       *events.EventBus
}

// NewEngine opens chain state on provider and wires every component.
func NewEngine(params *config.Params, provider store.Provider, opts Options) (*Engine, error) {
	finalized, err := store.NewFinalizedStore(provider, params)
	if err != nil {
		return nil, fmt.Errorf("open finalized store: %w", err)
	}

	chainForest, err := forest.NewForest(params, finalized)
	if err != nil {
		return nil, fmt.Errorf("build chain forest: %w", err)
	}

	proofs := opts.Proofs
	if proofs == nil {
		proofs = verify.SkipProofs{}
	}

	verifier := verify.NewFullVerifier(params, proofs, opts.VerifyWorkers)
	ckpt := verify.NewCheckpointVerifier(params)

	maxTxs := opts.MempoolMaxTxs
	if maxTxs <= 0 {
		maxTxs = 10_000
	}
	pool := mempool.NewMempool(maxTxs)
	bus := events.NewEventBus()

	pipe := pipeline.New(params, finalized, chainForest, verifier, ckpt, pool, bus,
		opts.VerifyWorkers, opts.RejectCacheSize)

	height, hash, _ := finalized.Tip()
	logx.Info("ENGINE", fmt.Sprintf("Engine up on %s, finalized tip %s at height %d",
		params.Name, hash.Short(), height))
	monitoring.SetFinalizedHeight(height)
	monitoring.SetTipHeight(height)

	return &Engine{
		params:    params,
		finalized: finalized,
		forest:    chainForest,
		verifier:  verifier,
		pipeline:  pipe,
		mempool:   pool,
		bus:       bus,
	}, nil
}

// SubmitBlock feeds one block into the commit pipeline. Safe to call from
// any number of goroutines; resubmission is idempotent.
func (e *Engine) SubmitBlock(blk *block.Block) pipeline.Result {
	return e.pipeline.SubmitBlock(blk)
}

// SubmitTransaction verifies a transaction against the current best chain
// and queues it for inclusion.
func (e *Engine) SubmitTransaction(tx *transaction.Transaction) error {
	if err := e.pipeline.Halted(); err != nil {
		return errors.Storage(err, "engine halted")
	}

	txHash := tx.Hash()
	if e.mempool.Has(txHash) {
		return nil
	}
	if _, included, err := e.finalized.TransactionHeight(txHash); err != nil {
		return err
	} else if included {
		return nil
	}

	if err := e.verifier.VerifyTransaction(tx, e.pipeline.BestView()); err != nil {
		return err
	}
	if err := e.mempool.Add(tx); err != nil {
		return err
	}

	e.bus.Publish(events.NewTransactionAccepted(txHash))
	monitoring.SetMempoolSize(e.mempool.Len())
	return nil
}

// Tip returns the best chain head: height, hash and cumulative work.
func (e *Engine) Tip() (uint64, types.Hash, *uint256.Int) {
	if best := e.forest.BestChain(); best != nil {
		return best.Height(), best.Hash(), best.Work()
	}
	return e.finalized.Tip()
}

// FinalizedTip returns the durable chain head.
func (e *Engine) FinalizedTip() (uint64, types.Hash, *uint256.Int) {
	return e.finalized.Tip()
}

// LookupOutput resolves an outpoint against the best chain.
func (e *Engine) LookupOutput(op types.Outpoint) (*transaction.UnspentOutput, bool, error) {
	return e.pipeline.BestView().LookupOutput(op)
}

// CommitmentRoot returns a pool's accumulator root at a finalized height.
func (e *Engine) CommitmentRoot(pool types.Pool, height uint64) (types.Hash, bool, error) {
	return e.finalized.CommitmentRoot(pool, height)
}

// IsFinalized reports whether the block can no longer reorg. Monotonic.
func (e *Engine) IsFinalized(hash types.Hash) (bool, error) {
	return e.finalized.IsFinalized(hash)
}

// BlockByHash returns a block from the best chain or finalized history.
func (e *Engine) BlockByHash(hash types.Hash) (*block.Block, error) {
	if node, ok := e.forest.NodeByHash(hash); ok {
		return node.Block(), nil
	}
	return e.finalized.BlockByHash(hash)
}

// MempoolLen returns the number of queued transactions.
func (e *Engine) MempoolLen() int { return e.mempool.Len() }

// PendingTransactions returns up to max queued transactions in arrival
// order.
func (e *Engine) PendingTransactions(max int) []*transaction.Transaction {
	return e.mempool.GetBatch(max)
}

// Subscribe registers for engine events.
func (e *Engine) Subscribe() (events.SubscriberID, chan events.EngineEvent) {
	return e.bus.Subscribe()
}

// Unsubscribe drops an event subscription.
func (e *Engine) Unsubscribe(id events.SubscriberID) bool {
	return e.bus.Unsubscribe(id)
}

// Halted returns the storage error that stopped the engine, if any.
func (e *Engine) Halted() error { return e.pipeline.Halted() }

// Close flushes and releases chain state.
func (e *Engine) Close() error {
	return e.finalized.Close()
}
