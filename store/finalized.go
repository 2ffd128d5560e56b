package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/commitment"
	"github.com/veraxlabs/verax/config"
	enginerr "github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// Delta is the state change one block contributes: the outputs it created,
// the outpoints it spent, the nullifiers it revealed and the commitment
// trees as of the end of the block.
type Delta struct {
	Created    map[types.Outpoint]*transaction.UnspentOutput
	Spent      []types.Outpoint
	Nullifiers map[types.Pool][]types.Hash
	Trees      map[types.Pool]*commitment.Tree

	// PoolBalances is each pool's absolute value balance after this block.
	// The turnstile invariant (never negative) is enforced before the
	// block gets here; the store only records the running value.
	PoolBalances map[types.Pool]int64
}

// tipMeta is the persisted finalized-tip record.
type tipMeta struct {
	Height uint64     `json:"height"`
	Hash   types.Hash `json:"hash"`
	Work   string     `json:"work"` // cumulative work, hex
}

// FinalizedStore is the durable, append-only record of the canonical chain
// beyond reorganization risk. Exactly one writer (the commit pipeline's
// finalization step) calls Append; readers are never blocked by it.
type FinalizedStore struct {
	mu       sync.RWMutex
	provider Provider
	params   *config.Params

	tipHeight uint64
	tipHash   types.Hash
	tipWork   *uint256.Int
}

// NewFinalizedStore opens the finalized state on top of provider,
// bootstrapping the genesis block when the store is empty.
func NewFinalizedStore(provider Provider, params *config.Params) (*FinalizedStore, error) {
	s := &FinalizedStore{provider: provider, params: params}

	raw, err := provider.Get(metaKey(keyTip))
	switch err {
	case nil:
		var tip tipMeta
		if err := json.Unmarshal(raw, &tip); err != nil {
			return nil, fmt.Errorf("corrupt tip metadata: %w", err)
		}
		work, parseErr := uint256.FromHex(tip.Work)
		if parseErr != nil {
			return nil, fmt.Errorf("corrupt tip work: %w", parseErr)
		}
		s.tipHeight, s.tipHash, s.tipWork = tip.Height, tip.Hash, work
		logx.Info("STORE", fmt.Sprintf("Finalized tip at height %d hash %s", tip.Height, tip.Hash.Short()))
		return s, nil
	case ErrNotFound:
		if err := s.bootstrapGenesis(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, enginerr.Storage(err, "read tip metadata")
	}
}

func (s *FinalizedStore) bootstrapGenesis() error {
	genesis := s.params.Genesis
	delta := GenesisDelta(genesis, s.params)

	s.tipWork = uint256.NewInt(0)
	if err := s.appendLocked(genesis, 0, delta); err != nil {
		return fmt.Errorf("bootstrap genesis: %w", err)
	}
	logx.Info("STORE", fmt.Sprintf("Bootstrapped genesis %s", genesis.Hash().Short()))
	return nil
}

// GenesisDelta derives the state contribution of the genesis block: its
// coinbase outputs and fresh commitment trees for every pool active at
// height zero.
func GenesisDelta(genesis *block.Block, params *config.Params) *Delta {
	delta := &Delta{
		Created: make(map[types.Outpoint]*transaction.UnspentOutput),
		Trees:   make(map[types.Pool]*commitment.Tree),
	}
	for _, tx := range genesis.Transactions {
		txHash := tx.Hash()
		for i, out := range tx.Outputs {
			delta.Created[types.Outpoint{TxHash: txHash, Index: uint32(i)}] = &transaction.UnspentOutput{
				Out:      out,
				Height:   0,
				Coinbase: tx.IsCoinbase(),
			}
		}
	}
	for _, pool := range params.RuleSetForHeight(0).ActivePools {
		delta.Trees[pool] = commitment.New(pool)
	}
	return delta
}

// Append writes one finalized block and its state delta atomically. Any
// failure here is unrecoverable for the process: a skipped finalization
// would fork the single linear history.
func (s *FinalizedStore) Append(blk *block.Block, height uint64, delta *Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if height != 0 || s.tipHash != (types.Hash{}) {
		if height != s.tipHeight+1 {
			return fmt.Errorf("finalized store: append height %d does not extend tip %d", height, s.tipHeight)
		}
		if blk.Header.ParentHash != s.tipHash {
			return fmt.Errorf("finalized store: append parent %s does not match tip %s",
				blk.Header.ParentHash.Short(), s.tipHash.Short())
		}
	}
	return s.appendLocked(blk, height, delta)
}

func (s *FinalizedStore) appendLocked(blk *block.Block, height uint64, delta *Delta) error {
	hash := blk.Hash()
	work := new(uint256.Int).Add(s.tipWork, block.Work(blk.Header.Bits))

	ops := []BatchOp{
		{Key: blockKey(hash), Value: blk.Serialize()},
		{Key: heightKey(height), Value: hash[:]},
	}
	for _, tx := range blk.Transactions {
		txHash := tx.Hash()
		ops = append(ops, BatchOp{Key: txHeightKey(txHash), Value: encodeHeight(height)})
	}
	for op, utxo := range delta.Created {
		val, err := json.Marshal(utxo)
		if err != nil {
			return fmt.Errorf("marshal utxo: %w", err)
		}
		ops = append(ops, BatchOp{Key: utxoKey(op), Value: val})
	}
	for _, op := range delta.Spent {
		ops = append(ops, BatchOp{Key: utxoKey(op), Delete: true})
	}
	for pool, nfs := range delta.Nullifiers {
		for _, nf := range nfs {
			ops = append(ops, BatchOp{Key: nullifierKey(pool, nf), Value: encodeHeight(height)})
		}
	}
	for pool, tree := range delta.Trees {
		root := tree.Root()
		ops = append(ops,
			BatchOp{Key: treeKey(pool), Value: tree.Serialize()},
			BatchOp{Key: rootKey(pool, height), Value: root[:]},
			BatchOp{Key: rootIdxKey(pool, root), Value: encodeHeight(height)},
		)
	}

	for pool, bal := range delta.PoolBalances {
		ops = append(ops, BatchOp{Key: poolBalanceKey(pool), Value: encodeInt64(bal)})
	}

	tip := tipMeta{Height: height, Hash: hash, Work: work.Hex()}
	tipVal, err := json.Marshal(tip)
	if err != nil {
		return fmt.Errorf("marshal tip: %w", err)
	}
	ops = append(ops, BatchOp{Key: metaKey(keyTip), Value: tipVal})

	if err := s.provider.WriteBatch(ops); err != nil {
		return enginerr.Storage(err, "append block %s at height %d", hash.Short(), height)
	}

	s.tipHeight, s.tipHash, s.tipWork = height, hash, work
	logx.Info("STORE", fmt.Sprintf("Finalized block %s at height %d", hash.Short(), height))
	return nil
}

// Tip returns the finalized chain head and the cumulative work up to it.
func (s *FinalizedStore) Tip() (uint64, types.Hash, *uint256.Int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tipHeight, s.tipHash, new(uint256.Int).Set(s.tipWork)
}

// LookupOutput returns the unspent output for op, if the finalized set
// still holds it.
func (s *FinalizedStore) LookupOutput(op types.Outpoint) (*transaction.UnspentOutput, bool, error) {
	raw, err := s.provider.Get(utxoKey(op))
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, enginerr.Storage(err, "lookup output %s", op)
	}
	var utxo transaction.UnspentOutput
	if err := json.Unmarshal(raw, &utxo); err != nil {
		return nil, false, fmt.Errorf("corrupt utxo %s: %w", op, err)
	}
	return &utxo, true, nil
}

// HasNullifier reports whether nf was revealed in finalized history.
func (s *FinalizedStore) HasNullifier(pool types.Pool, nf types.Hash) (bool, error) {
	ok, err := s.provider.Has(nullifierKey(pool, nf))
	if err != nil {
		return false, enginerr.Storage(err, "lookup nullifier")
	}
	return ok, nil
}

// CommitmentRoot returns pool's accumulator root as of height.
func (s *FinalizedStore) CommitmentRoot(pool types.Pool, height uint64) (types.Hash, bool, error) {
	raw, err := s.provider.Get(rootKey(pool, height))
	if err == ErrNotFound {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, enginerr.Storage(err, "lookup commitment root")
	}
	root, convErr := types.HashFromBytes(raw)
	if convErr != nil {
		return types.Hash{}, false, fmt.Errorf("corrupt commitment root: %w", convErr)
	}
	return root, true, nil
}

// HasCommitmentRoot reports whether root ever was pool's accumulator root
// in finalized history. Used for anchor validity.
func (s *FinalizedStore) HasCommitmentRoot(pool types.Pool, root types.Hash) (bool, error) {
	ok, err := s.provider.Has(rootIdxKey(pool, root))
	if err != nil {
		return false, enginerr.Storage(err, "lookup commitment root index")
	}
	return ok, nil
}

// Tree returns pool's commitment tree as of the finalized tip.
func (s *FinalizedStore) Tree(pool types.Pool) (*commitment.Tree, error) {
	raw, err := s.provider.Get(treeKey(pool))
	if err == ErrNotFound {
		return commitment.New(pool), nil
	}
	if err != nil {
		return nil, enginerr.Storage(err, "load commitment tree")
	}
	return commitment.Deserialize(raw)
}

// PoolBalance returns pool's value balance as of the finalized tip.
func (s *FinalizedStore) PoolBalance(pool types.Pool) (int64, error) {
	raw, err := s.provider.Get(poolBalanceKey(pool))
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, enginerr.Storage(err, "lookup pool balance")
	}
	return decodeInt64(raw), nil
}

// BlockByHash returns a finalized block, or nil when hash is not
// finalized.
func (s *FinalizedStore) BlockByHash(hash types.Hash) (*block.Block, error) {
	raw, err := s.provider.Get(blockKey(hash))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, enginerr.Storage(err, "read block %s", hash.Short())
	}
	return block.Deserialize(raw)
}

// BlockByHeight returns the finalized block at height, or nil above the
// tip.
func (s *FinalizedStore) BlockByHeight(height uint64) (*block.Block, error) {
	raw, err := s.provider.Get(heightKey(height))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, enginerr.Storage(err, "read height index %d", height)
	}
	hash, convErr := types.HashFromBytes(raw)
	if convErr != nil {
		return nil, fmt.Errorf("corrupt height index %d: %w", height, convErr)
	}
	return s.BlockByHash(hash)
}

// IsFinalized reports whether the block hash is part of finalized history.
// Monotonic: once true it stays true forever.
func (s *FinalizedStore) IsFinalized(hash types.Hash) (bool, error) {
	ok, err := s.provider.Has(blockKey(hash))
	if err != nil {
		return false, enginerr.Storage(err, "lookup block %s", hash.Short())
	}
	return ok, nil
}

// TransactionHeight returns the finalized height that included the
// transaction, if any.
func (s *FinalizedStore) TransactionHeight(txHash types.Hash) (uint64, bool, error) {
	raw, err := s.provider.Get(txHeightKey(txHash))
	if err == ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, enginerr.Storage(err, "lookup transaction %s", txHash.Short())
	}
	return decodeHeight(raw), true, nil
}

// Close releases the underlying provider.
func (s *FinalizedStore) Close() error {
	return s.provider.Close()
}
