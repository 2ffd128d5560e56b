package forest

import (
	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/commitment"
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

type outpointState int

const (
	opUnknown outpointState = iota
	opUnspent
	opSpent
)

// resolveOutpoint distinguishes an unspent output from one this chain
// already spent and from one that never existed in this view. The
// finalized store deletes spent outputs, so deep-history spends report
// unknown; both terminal states reject a block the same way.
func (c *Chain) resolveOutpoint(op types.Outpoint) (*transaction.UnspentOutput, outpointState, error) {
	for node := c; node != nil; node = node.parent.Load() {
		if _, spent := node.delta.spent[op]; spent {
			return nil, opSpent, nil
		}
		if utxo, ok := node.delta.created[op]; ok {
			return utxo, opUnspent, nil
		}
	}
	utxo, ok, err := c.forest.finalized.LookupOutput(op)
	if err != nil {
		return nil, opUnknown, err
	}
	if !ok {
		return nil, opUnknown, nil
	}
	return utxo, opUnspent, nil
}

// applyBlock replays blk's transactions in order on top of parent's view
// and produces the block's delta. This is where every chain-dependent
// check lives: output existence and unspentness, nullifier uniqueness,
// anchor validity, pool activation, the shielded turnstile, and the
// header's commitment-root continuity.
func (f *Forest) applyBlock(parent *Chain, blk *block.Block, height uint64) (*blockDelta, error) {
	rules := f.params.RuleSetForHeight(height)

	delta := &blockDelta{
		created:    make(map[types.Outpoint]*transaction.UnspentOutput),
		spent:      make(map[types.Outpoint]struct{}),
		nullifiers: make(map[types.Pool]map[types.Hash]struct{}),
		trees:      make(map[types.Pool]*commitment.Tree),
		roots:      make(map[types.Pool]types.Hash),
		balances:   make(map[types.Pool]int64),
	}

	resolve := func(op types.Outpoint) (*transaction.UnspentOutput, outpointState, error) {
		if _, spent := delta.spent[op]; spent {
			return nil, opSpent, nil
		}
		if utxo, ok := delta.created[op]; ok {
			return utxo, opUnspent, nil
		}
		if parent != nil {
			return parent.resolveOutpoint(op)
		}
		utxo, ok, err := f.finalized.LookupOutput(op)
		if err != nil {
			return nil, opUnknown, err
		}
		if !ok {
			return nil, opUnknown, nil
		}
		return utxo, opUnspent, nil
	}

	hasNullifier := func(pool types.Pool, nf types.Hash) (bool, error) {
		if set, ok := delta.nullifiers[pool]; ok {
			if _, hit := set[nf]; hit {
				return true, nil
			}
		}
		if parent != nil {
			return parent.HasNullifier(pool, nf)
		}
		return f.finalized.HasNullifier(pool, nf)
	}

	hasAnchor := func(pool types.Pool, root types.Hash) (bool, error) {
		if parent != nil {
			return parent.HasAnchor(pool, root)
		}
		if r, ok := f.rootTreeRoot(pool); ok && r == root {
			return true, nil
		}
		return f.finalized.HasCommitmentRoot(pool, root)
	}

	poolBalance := func(pool types.Pool) int64 {
		if bal, ok := delta.balances[pool]; ok {
			return bal
		}
		if parent != nil {
			return parent.poolBalance(pool)
		}
		return f.rootPoolBalance(pool)
	}

	for _, tx := range blk.Transactions {
		txHash := tx.Hash()

		for _, in := range tx.Inputs {
			_, state, err := resolve(in.PrevOut)
			if err != nil {
				return nil, err
			}
			switch state {
			case opSpent:
				return nil, errors.Consensus(errors.CodeDoubleSpend,
					"tx %s spends %s twice on this chain", txHash.Short(), in.PrevOut)
			case opUnknown:
				return nil, errors.Consensus(errors.CodeUnknownOutput,
					"tx %s spends unknown output %s", txHash.Short(), in.PrevOut)
			}
			delta.spent[in.PrevOut] = struct{}{}
		}

		for _, bundle := range tx.Bundles {
			if !rules.PoolActive(bundle.Pool) {
				return nil, errors.Consensus(errors.CodeRuleSetViolation,
					"tx %s uses pool %s before activation", txHash.Short(), bundle.Pool)
			}

			for _, sp := range bundle.Spends {
				seen, err := hasNullifier(bundle.Pool, sp.Nullifier)
				if err != nil {
					return nil, err
				}
				if seen {
					return nil, errors.Consensus(errors.CodeDuplicateNullifier,
						"tx %s reuses %s nullifier %s", txHash.Short(), bundle.Pool, sp.Nullifier.Short())
				}
				ok, err := hasAnchor(bundle.Pool, sp.Anchor)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, errors.Consensus(errors.CodeBadAnchor,
						"tx %s proves against unknown %s anchor %s", txHash.Short(), bundle.Pool, sp.Anchor.Short())
				}
				set, ok := delta.nullifiers[bundle.Pool]
				if !ok {
					set = make(map[types.Hash]struct{})
					delta.nullifiers[bundle.Pool] = set
				}
				set[sp.Nullifier] = struct{}{}
			}

			if len(bundle.Outputs) > 0 {
				tree, ok := delta.trees[bundle.Pool]
				if !ok {
					var base *commitment.Tree
					if parent != nil {
						base = parent.tree(bundle.Pool)
					} else {
						base = f.rootTree(bundle.Pool)
					}
					tree = base.Clone()
					delta.trees[bundle.Pool] = tree
				}
				for _, out := range bundle.Outputs {
					tree.Append(out.Commitment)
				}
			}

			// Turnstile: a pool can never pay out more value than ever
			// flowed into it along this chain.
			bal := poolBalance(bundle.Pool) - bundle.ValueBalance
			if bal < 0 {
				return nil, errors.Consensus(errors.CodePoolExhausted,
					"tx %s drains pool %s below zero", txHash.Short(), bundle.Pool)
			}
			delta.balances[bundle.Pool] = bal
		}

		for i, out := range tx.Outputs {
			delta.created[types.Outpoint{TxHash: txHash, Index: uint32(i)}] = &transaction.UnspentOutput{
				Out:      out,
				Height:   height,
				Coinbase: tx.IsCoinbase(),
			}
		}
	}

	// Root continuity: the header must declare the post-block root of
	// every active pool, and the declared roots must match what applying
	// the block actually produced.
	for _, pool := range rules.ActivePools {
		var computed types.Hash
		if tree, ok := delta.trees[pool]; ok {
			computed = tree.Root()
		} else if parent != nil {
			root, ok := parent.TreeRoot(pool)
			if !ok {
				root = commitment.New(pool).Root()
			}
			computed = root
		} else if root, ok := f.rootTreeRoot(pool); ok {
			computed = root
		} else {
			computed = commitment.New(pool).Root()
		}
		delta.roots[pool] = computed

		declared, ok := blk.Header.PoolRoot(pool)
		if !ok {
			return nil, errors.Consensus(errors.CodeBadCommitmentRoot,
				"header missing %s commitment root", pool)
		}
		if declared != computed {
			return nil, errors.Consensus(errors.CodeBadCommitmentRoot,
				"header %s root %s does not match computed %s", pool, declared.Short(), computed.Short())
		}
	}
	if len(blk.Header.PoolRoots) != len(rules.ActivePools) {
		return nil, errors.Consensus(errors.CodeBadCommitmentRoot,
			"header declares %d pool roots, rule set has %d active pools",
			len(blk.Header.PoolRoots), len(rules.ActivePools))
	}

	return delta, nil
}
