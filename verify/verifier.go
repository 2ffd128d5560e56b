package verify

import (
	"crypto/ed25519"
	"runtime"
	"sync"
	"time"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// ChainView is the read-only context a block is verified against: the
// chain it claims to extend, frozen at the parent. The forest hands these
// out; they stay valid even while other blocks commit.
type ChainView interface {
	// Height of the view's tip. The candidate block lands at Height()+1.
	Height() uint64

	// TipHash of the view's tip; must equal the candidate's parent hash.
	TipHash() types.Hash

	// HeadersBack returns up to count ancestor headers ending at the tip,
	// oldest first.
	HeadersBack(count int) ([]*block.Header, error)

	// LookupOutput resolves a transparent outpoint to its unspent output.
	LookupOutput(op types.Outpoint) (*transaction.UnspentOutput, bool, error)
}

// FullVerifier runs the complete validation ladder on candidate blocks:
// structure, proof of work, timestamps, rule-set conformance, value
// balance, then signatures and shielded proofs in parallel. It holds no
// chain state of its own; everything contextual comes through the view.
type FullVerifier struct {
	params  *config.Params
	proofs  ProofChecker
	workers int

	// Now is swappable for timestamp tests.
	Now func() time.Time
}

// NewFullVerifier builds a verifier. workers bounds the goroutines used
// for the signature and proof phase; zero means one per CPU.
func NewFullVerifier(params *config.Params, proofs ProofChecker, workers int) *FullVerifier {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &FullVerifier{
		params:  params,
		proofs:  proofs,
		workers: workers,
		Now:     time.Now,
	}
}

// CheckBlockStructure verifies everything about a block that needs no
// chain context: size, transaction placement, the Merkle binding and each
// transaction's own shape. Shared with the checkpoint verifier.
func CheckBlockStructure(blk *block.Block) error {
	if len(blk.Transactions) == 0 {
		return errors.Structural(errors.CodeEmptyBlock, "block has no transactions")
	}
	if size := blk.Size(); size > block.MaxBlockSize {
		return errors.Structural(errors.CodeOversized, "block size %d exceeds %d", size, block.MaxBlockSize)
	}
	if len(blk.Header.Solution) > block.MaxSolutionSize {
		return errors.Structural(errors.CodeBadSolutionSize, "solution size %d exceeds %d", len(blk.Header.Solution), block.MaxSolutionSize)
	}

	hashes := blk.TxHashes()
	seen := make(map[types.Hash]struct{}, len(hashes))
	for i, h := range hashes {
		if _, dup := seen[h]; dup {
			return errors.Structural(errors.CodeDuplicateTx, "transaction %s appears twice", h.Short())
		}
		seen[h] = struct{}{}

		tx := blk.Transactions[i]
		if i == 0 && !tx.IsCoinbase() {
			return errors.Structural(errors.CodeBadCoinbase, "first transaction is not a coinbase")
		}
		if i > 0 && tx.IsCoinbase() {
			return errors.Structural(errors.CodeBadCoinbase, "coinbase at position %d", i)
		}
		if err := tx.CheckStructural(); err != nil {
			return err
		}
	}

	if root := block.MerkleRoot(hashes); root != blk.Header.MerkleRoot {
		return errors.Structural(errors.CodeBadMerkleRoot,
			"header merkle root %s does not cover transactions (%s)", blk.Header.MerkleRoot.Short(), root.Short())
	}
	return nil
}

// VerifyBlock runs every check short of chain-state application. Checks
// run cheapest first so malformed blocks never reach the expensive
// cryptography. A nil return means the block is valid to extend this view;
// whether its chain wins is the forest's business.
func (v *FullVerifier) VerifyBlock(blk *block.Block, view ChainView) error {
	if err := CheckBlockStructure(blk); err != nil {
		return err
	}

	if blk.Header.ParentHash != view.TipHash() {
		return errors.Contextual(errors.CodeOrphanBlock,
			"block parent %s does not match view tip %s", blk.Header.ParentHash.Short(), view.TipHash().Short())
	}
	height := view.Height() + 1
	rules := v.params.RuleSetForHeight(height)

	span := v.params.AveragingWindow
	if v.params.MedianTimeSpan > span {
		span = v.params.MedianTimeSpan
	}
	headers, err := view.HeadersBack(span)
	if err != nil {
		return err
	}

	if want := NextWorkRequired(headers, v.params); blk.Header.Bits != want {
		return errors.Consensus(errors.CodeBadDifficulty,
			"header bits %08x, required %08x at height %d", blk.Header.Bits, want, height)
	}
	target, ok := block.CompactToTarget(blk.Header.Bits)
	if !ok {
		return errors.Consensus(errors.CodeBadDifficulty, "header bits %08x do not encode a target", blk.Header.Bits)
	}
	if !block.HashMeetsTarget(blk.Hash(), target) {
		return errors.Consensus(errors.CodeBadProofOfWork, "block hash %s above target", blk.Hash().Short())
	}

	if len(headers) > 0 {
		if mtp := MedianTimePast(headers, v.params.MedianTimeSpan); blk.Header.Timestamp <= mtp {
			return errors.Consensus(errors.CodeTimeTooOld,
				"timestamp %d not after median-time-past %d", blk.Header.Timestamp, mtp)
		}
	}
	if limit := v.Now().Add(v.params.MaxFutureDrift).Unix(); blk.Header.Timestamp > limit {
		return errors.Consensus(errors.CodeTimeTooFar,
			"timestamp %d more than %s in the future", blk.Header.Timestamp, v.params.MaxFutureDrift)
	}

	resolved, fees, err := v.checkTransactions(blk, height, rules, view)
	if err != nil {
		return err
	}

	if err := v.checkCoinbaseValue(blk.Transactions[0], height, fees); err != nil {
		return err
	}

	return v.runCryptoChecks(blk, rules, resolved)
}

// resolvedInput pairs an input with the output it spends, carried from the
// sequential phase into the parallel one so signatures verify against the
// right keys without re-resolving.
type resolvedInput struct {
	tx    *transaction.Transaction
	in    *transaction.TxIn
	utxo  *transaction.UnspentOutput
	index int
}

// checkTransactions walks the block's transactions in order, resolving
// inputs against earlier transactions and the view, and enforcing the
// rule-set, maturity and value-balance rules. It returns the resolved
// inputs for the signature phase and the total fees for the coinbase cap.
func (v *FullVerifier) checkTransactions(blk *block.Block, height uint64, rules *config.RuleSet, view ChainView) ([]resolvedInput, uint64, error) {
	inBlock := make(map[types.Outpoint]*transaction.UnspentOutput)
	spent := make(map[types.Outpoint]struct{})
	var resolved []resolvedInput
	var totalFees uint64

	hashes := blk.TxHashes()
	for txIdx, tx := range blk.Transactions {
		txHash := hashes[txIdx]

		if err := checkRuleSet(tx, height, rules); err != nil {
			return nil, 0, err
		}

		var inputSum uint64
		for i := range tx.Inputs {
			in := &tx.Inputs[i]
			if _, dup := spent[in.PrevOut]; dup {
				return nil, 0, errors.Consensus(errors.CodeDoubleSpend,
					"tx %s spends %s already spent in this block", txHash.Short(), in.PrevOut)
			}

			utxo, ok := inBlock[in.PrevOut]
			if !ok {
				var err error
				utxo, ok, err = view.LookupOutput(in.PrevOut)
				if err != nil {
					return nil, 0, err
				}
				if !ok {
					return nil, 0, errors.Consensus(errors.CodeUnknownOutput,
						"tx %s spends unknown output %s", txHash.Short(), in.PrevOut)
				}
			}
			spent[in.PrevOut] = struct{}{}

			if utxo.Coinbase && height-utxo.Height < rules.CoinbaseMaturity {
				return nil, 0, errors.Consensus(errors.CodeImmatureCoinbase,
					"tx %s spends coinbase output %s at depth %d, maturity %d",
					txHash.Short(), in.PrevOut, height-utxo.Height, rules.CoinbaseMaturity)
			}
			if in.KeyAlg != utxo.Out.KeyAlg || transaction.PubKeyDigest(in.PubKey) != utxo.Out.PubKeyHash {
				return nil, 0, errors.Consensus(errors.CodeBadSignature,
					"tx %s input %d key does not match output %s", txHash.Short(), i, in.PrevOut)
			}

			next := inputSum + utxo.Out.Value
			if next < inputSum || next > transaction.MaxMoney {
				return nil, 0, errors.Consensus(errors.CodeValueImbalance,
					"tx %s input sum overflows", txHash.Short())
			}
			inputSum = next

			resolved = append(resolved, resolvedInput{tx: tx, in: in, utxo: utxo, index: i})
		}

		if !tx.IsCoinbase() {
			fee, err := checkValueBalance(tx, txHash, inputSum)
			if err != nil {
				return nil, 0, err
			}
			next := totalFees + fee
			if next < totalFees || next > transaction.MaxMoney {
				return nil, 0, errors.Consensus(errors.CodeValueImbalance, "block fee sum overflows")
			}
			totalFees = next
		}

		for i, out := range tx.Outputs {
			inBlock[types.Outpoint{TxHash: txHash, Index: uint32(i)}] = &transaction.UnspentOutput{
				Out:      out,
				Height:   height,
				Coinbase: tx.IsCoinbase(),
			}
		}
	}

	return resolved, totalFees, nil
}

// checkRuleSet enforces the per-height consensus descriptor: accepted key
// algorithms, active pools and transaction expiry.
func checkRuleSet(tx *transaction.Transaction, height uint64, rules *config.RuleSet) error {
	txHash := tx.Hash()

	if rules.EnforceExpiry && tx.ExpiryHeight != 0 && height > tx.ExpiryHeight {
		return errors.Consensus(errors.CodeRuleSetViolation,
			"tx %s expired at height %d", txHash.Short(), tx.ExpiryHeight)
	}

	for i, in := range tx.Inputs {
		if !rules.KeyAlgAllowed(in.KeyAlg) {
			return errors.Consensus(errors.CodeRuleSetViolation,
				"tx %s input %d uses key algorithm %s before activation", txHash.Short(), i, in.KeyAlg)
		}
	}
	for i, out := range tx.Outputs {
		if !rules.KeyAlgAllowed(out.KeyAlg) {
			return errors.Consensus(errors.CodeRuleSetViolation,
				"tx %s output %d uses key algorithm %s before activation", txHash.Short(), i, out.KeyAlg)
		}
	}
	for _, b := range tx.Bundles {
		if !rules.PoolActive(b.Pool) {
			return errors.Consensus(errors.CodeRuleSetViolation,
				"tx %s uses pool %s before activation", txHash.Short(), b.Pool)
		}
	}
	return nil
}

// checkValueBalance enforces that a transaction's funding covers its
// spending: transparent inputs plus net unshielding must pay for all
// transparent outputs. The surplus is the fee.
func checkValueBalance(tx *transaction.Transaction, txHash types.Hash, inputSum uint64) (uint64, error) {
	outputSum, ok := tx.TotalOutput()
	if !ok {
		return 0, errors.Consensus(errors.CodeValueImbalance, "tx %s output sum overflows", txHash.Short())
	}

	// funds = inputs + sum of value balances; balances are bounded by
	// MaxMoney each, so the signed running total cannot overflow int64.
	funds := int64(inputSum)
	for _, b := range tx.Bundles {
		funds += b.ValueBalance
	}
	if funds < 0 || uint64(funds) < outputSum {
		return 0, errors.Consensus(errors.CodeValueImbalance,
			"tx %s spends %d with only %d available", txHash.Short(), outputSum, funds)
	}
	return uint64(funds) - outputSum, nil
}

// checkCoinbaseValue caps the coinbase at subsidy plus the fees the block's
// other transactions surrendered.
func (v *FullVerifier) checkCoinbaseValue(coinbase *transaction.Transaction, height uint64, fees uint64) error {
	created, ok := coinbase.TotalOutput()
	if !ok {
		return errors.Consensus(errors.CodeValueImbalance, "coinbase output sum overflows")
	}
	allowed := v.params.BlockSubsidy(height) + fees
	if created > allowed {
		return errors.Consensus(errors.CodeBadCoinbase,
			"coinbase creates %d, at most %d allowed at height %d", created, allowed, height)
	}
	return nil
}

// runCryptoChecks verifies all transparent signatures, shielded spend
// signatures and zero-knowledge proofs across a bounded worker pool. The
// sequential phase already bound each input to its output, so jobs are
// independent; the first failure wins and the rest are drained.
func (v *FullVerifier) runCryptoChecks(blk *block.Block, rules *config.RuleSet, resolved []resolvedInput) error {
	var jobs []func() error

	sigHashes := make(map[*transaction.Transaction]types.Hash, len(blk.Transactions))
	sigHashFor := func(tx *transaction.Transaction) types.Hash {
		if h, ok := sigHashes[tx]; ok {
			return h
		}
		h := tx.SigHash(rules.BranchID)
		sigHashes[tx] = h
		return h
	}

	for _, r := range resolved {
		r := r
		sigHash := sigHashFor(r.tx)
		jobs = append(jobs, func() error {
			if err := transaction.VerifyInputSignature(r.in, sigHash); err != nil {
				return errors.Consensus(errors.CodeBadSignature,
					"tx %s input %d: %v", r.tx.Hash().Short(), r.index, err)
			}
			return nil
		})
	}

	for _, tx := range blk.Transactions {
		tx := tx
		for bi := range tx.Bundles {
			b := &tx.Bundles[bi]
			pool := b.Pool
			sigHash := sigHashFor(tx)
			for si := range b.Spends {
				sp := &b.Spends[si]
				jobs = append(jobs, func() error {
					if err := verifySpendSig(sp, sigHash); err != nil {
						return errors.Consensus(errors.CodeBadSignature,
							"tx %s %s spend: %v", tx.Hash().Short(), pool, err)
					}
					if err := v.proofs.VerifySpend(pool, sp, sigHash); err != nil {
						return errors.Consensus(errors.CodeBadProof,
							"tx %s %s spend: %v", tx.Hash().Short(), pool, err)
					}
					return nil
				})
			}
			for oi := range b.Outputs {
				out := &b.Outputs[oi]
				jobs = append(jobs, func() error {
					if err := v.proofs.VerifyOutput(pool, out); err != nil {
						return errors.Consensus(errors.CodeBadProof,
							"tx %s %s output: %v", tx.Hash().Short(), pool, err)
					}
					return nil
				})
			}
		}
	}

	return runParallel(jobs, v.workers)
}

// verifySpendSig checks the binding signature of a shielded spend: an
// ed25519 signature over the transaction sighash under the spend's
// randomized key.
func verifySpendSig(sp *transaction.Spend, sigHash types.Hash) error {
	if len(sp.RandomizedKey) != ed25519.PublicKeySize {
		return errors.Structural(errors.CodeBadEncoding, "randomized key length %d", len(sp.RandomizedKey))
	}
	if len(sp.SpendSig) != ed25519.SignatureSize {
		return errors.Structural(errors.CodeBadEncoding, "spend signature length %d", len(sp.SpendSig))
	}
	if !ed25519.Verify(ed25519.PublicKey(sp.RandomizedKey), sigHash[:], sp.SpendSig) {
		return errors.Consensus(errors.CodeBadSignature, "spend signature check failed")
	}
	return nil
}

// runParallel executes jobs across at most workers goroutines and returns
// the first error encountered. All jobs run to completion either way; a
// job's result after the first failure is discarded.
func runParallel(jobs []func() error, workers int) error {
	if len(jobs) == 0 {
		return nil
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan func() error, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if err := job(); err != nil {
					once.Do(func() { firstErr = err })
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// VerifyTransaction is the mempool admission check: everything VerifyBlock
// enforces for a single transaction against the current best chain, minus
// the block-shape rules. A missing input is contextual here because the
// funding transaction may still arrive.
func (v *FullVerifier) VerifyTransaction(tx *transaction.Transaction, view ChainView) error {
	if tx.IsCoinbase() {
		return errors.Structural(errors.CodeBadCoinbase, "coinbase cannot enter the mempool")
	}
	if err := tx.CheckStructural(); err != nil {
		return err
	}

	height := view.Height() + 1
	rules := v.params.RuleSetForHeight(height)
	if err := checkRuleSet(tx, height, rules); err != nil {
		return err
	}

	txHash := tx.Hash()
	var inputSum uint64
	var resolved []resolvedInput
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		utxo, ok, err := view.LookupOutput(in.PrevOut)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Contextual(errors.CodeUnknownOutput,
				"tx %s spends unknown output %s", txHash.Short(), in.PrevOut)
		}
		if utxo.Coinbase && height-utxo.Height < rules.CoinbaseMaturity {
			return errors.Contextual(errors.CodeImmatureCoinbase,
				"tx %s spends immature coinbase output %s", txHash.Short(), in.PrevOut)
		}
		if in.KeyAlg != utxo.Out.KeyAlg || transaction.PubKeyDigest(in.PubKey) != utxo.Out.PubKeyHash {
			return errors.Consensus(errors.CodeBadSignature,
				"tx %s input %d key does not match output %s", txHash.Short(), i, in.PrevOut)
		}
		next := inputSum + utxo.Out.Value
		if next < inputSum || next > transaction.MaxMoney {
			return errors.Consensus(errors.CodeValueImbalance, "tx %s input sum overflows", txHash.Short())
		}
		inputSum = next
		resolved = append(resolved, resolvedInput{tx: tx, in: in, utxo: utxo, index: i})
	}

	if _, err := checkValueBalance(tx, txHash, inputSum); err != nil {
		return err
	}

	sigHash := tx.SigHash(rules.BranchID)
	for _, r := range resolved {
		if err := transaction.VerifyInputSignature(r.in, sigHash); err != nil {
			return errors.Consensus(errors.CodeBadSignature, "tx %s input %d: %v", txHash.Short(), r.index, err)
		}
	}
	for bi := range tx.Bundles {
		b := &tx.Bundles[bi]
		for si := range b.Spends {
			sp := &b.Spends[si]
			if err := verifySpendSig(sp, sigHash); err != nil {
				return errors.Consensus(errors.CodeBadSignature, "tx %s %s spend: %v", txHash.Short(), b.Pool, err)
			}
			if err := v.proofs.VerifySpend(b.Pool, sp, sigHash); err != nil {
				return errors.Consensus(errors.CodeBadProof, "tx %s %s spend: %v", txHash.Short(), b.Pool, err)
			}
		}
		for oi := range b.Outputs {
			if err := v.proofs.VerifyOutput(b.Pool, &b.Outputs[oi]); err != nil {
				return errors.Consensus(errors.CodeBadProof, "tx %s %s output: %v", txHash.Short(), b.Pool, err)
			}
		}
	}
	return nil
}
