package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// stubView is a hand-rolled chain context: the verifier only reads, so a
// few maps stand in for a whole chain.
type stubView struct {
	height  uint64
	tip     types.Hash
	headers []*block.Header // oldest first, may be nil
	utxos   map[types.Outpoint]*transaction.UnspentOutput
}

func (s *stubView) Height() uint64      { return s.height }
func (s *stubView) TipHash() types.Hash { return s.tip }

func (s *stubView) HeadersBack(count int) ([]*block.Header, error) {
	if count >= len(s.headers) {
		return s.headers, nil
	}
	return s.headers[len(s.headers)-count:], nil
}

func (s *stubView) LookupOutput(op types.Outpoint) (*transaction.UnspentOutput, bool, error) {
	utxo, ok := s.utxos[op]
	return utxo, ok, nil
}

// genesisView sits at the genesis block of the test network.
func genesisView(params *config.Params) *stubView {
	return &stubView{
		height:  0,
		tip:     params.Genesis.Hash(),
		headers: []*block.Header{&params.Genesis.Header},
		utxos:   make(map[types.Outpoint]*transaction.UnspentOutput),
	}
}

func newVerifier(params *config.Params) *FullVerifier {
	v := NewFullVerifier(params, SkipProofs{}, 2)
	// Pin the clock just after the chain tip so future-drift checks are
	// deterministic.
	v.Now = func() time.Time { return time.Unix(1708300800+3600, 0) }
	return v
}

func coinbaseTx(params *config.Params, height, fees uint64) *transaction.Transaction {
	return &transaction.Transaction{
		Version: 1,
		Outputs: []transaction.TxOut{{
			Value:      params.BlockSubsidy(height) + fees,
			KeyAlg:     transaction.KeyAlgSecp256k1,
			PubKeyHash: transaction.PubKeyDigest([]byte("miner")),
		}},
	}
}

// assemble seals txs into a block on view and grinds the nonce until the
// hash meets the trivial test-network target.
func assemble(t *testing.T, params *config.Params, view *stubView, txs ...*transaction.Transaction) *block.Block {
	t.Helper()
	blk := &block.Block{
		Header: block.Header{
			Version:    1,
			ParentHash: view.tip,
			Timestamp:  1708300800 + int64(view.height+1)*75,
			Bits:       params.PowLimitBits,
		},
		Transactions: txs,
	}
	blk.Header.MerkleRoot = block.MerkleRoot(blk.TxHashes())
	mine(t, blk)
	return blk
}

func mine(t *testing.T, blk *block.Block) {
	t.Helper()
	target, ok := block.CompactToTarget(blk.Header.Bits)
	if !ok {
		t.Fatalf("bits %08x do not decode", blk.Header.Bits)
	}
	for i := 0; i < 10_000; i++ {
		blk.Header.Nonce[0] = byte(i)
		blk.Header.Nonce[1] = byte(i >> 8)
		if block.HashMeetsTarget(blk.Hash(), target) {
			return
		}
	}
	t.Fatal("no nonce found within bound")
}

// antiMine grinds until the hash does NOT meet the target.
func antiMine(t *testing.T, blk *block.Block) {
	t.Helper()
	target, _ := block.CompactToTarget(blk.Header.Bits)
	for i := 0; i < 10_000; i++ {
		blk.Header.Nonce[0] = byte(i)
		blk.Header.Nonce[1] = byte(i >> 8)
		if !block.HashMeetsTarget(blk.Hash(), target) {
			return
		}
	}
	t.Fatal("every nonce met the target")
}

// fundView registers a spendable non-coinbase output for key and returns
// its outpoint.
func fundView(view *stubView, pub []byte, alg transaction.KeyAlg, value uint64) types.Outpoint {
	op := types.Outpoint{TxHash: types.Hash{0xfa, byte(len(view.utxos))}, Index: 0}
	view.utxos[op] = &transaction.UnspentOutput{
		Out: transaction.TxOut{
			Value:      value,
			KeyAlg:     alg,
			PubKeyHash: transaction.PubKeyDigest(pub),
		},
		Height: 0,
	}
	return op
}

func TestVerifyBlockCoinbaseOnly(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0))
	if err := v.VerifyBlock(blk, view); err != nil {
		t.Fatalf("valid block rejected: %v", err)
	}
}

func TestVerifyBlockWithSpend(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)

	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{
			Value:      9_000,
			KeyAlg:     transaction.KeyAlgSecp256k1,
			PubKeyHash: transaction.PubKeyDigest([]byte("dest")),
		}},
	}
	rules := params.RuleSetForHeight(1)
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}

	// The 1000 surplus is fee; the coinbase may collect it.
	blk := assemble(t, params, view, coinbaseTx(params, 1, 1_000), tx)
	if err := v.VerifyBlock(blk, view); err != nil {
		t.Fatalf("valid block rejected: %v", err)
	}
}

func TestVerifyBlockBadMerkleRoot(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0))
	blk.Header.MerkleRoot[0] ^= 1
	mine(t, blk)

	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadMerkleRoot {
		t.Fatal("expected bad merkle root")
	}
}

func TestVerifyBlockCoinbasePlacement(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)
	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{Value: 10_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	rules := params.RuleSetForHeight(1)
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}

	// Non-coinbase first.
	blk := assemble(t, params, view, tx, coinbaseTx(params, 1, 0))
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadCoinbase {
		t.Fatal("expected coinbase-first rejection")
	}

	// Two coinbases.
	blk = assemble(t, params, view, coinbaseTx(params, 1, 0), coinbaseTx(params, 1, 1))
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadCoinbase {
		t.Fatal("expected second-coinbase rejection")
	}
}

func TestVerifyBlockParentMismatch(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0))
	blk.Header.ParentHash = types.Hash{0xdd}
	mine(t, blk)

	err := v.VerifyBlock(blk, view)
	if !errors.IsContextual(err) || errors.CodeOf(err) != errors.CodeOrphanBlock {
		t.Fatalf("expected contextual orphan, got %v", err)
	}
}

func TestVerifyBlockBadDifficulty(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0))
	blk.Header.Bits = 0x1f07ffff // valid encoding, wrong requirement
	mine(t, blk)

	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadDifficulty {
		t.Fatal("expected bad difficulty")
	}
}

func TestVerifyBlockProofOfWorkMiss(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0))
	antiMine(t, blk)

	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadProofOfWork {
		t.Fatal("expected proof-of-work rejection")
	}
}

func TestVerifyBlockTimestampRules(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	// At or before median-time-past.
	blk := assemble(t, params, view, coinbaseTx(params, 1, 0))
	blk.Header.Timestamp = params.Genesis.Header.Timestamp
	mine(t, blk)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeTimeTooOld {
		t.Fatal("expected time-too-old")
	}

	// Beyond the future drift allowance.
	blk = assemble(t, params, view, coinbaseTx(params, 1, 0))
	blk.Header.Timestamp = v.Now().Add(params.MaxFutureDrift + time.Hour).Unix()
	mine(t, blk)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeTimeTooFar {
		t.Fatal("expected time-too-far")
	}
}

func TestVerifyBlockUnknownOutput(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: types.Outpoint{TxHash: types.Hash{0x99}}}},
		Outputs: []transaction.TxOut{{Value: 1, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	rules := params.RuleSetForHeight(1)
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0), tx)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeUnknownOutput {
		t.Fatal("expected unknown output")
	}
}

func TestVerifyBlockInBlockDoubleSpend(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)
	rules := params.RuleSetForHeight(1)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)

	spend := func(dest string) *transaction.Transaction {
		tx := &transaction.Transaction{
			Version: 1,
			Inputs:  []transaction.TxIn{{PrevOut: op}},
			Outputs: []transaction.TxOut{{Value: 10_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte(dest))}},
		}
		if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
			t.Fatal(err)
		}
		return tx
	}

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0), spend("a"), spend("b"))
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeDoubleSpend {
		t.Fatal("expected double spend")
	}
}

func TestVerifyBlockImmatureCoinbase(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)
	rules := params.RuleSetForHeight(1)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)
	view.utxos[op].Coinbase = true // depth 1 < maturity 2

	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{Value: 10_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0), tx)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeImmatureCoinbase {
		t.Fatal("expected immature coinbase")
	}
}

func TestVerifyBlockKeyBindingMismatch(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)
	rules := params.RuleSetForHeight(1)

	owner, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	thief, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, owner.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)

	// Signed with the wrong key: the pubkey digest does not match the
	// output, caught before any signature math runs.
	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{Value: 10_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), thief); err != nil {
		t.Fatal(err)
	}

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0), tx)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadSignature {
		t.Fatal("expected key binding rejection")
	}
}

func TestVerifyBlockBadSignature(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)
	rules := params.RuleSetForHeight(1)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)

	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{Value: 10_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}
	tx.Inputs[0].Signature[10] ^= 1

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0), tx)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadSignature {
		t.Fatal("expected bad signature")
	}
}

func TestVerifyBlockValueImbalance(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)
	rules := params.RuleSetForHeight(1)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 100)

	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{Value: 101, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}

	blk := assemble(t, params, view, coinbaseTx(params, 1, 0), tx)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeValueImbalance {
		t.Fatal("expected value imbalance")
	}
}

func TestVerifyBlockCoinbaseOverpays(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	cb := coinbaseTx(params, 1, 0)
	cb.Outputs[0].Value++

	blk := assemble(t, params, view, cb)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeBadCoinbase {
		t.Fatal("expected coinbase cap rejection")
	}
}

func TestVerifyBlockRuleSetGating(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)

	// Height 1 runs founding rules: no ed25519, no sapling.
	_, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, edPriv.Public().(ed25519.PublicKey), transaction.KeyAlgEd25519, 10_000)
	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{Value: 10_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(0), edPriv); err != nil {
		t.Fatal(err)
	}
	blk := assemble(t, params, view, coinbaseTx(params, 1, 0), tx)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeRuleSetViolation {
		t.Fatal("expected ed25519 gating before activation")
	}

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op2 := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 500)
	shielded := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op2}},
		Bundles: []transaction.Bundle{{
			Pool:         types.PoolSapling,
			ValueBalance: -100,
			Outputs:      []transaction.Output{{Commitment: types.Hash{1}, Proof: []byte{1}}},
		}},
	}
	if err := transaction.SignInput(&shielded.Inputs[0], shielded.SigHash(0), priv); err != nil {
		t.Fatal(err)
	}
	blk = assemble(t, params, view, coinbaseTx(params, 1, 0), shielded)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeRuleSetViolation {
		t.Fatal("expected sapling gating before activation")
	}
}

func TestVerifyBlockExpiredTransaction(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)

	// Height 10 runs aurora rules, which enforce expiry. No headers in the
	// view: the median-time-past rule is skipped, keeping the stub minimal.
	view := &stubView{height: 9, tip: types.Hash{0x0a}, utxos: make(map[types.Outpoint]*transaction.UnspentOutput)}
	rules := params.RuleSetForHeight(10)

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)

	tx := &transaction.Transaction{
		Version:      1,
		ExpiryHeight: 5,
		Inputs:       []transaction.TxIn{{PrevOut: op}},
		Outputs:      []transaction.TxOut{{Value: 10_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}

	blk := assemble(t, params, view, coinbaseTx(params, 10, 0), tx)
	if errors.CodeOf(v.VerifyBlock(blk, view)) != errors.CodeRuleSetViolation {
		t.Fatal("expected expiry rejection")
	}
}

func TestVerifyBlockShieldedSpendSignature(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)
	rules := params.RuleSetForHeight(1)

	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	build := func(corrupt bool) *block.Block {
		tx := &transaction.Transaction{
			Version: 1,
			Bundles: []transaction.Bundle{{
				Pool:         types.PoolSprout,
				ValueBalance: 1_000, // unshielding funds the transparent output
				Spends: []transaction.Spend{{
					Nullifier:     types.Hash{0xb1},
					Anchor:        types.Hash{0xa1},
					RandomizedKey: edPub,
					Proof:         []byte{1},
				}},
			}},
			Outputs: []transaction.TxOut{{Value: 900, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
		}
		sigHash := tx.SigHash(rules.BranchID)
		tx.Bundles[0].Spends[0].SpendSig = ed25519.Sign(edPriv, sigHash[:])
		if corrupt {
			tx.Bundles[0].Spends[0].SpendSig[0] ^= 1
		}
		return assemble(t, params, view, coinbaseTx(params, 1, 100), tx)
	}

	if err := v.VerifyBlock(build(false), view); err != nil {
		t.Fatalf("valid shielded spend rejected: %v", err)
	}
	if errors.CodeOf(v.VerifyBlock(build(true), view)) != errors.CodeBadSignature {
		t.Fatal("expected spend signature rejection")
	}
}

func TestVerifyTransaction(t *testing.T) {
	params := config.TestParams()
	v := newVerifier(params)
	view := genesisView(params)
	rules := params.RuleSetForHeight(1)

	if err := v.VerifyTransaction(coinbaseTx(params, 1, 0), view); err == nil {
		t.Fatal("coinbase must not enter the mempool")
	}

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	op := fundView(view, priv.PubKey().SerializeCompressed(), transaction.KeyAlgSecp256k1, 10_000)

	tx := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: op}},
		Outputs: []transaction.TxOut{{Value: 9_000, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&tx.Inputs[0], tx.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}
	if err := v.VerifyTransaction(tx, view); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	// An unknown input is contextual: the funding tx may still arrive.
	orphan := &transaction.Transaction{
		Version: 1,
		Inputs:  []transaction.TxIn{{PrevOut: types.Outpoint{TxHash: types.Hash{0x77}}}},
		Outputs: []transaction.TxOut{{Value: 1, KeyAlg: transaction.KeyAlgSecp256k1, PubKeyHash: transaction.PubKeyDigest([]byte("d"))}},
	}
	if err := transaction.SignInput(&orphan.Inputs[0], orphan.SigHash(rules.BranchID), priv); err != nil {
		t.Fatal(err)
	}
	verr := v.VerifyTransaction(orphan, view)
	if !errors.IsContextual(verr) || errors.CodeOf(verr) != errors.CodeUnknownOutput {
		t.Fatalf("expected contextual unknown output, got %v", verr)
	}
}
