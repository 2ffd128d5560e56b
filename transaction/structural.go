package transaction

import (
	"github.com/veraxlabs/verax/errors"
	"github.com/veraxlabs/verax/types"
)

const (
	// MaxTxSize caps a single serialized transaction.
	MaxTxSize = 200_000

	// signature/key length bounds for structural checks; exact validity is
	// a consensus check.
	ed25519PubKeySize = 32
	ed25519SigSize    = 64
	secpPubKeySize    = 33 // compressed
	maxSecpSigSize    = 72 // DER upper bound
)

// CheckStructural verifies well-formedness that needs no chain context:
// shape, sizes, counts and value ranges. Violations are StructuralErrors.
func (tx *Transaction) CheckStructural() error {
	if len(tx.Inputs) == 0 && len(tx.Outputs) == 0 && len(tx.Bundles) == 0 {
		return errors.Structural(errors.CodeBadEncoding, "transaction has no inputs, outputs or bundles")
	}
	if size := len(tx.Serialize()); size > MaxTxSize {
		return errors.Structural(errors.CodeOversized, "transaction size %d exceeds %d", size, MaxTxSize)
	}

	seen := make(map[types.Outpoint]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if _, dup := seen[in.PrevOut]; dup {
			return errors.Structural(errors.CodeBadEncoding, "input %d repeats outpoint %s", i, in.PrevOut)
		}
		seen[in.PrevOut] = struct{}{}
		if err := checkKeyShape(in.KeyAlg, in.PubKey, in.Signature); err != nil {
			return err
		}
	}

	for i, out := range tx.Outputs {
		if out.Value == 0 || out.Value > MaxMoney {
			return errors.Structural(errors.CodeBadEncoding, "output %d value %d out of range", i, out.Value)
		}
		if out.KeyAlg != KeyAlgSecp256k1 && out.KeyAlg != KeyAlgEd25519 {
			return errors.Structural(errors.CodeBadEncoding, "output %d unknown key algorithm %d", i, out.KeyAlg)
		}
	}
	if _, ok := tx.TotalOutput(); !ok {
		return errors.Structural(errors.CodeBadEncoding, "transparent output sum overflows")
	}

	seenPools := make(map[types.Pool]struct{}, len(tx.Bundles))
	for _, b := range tx.Bundles {
		if !b.Pool.Valid() {
			return errors.Structural(errors.CodeBadEncoding, "unknown pool %d", b.Pool)
		}
		if _, dup := seenPools[b.Pool]; dup {
			return errors.Structural(errors.CodeBadEncoding, "duplicate bundle for pool %s", b.Pool)
		}
		seenPools[b.Pool] = struct{}{}
		if len(b.Spends) == 0 && len(b.Outputs) == 0 {
			return errors.Structural(errors.CodeBadEncoding, "empty bundle for pool %s", b.Pool)
		}
		if b.ValueBalance > int64(MaxMoney) || b.ValueBalance < -int64(MaxMoney) {
			return errors.Structural(errors.CodeBadEncoding, "pool %s value balance %d out of range", b.Pool, b.ValueBalance)
		}
		nulls := make(map[types.Hash]struct{}, len(b.Spends))
		for _, sp := range b.Spends {
			if _, dup := nulls[sp.Nullifier]; dup {
				return errors.Structural(errors.CodeBadEncoding, "pool %s repeats nullifier %s", b.Pool, sp.Nullifier.Short())
			}
			nulls[sp.Nullifier] = struct{}{}
			if len(sp.Proof) == 0 || len(sp.Proof) > MaxProofSize {
				return errors.Structural(errors.CodeBadEncoding, "pool %s spend proof size %d out of range", b.Pool, len(sp.Proof))
			}
		}
		for _, o := range b.Outputs {
			if len(o.Proof) == 0 || len(o.Proof) > MaxProofSize {
				return errors.Structural(errors.CodeBadEncoding, "pool %s output proof size %d out of range", b.Pool, len(o.Proof))
			}
		}
	}

	if tx.IsCoinbase() {
		if len(tx.Outputs) == 0 {
			return errors.Structural(errors.CodeBadCoinbase, "coinbase has no outputs")
		}
		for _, b := range tx.Bundles {
			if len(b.Outputs) > 0 {
				return errors.Structural(errors.CodeBadCoinbase, "coinbase cannot create shielded outputs")
			}
		}
	}

	return nil
}

func checkKeyShape(alg KeyAlg, pubKey, sig []byte) error {
	switch alg {
	case KeyAlgEd25519:
		if len(pubKey) != ed25519PubKeySize {
			return errors.Structural(errors.CodeBadEncoding, "ed25519 pubkey length %d", len(pubKey))
		}
		if len(sig) != ed25519SigSize {
			return errors.Structural(errors.CodeBadEncoding, "ed25519 signature length %d", len(sig))
		}
	case KeyAlgSecp256k1:
		if len(pubKey) != secpPubKeySize {
			return errors.Structural(errors.CodeBadEncoding, "secp256k1 pubkey length %d", len(pubKey))
		}
		if len(sig) == 0 || len(sig) > maxSecpSigSize {
			return errors.Structural(errors.CodeBadEncoding, "secp256k1 signature length %d", len(sig))
		}
	default:
		return errors.Structural(errors.CodeBadEncoding, "unknown key algorithm %d", alg)
	}
	return nil
}
