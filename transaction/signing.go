package transaction

import (
	"crypto/ed25519"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/veraxlabs/verax/types"
)

// VerifyInputSignature checks one transparent input's signature over the
// transaction sighash. The caller has already confirmed that the input's
// public key hashes to the referenced output's PubKeyHash.
func VerifyInputSignature(in *TxIn, sigHash types.Hash) error {
	switch in.KeyAlg {
	case KeyAlgEd25519:
		if !ed25519.Verify(ed25519.PublicKey(in.PubKey), sigHash[:], in.Signature) {
			return fmt.Errorf("ed25519 signature check failed")
		}
		return nil
	case KeyAlgSecp256k1:
		pub, err := secp256k1.ParsePubKey(in.PubKey)
		if err != nil {
			return fmt.Errorf("parse secp256k1 pubkey: %w", err)
		}
		sig, err := secpecdsa.ParseDERSignature(in.Signature)
		if err != nil {
			return fmt.Errorf("parse secp256k1 signature: %w", err)
		}
		if !sig.Verify(sigHash[:], pub) {
			return fmt.Errorf("secp256k1 signature check failed")
		}
		return nil
	default:
		return fmt.Errorf("unknown key algorithm %d", in.KeyAlg)
	}
}

// SignInput fills in an input's signature for the given sighash. Used by
// tests and tooling; the engine itself never signs.
func SignInput(in *TxIn, sigHash types.Hash, priv interface{}) error {
	switch key := priv.(type) {
	case ed25519.PrivateKey:
		in.KeyAlg = KeyAlgEd25519
		in.PubKey = key.Public().(ed25519.PublicKey)
		in.Signature = ed25519.Sign(key, sigHash[:])
		return nil
	case *secp256k1.PrivateKey:
		in.KeyAlg = KeyAlgSecp256k1
		in.PubKey = key.PubKey().SerializeCompressed()
		in.Signature = secpecdsa.Sign(key, sigHash[:]).Serialize()
		return nil
	default:
		return fmt.Errorf("unsupported private key type %T", priv)
	}
}
