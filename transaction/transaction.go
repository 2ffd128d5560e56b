package transaction

import (
	"crypto/sha256"

	"github.com/veraxlabs/verax/types"
)

// MaxMoney is the total monetary supply in base units. No output value or
// value sum may exceed it.
const MaxMoney uint64 = 21_000_000 * 100_000_000

// KeyAlg selects the signature scheme a transparent output is locked to.
// Which algorithms are accepted is a consensus rule and varies by network
// upgrade.
type KeyAlg uint8

const (
	KeyAlgSecp256k1 KeyAlg = iota + 1
	KeyAlgEd25519
)

func (a KeyAlg) String() string {
	switch a {
	case KeyAlgSecp256k1:
		return "secp256k1"
	case KeyAlgEd25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

// TxIn spends a previously created transparent output. PubKey must hash to
// the referenced output's PubKeyHash and Signature must cover the
// transaction sighash under that key.
type TxIn struct {
	PrevOut   types.Outpoint `json:"prev_out"`
	KeyAlg    KeyAlg         `json:"key_alg"`
	PubKey    []byte         `json:"pub_key"`
	Signature []byte         `json:"signature"`
}

// TxOut creates a transparent output locked to the blake2b-256 hash of a
// public key.
type TxOut struct {
	Value      uint64     `json:"value"`
	KeyAlg     KeyAlg     `json:"key_alg"`
	PubKeyHash types.Hash `json:"pub_key_hash"`
}

// Spend consumes a note from a shielded pool. The nullifier marks the note
// spent, the anchor names the commitment-tree root the zero-knowledge proof
// was built against, and SpendSig binds the spend to this transaction under
// the randomized key.
type Spend struct {
	Nullifier     types.Hash `json:"nullifier"`
	Anchor        types.Hash `json:"anchor"`
	RandomizedKey []byte     `json:"randomized_key"`
	Proof         []byte     `json:"proof"`
	SpendSig      []byte     `json:"spend_sig"`
}

// Output creates a note in a shielded pool, committing to its value and
// recipient without revealing either.
type Output struct {
	Commitment   types.Hash `json:"commitment"`
	EphemeralKey []byte     `json:"ephemeral_key"`
	Proof        []byte     `json:"proof"`
}

// Bundle groups one pool's spends and outputs within a transaction.
// ValueBalance is the net flow from the pool into the transparent value
// pool: positive means shielded value is being unshielded.
type Bundle struct {
	Pool         types.Pool `json:"pool"`
	ValueBalance int64      `json:"value_balance"`
	Spends       []Spend    `json:"spends"`
	Outputs      []Output   `json:"outputs"`
}

// Transaction is an ordered set of transparent inputs and outputs plus
// optional shielded bundles. A transaction with no inputs and no spends is
// a coinbase and may only appear first in a block.
type Transaction struct {
	Version      uint32   `json:"version"`
	ExpiryHeight uint64   `json:"expiry_height"`
	Inputs       []TxIn   `json:"inputs"`
	Outputs      []TxOut  `json:"outputs"`
	Bundles      []Bundle `json:"bundles"`
}

// IsCoinbase reports whether the transaction creates new value. Coinbase
// transactions have no transparent inputs and no shielded spends.
func (tx *Transaction) IsCoinbase() bool {
	if len(tx.Inputs) > 0 {
		return false
	}
	for _, b := range tx.Bundles {
		if len(b.Spends) > 0 {
			return false
		}
	}
	return true
}

// Hash returns the transaction identity: double-SHA256 over the full
// serialization, witnesses included.
func (tx *Transaction) Hash() types.Hash {
	first := sha256.Sum256(tx.Serialize())
	return sha256.Sum256(first[:])
}

// OutputCount returns the number of transparent outputs.
func (tx *Transaction) OutputCount() int { return len(tx.Outputs) }

// TotalOutput sums the transparent output values. The bool is false on
// overflow or when the sum exceeds MaxMoney.
func (tx *Transaction) TotalOutput() (uint64, bool) {
	var sum uint64
	for _, out := range tx.Outputs {
		next := sum + out.Value
		if next < sum || next > MaxMoney {
			return 0, false
		}
		sum = next
	}
	return sum, true
}

// Nullifiers returns all nullifiers revealed by the transaction, grouped by
// pool.
func (tx *Transaction) Nullifiers() map[types.Pool][]types.Hash {
	if len(tx.Bundles) == 0 {
		return nil
	}
	out := make(map[types.Pool][]types.Hash)
	for _, b := range tx.Bundles {
		for _, sp := range b.Spends {
			out[b.Pool] = append(out[b.Pool], sp.Nullifier)
		}
	}
	return out
}
