package transaction

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/veraxlabs/verax/types"
)

// sigHashTag domain-separates transaction sighashes from every other
// blake2b use in the system.
var sigHashTag = []byte("VeraxSigHash")

// SigHash returns the digest that transparent input signatures and shielded
// spend signatures must cover. branchID pins the digest to the consensus
// rule set in force at the spending height, so signatures cannot be
// replayed across network upgrades.
func (tx *Transaction) SigHash(branchID uint32) types.Hash {
	h, _ := blake2b.New256(nil)
	h.Write(sigHashTag)

	var branch [4]byte
	binary.LittleEndian.PutUint32(branch[:], branchID)
	h.Write(branch[:])

	h.Write(tx.SerializeWithoutWitness())

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// PubKeyDigest hashes a raw public key into the form stored in TxOut.
func PubKeyDigest(pubKey []byte) types.Hash {
	var out types.Hash
	sum := blake2b.Sum256(pubKey)
	copy(out[:], sum[:])
	return out
}
