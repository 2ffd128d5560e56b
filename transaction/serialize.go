package transaction

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/veraxlabs/verax/types"
)

// Serialization is little-endian with uvarint counts and length prefixes,
// in field order. It is the canonical encoding: hashing, storage and the
// wire all use it.

const (
	// MaxProofSize bounds any single proof or key blob inside a
	// transaction. Structural check, enforced at decode time too.
	MaxProofSize = 8192

	// maxCount bounds any single element count read from the wire before
	// allocation.
	maxCount = 1 << 20
)

func writeUvarint(w *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.Write(tmp[:n])
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeUvarint(w, uint64(len(b)))
	w.Write(b)
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.Write(tmp[:])
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.Write(tmp[:])
}

// Serialize encodes the transaction with all witness data.
func (tx *Transaction) Serialize() []byte {
	return tx.serialize(true)
}

// SerializeWithoutWitness encodes the transaction with key, signature and
// proof fields emptied. This is the sighash preimage body, so it must be
// stable across signing: filling in a key or signature cannot change it.
func (tx *Transaction) SerializeWithoutWitness() []byte {
	return tx.serialize(false)
}

func (tx *Transaction) serialize(witness bool) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, tx.Version)
	writeUint64(&buf, tx.ExpiryHeight)

	writeUvarint(&buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf.Write(in.PrevOut.Bytes())
		if witness {
			buf.WriteByte(byte(in.KeyAlg))
			writeBytes(&buf, in.PubKey)
			writeBytes(&buf, in.Signature)
		} else {
			// The key algorithm and public key are witness data too: the
			// referenced output's PubKeyHash binds them, and signers fill
			// them in together with the signature.
			buf.WriteByte(0)
			writeBytes(&buf, nil)
			writeBytes(&buf, nil)
		}
	}

	writeUvarint(&buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		writeUint64(&buf, out.Value)
		buf.WriteByte(byte(out.KeyAlg))
		buf.Write(out.PubKeyHash[:])
	}

	writeUvarint(&buf, uint64(len(tx.Bundles)))
	for _, b := range tx.Bundles {
		buf.WriteByte(byte(b.Pool))
		writeUint64(&buf, uint64(b.ValueBalance))
		writeUvarint(&buf, uint64(len(b.Spends)))
		for _, sp := range b.Spends {
			buf.Write(sp.Nullifier[:])
			buf.Write(sp.Anchor[:])
			writeBytes(&buf, sp.RandomizedKey)
			if witness {
				writeBytes(&buf, sp.Proof)
				writeBytes(&buf, sp.SpendSig)
			} else {
				writeBytes(&buf, nil)
				writeBytes(&buf, nil)
			}
		}
		writeUvarint(&buf, uint64(len(b.Outputs)))
		for _, o := range b.Outputs {
			buf.Write(o.Commitment[:])
			writeBytes(&buf, o.EphemeralKey)
			if witness {
				writeBytes(&buf, o.Proof)
			} else {
				writeBytes(&buf, nil)
			}
		}
	}

	return buf.Bytes()
}

type reader struct {
	*bytes.Reader
}

func (r reader) uvarint() (uint64, error) {
	return binary.ReadUvarint(r.Reader)
}

func (r reader) count() (int, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > maxCount {
		return 0, fmt.Errorf("count %d exceeds limit", v)
	}
	return int(v), nil
}

func (r reader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > MaxProofSize {
		return nil, fmt.Errorf("blob length %d exceeds limit", n)
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r reader) hash() (types.Hash, error) {
	var h types.Hash
	_, err := io.ReadFull(r.Reader, h[:])
	return h, err
}

func (r reader) uint32() (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r.Reader, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func (r reader) uint64() (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r.Reader, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func (r reader) byte() (byte, error) {
	return r.Reader.ReadByte()
}

// Deserialize parses a transaction from its canonical encoding.
func Deserialize(data []byte) (*Transaction, error) {
	r := reader{bytes.NewReader(data)}
	tx, err := readTx(r)
	if err != nil {
		return nil, fmt.Errorf("malformed transaction: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("malformed transaction: %d trailing bytes", r.Len())
	}
	return tx, nil
}

// ReadFrom parses one transaction from r, leaving the reader positioned
// after it. Used by block deserialization.
func ReadFrom(r *bytes.Reader) (*Transaction, error) {
	return readTx(reader{r})
}

func readTx(r reader) (*Transaction, error) {
	tx := &Transaction{}
	var err error
	if tx.Version, err = r.uint32(); err != nil {
		return nil, err
	}
	if tx.ExpiryHeight, err = r.uint64(); err != nil {
		return nil, err
	}

	nIn, err := r.count()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nIn; i++ {
		var in TxIn
		var opBuf [types.HashSize + 4]byte
		if _, err := io.ReadFull(r.Reader, opBuf[:]); err != nil {
			return nil, err
		}
		if in.PrevOut, err = types.OutpointFromBytes(opBuf[:]); err != nil {
			return nil, err
		}
		alg, err := r.byte()
		if err != nil {
			return nil, err
		}
		in.KeyAlg = KeyAlg(alg)
		if in.PubKey, err = r.bytes(); err != nil {
			return nil, err
		}
		if in.Signature, err = r.bytes(); err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	nOut, err := r.count()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nOut; i++ {
		var out TxOut
		if out.Value, err = r.uint64(); err != nil {
			return nil, err
		}
		alg, err := r.byte()
		if err != nil {
			return nil, err
		}
		out.KeyAlg = KeyAlg(alg)
		if out.PubKeyHash, err = r.hash(); err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	nBundle, err := r.count()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nBundle; i++ {
		var b Bundle
		pool, err := r.byte()
		if err != nil {
			return nil, err
		}
		b.Pool = types.Pool(pool)
		vb, err := r.uint64()
		if err != nil {
			return nil, err
		}
		b.ValueBalance = int64(vb)

		nSpend, err := r.count()
		if err != nil {
			return nil, err
		}
		for j := 0; j < nSpend; j++ {
			var sp Spend
			if sp.Nullifier, err = r.hash(); err != nil {
				return nil, err
			}
			if sp.Anchor, err = r.hash(); err != nil {
				return nil, err
			}
			if sp.RandomizedKey, err = r.bytes(); err != nil {
				return nil, err
			}
			if sp.Proof, err = r.bytes(); err != nil {
				return nil, err
			}
			if sp.SpendSig, err = r.bytes(); err != nil {
				return nil, err
			}
			b.Spends = append(b.Spends, sp)
		}

		nOutput, err := r.count()
		if err != nil {
			return nil, err
		}
		for j := 0; j < nOutput; j++ {
			var o Output
			if o.Commitment, err = r.hash(); err != nil {
				return nil, err
			}
			if o.EphemeralKey, err = r.bytes(); err != nil {
				return nil, err
			}
			if o.Proof, err = r.bytes(); err != nil {
				return nil, err
			}
			b.Outputs = append(b.Outputs, o)
		}
		tx.Bundles = append(tx.Bundles, b)
	}

	return tx, nil
}
