package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// serialize encodes the header in canonical field order. This is the
// hashing preimage as well as the storage and wire form.
func (h *Header) serialize() []byte {
	var buf bytes.Buffer

	var u32 [4]byte
	var u64 [8]byte

	binary.LittleEndian.PutUint32(u32[:], h.Version)
	buf.Write(u32[:])
	buf.Write(h.ParentHash[:])
	buf.Write(h.MerkleRoot[:])

	buf.WriteByte(byte(len(h.PoolRoots)))
	for _, pr := range h.PoolRoots {
		buf.WriteByte(byte(pr.Pool))
		buf.Write(pr.Root[:])
	}

	binary.LittleEndian.PutUint64(u64[:], uint64(h.Timestamp))
	buf.Write(u64[:])
	binary.LittleEndian.PutUint32(u32[:], h.Bits)
	buf.Write(u32[:])
	buf.Write(h.Nonce[:])

	var solLen [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(solLen[:], uint64(len(h.Solution)))
	buf.Write(solLen[:n])
	buf.Write(h.Solution)

	return buf.Bytes()
}

// SerializeHeader exposes the canonical header encoding.
func (h *Header) SerializeHeader() []byte { return h.serialize() }

// Serialize encodes the full block: header, transaction count,
// transactions.
func (b *Block) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(b.Header.serialize())

	var cnt [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(cnt[:], uint64(len(b.Transactions)))
	buf.Write(cnt[:n])
	for _, tx := range b.Transactions {
		buf.Write(tx.Serialize())
	}
	return buf.Bytes()
}

// Size returns the serialized byte length.
func (b *Block) Size() int { return len(b.Serialize()) }

func readHeader(r *bytes.Reader) (Header, error) {
	var h Header
	var u32 [4]byte
	var u64 [8]byte

	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return h, err
	}
	h.Version = binary.LittleEndian.Uint32(u32[:])

	if _, err := io.ReadFull(r, h.ParentHash[:]); err != nil {
		return h, err
	}
	if _, err := io.ReadFull(r, h.MerkleRoot[:]); err != nil {
		return h, err
	}

	nRoots, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	if int(nRoots) > len(types.Pools) {
		return h, fmt.Errorf("pool root count %d exceeds pool count", nRoots)
	}
	for i := 0; i < int(nRoots); i++ {
		var pr PoolRoot
		pool, err := r.ReadByte()
		if err != nil {
			return h, err
		}
		pr.Pool = types.Pool(pool)
		if _, err := io.ReadFull(r, pr.Root[:]); err != nil {
			return h, err
		}
		h.PoolRoots = append(h.PoolRoots, pr)
	}

	if _, err := io.ReadFull(r, u64[:]); err != nil {
		return h, err
	}
	h.Timestamp = int64(binary.LittleEndian.Uint64(u64[:]))

	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return h, err
	}
	h.Bits = binary.LittleEndian.Uint32(u32[:])

	if _, err := io.ReadFull(r, h.Nonce[:]); err != nil {
		return h, err
	}

	solLen, err := binary.ReadUvarint(r)
	if err != nil {
		return h, err
	}
	if solLen > MaxSolutionSize {
		return h, fmt.Errorf("solution length %d exceeds %d", solLen, MaxSolutionSize)
	}
	if solLen > 0 {
		h.Solution = make([]byte, solLen)
		if _, err := io.ReadFull(r, h.Solution); err != nil {
			return h, err
		}
	}

	return h, nil
}

// Deserialize parses a block from its canonical encoding.
func Deserialize(data []byte) (*Block, error) {
	if len(data) > MaxBlockSize {
		return nil, fmt.Errorf("block size %d exceeds %d", len(data), MaxBlockSize)
	}
	r := bytes.NewReader(data)

	header, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("malformed header: %w", err)
	}

	txCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("malformed block: %w", err)
	}
	if txCount > MaxBlockSize/8 {
		return nil, fmt.Errorf("transaction count %d implausible", txCount)
	}

	b := &Block{Header: header}
	for i := uint64(0); i < txCount; i++ {
		tx, err := transaction.ReadFrom(r)
		if err != nil {
			return nil, fmt.Errorf("malformed transaction %d: %w", i, err)
		}
		b.Transactions = append(b.Transactions, tx)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("malformed block: %d trailing bytes", r.Len())
	}
	return b, nil
}
