package types

import (
	"encoding/binary"
	"fmt"
)

// Outpoint identifies a transaction output by the hash of the transaction
// that created it and the output's position within that transaction.
type Outpoint struct {
	TxHash Hash   `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash, o.Index)
}

// Bytes returns the canonical 36-byte encoding used as a storage key.
func (o Outpoint) Bytes() []byte {
	buf := make([]byte, HashSize+4)
	copy(buf, o.TxHash[:])
	binary.BigEndian.PutUint32(buf[HashSize:], o.Index)
	return buf
}

// OutpointFromBytes parses the canonical 36-byte encoding.
func OutpointFromBytes(b []byte) (Outpoint, error) {
	if len(b) != HashSize+4 {
		return Outpoint{}, fmt.Errorf("invalid outpoint length %d", len(b))
	}
	var o Outpoint
	copy(o.TxHash[:], b[:HashSize])
	o.Index = binary.BigEndian.Uint32(b[HashSize:])
	return o, nil
}
