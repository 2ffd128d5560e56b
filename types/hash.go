package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the byte length of every content hash in the system.
const HashSize = 32

// Hash is a 32-byte content hash (block hash, transaction hash, digest).
type Hash [HashSize]byte

// ZeroHash is the all-zero hash, used as the parent of the genesis block.
var ZeroHash = Hash{}

// HashFromBytes copies b into a Hash. Returns an error if b is not exactly
// HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a 64-character hex string.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash hex: %w", err)
	}
	return HashFromBytes(b)
}

// MustHashFromHex is HashFromHex for hard-coded values (checkpoints, tests).
func MustHashFromHex(s string) Hash {
	h, err := HashFromHex(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short returns the first 8 hex characters, for log lines.
func (h Hash) Short() string { return hex.EncodeToString(h[:4]) }

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) Equal(other Hash) bool { return bytes.Equal(h[:], other[:]) }

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
