package block

import (
	"github.com/holiman/uint256"
)

// Compact difficulty encoding: the high byte is a base-256 exponent, the
// low three bytes a mantissa. Same representation miners and headers use
// everywhere, so targets survive serialization exactly.

// CompactToTarget expands compact bits into the 256-bit target. The bool is
// false when the encoding is invalid (zero, negative or overflowing).
func CompactToTarget(bits uint32) (*uint256.Int, bool) {
	mantissa := bits & 0x007fffff
	exponent := uint(bits >> 24)

	if mantissa == 0 || bits&0x00800000 != 0 {
		return nil, false
	}

	target := uint256.NewInt(uint64(mantissa))
	if exponent <= 3 {
		target.Rsh(target, 8*(3-exponent))
		return target, true
	}

	shift := 8 * (exponent - 3)
	if shift > 256-24 {
		return nil, false
	}
	target.Lsh(target, shift)
	return target, true
}

// TargetToCompact packs a target back into compact bits.
func TargetToCompact(target *uint256.Int) uint32 {
	if target.IsZero() {
		return 0
	}

	exponent := (target.BitLen() + 7) / 8
	var mantissa uint32
	tmp := new(uint256.Int)
	if exponent <= 3 {
		mantissa = uint32(target.Uint64() << (8 * (3 - uint(exponent))))
	} else {
		tmp.Rsh(target, 8*uint(exponent-3))
		mantissa = uint32(tmp.Uint64())
	}

	// Avoid setting the sign bit; bump the exponent instead.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	return uint32(exponent)<<24 | mantissa
}

// Work returns the expected number of hash attempts the header's target
// represents: 2^256 / (target + 1). Chain work is the sum of this over all
// blocks.
func Work(bits uint32) *uint256.Int {
	target, ok := CompactToTarget(bits)
	if !ok {
		return uint256.NewInt(0)
	}

	// 2^256/(t+1) computed in 256-bit arithmetic: with d = t+1,
	// (2^256 - d) is the two's-complement negation of d, and
	// (2^256 - d)/d + 1 == floor(2^256/d).
	denom := new(uint256.Int).AddUint64(target, 1)
	neg := new(uint256.Int).Neg(denom)
	work := new(uint256.Int).Div(neg, denom)
	return work.AddUint64(work, 1)
}

// HashMeetsTarget reports whether the block hash, interpreted as a
// little-endian 256-bit integer, does not exceed the target.
func HashMeetsTarget(hash [32]byte, target *uint256.Int) bool {
	// Hash bytes are little-endian on the wire; reverse for comparison.
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = hash[31-i]
	}
	value := new(uint256.Int).SetBytes(be[:])
	return value.Cmp(target) <= 0
}
