package types

import "fmt"

// Pool identifies a shielded value pool. Each pool carries its own
// commitment tree, nullifier set and proof system, and is switched on by a
// network upgrade.
type Pool uint8

const (
	PoolSprout Pool = iota + 1
	PoolSapling
	PoolOrchard
)

// Pools lists every pool in activation order.
var Pools = []Pool{PoolSprout, PoolSapling, PoolOrchard}

func (p Pool) String() string {
	switch p {
	case PoolSprout:
		return "sprout"
	case PoolSapling:
		return "sapling"
	case PoolOrchard:
		return "orchard"
	default:
		return fmt.Sprintf("pool(%d)", uint8(p))
	}
}

// Valid reports whether p names a known pool.
func (p Pool) Valid() bool {
	return p >= PoolSprout && p <= PoolOrchard
}
