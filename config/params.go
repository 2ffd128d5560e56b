package config

import (
	"sort"
	"time"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// RuleSet is the consensus-rule descriptor in force from some activation
// height. Upgrades never branch on type at verification time: the verifier
// looks the descriptor up by height and reads plain fields.
type RuleSet struct {
	Name     string `yaml:"name"`
	BranchID uint32 `yaml:"branch_id"`

	// ActivePools lists the shielded pools that may appear in
	// transactions, and whose roots must appear in headers.
	ActivePools []types.Pool `yaml:"active_pools"`

	// KeyAlgs lists the transparent signature schemes outputs may be
	// locked to.
	KeyAlgs []transaction.KeyAlg `yaml:"key_algs"`

	CoinbaseMaturity uint64 `yaml:"coinbase_maturity"`

	// EnforceExpiry rejects transactions whose ExpiryHeight has passed.
	EnforceExpiry bool `yaml:"enforce_expiry"`
}

// PoolActive reports whether the rule set allows pool.
func (r *RuleSet) PoolActive(pool types.Pool) bool {
	for _, p := range r.ActivePools {
		if p == pool {
			return true
		}
	}
	return false
}

// KeyAlgAllowed reports whether the rule set accepts alg for transparent
// outputs and inputs.
func (r *RuleSet) KeyAlgAllowed(alg transaction.KeyAlg) bool {
	for _, a := range r.KeyAlgs {
		if a == alg {
			return true
		}
	}
	return false
}

// Upgrade binds a rule set to its activation height.
type Upgrade struct {
	Height uint64  `yaml:"height"`
	Rules  RuleSet `yaml:"rules"`
}

// Checkpoint is a trusted (height, hash) pair. A block at a checkpoint
// height must match exactly; everything at or below a matched checkpoint
// skips script and proof verification.
type Checkpoint struct {
	Height uint64     `yaml:"height"`
	Hash   types.Hash `yaml:"hash"`
}

// Params is the immutable consensus configuration handed to every engine
// component at construction. Nothing here changes at runtime.
type Params struct {
	Name  string
	Magic uint32

	Genesis *block.Block

	// Proof of work
	PowLimitBits     uint32
	TargetSpacing    time.Duration
	AveragingWindow  int
	MedianTimeSpan   int
	MaxAdjustUpPct   uint64
	MaxAdjustDownPct uint64
	MaxFutureDrift   time.Duration

	// FinalityDepth is the number of confirming blocks after which a block
	// is copied into the finalized store and can no longer reorg.
	FinalityDepth uint64

	// Subsidy schedule
	InitialSubsidy  uint64
	HalvingInterval uint64

	// Upgrades is the ordered rule-set activation table. The first entry
	// must activate at height 0.
	Upgrades []Upgrade

	// Checkpoints is ordered ascending by height.
	Checkpoints []Checkpoint
}

// RuleSetForHeight returns the rule set in force at height: the descriptor
// of the latest upgrade whose activation height does not exceed it.
func (p *Params) RuleSetForHeight(height uint64) *RuleSet {
	idx := sort.Search(len(p.Upgrades), func(i int) bool {
		return p.Upgrades[i].Height > height
	})
	return &p.Upgrades[idx-1].Rules
}

// CheckpointAt returns the trusted hash for height, if one exists.
func (p *Params) CheckpointAt(height uint64) (types.Hash, bool) {
	idx := sort.Search(len(p.Checkpoints), func(i int) bool {
		return p.Checkpoints[i].Height >= height
	})
	if idx < len(p.Checkpoints) && p.Checkpoints[idx].Height == height {
		return p.Checkpoints[idx].Hash, true
	}
	return types.Hash{}, false
}

// LastCheckpointHeight returns the highest checkpointed height, or 0 when
// no checkpoints are configured.
func (p *Params) LastCheckpointHeight() uint64 {
	if len(p.Checkpoints) == 0 {
		return 0
	}
	return p.Checkpoints[len(p.Checkpoints)-1].Height
}

// BlockSubsidy returns the maximum value a coinbase at height may create,
// before fees.
func (p *Params) BlockSubsidy(height uint64) uint64 {
	if p.HalvingInterval == 0 {
		return p.InitialSubsidy
	}
	halvings := height / p.HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return p.InitialSubsidy >> halvings
}
