package config

import (
	"time"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// Built-in network definitions. Mainnet numbers are fixed for the life of
// the network; the test network keeps the same shape with a trivial work
// requirement so blocks can be produced in tests.

const (
	mainnetMagic uint32 = 0x56525821 // "VRX!"
	testnetMagic uint32 = 0x56525854 // "VRXT"
)

func baseRules() RuleSet {
	return RuleSet{
		Name:             "founding",
		BranchID:         0x00000000,
		ActivePools:      []types.Pool{types.PoolSprout},
		KeyAlgs:          []transaction.KeyAlg{transaction.KeyAlgSecp256k1},
		CoinbaseMaturity: 100,
	}
}

func auroraRules() RuleSet {
	return RuleSet{
		Name:             "aurora",
		BranchID:         0x6a75af15,
		ActivePools:      []types.Pool{types.PoolSprout, types.PoolSapling},
		KeyAlgs:          []transaction.KeyAlg{transaction.KeyAlgSecp256k1, transaction.KeyAlgEd25519},
		CoinbaseMaturity: 100,
		EnforceExpiry:    true,
	}
}

func meridianRules() RuleSet {
	return RuleSet{
		Name:             "meridian",
		BranchID:         0x8e1b7d20,
		ActivePools:      []types.Pool{types.PoolSprout, types.PoolSapling, types.PoolOrchard},
		KeyAlgs:          []transaction.KeyAlg{transaction.KeyAlgSecp256k1, transaction.KeyAlgEd25519},
		CoinbaseMaturity: 100,
		EnforceExpiry:    true,
	}
}

func genesisBlock(timestamp int64, bits uint32) *block.Block {
	coinbase := &transaction.Transaction{
		Version: 1,
		Outputs: []transaction.TxOut{{
			Value:      50 * 100_000_000,
			KeyAlg:     transaction.KeyAlgSecp256k1,
			PubKeyHash: transaction.PubKeyDigest([]byte("verax genesis 2024-02-19")),
		}},
	}
	b := &block.Block{
		Header: block.Header{
			Version:    1,
			ParentHash: types.ZeroHash,
			Timestamp:  timestamp,
			Bits:       bits,
		},
		Transactions: []*transaction.Transaction{coinbase},
	}
	b.Header.MerkleRoot = block.MerkleRoot(b.TxHashes())
	return b
}

// MainnetParams returns the production network definition.
func MainnetParams() *Params {
	return &Params{
		Name:  "mainnet",
		Magic: mainnetMagic,

		Genesis: genesisBlock(1708300800, 0x1f07ffff),

		PowLimitBits:     0x1f07ffff,
		TargetSpacing:    75 * time.Second,
		AveragingWindow:  17,
		MedianTimeSpan:   11,
		MaxAdjustUpPct:   16,
		MaxAdjustDownPct: 32,
		MaxFutureDrift:   2 * time.Hour,

		FinalityDepth: 100,

		InitialSubsidy:  50 * 100_000_000,
		HalvingInterval: 840_000,

		Upgrades: []Upgrade{
			{Height: 0, Rules: baseRules()},
			{Height: 150_000, Rules: auroraRules()},
			{Height: 500_000, Rules: meridianRules()},
		},
	}
}

// TestParams returns a network with the mainnet rule shape but a work
// requirement any header satisfies, immediate upgrades and a short
// maturity, so engine tests can build chains directly.
func TestParams() *Params {
	founding := baseRules()
	founding.CoinbaseMaturity = 2

	aurora := auroraRules()
	aurora.CoinbaseMaturity = 2

	meridian := meridianRules()
	meridian.CoinbaseMaturity = 2

	return &Params{
		Name:  "testnet",
		Magic: testnetMagic,

		Genesis: genesisBlock(1708300800, 0x207fffff),

		PowLimitBits:     0x207fffff,
		TargetSpacing:    75 * time.Second,
		AveragingWindow:  17,
		MedianTimeSpan:   11,
		MaxAdjustUpPct:   16,
		MaxAdjustDownPct: 32,
		MaxFutureDrift:   2 * time.Hour,

		FinalityDepth: 100,

		InitialSubsidy:  50 * 100_000_000,
		HalvingInterval: 840_000,

		Upgrades: []Upgrade{
			{Height: 0, Rules: founding},
			{Height: 10, Rules: aurora},
			{Height: 20, Rules: meridian},
		},
	}
}
