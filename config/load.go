package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/types"
)

// NetworkFile is the YAML network definition consumed at startup. It
// selects a built-in network and may override the tunables that differ
// between deployments; consensus constants themselves are not overridable.
type NetworkFile struct {
	Config NetworkOverrides `yaml:"config"`
}

type NetworkOverrides struct {
	Network       string           `yaml:"network"` // "mainnet" | "testnet"
	FinalityDepth uint64           `yaml:"finality_depth"`
	Checkpoints   []CheckpointYAML `yaml:"checkpoints"`
}

type CheckpointYAML struct {
	Height uint64 `yaml:"height"`
	Hash   string `yaml:"hash"`
}

// LoadParams reads a network YAML file and resolves it into Params.
func LoadParams(path string) (*Params, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open network file: %w", err)
	}
	defer file.Close()

	var nf NetworkFile
	if err := yaml.NewDecoder(file).Decode(&nf); err != nil {
		return nil, fmt.Errorf("decode network file: %w", err)
	}

	var params *Params
	switch nf.Config.Network {
	case "", "mainnet":
		params = MainnetParams()
	case "testnet":
		params = TestParams()
	default:
		return nil, fmt.Errorf("unknown network %q", nf.Config.Network)
	}

	if nf.Config.FinalityDepth > 0 {
		params.FinalityDepth = nf.Config.FinalityDepth
	}
	for _, cp := range nf.Config.Checkpoints {
		hash, err := types.HashFromHex(cp.Hash)
		if err != nil {
			return nil, fmt.Errorf("checkpoint at height %d: %w", cp.Height, err)
		}
		params.Checkpoints = append(params.Checkpoints, Checkpoint{Height: cp.Height, Hash: hash})
	}
	if err := validateCheckpoints(params.Checkpoints); err != nil {
		return nil, err
	}

	logx.Info("CONFIG", fmt.Sprintf("Loaded network %s: finality_depth=%d upgrades=%d checkpoints=%d",
		params.Name, params.FinalityDepth, len(params.Upgrades), len(params.Checkpoints)))
	return params, nil
}

func validateCheckpoints(cps []Checkpoint) error {
	for i := 1; i < len(cps); i++ {
		if cps[i].Height <= cps[i-1].Height {
			return fmt.Errorf("checkpoints not strictly ascending at index %d", i)
		}
	}
	return nil
}

// NodeConfig holds per-process tunables with no consensus meaning.
type NodeConfig struct {
	DataDir         string `ini:"data_dir"`
	Backend         string `ini:"backend"` // "leveldb" | "bolt" | "memory"
	VerifyWorkers   int    `ini:"verify_workers"`
	RejectCacheSize int    `ini:"reject_cache_size"`
	MempoolMaxTxs   int    `ini:"mempool_max_txs"`
	MetricsAddr     string `ini:"metrics_addr"`
	CheckpointsPath string `ini:"checkpoints_path"`
	CheckpointsKey  string `ini:"checkpoints_key"` // minisign public key
}

// DefaultNodeConfig returns the tunables used when no INI file is given.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		DataDir:         "./data",
		Backend:         "leveldb",
		VerifyWorkers:   4,
		RejectCacheSize: 4096,
		MempoolMaxTxs:   10_000,
	}
}

// LoadNodeConfig reads node tunables from an .ini file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	nodeCfg := DefaultNodeConfig()
	if err := cfg.Section("node").MapTo(nodeCfg); err != nil {
		return nil, err
	}
	return nodeCfg, nil
}
