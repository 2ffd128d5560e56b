package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/monitoring"
	"github.com/veraxlabs/verax/service"
	"github.com/veraxlabs/verax/store"
	"github.com/veraxlabs/verax/verify"
)

var (
	networkPath string
	nodeIniPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the validation engine",
	Run: func(cmd *cobra.Command, args []string) {
		runEngine(networkPath, nodeIniPath)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&networkPath, "network", "n", "config/network.yml", "Network definition file")
	runCmd.Flags().StringVarP(&nodeIniPath, "config", "c", "", "Node tunables .ini file")
}

func runEngine(networkPath, nodeIniPath string) {
	params, err := config.LoadParams(networkPath)
	if err != nil {
		log.Fatalf("Failed to load network parameters: %v", err)
	}

	nodeCfg := config.DefaultNodeConfig()
	if nodeIniPath != "" {
		nodeCfg, err = config.LoadNodeConfig(nodeIniPath)
		if err != nil {
			log.Fatalf("Failed to load node config: %v", err)
		}
	}

	if nodeCfg.CheckpointsPath != "" {
		cps, err := config.LoadCheckpointFile(nodeCfg.CheckpointsPath, nodeCfg.CheckpointsKey)
		if err != nil {
			log.Fatalf("Failed to load checkpoints: %v", err)
		}
		params.Checkpoints = append(params.Checkpoints, cps...)
	}

	if err := os.MkdirAll(nodeCfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data dir %s: %v", nodeCfg.DataDir, err)
	}

	monitoring.InitMetrics()

	provider, err := store.NewProvider(nodeCfg.Backend, filepath.Join(nodeCfg.DataDir, "chainstate"))
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", nodeCfg.Backend, err)
	}

	engine, err := service.NewEngine(params, provider, service.Options{
		VerifyWorkers:   nodeCfg.VerifyWorkers,
		RejectCacheSize: nodeCfg.RejectCacheSize,
		MempoolMaxTxs:   nodeCfg.MempoolMaxTxs,
		Proofs:          loadProofChecker(nodeCfg),
	})
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	if nodeCfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		go func() {
			logx.Info("CMD", fmt.Sprintf("Metrics listening on %s", nodeCfg.MetricsAddr))
			if err := http.ListenAndServe(nodeCfg.MetricsAddr, mux); err != nil {
				logx.Error("CMD", "Metrics listener failed:", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logx.Info("CMD", fmt.Sprintf("Received %s, shutting down", sig))

	if err := engine.Close(); err != nil {
		logx.Error("CMD", "Close failed:", err)
		os.Exit(1)
	}
}

// loadProofChecker selects the shielded proof backend. Mainnet requires
// the Groth16 verifying keys next to the data dir; test networks fall back
// to permissive checking.
func loadProofChecker(nodeCfg *config.NodeConfig) verify.ProofChecker {
	keyDir := filepath.Join(nodeCfg.DataDir, "vkeys")
	paths := verify.VerifyingKeyPaths(keyDir)
	if len(paths) == 0 {
		logx.Warn("CMD", "No verifying keys found, shielded proofs are NOT checked")
		return verify.SkipProofs{}
	}
	checker, err := verify.NewGroth16Checker(paths)
	if err != nil {
		log.Fatalf("Failed to load verifying keys: %v", err)
	}
	return checker
}
