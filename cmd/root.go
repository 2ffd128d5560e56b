package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/veraxlabs/verax/logx"
)

var rootCmd = &cobra.Command{
	Use:   "verax",
	Short: "Verax validation engine CLI",
	Long:  "Command line interface for running and inspecting a Verax block validation and chain-state engine.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
