package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rxflow",
	Short: "rxflow is a medication refill workflow orchestrator",
	Long:  `rxflow runs the multi-agent refill workflow: intake, safety checks, pharmacy backend reservation and clinical escalation handoff.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("redis", "", "Redis address (overrides config; empty runs in memory)")
}
