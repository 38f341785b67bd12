package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/rxflow"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of rxflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rxflow version %s\n", strings.TrimSpace(rxflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
