package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vecna version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vecna %s\n", version)
	},
}
