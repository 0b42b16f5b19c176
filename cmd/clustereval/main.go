// Package main implements the clustereval CLI: the annotation server and
// offline tools over the same campaign and progress store.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath is the optional YAML config file
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clustereval",
	Short: "Human evaluation of token-cluster labels",
	Long: `clustereval serves annotation sessions that compare a baseline and a
candidate label catalog for token clusters, one batch at a time, and records
each annotator's judgments in a shared progress store.

Configuration comes from defaults, an optional YAML file (--config), a .env
file and CLUSTEREVAL_* environment variables, highest last.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
