package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/clustereval/internal/config"
)

var (
	configOutput string
	configForce  bool
)

func init() {
	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", "clustereval.yaml", "file to write, - for stdout")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

// configInitCmd writes a default config file
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration as commented YAML. Fill in the campaign
paths before running "clustereval serve".

Examples:
  clustereval config init
  clustereval config init -o - > clustereval.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd prints the effective configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and environment
overrides are applied. Secrets are redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return cfg.WriteYAML(cmd.OutOrStdout())
	},
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if configOutput == "-" {
		return cfg.WriteYAML(cmd.OutOrStdout())
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if configForce {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(configOutput, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s already exists, use --force to overwrite", configOutput)
		}
		return fmt.Errorf("failed to create %s: %w", configOutput, err)
	}
	if err := cfg.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	cmd.Printf("Wrote default configuration to %s\n", configOutput)
	return nil
}
