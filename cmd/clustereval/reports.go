package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
)

var (
	exportOutput  string
	summaryOutput string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file, - for stdout")
	summaryCmd.Flags().StringVarP(&summaryOutput, "output", "o", "-", "output file, - for stdout")
}

// exportCmd writes every stored evaluation as JSON
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored evaluations as JSON",
	Long: `Write every stored evaluation as one JSON object keyed by cluster id.
The output can be loaded back with "clustereval import".

Examples:
  clustereval export -o evaluations.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

// summaryCmd writes judgment counts as CSV
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize judgments as CSV",
	Long: `Count every judgment value of every criterion across the stored
evaluations and write criterion,judgment,count,percentage rows.
Percentages are relative to the evaluations that answered the criterion.

Examples:
  clustereval summary -o summary.csv`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := a.store.LoadAll(cmd.Context())
	if err != nil {
		return err
	}
	return writeOutput(cmd, exportOutput, func(w io.Writer) error {
		return evaluation.Export(w, all)
	})
}

func runSummary(cmd *cobra.Command, _ []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := a.store.LoadAll(cmd.Context())
	if err != nil {
		return err
	}
	return writeOutput(cmd, summaryOutput, evaluation.Summarize(all).WriteCSV)
}

// writeOutput writes to stdout for "-" and to a new or truncated file
// otherwise.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
