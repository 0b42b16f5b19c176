package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/clustereval/internal/clusterindex"
	"github.com/fyrsmithlabs/clustereval/internal/navigator"
)

var (
	indexShowErrors int
)

func init() {
	indexCmd.Flags().IntVar(&indexShowErrors, "show-errors", 10, "number of rejected lines to print")
}

// indexCmd checks the occurrences file
var indexCmd = &cobra.Command{
	Use:   "index [occurrences-file]",
	Short: "Build the cluster index and report rejected lines",
	Long: `Build the cluster index from an occurrences file and report how many
clusters, records and rejected lines it holds. Without an argument the
configured campaign.occurrences_path is used.

Examples:
  # Check the configured occurrences file
  clustereval index

  # Check a file and list every rejected line
  clustereval index clusters.txt --show-errors 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := ""
	batchSize := navigator.DefaultBatchSize
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Campaign.OccurrencesPath
		batchSize = cfg.Campaign.BatchSize
	}
	if path == "" {
		return fmt.Errorf("no occurrences file: pass one or set campaign.occurrences_path")
	}

	index, err := clusterindex.BuildFile(path, nil)
	if err != nil {
		return err
	}
	report := index.Report()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("File:"), path)
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Lines:"), report.Lines)
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Records:"), report.Records)
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Clusters:"), index.Len())
	fmt.Fprintf(out, "%s %d of %d\n", labelStyle.Render("Batches:"),
		navigator.BatchCount(index.Len(), batchSize), batchSize)
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Rejected:"), report.Skipped)

	shown := min(indexShowErrors, len(report.Errors))
	for _, perr := range report.Errors[:shown] {
		fmt.Fprintf(out, "  %s\n", warnStyle.Render(perr.Error()))
	}
	if report.Skipped > shown {
		fmt.Fprintf(out, "  %s\n", dimStyle.Render(fmt.Sprintf("... %d more", report.Skipped-shown)))
	}
	return nil
}
