package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/monitor"
)

var (
	statusOpenOnly bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusOpenOnly, "open", false, "only list batches with clusters left")
}

// statusCmd prints per-batch progress
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show evaluation progress per batch",
	Long: `Show how many clusters of each batch have been evaluated, read directly
from the configured progress store.

Examples:
  # Every batch
  clustereval status

  # Only batches that still need work
  clustereval status --open`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := a.store.LoadAll(cmd.Context())
	if err != nil {
		return err
	}
	report := a.campaign.Progress(all)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Evaluated:"), monitor.FormatCount(report.Evaluated, report.Total),
		labelStyle.Render("Remaining:"), strconv.Itoa(report.Remaining),
		labelStyle.Render("Complete:"), monitor.FormatPercentage(report.Percent()))
	fmt.Fprintln(out, renderStatusTable(report, statusOpenOnly))
	return nil
}

// renderStatusTable renders one row per batch.
func renderStatusTable(report campaign.Report, openOnly bool) string {
	rows := make([][]string, 0, len(report.Batches))
	for _, b := range report.Batches {
		if openOnly && b.Done == b.Total {
			continue
		}
		state := "open"
		switch {
		case b.Done == b.Total:
			state = "done"
		case b.Done == 0:
			state = "new"
		}
		rows = append(rows, []string{
			strconv.Itoa(b.Window.Number),
			fmt.Sprintf("%d-%d", b.Window.Start, b.Window.End-1),
			monitor.FormatCount(b.Done, b.Total),
			strconv.Itoa(b.Total - b.Done),
			state,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("BATCH", "CLUSTERS", "DONE", "LEFT", "STATE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 4 && row >= 0 && row < len(rows) {
				switch rows[row][4] {
				case "done":
					return okStyle.Padding(0, 1)
				case "open":
					return warnStyle.Padding(0, 1)
				}
			}
			return cellStyle
		}).
		String()
}
