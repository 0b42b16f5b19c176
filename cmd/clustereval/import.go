package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/clusterindex"
	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/logging"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
)

var (
	importDryRun bool
)

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate the file without writing")
}

// importCmd loads an export into the store
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import evaluations from an export file",
	Long: `Write every evaluation of an export file into the configured store,
replacing what is stored for the same clusters. Evaluations for clusters
that are not part of the campaign are skipped and listed. Use it to move progress
between backends or to restore a backup.

Examples:
  # Check a file first
  clustereval import evaluations.json --dry-run

  # Restore into NATS
  CLUSTEREVAL_STORE_BACKEND=nats clustereval import evaluations.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	evals, err := evaluation.Import(f)
	if err != nil {
		return err
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ids := make([]string, 0, len(evals))
	var unknown []string
	for id := range evals {
		if !a.campaign.Index.Contains(id) {
			unknown = append(unknown, id)
			continue
		}
		ids = append(ids, id)
	}
	ids = clusterindex.Order(ids)
	unknown = clusterindex.Order(unknown)

	if len(unknown) > 0 {
		a.logger.Warn(cmd.Context(), "skipping clusters missing from the campaign",
			zap.Strings("cluster_ids", unknown))
		cmd.Printf("%d evaluations skipped, clusters not in the campaign: %s\n",
			len(unknown), strings.Join(unknown, ", "))
	}

	if importDryRun {
		cmd.Printf("%d evaluations would be imported\n", len(ids))
		return nil
	}

	ctx := cmd.Context()
	saved := 0
	for _, id := range ids {
		// Imports replace on purpose.
		res, err := a.store.Upsert(ctx, evals[id], progress.Guard{Overwrite: true})
		if err != nil {
			a.logger.Error(ctx, "import failed", logging.ClusterID(id), zap.Error(err))
			return fmt.Errorf("import stopped at cluster %s after %d of %d: %w", id, saved, len(ids), err)
		}
		if res.Outcome == progress.OutcomeSaved {
			saved++
		}
	}

	a.logger.Info(ctx, "import complete", zap.Int("saved", saved), zap.String("store", storeName(a.cfg.Store)))
	cmd.Printf("%d evaluations imported into %s\n", saved, storeName(a.cfg.Store))
	return nil
}
