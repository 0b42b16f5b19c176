package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/clustereval/internal/monitor"
)

var (
	monitorServer   string
	monitorInterval time.Duration
)

func init() {
	monitorCmd.Flags().StringVar(&monitorServer, "server", "", "clustereval server URL; empty reads the configured store")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "refresh interval")
}

// monitorCmd opens the live progress dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live progress dashboard",
	Long: `Open a terminal dashboard that polls campaign progress: overall
completion, evaluation rate and per-batch bars.

With --server the dashboard polls a running server. Otherwise it reads the
configured store directly; a bolt file held open by a running server cannot
be shared, so use --server or the nats backend in that case.

Examples:
  clustereval monitor --server http://localhost:8080
  clustereval monitor --interval 2s`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	if monitorInterval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", monitorInterval)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if monitorServer != "" {
		return monitor.Run(ctx, monitor.NewClient(monitorServer), monitorInterval)
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	return monitor.Run(ctx, monitor.NewStoreSource(a.campaign, a.store, storeName(a.cfg.Store)), monitorInterval)
}
