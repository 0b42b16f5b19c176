package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/config"
	"github.com/fyrsmithlabs/clustereval/internal/logging"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
)

// app bundles what every campaign command opens.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	campaign *campaign.Campaign
	store    *progress.Service
}

// loadConfig loads configuration from --config and the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the structured logger from the logging section.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lc, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(lc)
}

// openApp loads the configuration and opens the store. The campaign
// inputs are loaded only when withCampaign is set, so store-only commands
// run without them.
func openApp(withCampaign bool, opts ...progress.Option) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var c *campaign.Campaign
	if withCampaign {
		c, err = campaign.Load(cfg.Campaign, logger.Underlying())
		if err != nil {
			return nil, fmt.Errorf("failed to load campaign: %w", err)
		}
	}

	store, err := progress.Open(cfg.Store, logger.Underlying(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	return &app{cfg: cfg, logger: logger, campaign: c, store: store}, nil
}

// Close releases the store and flushes logs.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn(context.Background(), "store close failed", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync on exit
}

// storeName describes the configured store for headers and logs.
func storeName(cfg config.StoreConfig) string {
	switch cfg.Backend {
	case config.BackendBolt:
		return "bolt: " + cfg.BoltPath
	case config.BackendNATS:
		return "nats: " + cfg.NATSURL + "/" + cfg.NATSBucket
	}
	return cfg.Backend
}
