package progress

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/config"
)

// OpenBackend opens the backend named by cfg.
func OpenBackend(cfg config.StoreConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	case config.BackendBolt:
		return OpenBolt(cfg.BoltPath)
	case config.BackendNATS:
		return OpenNATS(NATSConfig{
			URL:    cfg.NATSURL,
			Bucket: cfg.NATSBucket,
			Token:  cfg.NATSToken.Value(),
		}, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Open opens the configured backend and wraps it in a Service using the
// configured retry budget.
func Open(cfg config.StoreConfig, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend, err := OpenBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithLogger(logger),
		WithRetryPolicy(RetryPolicy{
			Attempts:   cfg.RetryAttempts,
			Backoff:    cfg.RetryBackoff.Duration(),
			MaxBackoff: cfg.RetryMaxBackoff.Duration(),
		}),
	}
	return NewService(backend, append(base, opts...)...), nil
}
