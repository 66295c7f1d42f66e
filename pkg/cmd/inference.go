package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/veracitybio/veracity/pkg/config"
	"github.com/veracitybio/veracity/pkg/inference"
	"github.com/veracitybio/veracity/pkg/inference/cache"
)

// NewInferenceClient builds the resilient inference client from CLI
// configuration: HTTP backend, optional Redis response cache, fallback
// target chain. The returned closer releases the cache connection.
func NewInferenceClient(cfg config.Inference, logger *slog.Logger) (*inference.Client, func() error, error) {
	var backend inference.Backend = inference.NewHTTPBackend(cfg.BackendURL, time.Duration(cfg.AttemptTimeout))

	closer := func() error { return nil }

	if cfg.CacheURL != "" {
		cached, err := cache.New(backend, cfg.CacheURL, time.Duration(cfg.CacheTTL), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create inference cache: %w", err)
		}

		backend = cached
		closer = cached.Close
	}

	backoffs, err := cfg.ClientBackoffs()
	if err != nil {
		return nil, nil, err
	}

	client, err := inference.NewClient(backend, inference.Config{
		Targets:              cfg.Targets,
		MaxAttemptsPerTarget: cfg.MaxAttemptsPerTarget,
		AttemptTimeout:       time.Duration(cfg.AttemptTimeout),
		Backoffs:             backoffs,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	return client, closer, nil
}
