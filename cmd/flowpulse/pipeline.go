package main

import (
	"context"
	"fmt"

	"github.com/flowpulse/flowpulse/pkg/collector"
	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/export"
	"github.com/flowpulse/flowpulse/pkg/orchestrator"
	"github.com/flowpulse/flowpulse/pkg/store"
)

// loadConfig loads and validates the configuration file given via
// --config.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// buildPipeline starts the store and wires collectors, exporter, and
// orchestrator. The caller owns the returned store and must Stop it.
func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
) (store.Store, *orchestrator.Orchestrator, error) {
	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting store: %w", err)
	}

	collectors := collector.BuildEnabled(log, &cfg.Collection)

	var exporter orchestrator.Exporter

	if cfg.Export != nil && cfg.Export.S3 != nil && cfg.Export.S3.Enabled {
		s3Exporter, err := export.NewS3Exporter(log, cfg.Export.S3)
		if err != nil {
			_ = st.Stop()

			return nil, nil, fmt.Errorf("initializing s3 exporter: %w", err)
		}

		if err := s3Exporter.Preflight(ctx); err != nil {
			_ = st.Stop()

			return nil, nil, fmt.Errorf("s3 exporter preflight: %w", err)
		}

		exporter = s3Exporter

		log.Info("Run summary export to S3 enabled")
	}

	o := orchestrator.New(log, &cfg.Collection, st, collectors, exporter)

	return st, o, nil
}
