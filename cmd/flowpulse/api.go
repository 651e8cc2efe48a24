package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowpulse/flowpulse/pkg/api"
	"github.com/flowpulse/flowpulse/pkg/scheduler"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Start the flowpulse API server. Serves the collected workflow data
and, when the scheduler is enabled, triggers a daily collection run.`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.API == nil {
		return fmt.Errorf("api section is required in config")
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, o, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	trigger := func() {
		o.RunAll(ctx)
	}

	srv := api.NewServer(log, cfg.API, st, trigger)

	if err := srv.Start(ctx); err != nil {
		_ = st.Stop()

		return fmt.Errorf("starting api server: %w", err)
	}

	var sched scheduler.Scheduler

	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(log, cfg.Scheduler, func(ctx context.Context) {
			o.RunAll(ctx)
		})
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down")
	cancel()

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.WithError(err).Warn("Scheduler stop error")
		}
	}

	if err := srv.Stop(); err != nil {
		log.WithError(err).Warn("API server stop error")
	}

	if err := st.Stop(); err != nil {
		return fmt.Errorf("stopping store: %w", err)
	}

	return nil
}
