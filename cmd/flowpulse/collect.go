package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass across all enabled sources",
	Long: `Collect runs every enabled source once, persists the observations,
records one audit row per source, and exits. Source failures are
isolated; the command only fails on setup errors.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	st, o, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Store stop error")
		}
	}()

	summary := o.RunAll(ctx)

	for _, src := range summary.Sources {
		log.WithField("platform", src.Platform).
			WithField("outcome", src.Outcome).
			WithField("items", src.ItemsCollected).
			Info("Source finished")
	}

	return nil
}
