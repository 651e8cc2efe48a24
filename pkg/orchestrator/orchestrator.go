// Package orchestrator runs the collection pipeline: it drives every
// configured source collector, deduplicates observations into
// workflows, persists metric samples, and writes the per-source audit
// trail.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/flowpulse/flowpulse/pkg/collector"
	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/normalize"
	"github.com/flowpulse/flowpulse/pkg/store"
)

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	Platform       string    `json:"platform"`
	Country        string    `json:"country"`
	Outcome        string    `json:"outcome"`
	ItemsCollected int       `json:"items_collected"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// RunSummary describes one full pipeline run across all sources.
type RunSummary struct {
	Date        string         `json:"date"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Sources     []SourceResult `json:"sources"`
}

// Exporter publishes a run summary to an external sink after a run.
type Exporter interface {
	ExportRunSummary(ctx context.Context, summary *RunSummary) error
}

// Orchestrator coordinates one collection run across all sources.
type Orchestrator struct {
	log        logrus.FieldLogger
	cfg        *config.CollectionConfig
	store      store.Store
	collectors []collector.Collector
	exporter   Exporter

	// Now is the clock used to stamp runs and sample dates. Tests
	// override it to pin the collection date.
	Now func() time.Time

	// dbMu serializes store writes across concurrent source tasks.
	dbMu sync.Mutex
}

// New creates an orchestrator over the given collectors. exporter may
// be nil.
func New(
	log logrus.FieldLogger,
	cfg *config.CollectionConfig,
	st store.Store,
	collectors []collector.Collector,
	exporter Exporter,
) *Orchestrator {
	return &Orchestrator{
		log:        log.WithField("component", "orchestrator"),
		cfg:        cfg,
		store:      st,
		collectors: collectors,
		exporter:   exporter,
		Now:        time.Now,
	}
}

// RunAll executes one collection run: every source runs concurrently
// (each paces itself internally), failures are isolated per source,
// and exactly one CollectionRun row is recorded per source. RunAll
// never fails because a source failed; outcomes are observable in the
// audit trail and the returned summary.
func (o *Orchestrator) RunAll(ctx context.Context) *RunSummary {
	startedAt := o.Now().UTC()
	sampleDate := startedAt.Truncate(24 * time.Hour)

	o.log.WithField("sources", len(o.collectors)).
		WithField("sample_date", sampleDate.Format("2006-01-02")).
		Info("Collection run started")

	results := make([]SourceResult, len(o.collectors))

	var g errgroup.Group

	for i, col := range o.collectors {
		i, col := i, col

		g.Go(func() error {
			results[i] = o.runSource(ctx, col, sampleDate)

			return nil
		})
	}

	// Per-source errors never propagate; the group only joins.
	_ = g.Wait()

	summary := &RunSummary{
		Date:        sampleDate.Format("2006-01-02"),
		StartedAt:   startedAt,
		CompletedAt: o.Now().UTC(),
		Sources:     results,
	}

	o.log.WithField("duration", summary.CompletedAt.Sub(summary.StartedAt).String()).
		Info("Collection run finished")

	if o.exporter != nil {
		if err := o.exporter.ExportRunSummary(ctx, summary); err != nil {
			o.log.WithError(err).Error("Exporting run summary failed")
		}
	}

	return summary
}

// runSource collects one source and persists its observations.
// Observations persisted before a mid-source failure are kept; the
// audit row reports how many survived.
func (o *Orchestrator) runSource(
	ctx context.Context,
	col collector.Collector,
	sampleDate time.Time,
) SourceResult {
	platform := col.Platform()
	started := o.Now().UTC()

	log := o.log.WithField("platform", platform)
	log.Info("Collecting source")

	observations, collectErr := col.Collect(ctx, o.paramsFor(platform))

	persisted, saveFailures := 0, 0

	for _, obs := range observations {
		key := normalize.Key(obs.DisplayName)
		if key == "" {
			continue
		}

		o.dbMu.Lock()
		created, err := o.store.RecordObservation(ctx, key, obs, sampleDate)
		o.dbMu.Unlock()

		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				// A concurrent writer won the identity race; the row
				// exists, nothing is lost.
				log.WithField("canonical_key", key).
					Warn("Conflicting concurrent write, skipping observation")

				continue
			}

			saveFailures++

			log.WithError(err).
				WithField("canonical_key", key).
				Error("Persisting observation failed")

			continue
		}

		if created {
			log.WithField("canonical_key", key).
				WithField("country", obs.Country).
				Debug("New workflow discovered")
		}

		persisted++
	}

	result := SourceResult{
		Platform:       platform,
		Country:        o.countryFor(platform),
		ItemsCollected: persisted,
		StartedAt:      started,
		CompletedAt:    o.Now().UTC(),
	}

	switch {
	case collectErr != nil:
		result.Outcome = store.OutcomeFailed
		result.ErrorDetail = collectErr.Error()

		log.WithError(collectErr).
			WithField("items_persisted", persisted).
			Error("Source collection failed")
	case saveFailures > 0:
		result.Outcome = store.OutcomePartial
		result.ErrorDetail = fmt.Sprintf(
			"%d of %d observations failed to persist",
			saveFailures, len(observations),
		)

		log.WithField("failures", saveFailures).
			Warn("Source collection partially persisted")
	default:
		result.Outcome = store.OutcomeSuccess

		log.WithField("items", persisted).
			Info("Source collection succeeded")
	}

	o.appendRunLog(ctx, result)

	return result
}

func (o *Orchestrator) appendRunLog(ctx context.Context, result SourceResult) {
	run := &store.CollectionRun{
		Platform:       result.Platform,
		Country:        result.Country,
		Outcome:        result.Outcome,
		ItemsCollected: result.ItemsCollected,
		ErrorDetail:    result.ErrorDetail,
		StartedAt:      result.StartedAt,
		CompletedAt:    result.CompletedAt,
	}

	o.dbMu.Lock()
	defer o.dbMu.Unlock()

	if err := o.store.AppendRunLog(ctx, run); err != nil {
		o.log.WithError(err).
			WithField("platform", result.Platform).
			Error("Writing collection audit row failed")
	}
}

// paramsFor selects the query terms for a source. Queries are
// per-source; the country segmentation is shared.
func (o *Orchestrator) paramsFor(platform string) collector.Params {
	params := collector.Params{Countries: o.cfg.Countries}

	switch platform {
	case collector.PlatformVideo:
		params.Queries = o.cfg.Video.Queries
	case collector.PlatformSearch:
		params.Queries = o.cfg.Trends.Keywords
	}

	return params
}

// countryFor is the country recorded on a source's audit row. Sources
// that segment by country are logged under the primary configured
// country; the forum carries its fixed default.
func (o *Orchestrator) countryFor(platform string) string {
	if platform == collector.PlatformForum {
		return o.cfg.Forum.DefaultCountry
	}

	if len(o.cfg.Countries) > 0 {
		return o.cfg.Countries[0]
	}

	return config.DefaultForumCountry
}
