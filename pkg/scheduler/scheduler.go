// Package scheduler triggers the collection pipeline once per day at a
// configured UTC wall-clock time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowpulse/flowpulse/pkg/config"
)

// Scheduler is a background service firing the pipeline daily.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Scheduler = (*scheduler)(nil)

type scheduler struct {
	log    logrus.FieldLogger
	at     time.Duration // offset from midnight UTC
	run    func(ctx context.Context)
	done   chan struct{}
	wg     sync.WaitGroup

	// now is overridable for tests.
	now func() time.Time
}

// New creates a daily scheduler from the given configuration.
func New(
	log logrus.FieldLogger,
	cfg config.SchedulerConfig,
	run func(ctx context.Context),
) (Scheduler, error) {
	at, err := config.ParseClock(cfg.At)
	if err != nil {
		return nil, err
	}

	return &scheduler{
		log:  log.WithField("component", "scheduler"),
		at:   at,
		run:  run,
		done: make(chan struct{}),
		now:  time.Now,
	}, nil
}

// Start launches the background trigger goroutine. The first firing is
// the next occurrence of the configured wall-clock time; the caller is
// never blocked.
func (s *scheduler) Start(ctx context.Context) error {
	s.log.WithField("at", s.fireTime().Format(time.RFC3339)).
		Info("Starting daily collection scheduler")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for {
			wait := time.Until(s.fireTime())

			select {
			case <-time.After(wait):
				s.log.Info("Scheduled collection triggered")

				s.run(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the scheduler goroutine to stop and waits for it.
func (s *scheduler) Stop() error {
	close(s.done)
	s.wg.Wait()

	s.log.Info("Scheduler stopped")

	return nil
}

// fireTime returns the next occurrence of the configured UTC
// wall-clock time after now.
func (s *scheduler) fireTime() time.Time {
	now := s.now().UTC()
	midnight := now.Truncate(24 * time.Hour)
	next := midnight.Add(s.at)

	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}

	return next
}
