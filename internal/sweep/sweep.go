// Package sweep runs the background maintenance loops: redispatching
// stuck events whose derived emission failed, and the nightly reset of
// streak freeze flags.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/common/messaging"
	"github.com/questforge-labs/questforge/internal/metrics"
	"github.com/questforge-labs/questforge/internal/repository"
)

const (
	// DefaultStuckInterval is how often the stuck-event queue is drained.
	DefaultStuckInterval = time.Minute

	// DefaultFreezeResetInterval approximates a nightly job. Clearing the
	// flag more often than once per period is harmless; the flag only
	// blocks a second freeze within the same delivery burst.
	DefaultFreezeResetInterval = 24 * time.Hour

	// DefaultBatchSize bounds one drain pass so a long backlog cannot
	// starve the interval.
	DefaultBatchSize = 100
)

// Sweeper owns the maintenance tickers. Start launches the loops; Stop
// waits for the in-flight pass to finish.
type Sweeper struct {
	outbox  repository.OutboxStore
	streaks repository.StreakStore
	bus     messaging.Publisher
	logger  *logging.Logger

	stuckInterval  time.Duration
	freezeInterval time.Duration
	batchSize      int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(outbox repository.OutboxStore, streaks repository.StreakStore, bus messaging.Publisher, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		outbox:         outbox,
		streaks:        streaks,
		bus:            bus,
		logger:         logger,
		stuckInterval:  DefaultStuckInterval,
		freezeInterval: DefaultFreezeResetInterval,
		batchSize:      DefaultBatchSize,
	}
}

// WithIntervals overrides the loop cadence. Zero values keep the defaults.
func (s *Sweeper) WithIntervals(stuck, freeze time.Duration) *Sweeper {
	if stuck > 0 {
		s.stuckInterval = stuck
	}
	if freeze > 0 {
		s.freezeInterval = freeze
	}
	return s
}

// Start launches the background loops. Both run a pass immediately so a
// restart drains any backlog without waiting for the first tick.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.run(ctx, s.stuckInterval, s.SweepStuck)
	go s.run(ctx, s.freezeInterval, s.ResetFreezes)

	s.logger.Info("sweep started",
		"stuck_interval", s.stuckInterval.String(),
		"freeze_interval", s.freezeInterval.String())
}

// Stop cancels the loops and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context, interval time.Duration, pass func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := pass(ctx); err != nil {
		s.logger.Error("sweep pass failed", logging.FieldError, err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pass(ctx); err != nil {
				s.logger.Error("sweep pass failed", logging.FieldError, err)
			}
		}
	}
}

// SweepStuck drains one batch of unresolved stuck events, republishing
// each stored payload on its original subject. Handlers are idempotent,
// so replaying an envelope whose mutations already committed is safe.
func (s *Sweeper) SweepStuck(ctx context.Context) error {
	stuck, err := s.outbox.ListStuck(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, ev := range stuck {
		if err := s.bus.Publish(ctx, ev.Subject, ev.Payload); err != nil {
			s.logger.WarnContext(ctx, "stuck event republish failed",
				logging.FieldProjectID, ev.ProjectID,
				"stuck_event_id", ev.ID,
				"subject", ev.Subject,
				"retry_count", ev.RetryCount,
				logging.FieldError, err)
			if incErr := s.outbox.IncrementStuckRetry(ctx, ev.ID); incErr != nil {
				s.logger.ErrorContext(ctx, "stuck retry bump failed",
					"stuck_event_id", ev.ID, logging.FieldError, incErr)
			}
			continue
		}

		if err := s.outbox.ResolveStuck(ctx, ev.ID); err != nil {
			// The replay is already on the bus; the next pass lists the
			// event again and replays it once more. Idempotent handlers
			// absorb the duplicate.
			s.logger.ErrorContext(ctx, "stuck event resolve failed",
				"stuck_event_id", ev.ID, logging.FieldError, err)
			continue
		}

		metrics.StuckEventsSwept.Inc()
		s.logger.InfoContext(ctx, "stuck event redispatched",
			logging.FieldProjectID, ev.ProjectID,
			"stuck_event_id", ev.ID,
			"subject", ev.Subject,
			"retry_count", ev.RetryCount)
	}
	return nil
}

// ResetFreezes clears the freeze_used_today flag on every streak so the
// next period can spend a freeze again.
func (s *Sweeper) ResetFreezes(ctx context.Context) error {
	cleared, err := s.streaks.ResetFreezeFlags(ctx)
	if err != nil {
		return err
	}
	if cleared > 0 {
		metrics.FreezeFlagsReset.Add(float64(cleared))
		s.logger.InfoContext(ctx, "freeze flags reset", "cleared", cleared)
	}
	return nil
}
