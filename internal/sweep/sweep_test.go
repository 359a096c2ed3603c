package sweep

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/repository"
)

type published struct {
	subject string
	data    []byte
}

type fakeBus struct {
	published []published
	failFirst int
}

func (b *fakeBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.failFirst > 0 {
		b.failFirst--
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, published{subject: subject, data: data})
	return nil
}

func (b *fakeBus) Close() error { return nil }

func newSweeper(bus *fakeBus) (*Sweeper, *repository.InMemoryStore) {
	store := repository.NewInMemoryStore()
	return New(store, store, bus, logging.New(slog.LevelError, "text")), store
}

func markStuck(t *testing.T, store *repository.InMemoryStore, subject string) *models.StuckEvent {
	t.Helper()
	stuck := &models.StuckEvent{
		ProjectID: "p1",
		Subject:   subject,
		Payload:   []byte(`{"projectId":"p1","event":"signup"}`),
		Reason:    "broker unavailable",
	}
	require.NoError(t, store.MarkStuck(context.Background(), stuck))
	return stuck
}

func TestSweepStuck_RepublishesAndResolves(t *testing.T) {
	bus := &fakeBus{}
	s, store := newSweeper(bus)
	stuck := markStuck(t, store, "events.raw.p1")

	require.NoError(t, s.SweepStuck(context.Background()))

	require.Len(t, bus.published, 1)
	assert.Equal(t, "events.raw.p1", bus.published[0].subject)
	assert.Equal(t, stuck.Payload, bus.published[0].data)

	remaining, err := store.ListStuck(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining, "a replayed event leaves the queue")
}

func TestSweepStuck_PublishFailureKeepsEventQueued(t *testing.T) {
	bus := &fakeBus{failFirst: 1}
	s, store := newSweeper(bus)
	markStuck(t, store, "events.derived.p1")

	require.NoError(t, s.SweepStuck(context.Background()))

	remaining, err := store.ListStuck(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 1, remaining[0].RetryCount)

	// Broker recovers; the next pass drains it.
	require.NoError(t, s.SweepStuck(context.Background()))
	remaining, err = store.ListStuck(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	require.Len(t, bus.published, 1)
}

func TestSweepStuck_EmptyQueueIsNoOp(t *testing.T) {
	bus := &fakeBus{}
	s, _ := newSweeper(bus)
	require.NoError(t, s.SweepStuck(context.Background()))
	assert.Empty(t, bus.published)
}

func TestResetFreezes_ClearsFlags(t *testing.T) {
	bus := &fakeBus{}
	s, store := newSweeper(bus)
	ctx := context.Background()

	rule := &models.StreakRule{ID: "sr-1", ProjectID: "p1", Frequency: models.FrequencyDaily, DefaultFreezeCount: 2}
	for _, userID := range []string{"u1", "u2"} {
		streak, err := store.GetOrCreateStreak(ctx, userID, rule)
		require.NoError(t, err)
		streak.FreezeUsedToday = true
		require.NoError(t, store.UpdateStreak(ctx, streak))
	}

	require.NoError(t, s.ResetFreezes(ctx))

	for _, userID := range []string{"u1", "u2"} {
		streak, err := store.GetOrCreateStreak(ctx, userID, rule)
		require.NoError(t, err)
		assert.False(t, streak.FreezeUsedToday)
	}
}

func TestStartStop_RunsImmediatePass(t *testing.T) {
	bus := &fakeBus{}
	s, store := newSweeper(bus)
	markStuck(t, store, "events.raw.p1")

	s.WithIntervals(time.Hour, time.Hour)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		remaining, err := store.ListStuck(context.Background(), 10)
		return err == nil && len(remaining) == 0
	}, time.Second, 10*time.Millisecond, "startup pass drains the backlog without waiting for a tick")
}
