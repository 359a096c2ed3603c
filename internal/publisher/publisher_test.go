package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/common/messaging"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/repository"
)

type fakeBus struct {
	published []messaging.Message
	err       error
}

func (b *fakeBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, messaging.Message{Subject: subject, Data: data})
	return nil
}

func (b *fakeBus) Close() error { return nil }

func newEmitter(bus *fakeBus, outbox repository.OutboxStore) *BusEmitter {
	return NewBusEmitter(bus, outbox, logging.New(slog.LevelError, "text"))
}

func TestEmit_PublishesDerivedEnvelope(t *testing.T) {
	bus := &fakeBus{}
	emitter := newEmitter(bus, repository.NewInMemoryStore())

	cause := &models.Envelope{ProjectID: "proj_1", UserID: "ext-1", Event: "purchase.completed"}
	err := emitter.Emit(context.Background(), cause, models.EventBadgeUnlocked, map[string]any{"badgeId": "b1"})
	require.NoError(t, err)

	require.Len(t, bus.published, 1)
	assert.Equal(t, "events.derived.proj_1", bus.published[0].Subject)

	derived, err := models.DecodeEnvelope(bus.published[0].Data)
	require.NoError(t, err)
	assert.Equal(t, models.EventBadgeUnlocked, derived.Event)
	assert.Equal(t, 1, derived.Hops)
	assert.True(t, derived.Trusted())
	assert.Equal(t, "b1", derived.Properties["badgeId"])
}

func TestEmit_FailureMarksSourceStuck(t *testing.T) {
	bus := &fakeBus{err: errors.New("broker unavailable")}
	store := repository.NewInMemoryStore()
	emitter := newEmitter(bus, store)

	cause := &models.Envelope{ProjectID: "proj_1", UserID: "ext-1", Event: "purchase.completed"}
	err := emitter.Emit(context.Background(), cause, models.EventPointsAwarded, nil)
	require.Error(t, err)

	stuck, listErr := store.ListStuck(context.Background(), 10)
	require.NoError(t, listErr)
	require.Len(t, stuck, 1)
	assert.Equal(t, "events.raw.proj_1", stuck[0].Subject, "raw sources replay on the raw subject")
	assert.Contains(t, stuck[0].Reason, "broker unavailable")

	var snapshot models.Envelope
	require.NoError(t, json.Unmarshal(stuck[0].Payload, &snapshot))
	assert.Equal(t, cause.Event, snapshot.Event)
}

func TestEmit_DerivedSourceReplaysOnDerivedSubject(t *testing.T) {
	bus := &fakeBus{err: errors.New("down")}
	store := repository.NewInMemoryStore()
	emitter := newEmitter(bus, store)

	cause := &models.Envelope{ProjectID: "proj_1", Event: models.EventStepCompleted, Hops: 1, Source: models.SourceServer}
	_ = emitter.Emit(context.Background(), cause, models.EventQuestCompleted, nil)

	stuck, err := store.ListStuck(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "events.derived.proj_1", stuck[0].Subject)
}

func TestEmit_HopCapDropsSilently(t *testing.T) {
	bus := &fakeBus{}
	emitter := newEmitter(bus, repository.NewInMemoryStore())

	cause := &models.Envelope{ProjectID: "proj_1", Event: "a.b", Hops: models.MaxCascadeHops}
	err := emitter.Emit(context.Background(), cause, models.EventPointsAwarded, nil)
	require.NoError(t, err)
	assert.Empty(t, bus.published, "events past the hop cap never reach the bus")
}
