package streak

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/repository"
)

type fakeEmitter struct {
	events []string
	props  []map[string]any
}

func (e *fakeEmitter) Emit(ctx context.Context, cause *models.Envelope, eventName string, properties map[string]any) error {
	e.events = append(e.events, eventName)
	e.props = append(e.props, properties)
	return nil
}

func newHandler(rules ...*models.StreakRule) (*Handler, *repository.InMemoryStore, *fakeEmitter) {
	store := repository.NewInMemoryStore()
	emitter := &fakeEmitter{}
	cat := &catalog.StaticCatalog{StreakRules: rules}
	h := NewHandler(cat, store, store, store, emitter, logging.New(slog.LevelError, "text"))
	return h, store, emitter
}

func lessonEvent(day int) *models.Envelope {
	return &models.Envelope{
		ProjectID: "p1", UserID: "ext-1", Event: "lesson.completed",
		Timestamp: time.Date(2026, 8, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandle_AdvancesAndRecordsHistory(t *testing.T) {
	rule := &models.StreakRule{ID: "sr1", ProjectID: "p1", EventType: "lesson.completed",
		Frequency: models.FrequencyDaily, DefaultFreezeCount: 2, Active: true}
	h, store, _ := newHandler(rule)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, lessonEvent(1)))
	require.NoError(t, h.Handle(ctx, lessonEvent(2)))

	user, _ := store.FindOrCreateUser(ctx, "p1", "ext-1")
	streak, err := store.GetOrCreateStreak(ctx, user.ID, rule)
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentCount)
	assert.Equal(t, 2, streak.FreezeInventory, "inventory seeds from the rule default")

	history := store.StreakHistory()
	require.Len(t, history, 2)
	assert.Equal(t, string(models.ActionStarted), history[0].Action)
	assert.Equal(t, string(models.ActionExtended), history[1].Action)
}

func TestHandle_SameDayWritesNothing(t *testing.T) {
	rule := &models.StreakRule{ID: "sr1", ProjectID: "p1", EventType: "lesson.completed",
		Frequency: models.FrequencyDaily, Active: true}
	h, store, _ := newHandler(rule)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, lessonEvent(1)))
	require.NoError(t, h.Handle(ctx, lessonEvent(1)))

	assert.Len(t, store.StreakHistory(), 1, "same-day replays leave no trace")
}

func TestHandle_MilestonePaysXPBadgeAndEmits(t *testing.T) {
	rule := &models.StreakRule{ID: "sr1", ProjectID: "p1", EventType: "lesson.completed",
		Frequency: models.FrequencyDaily, Active: true,
		Milestones: []models.StreakMilestone{{Day: 2, RewardXP: 40, BadgeID: "badge-2day"}}}
	h, store, emitter := newHandler(rule)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, lessonEvent(1)))
	require.NoError(t, h.Handle(ctx, lessonEvent(2)))

	user, _ := store.FindOrCreateUser(ctx, "p1", "ext-1")
	got, _ := store.GetUser(ctx, user.ID)
	assert.Equal(t, int64(40), got.LoyaltyPoints)

	owned, _ := store.HasBadge(ctx, user.ID, "badge-2day")
	assert.True(t, owned)

	require.Contains(t, emitter.events, models.EventStreakMilestone)
	last := emitter.props[len(emitter.props)-1]
	assert.Equal(t, 2, last["day"])

	entries := store.LedgerEntries(user.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerTypeStreak, entries[0].Type)

	history := store.StreakHistory()
	require.Len(t, history, 3)
	assert.Equal(t, models.HistoryMilestoneReached, history[2].Action)
}

func TestHandle_UnmatchedEventIgnored(t *testing.T) {
	rule := &models.StreakRule{ID: "sr1", ProjectID: "p1", EventType: "lesson.completed",
		Frequency: models.FrequencyDaily, Active: true}
	h, store, _ := newHandler(rule)

	env := &models.Envelope{ProjectID: "p1", UserID: "ext-1", Event: "purchase.completed"}
	require.NoError(t, h.Handle(context.Background(), env))
	assert.Empty(t, store.StreakHistory())
}
