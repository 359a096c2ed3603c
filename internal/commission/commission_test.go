package commission

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/repository"
)

type emitted struct {
	event string
	props map[string]any
}

type fakeEmitter struct {
	events []emitted
}

func (e *fakeEmitter) Emit(ctx context.Context, cause *models.Envelope, eventName string, properties map[string]any) error {
	e.events = append(e.events, emitted{event: eventName, props: properties})
	return nil
}

type fixture struct {
	store   *repository.InMemoryStore
	emitter *fakeEmitter
	handler *Handler
}

func newFixture(plans ...*models.CommissionPlan) *fixture {
	store := repository.NewInMemoryStore()
	emitter := &fakeEmitter{}
	cat := &catalog.StaticCatalog{Plans: plans}
	return &fixture{
		store:   store,
		emitter: emitter,
		handler: NewHandler(cat, store, store, emitter, logging.New(slog.LevelError, "text")),
	}
}

// linkReferral creates the referrer and links the referred external id.
func (f *fixture) linkReferral(t *testing.T, referredExtID string) *models.EndUser {
	t.Helper()
	ctx := context.Background()
	referrer, err := f.store.FindOrCreateUser(ctx, "p1", "ext-referrer")
	require.NoError(t, err)
	_, err = f.store.LinkReferral(ctx, &models.ReferralTracking{
		ProjectID: "p1", ReferrerID: referrer.ID, ReferredExternalID: referredExtID,
	})
	require.NoError(t, err)
	return referrer
}

func purchase(amount any) *models.Envelope {
	return &models.Envelope{
		EventID:   "evt-1",
		ProjectID: "p1", UserID: "ext-buyer", Event: "purchase.completed",
		Properties: map[string]any{"amount": amount, "orderId": "ord-1"},
		Source:     models.SourceServer,
	}
}

func defaultPercentPlan() *models.CommissionPlan {
	return &models.CommissionPlan{ID: "plan-default", ProjectID: "p1",
		Type: models.PlanPercentage, Value: 1000, IsDefault: true} // 10%
}

func TestHandle_BooksPendingCommission(t *testing.T) {
	f := newFixture(defaultPercentPlan())
	referrer := f.linkReferral(t, "ext-buyer")

	require.NoError(t, f.handler.Handle(context.Background(), purchase(5000.0)))

	entries := f.store.Commissions()
	require.Len(t, entries, 1)
	assert.Equal(t, referrer.ID, entries[0].EndUserID)
	assert.Equal(t, int64(500), entries[0].Amount, "10% of 5000 minor units")
	assert.Equal(t, int64(5000), entries[0].SourceAmount)
	assert.Equal(t, models.CommissionPending, entries[0].Status)
	assert.Equal(t, "ord-1", entries[0].OrderID)
	assert.Equal(t, "evt-1", entries[0].SourceEventID, "the ledger records which event produced it")

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, models.EventCommissionCreated, f.emitter.events[0].event)
	assert.Equal(t, int64(500), f.emitter.events[0].props["amount"])
	assert.Equal(t, "evt-1", f.emitter.events[0].props["sourceEventId"])
}

func TestHandle_FractionalAmountIsMajorUnits(t *testing.T) {
	f := newFixture(defaultPercentPlan())
	f.linkReferral(t, "ext-buyer")

	// 49.99 major units -> 4999 minor units -> 499 commission.
	require.NoError(t, f.handler.Handle(context.Background(), purchase(49.99)))

	entries := f.store.Commissions()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(499), entries[0].Amount)
}

func TestShouldHandle_UntrustedRejected(t *testing.T) {
	f := newFixture(defaultPercentPlan())
	env := purchase(5000.0)
	env.Source = models.SourceClient
	assert.False(t, f.handler.ShouldHandle(context.Background(), env))

	env.Source = ""
	assert.False(t, f.handler.ShouldHandle(context.Background(), env), "missing source is untrusted")

	env.Source = models.SourceServer
	assert.True(t, f.handler.ShouldHandle(context.Background(), env))
}

func TestShouldHandle_OnlyPurchaseMetricsPayCommission(t *testing.T) {
	f := newFixture(defaultPercentPlan())
	ctx := context.Background()

	// A trusted refund carries money but must never book commission.
	refund := purchase(5000.0)
	refund.Event = "refund.issued"
	assert.False(t, f.handler.ShouldHandle(ctx, refund))

	payout := purchase(5000.0)
	payout.Event = "payout.sent"
	assert.False(t, f.handler.ShouldHandle(ctx, payout))

	checkout := purchase(5000.0)
	checkout.Event = "checkout_success"
	assert.True(t, f.handler.ShouldHandle(ctx, checkout))
}

func TestHandle_NoReferrerIsNoOp(t *testing.T) {
	f := newFixture(defaultPercentPlan())
	require.NoError(t, f.handler.Handle(context.Background(), purchase(5000.0)))
	assert.Empty(t, f.store.Commissions())
	assert.Empty(t, f.emitter.events)
}

func TestHandle_NoAmountIsNoOp(t *testing.T) {
	f := newFixture(defaultPercentPlan())
	f.linkReferral(t, "ext-buyer")

	env := &models.Envelope{ProjectID: "p1", UserID: "ext-buyer", Event: "purchase.completed",
		Source: models.SourceServer, Properties: map[string]any{"sku": "A-1"}}
	require.NoError(t, f.handler.Handle(context.Background(), env))
	assert.Empty(t, f.store.Commissions())
}

func TestHandle_ExplicitPlanBeatsDefault(t *testing.T) {
	explicit := &models.CommissionPlan{ID: "plan-vip", ProjectID: "p1",
		Type: models.PlanFixed, Value: 777}
	f := newFixture(defaultPercentPlan(), explicit)
	referrer := f.linkReferral(t, "ext-buyer")

	f.store.SetCommissionPlan(referrer.ID, "plan-vip")

	require.NoError(t, f.handler.Handle(context.Background(), purchase(5000.0)))

	entries := f.store.Commissions()
	require.Len(t, entries, 1)
	assert.Equal(t, "plan-vip", entries[0].CommissionPlanID)
	assert.Equal(t, int64(777), entries[0].Amount)
}

func TestHandle_NoPlanNoCommission(t *testing.T) {
	f := newFixture() // no plans at all
	f.linkReferral(t, "ext-buyer")

	require.NoError(t, f.handler.Handle(context.Background(), purchase(5000.0)))
	assert.Empty(t, f.store.Commissions())
}

func TestHandle_TinyAmountFloorsToZeroAndSkips(t *testing.T) {
	f := newFixture(defaultPercentPlan())
	f.linkReferral(t, "ext-buyer")

	// 10% of 4 minor units floors to 0; nothing is booked.
	require.NoError(t, f.handler.Handle(context.Background(), purchase(4.0)))
	assert.Empty(t, f.store.Commissions())
}
