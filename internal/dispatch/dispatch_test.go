package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/models"
)

type fakeHandler struct {
	name   string
	events []string
	err    error
	calls  []*models.Envelope
}

func (h *fakeHandler) Name() string         { return h.name }
func (h *fakeHandler) EventNames() []string { return h.events }

func (h *fakeHandler) Handle(ctx context.Context, env *models.Envelope) error {
	h.calls = append(h.calls, env)
	return h.err
}

type selectiveHandler struct {
	fakeHandler
	accept func(*models.Envelope) bool
}

func (h *selectiveHandler) ShouldHandle(ctx context.Context, env *models.Envelope) bool {
	return h.accept(env)
}

func newTestRegistry() *Registry {
	return NewRegistry(logging.New(slog.LevelError, "text"))
}

func TestRegistry_ExactNameRouting(t *testing.T) {
	registry := newTestRegistry()
	purchase := &fakeHandler{name: "purchase", events: []string{"purchase.completed"}}
	signup := &fakeHandler{name: "signup", events: []string{"signup"}}
	registry.Register(purchase)
	registry.Register(signup)

	results := registry.Dispatch(context.Background(), &models.Envelope{ProjectID: "p1", Event: "purchase.completed"})
	require.Len(t, results, 1)
	assert.Equal(t, "purchase", results[0].Handler)
	assert.Len(t, purchase.calls, 1)
	assert.Empty(t, signup.calls)
}

func TestRegistry_MatchAllAlwaysRuns(t *testing.T) {
	registry := newTestRegistry()
	exact := &fakeHandler{name: "exact", events: []string{"login"}}
	all := &fakeHandler{name: "all"}
	registry.Register(exact)
	registry.Register(all)

	registry.Dispatch(context.Background(), &models.Envelope{Event: "login"})
	registry.Dispatch(context.Background(), &models.Envelope{Event: "something.else"})

	assert.Len(t, exact.calls, 1)
	assert.Len(t, all.calls, 2, "match-all handlers see every event")
}

func TestRegistry_OrderExactThenMatchAll(t *testing.T) {
	registry := newTestRegistry()
	registry.Register(&fakeHandler{name: "first", events: []string{"e"}})
	registry.Register(&fakeHandler{name: "second", events: []string{"e"}})
	registry.Register(&fakeHandler{name: "broad"})

	results := registry.Dispatch(context.Background(), &models.Envelope{Event: "e"})
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Handler)
	assert.Equal(t, "second", results[1].Handler)
	assert.Equal(t, "broad", results[2].Handler)
}

func TestRegistry_NoSubscribersIsSilentDrop(t *testing.T) {
	registry := newTestRegistry()
	results := registry.Dispatch(context.Background(), &models.Envelope{Event: "unknown.event"})
	assert.Nil(t, results)
}

func TestRegistry_ErrorIsolation(t *testing.T) {
	registry := newTestRegistry()
	failing := &fakeHandler{name: "failing", events: []string{"e"}, err: errors.New("boom")}
	healthy := &fakeHandler{name: "healthy", events: []string{"e"}}
	registry.Register(failing)
	registry.Register(healthy)

	results := registry.Dispatch(context.Background(), &models.Envelope{Event: "e"})
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Len(t, healthy.calls, 1, "a failing handler must not starve the rest")
}

func TestRegistry_DuplicateNameLastWins(t *testing.T) {
	registry := newTestRegistry()
	old := &fakeHandler{name: "dup", events: []string{"e"}}
	replacement := &fakeHandler{name: "dup", events: []string{"e"}}
	registry.Register(old)
	registry.Register(replacement)

	registry.Dispatch(context.Background(), &models.Envelope{Event: "e"})
	assert.Empty(t, old.calls)
	assert.Len(t, replacement.calls, 1)
}

func TestRegistry_SelectiveHandler(t *testing.T) {
	registry := newTestRegistry()
	handler := &selectiveHandler{
		fakeHandler: fakeHandler{name: "picky"},
		accept: func(env *models.Envelope) bool {
			return env.ProjectID == "wanted"
		},
	}
	registry.Register(handler)

	results := registry.Dispatch(context.Background(), &models.Envelope{ProjectID: "other", Event: "e"})
	assert.Empty(t, results, "rejected envelopes produce no result")

	results = registry.Dispatch(context.Background(), &models.Envelope{ProjectID: "wanted", Event: "e"})
	require.Len(t, results, 1)
	assert.Len(t, handler.calls, 1)
}

func TestRegistry_DispatchSetsDispatchID(t *testing.T) {
	registry := newTestRegistry()
	var seen string
	registry.Register(&ctxCaptureHandler{fn: func(ctx context.Context) {
		seen = logging.GetDispatchID(ctx)
	}})

	registry.Dispatch(context.Background(), &models.Envelope{Event: "e"})
	assert.NotEmpty(t, seen, "handlers run under a dispatch id")
}

type ctxCaptureHandler struct {
	fn func(context.Context)
}

func (h *ctxCaptureHandler) Name() string         { return "ctx-capture" }
func (h *ctxCaptureHandler) EventNames() []string { return nil }
func (h *ctxCaptureHandler) Handle(ctx context.Context, env *models.Envelope) error {
	h.fn(ctx)
	return nil
}
