// Package dispatch routes decoded event envelopes to the progression
// handlers registered for their event name.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/metrics"
	"github.com/questforge-labs/questforge/internal/models"
)

// Handler processes one event envelope. Handlers must be idempotent: the
// bus delivers at least once and the sweep redispatches stuck events.
type Handler interface {
	// Name identifies the handler in logs and metrics. Unique per registry.
	Name() string

	// EventNames returns the exact event names the handler subscribes to.
	// An empty slice subscribes the handler to every event.
	EventNames() []string

	Handle(ctx context.Context, env *models.Envelope) error
}

// Selective is an optional refinement: a handler that subscribes broadly
// but can cheaply reject envelopes before Handle runs.
type Selective interface {
	ShouldHandle(ctx context.Context, env *models.Envelope) bool
}

// Result is the outcome of one handler invocation during a dispatch.
type Result struct {
	Handler string
	Err     error
}

// Registry routes envelopes to handlers. Registration happens once at
// startup; Dispatch is then safe for concurrent use.
type Registry struct {
	byEvent  map[string][]Handler
	matchAll []Handler
	names    map[string]bool
	logger   *logging.Logger
}

func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		byEvent: make(map[string][]Handler),
		names:   make(map[string]bool),
		logger:  logger,
	}
}

// Register adds a handler under each of its event names, preserving
// registration order within a name. Registering a second handler with an
// already-used name replaces the first and logs a warning.
func (r *Registry) Register(h Handler) {
	if r.names[h.Name()] {
		r.logger.Warn("replacing handler with duplicate name", logging.FieldHandler, h.Name())
		r.remove(h.Name())
	}
	r.names[h.Name()] = true

	events := h.EventNames()
	if len(events) == 0 {
		r.matchAll = append(r.matchAll, h)
		return
	}
	for _, event := range events {
		r.byEvent[event] = append(r.byEvent[event], h)
	}
}

func (r *Registry) remove(name string) {
	for event, handlers := range r.byEvent {
		r.byEvent[event] = filterOut(handlers, name)
	}
	r.matchAll = filterOut(r.matchAll, name)
}

func filterOut(handlers []Handler, name string) []Handler {
	out := handlers[:0]
	for _, h := range handlers {
		if h.Name() != name {
			out = append(out, h)
		}
	}
	return out
}

// HandlersFor returns the handlers that would run for an event name:
// exact-name subscribers in registration order, then match-all handlers.
func (r *Registry) HandlersFor(event string) []Handler {
	exact := r.byEvent[event]
	handlers := make([]Handler, 0, len(exact)+len(r.matchAll))
	handlers = append(handlers, exact...)
	handlers = append(handlers, r.matchAll...)
	return handlers
}

// Dispatch runs every subscribed handler against the envelope. A handler
// error never stops the remaining handlers; each outcome is reported in
// the results. An event with no subscribers is dropped silently with one
// debug line.
func (r *Registry) Dispatch(ctx context.Context, env *models.Envelope) []Result {
	ctx = logging.WithDispatchID(ctx, uuid.NewString())

	handlers := r.HandlersFor(env.Event)
	if len(handlers) == 0 {
		r.logger.DebugContext(ctx, "no handlers for event",
			logging.FieldProjectID, env.ProjectID, logging.FieldEvent, env.Event)
		return nil
	}

	results := make([]Result, 0, len(handlers))
	for _, h := range handlers {
		if sel, ok := h.(Selective); ok && !sel.ShouldHandle(ctx, env) {
			continue
		}

		start := time.Now()
		err := h.Handle(ctx, env)
		metrics.HandlerDuration.WithLabelValues(h.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.HandlerErrors.WithLabelValues(h.Name()).Inc()
			r.logger.ErrorContext(ctx, "handler failed",
				logging.FieldHandler, h.Name(),
				logging.FieldProjectID, env.ProjectID,
				logging.FieldEvent, env.Event,
				logging.FieldError, err)
		}
		results = append(results, Result{Handler: h.Name(), Err: err})
	}
	return results
}
