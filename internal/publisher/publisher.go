// Package publisher emits derived events back onto the bus. When a publish
// fails after the handler's state mutation already committed, the source
// envelope is recorded as stuck so the sweep can redispatch it.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/common/messaging"
	"github.com/questforge-labs/questforge/internal/metrics"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/repository"
)

// PublishTimeout bounds one publish attempt.
const PublishTimeout = 5 * time.Second

// Emitter is the derived-event surface handlers use.
type Emitter interface {
	// Emit publishes a derived event caused by the given source envelope.
	// A nil error means the event is on the bus; on failure the source is
	// marked stuck and the error is returned so callers can log it, but
	// the handler's own state mutation stands.
	Emit(ctx context.Context, cause *models.Envelope, eventName string, properties map[string]any) error
}

// BusEmitter publishes derived envelopes over the message bus.
type BusEmitter struct {
	bus    messaging.Publisher
	outbox repository.OutboxStore
	logger *logging.Logger
}

func NewBusEmitter(bus messaging.Publisher, outbox repository.OutboxStore, logger *logging.Logger) *BusEmitter {
	return &BusEmitter{bus: bus, outbox: outbox, logger: logger}
}

func (e *BusEmitter) Emit(ctx context.Context, cause *models.Envelope, eventName string, properties map[string]any) error {
	derived := models.NewDerived(cause, eventName, properties)
	derived.EventID = uuid.NewString()

	// A cascade deeper than the hop cap is almost certainly a rule cycle.
	// The event is dropped here rather than bounced by the consumer.
	if derived.Hops > models.MaxCascadeHops {
		metrics.HopCapDrops.Inc()
		e.logger.WarnContext(ctx, "derived event dropped at cascade hop cap",
			logging.FieldProjectID, derived.ProjectID,
			logging.FieldEvent, derived.Event,
			"hops", derived.Hops)
		return nil
	}

	payload, err := json.Marshal(derived)
	if err != nil {
		return fmt.Errorf("marshal derived event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	subject := messaging.DerivedEventSubject(derived.ProjectID)
	if err := e.bus.Publish(publishCtx, subject, payload); err != nil {
		metrics.EmitFailures.Inc()
		e.markSourceStuck(ctx, cause, err)
		return fmt.Errorf("publish derived event %s: %w", derived.Event, err)
	}

	metrics.DerivedEventsEmitted.WithLabelValues(derived.Event).Inc()
	return nil
}

// markSourceStuck records the source envelope so the sweep can replay it.
// Handlers are idempotent, so replaying a partially processed source is
// safe and eventually emits the missing derived events.
func (e *BusEmitter) markSourceStuck(ctx context.Context, cause *models.Envelope, emitErr error) {
	payload, err := json.Marshal(cause)
	if err != nil {
		e.logger.ErrorContext(ctx, "cannot snapshot source for stuck marker",
			logging.FieldProjectID, cause.ProjectID, logging.FieldError, err)
		return
	}

	subject := messaging.RawEventSubject(cause.ProjectID)
	if cause.Hops > 0 {
		subject = messaging.DerivedEventSubject(cause.ProjectID)
	}

	stuck := &models.StuckEvent{
		ProjectID: cause.ProjectID,
		Subject:   subject,
		Payload:   payload,
		Reason:    emitErr.Error(),
	}
	if err := e.outbox.MarkStuck(ctx, stuck); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark source event stuck",
			logging.FieldProjectID, cause.ProjectID,
			logging.FieldEvent, cause.Event,
			logging.FieldError, err)
		return
	}

	e.logger.WarnContext(ctx, "source event marked stuck after emit failure",
		logging.FieldProjectID, cause.ProjectID,
		logging.FieldEvent, cause.Event,
		logging.FieldError, emitErr)
}
