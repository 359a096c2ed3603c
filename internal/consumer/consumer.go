// Package consumer binds the bus subscriptions to the dispatch registry
// and the redemption processor.
package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/common/messaging"
	"github.com/questforge-labs/questforge/internal/dispatch"
	"github.com/questforge-labs/questforge/internal/metrics"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/redemption"
)

// Drop reasons reported in metrics.
const (
	dropDecodeError = "decode_error"
	dropHopCap      = "hop_cap"
)

// Consumer owns the worker's queue subscriptions. Raw and derived events
// flow into the dispatch registry; redemption commands go to the
// redemption processor.
type Consumer struct {
	bus         messaging.Subscriber
	registry    *dispatch.Registry
	redemptions *redemption.Processor
	logger      *logging.Logger

	subs []messaging.Subscription
}

func New(bus messaging.Subscriber, registry *dispatch.Registry, redemptions *redemption.Processor, logger *logging.Logger) *Consumer {
	return &Consumer{bus: bus, registry: registry, redemptions: redemptions, logger: logger}
}

// Start opens the queue subscriptions. Workers in the same queue group
// share messages, so scaling out adds throughput without duplicating
// processing.
func (c *Consumer) Start() error {
	subscriptions := []struct {
		subject string
		queue   string
		handler messaging.MessageHandler
	}{
		{messaging.RawEventWildcard(), messaging.QueueProgressionWorkers, c.envelopeHandler("raw")},
		{messaging.DerivedEventWildcard(), messaging.QueueProgressionWorkers, c.envelopeHandler("derived")},
		{messaging.SubjectCommandsRedeem, messaging.QueueRedemptionWorkers, c.redemptions.HandleMessage},
	}

	for _, s := range subscriptions {
		sub, err := c.bus.QueueSubscribe(s.subject, s.queue, s.handler)
		if err != nil {
			c.Stop()
			return fmt.Errorf("subscribe %s: %w", s.subject, err)
		}
		c.subs = append(c.subs, sub)
		c.logger.Info("subscribed", "subject", s.subject, "queue", s.queue)
	}
	return nil
}

// Stop unsubscribes everything. In-flight handlers finish on their own.
func (c *Consumer) Stop() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribe failed", "subject", sub.Subject(), logging.FieldError, err)
		}
	}
	c.subs = nil
}

// envelopeHandler decodes bus payloads and dispatches them. Undecodable
// payloads and hop-capped cascades are dropped; redelivery cannot fix
// either. Handler failures are isolated inside the registry, so the
// message is always acked.
func (c *Consumer) envelopeHandler(stream string) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		env, err := models.DecodeEnvelope(msg.Data)
		if err != nil {
			if errors.Is(err, models.ErrInvalidEnvelope) {
				metrics.EventsDropped.WithLabelValues(dropDecodeError).Inc()
				c.logger.WarnContext(ctx, "dropping undecodable envelope",
					"subject", msg.Subject, logging.FieldError, err)
				return nil
			}
			return err
		}

		if env.Hops > models.MaxCascadeHops {
			metrics.EventsDropped.WithLabelValues(dropHopCap).Inc()
			c.logger.WarnContext(ctx, "dropping envelope past cascade hop cap",
				logging.FieldProjectID, env.ProjectID,
				logging.FieldEvent, env.Event,
				"hops", env.Hops)
			return nil
		}

		metrics.EventsConsumed.WithLabelValues(stream).Inc()
		c.registry.Dispatch(ctx, env)
		return nil
	}
}
