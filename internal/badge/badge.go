// Package badge awards automatic badges when an event's metric clears a
// definition's threshold.
package badge

import (
	"context"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/repository"
)

// Handler evaluates badge definitions against the event's metric.
type Handler struct {
	catalog catalog.Catalog
	users   repository.UserStore
	badges  repository.BadgeStore
	emitter publisher.Emitter
	logger  *logging.Logger
}

func NewHandler(cat catalog.Catalog, users repository.UserStore, badges repository.BadgeStore, emitter publisher.Emitter, logger *logging.Logger) *Handler {
	return &Handler{catalog: cat, users: users, badges: badges, emitter: emitter, logger: logger}
}

func (h *Handler) Name() string { return "badge" }

// EventNames is empty: badge definitions key on metrics, which are derived
// from event names, so any event can be a trigger.
func (h *Handler) EventNames() []string { return nil }

func (h *Handler) ShouldHandle(ctx context.Context, env *models.Envelope) bool {
	return env.UserID != ""
}

func (h *Handler) Handle(ctx context.Context, env *models.Envelope) error {
	definitions, err := h.catalog.BadgesForMetric(ctx, env.ProjectID, env.Metric())
	if err != nil {
		return err
	}
	if len(definitions) == 0 {
		return nil
	}

	user, err := h.users.FindOrCreateUser(ctx, env.ProjectID, env.UserID)
	if err != nil {
		return err
	}

	value := env.MetricValue()
	for _, def := range definitions {
		if !qualifies(def, value) {
			continue
		}

		owned, err := h.badges.HasBadge(ctx, user.ID, def.ID)
		if err != nil {
			return err
		}
		if owned {
			continue
		}

		// The insert is the race guard: two concurrent deliveries both pass
		// HasBadge, one insert wins, the loser skips the emission.
		awarded, err := h.badges.AwardBadge(ctx, user.ID, def.ID)
		if err != nil {
			return err
		}
		if !awarded {
			continue
		}

		h.logger.InfoContext(ctx, "badge awarded",
			logging.FieldEndUserID, user.ID,
			logging.FieldBadgeID, def.ID,
			logging.FieldEvent, env.Event)

		// The snapshot is denormalized so downstream consumers render the
		// unlock without a catalog lookup.
		_ = h.emitter.Emit(ctx, env, models.EventBadgeUnlocked, map[string]any{
			"badgeId":    def.ID,
			"badgeName":  def.Name,
			"category":   def.Category,
			"rarity":     def.Rarity,
			"visibility": string(def.Visibility),
		})
	}
	return nil
}

// qualifies applies the definition's rule to the event's metric value.
// MANUAL definitions never qualify; the catalog filters them out, and the
// check here keeps that invariant local.
func qualifies(def *models.BadgeDefinition, value float64) bool {
	switch def.RuleType {
	case models.BadgeRuleMetricThreshold, models.BadgeRuleEventCount:
		return value >= def.Threshold
	default:
		return false
	}
}
