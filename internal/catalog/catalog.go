// Package catalog serves tenant configuration (campaign rules, badge and
// quest definitions, streak rules, commission plans, tiers) to the
// progression handlers. Definitions change rarely; the read path is a
// Postgres source behind a short-TTL Redis cache.
package catalog

import (
	"context"

	"github.com/questforge-labs/questforge/internal/models"
)

// Catalog is the definition read surface handlers evaluate against.
// Implementations return only active definitions.
type Catalog interface {
	// RulesForEvent returns the tenant's active campaign rules whose event
	// filter admits the event name, ordered by priority descending.
	RulesForEvent(ctx context.Context, projectID, eventName string) ([]*models.CampaignRule, error)

	// BadgesForMetric returns active automatic badge definitions whose
	// trigger metric matches. MANUAL badges are never returned.
	BadgesForMetric(ctx context.Context, projectID, metric string) ([]*models.BadgeDefinition, error)

	// StepsForEvent returns steps of active quests triggered by the event
	// name.
	StepsForEvent(ctx context.Context, projectID, eventName string) ([]*models.QuestStep, error)

	// Quest returns one quest definition with its steps ordered by
	// OrderIndex.
	Quest(ctx context.Context, projectID, questID string) (*models.QuestDefinition, []*models.QuestStep, error)

	// StreakRulesForEvent returns active streak rules keyed on the event
	// type.
	StreakRulesForEvent(ctx context.Context, projectID, eventType string) ([]*models.StreakRule, error)

	// CommissionPlan resolves a plan by id; DefaultCommissionPlan resolves
	// the tenant's default. Both return (nil, nil) when no plan exists:
	// a missing plan means no commission, not an error.
	CommissionPlan(ctx context.Context, projectID, planID string) (*models.CommissionPlan, error)
	DefaultCommissionPlan(ctx context.Context, projectID string) (*models.CommissionPlan, error)

	// Tiers returns the tenant's tiers ordered by MinPoints ascending.
	Tiers(ctx context.Context, projectID string) ([]*models.Tier, error)

	// Tier returns one tier by id, or nil when absent.
	Tier(ctx context.Context, projectID, tierID string) (*models.Tier, error)
}
