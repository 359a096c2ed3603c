package catalog

import (
	"context"
	"sort"

	"github.com/questforge-labs/questforge/internal/models"
)

// StaticCatalog serves definitions from memory. Used in tests and by the
// local development mode where definitions come from a config file instead
// of Postgres.
type StaticCatalog struct {
	Rules       []*models.CampaignRule
	Badges      []*models.BadgeDefinition
	Quests      []*models.QuestDefinition
	Steps       []*models.QuestStep
	StreakRules []*models.StreakRule
	Plans       []*models.CommissionPlan
	TierList    []*models.Tier
}

func (c *StaticCatalog) RulesForEvent(ctx context.Context, projectID, eventName string) ([]*models.CampaignRule, error) {
	var out []*models.CampaignRule
	for _, rule := range c.Rules {
		if rule.ProjectID == projectID && rule.Active && rule.MatchesEventType(eventName) {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (c *StaticCatalog) BadgesForMetric(ctx context.Context, projectID, metric string) ([]*models.BadgeDefinition, error) {
	var out []*models.BadgeDefinition
	for _, badge := range c.Badges {
		if badge.ProjectID == projectID && badge.Active &&
			badge.TriggerMetric == metric && badge.RuleType != models.BadgeRuleManual {
			out = append(out, badge)
		}
	}
	return out, nil
}

func (c *StaticCatalog) StepsForEvent(ctx context.Context, projectID, eventName string) ([]*models.QuestStep, error) {
	active := make(map[string]bool)
	for _, quest := range c.Quests {
		if quest.ProjectID == projectID && quest.Active {
			active[quest.ID] = true
		}
	}

	var out []*models.QuestStep
	for _, step := range c.Steps {
		if step.EventName == eventName && active[step.QuestID] {
			out = append(out, step)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (c *StaticCatalog) Quest(ctx context.Context, projectID, questID string) (*models.QuestDefinition, []*models.QuestStep, error) {
	var quest *models.QuestDefinition
	for _, q := range c.Quests {
		if q.ProjectID == projectID && q.ID == questID {
			quest = q
			break
		}
	}
	if quest == nil {
		return nil, nil, nil
	}

	var steps []*models.QuestStep
	for _, step := range c.Steps {
		if step.QuestID == questID {
			steps = append(steps, step)
		}
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].OrderIndex < steps[j].OrderIndex })
	return quest, steps, nil
}

func (c *StaticCatalog) StreakRulesForEvent(ctx context.Context, projectID, eventType string) ([]*models.StreakRule, error) {
	var out []*models.StreakRule
	for _, rule := range c.StreakRules {
		if rule.ProjectID == projectID && rule.Active && rule.EventType == eventType {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (c *StaticCatalog) CommissionPlan(ctx context.Context, projectID, planID string) (*models.CommissionPlan, error) {
	for _, plan := range c.Plans {
		if plan.ProjectID == projectID && plan.ID == planID {
			return plan, nil
		}
	}
	return nil, nil
}

func (c *StaticCatalog) DefaultCommissionPlan(ctx context.Context, projectID string) (*models.CommissionPlan, error) {
	for _, plan := range c.Plans {
		if plan.ProjectID == projectID && plan.IsDefault {
			return plan, nil
		}
	}
	return nil, nil
}

func (c *StaticCatalog) Tiers(ctx context.Context, projectID string) ([]*models.Tier, error) {
	var out []*models.Tier
	for _, tier := range c.TierList {
		if tier.ProjectID == projectID {
			out = append(out, tier)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinPoints < out[j].MinPoints })
	return out, nil
}

func (c *StaticCatalog) Tier(ctx context.Context, projectID, tierID string) (*models.Tier, error) {
	for _, tier := range c.TierList {
		if tier.ProjectID == projectID && tier.ID == tierID {
			return tier, nil
		}
	}
	return nil, nil
}
