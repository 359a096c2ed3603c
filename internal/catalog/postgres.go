package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/questforge-labs/questforge/common/database"
	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/models"
)

// PostgresCatalog reads definitions straight from Postgres. Rules with
// unparseable condition or effect tags are skipped with a warning rather
// than failing the whole lookup.
type PostgresCatalog struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

func NewPostgresCatalog(pool *pgxpool.Pool, logger *logging.Logger) *PostgresCatalog {
	return &PostgresCatalog{pool: pool, logger: logger}
}

func (c *PostgresCatalog) RulesForEvent(ctx context.Context, projectID, eventName string) ([]*models.CampaignRule, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT id, campaign_id, project_id, priority, event_types, conditions, effects
		 FROM campaign_rules
		 WHERE project_id = $1 AND active
		 ORDER BY priority DESC, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query campaign rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.CampaignRule
	for rows.Next() {
		rule := &models.CampaignRule{Active: true}
		var conditionsJSON, effectsJSON []byte
		if err := rows.Scan(&rule.ID, &rule.CampaignID, &rule.ProjectID, &rule.Priority,
			&rule.EventTypes, &conditionsJSON, &effectsJSON); err != nil {
			return nil, fmt.Errorf("scan campaign rule: %w", err)
		}
		if err := models.UnmarshalRuleJSON(rule, conditionsJSON, effectsJSON); err != nil {
			c.logger.Warn("skipping invalid campaign rule",
				logging.FieldRuleID, rule.ID, logging.FieldError, err)
			continue
		}
		if rule.MatchesEventType(eventName) {
			rules = append(rules, rule)
		}
	}
	return rules, rows.Err()
}

func (c *PostgresCatalog) BadgesForMetric(ctx context.Context, projectID, metric string) ([]*models.BadgeDefinition, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT id, project_id, name, COALESCE(category, ''), rule_type,
		        COALESCE(trigger_metric, ''), COALESCE(threshold, 0),
		        COALESCE(rarity, ''), visibility
		 FROM badge_definitions
		 WHERE project_id = $1 AND trigger_metric = $2 AND active AND rule_type <> 'MANUAL'`,
		projectID, metric,
	)
	if err != nil {
		return nil, fmt.Errorf("query badge definitions: %w", err)
	}
	defer rows.Close()

	var badges []*models.BadgeDefinition
	for rows.Next() {
		badge := &models.BadgeDefinition{Active: true}
		if err := rows.Scan(&badge.ID, &badge.ProjectID, &badge.Name, &badge.Category,
			&badge.RuleType, &badge.TriggerMetric, &badge.Threshold,
			&badge.Rarity, &badge.Visibility); err != nil {
			return nil, fmt.Errorf("scan badge definition: %w", err)
		}
		badges = append(badges, badge)
	}
	return badges, rows.Err()
}

func (c *PostgresCatalog) StepsForEvent(ctx context.Context, projectID, eventName string) ([]*models.QuestStep, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT s.id, s.quest_id, s.event_name, s.required_count, s.order_index
		 FROM quest_steps s
		 JOIN quest_definitions q ON q.id = s.quest_id
		 WHERE q.project_id = $1 AND q.active AND s.event_name = $2
		 ORDER BY s.order_index`,
		projectID, eventName,
	)
	if err != nil {
		return nil, fmt.Errorf("query quest steps: %w", err)
	}
	defer rows.Close()

	return scanSteps(rows)
}

func (c *PostgresCatalog) Quest(ctx context.Context, projectID, questID string) (*models.QuestDefinition, []*models.QuestStep, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	quest := &models.QuestDefinition{}
	err := c.pool.QueryRow(ctx,
		`SELECT id, project_id, name, reward_xp, COALESCE(reward_badge_id, ''), active
		 FROM quest_definitions
		 WHERE project_id = $1 AND id = $2`,
		projectID, questID,
	).Scan(&quest.ID, &quest.ProjectID, &quest.Name, &quest.RewardXP, &quest.RewardBadgeID, &quest.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query quest definition: %w", err)
	}

	rows, err := c.pool.Query(ctx,
		`SELECT id, quest_id, event_name, required_count, order_index
		 FROM quest_steps
		 WHERE quest_id = $1
		 ORDER BY order_index`,
		questID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query quest steps: %w", err)
	}
	defer rows.Close()

	steps, err := scanSteps(rows)
	if err != nil {
		return nil, nil, err
	}
	return quest, steps, nil
}

func scanSteps(rows pgx.Rows) ([]*models.QuestStep, error) {
	var steps []*models.QuestStep
	for rows.Next() {
		step := &models.QuestStep{}
		if err := rows.Scan(&step.ID, &step.QuestID, &step.EventName, &step.RequiredCount, &step.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan quest step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (c *PostgresCatalog) StreakRulesForEvent(ctx context.Context, projectID, eventType string) ([]*models.StreakRule, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT id, project_id, event_type, frequency, milestones,
		        default_freeze_count, timezone_offset_minutes
		 FROM streak_rules
		 WHERE project_id = $1 AND event_type = $2 AND active`,
		projectID, eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("query streak rules: %w", err)
	}
	defer rows.Close()

	var streakRules []*models.StreakRule
	for rows.Next() {
		rule := &models.StreakRule{Active: true}
		if err := rows.Scan(&rule.ID, &rule.ProjectID, &rule.EventType, &rule.Frequency,
			&rule.Milestones, &rule.DefaultFreezeCount, &rule.TimezoneOffsetMinutes); err != nil {
			return nil, fmt.Errorf("scan streak rule: %w", err)
		}
		streakRules = append(streakRules, rule)
	}
	return streakRules, rows.Err()
}

func (c *PostgresCatalog) CommissionPlan(ctx context.Context, projectID, planID string) (*models.CommissionPlan, error) {
	return c.queryPlan(ctx,
		`SELECT id, project_id, type, value, COALESCE(currency, ''), is_default
		 FROM commission_plans
		 WHERE project_id = $1 AND id = $2`,
		projectID, planID)
}

func (c *PostgresCatalog) DefaultCommissionPlan(ctx context.Context, projectID string) (*models.CommissionPlan, error) {
	return c.queryPlan(ctx,
		`SELECT id, project_id, type, value, COALESCE(currency, ''), is_default
		 FROM commission_plans
		 WHERE project_id = $1 AND is_default
		 LIMIT 1`,
		projectID)
}

func (c *PostgresCatalog) queryPlan(ctx context.Context, query string, args ...any) (*models.CommissionPlan, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	plan := &models.CommissionPlan{}
	err := c.pool.QueryRow(ctx, query, args...).Scan(
		&plan.ID, &plan.ProjectID, &plan.Type, &plan.Value, &plan.Currency, &plan.IsDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query commission plan: %w", err)
	}
	return plan, nil
}

func (c *PostgresCatalog) Tiers(ctx context.Context, projectID string) ([]*models.Tier, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT id, project_id, name, min_points, rank
		 FROM tiers
		 WHERE project_id = $1
		 ORDER BY min_points`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tiers: %w", err)
	}
	defer rows.Close()

	var tiers []*models.Tier
	for rows.Next() {
		tier := &models.Tier{}
		if err := rows.Scan(&tier.ID, &tier.ProjectID, &tier.Name, &tier.MinPoints, &tier.Rank); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

func (c *PostgresCatalog) Tier(ctx context.Context, projectID, tierID string) (*models.Tier, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	tier := &models.Tier{}
	err := c.pool.QueryRow(ctx,
		`SELECT id, project_id, name, min_points, rank
		 FROM tiers
		 WHERE project_id = $1 AND id = $2`,
		projectID, tierID,
	).Scan(&tier.ID, &tier.ProjectID, &tier.Name, &tier.MinPoints, &tier.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tier: %w", err)
	}
	return tier, nil
}
