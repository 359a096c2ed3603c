package campaign

import (
	"context"
	"fmt"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/repository"
)

// EffectResult records the outcome of one effect execution.
type EffectResult struct {
	RuleID     string
	EffectType models.EffectType
	Success    bool
	Deferred   bool
	Err        error
}

// Executor applies the effects of matched rules. Each effect is isolated:
// one failing effect never blocks the others.
type Executor struct {
	users   repository.UserStore
	catalog catalog.Catalog
	emitter publisher.Emitter
	logger  *logging.Logger
}

func NewExecutor(users repository.UserStore, cat catalog.Catalog, emitter publisher.Emitter, logger *logging.Logger) *Executor {
	return &Executor{users: users, catalog: cat, emitter: emitter, logger: logger}
}

// Execute runs every effect of the rule for the resolved user.
func (x *Executor) Execute(ctx context.Context, rule *models.CampaignRule, user *models.EndUser, env *models.Envelope) []EffectResult {
	results := make([]EffectResult, 0, len(rule.Effects))
	for _, effect := range rule.Effects {
		result := EffectResult{RuleID: rule.ID, EffectType: effect.Type}

		if effect.Type.Deferred() {
			result.Deferred = true
			result.Success = true
			results = append(results, result)
			continue
		}

		var err error
		switch effect.Type {
		case models.EffectAddLoyaltyPoints:
			err = x.addLoyaltyPoints(ctx, rule, effect, user, env)
		case models.EffectUpgradeTier:
			err = x.upgradeTier(ctx, rule, effect, user, env)
		default:
			err = fmt.Errorf("unhandled effect type %q", effect.Type)
		}

		if err != nil {
			result.Err = err
			x.logger.ErrorContext(ctx, "effect execution failed",
				logging.FieldRuleID, rule.ID,
				logging.FieldEffect, string(effect.Type),
				logging.FieldEndUserID, user.ID,
				logging.FieldError, err)
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results
}

func (x *Executor) addLoyaltyPoints(ctx context.Context, rule *models.CampaignRule, effect models.Effect, user *models.EndUser, env *models.Envelope) error {
	points := effect.PointsParam()
	if points <= 0 {
		return fmt.Errorf("add_loyalty_points: missing or non-positive points param")
	}

	entry, err := x.users.AppendLedger(ctx, user.ID, points, models.LedgerTypeCampaign, rule.ID, "campaign_rule")
	if err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}

	x.logger.InfoContext(ctx, "loyalty points awarded",
		logging.FieldRuleID, rule.ID,
		logging.FieldEndUserID, user.ID,
		logging.FieldAmount, points)

	if err := x.emitter.Emit(ctx, env, models.EventPointsAwarded, map[string]any{
		"points":  points,
		"balance": entry.BalanceAfter,
		"ruleId":  rule.ID,
	}); err != nil {
		// The ledger write stands; the sweep replays the source.
		return nil
	}

	// Tier auto-evaluation rides on every points award so users cross tier
	// boundaries without an explicit upgrade_tier rule.
	if err := x.autoUpgradeTier(ctx, user, entry.BalanceAfter, env); err != nil {
		x.logger.WarnContext(ctx, "tier auto-evaluation failed",
			logging.FieldEndUserID, user.ID, logging.FieldError, err)
	}
	return nil
}

func (x *Executor) upgradeTier(ctx context.Context, rule *models.CampaignRule, effect models.Effect, user *models.EndUser, env *models.Envelope) error {
	tierID := effect.StringParam("tierId")
	if tierID == "" {
		current, err := x.users.GetUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		return x.autoUpgradeTier(ctx, user, current.LoyaltyPoints, env)
	}

	target, err := x.catalog.Tier(ctx, user.ProjectID, tierID)
	if err != nil {
		return fmt.Errorf("resolve tier: %w", err)
	}
	if target == nil {
		return fmt.Errorf("upgrade_tier: unknown tier %q", tierID)
	}
	return x.applyTier(ctx, user, target, env)
}

// autoUpgradeTier moves the user to the highest tier whose threshold the
// balance clears. Tiers only go up here; downgrades are administrative.
func (x *Executor) autoUpgradeTier(ctx context.Context, user *models.EndUser, balance int64, env *models.Envelope) error {
	tiers, err := x.catalog.Tiers(ctx, user.ProjectID)
	if err != nil {
		return fmt.Errorf("load tiers: %w", err)
	}

	var target *models.Tier
	for _, tier := range tiers {
		if balance >= tier.MinPoints {
			target = tier
		}
	}
	if target == nil {
		return nil
	}
	return x.applyTier(ctx, user, target, env)
}

func (x *Executor) applyTier(ctx context.Context, user *models.EndUser, target *models.Tier, env *models.Envelope) error {
	if user.TierID == target.ID {
		return nil
	}
	if user.TierID != "" {
		current, err := x.catalog.Tier(ctx, user.ProjectID, user.TierID)
		if err != nil {
			return fmt.Errorf("resolve current tier: %w", err)
		}
		if current != nil && current.Rank >= target.Rank {
			return nil
		}
	}

	if err := x.users.SetUserTier(ctx, user.ID, target.ID); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	previous := user.TierID
	user.TierID = target.ID

	x.logger.InfoContext(ctx, "tier upgraded",
		logging.FieldEndUserID, user.ID,
		"tier_id", target.ID,
		"previous_tier_id", previous)

	_ = x.emitter.Emit(ctx, env, models.EventTierUpgraded, map[string]any{
		"tierId":         target.ID,
		"tierName":       target.Name,
		"previousTierId": previous,
	})
	return nil
}
