package streak

import (
	"context"
	"fmt"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/repository"
)

// Handler advances streaks keyed on the incoming event name.
type Handler struct {
	catalog catalog.Catalog
	users   repository.UserStore
	streaks repository.StreakStore
	badges  repository.BadgeStore
	emitter publisher.Emitter
	logger  *logging.Logger
}

func NewHandler(cat catalog.Catalog, users repository.UserStore, streaks repository.StreakStore, badges repository.BadgeStore, emitter publisher.Emitter, logger *logging.Logger) *Handler {
	return &Handler{catalog: cat, users: users, streaks: streaks, badges: badges, emitter: emitter, logger: logger}
}

func (h *Handler) Name() string { return "streak" }

func (h *Handler) EventNames() []string { return nil }

func (h *Handler) ShouldHandle(ctx context.Context, env *models.Envelope) bool {
	return env.UserID != ""
}

func (h *Handler) Handle(ctx context.Context, env *models.Envelope) error {
	rules, err := h.catalog.StreakRulesForEvent(ctx, env.ProjectID, env.Event)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	user, err := h.users.FindOrCreateUser(ctx, env.ProjectID, env.UserID)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := h.advance(ctx, user, rule, env); err != nil {
			h.logger.ErrorContext(ctx, "streak advance failed",
				logging.FieldEndUserID, user.ID,
				logging.FieldStreakID, rule.ID,
				logging.FieldError, err)
		}
	}
	return nil
}

func (h *Handler) advance(ctx context.Context, user *models.EndUser, rule *models.StreakRule, env *models.Envelope) error {
	streak, err := h.streaks.GetOrCreateStreak(ctx, user.ID, rule)
	if err != nil {
		return fmt.Errorf("load streak: %w", err)
	}

	tr := Advance(streak, rule, env.Timestamp)
	if tr.Action == models.ActionSameDay {
		return nil
	}

	if err := h.streaks.UpdateStreak(ctx, streak); err != nil {
		return fmt.Errorf("persist streak: %w", err)
	}

	if err := h.streaks.AppendStreakHistory(ctx, &models.StreakHistoryEntry{
		EndUserID:    user.ID,
		StreakRuleID: rule.ID,
		Action:       string(tr.Action),
		CountAfter:   streak.CurrentCount,
	}); err != nil {
		return fmt.Errorf("append streak history: %w", err)
	}

	h.logger.InfoContext(ctx, "streak advanced",
		logging.FieldEndUserID, user.ID,
		logging.FieldStreakID, rule.ID,
		"action", string(tr.Action),
		"count", streak.CurrentCount)

	for _, ms := range tr.Milestones {
		if err := h.settleMilestone(ctx, user, rule, streak, ms, env); err != nil {
			h.logger.ErrorContext(ctx, "streak milestone settlement failed",
				logging.FieldEndUserID, user.ID,
				logging.FieldStreakID, rule.ID,
				logging.FieldError, err)
		}
	}
	return nil
}

func (h *Handler) settleMilestone(ctx context.Context, user *models.EndUser, rule *models.StreakRule, streak *models.UserStreak, ms models.StreakMilestone, env *models.Envelope) error {
	if ms.RewardXP > 0 {
		if _, err := h.users.AppendLedger(ctx, user.ID, ms.RewardXP, models.LedgerTypeStreak, rule.ID, "streak_rule"); err != nil {
			return fmt.Errorf("award milestone xp: %w", err)
		}
	}
	if ms.BadgeID != "" {
		if _, err := h.badges.AwardBadge(ctx, user.ID, ms.BadgeID); err != nil {
			return fmt.Errorf("award milestone badge: %w", err)
		}
	}

	if err := h.streaks.AppendStreakHistory(ctx, &models.StreakHistoryEntry{
		EndUserID:    user.ID,
		StreakRuleID: rule.ID,
		Action:       models.HistoryMilestoneReached,
		CountAfter:   streak.CurrentCount,
		Detail:       fmt.Sprintf("day %d", ms.Day),
	}); err != nil {
		return fmt.Errorf("append milestone history: %w", err)
	}

	_ = h.emitter.Emit(ctx, env, models.EventStreakMilestone, map[string]any{
		"streakRuleId": rule.ID,
		"day":          ms.Day,
		"rewardXp":     ms.RewardXP,
		"count":        streak.CurrentCount,
	})
	return nil
}
