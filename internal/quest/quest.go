// Package quest advances multi-step quest progress as triggering events
// arrive and settles completion rewards exactly once.
package quest

import (
	"context"
	"fmt"
	"math"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/repository"
)

// Handler advances quest steps keyed on the incoming event name.
type Handler struct {
	catalog catalog.Catalog
	users   repository.UserStore
	quests  repository.QuestStore
	emitter publisher.Emitter
	logger  *logging.Logger
}

func NewHandler(cat catalog.Catalog, users repository.UserStore, quests repository.QuestStore, emitter publisher.Emitter, logger *logging.Logger) *Handler {
	return &Handler{catalog: cat, users: users, quests: quests, emitter: emitter, logger: logger}
}

func (h *Handler) Name() string { return "quest" }

// EventNames is empty: steps key on arbitrary tenant event names.
func (h *Handler) EventNames() []string { return nil }

func (h *Handler) ShouldHandle(ctx context.Context, env *models.Envelope) bool {
	return env.UserID != ""
}

func (h *Handler) Handle(ctx context.Context, env *models.Envelope) error {
	steps, err := h.catalog.StepsForEvent(ctx, env.ProjectID, env.Event)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}

	user, err := h.users.FindOrCreateUser(ctx, env.ProjectID, env.UserID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if err := h.advanceStep(ctx, user, step, env); err != nil {
			h.logger.ErrorContext(ctx, "quest step advance failed",
				logging.FieldEndUserID, user.ID,
				logging.FieldQuestID, step.QuestID,
				logging.FieldError, err)
		}
	}
	return nil
}

func (h *Handler) advanceStep(ctx context.Context, user *models.EndUser, step *models.QuestStep, env *models.Envelope) error {
	progress, err := h.quests.GetOrCreateQuestProgress(ctx, user.ID, step.QuestID)
	if err != nil {
		return fmt.Errorf("quest progress: %w", err)
	}
	if progress.Status == models.QuestCompleted {
		return nil
	}

	if _, err := h.quests.GetOrCreateStepProgress(ctx, user.ID, step); err != nil {
		return fmt.Errorf("step progress: %w", err)
	}

	newCount, incremented, err := h.quests.IncrementStepCount(ctx, user.ID, step.ID)
	if err != nil {
		return fmt.Errorf("increment step: %w", err)
	}
	if !incremented {
		return nil
	}

	if newCount >= step.RequiredCount {
		won, err := h.quests.MarkStepComplete(ctx, user.ID, step.ID)
		if err != nil {
			return fmt.Errorf("complete step: %w", err)
		}
		if won {
			_ = h.emitter.Emit(ctx, env, models.EventStepCompleted, map[string]any{
				"questId": step.QuestID,
				"stepId":  step.ID,
			})
		}
	}

	return h.settleQuest(ctx, user, step.QuestID, env)
}

// settleQuest recomputes the quest's percent and, when every step is done,
// transitions it to completed and pays the rewards. The conditional
// CompleteQuest write guarantees the rewards settle once no matter how many
// deliveries race here.
func (h *Handler) settleQuest(ctx context.Context, user *models.EndUser, questID string, env *models.Envelope) error {
	quest, steps, err := h.catalog.Quest(ctx, user.ProjectID, questID)
	if err != nil {
		return fmt.Errorf("load quest: %w", err)
	}
	if quest == nil || len(steps) == 0 {
		return nil
	}

	stepProgress, err := h.quests.ListStepProgress(ctx, user.ID, questID)
	if err != nil {
		return fmt.Errorf("list step progress: %w", err)
	}
	byStep := make(map[string]*models.UserStepProgress, len(stepProgress))
	for _, p := range stepProgress {
		byStep[p.StepID] = p
	}

	percent := Percent(steps, byStep)
	for _, step := range steps {
		p := byStep[step.ID]
		if p == nil || !p.IsComplete {
			// Rounding can report 100 with a step still open, so completion
			// keys on the steps themselves, never on the percent.
			return h.quests.SetQuestPercent(ctx, user.ID, questID, percent)
		}
	}

	won, err := h.quests.CompleteQuest(ctx, user.ID, questID, percent)
	if err != nil {
		return fmt.Errorf("complete quest: %w", err)
	}
	if !won {
		return nil
	}

	h.logger.InfoContext(ctx, "quest completed",
		logging.FieldEndUserID, user.ID,
		logging.FieldQuestID, questID,
		logging.FieldAmount, quest.RewardXP)

	if quest.RewardXP > 0 {
		if _, err := h.users.AppendLedger(ctx, user.ID, quest.RewardXP, models.LedgerTypeQuest, questID, "quest"); err != nil {
			return fmt.Errorf("award quest xp: %w", err)
		}
	}

	// The reward badge is not awarded here. The quest.completed event
	// cascades back through the pipeline and the badge engine awards any
	// badge whose trigger metric is "quest".
	props := map[string]any{
		"questId":   questID,
		"questName": quest.Name,
		"rewardXp":  quest.RewardXP,
		"count":     1,
	}
	if quest.RewardBadgeID != "" {
		props["rewardBadgeId"] = quest.RewardBadgeID
	}
	_ = h.emitter.Emit(ctx, env, models.EventQuestCompleted, props)
	return nil
}

// Percent computes overall quest completion as the rounded average of
// per-step completion, each step capped at 1.
func Percent(steps []*models.QuestStep, progress map[string]*models.UserStepProgress) int {
	if len(steps) == 0 {
		return 0
	}
	var sum float64
	for _, step := range steps {
		p := progress[step.ID]
		if p == nil || step.RequiredCount <= 0 {
			continue
		}
		ratio := float64(p.CurrentCount) / float64(step.RequiredCount)
		if p.IsComplete || ratio > 1 {
			ratio = 1
		}
		sum += ratio
	}
	return int(math.Round(sum / float64(len(steps)) * 100))
}
