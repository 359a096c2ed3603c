package campaign

import (
	"context"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/repository"
)

// Handler evaluates campaign rules for every event carrying a user.
type Handler struct {
	catalog  catalog.Catalog
	users    repository.UserStore
	executor *Executor
	logger   *logging.Logger
}

func NewHandler(cat catalog.Catalog, users repository.UserStore, executor *Executor, logger *logging.Logger) *Handler {
	return &Handler{catalog: cat, users: users, executor: executor, logger: logger}
}

func (h *Handler) Name() string { return "campaign" }

// EventNames is empty: campaign rules can key on any event name, so the
// handler subscribes to everything and filters per rule.
func (h *Handler) EventNames() []string { return nil }

// ShouldHandle rejects events without a user; every realized effect needs
// one.
func (h *Handler) ShouldHandle(ctx context.Context, env *models.Envelope) bool {
	return env.UserID != ""
}

func (h *Handler) Handle(ctx context.Context, env *models.Envelope) error {
	rules, err := h.catalog.RulesForEvent(ctx, env.ProjectID, env.Event)
	if err != nil {
		return err
	}

	var matched []*models.CampaignRule
	for _, rule := range rules {
		if Matches(rule, env) {
			matched = append(matched, rule)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	user, err := h.users.FindOrCreateUser(ctx, env.ProjectID, env.UserID)
	if err != nil {
		return err
	}

	for _, rule := range matched {
		results := h.executor.Execute(ctx, rule, user, env)
		for _, r := range results {
			if r.Deferred {
				h.logger.DebugContext(ctx, "effect deferred to checkout path",
					logging.FieldRuleID, r.RuleID, logging.FieldEffect, string(r.EffectType))
			}
		}
	}
	return nil
}
