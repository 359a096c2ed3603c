// Package commission credits referrers when their referred users generate
// revenue. All money math is integer minor-currency units.
package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/catalog"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/repository"
)

// Handler books referral commissions for trusted monetary events.
type Handler struct {
	catalog   catalog.Catalog
	users     repository.UserStore
	referrals repository.ReferralStore
	emitter   publisher.Emitter
	logger    *logging.Logger
}

func NewHandler(cat catalog.Catalog, users repository.UserStore, referrals repository.ReferralStore, emitter publisher.Emitter, logger *logging.Logger) *Handler {
	return &Handler{catalog: cat, users: users, referrals: referrals, emitter: emitter, logger: logger}
}

func (h *Handler) Name() string { return "commission" }

// EventNames is empty: purchase events arrive under tenant-chosen suffixes
// ("purchase.completed", "checkout_success"), so the handler subscribes
// broadly and gates on the metric.
func (h *Handler) EventNames() []string { return nil }

// commissionMetrics are the only metrics that move money. A trusted refund
// or payout event carrying an amount must never book commission.
var commissionMetrics = map[string]bool{
	"purchase":         true,
	"checkout_success": true,
}

// ShouldHandle gates on purchase metrics from server-attributed events:
// client-reported amounts never move money, even though ingestion should
// have filtered them already.
func (h *Handler) ShouldHandle(ctx context.Context, env *models.Envelope) bool {
	return env.UserID != "" && env.Trusted() && commissionMetrics[env.Metric()]
}

func (h *Handler) Handle(ctx context.Context, env *models.Envelope) error {
	sourceAmount, err := env.MoneyMinorUnits()
	if errors.Is(err, models.ErrNoAmount) {
		return nil
	}
	if err != nil {
		return err
	}

	tracking, err := h.referrals.GetReferrer(ctx, env.ProjectID, env.UserID)
	if errors.Is(err, repository.ErrReferralNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	referrer, err := h.users.GetUser(ctx, tracking.ReferrerID)
	if err != nil {
		return fmt.Errorf("load referrer: %w", err)
	}

	plan, err := h.resolvePlan(ctx, referrer)
	if err != nil {
		return err
	}
	if plan == nil {
		return nil
	}

	amount := plan.Commission(sourceAmount)
	if amount <= 0 {
		return nil
	}

	entry := &models.CommissionLedgerEntry{
		EndUserID:        referrer.ID,
		CommissionPlanID: plan.ID,
		Amount:           amount,
		SourceAmount:     sourceAmount,
		Status:           models.CommissionPending,
		SourceEventID:    env.EventID,
		OrderID:          env.PropertyString("orderId"),
	}
	if err := h.referrals.InsertCommission(ctx, entry); err != nil {
		return fmt.Errorf("insert commission: %w", err)
	}

	h.logger.InfoContext(ctx, "commission booked",
		logging.FieldProjectID, env.ProjectID,
		logging.FieldEndUserID, referrer.ID,
		logging.FieldAmount, amount)

	_ = h.emitter.Emit(ctx, env, models.EventCommissionCreated, map[string]any{
		"referrerId":    referrer.ID,
		"planId":        plan.ID,
		"amount":        amount,
		"sourceAmount":  sourceAmount,
		"sourceEventId": env.EventID,
		"status":        string(models.CommissionPending),
	})
	return nil
}

// resolvePlan prefers the referrer's explicit plan and falls back to the
// tenant default. No plan anywhere means the tenant does not pay
// commission.
func (h *Handler) resolvePlan(ctx context.Context, referrer *models.EndUser) (*models.CommissionPlan, error) {
	if referrer.CommissionPlanID != "" {
		plan, err := h.catalog.CommissionPlan(ctx, referrer.ProjectID, referrer.CommissionPlanID)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			return plan, nil
		}
		h.logger.WarnContext(ctx, "referrer's commission plan missing, using default",
			logging.FieldEndUserID, referrer.ID, "plan_id", referrer.CommissionPlanID)
	}
	return h.catalog.DefaultCommissionPlan(ctx, referrer.ProjectID)
}
