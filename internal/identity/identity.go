// Package identity resolves event user identifiers into end-user rows and
// captures referral attribution from signup-style events.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/models"
	"github.com/questforge-labs/questforge/internal/publisher"
	"github.com/questforge-labs/questforge/internal/repository"
)

// Handler materializes end users and links referrals. It runs for every
// event carrying a user so the rest of the pipeline can assume the user
// row exists.
type Handler struct {
	users     repository.UserStore
	referrals repository.ReferralStore
	emitter   publisher.Emitter
	logger    *logging.Logger
}

func NewHandler(users repository.UserStore, referrals repository.ReferralStore, emitter publisher.Emitter, logger *logging.Logger) *Handler {
	return &Handler{users: users, referrals: referrals, emitter: emitter, logger: logger}
}

func (h *Handler) Name() string { return "identity" }

func (h *Handler) EventNames() []string { return nil }

func (h *Handler) ShouldHandle(ctx context.Context, env *models.Envelope) bool {
	return env.UserID != ""
}

func (h *Handler) Handle(ctx context.Context, env *models.Envelope) error {
	user, err := h.users.FindOrCreateUser(ctx, env.ProjectID, env.UserID)
	if err != nil {
		return err
	}

	code := env.PropertyString("referralCode")
	if code == "" {
		return nil
	}
	return h.linkReferral(ctx, user, code, env)
}

// linkReferral attributes the user to the owner of the referral code.
// The link is set-once: a user who already has a referrer keeps it, and
// self-referral is rejected.
func (h *Handler) linkReferral(ctx context.Context, user *models.EndUser, code string, env *models.Envelope) error {
	referrer, err := h.users.GetUserByReferralCode(ctx, env.ProjectID, code)
	if errors.Is(err, repository.ErrUserNotFound) {
		h.logger.WarnContext(ctx, "unknown referral code",
			logging.FieldProjectID, env.ProjectID, "code", code)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve referral code: %w", err)
	}
	if referrer.ID == user.ID {
		h.logger.WarnContext(ctx, "self-referral rejected",
			logging.FieldEndUserID, user.ID)
		return nil
	}

	linked, err := h.referrals.LinkReferral(ctx, &models.ReferralTracking{
		ProjectID:          env.ProjectID,
		ReferrerID:         referrer.ID,
		ReferredExternalID: user.ExternalID,
	})
	if err != nil {
		return fmt.Errorf("link referral: %w", err)
	}
	if !linked {
		return nil
	}

	h.logger.InfoContext(ctx, "referral linked",
		logging.FieldProjectID, env.ProjectID,
		logging.FieldEndUserID, user.ID,
		"referrer_id", referrer.ID)

	_ = h.emitter.Emit(ctx, env, models.EventReferralLinked, map[string]any{
		"referrerId":         referrer.ID,
		"referredExternalId": user.ExternalID,
	})
	return nil
}
