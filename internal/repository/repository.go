// Package repository implements the progression store: per-user state rows
// and the conditional-write primitives that keep concurrent deliveries of
// the same logical event from double-applying.
package repository

import (
	"context"
	"errors"

	"github.com/questforge-labs/questforge/internal/models"
)

var (
	ErrUserNotFound     = errors.New("end user not found")
	ErrStreakNotFound   = errors.New("user streak not found")
	ErrReferralNotFound = errors.New("referral tracking not found")
	ErrRewardNotFound   = errors.New("reward item not found")

	// ErrInsufficientPoints is returned when a conditional points debit
	// fails its balance precondition.
	ErrInsufficientPoints = errors.New("insufficient loyalty points")

	// ErrOutOfStock is returned when a conditional stock decrement fails
	// its stock precondition.
	ErrOutOfStock = errors.New("reward item out of stock")
)

// UserStore covers end-user identity and the loyalty ledger.
type UserStore interface {
	// FindOrCreateUser resolves an external identifier to an end user,
	// creating the row if absent. Safe under concurrent calls for the
	// same (projectID, externalID).
	FindOrCreateUser(ctx context.Context, projectID, externalID string) (*models.EndUser, error)

	GetUser(ctx context.Context, endUserID string) (*models.EndUser, error)

	GetUserByReferralCode(ctx context.Context, projectID, code string) (*models.EndUser, error)

	// AppendLedger atomically applies a signed amount to the user's
	// balance and writes the ledger entry whose BalanceAfter equals the
	// post-mutation balance. Negative amounts must use DebitPoints so the
	// balance precondition is enforced.
	AppendLedger(ctx context.Context, endUserID string, amount int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error)

	// DebitPoints debits amount (positive) only if the balance covers it,
	// returning ErrInsufficientPoints otherwise.
	DebitPoints(ctx context.Context, endUserID string, amount int64, entryType, referenceID, referenceType string) (*models.LoyaltyLedgerEntry, error)

	SetUserTier(ctx context.Context, endUserID, tierID string) error
}

// BadgeStore covers idempotent badge awards.
type BadgeStore interface {
	// AwardBadge inserts the ownership row. A second award attempt is a
	// no-op: awarded is false and err is nil.
	AwardBadge(ctx context.Context, endUserID, badgeID string) (awarded bool, err error)

	HasBadge(ctx context.Context, endUserID, badgeID string) (bool, error)
}

// QuestStore covers quest and step progress rows.
type QuestStore interface {
	// GetOrCreateQuestProgress upserts the progress row, transitioning
	// not_started to in_progress on first touch.
	GetOrCreateQuestProgress(ctx context.Context, endUserID, questID string) (*models.UserQuestProgress, error)

	GetOrCreateStepProgress(ctx context.Context, endUserID string, step *models.QuestStep) (*models.UserStepProgress, error)

	// IncrementStepCount bumps the counter only while the step is
	// incomplete. Returns the new count and false if the step was already
	// complete (no-op).
	IncrementStepCount(ctx context.Context, endUserID, stepID string) (newCount int, incremented bool, err error)

	// MarkStepComplete flips is_complete; returns false if another
	// delivery won the race.
	MarkStepComplete(ctx context.Context, endUserID, stepID string) (bool, error)

	ListStepProgress(ctx context.Context, endUserID, questID string) ([]*models.UserStepProgress, error)

	SetQuestPercent(ctx context.Context, endUserID, questID string, percent int) error

	// CompleteQuest transitions the quest to completed; returns false if
	// it was already completed (award side effects must not repeat).
	CompleteQuest(ctx context.Context, endUserID, questID string, percent int) (bool, error)
}

// StreakStore covers streak counters and their audit log.
type StreakStore interface {
	GetOrCreateStreak(ctx context.Context, endUserID string, rule *models.StreakRule) (*models.UserStreak, error)

	UpdateStreak(ctx context.Context, streak *models.UserStreak) error

	AppendStreakHistory(ctx context.Context, entry *models.StreakHistoryEntry) error

	// ResetFreezeFlags clears freeze_used_today across all streaks.
	// Called by the nightly sweep; returns the number of rows cleared.
	ResetFreezeFlags(ctx context.Context) (int64, error)
}

// ReferralStore covers referral links and commission ledger writes.
type ReferralStore interface {
	// LinkReferral records the referrer for a referred user. Set-once:
	// returns false without error if a link already exists.
	LinkReferral(ctx context.Context, tracking *models.ReferralTracking) (bool, error)

	GetReferrer(ctx context.Context, projectID, referredExternalID string) (*models.ReferralTracking, error)

	InsertCommission(ctx context.Context, entry *models.CommissionLedgerEntry) error
}

// RewardStore covers the all-or-nothing redemption path.
type RewardStore interface {
	GetRewardItem(ctx context.Context, projectID, rewardItemID string) (*models.RewardItem, error)

	// Redeem composes the points debit, stock decrement, ledger append and
	// redemption insert in one transaction. On a failed precondition the
	// whole transaction aborts with ErrInsufficientPoints or ErrOutOfStock.
	Redeem(ctx context.Context, endUserID string, item *models.RewardItem) (*models.RedemptionTransaction, error)
}

// OutboxStore tracks source events whose derived emission failed so the
// sweep can redispatch them.
type OutboxStore interface {
	MarkStuck(ctx context.Context, stuck *models.StuckEvent) error
	ListStuck(ctx context.Context, limit int) ([]*models.StuckEvent, error)
	ResolveStuck(ctx context.Context, id string) error
	IncrementStuckRetry(ctx context.Context, id string) error
}

// Store is the full progression store consumed by the composition root.
// Handlers depend on the narrow interfaces above.
type Store interface {
	UserStore
	BadgeStore
	QuestStore
	StreakStore
	ReferralStore
	RewardStore
	OutboxStore

	Close()
}
