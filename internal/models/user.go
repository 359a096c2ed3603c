package models

import "time"

// EndUser is the per-tenant progression identity. ExternalID is the
// caller-supplied identifier; ID is the internal one used everywhere else.
// Unique on (ProjectID, ExternalID).
type EndUser struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	ExternalID       string         `json:"external_id"`
	LoyaltyPoints    int64          `json:"loyalty_points"`
	TierID           string         `json:"tier_id,omitempty"`
	CommissionPlanID string         `json:"commission_plan_id,omitempty"`
	ReferralCode     string         `json:"referral_code,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Ledger entry types.
const (
	LedgerTypeCampaign   = "campaign_reward"
	LedgerTypeQuest      = "quest_reward"
	LedgerTypeStreak     = "streak_milestone"
	LedgerTypeRedemption = "redemption"
	LedgerTypeAdjustment = "adjustment"
)

// LoyaltyLedgerEntry is the immutable audit record of a balance mutation.
// BalanceAfter always equals the user's loyalty points immediately after
// the mutation that produced the entry.
type LoyaltyLedgerEntry struct {
	ID            string    `json:"id"`
	EndUserID     string    `json:"end_user_id"`
	Amount        int64     `json:"amount"` // signed, negative for debits
	BalanceAfter  int64     `json:"balance_after"`
	Type          string    `json:"type"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	ReferenceType string    `json:"reference_type,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Tier is a loyalty tier a user can be upgraded into.
type Tier struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	MinPoints int64  `json:"min_points"`
	Rank      int    `json:"rank"`
}
