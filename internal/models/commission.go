package models

import "time"

// Commission plan types.
type CommissionPlanType string

const (
	PlanPercentage CommissionPlanType = "PERCENTAGE"
	PlanFixed      CommissionPlanType = "FIXED"
)

// Commission ledger statuses.
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "PENDING"
	CommissionPaid     CommissionStatus = "PAID"
	CommissionRejected CommissionStatus = "REJECTED"
)

// CommissionPlan describes how referrer commission is computed.
// For PERCENTAGE plans Value is in basis points (1000 = 10%);
// for FIXED plans Value is a flat amount in minor currency units.
type CommissionPlan struct {
	ID        string             `json:"id"`
	ProjectID string             `json:"project_id"`
	Type      CommissionPlanType `json:"type"`
	Value     int64              `json:"value"`
	Currency  string             `json:"currency"`
	IsDefault bool               `json:"is_default"`
}

// Commission computes the commission for a source amount in minor units
// using integer-only arithmetic.
func (p *CommissionPlan) Commission(sourceAmount int64) int64 {
	switch p.Type {
	case PlanPercentage:
		return sourceAmount * p.Value / 10000
	case PlanFixed:
		return p.Value
	default:
		return 0
	}
}

// ReferralTracking links a referred user to their referrer. Unique per
// (ProjectID, ReferredExternalID): at most one referrer, set once.
type ReferralTracking struct {
	ProjectID          string    `json:"project_id"`
	ReferrerID         string    `json:"referrer_id"` // internal end user id
	ReferredExternalID string    `json:"referred_external_id"`
	CreatedAt          time.Time `json:"created_at"`
}

// CommissionLedgerEntry is one immutable commission record.
type CommissionLedgerEntry struct {
	ID               string           `json:"id"`
	EndUserID        string           `json:"end_user_id"` // the referrer earning the commission
	CommissionPlanID string           `json:"commission_plan_id"`
	Amount           int64            `json:"amount"`        // minor units
	SourceAmount     int64            `json:"source_amount"` // minor units
	Status           CommissionStatus `json:"status"`
	SourceEventID    string           `json:"source_event_id,omitempty"`
	OrderID          string           `json:"order_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
