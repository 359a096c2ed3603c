package models

import "time"

// Event names synthesized by the worker's handlers. Derived events re-enter
// the dispatch pipeline, so names double as trigger keys for campaign rules
// and badge metrics ("badge.unlocked" has metric "badge").
const (
	EventBadgeUnlocked     = "badge.unlocked"
	EventStepCompleted     = "step.completed"
	EventQuestCompleted    = "quest.completed"
	EventCommissionCreated = "commission.created"
	EventPointsAwarded     = "points.awarded"
	EventTierUpgraded      = "tier.upgraded"
	EventStreakMilestone   = "streak.milestone"
	EventReferralLinked    = "referral.linked"
	EventRewardRedeemed    = "reward.redeemed"
)

// MaxCascadeHops bounds how many times a derived event may itself derive
// further events. Events beyond the cap are dropped and logged; a correctly
// configured project never gets close.
const MaxCascadeHops = 8

// NewDerived builds a derived-event envelope from the event that caused it.
// The hop counter is carried forward and incremented so runaway cascades
// from misconfigured rules terminate.
func NewDerived(cause *Envelope, name string, properties map[string]any) *Envelope {
	now := time.Now().UTC()
	return &Envelope{
		ProjectID:  cause.ProjectID,
		UserID:     cause.UserID,
		Event:      name,
		Properties: properties,
		Timestamp:  now,
		ReceivedAt: now,
		Source:     SourceServer,
		Hops:       cause.Hops + 1,
	}
}
