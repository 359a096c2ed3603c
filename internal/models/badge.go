package models

import "time"

// Badge rule types.
type BadgeRuleType string

const (
	BadgeRuleMetricThreshold BadgeRuleType = "METRIC_THRESHOLD"
	BadgeRuleEventCount      BadgeRuleType = "EVENT_COUNT"
	BadgeRuleManual          BadgeRuleType = "MANUAL"
)

// Badge visibility.
type BadgeVisibility string

const (
	BadgePublic BadgeVisibility = "PUBLIC"
	BadgeHidden BadgeVisibility = "HIDDEN"
)

// BadgeDefinition is tenant configuration for one badge. MANUAL badges are
// awarded by administrative action only and never by the engine.
type BadgeDefinition struct {
	ID            string          `json:"id"`
	ProjectID     string          `json:"project_id"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	RuleType      BadgeRuleType   `json:"rule_type"`
	TriggerMetric string          `json:"trigger_metric,omitempty"`
	Threshold     float64         `json:"threshold,omitempty"`
	Rarity        string          `json:"rarity,omitempty"`
	Visibility    BadgeVisibility `json:"visibility"`
	Active        bool            `json:"active"`
}

// UserBadge records ownership. Unique per (EndUserID, BadgeID); an award is
// a monotonic one-time fact, never revoked by this engine.
type UserBadge struct {
	EndUserID string    `json:"end_user_id"`
	BadgeID   string    `json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
}
