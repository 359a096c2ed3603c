package models

import "time"

// Streak frequencies.
type StreakFrequency string

const (
	FrequencyDaily  StreakFrequency = "daily"
	FrequencyWeekly StreakFrequency = "weekly"
)

// Streak statuses, derived from the counter and the last transition.
type StreakStatus string

const (
	StreakInactive StreakStatus = "inactive"
	StreakActive   StreakStatus = "active"
	StreakAtRisk   StreakStatus = "at_risk"
	StreakFrozen   StreakStatus = "frozen"
	StreakBroken   StreakStatus = "broken"
)

// Streak transition actions returned by ProcessActivity.
type StreakAction string

const (
	ActionSameDay  StreakAction = "same_day"
	ActionStarted  StreakAction = "started"
	ActionExtended StreakAction = "extended"
	ActionFrozen   StreakAction = "frozen"
	ActionBroken   StreakAction = "broken"
)

// StreakMilestone awards XP (and optionally a badge) the first time a
// streak reaches Day consecutive days.
type StreakMilestone struct {
	Day      int    `json:"day"`
	RewardXP int64  `json:"reward_xp"`
	BadgeID  string `json:"badge_id,omitempty"`
}

// StreakRule is tenant configuration for one streak.
type StreakRule struct {
	ID                    string            `json:"id"`
	ProjectID             string            `json:"project_id"`
	EventType             string            `json:"event_type"`
	Frequency             StreakFrequency   `json:"frequency"`
	Milestones            []StreakMilestone `json:"milestones,omitempty"`
	DefaultFreezeCount    int               `json:"default_freeze_count"`
	TimezoneOffsetMinutes int               `json:"timezone_offset_minutes"`
	Active                bool              `json:"active"`
}

// UserStreak is a user's state on one streak rule.
// Unique per (EndUserID, StreakRuleID).
type UserStreak struct {
	EndUserID        string       `json:"end_user_id"`
	StreakRuleID     string       `json:"streak_rule_id"`
	CurrentCount     int          `json:"current_count"`
	MaxStreak        int          `json:"max_streak"`
	LastActivityDate *time.Time   `json:"last_activity_date,omitempty"` // calendar day, offset applied
	FreezeInventory  int          `json:"freeze_inventory"`
	FreezeUsedToday  bool         `json:"freeze_used_today"`
	Status           StreakStatus `json:"status"`
	LastMilestoneDay int          `json:"last_milestone_day"`
}

// StreakHistoryEntry is an append-only audit row of streak transitions.
const HistoryMilestoneReached = "milestone_reached"

type StreakHistoryEntry struct {
	ID           string    `json:"id"`
	EndUserID    string    `json:"end_user_id"`
	StreakRuleID string    `json:"streak_rule_id"`
	Action       string    `json:"action"` // StreakAction value or milestone_reached
	CountAfter   int       `json:"count_after"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
