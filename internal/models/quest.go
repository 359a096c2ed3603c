package models

import "time"

// Quest progress statuses.
type QuestStatus string

const (
	QuestNotStarted QuestStatus = "not_started"
	QuestInProgress QuestStatus = "in_progress"
	QuestCompleted  QuestStatus = "completed"
)

// QuestDefinition is tenant configuration for one quest.
type QuestDefinition struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	Name          string `json:"name"`
	RewardXP      int64  `json:"reward_xp"`
	RewardBadgeID string `json:"reward_badge_id,omitempty"`
	Active        bool   `json:"active"`
}

// QuestStep is one ordered step of a quest, triggered by an event name.
type QuestStep struct {
	ID            string `json:"id"`
	QuestID       string `json:"quest_id"`
	EventName     string `json:"event_name"`
	RequiredCount int    `json:"required_count"`
	OrderIndex    int    `json:"order_index"`
}

// UserQuestProgress tracks a user's state on one quest.
// Unique per (EndUserID, QuestID).
type UserQuestProgress struct {
	EndUserID       string      `json:"end_user_id"`
	QuestID         string      `json:"quest_id"`
	Status          QuestStatus `json:"status"`
	PercentComplete int         `json:"percent_complete"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// UserStepProgress tracks a user's counter on one step.
// Unique per (EndUserID, StepID), owned by exactly one UserQuestProgress.
type UserStepProgress struct {
	EndUserID    string `json:"end_user_id"`
	StepID       string `json:"step_id"`
	QuestID      string `json:"quest_id"`
	CurrentCount int    `json:"current_count"`
	IsComplete   bool   `json:"is_complete"`
}
