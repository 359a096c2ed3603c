package logging

import "log/slog"

// Common field names for consistent logging across the worker.
const (
	FieldService    = "service"
	FieldProjectID  = "project_id"
	FieldEndUserID  = "end_user_id"
	FieldEvent      = "event"
	FieldHandler    = "handler"
	FieldDispatchID = "dispatch_id"
	FieldRuleID     = "rule_id"
	FieldBadgeID    = "badge_id"
	FieldQuestID    = "quest_id"
	FieldStreakID   = "streak_id"
	FieldEffect     = "effect"
	FieldAmount     = "amount"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// ProjectID returns a slog attribute for the tenant project ID.
func ProjectID(id string) slog.Attr {
	return slog.String(FieldProjectID, id)
}

// EndUserID returns a slog attribute for the internal end user ID.
func EndUserID(id string) slog.Attr {
	return slog.String(FieldEndUserID, id)
}

// Event returns a slog attribute for an event name.
func Event(name string) slog.Attr {
	return slog.String(FieldEvent, name)
}

// Handler returns a slog attribute for a handler name.
func Handler(name string) slog.Attr {
	return slog.String(FieldHandler, name)
}

// RuleID returns a slog attribute for a campaign rule ID.
func RuleID(id string) slog.Attr {
	return slog.String(FieldRuleID, id)
}

// Effect returns a slog attribute for a rule effect type.
func Effect(effectType string) slog.Attr {
	return slog.String(FieldEffect, effectType)
}

// Amount returns a slog attribute for a point or money amount.
func Amount(amount int64) slog.Attr {
	return slog.Int64(FieldAmount, amount)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
