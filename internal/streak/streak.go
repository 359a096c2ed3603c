// Package streak maintains per-user activity streak counters with calendar
// day arithmetic, freeze consumption and milestone rewards.
package streak

import (
	"time"

	"github.com/questforge-labs/questforge/internal/models"
)

// Transition is the outcome of advancing a streak with one activity event.
type Transition struct {
	Action     models.StreakAction
	FreezeUsed bool
	Milestones []models.StreakMilestone
}

// periodIndex maps a timestamp to the streak's calendar period. The rule's
// timezone offset shifts the day boundary so "daily" means the tenant's
// local day, not UTC. Weekly periods are Monday-aligned.
func periodIndex(at time.Time, rule *models.StreakRule) int {
	local := at.UTC().Add(time.Duration(rule.TimezoneOffsetMinutes) * time.Minute)
	days := int(local.Unix() / 86400)
	if rule.Frequency == models.FrequencyWeekly {
		// The epoch fell on a Thursday; +3 starts weeks on Monday.
		return (days + 3) / 7
	}
	return days
}

// periodStart returns the UTC instant that anchors a period index, stored
// as the streak's last activity date.
func periodStart(index int, rule *models.StreakRule) time.Time {
	days := index
	if rule.Frequency == models.FrequencyWeekly {
		days = index*7 - 3
	}
	return time.Unix(int64(days)*86400, 0).UTC()
}

// Advance applies one activity to the streak in place and reports what
// happened. The caller persists the mutated streak and settles milestone
// rewards.
//
// The transition table:
//
//	no previous activity        -> started   (count = 1)
//	same period                 -> same_day  (no change)
//	next period                 -> extended  (count + 1)
//	gap, freeze available       -> frozen    (one freeze spent, count kept)
//	gap, no freeze              -> broken    (count restarts at 1)
//
// A gap of any length costs one freeze; the token preserves the streak,
// it does not buy back the missed periods. A second gap on the same day
// cannot spend a second freeze until the nightly reset clears the flag.
func Advance(streak *models.UserStreak, rule *models.StreakRule, at time.Time) Transition {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	current := periodIndex(at, rule)

	var tr Transition
	switch {
	case streak.LastActivityDate == nil:
		streak.CurrentCount = 1
		tr.Action = models.ActionStarted

	default:
		previous := periodIndex(*streak.LastActivityDate, rule)
		gap := current - previous

		switch {
		case gap <= 0:
			tr.Action = models.ActionSameDay
			return tr

		case gap == 1:
			streak.CurrentCount++
			tr.Action = models.ActionExtended

		default:
			if streak.FreezeInventory > 0 && !streak.FreezeUsedToday {
				streak.FreezeInventory--
				streak.FreezeUsedToday = true
				tr.Action = models.ActionFrozen
				tr.FreezeUsed = true
			} else {
				streak.CurrentCount = 1
				streak.LastMilestoneDay = 0
				tr.Action = models.ActionBroken
			}
		}
	}

	anchor := periodStart(current, rule)
	streak.LastActivityDate = &anchor
	if streak.CurrentCount > streak.MaxStreak {
		streak.MaxStreak = streak.CurrentCount
	}
	streak.Status = models.StreakActive
	if tr.Action == models.ActionFrozen {
		streak.Status = models.StreakFrozen
	}

	tr.Milestones = dueMilestones(streak, rule)
	return tr
}

// dueMilestones returns milestones the counter has reached but not yet paid,
// tracked through LastMilestoneDay so replays never double-pay.
func dueMilestones(streak *models.UserStreak, rule *models.StreakRule) []models.StreakMilestone {
	var due []models.StreakMilestone
	for _, ms := range rule.Milestones {
		if ms.Day <= streak.CurrentCount && ms.Day > streak.LastMilestoneDay {
			due = append(due, ms)
		}
	}
	for _, ms := range due {
		if ms.Day > streak.LastMilestoneDay {
			streak.LastMilestoneDay = ms.Day
		}
	}
	return due
}
