package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge-labs/questforge/internal/models"
)

func dailyRule() *models.StreakRule {
	return &models.StreakRule{ID: "sr1", ProjectID: "p1", EventType: "lesson.completed",
		Frequency: models.FrequencyDaily, Active: true}
}

func at(day int, hour int) time.Time {
	return time.Date(2026, 8, day, hour, 0, 0, 0, time.UTC)
}

func TestAdvance_Started(t *testing.T) {
	streak := &models.UserStreak{}
	tr := Advance(streak, dailyRule(), at(1, 10))

	assert.Equal(t, models.ActionStarted, tr.Action)
	assert.Equal(t, 1, streak.CurrentCount)
	assert.Equal(t, 1, streak.MaxStreak)
	assert.Equal(t, models.StreakActive, streak.Status)
	require.NotNil(t, streak.LastActivityDate)
}

func TestAdvance_SameDayNoChange(t *testing.T) {
	streak := &models.UserStreak{}
	rule := dailyRule()
	Advance(streak, rule, at(1, 10))

	tr := Advance(streak, rule, at(1, 23))
	assert.Equal(t, models.ActionSameDay, tr.Action)
	assert.Equal(t, 1, streak.CurrentCount)
}

func TestAdvance_Extended(t *testing.T) {
	streak := &models.UserStreak{}
	rule := dailyRule()
	Advance(streak, rule, at(1, 10))

	tr := Advance(streak, rule, at(2, 1))
	assert.Equal(t, models.ActionExtended, tr.Action)
	assert.Equal(t, 2, streak.CurrentCount)
	assert.Equal(t, 2, streak.MaxStreak)
}

func TestAdvance_FreezePreservesCount(t *testing.T) {
	streak := &models.UserStreak{FreezeInventory: 2}
	rule := dailyRule()
	for day := 1; day <= 5; day++ {
		Advance(streak, rule, at(day, 10))
	}
	require.Equal(t, 5, streak.CurrentCount)

	// Day 6 missed; activity on day 7.
	tr := Advance(streak, rule, at(7, 10))
	assert.Equal(t, models.ActionFrozen, tr.Action)
	assert.True(t, tr.FreezeUsed)
	assert.Equal(t, 5, streak.CurrentCount, "a freeze preserves the count, it does not extend it")
	assert.Equal(t, 1, streak.FreezeInventory)
	assert.True(t, streak.FreezeUsedToday)
	assert.Equal(t, models.StreakFrozen, streak.Status)

	// The next day's activity extends from the preserved count.
	tr = Advance(streak, rule, at(8, 10))
	assert.Equal(t, models.ActionExtended, tr.Action)
	assert.Equal(t, 6, streak.CurrentCount)
}

func TestAdvance_OneFreezeCoversAnyGap(t *testing.T) {
	streak := &models.UserStreak{FreezeInventory: 1}
	rule := dailyRule()
	for day := 1; day <= 5; day++ {
		Advance(streak, rule, at(day, 10))
	}

	// Days 6 and 7 missed; a single freeze still covers the whole gap.
	tr := Advance(streak, rule, at(8, 10))
	assert.Equal(t, models.ActionFrozen, tr.Action)
	assert.True(t, tr.FreezeUsed)
	assert.Equal(t, 5, streak.CurrentCount)
	assert.Equal(t, 0, streak.FreezeInventory)
}

func TestAdvance_BrokenWithoutFreezes(t *testing.T) {
	streak := &models.UserStreak{}
	rule := dailyRule()
	Advance(streak, rule, at(1, 10))
	Advance(streak, rule, at(2, 10))

	tr := Advance(streak, rule, at(6, 10))
	assert.Equal(t, models.ActionBroken, tr.Action)
	assert.False(t, tr.FreezeUsed)
	assert.Equal(t, 1, streak.CurrentCount, "a broken streak restarts at one")
	assert.Equal(t, 2, streak.MaxStreak, "the high-water mark survives the break")
	assert.Equal(t, models.StreakActive, streak.Status)
}

func TestAdvance_FreezeBlockedUntilDailyReset(t *testing.T) {
	streak := &models.UserStreak{FreezeInventory: 3, FreezeUsedToday: true}
	rule := dailyRule()
	Advance(streak, rule, at(1, 10))

	// Inventory remains, but today's freeze is already spent.
	tr := Advance(streak, rule, at(4, 10))
	assert.Equal(t, models.ActionBroken, tr.Action)
	assert.Equal(t, 3, streak.FreezeInventory, "breaks never consume freezes")
	assert.Equal(t, 1, streak.CurrentCount)
}

func TestAdvance_TimezoneOffsetShiftsDayBoundary(t *testing.T) {
	// UTC-7: 05:00 UTC is still the previous local day.
	rule := dailyRule()
	rule.TimezoneOffsetMinutes = -420
	streak := &models.UserStreak{}

	Advance(streak, rule, time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)) // local Aug 1 13:00
	tr := Advance(streak, rule, time.Date(2026, 8, 2, 5, 0, 0, 0, time.UTC)) // local Aug 1 22:00

	assert.Equal(t, models.ActionSameDay, tr.Action, "05:00 UTC is the same local day at UTC-7")

	tr = Advance(streak, rule, time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)) // local Aug 2 02:00
	assert.Equal(t, models.ActionExtended, tr.Action)
}

func TestAdvance_WeeklyFrequency(t *testing.T) {
	rule := dailyRule()
	rule.Frequency = models.FrequencyWeekly
	streak := &models.UserStreak{}

	// 2026-08-03 is a Monday.
	Advance(streak, rule, time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC))

	tr := Advance(streak, rule, time.Date(2026, 8, 7, 10, 0, 0, 0, time.UTC)) // Friday, same week
	assert.Equal(t, models.ActionSameDay, tr.Action)

	tr = Advance(streak, rule, time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)) // next week
	assert.Equal(t, models.ActionExtended, tr.Action)
	assert.Equal(t, 2, streak.CurrentCount)

	tr = Advance(streak, rule, time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)) // one week skipped
	assert.Equal(t, models.ActionBroken, tr.Action)
}

func TestAdvance_Milestones(t *testing.T) {
	rule := dailyRule()
	rule.Milestones = []models.StreakMilestone{
		{Day: 2, RewardXP: 10},
		{Day: 3, RewardXP: 50, BadgeID: "badge-3day"},
	}
	streak := &models.UserStreak{}

	tr := Advance(streak, rule, at(1, 10))
	assert.Empty(t, tr.Milestones)

	tr = Advance(streak, rule, at(2, 10))
	require.Len(t, tr.Milestones, 1)
	assert.Equal(t, 2, tr.Milestones[0].Day)
	assert.Equal(t, 2, streak.LastMilestoneDay)

	tr = Advance(streak, rule, at(3, 10))
	require.Len(t, tr.Milestones, 1)
	assert.Equal(t, 3, tr.Milestones[0].Day)
}

func TestAdvance_MilestoneResetsAfterBreak(t *testing.T) {
	rule := dailyRule()
	rule.Milestones = []models.StreakMilestone{{Day: 2, RewardXP: 10}}
	streak := &models.UserStreak{}

	Advance(streak, rule, at(1, 10))
	tr := Advance(streak, rule, at(2, 10))
	require.Len(t, tr.Milestones, 1)

	// Break, then rebuild to day 2: the milestone pays again for the new
	// streak.
	Advance(streak, rule, at(10, 10))
	tr = Advance(streak, rule, at(11, 10))
	require.Len(t, tr.Milestones, 1)
	assert.Equal(t, 2, tr.Milestones[0].Day)
}

func TestAdvance_FreezeDefersMilestone(t *testing.T) {
	rule := dailyRule()
	rule.Milestones = []models.StreakMilestone{{Day: 2, RewardXP: 10}}
	streak := &models.UserStreak{FreezeInventory: 1}

	Advance(streak, rule, at(1, 10))
	tr := Advance(streak, rule, at(3, 10)) // frozen, count stays 1
	assert.Empty(t, tr.Milestones, "a frozen day does not advance the count toward milestones")

	tr = Advance(streak, rule, at(4, 10)) // extended, count 2
	require.Len(t, tr.Milestones, 1)
	assert.Equal(t, 2, tr.Milestones[0].Day)

	tr = Advance(streak, rule, at(5, 10)) // count 3
	assert.Empty(t, tr.Milestones, "a paid milestone never pays twice in the same streak")
}
