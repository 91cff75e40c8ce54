package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC) // Wednesday

func day(offset int) time.Time {
	return today.AddDate(0, 0, offset)
}

func completeAll(habits []Habit, offsets ...int) []Completion {
	var out []Completion
	for _, offset := range offsets {
		for _, h := range habits {
			out = append(out, Completion{HabitID: h.ID, Date: day(offset)})
		}
	}
	return out
}

func twoHabits() []Habit {
	return []Habit{
		{ID: 1, Name: "Run", WeeklyTarget: 5, MonthlyTarget: 20},
		{ID: 2, Name: "Read", WeeklyTarget: 7, MonthlyTarget: 30},
	}
}

func TestCurrentStreakStopsAtGap(t *testing.T) {
	habits := twoHabits()
	completions := completeAll(habits, 0, -1, -2, -4, -5)

	streak := Streaks(habits, completions, today.Add(15*time.Hour))
	assert.Equal(t, 3, streak.Current)
	assert.Equal(t, 3, streak.Longest)
	assert.True(t, streak.TodayComplete)
}

func TestCurrentStreakTodayDoesNotBreak(t *testing.T) {
	habits := twoHabits()
	completions := completeAll(habits, -1, -2)

	assert.Equal(t, 2, CurrentStreak(habits, completions, today))
}

func TestCurrentStreakPartialTodayIsExempt(t *testing.T) {
	habits := twoHabits()
	completions := append(completeAll(habits, -1), Completion{HabitID: 1, Date: day(0)})

	streak := Streaks(habits, completions, today)
	assert.Equal(t, 1, streak.Current)
	assert.False(t, streak.TodayComplete)
}

func TestCurrentStreakPartialPastDayBreaks(t *testing.T) {
	habits := twoHabits()
	completions := append(completeAll(habits, 0, -2), Completion{HabitID: 1, Date: day(-1)})

	assert.Equal(t, 1, CurrentStreak(habits, completions, today))
}

func TestCurrentStreakIgnoresArchivedHabits(t *testing.T) {
	habits := twoHabits()
	habits = append(habits, Habit{ID: 3, Name: "Old", Archived: true})
	completions := completeAll(habits[:2], 0, -1)

	assert.Equal(t, 2, CurrentStreak(habits, completions, today))
}

func TestCurrentStreakWithoutHabits(t *testing.T) {
	assert.Equal(t, Streak{}, Streaks(nil, nil, today))
}

func TestLongestStreakFromHistory(t *testing.T) {
	habits := twoHabits()
	completions := completeAll(habits, -10, -11, -12, -13, -20)

	streak := Streaks(habits, completions, today)
	assert.Equal(t, 0, streak.Current)
	assert.Equal(t, 4, streak.Longest)
}

func TestWeekOfStartsMonday(t *testing.T) {
	w := WeekOf(today)
	assert.Equal(t, time.Monday, w.Start.Weekday())
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), w.End)

	sunday := WeekOf(time.Date(2024, 5, 19, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, w.Start, sunday.Start)
}

func TestMonthOf(t *testing.T) {
	m := MonthOf(today)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), m.Start)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), m.End)
}

func TestSummarizeWeek(t *testing.T) {
	habits := twoHabits()
	completions := []Completion{
		{HabitID: 1, Date: day(-2)},
		{HabitID: 1, Date: day(-1)},
		{HabitID: 1, Date: day(-1)}, // duplicate day counts once
		{HabitID: 1, Date: day(-7)}, // previous week
		{HabitID: 2, Date: day(0)},
	}

	report := Summarize(WeekOf(today), habits, completions, today)
	require.Len(t, report.Habits, 2)
	assert.Equal(t, 2, report.Habits[0].Completed)
	assert.Equal(t, 40, report.Habits[0].Percentage)
	assert.Equal(t, 14, report.Habits[1].Percentage)
	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 12, report.Target)
	assert.Equal(t, 25, report.Percentage)
	assert.True(t, report.InProgress)
}

func TestSummarizeReturnsRawRatioAboveTarget(t *testing.T) {
	habits := []Habit{{ID: 1, Name: "Walk", WeeklyTarget: 2}}
	completions := []Completion{
		{HabitID: 1, Date: day(-2)},
		{HabitID: 1, Date: day(-1)},
		{HabitID: 1, Date: day(0)},
	}

	report := Summarize(WeekOf(today), habits, completions, today.AddDate(0, 1, 0))
	assert.Equal(t, 150, report.Percentage)
	assert.Equal(t, 100, CapPercentage(report.Percentage))
	assert.False(t, report.InProgress)
}

func TestSummarizeZeroTarget(t *testing.T) {
	habits := []Habit{{ID: 1, Name: "Free"}}
	report := Summarize(MonthOf(today), habits, []Completion{{HabitID: 1, Date: today}}, today)
	assert.Equal(t, 0, report.Percentage)
	assert.Equal(t, 1, report.Completed)
}

func TestTopHabitsStableOrder(t *testing.T) {
	report := PeriodReport{Habits: []HabitRollup{
		{HabitID: 1, Completed: 0, Target: 5},
		{HabitID: 2, Completed: 2, Target: 4},
		{HabitID: 3, Completed: 3, Target: 3},
		{HabitID: 4, Completed: 1, Target: 2},
	}}

	top := TopHabits(report, 0)
	require.Len(t, top, 3)
	assert.Equal(t, uint(3), top[0].HabitID)
	assert.Equal(t, uint(2), top[1].HabitID)
	assert.Equal(t, uint(4), top[2].HabitID)

	assert.Len(t, TopHabits(report, 1), 1)
}

func TestStatsBetween(t *testing.T) {
	habit := Habit{ID: 1, WeeklyTarget: 3}
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2), start.AddDate(0, 0, 2)}

	stats := StatsBetween(habit, "daily", start, start.AddDate(0, 0, 2), dates)
	assert.Equal(t, 3, stats.CompletedCount)
	assert.Equal(t, 3, stats.TargetCount)
	assert.Equal(t, 1.0, stats.CompletionRate)
	assert.Equal(t, 3, stats.CurrentStreak)
	assert.Equal(t, 3, stats.LongestStreak)

	weekly := StatsBetween(habit, "weekly", start, start.AddDate(0, 0, 13), dates)
	assert.Equal(t, 6, weekly.TargetCount)
}
