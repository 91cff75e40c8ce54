// Package rollup 汇总打卡记录：连胜、周/月完成率以及区间统计。
package rollup

import (
	"slices"
	"time"
)

const dayKeyFormat = "2006-01-02"

// Habit 是参与汇总的习惯
type Habit struct {
	ID            uint
	Name          string
	WeeklyTarget  int
	MonthlyTarget int
	Archived      bool
}

// Completion 表示某个习惯在某天已完成
type Completion struct {
	HabitID uint
	Date    time.Time
}

// Streak 是用户维度的连胜结果
type Streak struct {
	Current       int  `json:"current"`
	Longest       int  `json:"longest"`
	TodayComplete bool `json:"today_complete"`
}

// NormalizeToDate 截断到当天零点，保留时区
func NormalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayKey(t time.Time) string {
	return t.Format(dayKeyFormat)
}

// Streaks 计算当前连胜与历史最长连胜。
// 某天所有未归档习惯都有完成记录才算一天；今天未全部完成时不打断连胜，直接从昨天开始回溯。
// 今天只完成部分习惯同样视为未结束，不会把连胜清零。
func Streaks(habits []Habit, completions []Completion, today time.Time) Streak {
	active := activeHabits(habits)
	if len(active) == 0 {
		return Streak{}
	}

	days := completedDays(active, completions)
	today = NormalizeToDate(today)

	var streak Streak
	streak.TodayComplete = days[dayKey(today)] == len(active)

	cursor := today
	for {
		if days[dayKey(cursor)] == len(active) {
			streak.Current++
		} else if !cursor.Equal(today) {
			break
		}
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak.Longest = longestRun(days, len(active), cursor.Location())
	if streak.Current > streak.Longest {
		streak.Longest = streak.Current
	}

	return streak
}

// CurrentStreak 是 Streaks 的简写
func CurrentStreak(habits []Habit, completions []Completion, today time.Time) int {
	return Streaks(habits, completions, today).Current
}

func activeHabits(habits []Habit) map[uint]Habit {
	active := make(map[uint]Habit, len(habits))
	for _, habit := range habits {
		if habit.Archived {
			continue
		}
		active[habit.ID] = habit
	}
	return active
}

// completedDays 返回每天完成的不同活跃习惯数量
func completedDays(active map[uint]Habit, completions []Completion) map[string]int {
	seen := make(map[string]map[uint]struct{})
	for _, c := range completions {
		if _, ok := active[c.HabitID]; !ok {
			continue
		}
		key := dayKey(c.Date)
		if seen[key] == nil {
			seen[key] = make(map[uint]struct{})
		}
		seen[key][c.HabitID] = struct{}{}
	}

	counts := make(map[string]int, len(seen))
	for key, ids := range seen {
		counts[key] = len(ids)
	}
	return counts
}

func longestRun(days map[string]int, required int, loc *time.Location) int {
	full := make([]time.Time, 0, len(days))
	for key, count := range days {
		if count != required {
			continue
		}
		day, err := time.ParseInLocation(dayKeyFormat, key, loc)
		if err != nil {
			continue
		}
		full = append(full, day)
	}
	slices.SortFunc(full, func(a, b time.Time) int { return a.Compare(b) })
	_, longest := calculateStreaks(full)
	return longest
}
