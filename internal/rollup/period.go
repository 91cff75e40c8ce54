package rollup

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"
)

// PeriodKind 区分周与月
type PeriodKind string

const (
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
)

// Window 是左闭右开的统计窗口
type Window struct {
	Kind  PeriodKind `json:"kind"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// Contains 判断时间是否落在窗口内
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WeekOf 返回包含 t 的 ISO 周（周一开始）
func WeekOf(t time.Time) Window {
	day := NormalizeToDate(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start := day.AddDate(0, 0, -weekday+1)
	return Window{Kind: PeriodWeek, Start: start, End: start.AddDate(0, 0, 7)}
}

// MonthOf 返回包含 t 的自然月
func MonthOf(t time.Time) Window {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Window{Kind: PeriodMonth, Start: start, End: start.AddDate(0, 1, 0)}
}

// HabitRollup 是单个习惯在窗口内的完成情况
type HabitRollup struct {
	HabitID    uint   `json:"habit_id"`
	Name       string `json:"name"`
	Completed  int    `json:"completed"`
	Target     int    `json:"target"`
	Percentage int    `json:"percentage"`
}

// Rate 返回未取整的完成比例
func (r HabitRollup) Rate() float64 {
	if r.Target <= 0 {
		return 0
	}
	return float64(r.Completed) / float64(r.Target)
}

// PeriodReport 汇总一个窗口；百分比不做 100 封顶，封顶属于展示层
type PeriodReport struct {
	Window     Window        `json:"window"`
	Habits     []HabitRollup `json:"habits"`
	Completed  int           `json:"completed"`
	Target     int           `json:"target"`
	Percentage int           `json:"percentage"`
	InProgress bool          `json:"in_progress"`
}

// Summarize 统计窗口内每个未归档习惯的完成次数，并与周/月目标比较
func Summarize(window Window, habits []Habit, completions []Completion, now time.Time) PeriodReport {
	report := PeriodReport{
		Window:     window,
		Habits:     make([]HabitRollup, 0, len(habits)),
		InProgress: window.Contains(now),
	}

	counts := make(map[uint]map[string]struct{})
	for _, c := range completions {
		if !window.Contains(c.Date) {
			continue
		}
		if counts[c.HabitID] == nil {
			counts[c.HabitID] = make(map[string]struct{})
		}
		counts[c.HabitID][dayKey(c.Date)] = struct{}{}
	}

	for _, habit := range habits {
		if habit.Archived {
			continue
		}
		target := habit.WeeklyTarget
		if window.Kind == PeriodMonth {
			target = habit.MonthlyTarget
		}
		item := HabitRollup{
			HabitID:   habit.ID,
			Name:      habit.Name,
			Completed: len(counts[habit.ID]),
			Target:    target,
		}
		item.Percentage = ratioPercent(item.Completed, item.Target)

		report.Completed += item.Completed
		report.Target += item.Target
		report.Habits = append(report.Habits, item)
	}

	report.Percentage = ratioPercent(report.Completed, report.Target)
	return report
}

// TopHabits 选出至少完成一次的习惯，按完成率降序；相同完成率保持原顺序
func TopHabits(report PeriodReport, limit int) []HabitRollup {
	ranked := make([]HabitRollup, 0, len(report.Habits))
	for _, item := range report.Habits {
		if item.Completed > 0 {
			ranked = append(ranked, item)
		}
	}

	slices.SortStableFunc(ranked, func(a, b HabitRollup) int {
		return cmp.Compare(b.Rate(), a.Rate())
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// CapPercentage 供展示层使用
func CapPercentage(p int) int {
	if p > 100 {
		return 100
	}
	return p
}

func ratioPercent(completed, target int) int {
	if target <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(target) * 100))
}

// RangeStats 汇总任意区间内单个习惯的完成数、期望数及连胜
type RangeStats struct {
	RangeStart     time.Time `json:"range_start"`
	RangeEnd       time.Time `json:"range_end"`
	CompletedCount int       `json:"completed_count"`
	TargetCount    int       `json:"target_count"`
	CompletionRate float64   `json:"completion_rate"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
}

// StatsBetween 计算 [start, end] 内的统计；dates 为该习惯的完成日期
func StatsBetween(habit Habit, cadence string, start, end time.Time, dates []time.Time) RangeStats {
	start = NormalizeToDate(start)
	end = NormalizeToDate(end)

	inRange := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = NormalizeToDate(d)
		if d.Before(start) || d.After(end) {
			continue
		}
		inRange = append(inRange, d)
	}
	slices.SortFunc(inRange, func(a, b time.Time) int { return a.Compare(b) })
	inRange = slices.CompactFunc(inRange, func(a, b time.Time) bool { return a.Equal(b) })

	stats := RangeStats{
		RangeStart:     start,
		RangeEnd:       end,
		CompletedCount: len(inRange),
		TargetCount:    expectedCount(habit, cadence, start, end),
	}
	if stats.TargetCount <= 0 {
		stats.TargetCount = stats.CompletedCount
	}
	if stats.TargetCount > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TargetCount)
	}

	stats.CurrentStreak, stats.LongestStreak = calculateStreaks(inRange)
	return stats
}

func expectedCount(habit Habit, cadence string, start, end time.Time) int {
	if end.Before(start) {
		return 0
	}

	days := int(end.Sub(start).Hours()/24) + 1

	switch strings.ToLower(cadence) {
	case "weekly":
		weeks := days / 7
		if weeks == 0 {
			weeks = 1
		}
		return weeks * max(1, habit.WeeklyTarget)
	case "monthly":
		months := diffMonths(start, end)
		if months == 0 {
			months = 1
		}
		return months * max(1, habit.MonthlyTarget)
	default:
		return days
	}
}

// calculateStreaks 要求 dates 已排序去重；current 为以最后一天结尾的连续天数
func calculateStreaks(dates []time.Time) (current, longest int) {
	if len(dates) == 0 {
		return 0, 0
	}

	longest = 1
	current = 1

	for i := 1; i < len(dates); i++ {
		if dates[i-1].AddDate(0, 0, 1).Equal(dates[i]) {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 1
		}
	}

	return current, longest
}

func diffMonths(start, end time.Time) int {
	y1, m1, _ := start.Date()
	y2, m2, _ := end.Date()

	return (y2-y1)*12 + int(m2-m1) + 1
}
