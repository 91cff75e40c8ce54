package service

import (
	"context"
	"fmt"
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/observability"
	"github.com/habitlog/internal/rollup"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatsService 汇总连胜、周/月完成率、日历与热力图
// 计算本身在 rollup 包中，这里只负责加载数据与写入周期缓存
type StatsService struct {
	db     *gorm.DB
	habits *HabitService
	cache  *ProgressCache
	now    func() time.Time
}

// HeatmapEntry 表示热力图中的单日打卡数据
type HeatmapEntry struct {
	EntryDate time.Time `json:"entry_date"`
	HabitID   uint      `json:"habit_id"`
	HabitName string    `json:"habit_name"`
	Emoji     string    `json:"emoji"`
}

// CalendarView 是单个习惯在区间内的完成日期与统计
type CalendarView struct {
	HabitID uint              `json:"habit_id"`
	Dates   []time.Time       `json:"dates"`
	Stats   rollup.RangeStats `json:"stats"`
}

// DaySummary 是某天所有活跃习惯的完成度
type DaySummary struct {
	Date      time.Time     `json:"date"`
	Habits    []DayProgress `json:"habits"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
}

// NewStatsService 构造 StatsService
func NewStatsService(gdb *gorm.DB, habits *HabitService, cache *ProgressCache) *StatsService {
	return &StatsService{db: gdb, habits: habits, cache: cache, now: time.Now}
}

// WithClock 替换当前时间来源，用于判断窗口是否仍在进行中
func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

// Streak 计算截至 today 的当前连胜与最长连胜
func (s *StatsService) Streak(ctx context.Context, userID uint, today time.Time) (rollup.Streak, error) {
	ctx, span := observability.Tracer().Start(ctx, "habitlog.stats.streak")
	defer span.End()

	day := dayOf(today)
	habits, entries, err := s.load(ctx, userID, time.Time{}, day)
	if err != nil {
		return rollup.Streak{}, err
	}

	streak := rollup.Streaks(toRollupHabits(habits), toCompletions(entries), day)
	span.SetAttributes(attribute.Int("streak.current", streak.Current))
	return streak, nil
}

// Week 汇总包含 day 的 ISO 周
func (s *StatsService) Week(ctx context.Context, userID uint, day time.Time) (rollup.PeriodReport, error) {
	return s.period(ctx, userID, rollup.WeekOf(dayOf(day)), s.now(), true)
}

// Month 汇总包含 day 的自然月
func (s *StatsService) Month(ctx context.Context, userID uint, day time.Time) (rollup.PeriodReport, error) {
	return s.period(ctx, userID, rollup.MonthOf(dayOf(day)), s.now(), true)
}

// period 汇总窗口；persist 为 false 时只读，供并发加载使用
func (s *StatsService) period(ctx context.Context, userID uint, window rollup.Window, now time.Time, persist bool) (rollup.PeriodReport, error) {
	ctx, span := observability.Tracer().Start(ctx, "habitlog.stats."+string(window.Kind))
	defer span.End()

	habits, entries, err := s.load(ctx, userID, window.Start, window.End.AddDate(0, 0, -1))
	if err != nil {
		return rollup.PeriodReport{}, err
	}

	report := rollup.Summarize(window, toRollupHabits(habits), toCompletions(entries), dayOf(now))
	if !persist {
		return report, nil
	}
	if err := s.savePeriod(ctx, userID, report); err != nil {
		return rollup.PeriodReport{}, err
	}
	return report, nil
}

// savePeriod 写入每个习惯以及 HabitID=0 的汇总行
func (s *StatsService) savePeriod(ctx context.Context, userID uint, report rollup.PeriodReport) error {
	rows := make([]db.PeriodProgress, 0, len(report.Habits)+1)
	for _, item := range report.Habits {
		rows = append(rows, db.PeriodProgress{
			UserID:      userID,
			HabitID:     item.HabitID,
			PeriodKind:  string(report.Window.Kind),
			PeriodStart: report.Window.Start,
			Completed:   item.Completed,
			Target:      item.Target,
			Percentage:  item.Percentage,
		})
	}
	rows = append(rows, db.PeriodProgress{
		UserID:      userID,
		PeriodKind:  string(report.Window.Kind),
		PeriodStart: report.Window.Start,
		Completed:   report.Completed,
		Target:      report.Target,
		Percentage:  report.Percentage,
	})

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "habit_id"}, {Name: "period_kind"}, {Name: "period_start"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"completed", "target", "percentage", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("upsert period progress: %w", err)
	}
	return nil
}

// Calendar 返回单个习惯在 [start, end] 内的完成日期与统计
func (s *StatsService) Calendar(userID, habitID uint, start, end time.Time) (*CalendarView, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	habit, err := s.habits.Get(userID, habitID)
	if err != nil {
		return nil, err
	}

	var entries []db.HabitEntry
	if err := s.db.Where("habit_id = ? AND completed = ?", habit.ID, true).
		Where("entry_date BETWEEN ? AND ?", dayOf(start), dayOf(end)).
		Order("entry_date ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list calendar entries: %w", err)
	}

	dates := make([]time.Time, 0, len(entries))
	for _, c := range toCompletions(entries) {
		dates = append(dates, c.Date)
	}

	return &CalendarView{
		HabitID: habit.ID,
		Dates:   dates,
		Stats:   rollup.StatsBetween(toRollupHabit(*habit), habit.Cadence, dayOf(start), dayOf(end), dates),
	}, nil
}

// Heatmap 返回区间内所有习惯的打卡数据
func (s *StatsService) Heatmap(userID uint, start, end time.Time) ([]HeatmapEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	var rows []HeatmapEntry
	if err := s.db.Model(&db.HabitEntry{}).
		Select("habit_entries.entry_date AS entry_date, habit_entries.habit_id AS habit_id, habits.name AS habit_name, habits.emoji AS emoji").
		Joins("JOIN habits ON habits.id = habit_entries.habit_id").
		Where("habit_entries.user_id = ? AND habit_entries.completed = ?", userID, true).
		Where("habits.deleted_at IS NULL").
		Where("habit_entries.entry_date BETWEEN ? AND ?", dayOf(start), dayOf(end)).
		Order("habit_entries.entry_date ASC, habits.name ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list heatmap entries: %w", err)
	}

	return rows, nil
}

// Day 返回某天每个活跃习惯的完成度，子任务习惯走快照
func (s *StatsService) Day(userID uint, date time.Time) (*DaySummary, error) {
	habits, err := s.habits.List(userID, HabitFilter{})
	if err != nil {
		return nil, err
	}

	summary := &DaySummary{Date: dayOf(date), Habits: make([]DayProgress, 0, len(habits))}
	for _, habit := range habits {
		progress, err := s.cache.Get(habit, date)
		if err != nil {
			return nil, err
		}
		summary.Habits = append(summary.Habits, *progress)
		summary.Total++
		if progress.Result.IsCompleted {
			summary.Completed++
		}
	}
	return summary, nil
}

// load 并发读取活跃习惯与 [start, end] 内的完成记录；start 为零值时不设下界
func (s *StatsService) load(ctx context.Context, userID uint, start, end time.Time) ([]db.Habit, []db.HabitEntry, error) {
	var (
		habits  []db.Habit
		entries []db.HabitEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.WithContext(gctx).
			Where("user_id = ? AND archived_at IS NULL", userID).
			Order("sort_order ASC, id ASC").
			Find(&habits).Error; err != nil {
			return fmt.Errorf("list active habits: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		query := s.db.WithContext(gctx).
			Where("user_id = ? AND completed = ?", userID, true).
			Where("entry_date <= ?", end)
		if !start.IsZero() {
			query = query.Where("entry_date >= ?", start)
		}
		if err := query.Order("entry_date ASC").Find(&entries).Error; err != nil {
			return fmt.Errorf("list habit entries: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return habits, entries, nil
}
