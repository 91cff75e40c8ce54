package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/progress"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressCache 维护 HabitProgress 快照
// 快照只是缓存：子任务日志或定义变化后必须 Invalidate，读取时缺失则现算
type ProgressCache struct {
	db *gorm.DB
}

// DayProgress 是某习惯某天的完成度，Cached 表示是否命中已有快照
type DayProgress struct {
	HabitID uint                 `json:"habit_id"`
	Date    time.Time            `json:"date"`
	Cached  bool                 `json:"cached"`
	Result  progress.Calculation `json:"result"`
}

// NewProgressCache 构造 ProgressCache
func NewProgressCache(gdb *gorm.DB) *ProgressCache {
	return &ProgressCache{db: gdb}
}

// Get 返回完成度；普通习惯直接读取 HabitEntry，子任务习惯优先读取快照
func (c *ProgressCache) Get(habit db.Habit, date time.Time) (*DayProgress, error) {
	day := dayOf(date)

	if !habit.HasSubTasks {
		completed, err := c.entryExists(c.db, habit.ID, day)
		if err != nil {
			return nil, err
		}
		return &DayProgress{HabitID: habit.ID, Date: day, Result: progress.Direct(completed)}, nil
	}

	var row db.HabitProgress
	err := c.db.Where("habit_id = ? AND progress_date = ?", habit.ID, day).First(&row).Error
	switch {
	case err == nil:
		return &DayProgress{HabitID: habit.ID, Date: day, Cached: true, Result: calcFromSnapshot(row)}, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Invalidate(habit, day)
	default:
		return nil, fmt.Errorf("load habit progress: %w", err)
	}
}

// Detail 现算完成度并附带子任务明细，不写快照
func (c *ProgressCache) Detail(habit db.Habit, date time.Time) (*DayProgress, error) {
	day := dayOf(date)
	if !habit.HasSubTasks {
		return c.Get(habit, day)
	}
	calc, err := c.evaluate(c.db, habit, day)
	if err != nil {
		return nil, err
	}
	return &DayProgress{HabitID: habit.ID, Date: day, Result: calc}, nil
}

// Invalidate 重新计算 (habit, date) 的完成度，写入快照并同步 HabitEntry
func (c *ProgressCache) Invalidate(habit db.Habit, date time.Time) (*DayProgress, error) {
	day := dayOf(date)
	if !habit.HasSubTasks {
		return c.Get(habit, day)
	}

	var calc progress.Calculation
	err := c.db.Transaction(func(tx *gorm.DB) error {
		var err error
		calc, err = c.evaluate(tx, habit, day)
		if err != nil {
			return err
		}

		snapshot := db.HabitProgress{
			UserID:               habit.UserID,
			HabitID:              habit.ID,
			ProgressDate:         day,
			Rule:                 string(calc.Rule),
			CompletionPercentage: calc.CompletionPercentage,
			IsCompleted:          calc.IsCompleted,
			TotalSubTasks:        calc.TotalSubTasks,
			CompletedSubTasks:    calc.CompletedSubTasks,
			TotalRequired:        calc.TotalRequired,
			CompletedRequired:    calc.CompletedRequired,
			TotalPoints:          calc.TotalPoints,
			EarnedPoints:         calc.EarnedPoints,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "habit_id"}, {Name: "progress_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"rule", "completion_percentage", "is_completed",
				"total_sub_tasks", "completed_sub_tasks",
				"total_required", "completed_required",
				"total_points", "earned_points", "updated_at",
			}),
		}).Create(&snapshot).Error; err != nil {
			return fmt.Errorf("upsert habit progress: %w", err)
		}

		return c.mirrorEntry(tx, habit, day, calc.IsCompleted)
	})
	if err != nil {
		return nil, err
	}

	return &DayProgress{HabitID: habit.ID, Date: day, Result: calc}, nil
}

// Rebuild 在习惯规则或子任务开关变化后重算所有已缓存的日期以及 today
// 关闭子任务后快照与镜像打卡一并清除
func (c *ProgressCache) Rebuild(habit db.Habit, today time.Time) error {
	if !habit.HasSubTasks {
		return c.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("habit_id = ?", habit.ID).Delete(&db.HabitProgress{}).Error; err != nil {
				return fmt.Errorf("clear habit progress: %w", err)
			}
			if err := tx.Where("habit_id = ? AND source = ?", habit.ID, EntrySourceSubTasks).Delete(&db.HabitEntry{}).Error; err != nil {
				return fmt.Errorf("clear mirrored entries: %w", err)
			}
			return nil
		})
	}

	var snapshots []db.HabitProgress
	if err := c.db.Where("habit_id = ?", habit.ID).Find(&snapshots).Error; err != nil {
		return fmt.Errorf("list habit progress: %w", err)
	}
	var logs []db.SubTaskLog
	if err := c.db.Where("habit_id = ?", habit.ID).Find(&logs).Error; err != nil {
		return fmt.Errorf("list sub-task logs: %w", err)
	}

	days := map[string]time.Time{}
	add := func(t time.Time) {
		day := dayOf(t)
		days[day.Format("2006-01-02")] = day
	}
	for _, row := range snapshots {
		add(row.ProgressDate.UTC())
	}
	for _, row := range logs {
		add(row.LogDate.UTC())
	}
	add(today)

	for _, day := range days {
		if _, err := c.Invalidate(habit, day); err != nil {
			return err
		}
	}
	return nil
}

func (c *ProgressCache) evaluate(tx *gorm.DB, habit db.Habit, day time.Time) (progress.Calculation, error) {
	var subTasks []db.SubTask
	if err := tx.Where("habit_id = ?", habit.ID).Find(&subTasks).Error; err != nil {
		return progress.Calculation{}, fmt.Errorf("list sub-tasks: %w", err)
	}

	var logs []db.SubTaskLog
	if err := tx.Where("habit_id = ? AND log_date = ?", habit.ID, day).Find(&logs).Error; err != nil {
		return progress.Calculation{}, fmt.Errorf("list sub-task logs: %w", err)
	}

	return progress.Evaluate(ruleOf(habit), toProgressSubTasks(subTasks), toProgressLogs(logs)), nil
}

// mirrorEntry 让连胜与周期统计通过同一张 HabitEntry 表看到子任务习惯
func (c *ProgressCache) mirrorEntry(tx *gorm.DB, habit db.Habit, day time.Time, completed bool) error {
	if !completed {
		if err := tx.Where("habit_id = ? AND entry_date = ?", habit.ID, day).Delete(&db.HabitEntry{}).Error; err != nil {
			return fmt.Errorf("remove mirrored entry: %w", err)
		}
		return nil
	}

	now := time.Now()
	entry := db.HabitEntry{
		UserID:      habit.UserID,
		HabitID:     habit.ID,
		EntryDate:   day,
		Completed:   true,
		CompletedAt: &now,
		Source:      EntrySourceSubTasks,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "entry_date"}},
		DoNothing: true,
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("mirror habit entry: %w", err)
	}
	return nil
}

func (c *ProgressCache) entryExists(tx *gorm.DB, habitID uint, day time.Time) (bool, error) {
	var count int64
	if err := tx.Model(&db.HabitEntry{}).
		Where("habit_id = ? AND entry_date = ? AND completed = ?", habitID, day, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check habit entry: %w", err)
	}
	return count > 0, nil
}

func calcFromSnapshot(row db.HabitProgress) progress.Calculation {
	return progress.Calculation{
		Rule:                 progress.Kind(row.Rule),
		CompletionPercentage: row.CompletionPercentage,
		IsCompleted:          row.IsCompleted,
		TotalSubTasks:        row.TotalSubTasks,
		CompletedSubTasks:    row.CompletedSubTasks,
		TotalPoints:          row.TotalPoints,
		EarnedPoints:         row.EarnedPoints,
		CompletedRequired:    row.CompletedRequired,
		TotalRequired:        row.TotalRequired,
		Breakdown:            []progress.BreakdownItem{},
	}
}
