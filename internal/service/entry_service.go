package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/guard"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 打卡来源
const (
	EntrySourceManual   = "manual"
	EntrySourceSubTasks = "sub_tasks"
)

// EntryService 负责打卡写入：普通习惯切换与子任务勾选
// 行存在即完成，取消直接删除，(habit, date) 最多一条
type EntryService struct {
	db     *gorm.DB
	habits *HabitService
	cache  *ProgressCache
	guard  guard.Guard
	now    func() time.Time
}

// ToggleResult 描述一次切换后的状态
type ToggleResult struct {
	HabitID   uint      `json:"habit_id"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
}

// SubTaskLogInput 定义子任务勾选输入
type SubTaskLogInput struct {
	Date             time.Time
	Completed        bool
	TimeSpentMinutes int
}

// NewEntryService 构造 EntryService；g 为 nil 时使用进程内锁
func NewEntryService(gdb *gorm.DB, habits *HabitService, cache *ProgressCache, g guard.Guard) *EntryService {
	if g == nil {
		g = guard.NewMemoryGuard()
	}
	return &EntryService{db: gdb, habits: habits, cache: cache, guard: g, now: time.Now}
}

// Toggle 切换普通习惯在 date 当天的完成状态
// 同一 (habit, date) 的并发请求只有一个生效，其余返回 ErrToggleInFlight
func (s *EntryService) Toggle(ctx context.Context, userID, habitID uint, date time.Time) (*ToggleResult, error) {
	habit, err := s.habits.Get(userID, habitID)
	if err != nil {
		return nil, err
	}
	if habit.HasSubTasks {
		return nil, fmt.Errorf("%w: completion of a sub-task habit is derived from its sub-tasks", ErrInvalidHabit)
	}

	day := dayOf(date)
	release, err := s.guard.Acquire(ctx, guard.Key(habit.ID, day))
	if err != nil {
		if errors.Is(err, guard.ErrBusy) {
			return nil, ErrToggleInFlight
		}
		return nil, fmt.Errorf("acquire toggle guard: %w", err)
	}
	defer release()

	result := &ToggleResult{HabitID: habit.ID, Date: day}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted := tx.Where("habit_id = ? AND entry_date = ?", habit.ID, day).Delete(&db.HabitEntry{})
		if deleted.Error != nil {
			return fmt.Errorf("delete habit entry: %w", deleted.Error)
		}
		if deleted.RowsAffected > 0 {
			return nil
		}

		now := s.now()
		entry := db.HabitEntry{
			UserID:      userID,
			HabitID:     habit.ID,
			EntryDate:   day,
			Completed:   true,
			CompletedAt: &now,
			Source:      EntrySourceManual,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create habit entry: %w", err)
		}
		result.Completed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SetSubTask 设置子任务在某天的完成状态，并刷新所属习惯的完成度
func (s *EntryService) SetSubTask(userID, subTaskID uint, input SubTaskLogInput) (*DayProgress, error) {
	if input.TimeSpentMinutes < 0 {
		return nil, fmt.Errorf("%w: time spent must not be negative", ErrInvalidSubTask)
	}

	subTask, habit, err := s.loadSubTask(userID, subTaskID)
	if err != nil {
		return nil, err
	}

	day := dayOf(input.Date)
	if input.Completed {
		now := s.now()
		log := db.SubTaskLog{
			UserID:           userID,
			HabitID:          habit.ID,
			SubTaskID:        subTask.ID,
			LogDate:          day,
			Completed:        true,
			CompletedAt:      &now,
			TimeSpentMinutes: input.TimeSpentMinutes,
		}
		if err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sub_task_id"}, {Name: "log_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"time_spent_minutes", "updated_at"}),
		}).Create(&log).Error; err != nil {
			return nil, fmt.Errorf("upsert sub-task log: %w", err)
		}
	} else {
		if err := s.db.Where("sub_task_id = ? AND log_date = ?", subTask.ID, day).Delete(&db.SubTaskLog{}).Error; err != nil {
			return nil, fmt.Errorf("delete sub-task log: %w", err)
		}
	}

	return s.cache.Invalidate(*habit, day)
}

// ListEntries 返回区间内（含两端）的完成记录，按日期升序
func (s *EntryService) ListEntries(userID, habitID uint, start, end time.Time) ([]db.HabitEntry, error) {
	if _, err := s.habits.Get(userID, habitID); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	var entries []db.HabitEntry
	if err := s.db.Where("habit_id = ?", habitID).
		Where("entry_date BETWEEN ? AND ?", dayOf(start), dayOf(end)).
		Order("entry_date ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list habit entries: %w", err)
	}
	return entries, nil
}

// Progress 返回习惯在某天的完成度与子任务明细
func (s *EntryService) Progress(userID, habitID uint, date time.Time) (*DayProgress, error) {
	habit, err := s.habits.Get(userID, habitID)
	if err != nil {
		return nil, err
	}
	return s.cache.Detail(*habit, date)
}

func (s *EntryService) loadSubTask(userID, subTaskID uint) (*db.SubTask, *db.Habit, error) {
	var subTask db.SubTask
	if err := s.db.First(&subTask, subTaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSubTaskNotFound
		}
		return nil, nil, fmt.Errorf("get sub-task: %w", err)
	}

	habit, err := s.habits.Get(userID, subTask.HabitID)
	if err != nil {
		if errors.Is(err, ErrHabitNotFound) {
			return nil, nil, ErrSubTaskNotFound
		}
		return nil, nil, err
	}
	return &subTask, habit, nil
}
