package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/progress"
	"gorm.io/gorm"
)

// 支持的周期
const (
	CadenceDaily   = "daily"
	CadenceWeekly  = "weekly"
	CadenceMonthly = "monthly"
)

// HabitService 负责 Habit 的增删改查与归档
// 所有查询都按 userID 隔离
type HabitService struct {
	db    *gorm.DB
	cache *ProgressCache
	now   func() time.Time
	loc   *time.Location
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	IncludeArchived bool
	Cadence         string
	Search          string
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	Name                string
	Emoji               string
	Notes               string
	Cadence             string
	HasSubTasks         bool
	ProgressRule        string
	CompletionThreshold int
	WeeklyTarget        int
	MonthlyTarget       int
	SortOrder           int
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB) *HabitService {
	return &HabitService{db: gdb, cache: NewProgressCache(gdb), now: time.Now, loc: time.Local}
}

// WithClock 替换当前时间来源
func (s *HabitService) WithClock(now func() time.Time) *HabitService {
	s.now = now
	return s
}

// WithLocation 设置决定 today 的用户时区
func (s *HabitService) WithLocation(loc *time.Location) *HabitService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// List 返回用户的习惯，默认不含已归档
func (s *HabitService) List(userID uint, filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.Model(&db.Habit{}).
		Preload("SubTasks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sort_order ASC, id ASC")
		}).
		Where("user_id = ?", userID)

	if !filter.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if cadence := strings.ToLower(strings.TrimSpace(filter.Cadence)); cadence != "" {
		query = query.Where("cadence = ?", cadence)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR notes LIKE ?", like, like)
	}

	if err := query.Order("sort_order ASC, id ASC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	return habits, nil
}

// Get 根据 ID 获取习惯，附带子任务
func (s *HabitService) Get(userID, id uint) (*db.Habit, error) {
	var habit db.Habit
	err := s.db.
		Preload("SubTasks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sort_order ASC, id ASC")
		}).
		Where("user_id = ?", userID).
		First(&habit, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯
func (s *HabitService) Create(userID uint, input HabitInput) (*db.Habit, error) {
	normalized, err := normalizeHabitInput(input)
	if err != nil {
		return nil, err
	}

	habit := db.Habit{UserID: userID}
	applyHabitInput(&habit, normalized)

	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 更新习惯，并按新的规则重算该习惯的完成度快照
func (s *HabitService) Update(userID, id uint, input HabitInput) (*db.Habit, error) {
	normalized, err := normalizeHabitInput(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	applyHabitInput(existing, normalized)

	if err := s.db.Omit("SubTasks").Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	if err := s.cache.Rebuild(*existing, s.now().In(s.loc)); err != nil {
		return nil, fmt.Errorf("rebuild habit progress: %w", err)
	}
	return existing, nil
}

// Archive 归档习惯，历史打卡保留
func (s *HabitService) Archive(userID, id uint) (*db.Habit, error) {
	habit, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if habit.Archived() {
		return habit, nil
	}

	now := s.now()
	if err := s.db.Model(habit).Update("archived_at", now).Error; err != nil {
		return nil, fmt.Errorf("archive habit: %w", err)
	}
	habit.ArchivedAt = &now
	return habit, nil
}

// Restore 取消归档
func (s *HabitService) Restore(userID, id uint) (*db.Habit, error) {
	habit, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if !habit.Archived() {
		return habit, nil
	}

	if err := s.db.Model(habit).Update("archived_at", nil).Error; err != nil {
		return nil, fmt.Errorf("restore habit: %w", err)
	}
	habit.ArchivedAt = nil
	return habit, nil
}

// Delete 删除习惯；已有打卡历史时改为归档，返回 archived=true
func (s *HabitService) Delete(userID, id uint) (archived bool, err error) {
	habit, err := s.Get(userID, id)
	if err != nil {
		return false, err
	}

	var history int64
	if err := s.db.Model(&db.HabitEntry{}).Where("habit_id = ?", habit.ID).Count(&history).Error; err != nil {
		return false, fmt.Errorf("count habit entries: %w", err)
	}
	if history == 0 {
		if err := s.db.Model(&db.SubTaskLog{}).Where("habit_id = ?", habit.ID).Count(&history).Error; err != nil {
			return false, fmt.Errorf("count sub-task logs: %w", err)
		}
	}

	if history > 0 {
		if _, err := s.Archive(userID, id); err != nil {
			return false, err
		}
		return true, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("habit_id = ?", habit.ID).Delete(&db.HabitProgress{}).Error; err != nil {
			return fmt.Errorf("delete habit progress: %w", err)
		}
		if err := tx.Where("habit_id = ?", habit.ID).Delete(&db.SubTask{}).Error; err != nil {
			return fmt.Errorf("delete sub-tasks: %w", err)
		}
		if err := tx.Delete(&db.Habit{}, habit.ID).Error; err != nil {
			return fmt.Errorf("delete habit: %w", err)
		}
		return nil
	})
	return false, err
}

func normalizeHabitInput(input HabitInput) (HabitInput, error) {
	input.Name = sanitizePlain(input.Name)
	input.Emoji = sanitizePlain(input.Emoji)
	input.Notes = sanitizePlain(input.Notes)

	if input.Name == "" {
		return input, fmt.Errorf("%w: name is required", ErrInvalidHabit)
	}

	input.Cadence = strings.ToLower(strings.TrimSpace(input.Cadence))
	if input.Cadence == "" {
		input.Cadence = CadenceDaily
	}
	if input.Cadence != CadenceDaily && input.Cadence != CadenceWeekly && input.Cadence != CadenceMonthly {
		return input, fmt.Errorf("%w: unsupported cadence %s", ErrInvalidHabit, input.Cadence)
	}

	rule, err := progress.ParseRule(input.ProgressRule, input.CompletionThreshold)
	if err != nil {
		return input, err
	}
	input.ProgressRule = string(rule.Kind())
	input.CompletionThreshold = progress.Threshold(rule)

	if input.WeeklyTarget < 0 || input.MonthlyTarget < 0 {
		return input, fmt.Errorf("%w: targets must not be negative", ErrInvalidHabit)
	}
	if input.WeeklyTarget == 0 {
		input.WeeklyTarget = defaultWeeklyTarget(input.Cadence)
	}
	if input.MonthlyTarget == 0 {
		input.MonthlyTarget = defaultMonthlyTarget(input.Cadence)
	}

	return input, nil
}

func applyHabitInput(habit *db.Habit, input HabitInput) {
	habit.Name = input.Name
	habit.Emoji = input.Emoji
	habit.Notes = input.Notes
	habit.Cadence = input.Cadence
	habit.HasSubTasks = input.HasSubTasks
	habit.ProgressRule = input.ProgressRule
	habit.CompletionThreshold = input.CompletionThreshold
	habit.WeeklyTarget = input.WeeklyTarget
	habit.MonthlyTarget = input.MonthlyTarget
	habit.SortOrder = input.SortOrder
}

func defaultWeeklyTarget(cadence string) int {
	switch cadence {
	case CadenceDaily:
		return 7
	default:
		return 1
	}
}

func defaultMonthlyTarget(cadence string) int {
	switch cadence {
	case CadenceDaily:
		return 30
	case CadenceWeekly:
		return 4
	default:
		return 1
	}
}

// ruleOf 解析已存储的规则；存储值异常时退回 ALL
func ruleOf(habit db.Habit) progress.Rule {
	rule, err := progress.ParseRule(habit.ProgressRule, habit.CompletionThreshold)
	if err != nil {
		return progress.AllRequired{}
	}
	return rule
}
