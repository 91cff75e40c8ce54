package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
)

// 子任务权重范围
const (
	MinSubTaskWeight = 1
	MaxSubTaskWeight = 10
)

// SubTaskService 维护习惯的子任务定义
// 定义变化会影响当天完成度，因此每次写入后刷新今天的快照
type SubTaskService struct {
	db     *gorm.DB
	habits *HabitService
	cache  *ProgressCache
	now    func() time.Time
	loc    *time.Location
}

// SubTaskInput 定义创建/更新子任务时可配置字段
type SubTaskInput struct {
	Title            string
	Weight           int
	IsRequired       bool
	SortOrder        int
	EstimatedMinutes int
}

// NewSubTaskService 构造 SubTaskService
func NewSubTaskService(gdb *gorm.DB, habits *HabitService, cache *ProgressCache) *SubTaskService {
	return &SubTaskService{db: gdb, habits: habits, cache: cache, now: time.Now, loc: time.Local}
}

// WithClock 替换当前时间来源
func (s *SubTaskService) WithClock(now func() time.Time) *SubTaskService {
	s.now = now
	return s
}

// WithLocation 设置决定 today 的用户时区
func (s *SubTaskService) WithLocation(loc *time.Location) *SubTaskService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// List 返回习惯的子任务，按排序字段升序
func (s *SubTaskService) List(userID, habitID uint) ([]db.SubTask, error) {
	habit, err := s.habits.Get(userID, habitID)
	if err != nil {
		return nil, err
	}
	return habit.SubTasks, nil
}

// Create 为子任务型习惯新增子任务
func (s *SubTaskService) Create(userID, habitID uint, input SubTaskInput) (*db.SubTask, error) {
	habit, err := s.habits.Get(userID, habitID)
	if err != nil {
		return nil, err
	}
	if !habit.HasSubTasks {
		return nil, fmt.Errorf("%w: habit %d does not use sub-tasks", ErrInvalidSubTask, habit.ID)
	}

	normalized, err := normalizeSubTaskInput(input)
	if err != nil {
		return nil, err
	}

	subTask := db.SubTask{HabitID: habit.ID}
	applySubTaskInput(&subTask, normalized)
	if normalized.SortOrder == 0 {
		subTask.SortOrder = len(habit.SubTasks)
	}

	if err := s.db.Create(&subTask).Error; err != nil {
		return nil, fmt.Errorf("create sub-task: %w", err)
	}

	if err := s.refreshToday(*habit); err != nil {
		return nil, err
	}
	return &subTask, nil
}

// Update 更新子任务
func (s *SubTaskService) Update(userID, id uint, input SubTaskInput) (*db.SubTask, error) {
	normalized, err := normalizeSubTaskInput(input)
	if err != nil {
		return nil, err
	}

	subTask, habit, err := s.load(userID, id)
	if err != nil {
		return nil, err
	}

	applySubTaskInput(subTask, normalized)
	if err := s.db.Save(subTask).Error; err != nil {
		return nil, fmt.Errorf("update sub-task: %w", err)
	}

	if err := s.refreshToday(*habit); err != nil {
		return nil, err
	}
	return subTask, nil
}

// Delete 删除子任务及其打卡记录
func (s *SubTaskService) Delete(userID, id uint) error {
	subTask, habit, err := s.load(userID, id)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sub_task_id = ?", subTask.ID).Delete(&db.SubTaskLog{}).Error; err != nil {
			return fmt.Errorf("delete sub-task logs: %w", err)
		}
		if err := tx.Delete(&db.SubTask{}, subTask.ID).Error; err != nil {
			return fmt.Errorf("delete sub-task: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.refreshToday(*habit)
}

// Reorder 按 ids 顺序重写排序字段；ids 必须恰好是该习惯的全部子任务
func (s *SubTaskService) Reorder(userID, habitID uint, ids []uint) ([]db.SubTask, error) {
	habit, err := s.habits.Get(userID, habitID)
	if err != nil {
		return nil, err
	}

	if len(ids) != len(habit.SubTasks) {
		return nil, fmt.Errorf("%w: reorder expects %d ids, got %d", ErrInvalidSubTask, len(habit.SubTasks), len(ids))
	}
	owned := make(map[uint]bool, len(habit.SubTasks))
	for _, st := range habit.SubTasks {
		owned[st.ID] = true
	}
	for _, id := range ids {
		if !owned[id] {
			return nil, fmt.Errorf("%w: sub-task %d not in habit %d", ErrInvalidSubTask, id, habit.ID)
		}
		delete(owned, id)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for order, id := range ids {
			if err := tx.Model(&db.SubTask{}).Where("id = ?", id).Update("sort_order", order).Error; err != nil {
				return fmt.Errorf("reorder sub-task %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.List(userID, habitID)
}

func (s *SubTaskService) load(userID, id uint) (*db.SubTask, *db.Habit, error) {
	var subTask db.SubTask
	if err := s.db.First(&subTask, id).Error; err != nil {
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

func (s *SubTaskService) refreshToday(habit db.Habit) error {
	if _, err := s.cache.Invalidate(habit, s.now().In(s.loc)); err != nil {
		return fmt.Errorf("refresh today's progress: %w", err)
	}
	return nil
}

func normalizeSubTaskInput(input SubTaskInput) (SubTaskInput, error) {
	input.Title = sanitizePlain(input.Title)
	if input.Title == "" {
		return input, fmt.Errorf("%w: title is required", ErrInvalidSubTask)
	}
	if input.Weight == 0 {
		input.Weight = MinSubTaskWeight
	}
	if input.Weight < MinSubTaskWeight || input.Weight > MaxSubTaskWeight {
		return input, fmt.Errorf("%w: weight %d outside [%d,%d]", ErrInvalidSubTask, input.Weight, MinSubTaskWeight, MaxSubTaskWeight)
	}
	if input.EstimatedMinutes < 0 {
		return input, fmt.Errorf("%w: estimate must not be negative", ErrInvalidSubTask)
	}
	return input, nil
}

func applySubTaskInput(subTask *db.SubTask, input SubTaskInput) {
	subTask.Title = input.Title
	subTask.Weight = input.Weight
	subTask.IsRequired = input.IsRequired
	subTask.SortOrder = input.SortOrder
	subTask.EstimatedMinutes = input.EstimatedMinutes
}
