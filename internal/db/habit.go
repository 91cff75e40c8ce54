package db

import (
	"time"

	"gorm.io/gorm"
)

// Habit 定义了习惯模型
// Cadence 描述周期 daily/weekly/monthly；WeeklyTarget/MonthlyTarget 为周期目标次数
// HasSubTasks 为 true 时完成度由子任务 + ProgressRule 推导，否则由当日 HabitEntry 直接决定
// CompletionThreshold 仅在 PERCENTAGE/POINTS 规则下生效
// ArchivedAt 非空表示已归档，保留历史打卡但不再参与连胜与周期统计
type Habit struct {
	gorm.Model
	UserID              uint `gorm:"index"`
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
	ArchivedAt          *time.Time `gorm:"index"`
	SubTasks            []SubTask  `gorm:"constraint:OnDelete:CASCADE"`
}

// Archived 判断习惯是否已归档
func (h Habit) Archived() bool {
	return h.ArchivedAt != nil
}

// SubTask 是习惯的可选拆分步骤
// Weight 只在 POINTS 规则下参与计算，IsRequired 只在 ALL 规则下参与计算
type SubTask struct {
	gorm.Model
	HabitID          uint `gorm:"index"`
	Title            string
	Weight           int
	IsRequired       bool
	SortOrder        int
	EstimatedMinutes int
}

// HabitEntry 记录普通习惯的单日完成
// 行存在即表示已完成；取消打卡直接删除记录，不保存 completed=false
// HabitID + EntryDate 唯一，保证每天最多一条
type HabitEntry struct {
	ID               uint      `gorm:"primaryKey"`
	UserID           uint      `gorm:"index"`
	HabitID          uint      `gorm:"index;uniqueIndex:idx_habit_entry_day"`
	EntryDate        time.Time `gorm:"index;uniqueIndex:idx_habit_entry_day"`
	Completed        bool
	CompletedAt      *time.Time
	TimeSpentMinutes int
	Source           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName 固定表名，唯一索引作用到 habit_id + entry_date
func (HabitEntry) TableName() string {
	return "habit_entries"
}

// SubTaskLog 记录子任务单日完成情况，与 HabitEntry 采用相同的表示：取消即删除
type SubTaskLog struct {
	ID               uint      `gorm:"primaryKey"`
	UserID           uint      `gorm:"index"`
	HabitID          uint      `gorm:"index"`
	SubTaskID        uint      `gorm:"uniqueIndex:idx_sub_task_log_day"`
	LogDate          time.Time `gorm:"index;uniqueIndex:idx_sub_task_log_day"`
	Completed        bool
	CompletedAt      *time.Time
	TimeSpentMinutes int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HabitProgress 是 (habit, date) 的派生快照，只作为缓存，随子任务日志变化而重算
type HabitProgress struct {
	ID                   uint      `gorm:"primaryKey"`
	UserID               uint      `gorm:"index"`
	HabitID              uint      `gorm:"uniqueIndex:idx_habit_progress_day"`
	ProgressDate         time.Time `gorm:"uniqueIndex:idx_habit_progress_day"`
	Rule                 string
	CompletionPercentage int
	IsCompleted          bool
	TotalSubTasks        int
	CompletedSubTasks    int
	TotalRequired        int
	CompletedRequired    int
	TotalPoints          int
	EarnedPoints         int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName 保持复数表名
func (HabitProgress) TableName() string {
	return "habit_progress"
}

// PeriodProgress 缓存周/月汇总，按 (user, habit, kind, start) 唯一
// HabitID 为 0 的行代表所有习惯的聚合
type PeriodProgress struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"uniqueIndex:idx_period_progress"`
	HabitID     uint      `gorm:"uniqueIndex:idx_period_progress"`
	PeriodKind  string    `gorm:"uniqueIndex:idx_period_progress"`
	PeriodStart time.Time `gorm:"uniqueIndex:idx_period_progress"`
	Completed   int
	Target      int
	Percentage  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
