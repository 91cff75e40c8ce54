package service

import (
	"errors"

	"github.com/habitlog/internal/progress"
)

var (
	// ErrHabitNotFound 在指定习惯不存在或不属于当前用户时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrSubTaskNotFound 在指定子任务不存在时返回
	ErrSubTaskNotFound = errors.New("sub-task not found")
	// ErrSystemNotFound 在指定系统不存在时返回
	ErrSystemNotFound = errors.New("adaptive system not found")
	// ErrInvalidHabit 当习惯字段校验失败时返回
	ErrInvalidHabit = errors.New("invalid habit configuration")
	// ErrInvalidSubTask 当子任务字段校验失败时返回
	ErrInvalidSubTask = errors.New("invalid sub-task configuration")
	// ErrInvalidProgressRule 与 progress.ErrInvalidRule 相同，便于 handler 只依赖 service
	ErrInvalidProgressRule = progress.ErrInvalidRule
	// ErrInvalidSystem 当系统字段校验失败时返回
	ErrInvalidSystem = errors.New("invalid adaptive system")
	// ErrInvalidExecution 当执行记录评分越界时返回
	ErrInvalidExecution = errors.New("invalid execution record")
	// ErrSystemLocked 锁定的系统不接受手动调整
	ErrSystemLocked = errors.New("adaptive system is locked")
	// ErrToggleInFlight 同一 (habit, date) 已有切换请求在处理
	ErrToggleInFlight = errors.New("toggle already in flight")
)
