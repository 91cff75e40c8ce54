package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/gorm"
)

const (
	// rescoreWindow 重新评分时参考的最近执行次数
	rescoreWindow = 10
	// autoAdaptBelow 自动调整触发的执行质量下限
	autoAdaptBelow = 50
	// 阻力 = 能耗与情境不匹配的加权和
	frictionEnergyWeight  = 0.7
	frictionContextWeight = 0.3
)

// SystemService 管理适应系统及其执行记录
type SystemService struct {
	db  *gorm.DB
	now func() time.Time
}

// SystemInput 定义创建/更新系统时可配置字段
type SystemInput struct {
	Name        string
	Description string
	Locked      bool
	AutoAdapt   bool
}

// ExecutionInput 是一次执行的主观评分，Quality 为空时取四项均值
type ExecutionInput struct {
	ExecutedAt            time.Time
	CompletionRate        float64
	EnergyCost            float64
	ContextFit            float64
	SequenceEffectiveness float64
	Quality               *float64
	Note                  string
}

// AdaptInput 是一次手动调整
type AdaptInput struct {
	Trigger string
	Change  string
	Impact  float64
}

// NewSystemService 构造 SystemService
func NewSystemService(gdb *gorm.DB) *SystemService {
	return &SystemService{db: gdb, now: time.Now}
}

// List 返回用户的全部系统
func (s *SystemService) List(userID uint) ([]db.AdaptiveSystem, error) {
	var systems []db.AdaptiveSystem
	if err := s.db.Where("user_id = ?", userID).Order("id ASC").Find(&systems).Error; err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	return systems, nil
}

// Get 根据 ID 获取系统
func (s *SystemService) Get(userID, id uint) (*db.AdaptiveSystem, error) {
	var system db.AdaptiveSystem
	if err := s.db.Where("user_id = ?", userID).First(&system, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSystemNotFound
		}
		return nil, fmt.Errorf("get system: %w", err)
	}
	return &system, nil
}

// Create 新建系统，初始评分为中性值 50
func (s *SystemService) Create(userID uint, input SystemInput) (*db.AdaptiveSystem, error) {
	name := sanitizePlain(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSystem)
	}

	system := db.AdaptiveSystem{
		UserID:              userID,
		Name:                name,
		Description:         sanitizePlain(input.Description),
		EffectivenessScore:  50,
		FrictionCoefficient: 50,
		AdaptationHistory:   []db.Adaptation{},
		Locked:              input.Locked,
		AutoAdapt:           input.AutoAdapt,
	}
	if err := s.db.Create(&system).Error; err != nil {
		return nil, fmt.Errorf("create system: %w", err)
	}
	return &system, nil
}

// Update 更新系统的描述性字段，评分不受影响
func (s *SystemService) Update(userID, id uint, input SystemInput) (*db.AdaptiveSystem, error) {
	name := sanitizePlain(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSystem)
	}

	system, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	system.Name = name
	system.Description = sanitizePlain(input.Description)
	system.Locked = input.Locked
	system.AutoAdapt = input.AutoAdapt

	if err := s.db.Save(system).Error; err != nil {
		return nil, fmt.Errorf("update system: %w", err)
	}
	return system, nil
}

// Delete 删除系统及其执行记录
func (s *SystemService) Delete(userID, id uint) error {
	system, err := s.Get(userID, id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("system_id = ?", system.ID).Delete(&db.ExecutionQuality{}).Error; err != nil {
			return fmt.Errorf("delete executions: %w", err)
		}
		if err := tx.Delete(&db.AdaptiveSystem{}, system.ID).Error; err != nil {
			return fmt.Errorf("delete system: %w", err)
		}
		return nil
	})
}

// Executions 返回用户在 [start, end] 内的执行记录，按时间升序；systemID 为 0 时不限系统
func (s *SystemService) Executions(userID, systemID uint, start, end time.Time) ([]db.ExecutionQuality, error) {
	query := s.db.Where("user_id = ?", userID)
	if systemID != 0 {
		query = query.Where("system_id = ?", systemID)
	}
	if !start.IsZero() {
		query = query.Where("executed_at >= ?", start)
	}
	if !end.IsZero() {
		query = query.Where("executed_at <= ?", end)
	}

	var execs []db.ExecutionQuality
	if err := query.Order("executed_at ASC, id ASC").Find(&execs).Error; err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return execs, nil
}

// RecordExecution 记录一次执行并重新评分；开启 AutoAdapt 且质量偏低时自动追加调整记录
func (s *SystemService) RecordExecution(userID, systemID uint, input ExecutionInput) (*db.ExecutionQuality, *db.AdaptiveSystem, error) {
	if err := validateExecution(input); err != nil {
		return nil, nil, err
	}

	system, err := s.Get(userID, systemID)
	if err != nil {
		return nil, nil, err
	}

	executedAt := input.ExecutedAt
	if executedAt.IsZero() {
		executedAt = s.now()
	}

	exec := db.ExecutionQuality{
		UserID:                userID,
		SystemID:              system.ID,
		ExecutedAt:            executedAt,
		CompletionRate:        input.CompletionRate,
		EnergyCost:            input.EnergyCost,
		ContextFit:            input.ContextFit,
		SequenceEffectiveness: input.SequenceEffectiveness,
		Note:                  sanitizePlain(input.Note),
	}
	if input.Quality != nil {
		exec.Quality = *input.Quality
	} else {
		exec.Quality = (input.CompletionRate + (100 - input.EnergyCost) + input.ContextFit + input.SequenceEffectiveness) / 4
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&exec).Error; err != nil {
			return fmt.Errorf("create execution: %w", err)
		}

		var recent []db.ExecutionQuality
		if err := tx.Where("system_id = ?", system.ID).
			Order("executed_at DESC, id DESC").
			Limit(rescoreWindow).
			Find(&recent).Error; err != nil {
			return fmt.Errorf("load recent executions: %w", err)
		}
		rescore(system, recent)

		if system.AutoAdapt && !system.Locked && exec.Quality < autoAdaptBelow {
			system.AdaptationHistory = append(system.AdaptationHistory, db.Adaptation{
				Trigger: "low_quality_execution",
				Change:  fmt.Sprintf("reduce scope after quality %.0f", exec.Quality),
				Impact:  exec.Quality - autoAdaptBelow,
				At:      executedAt,
			})
		}

		if err := tx.Save(system).Error; err != nil {
			return fmt.Errorf("update system scores: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &exec, system, nil
}

// Adapt 手动追加一条调整记录；锁定的系统拒绝调整
func (s *SystemService) Adapt(userID, systemID uint, input AdaptInput) (*db.AdaptiveSystem, error) {
	trigger := sanitizePlain(input.Trigger)
	change := sanitizePlain(input.Change)
	if trigger == "" || change == "" {
		return nil, fmt.Errorf("%w: trigger and change are required", ErrInvalidSystem)
	}
	if input.Impact < -100 || input.Impact > 100 || math.IsNaN(input.Impact) {
		return nil, fmt.Errorf("%w: impact %.2f outside [-100,100]", ErrInvalidSystem, input.Impact)
	}

	system, err := s.Get(userID, systemID)
	if err != nil {
		return nil, err
	}
	if system.Locked {
		return nil, ErrSystemLocked
	}

	system.AdaptationHistory = append(system.AdaptationHistory, db.Adaptation{
		Trigger: trigger,
		Change:  change,
		Impact:  input.Impact,
		At:      s.now(),
	})
	if err := s.db.Save(system).Error; err != nil {
		return nil, fmt.Errorf("save adaptation: %w", err)
	}
	return system, nil
}

// rescore 有效性取最近执行质量均值，阻力取能耗与情境不匹配的加权均值
func rescore(system *db.AdaptiveSystem, recent []db.ExecutionQuality) {
	if len(recent) == 0 {
		return
	}

	var quality, energy, context float64
	for _, e := range recent {
		quality += e.Quality
		energy += e.EnergyCost
		context += e.ContextFit
	}
	n := float64(len(recent))

	system.EffectivenessScore = clampScore(quality / n)
	system.FrictionCoefficient = clampScore(frictionEnergyWeight*(energy/n) + frictionContextWeight*(100-context/n))
}

func validateExecution(input ExecutionInput) error {
	values := map[string]float64{
		"completion_rate":        input.CompletionRate,
		"energy_cost":            input.EnergyCost,
		"context_fit":            input.ContextFit,
		"sequence_effectiveness": input.SequenceEffectiveness,
	}
	if input.Quality != nil {
		values["quality"] = *input.Quality
	}
	for name, v := range values {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return fmt.Errorf("%w: %s %.2f outside [0,100]", ErrInvalidExecution, name, v)
		}
	}
	return nil
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
