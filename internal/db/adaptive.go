package db

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Adaptation 是适应记录中的一条，只追加不修改
type Adaptation struct {
	Trigger string    `json:"trigger"`
	Change  string    `json:"change"`
	Impact  float64   `json:"impact"`
	At      time.Time `json:"at"`
}

// AdaptiveSystem 描述一个可执行的"系统"，与 Habit 相互独立
// EffectivenessScore/FrictionCoefficient 取值 0-100，由执行记录重新评分
type AdaptiveSystem struct {
	gorm.Model
	UserID              uint `gorm:"index"`
	Name                string
	Description         string
	EffectivenessScore  float64
	FrictionCoefficient float64
	AdaptationHistory   datatypes.JSONSlice[Adaptation]
	Locked              bool
	AutoAdapt           bool
}

// ExecutionQuality 对应一次系统执行，所有分值均为 0-100 的主观评分
type ExecutionQuality struct {
	ID                    uint      `gorm:"primaryKey"`
	UserID                uint      `gorm:"index"`
	SystemID              uint      `gorm:"index"`
	ExecutedAt            time.Time `gorm:"index"`
	CompletionRate        float64
	EnergyCost            float64
	ContextFit            float64
	SequenceEffectiveness float64
	Quality               float64
	Note                  string
	CreatedAt             time.Time
}

// TableName 固定表名
func (ExecutionQuality) TableName() string {
	return "execution_qualities"
}

// ForecastPoint 为动量预测中的单日数据
type ForecastPoint struct {
	Date       time.Time `json:"date"`
	Value      int       `json:"value"`
	Confidence int       `json:"confidence"`
}

// MomentumVector 每个用户每天一条，完全由执行记录派生
type MomentumVector struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       uint      `gorm:"uniqueIndex:idx_momentum_day"`
	VectorDate   time.Time `gorm:"uniqueIndex:idx_momentum_day"`
	Consistency  float64
	Growth       float64
	Impact       float64
	Learning     float64
	Overall      int
	Direction    string
	Strength     float64
	WeeklyChange float64
	Forecast     datatypes.JSONSlice[ForecastPoint]
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
