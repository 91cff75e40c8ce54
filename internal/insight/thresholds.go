package insight

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Thresholds 集中保存所有检测器使用的常量，可通过 YAML 文件覆盖部分字段
type Thresholds struct {
	RecentWindow int `yaml:"recent_window"`

	PlanningFallacy struct {
		MinSamples   int     `yaml:"min_samples"`
		OverrunRatio float64 `yaml:"overrun_ratio"`
		SevereRatio  float64 `yaml:"severe_ratio"`
	} `yaml:"planning_fallacy"`

	Perfectionism struct {
		MinSamples     int     `yaml:"min_samples"`
		MaxCompletion  float64 `yaml:"max_completion"`
		MinQuality     float64 `yaml:"min_quality"`
		SevereQuality  float64 `yaml:"severe_quality"`
		BaseConfidence int     `yaml:"base_confidence"`
	} `yaml:"perfectionism"`

	OptimismBias struct {
		MinHabits     int `yaml:"min_habits"`
		MaxPercentage int `yaml:"max_percentage"`
		SeverePercent int `yaml:"severe_percentage"`
	} `yaml:"optimism_bias"`

	ConfirmationBias struct {
		MaxEffectiveness float64 `yaml:"max_effectiveness"`
		MinExecutions    int     `yaml:"min_executions"`
	} `yaml:"confirmation_bias"`

	SunkCost struct {
		MinAdaptations   int     `yaml:"min_adaptations"`
		MaxEffectiveness float64 `yaml:"max_effectiveness"`
	} `yaml:"sunk_cost"`

	SkipRisk struct {
		MinExecutions   int     `yaml:"min_executions"`
		FrictionWeight  float64 `yaml:"friction_weight"`
		MissWeight      float64 `yaml:"miss_weight"`
		EnergyWeight    float64 `yaml:"energy_weight"`
		RiskThreshold   float64 `yaml:"risk_threshold"`
		SevereThreshold float64 `yaml:"severe_threshold"`
	} `yaml:"skip_risk"`

	MomentumShift struct {
		WeakStrength float64 `yaml:"weak_strength"`
		ForecastDrop int     `yaml:"forecast_drop"`
	} `yaml:"momentum_shift"`

	SystemFailure struct {
		MaxEffectiveness float64 `yaml:"max_effectiveness"`
		MinFriction      float64 `yaml:"min_friction"`
		MinExecutions    int     `yaml:"min_executions"`
	} `yaml:"system_failure"`

	PerformanceDecline struct {
		MinSamples int     `yaml:"min_samples"`
		Drop       float64 `yaml:"drop"`
		SevereDrop float64 `yaml:"severe_drop"`
	} `yaml:"performance_decline"`

	Breakthrough struct {
		MinOverall     int     `yaml:"min_overall"`
		MinConsistency float64 `yaml:"min_consistency"`
	} `yaml:"breakthrough"`

	Leverage struct {
		MinEffectiveness float64 `yaml:"min_effectiveness"`
		MaxFriction      float64 `yaml:"max_friction"`
		MinExecutions    int     `yaml:"min_executions"`
	} `yaml:"leverage"`

	Friction struct {
		HighFriction   float64 `yaml:"high_friction"`
		SevereFriction float64 `yaml:"severe_friction"`
		HighEnergy     float64 `yaml:"high_energy"`
		LowCompletion  float64 `yaml:"low_completion"`
		MinExecutions  int     `yaml:"min_executions"`
	} `yaml:"friction"`

	Recovery struct {
		MinLongestStreak int `yaml:"min_longest_streak"`
		LowMomentum      int `yaml:"low_momentum"`
		CriticalMomentum int `yaml:"critical_momentum"`
		StabilizeDays    int `yaml:"stabilize_days"`
		RebuildDays      int `yaml:"rebuild_days"`
		ExpandDays       int `yaml:"expand_days"`
	} `yaml:"recovery"`
}

// DefaultThresholds 返回内置阈值
func DefaultThresholds() Thresholds {
	var t Thresholds
	t.RecentWindow = 14

	t.PlanningFallacy.MinSamples = 5
	t.PlanningFallacy.OverrunRatio = 1.5
	t.PlanningFallacy.SevereRatio = 2.0

	t.Perfectionism.MinSamples = 5
	t.Perfectionism.MaxCompletion = 60
	t.Perfectionism.MinQuality = 85
	t.Perfectionism.SevereQuality = 95
	t.Perfectionism.BaseConfidence = 60

	t.OptimismBias.MinHabits = 3
	t.OptimismBias.MaxPercentage = 50
	t.OptimismBias.SeverePercent = 25

	t.ConfirmationBias.MaxEffectiveness = 40
	t.ConfirmationBias.MinExecutions = 5

	t.SunkCost.MinAdaptations = 5
	t.SunkCost.MaxEffectiveness = 50

	t.SkipRisk.MinExecutions = 3
	t.SkipRisk.FrictionWeight = 0.4
	t.SkipRisk.MissWeight = 0.4
	t.SkipRisk.EnergyWeight = 0.2
	t.SkipRisk.RiskThreshold = 60
	t.SkipRisk.SevereThreshold = 80

	t.MomentumShift.WeakStrength = 50
	t.MomentumShift.ForecastDrop = 10

	t.SystemFailure.MaxEffectiveness = 30
	t.SystemFailure.MinFriction = 70
	t.SystemFailure.MinExecutions = 3

	t.PerformanceDecline.MinSamples = 14
	t.PerformanceDecline.Drop = 15
	t.PerformanceDecline.SevereDrop = 25

	t.Breakthrough.MinOverall = 75
	t.Breakthrough.MinConsistency = 80

	t.Leverage.MinEffectiveness = 80
	t.Leverage.MaxFriction = 30
	t.Leverage.MinExecutions = 5

	t.Friction.HighFriction = 70
	t.Friction.SevereFriction = 85
	t.Friction.HighEnergy = 75
	t.Friction.LowCompletion = 60
	t.Friction.MinExecutions = 3

	t.Recovery.MinLongestStreak = 3
	t.Recovery.LowMomentum = 40
	t.Recovery.CriticalMomentum = 25
	t.Recovery.StabilizeDays = 3
	t.Recovery.RebuildDays = 7
	t.Recovery.ExpandDays = 11

	return t
}

// ParseThresholds 以默认值为底，用 YAML 内容覆盖出现的字段
func ParseThresholds(data []byte) (Thresholds, error) {
	t := DefaultThresholds()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parse thresholds: %w", err)
	}
	return t, nil
}

// LoadThresholds 读取 YAML 文件；path 为空时返回默认值
func LoadThresholds(path string) (Thresholds, error) {
	if path == "" {
		return DefaultThresholds(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read thresholds: %w", err)
	}
	return ParseThresholds(data)
}
