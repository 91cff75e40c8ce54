// Package insight 对动量、连胜与系统记录做规则解读：认知偏差、风险预测、杠杆点与摩擦点、恢复计划。
// 每个检测器相互独立，数据不足时不产生结果而不是报错。
package insight

import (
	"strings"
	"time"

	"github.com/habitlog/internal/momentum"
	"github.com/habitlog/internal/rollup"
)

// Category 区分结果类别
type Category string

const (
	CategoryBias       Category = "bias"
	CategoryPrediction Category = "prediction"
	CategoryLeverage   Category = "leverage"
	CategoryFriction   Category = "friction"
)

// Severity 越大越严重
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 让 JSON 中输出可读名称
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析可读名称
func (s *Severity) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for sev, n := range severityNames {
		if n == name {
			*s = sev
			return nil
		}
	}
	*s = SeverityLow
	return nil
}

// Finding 是单个检测器的输出
type Finding struct {
	Category       Category `json:"category"`
	Type           string   `json:"type"`
	Severity       Severity `json:"severity"`
	Confidence     int      `json:"confidence"`
	Description    string   `json:"description"`
	Evidence       []string `json:"evidence"`
	Recommendation string   `json:"recommendation"`
	SystemID       uint     `json:"system_id,omitempty"`
}

// System 是检测器看到的系统视图，Executions 按时间升序
type System struct {
	ID            uint
	Name          string
	Effectiveness float64
	Friction      float64
	Locked        bool
	AutoAdapt     bool
	Adaptations   int
	Executions    []momentum.Execution
}

// TimeSample 为子任务预估与实际耗时（分钟）
type TimeSample struct {
	Estimated int
	Actual    int
}

// Input 汇总一次分析所需的数据，全部由调用方预先加载
type Input struct {
	Now         time.Time
	Momentum    *momentum.Vector
	Streak      rollup.Streak
	LastWeek    rollup.PeriodReport
	ThisWeek    rollup.PeriodReport
	Systems     []System
	Executions  []momentum.Execution
	TimeSamples []TimeSample
}

// Report 为一次分析的完整结果
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Findings    []Finding `json:"findings"`
	Recovery    *Plan     `json:"recovery,omitempty"`
}
