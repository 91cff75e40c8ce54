package insight

import (
	"cmp"
	"slices"
)

// Engine 依次运行全部检测器，结果只做拼接与排序
type Engine struct {
	thresholds Thresholds
	detectors  []Detector
}

// NewEngine 使用给定阈值构造包含全部检测器的引擎
func NewEngine(th Thresholds) *Engine {
	return &Engine{
		thresholds: th,
		detectors: []Detector{
			detectPlanningFallacy,
			detectPerfectionism,
			detectOptimismBias,
			detectConfirmationBias,
			detectSunkCost,
			predictSkipRisk,
			predictMomentumShift,
			predictSystemFailure,
			predictPerformanceDecline,
			predictBreakthrough,
			identifyLeveragePoints,
			identifyFrictionPoints,
		},
	}
}

// Thresholds 返回引擎使用的阈值
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Run 生成报告：按严重程度、置信度降序排列，相同时保持检测器顺序
func (e *Engine) Run(in Input) Report {
	findings := make([]Finding, 0)
	for _, detect := range e.detectors {
		findings = append(findings, detect(in, e.thresholds)...)
	}
	SortFindings(findings)

	return Report{
		GeneratedAt: in.Now,
		Findings:    findings,
		Recovery:    RecoveryPlan(in, e.thresholds),
	}
}

// SortFindings 原地稳定排序
func SortFindings(findings []Finding) {
	slices.SortStableFunc(findings, func(a, b Finding) int {
		if diff := cmp.Compare(b.Severity, a.Severity); diff != 0 {
			return diff
		}
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}

// Filter 返回指定类别的结果
func (r Report) Filter(category Category) []Finding {
	out := make([]Finding, 0)
	for _, f := range r.Findings {
		if f.Category == category {
			out = append(out, f)
		}
	}
	return out
}
