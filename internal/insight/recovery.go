package insight

import (
	"fmt"
	"time"

	"github.com/habitlog/internal/momentum"
	"github.com/habitlog/internal/rollup"
)

// Phase 是恢复计划中的一个阶段，Day 从 1 开始计数
type Phase struct {
	Name        string   `json:"name"`
	StartDay    int      `json:"start_day"`
	EndDay      int      `json:"end_day"`
	TargetScale float64  `json:"target_scale"`
	Actions     []string `json:"actions"`
}

// Plan 是连胜中断或动量下滑后生成的恢复计划
type Plan struct {
	Reason    string    `json:"reason"`
	Severity  Severity  `json:"severity"`
	StartDate time.Time `json:"start_date"`
	Phases    []Phase   `json:"phases"`
}

// RecoveryPlan 在连胜中断（曾有足够长的连胜）或动量偏低且下降时生成计划，否则返回 nil
func RecoveryPlan(in Input, th Thresholds) *Plan {
	cfg := th.Recovery

	streakBroken := in.Streak.Current == 0 && in.Streak.Longest >= cfg.MinLongestStreak
	momentumLow := in.Momentum != nil &&
		in.Momentum.Direction == momentum.Decreasing &&
		in.Momentum.Overall < cfg.LowMomentum
	if !streakBroken && !momentumLow {
		return nil
	}

	plan := &Plan{
		Severity:  SeverityMedium,
		StartDate: rollup.NormalizeToDate(in.Now).AddDate(0, 0, 1),
	}

	switch {
	case streakBroken && momentumLow:
		plan.Reason = fmt.Sprintf("streak of %d days broke while momentum fell to %d", in.Streak.Longest, in.Momentum.Overall)
	case streakBroken:
		plan.Reason = fmt.Sprintf("streak of %d days broke", in.Streak.Longest)
	default:
		plan.Reason = fmt.Sprintf("momentum fell to %d", in.Momentum.Overall)
	}

	if momentumLow {
		plan.Severity = SeverityHigh
		if in.Momentum.Overall < cfg.CriticalMomentum {
			plan.Severity = SeverityCritical
		}
	}

	anchor := "your most consistent habit"
	if top := rollup.TopHabits(in.LastWeek, 1); len(top) > 0 {
		anchor = fmt.Sprintf("%q", top[0].Name)
	}

	stabilizeScale := 0.5
	if plan.Severity == SeverityCritical {
		stabilizeScale = 0.25
	}

	day := 1
	plan.Phases = append(plan.Phases, Phase{
		Name:        "stabilize",
		StartDay:    day,
		EndDay:      day + cfg.StabilizeDays - 1,
		TargetScale: stabilizeScale,
		Actions: []string{
			fmt.Sprintf("Keep only %s every day", anchor),
			"Do the smallest possible version of each remaining habit",
		},
	})
	day += cfg.StabilizeDays

	plan.Phases = append(plan.Phases, Phase{
		Name:        "rebuild",
		StartDay:    day,
		EndDay:      day + cfg.RebuildDays - 1,
		TargetScale: 0.75,
		Actions: []string{
			"Restore one paused habit every two days",
			"Review friction points before each restored habit",
		},
	})
	day += cfg.RebuildDays

	plan.Phases = append(plan.Phases, Phase{
		Name:        "expand",
		StartDay:    day,
		EndDay:      day + cfg.ExpandDays - 1,
		TargetScale: 1,
		Actions: []string{
			"Return to full weekly targets",
			"Let locked systems adapt again",
		},
	})

	return plan
}
