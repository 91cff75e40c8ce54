package insight

import (
	"fmt"
	"math"

	"github.com/habitlog/internal/momentum"
)

const trendWindow = 7

// Detector 检查一个模式，未触发或数据不足时返回 nil
type Detector func(in Input, th Thresholds) []Finding

func detectPlanningFallacy(in Input, th Thresholds) []Finding {
	var estimated, actual, n int
	for _, s := range in.TimeSamples {
		if s.Estimated <= 0 || s.Actual <= 0 {
			continue
		}
		estimated += s.Estimated
		actual += s.Actual
		n++
	}
	if n < th.PlanningFallacy.MinSamples || estimated == 0 {
		return nil
	}

	ratio := float64(actual) / float64(estimated)
	if ratio <= th.PlanningFallacy.OverrunRatio {
		return nil
	}

	severity := SeverityMedium
	if ratio >= th.PlanningFallacy.SevereRatio {
		severity = SeverityHigh
	}

	return []Finding{{
		Category:    CategoryBias,
		Type:        "planning-fallacy",
		Severity:    severity,
		Confidence:  min(95, 50+5*n),
		Description: fmt.Sprintf("Sub-tasks take %.1fx longer than estimated.", ratio),
		Evidence: []string{
			fmt.Sprintf("%d timed sub-tasks", n),
			fmt.Sprintf("estimated %d min, actual %d min", estimated, actual),
		},
		Recommendation: "Pad estimates by the observed overrun or split long sub-tasks.",
	}}
}

func detectPerfectionism(in Input, th Thresholds) []Finding {
	recent := tail(in.Executions, th.RecentWindow)
	if len(recent) < th.Perfectionism.MinSamples {
		return nil
	}

	completion := avg(recent, completionOf)
	quality := avg(recent, qualityOf)
	if completion >= th.Perfectionism.MaxCompletion || quality <= th.Perfectionism.MinQuality {
		return nil
	}

	severity := SeverityMedium
	if quality >= th.Perfectionism.SevereQuality {
		severity = SeverityHigh
	}

	return []Finding{{
		Category:    CategoryBias,
		Type:        "perfectionism",
		Severity:    severity,
		Confidence:  min(95, th.Perfectionism.BaseConfidence+2*len(recent)),
		Description: "Executions are polished but often left unfinished.",
		Evidence: []string{
			fmt.Sprintf("average completion %.0f%%", completion),
			fmt.Sprintf("average quality %.0f", quality),
		},
		Recommendation: "Define a minimum acceptable version and finish it before refining.",
	}}
}

func detectOptimismBias(in Input, th Thresholds) []Finding {
	report := in.LastWeek
	habits := len(report.Habits)
	if habits < th.OptimismBias.MinHabits || report.Target <= 0 {
		return nil
	}
	if report.Percentage >= th.OptimismBias.MaxPercentage {
		return nil
	}

	severity := SeverityMedium
	if report.Percentage < th.OptimismBias.SeverePercent {
		severity = SeverityHigh
	}

	return []Finding{{
		Category:    CategoryBias,
		Type:        "optimism-bias",
		Severity:    severity,
		Confidence:  min(90, 50+5*habits),
		Description: "Weekly targets are set well above what gets done.",
		Evidence: []string{
			fmt.Sprintf("%d of %d planned completions last week", report.Completed, report.Target),
			fmt.Sprintf("%d habits tracked", habits),
		},
		Recommendation: "Lower weekly targets to last week's actual pace and raise them gradually.",
	}}
}

func detectConfirmationBias(in Input, th Thresholds) []Finding {
	var out []Finding
	for _, s := range in.Systems {
		if !s.Locked || len(s.Executions) < th.ConfirmationBias.MinExecutions {
			continue
		}
		if s.Effectiveness >= th.ConfirmationBias.MaxEffectiveness {
			continue
		}
		out = append(out, Finding{
			Category:    CategoryBias,
			Type:        "confirmation-bias",
			Severity:    SeverityMedium,
			Confidence:  min(90, 50+5*len(s.Executions)),
			Description: fmt.Sprintf("%q stays locked despite weak results.", s.Name),
			Evidence: []string{
				fmt.Sprintf("effectiveness %.0f", s.Effectiveness),
				fmt.Sprintf("%d executions", len(s.Executions)),
			},
			Recommendation: "Unlock the system and let it adapt, or test an alternative for a week.",
			SystemID:       s.ID,
		})
	}
	return out
}

func detectSunkCost(in Input, th Thresholds) []Finding {
	var out []Finding
	for _, s := range in.Systems {
		if s.Adaptations < th.SunkCost.MinAdaptations || s.Effectiveness >= th.SunkCost.MaxEffectiveness {
			continue
		}
		out = append(out, Finding{
			Category:    CategoryBias,
			Type:        "sunk-cost-fallacy",
			Severity:    SeverityMedium,
			Confidence:  min(90, 60+5*(s.Adaptations-th.SunkCost.MinAdaptations)),
			Description: fmt.Sprintf("%q keeps being adjusted without improving.", s.Name),
			Evidence: []string{
				fmt.Sprintf("%d adaptations", s.Adaptations),
				fmt.Sprintf("effectiveness %.0f", s.Effectiveness),
			},
			Recommendation: "Consider retiring the system instead of another adjustment.",
			SystemID:       s.ID,
		})
	}
	return out
}

func predictSkipRisk(in Input, th Thresholds) []Finding {
	cfg := th.SkipRisk
	var out []Finding
	for _, s := range in.Systems {
		if len(s.Executions) < cfg.MinExecutions {
			continue
		}
		recent := tail(s.Executions, trendWindow)
		miss := 100 - avg(recent, completionOf)
		energy := avg(recent, energyOf)
		risk := cfg.FrictionWeight*s.Friction + cfg.MissWeight*miss + cfg.EnergyWeight*energy
		if risk <= cfg.RiskThreshold {
			continue
		}

		severity := SeverityMedium
		if risk > cfg.SevereThreshold {
			severity = SeverityHigh
		}
		out = append(out, Finding{
			Category:    CategoryPrediction,
			Type:        "skip-risk",
			Severity:    severity,
			Confidence:  min(95, int(math.Round(risk))),
			Description: fmt.Sprintf("%q is likely to be skipped in the coming days.", s.Name),
			Evidence: []string{
				fmt.Sprintf("friction %.0f", s.Friction),
				fmt.Sprintf("recent miss rate %.0f%%", miss),
				fmt.Sprintf("energy cost %.0f", energy),
			},
			Recommendation: "Schedule it at a fixed time and shrink the first step.",
			SystemID:       s.ID,
		})
	}
	return out
}

func predictMomentumShift(in Input, th Thresholds) []Finding {
	m := in.Momentum
	if m == nil || m.Direction != momentum.Decreasing {
		return nil
	}

	severity := SeverityMedium
	confidence := 65
	evidence := []string{fmt.Sprintf("overall momentum %d, strength %.0f", m.Overall, m.Strength)}

	if m.Strength < th.MomentumShift.WeakStrength {
		severity = SeverityHigh
		confidence += 15
		evidence = append(evidence, "momentum is weak across dimensions")
	}
	if n := len(m.Forecast); n > 0 && m.Forecast[n-1].Value <= m.Overall-th.MomentumShift.ForecastDrop {
		severity = SeverityHigh
		confidence += 10
		evidence = append(evidence, fmt.Sprintf("forecast falls to %d", m.Forecast[n-1].Value))
	}

	return []Finding{{
		Category:       CategoryPrediction,
		Type:           "momentum-shift",
		Severity:       severity,
		Confidence:     min(95, confidence),
		Description:    "Momentum is turning downward.",
		Evidence:       evidence,
		Recommendation: "Protect the most consistent habit and pause new commitments this week.",
	}}
}

func predictSystemFailure(in Input, th Thresholds) []Finding {
	cfg := th.SystemFailure
	var out []Finding
	for _, s := range in.Systems {
		if len(s.Executions) < cfg.MinExecutions {
			continue
		}
		if s.Effectiveness >= cfg.MaxEffectiveness || s.Friction <= cfg.MinFriction {
			continue
		}
		out = append(out, Finding{
			Category:    CategoryPrediction,
			Type:        "system-failure",
			Severity:    SeverityCritical,
			Confidence:  85,
			Description: fmt.Sprintf("%q is close to breaking down.", s.Name),
			Evidence: []string{
				fmt.Sprintf("effectiveness %.0f", s.Effectiveness),
				fmt.Sprintf("friction %.0f", s.Friction),
			},
			Recommendation: "Redesign the system around a smaller trigger before the next execution.",
			SystemID:       s.ID,
		})
	}
	return out
}

func predictPerformanceDecline(in Input, th Thresholds) []Finding {
	cfg := th.PerformanceDecline
	// 至少需要完整的最近一周加一次更早的执行
	n := len(in.Executions)
	if n < max(cfg.MinSamples, trendWindow+1) {
		return nil
	}

	recent := in.Executions[n-trendWindow:]
	older := in.Executions[max(0, n-2*trendWindow) : n-trendWindow]
	drop := avg(older, qualityOf) - avg(recent, qualityOf)
	if drop <= cfg.Drop {
		return nil
	}

	severity := SeverityMedium
	if drop >= cfg.SevereDrop {
		severity = SeverityHigh
	}

	return []Finding{{
		Category:       CategoryPrediction,
		Type:           "performance-decline",
		Severity:       severity,
		Confidence:     min(95, 60+int(math.Round(drop))),
		Description:    "Execution quality dropped compared with the previous week.",
		Evidence:       []string{fmt.Sprintf("quality down %.0f points", drop)},
		Recommendation: "Check sleep, schedule changes and context before adding effort.",
	}}
}

func predictBreakthrough(in Input, th Thresholds) []Finding {
	m := in.Momentum
	if m == nil || m.Direction != momentum.Increasing {
		return nil
	}
	if m.Overall <= th.Breakthrough.MinOverall || m.Consistency <= th.Breakthrough.MinConsistency {
		return nil
	}

	return []Finding{{
		Category:    CategoryPrediction,
		Type:        "breakthrough-opportunity",
		Severity:    SeverityLow,
		Confidence:  min(95, m.Overall),
		Description: "Momentum is strong enough to take on a harder challenge.",
		Evidence: []string{
			fmt.Sprintf("overall momentum %d", m.Overall),
			fmt.Sprintf("consistency %.0f", m.Consistency),
		},
		Recommendation: "Raise one target or add a stretch sub-task while momentum lasts.",
	}}
}

func identifyLeveragePoints(in Input, th Thresholds) []Finding {
	cfg := th.Leverage
	var out []Finding
	for _, s := range in.Systems {
		if len(s.Executions) < cfg.MinExecutions {
			continue
		}
		if s.Effectiveness < cfg.MinEffectiveness || s.Friction > cfg.MaxFriction {
			continue
		}
		out = append(out, Finding{
			Category:    CategoryLeverage,
			Type:        "leverage-point",
			Severity:    SeverityLow,
			Confidence:  min(95, int(math.Round(s.Effectiveness))),
			Description: fmt.Sprintf("%q delivers high results with little resistance.", s.Name),
			Evidence: []string{
				fmt.Sprintf("effectiveness %.0f", s.Effectiveness),
				fmt.Sprintf("friction %.0f", s.Friction),
			},
			Recommendation: "Stack a struggling habit directly after this system.",
			SystemID:       s.ID,
		})
	}
	return out
}

func identifyFrictionPoints(in Input, th Thresholds) []Finding {
	cfg := th.Friction
	var out []Finding
	for _, s := range in.Systems {
		if s.Friction > cfg.HighFriction {
			severity := SeverityMedium
			if s.Friction >= cfg.SevereFriction {
				severity = SeverityHigh
			}
			out = append(out, Finding{
				Category:       CategoryFriction,
				Type:           "friction-point",
				Severity:       severity,
				Confidence:     min(95, int(math.Round(s.Friction))),
				Description:    fmt.Sprintf("%q meets strong resistance.", s.Name),
				Evidence:       []string{fmt.Sprintf("friction %.0f", s.Friction)},
				Recommendation: "Remove one setup step or move the system to a lower-effort time.",
				SystemID:       s.ID,
			})
			continue
		}

		if len(s.Executions) < cfg.MinExecutions {
			continue
		}
		recent := tail(s.Executions, trendWindow)
		energy := avg(recent, energyOf)
		completion := avg(recent, completionOf)
		if energy <= cfg.HighEnergy || completion >= cfg.LowCompletion {
			continue
		}
		out = append(out, Finding{
			Category:    CategoryFriction,
			Type:        "friction-point",
			Severity:    SeverityMedium,
			Confidence:  min(95, int(math.Round(energy))),
			Description: fmt.Sprintf("%q costs a lot of energy and is rarely finished.", s.Name),
			Evidence: []string{
				fmt.Sprintf("energy cost %.0f", energy),
				fmt.Sprintf("completion %.0f%%", completion),
			},
			Recommendation: "Split the system into a shorter core and an optional extension.",
			SystemID:       s.ID,
		})
	}
	return out
}

func completionOf(e momentum.Execution) float64 { return e.CompletionRate }
func qualityOf(e momentum.Execution) float64    { return e.Quality }
func energyOf(e momentum.Execution) float64     { return e.EnergyCost }

func tail(execs []momentum.Execution, n int) []momentum.Execution {
	if n <= 0 || len(execs) <= n {
		return execs
	}
	return execs[len(execs)-n:]
}

func avg(execs []momentum.Execution, get func(momentum.Execution) float64) float64 {
	if len(execs) == 0 {
		return 0
	}
	var sum float64
	for _, e := range execs {
		sum += get(e)
	}
	return sum / float64(len(execs))
}
