// Package momentum 根据执行质量记录计算四个维度的动量分数、方向、强度与短期预测。
package momentum

import (
	"math"
	"slices"
	"time"
)

// Direction 是动量方向
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

const (
	neutralScore = 50.0

	consistencyWindow     = 14
	consistencyMinSamples = 7
	consistencyBonusFloor = 70.0
	consistencyBonusRate  = 0.5

	trendWindow      = 7
	growthMinSamples = 2 * trendWindow
	growthEnergyW    = 0.6
	growthFrictionW  = 0.4

	impactEffectivenessW = 0.4
	impactQualityW       = 0.4
	impactSequenceW      = 0.2

	learningAdaptationW   = 0.3
	learningImpactW       = 0.4
	learningContextW      = 0.3
	adaptationsPerPoint   = 20.0
	contextImprovementMul = 2.0

	weightConsistency = 0.4
	weightGrowth      = 0.25
	weightImpact      = 0.2
	weightLearning    = 0.15

	directionDelta = 5.0

	strengthBalanceW   = 0.4
	strengthMagnitudeW = 0.6

	forecastDays          = 3
	forecastConfidenceMin = 20
	forecastConfidenceDec = 15
)

// Execution 是一次系统执行的质量采样，所有分值 0-100
type Execution struct {
	SystemID              uint
	At                    time.Time
	CompletionRate        float64
	EnergyCost            float64
	ContextFit            float64
	SequenceEffectiveness float64
	Quality               float64
}

// Adaptation 是系统的一次调整，Impact 取值 -100 到 100
type Adaptation struct {
	Trigger string
	Change  string
	Impact  float64
	At      time.Time
}

// System 是参与评分的适应系统
type System struct {
	ID            uint
	Effectiveness float64
	Friction      float64
	Adaptations   []Adaptation
}

// Snapshot 是之前某天的总体动量
type Snapshot struct {
	Date    time.Time
	Overall int
}

// ForecastPoint 是预测中的一天
type ForecastPoint struct {
	DaysAhead  int       `json:"days_ahead"`
	Date       time.Time `json:"date"`
	Value      int       `json:"value"`
	Confidence int       `json:"confidence"`
}

// Vector 是某天的动量结果
type Vector struct {
	Date         time.Time       `json:"date"`
	Consistency  float64         `json:"consistency"`
	Growth       float64         `json:"growth"`
	Impact       float64         `json:"impact"`
	Learning     float64         `json:"learning"`
	Overall      int             `json:"overall"`
	Direction    Direction       `json:"direction"`
	Strength     float64         `json:"strength"`
	WeeklyChange float64         `json:"weekly_change"`
	Forecast     []ForecastPoint `json:"forecast"`
	Samples      int             `json:"samples"`
}

// Input 汇总一次计算所需的全部数据，调用方负责预先加载
type Input struct {
	Date       time.Time
	Executions []Execution
	Systems    []System
	History    []Snapshot
}

// Compute 计算 Input.Date 当天的动量
func Compute(in Input) Vector {
	execs := sortedExecutions(in.Executions)

	v := Vector{
		Date:        in.Date,
		Consistency: Consistency(execs),
		Growth:      Growth(execs, in.Systems),
		Impact:      Impact(execs, in.Systems),
		Learning:    Learning(execs, in.Systems),
		Direction:   DirectionOf(execs),
		Samples:     len(execs),
	}
	v.Overall = Overall(v.Consistency, v.Growth, v.Impact, v.Learning)
	v.Strength = Strength(v.Consistency, v.Growth, v.Impact, v.Learning)
	v.WeeklyChange = WeeklyChange(in.History, in.Date, v.Overall)
	v.Forecast = Forecast(in.Date, v.Overall, v.WeeklyChange)

	return v
}

// Consistency = 100 - 2*最近 14 次完成率的标准差，再加上高均值奖励；不足 7 次返回 50
func Consistency(execs []Execution) float64 {
	if len(execs) < consistencyMinSamples {
		return neutralScore
	}

	rates := field(tail(execs, consistencyWindow), func(e Execution) float64 { return e.CompletionRate })
	score := clamp(100-2*stddev(rates), 0, 100)
	bonus := math.Max(0, (mean(rates)-consistencyBonusFloor)*consistencyBonusRate)

	return clamp(score+bonus, 0, 100)
}

// Growth 比较最近两个 7 次窗口的精力消耗改善，并结合系统摩擦；不足 14 次返回 50
func Growth(execs []Execution, systems []System) float64 {
	if len(execs) < growthMinSamples {
		return neutralScore
	}

	recent, older := windows(execs)
	recentEnergy := mean(field(recent, func(e Execution) float64 { return e.EnergyCost }))
	olderEnergy := mean(field(older, func(e Execution) float64 { return e.EnergyCost }))

	var improvement float64
	if olderEnergy > 0 {
		improvement = (olderEnergy - recentEnergy) / olderEnergy * 100
	}

	avgFriction := neutralScore
	if len(systems) > 0 {
		avgFriction = mean(systemField(systems, func(s System) float64 { return s.Friction }))
	}

	return clamp(neutralScore+improvement*growthEnergyW+(100-avgFriction)*growthFrictionW, 0, 100)
}

// Impact 为系统有效性、执行质量、顺序有效性的加权平均；没有执行记录返回 50
func Impact(execs []Execution, systems []System) float64 {
	if len(execs) == 0 {
		return neutralScore
	}

	effectiveness := neutralScore
	if len(systems) > 0 {
		effectiveness = mean(systemField(systems, func(s System) float64 { return s.Effectiveness }))
	}
	quality := mean(field(execs, func(e Execution) float64 { return e.Quality }))
	sequence := mean(field(execs, func(e Execution) float64 { return e.SequenceEffectiveness }))

	return clamp(effectiveness*impactEffectivenessW+quality*impactQualityW+sequence*impactSequenceW, 0, 100)
}

// Learning 结合每个系统的调整次数、调整平均影响以及情境匹配度的改善；没有任何调整记录返回 50
func Learning(execs []Execution, systems []System) float64 {
	var total int
	var impactSum float64
	for _, s := range systems {
		total += len(s.Adaptations)
		for _, a := range s.Adaptations {
			impactSum += a.Impact
		}
	}
	if total == 0 {
		return neutralScore
	}

	perSystem := float64(total) / float64(len(systems))
	adaptationScore := clamp(perSystem*adaptationsPerPoint, 0, 100)
	impactScore := clamp(neutralScore+impactSum/float64(total)/2, 0, 100)

	var contextScore float64
	if len(execs) >= growthMinSamples {
		recent, older := windows(execs)
		diff := mean(field(recent, func(e Execution) float64 { return e.ContextFit })) -
			mean(field(older, func(e Execution) float64 { return e.ContextFit }))
		contextScore = clamp(diff*contextImprovementMul, 0, 100)
	}

	return clamp(adaptationScore*learningAdaptationW+impactScore*learningImpactW+contextScore*learningContextW, 0, 100)
}

// Overall = round(0.4*c + 0.25*g + 0.2*i + 0.15*l)，限制在 [0,100]
func Overall(consistency, growth, impact, learning float64) int {
	sum := consistency*weightConsistency + growth*weightGrowth + impact*weightImpact + learning*weightLearning
	return int(clamp(math.Round(sum), 0, 100))
}

// DirectionOf 比较最近 7 次与之前 7 次的平均质量
func DirectionOf(execs []Execution) Direction {
	if len(execs) < trendWindow {
		return Stable
	}

	recent, older := windows(execs)
	if len(older) == 0 {
		return Stable
	}

	delta := mean(field(recent, func(e Execution) float64 { return e.Quality })) -
		mean(field(older, func(e Execution) float64 { return e.Quality }))
	switch {
	case delta > directionDelta:
		return Increasing
	case delta < -directionDelta:
		return Decreasing
	default:
		return Stable
	}
}

// Strength 兼顾四个维度的均衡度与整体水平
func Strength(consistency, growth, impact, learning float64) float64 {
	dims := []float64{consistency, growth, impact, learning}
	balance := 100 - 2*stddev(dims)
	return clamp(balance*strengthBalanceW+mean(dims)*strengthMagnitudeW, 0, 100)
}

// WeeklyChange 为当前总体动量与 7 天前（或最早可用记录）的差值；没有历史返回 0
func WeeklyChange(history []Snapshot, date time.Time, overall int) float64 {
	var (
		base  *Snapshot
		first *Snapshot
	)
	cutoff := date.AddDate(0, 0, -7)
	for i := range history {
		snap := &history[i]
		if !snap.Date.Before(date) {
			continue
		}
		if first == nil || snap.Date.Before(first.Date) {
			first = snap
		}
		if !snap.Date.After(cutoff) && (base == nil || snap.Date.After(base.Date)) {
			base = snap
		}
	}
	if base == nil {
		base = first
	}
	if base == nil {
		return 0
	}
	return float64(overall - base.Overall)
}

// Forecast 以 weeklyChange/7 作为每日斜率线性外推三天，置信度随天数递减
func Forecast(date time.Time, overall int, weeklyChange float64) []ForecastPoint {
	daily := weeklyChange / 7
	points := make([]ForecastPoint, 0, forecastDays)
	for d := 1; d <= forecastDays; d++ {
		points = append(points, ForecastPoint{
			DaysAhead:  d,
			Date:       date.AddDate(0, 0, d),
			Value:      int(clamp(math.Round(float64(overall)+daily*float64(d)), 0, 100)),
			Confidence: max(forecastConfidenceMin, 100-forecastConfidenceDec*d),
		})
	}
	return points
}

func sortedExecutions(execs []Execution) []Execution {
	out := slices.Clone(execs)
	slices.SortStableFunc(out, func(a, b Execution) int {
		return a.At.Compare(b.At)
	})
	return out
}

// windows 返回最近 7 次与其之前的最多 7 次
func windows(execs []Execution) (recent, older []Execution) {
	n := len(execs)
	if n <= trendWindow {
		return execs, nil
	}
	recent = execs[n-trendWindow:]
	start := max(0, n-2*trendWindow)
	older = execs[start : n-trendWindow]
	return recent, older
}

func tail(execs []Execution, n int) []Execution {
	if len(execs) <= n {
		return execs
	}
	return execs[len(execs)-n:]
}

func field(execs []Execution, get func(Execution) float64) []float64 {
	out := make([]float64, 0, len(execs))
	for _, e := range execs {
		out = append(out, get(e))
	}
	return out
}

func systemField(systems []System, get func(System) float64) []float64 {
	out := make([]float64, 0, len(systems))
	for _, s := range systems {
		out = append(out, get(s))
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev 为总体标准差
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
