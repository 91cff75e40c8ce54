package service

import (
	"context"
	"fmt"
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/insight"
	"github.com/habitlog/internal/momentum"
	"github.com/habitlog/internal/observability"
	"github.com/habitlog/internal/rollup"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// insightLookback 加载执行记录与耗时样本的天数
const insightLookback = 30

// InsightService 汇集动量、连胜、周报与系统数据，交给 insight.Engine 分析
type InsightService struct {
	db       *gorm.DB
	stats    *StatsService
	momentum *MomentumService
	engine   *insight.Engine
}

// NewInsightService 构造 InsightService；engine 为 nil 时使用默认阈值
func NewInsightService(gdb *gorm.DB, stats *StatsService, momentum *MomentumService, engine *insight.Engine) *InsightService {
	if engine == nil {
		engine = insight.NewEngine(insight.DefaultThresholds())
	}
	return &InsightService{db: gdb, stats: stats, momentum: momentum, engine: engine}
}

// Generate 生成 now 时刻的分析报告；只读，不写任何缓存
func (s *InsightService) Generate(ctx context.Context, userID uint, now time.Time) (insight.Report, error) {
	ctx, span := observability.Tracer().Start(ctx, "habitlog.insights.generate")
	defer span.End()

	input, err := s.loadInput(ctx, userID, now)
	if err != nil {
		return insight.Report{}, err
	}

	report := s.engine.Run(input)
	span.SetAttributes(attribute.Int("insights.findings", len(report.Findings)))
	return report, nil
}

func (s *InsightService) loadInput(ctx context.Context, userID uint, now time.Time) (insight.Input, error) {
	today := dayOf(now)
	since := today.AddDate(0, 0, -insightLookback)

	var (
		input   = insight.Input{Now: now}
		vector  momentum.Vector
		systems []db.AdaptiveSystem
		execs   []db.ExecutionQuality
		samples []insight.TimeSample
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vector, err = s.momentum.Evaluate(gctx, userID, since, today)
		return err
	})
	g.Go(func() error {
		var err error
		input.Streak, err = s.stats.Streak(gctx, userID, today)
		return err
	})
	g.Go(func() error {
		var err error
		input.ThisWeek, err = s.stats.period(gctx, userID, rollup.WeekOf(today), today, false)
		return err
	})
	g.Go(func() error {
		var err error
		input.LastWeek, err = s.stats.period(gctx, userID, rollup.WeekOf(today.AddDate(0, 0, -7)), today, false)
		return err
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Where("user_id = ?", userID).Order("id ASC").Find(&systems).Error; err != nil {
			return fmt.Errorf("list systems: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).
			Where("user_id = ? AND executed_at >= ?", userID, since).
			Order("executed_at ASC, id ASC").
			Find(&execs).Error; err != nil {
			return fmt.Errorf("list executions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		samples, err = s.timeSamples(gctx, userID, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return insight.Input{}, err
	}

	if vector.Samples > 0 {
		input.Momentum = &vector
	}
	input.Executions = toMomentumExecutions(execs)
	input.Systems = toInsightSystems(systems, input.Executions)
	input.TimeSamples = samples
	return input, nil
}

// timeSamples 取既有预估又有实际耗时的子任务日志
func (s *InsightService) timeSamples(ctx context.Context, userID uint, since time.Time) ([]insight.TimeSample, error) {
	var rows []struct {
		Estimated int
		Actual    int
	}
	if err := s.db.WithContext(ctx).Model(&db.SubTaskLog{}).
		Select("sub_tasks.estimated_minutes AS estimated, sub_task_logs.time_spent_minutes AS actual").
		Joins("JOIN sub_tasks ON sub_tasks.id = sub_task_logs.sub_task_id").
		Where("sub_task_logs.user_id = ? AND sub_task_logs.log_date >= ?", userID, since).
		Where("sub_tasks.estimated_minutes > 0 AND sub_task_logs.time_spent_minutes > 0").
		Order("sub_task_logs.log_date ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list time samples: %w", err)
	}

	samples := make([]insight.TimeSample, 0, len(rows))
	for _, r := range rows {
		samples = append(samples, insight.TimeSample{Estimated: r.Estimated, Actual: r.Actual})
	}
	return samples, nil
}

func toInsightSystems(systems []db.AdaptiveSystem, execs []momentum.Execution) []insight.System {
	bySystem := make(map[uint][]momentum.Execution, len(systems))
	for _, e := range execs {
		bySystem[e.SystemID] = append(bySystem[e.SystemID], e)
	}

	out := make([]insight.System, 0, len(systems))
	for _, sys := range systems {
		out = append(out, insight.System{
			ID:            sys.ID,
			Name:          sys.Name,
			Effectiveness: sys.EffectivenessScore,
			Friction:      sys.FrictionCoefficient,
			Locked:        sys.Locked,
			AutoAdapt:     sys.AutoAdapt,
			Adaptations:   len(sys.AdaptationHistory),
			Executions:    bySystem[sys.ID],
		})
	}
	return out
}
