package service

import (
	"context"
	"fmt"
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/momentum"
	"github.com/habitlog/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMomentumWindow 未指定起点时回看的天数
const DefaultMomentumWindow = 30

// MomentumService 加载执行记录并计算每日动量
type MomentumService struct {
	db *gorm.DB
}

// NewMomentumService 构造 MomentumService
func NewMomentumService(gdb *gorm.DB) *MomentumService {
	return &MomentumService{db: gdb}
}

// Evaluate 计算 [start, end] 内的动量，不写库
func (s *MomentumService) Evaluate(ctx context.Context, userID uint, start, end time.Time) (momentum.Vector, error) {
	ctx, span := observability.Tracer().Start(ctx, "habitlog.momentum.evaluate")
	defer span.End()

	endDay := dayOf(end)
	if start.IsZero() {
		start = endDay.AddDate(0, 0, -DefaultMomentumWindow)
	}
	if endDay.Before(dayOf(start)) {
		return momentum.Vector{}, fmt.Errorf("invalid range: end before start")
	}

	var (
		execs   []db.ExecutionQuality
		systems []db.AdaptiveSystem
		history []db.MomentumVector
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.WithContext(gctx).
			Where("user_id = ? AND executed_at >= ? AND executed_at < ?", userID, dayOf(start), endDay.AddDate(0, 0, 1)).
			Order("executed_at ASC, id ASC").
			Find(&execs).Error; err != nil {
			return fmt.Errorf("list executions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Where("user_id = ?", userID).Order("id ASC").Find(&systems).Error; err != nil {
			return fmt.Errorf("list systems: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).
			Where("user_id = ? AND vector_date < ?", userID, endDay).
			Order("vector_date ASC").
			Find(&history).Error; err != nil {
			return fmt.Errorf("list momentum history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return momentum.Vector{}, err
	}

	vector := momentum.Compute(momentum.Input{
		Date:       endDay,
		Executions: toMomentumExecutions(execs),
		Systems:    toMomentumSystems(systems),
		History:    toSnapshots(history),
	})
	span.SetAttributes(
		attribute.Int("momentum.overall", vector.Overall),
		attribute.Int("momentum.samples", vector.Samples),
	)
	return vector, nil
}

// Compute 计算并保存 end 当天的动量，同一天重复计算覆盖旧值
func (s *MomentumService) Compute(ctx context.Context, userID uint, start, end time.Time) (momentum.Vector, error) {
	vector, err := s.Evaluate(ctx, userID, start, end)
	if err != nil {
		return momentum.Vector{}, err
	}

	row := vectorToModel(userID, vector)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "vector_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"consistency", "growth", "impact", "learning", "overall",
			"direction", "strength", "weekly_change", "forecast", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return momentum.Vector{}, fmt.Errorf("upsert momentum vector: %w", err)
	}
	return vector, nil
}

// History 返回 [start, end] 内已保存的动量
func (s *MomentumService) History(userID uint, start, end time.Time) ([]db.MomentumVector, error) {
	var vectors []db.MomentumVector
	if err := s.db.Where("user_id = ? AND vector_date BETWEEN ? AND ?", userID, dayOf(start), dayOf(end)).
		Order("vector_date ASC").
		Find(&vectors).Error; err != nil {
		return nil, fmt.Errorf("list momentum vectors: %w", err)
	}
	return vectors, nil
}
