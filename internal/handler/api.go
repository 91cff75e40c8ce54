package handler

import (
	"time"

	"github.com/habitlog/internal/guard"
	"github.com/habitlog/internal/insight"
	"github.com/habitlog/internal/logger"
	"github.com/habitlog/internal/service"
	"gorm.io/gorm"
)

// Options 是构造 API 时的可选依赖，零值均有默认实现
type Options struct {
	Location *time.Location
	Guard    guard.Guard
	Insights *insight.Engine
	Logger   *logger.Logger
	Now      func() time.Time
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db  *gorm.DB
	log *logger.Logger
	loc *time.Location
	now func() time.Time

	habits   *service.HabitService
	subTasks *service.SubTaskService
	entries  *service.EntryService
	stats    *service.StatsService
	systems  *service.SystemService
	momentum *service.MomentumService
	insights *service.InsightService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, opts Options) *API {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	loc := opts.Location
	now := opts.Now
	clock := func() time.Time { return now().In(loc) }

	habits := service.NewHabitService(db).WithClock(now).WithLocation(loc)
	cache := service.NewProgressCache(db)
	stats := service.NewStatsService(db, habits, cache).WithClock(clock)
	momentum := service.NewMomentumService(db)

	return &API{
		db:       db,
		log:      opts.Logger,
		loc:      loc,
		now:      clock,
		habits:   habits,
		subTasks: service.NewSubTaskService(db, habits, cache).WithClock(now).WithLocation(loc),
		entries:  service.NewEntryService(db, habits, cache, opts.Guard),
		stats:    stats,
		systems:  service.NewSystemService(db),
		momentum: momentum,
		insights: service.NewInsightService(db, stats, momentum, opts.Insights),
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// today 返回用户时区下的当前时间
func (a *API) today() time.Time {
	return a.now()
}
