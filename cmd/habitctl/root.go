package main

import (
	"fmt"
	"time"

	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/insight"
	"github.com/habitlog/internal/service"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// cli 保存一次命令执行共享的参数与服务
type cli struct {
	driver     string
	path       string
	dsn        string
	userID     uint
	date       string
	timezone   string
	thresholds string

	loc      *time.Location
	gdb      *gorm.DB
	stats    *service.StatsService
	momentum *service.MomentumService
	insights *service.InsightService
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	app := &cli{}

	root := &cobra.Command{
		Use:   "habitctl",
		Short: "Inspect habit streaks, rollups, momentum and insights",
		Long: `habitctl reads the same database as the habitlog server and prints reports.

EXAMPLES:

  habitctl streak                      # Current and longest streak
  habitctl week --date 2026-04-15      # ISO week containing the date
  habitctl month                       # Current calendar month
  habitctl momentum                    # Momentum over the last 30 days
  habitctl insights --category bias    # Only bias findings`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return app.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.driver, "driver", cfg.DatabaseDriver, "database driver (sqlite or postgres)")
	flags.StringVar(&app.path, "db", cfg.DatabasePath, "sqlite database path")
	flags.StringVar(&app.dsn, "dsn", cfg.DatabaseDSN, "postgres dsn")
	flags.UintVarP(&app.userID, "user", "u", 1, "user id")
	flags.StringVarP(&app.date, "date", "d", "", "report date (2006-01-02), defaults to today")
	flags.StringVar(&app.timezone, "tz", cfg.Location.String(), "timezone used for today")
	flags.StringVar(&app.thresholds, "thresholds", cfg.InsightThresholdsFile, "insight thresholds YAML file")

	root.AddCommand(
		newStreakCmd(app),
		newPeriodCmd(app, "week"),
		newPeriodCmd(app, "month"),
		newMomentumCmd(app),
		newInsightsCmd(app),
	)
	return root
}

func (a *cli) open() error {
	loc, err := time.LoadLocation(a.timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", a.timezone, err)
	}
	a.loc = loc

	gdb, err := db.Open(db.Options{Driver: a.driver, Path: a.path, DSN: a.dsn, Silent: true})
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	a.gdb = gdb

	var engine *insight.Engine
	if a.thresholds != "" {
		th, err := insight.LoadThresholds(a.thresholds)
		if err != nil {
			return fmt.Errorf("load thresholds: %w", err)
		}
		engine = insight.NewEngine(th)
	}

	clock := func() time.Time { return time.Now().In(loc) }
	habits := service.NewHabitService(gdb)
	cache := service.NewProgressCache(gdb)
	a.stats = service.NewStatsService(gdb, habits, cache).WithClock(clock)
	a.momentum = service.NewMomentumService(gdb)
	a.insights = service.NewInsightService(gdb, a.stats, a.momentum, engine)
	return nil
}

func (a *cli) close() error {
	if a.gdb == nil {
		return nil
	}
	sqlDB, err := a.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// day 返回 --date 指定的日期，缺省为当前时区的今天
func (a *cli) day() (time.Time, error) {
	if a.date == "" {
		return time.Now().In(a.loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", a.date, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", a.date, err)
	}
	return t, nil
}
