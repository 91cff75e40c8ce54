package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/guard"
	"github.com/habitlog/internal/handler"
	"github.com/habitlog/internal/insight"
	"github.com/habitlog/internal/logger"
	"github.com/habitlog/internal/observability"
	"github.com/habitlog/internal/router"
)

func main() {
	cfg := config.Load()

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	ctx := context.Background()
	shutdown := observability.InitOTel(ctx, appLog, cfg.OTelEnabled)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			appLog.Warn("otel shutdown failed", "error", err)
		}
	}()

	// 初始化数据库
	if err := db.Init(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseDSN,
	}); err != nil {
		appLog.Fatal("failed to initialize database", "error", err)
	}

	toggleGuard := buildGuard(ctx, cfg, appLog)

	var engine *insight.Engine
	if cfg.InsightThresholdsFile != "" {
		th, err := insight.LoadThresholds(cfg.InsightThresholdsFile)
		if err != nil {
			appLog.Fatal("failed to load insight thresholds", "path", cfg.InsightThresholdsFile, "error", err)
		}
		engine = insight.NewEngine(th)
	}

	api := handler.NewAPI(db.DB, handler.Options{
		Location: cfg.Location,
		Guard:    toggleGuard,
		Insights: engine,
		Logger:   appLog,
	})

	gin.SetMode(cfg.GinMode)
	r := router.SetupRouter(api, router.Options{
		Logger:      appLog,
		CORSOrigins: cfg.CORSAllowOrigins,
		Tracing:     cfg.OTelEnabled,
	})

	appLog.Info("server starting", "addr", cfg.ListenAddr, "driver", cfg.DatabaseDriver, "timezone", cfg.Location.String())
	if err := r.Run(cfg.ListenAddr); err != nil {
		appLog.Fatal("failed to run server", "error", err)
	}
}

// buildGuard 在 REDIS_ADDR 可用时使用 redis 锁，否则退回进程内实现
func buildGuard(ctx context.Context, cfg config.AppConfig, appLog *logger.Logger) guard.Guard {
	if cfg.RedisAddr == "" {
		return guard.NewMemoryGuard()
	}

	rg := guard.NewRedisGuard(cfg.RedisAddr, cfg.ToggleGuardTTL, appLog.With("component", "toggle-guard"))
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rg.Ping(pingCtx); err != nil {
		appLog.Warn("redis unavailable, using in-memory toggle guard", "addr", cfg.RedisAddr, "error", err)
		_ = rg.Close()
		return guard.NewMemoryGuard()
	}
	appLog.Info("redis toggle guard enabled", "addr", cfg.RedisAddr)
	return rg
}
