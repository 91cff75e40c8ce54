package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr            string
	Port                  string
	DatabaseDriver        string
	DatabasePath          string
	DatabaseDSN           string
	GinMode               string
	LogMode               string
	RedisAddr             string
	ToggleGuardTTL        time.Duration
	InsightThresholdsFile string
	CORSAllowOrigins      []string
	OTelEnabled           bool
	Location              *time.Location
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := env("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	guardTTL := 5 * time.Second
	if raw := strings.TrimSpace(os.Getenv("TOGGLE_GUARD_TTL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			guardTTL = d
		}
	}

	location := time.Local
	if name := strings.TrimSpace(os.Getenv("TIMEZONE")); name != "" && !strings.EqualFold(name, "local") {
		if loc, err := time.LoadLocation(name); err == nil {
			location = loc
		}
	}

	return AppConfig{
		ListenAddr:            listenAddr,
		Port:                  port,
		DatabaseDriver:        env("DATABASE_DRIVER", "sqlite"),
		DatabasePath:          env("DATABASE_PATH", "habitlog.db"),
		DatabaseDSN:           strings.TrimSpace(os.Getenv("DATABASE_DSN")),
		GinMode:               env("GIN_MODE", "release"),
		LogMode:               env("LOG_MODE", "production"),
		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		ToggleGuardTTL:        guardTTL,
		InsightThresholdsFile: strings.TrimSpace(os.Getenv("INSIGHT_THRESHOLDS_FILE")),
		CORSAllowOrigins:      splitList(env("CORS_ALLOW_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		OTelEnabled:           parseBool(os.Getenv("OTEL_ENABLED")),
		Location:              location,
	}
}

func env(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
