package observability

import (
	"context"
	"os"

	"github.com/habitlog/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName 同时用作 tracer 名称与 otelgin 的服务名
const ServiceName = "habitlog"

// Tracer 返回全局 tracer；未初始化时为 noop 实现
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// InitOTel 在 enabled 时安装输出到 stdout 的 TracerProvider，返回关闭函数
func InitOTel(ctx context.Context, log *logger.Logger, enabled bool) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !enabled {
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", ServiceName),
	))
	if err != nil && log != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	if err != nil {
		if log != nil {
			log.Warn("otel exporter init failed (tracing disabled)", "error", err)
		}
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if log != nil {
		log.Info("otel tracing initialized", "service", ServiceName)
	}

	return tp.Shutdown
}
