package bundle

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "costpilot/internal/errors"
)

const (
	TracerName = "costpilot/bundle"
	MeterName  = "costpilot/bundle"
)

// LoaderMetrics holds the bundle loading instruments
type LoaderMetrics struct {
	Loads        metric.Int64Counter
	LoadDuration metric.Float64Histogram
}

// InitializeLoaderMetrics creates the instruments on meter
func InitializeLoaderMetrics(meter metric.Meter) (*LoaderMetrics, error) {
	loads, err := meter.Int64Counter(
		"bundle_load_total",
		metric.WithDescription("Total number of Pro Engine bundle loads by result"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"bundle_load_duration_seconds",
		metric.WithDescription("Pro Engine bundle load duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &LoaderMetrics{Loads: loads, LoadDuration: duration}, nil
}

// traceLoad wraps one load in a "bundle.load" span and records the result
func (l *Loader) traceLoad(ctx context.Context, path string, fn func(context.Context) error) error {
	ctx, span := l.tracer.Start(ctx, "bundle.load",
		trace.WithAttributes(attribute.String("component", "bundle_loader")),
	)
	defer span.End()

	if path != "" {
		span.SetAttributes(attribute.String("bundle.path", path))
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	result := "ok"
	if err != nil {
		result = apperrors.Reason(err)
	}

	if l.metrics != nil {
		l.metrics.Loads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
		l.metrics.LoadDuration.Record(ctx, duration.Seconds())
	}

	if err != nil {
		span.SetStatus(codes.Error, result)
		span.SetAttributes(attribute.String("bundle.error_code", apperrors.Code(err)))
		l.logger.DebugContext(ctx, "Bundle load failed",
			slog.String("error_code", apperrors.Code(err)),
			slog.String("reason", result),
			slog.String("error", err.Error()),
		)
		return err
	}

	span.SetStatus(codes.Ok, "Bundle loaded")
	return nil
}
