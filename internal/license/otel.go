package license

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "costpilot/internal/errors"
)

const (
	TracerName = "costpilot/license"
	MeterName  = "costpilot/license"
)

// LicenseMetrics holds the license validation instruments
type LicenseMetrics struct {
	ValidationAttempts metric.Int64Counter
	ValidationFailures metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	RateLimitHits      metric.Int64Counter
}

// InitializeLicenseMetrics creates the instruments on meter
func InitializeLicenseMetrics(meter metric.Meter) (*LicenseMetrics, error) {
	attempts, err := meter.Int64Counter(
		"license_validation_attempts_total",
		metric.WithDescription("Total number of license validation attempts"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"license_validation_failures_total",
		metric.WithDescription("Total number of failed license validations by reason"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License validation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitHits, err := meter.Int64Counter(
		"license_rate_limit_hits_total",
		metric.WithDescription("Total number of validations blocked by the attempt limiter"),
	)
	if err != nil {
		return nil, err
	}

	return &LicenseMetrics{
		ValidationAttempts: attempts,
		ValidationFailures: failures,
		ValidationDuration: duration,
		RateLimitHits:      rateLimitHits,
	}, nil
}

// traceValidation wraps one validation in a span and records its metrics
func (v *Validator) traceValidation(ctx context.Context, rec *Record, fn func(context.Context) error) error {
	ctx, span := v.tracer.Start(ctx, "license.validate",
		trace.WithAttributes(
			attribute.String("license.operation", "validate"),
			attribute.String("component", "license_validator"),
		),
	)
	defer span.End()

	start := v.clock.Now()
	err := fn(ctx)
	duration := v.clock.Since(start)

	v.recordValidationMetrics(ctx, duration, err)

	span.SetAttributes(attribute.Bool("license.valid", err == nil))
	if rec != nil {
		span.SetAttributes(attribute.String("license.issuer", rec.Issuer))
	}

	if err != nil {
		reason := apperrors.Reason(err)
		// Status carries the reason only; error text may include license fields.
		span.SetStatus(codes.Error, reason)
		span.SetAttributes(
			attribute.String("license.error_type", reason),
			attribute.String("license.error_code", apperrors.Code(err)),
		)
	} else {
		span.SetStatus(codes.Ok, "License validation successful")
	}

	v.logResult(ctx, rec, err)
	return err
}

// recordValidationMetrics records validation-specific metrics
func (v *Validator) recordValidationMetrics(ctx context.Context, duration time.Duration, err error) {
	if v.metrics == nil {
		return
	}

	v.metrics.ValidationAttempts.Add(ctx, 1)
	v.metrics.ValidationDuration.Record(ctx, duration.Seconds())

	if err == nil {
		return
	}

	reason := apperrors.Reason(err)
	v.metrics.ValidationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	if reason == "rate_limited" {
		v.metrics.RateLimitHits.Add(ctx, 1)
	}
}
