package license

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"slices"

	"github.com/coder/quartz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"costpilot/internal/config"
	apperrors "costpilot/internal/errors"
	"costpilot/internal/ratelimit"
	"costpilot/internal/security"
)

// Validator checks license records against a trust anchor
type Validator struct {
	verifier *security.Verifier
	limiter  ratelimit.Limiter
	issuers  []string
	clock    quartz.Clock
	logger   *slog.Logger
	metrics  *LicenseMetrics
	tracer   trace.Tracer
}

// Option configures a Validator
type Option func(*Validator)

// WithTrustedIssuers replaces the issuer allowlist
func WithTrustedIssuers(issuers ...string) Option {
	return func(v *Validator) { v.issuers = slices.Clone(issuers) }
}

// WithClock replaces the time source used for expiry checks
func WithClock(c quartz.Clock) Option {
	return func(v *Validator) { v.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics sets the metric instruments
func WithMetrics(m *LicenseMetrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// WithTracer sets the tracer
func WithTracer(t trace.Tracer) Option {
	return func(v *Validator) { v.tracer = t }
}

// NewValidator creates a Validator. Both the verifier and the limiter are
// required; pass ratelimit.Noop{} to opt out of throttling explicitly.
func NewValidator(verifier *security.Verifier, limiter ratelimit.Limiter, opts ...Option) (*Validator, error) {
	if verifier == nil {
		return nil, errors.New("license validator requires a signature verifier")
	}
	if limiter == nil {
		return nil, errors.New("license validator requires a rate limiter")
	}

	v := &Validator{
		verifier: verifier,
		limiter:  limiter,
		issuers:  config.TrustedIssuers(),
		clock:    quartz.NewReal(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.metrics == nil {
		m, err := InitializeLicenseMetrics(otel.Meter(MeterName))
		if err != nil {
			return nil, err
		}
		v.metrics = m
	}
	v.logger = v.logger.With(slog.String("component", "license"))
	return v, nil
}

// Validate runs the full check chain on rec. The attempt is recorded with
// the rate limiter before anything else, so failed and successful calls
// count alike. Only the first failing check is returned.
func (v *Validator) Validate(ctx context.Context, rec *Record) error {
	return v.traceValidation(ctx, rec, func(ctx context.Context) error {
		if err := v.limiter.RecordAttemptAndCheck(ctx); err != nil {
			return err
		}
		if rec == nil {
			return &apperrors.EmptyFieldError{Field: "email"}
		}
		if field := rec.firstEmptyField(); field != "" {
			return &apperrors.EmptyFieldError{Field: field}
		}
		if rec.IsExpired(v.clock.Now()) {
			return apperrors.ErrExpired
		}
		if !slices.Contains(v.issuers, rec.Issuer) {
			return &apperrors.UnknownIssuerError{Issuer: rec.Issuer}
		}
		return v.verifySignature(rec)
	})
}

// ValidateFile loads the license at path and validates it. Load failures
// are returned before the limiter is consulted, so rate limiting covers
// only parseable records.
func (v *Validator) ValidateFile(ctx context.Context, path string) (*Record, error) {
	rec, err := LoadRecord(path)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// verifySignature checks the hex signature over the canonical message.
// Malformed hex fails the same way as a wrong signature.
func (v *Validator) verifySignature(rec *Record) error {
	sig, err := hex.DecodeString(rec.Signature)
	if err != nil {
		return apperrors.ErrSignatureInvalid
	}
	return v.verifier.Verify([]byte(rec.CanonicalMessage()), sig)
}
