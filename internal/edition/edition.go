// Package edition decides whether the Pro features are available.
//
// Detection never fails loudly: any problem with the license degrades to the
// free edition. The reason is logged at debug level and is only reported to
// the caller when debug mode is on.
package edition

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	apperrors "costpilot/internal/errors"
	"costpilot/internal/license"
)

// Edition is the product tier unlocked for this run
type Edition string

const (
	Free    Edition = "free"
	Premium Edition = "premium"
)

// LicenseValidator loads and validates a license file
type LicenseValidator interface {
	ValidateFile(ctx context.Context, path string) (*license.Record, error)
}

// Result is the outcome of a detection
type Result struct {
	Edition Edition
	// Record is set only for Premium
	Record *license.Record
	// Err is the underlying failure, kept for callers that log it themselves
	Err error
	// Reason is a short failure label, empty unless the detector runs in
	// debug mode
	Reason string
}

// Premium reports whether the Pro features are unlocked
func (r Result) Premium() bool {
	return r.Edition == Premium
}

// Detector maps a license file to an edition
type Detector struct {
	Validator LicenseValidator
	Logger    *slog.Logger
	Debug     bool
}

// NewDetector creates a Detector
func NewDetector(validator LicenseValidator, logger *slog.Logger, debug bool) *Detector {
	return &Detector{Validator: validator, Logger: logger, Debug: debug}
}

// Detect validates the license at licensePath. A missing file is the normal
// free-tier case and is not logged.
func (d *Detector) Detect(ctx context.Context, licensePath string) Result {
	if d.Validator == nil || licensePath == "" {
		return Result{Edition: Free}
	}

	rec, err := d.Validator.ValidateFile(ctx, licensePath)
	if err == nil {
		return Result{Edition: Premium, Record: rec}
	}

	res := Result{Edition: Free, Err: err}
	if errors.Is(err, fs.ErrNotExist) {
		return d.withReason(res, "not_activated")
	}

	d.logger().DebugContext(ctx, "License not accepted, running free edition",
		slog.String("error_code", apperrors.Code(err)),
		slog.String("reason", apperrors.Reason(err)),
		slog.String("error", err.Error()),
	)
	return d.withReason(res, apperrors.Reason(err))
}

func (d *Detector) withReason(res Result, reason string) Result {
	if d.Debug {
		res.Reason = reason
	}
	return res
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
