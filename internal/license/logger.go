package license

import (
	"context"
	"log/slog"

	apperrors "costpilot/internal/errors"
	"costpilot/internal/infrastructure"
)

// logAttrs returns the attributes that identify a record in log lines. The
// key is masked and the signature is never included.
func logAttrs(rec *Record) []any {
	if rec == nil {
		return nil
	}
	return []any{
		slog.String("license_key", infrastructure.MaskLicenseKey(rec.LicenseKey)),
		slog.String("issuer", rec.Issuer),
		slog.String("expires", rec.Expires),
	}
}

// logResult writes one debug line per validation. Rejections stay at debug
// so the default run degrades silently. The failure code and reason make
// the line searchable without revealing license contents.
func (v *Validator) logResult(ctx context.Context, rec *Record, err error) {
	attrs := logAttrs(rec)
	if err == nil {
		v.logger.DebugContext(ctx, "License validated", attrs...)
		return
	}

	attrs = append(attrs,
		slog.String("error_code", apperrors.Code(err)),
		slog.String("reason", apperrors.Reason(err)),
		slog.String("error", err.Error()),
	)
	v.logger.DebugContext(ctx, "License validation failed", attrs...)
}
