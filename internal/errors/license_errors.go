package errors

import (
	"errors"
)

// Error codes for license and bundle operations
const (
	ErrCodeInvalidFormat    = "INVALID_FORMAT"
	ErrCodeEmptyField       = "EMPTY_FIELD"
	ErrCodeExpired          = "LICENSE_EXPIRED"
	ErrCodeUnknownIssuer    = "UNKNOWN_ISSUER"
	ErrCodeSignatureInvalid = "SIGNATURE_INVALID"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeKeyDerivation    = "KEY_DERIVATION_FAILED"
	ErrCodeDecryption       = "DECRYPTION_FAILED"
	ErrCodeIntegrity        = "INTEGRITY_FAILED"
	ErrCodeIO               = "IO_ERROR"
	ErrCodeUnknown          = "UNKNOWN"
)

// codeTable is checked in order. EmptyFieldError is tested before
// FormatError because LoadRecord wraps the former in the latter.
var codeTable = []struct {
	target error
	code   string
}{
	{ErrRateLimitExceeded, ErrCodeRateLimited},
	{ErrEmptyField, ErrCodeEmptyField},
	{ErrFormat, ErrCodeInvalidFormat},
	{ErrExpired, ErrCodeExpired},
	{ErrUnknownIssuer, ErrCodeUnknownIssuer},
	{ErrSignatureInvalid, ErrCodeSignatureInvalid},
	{ErrKeyDerivation, ErrCodeKeyDerivation},
	{ErrDecryptionFailed, ErrCodeDecryption},
	{ErrIntegrityFailed, ErrCodeIntegrity},
	{ErrIO, ErrCodeIO},
}

// Code maps an error from the validation chain to a stable code suitable for
// logs and metric labels. nil maps to "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.target) {
			return entry.code
		}
	}
	return ErrCodeUnknown
}

// Reason returns the lowercase metric label for an error code
func Reason(err error) string {
	switch Code(err) {
	case "":
		return "ok"
	case ErrCodeInvalidFormat:
		return "format"
	case ErrCodeEmptyField:
		return "empty_field"
	case ErrCodeExpired:
		return "expired"
	case ErrCodeUnknownIssuer:
		return "unknown_issuer"
	case ErrCodeSignatureInvalid:
		return "signature_invalid"
	case ErrCodeRateLimited:
		return "rate_limited"
	case ErrCodeKeyDerivation:
		return "key_derivation"
	case ErrCodeDecryption:
		return "decryption"
	case ErrCodeIntegrity:
		return "integrity"
	case ErrCodeIO:
		return "io"
	default:
		return "unknown"
	}
}
