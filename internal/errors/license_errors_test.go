package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		reason string
	}{
		{"nil", nil, "", "ok"},
		{"expired", ErrExpired, ErrCodeExpired, "expired"},
		{"wrapped expired", fmt.Errorf("validate: %w", ErrExpired), ErrCodeExpired, "expired"},
		{"empty field inside format", NewFormatError("record", &EmptyFieldError{Field: "email"}), ErrCodeEmptyField, "empty_field"},
		{"format", NewFormatError("metadata", nil), ErrCodeInvalidFormat, "format"},
		{"issuer", &UnknownIssuerError{Issuer: "x"}, ErrCodeUnknownIssuer, "unknown_issuer"},
		{"signature", ErrSignatureInvalid, ErrCodeSignatureInvalid, "signature_invalid"},
		{"rate limited", &RateLimitExceededError{Attempts: 6, Limit: 5, RetryAfter: time.Second}, ErrCodeRateLimited, "rate_limited"},
		{"kdf", ErrKeyDerivation, ErrCodeKeyDerivation, "key_derivation"},
		{"decrypt", ErrDecryptionFailed, ErrCodeDecryption, "decryption"},
		{"integrity", ErrIntegrityFailed, ErrCodeIntegrity, "integrity"},
		{"io", NewIOError("open", "p", fmt.Errorf("denied")), ErrCodeIO, "io"},
		{"foreign", fmt.Errorf("something else"), ErrCodeUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.reason, Reason(tt.err))
		})
	}
}

func TestRateLimitMessageRoundsRetry(t *testing.T) {
	err := &RateLimitExceededError{Attempts: 11, Limit: 10, RetryAfter: 42*time.Second + 300*time.Millisecond}
	assert.Equal(t, "too many license validation attempts (11/10), retry in 42s", err.Error())
}
