package license

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "costpilot/internal/errors"
	"costpilot/internal/shared/testutil"
)

func TestCanonicalMessage(t *testing.T) {
	msg := CanonicalMessage("a@b.c", "KEY-1", "2027-01-01T00:00:00Z", "costpilot")
	assert.Equal(t, "a@b.c|KEY-1|2027-01-01T00:00:00Z|costpilot", msg)

	// Separators inside fields are not escaped.
	assert.Equal(t, "a|b|c|d|e", CanonicalMessage("a|b", "c", "d", "e"))
	assert.Equal(t, "|||", CanonicalMessage("", "", "", ""))
}

func TestRecordCanonicalMessageMatchesFixture(t *testing.T) {
	f := testutil.ValidTestLicense(time.Now())
	rec, err := ParseRecord(f.JSON(t))
	require.NoError(t, err)
	assert.Equal(t, f.Message(), rec.CanonicalMessage())
}

func TestParseRecord(t *testing.T) {
	t.Run("complete record", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{
			"email": "ops@example.com",
			"license_key": "COST-1",
			"expires": "2027-01-01T00:00:00Z",
			"signature": "00",
			"issuer": "costpilot",
			"plan": "enterprise"
		}`))
		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", rec.Email)
		assert.Equal(t, "COST-1", rec.LicenseKey)
		assert.Equal(t, "costpilot", rec.Issuer)
	})

	missing := []struct {
		name  string
		json  string
		field string
	}{
		{"no email", `{"license_key":"k","expires":"e","signature":"s","issuer":"i"}`, "email"},
		{"empty license key", `{"email":"a","license_key":"","expires":"e","signature":"s","issuer":"i"}`, "license_key"},
		{"no expires", `{"email":"a","license_key":"k","signature":"s","issuer":"i"}`, "expires"},
		{"no signature", `{"email":"a","license_key":"k","expires":"e","issuer":"i"}`, "signature"},
		{"empty issuer", `{"email":"a","license_key":"k","expires":"e","signature":"s","issuer":""}`, "issuer"},
		{"empty object", `{}`, "email"},
		{"null", `null`, "email"},
	}
	for _, tt := range missing {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord([]byte(tt.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrFormat)
			assert.ErrorIs(t, err, apperrors.ErrEmptyField)

			var fieldErr *apperrors.EmptyFieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}

	malformed := map[string]string{
		"not json":     `license`,
		"array":        `[]`,
		"number field": `{"email":42,"license_key":"k","expires":"e","signature":"s","issuer":"i"}`,
		"truncated":    `{"email":"a"`,
	}
	for name, input := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord([]byte(input))
			assert.ErrorIs(t, err, apperrors.ErrFormat)
			assert.NotErrorIs(t, err, apperrors.ErrEmptyField)
		})
	}
}

func TestLoadRecord(t *testing.T) {
	f := testutil.ValidTestLicense(time.Now())
	rec, err := LoadRecord(testutil.WriteLicense(t, f))
	require.NoError(t, err)
	assert.Equal(t, f.Signature, rec.Signature)

	_, err = LoadRecord(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, apperrors.ErrIO)
	assert.Equal(t, apperrors.ErrCodeIO, apperrors.Code(err))
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires string
		want    bool
	}{
		{"one second later", now.Add(time.Second).Format(time.RFC3339), false},
		{"exactly now", now.Format(time.RFC3339), false},
		{"one second earlier", now.Add(-time.Second).Format(time.RFC3339), true},
		{"other time zone same instant", now.In(time.FixedZone("X", 3*3600)).Format(time.RFC3339), false},
		{"unparsable", "next tuesday", true},
		{"date only", "2030-01-01", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{Expires: tt.expires}
			assert.Equal(t, tt.want, rec.IsExpired(now))
		})
	}

	// One nanosecond past a fractional expiry is expired.
	rec := &Record{Expires: "2026-06-01T12:00:00.5Z"}
	assert.False(t, rec.IsExpired(now.Add(500*time.Millisecond)))
	assert.True(t, rec.IsExpired(now.Add(500*time.Millisecond+time.Nanosecond)))
}
