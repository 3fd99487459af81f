package license

import (
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "costpilot/internal/errors"
)

// Record is a parsed license file
type Record struct {
	Email      string `json:"email" validate:"required"`
	LicenseKey string `json:"license_key" validate:"required"`
	Expires    string `json:"expires" validate:"required"`
	Signature  string `json:"signature" validate:"required"`
	Issuer     string `json:"issuer" validate:"required"`
}

// fieldValidator reports missing fields by their JSON names
var fieldValidator = newFieldValidator()

func newFieldValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadRecord reads and parses a license file
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIOError("read license", path, err)
	}
	return ParseRecord(data)
}

// ParseRecord parses license JSON. All five fields must be present and
// non-empty; the first missing one is reported as an EmptyFieldError wrapped
// in a FormatError.
func ParseRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.NewFormatError("license is not valid JSON", err)
	}
	if field := rec.firstEmptyField(); field != "" {
		return nil, apperrors.NewFormatError("incomplete license", &apperrors.EmptyFieldError{Field: field})
	}
	return &rec, nil
}

// firstEmptyField returns the JSON name of the first empty field, in struct
// order, or "" when every field is set.
func (r *Record) firstEmptyField() string {
	err := fieldValidator.Struct(r)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return "license"
}

// CanonicalMessage returns the signed message for this record
func (r *Record) CanonicalMessage() string {
	return CanonicalMessage(r.Email, r.LicenseKey, r.Expires, r.Issuer)
}

// ExpiresAt parses the expiry timestamp as RFC3339
func (r *Record) ExpiresAt() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Expires)
}

// IsExpired reports whether now is after the expiry. An unparsable expiry
// counts as expired.
func (r *Record) IsExpired(now time.Time) bool {
	expires, err := r.ExpiresAt()
	if err != nil {
		return true
	}
	return now.After(expires)
}
