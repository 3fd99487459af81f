package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "costpilot/internal/errors"
)

func TestCheckModuleMagic(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		magic     []byte
		wantErr   bool
	}{
		{"wasm module", []byte("\x00asm\x01\x00\x00\x00"), nil, false},
		{"exact magic only", []byte("\x00asm"), nil, false},
		{"custom magic", []byte("CPE1payload"), []byte("CPE1"), false},
		{"wrong header", []byte("\x7fELF\x02\x01"), nil, true},
		{"too short", []byte("\x00as"), nil, true},
		{"empty", nil, nil, true},
		{"custom magic mismatch", []byte("\x00asm\x01"), []byte("CPE1"), true},
		{"bad magic length", []byte("\x00asm\x01"), []byte("\x00as"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckModuleMagic(tt.plaintext, tt.magic)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrIntegrityFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
