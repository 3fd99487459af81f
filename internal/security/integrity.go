package security

import (
	"bytes"
	"fmt"

	apperrors "costpilot/internal/errors"
)

// MagicSize is the length of a module-format magic prefix
const MagicSize = 4

// WASMMagic is the WebAssembly binary preamble
const WASMMagic = "\x00asm"

// CheckModuleMagic is the last gate before decrypted bytes are handed to the
// runtime: plaintext must start with magic. A nil magic selects WASMMagic.
func CheckModuleMagic(plaintext, magic []byte) error {
	if magic == nil {
		magic = []byte(WASMMagic)
	}
	if len(magic) != MagicSize {
		return fmt.Errorf("%w: magic must be %d bytes", apperrors.ErrIntegrityFailed, MagicSize)
	}
	if len(plaintext) < MagicSize {
		return fmt.Errorf("%w: module is %d bytes", apperrors.ErrIntegrityFailed, len(plaintext))
	}
	if !bytes.Equal(plaintext[:MagicSize], magic) {
		return fmt.Errorf("%w: unexpected module header", apperrors.ErrIntegrityFailed)
	}
	return nil
}
