package security

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"runtime"

	apperrors "costpilot/internal/errors"
)

const (
	// KeySize is the AES-256 key size in bytes
	KeySize = 32
	// NonceSize is the standard 96-bit GCM nonce
	NonceSize = 12
	// TagSize is the 128-bit GCM authentication tag appended to ciphertexts
	TagSize = 16
)

// SecureBuffer holds secret bytes (derived keys, key material) and overwrites
// them when destroyed. Callers pair every constructor with a deferred
// Destroy so early returns and panics still clear the memory.
type SecureBuffer struct {
	data      []byte
	destroyed bool
}

// NewSecureBuffer allocates a zeroed buffer of the given size
func NewSecureBuffer(size int) *SecureBuffer {
	return &SecureBuffer{data: make([]byte, size)}
}

// Bytes returns the underlying slice, or nil once destroyed.
// The slice must not be retained past Destroy.
func (sb *SecureBuffer) Bytes() []byte {
	if sb == nil || sb.destroyed {
		return nil
	}
	return sb.data
}

// Len returns the buffer size, 0 once destroyed
func (sb *SecureBuffer) Len() int {
	return len(sb.Bytes())
}

// Destroyed reports whether Destroy has run
func (sb *SecureBuffer) Destroyed() bool {
	return sb == nil || sb.destroyed
}

// Destroy overwrites the buffer with zeros. Safe to call more than once and
// on a nil receiver.
func (sb *SecureBuffer) Destroy() {
	if sb == nil || sb.destroyed {
		return
	}
	Zeroize(sb.data)
	sb.data = nil
	sb.destroyed = true
}

// Zeroize overwrites b with zeros. KeepAlive stops the compiler from
// treating the clear as a dead store.
func Zeroize(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// Decrypt opens an AES-256-GCM ciphertext (tag appended) with aad as the
// associated data. Every failure, including bad key or nonce sizes, returns
// ErrDecryptionFailed so callers cannot tell a wrong key from tampered data.
func Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, apperrors.ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, apperrors.ErrDecryptionFailed
	}
	return plaintext, nil
}

// Encrypt seals plaintext with AES-256-GCM. It exists for the vendor build
// side and for test fixtures; the runtime path only decrypts.
func Encrypt(key, nonce, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

func newGCM(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
