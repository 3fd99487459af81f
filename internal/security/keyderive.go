package security

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	apperrors "costpilot/internal/errors"
)

// DefaultKDFInfo is the versioned HKDF info string for Pro Engine keys.
// Changing it invalidates every bundle built against the previous value.
const DefaultKDFInfo = "costpilot-pro-engine-v1"

// DefaultBundleSalt is used when bundle metadata carries no salt
const DefaultBundleSalt = "costpilot-pro-engine-salt-v1"

// KeyDeriver derives the symmetric bundle key from license material with
// HKDF-SHA256.
type KeyDeriver struct {
	info        []byte
	defaultSalt []byte
	binding     []byte
}

// DeriverOption configures a KeyDeriver
type DeriverOption func(*KeyDeriver)

// WithInfo overrides the HKDF info string
func WithInfo(info string) DeriverOption {
	return func(d *KeyDeriver) { d.info = []byte(info) }
}

// WithDefaultSalt overrides the salt used when none is supplied
func WithDefaultSalt(salt []byte) DeriverOption {
	return func(d *KeyDeriver) { d.defaultSalt = append([]byte(nil), salt...) }
}

// WithMachineBinding appends binding to the input keying material, tying
// derived keys to one host. An empty binding is ignored.
func WithMachineBinding(binding []byte) DeriverOption {
	return func(d *KeyDeriver) { d.binding = append([]byte(nil), binding...) }
}

// NewKeyDeriver creates a deriver with the default info and salt
func NewKeyDeriver(opts ...DeriverOption) *KeyDeriver {
	d := &KeyDeriver{
		info:        []byte(DefaultKDFInfo),
		defaultSalt: []byte(DefaultBundleSalt),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Derive expands licenseKey || email || binding into a 32-byte key.
// A nil or empty salt selects the default salt. The caller owns the returned
// buffer and must Destroy it.
func (d *KeyDeriver) Derive(licenseKey, email string, salt []byte) (*SecureBuffer, error) {
	if licenseKey == "" {
		return nil, fmt.Errorf("%w: license key is empty", apperrors.ErrKeyDerivation)
	}
	if len(salt) == 0 {
		salt = d.defaultSalt
	}

	ikm := make([]byte, 0, len(licenseKey)+len(email)+len(d.binding))
	ikm = append(ikm, licenseKey...)
	ikm = append(ikm, email...)
	ikm = append(ikm, d.binding...)
	defer Zeroize(ikm)

	key := NewSecureBuffer(KeySize)
	reader := hkdf.New(sha256.New, ikm, salt, d.info)
	if _, err := io.ReadFull(reader, key.Bytes()); err != nil {
		key.Destroy()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrKeyDerivation, err)
	}
	return key, nil
}
