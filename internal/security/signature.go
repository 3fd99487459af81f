package security

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"filippo.io/edwards25519"

	apperrors "costpilot/internal/errors"
)

// Verifier checks Ed25519 signatures against a single trust anchor.
// The key is injected at construction so tests can substitute their own pair.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier creates a Verifier for a 32-byte Ed25519 public key.
// Keys that do not decode canonically or have small order are rejected.
func NewVerifier(publicKey []byte) (*Verifier, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d",
			apperrors.ErrSignatureInvalid, ed25519.PublicKeySize, len(publicKey))
	}
	if !isStrictPoint(publicKey) {
		return nil, fmt.Errorf("%w: public key is not a canonical prime-order point", apperrors.ErrSignatureInvalid)
	}

	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, publicKey)
	return &Verifier{key: key}, nil
}

// PublicKey returns a copy of the trust anchor
func (v *Verifier) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(v.key))
	copy(out, v.key)
	return out
}

// Verify checks signature over message. Any problem yields ErrSignatureInvalid.
func (v *Verifier) Verify(message, signature []byte) error {
	if v == nil {
		return apperrors.ErrSignatureInvalid
	}
	return VerifyStrict(v.key, message, signature)
}

// VerifyStrict performs non-malleable Ed25519 verification. Sizes are checked
// before any curve arithmetic. On top of crypto/ed25519 (which already
// rejects a non-canonical S) it rejects small-order or non-canonical public
// keys and R components.
func VerifyStrict(publicKey, message, signature []byte) error {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return apperrors.ErrSignatureInvalid
	}
	if !isStrictPoint(publicKey) || !isStrictPoint(signature[:32]) {
		return apperrors.ErrSignatureInvalid
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, signature) {
		return apperrors.ErrSignatureInvalid
	}
	return nil
}

// isStrictPoint reports whether enc is the canonical encoding of a curve
// point outside the small-order subgroup.
func isStrictPoint(enc []byte) bool {
	p, err := new(edwards25519.Point).SetBytes(enc)
	if err != nil {
		return false
	}
	// SetBytes accepts non-canonical y coordinates; re-encoding catches them.
	if !bytes.Equal(p.Bytes(), enc) {
		return false
	}
	cofactored := new(edwards25519.Point).MultByCofactor(p)
	return cofactored.Equal(edwards25519.NewIdentityPoint()) != 1
}
