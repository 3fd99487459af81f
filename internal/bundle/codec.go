// Package bundle reads the encrypted Pro Engine bundle.
//
// Layout, big-endian:
//
//	[4B metadata_len][metadata JSON][12B nonce][ciphertext, at least 1B][64B signature]
//
// The signature covers metadata || nonce || ciphertext. The metadata bytes
// are also the AEAD associated data, so they are kept exactly as read and
// never re-serialized.
package bundle

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "costpilot/internal/errors"
	"costpilot/internal/security"
)

const (
	lengthPrefixSize = 4
	// MinSize is the smallest frame that can hold every fixed-size part
	MinSize = lengthPrefixSize + security.NonceSize + ed25519.SignatureSize
)

// AlgAES256GCM is the only supported metadata algorithm
const AlgAES256GCM = "AES256-GCM"

// Metadata is the parsed bundle header
type Metadata struct {
	Alg               string `json:"alg"`
	Salt              string `json:"salt,omitempty"`
	HeuristicsVersion string `json:"heuristics_version,omitempty"`
}

// SaltBytes decodes the hex salt. An absent salt returns nil.
func (m Metadata) SaltBytes() ([]byte, error) {
	if m.Salt == "" {
		return nil, nil
	}
	salt, err := hex.DecodeString(m.Salt)
	if err != nil {
		return nil, apperrors.NewFormatError("metadata salt is not hex", err)
	}
	return salt, nil
}

// EncryptedBundle is a parsed bundle frame
type EncryptedBundle struct {
	Metadata      Metadata
	MetadataBytes []byte
	Nonce         []byte
	Ciphertext    []byte
	Signature     []byte
}

// Parse splits a bundle frame. The returned slices are copies and do not
// alias data.
func Parse(data []byte) (*EncryptedBundle, error) {
	if len(data) < MinSize {
		return nil, apperrors.NewFormatError(
			fmt.Sprintf("bundle is %d bytes, need at least %d", len(data), MinSize), nil)
	}

	metaLen := uint64(binary.BigEndian.Uint32(data[:lengthPrefixSize]))
	total := uint64(len(data))
	fixed := uint64(lengthPrefixSize + security.NonceSize + ed25519.SignatureSize)
	if metaLen > total-fixed {
		return nil, apperrors.NewFormatError(
			fmt.Sprintf("metadata length %d overruns %d-byte bundle", metaLen, total), nil)
	}
	if metaLen+fixed == total {
		return nil, apperrors.NewFormatError("bundle has no ciphertext", nil)
	}

	metaEnd := lengthPrefixSize + int(metaLen)
	nonceEnd := metaEnd + security.NonceSize
	sigStart := len(data) - ed25519.SignatureSize

	metaBytes := data[lengthPrefixSize:metaEnd]
	meta, err := parseMetadata(metaBytes)
	if err != nil {
		return nil, err
	}

	return &EncryptedBundle{
		Metadata:      meta,
		MetadataBytes: bytes.Clone(metaBytes),
		Nonce:         bytes.Clone(data[metaEnd:nonceEnd]),
		Ciphertext:    bytes.Clone(data[nonceEnd:sigStart]),
		Signature:     bytes.Clone(data[sigStart:]),
	}, nil
}

// parseMetadata requires a JSON object. Unknown keys are ignored.
func parseMetadata(raw []byte) (Metadata, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Metadata{}, apperrors.NewFormatError("metadata is not a JSON object", err)
	}
	if obj == nil {
		return Metadata{}, apperrors.NewFormatError("metadata is not a JSON object", nil)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, apperrors.NewFormatError("metadata has invalid field types", err)
	}
	return meta, nil
}

// Encode frames b using its MetadataBytes verbatim
func Encode(b *EncryptedBundle) ([]byte, error) {
	if b == nil {
		return nil, errors.New("nil bundle")
	}
	if len(b.Nonce) != security.NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", security.NonceSize, len(b.Nonce))
	}
	if len(b.Signature) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(b.Signature))
	}
	if len(b.Ciphertext) == 0 {
		return nil, errors.New("ciphertext must not be empty")
	}
	if uint64(len(b.MetadataBytes)) > uint64(^uint32(0)) {
		return nil, errors.New("metadata too large")
	}

	out := make([]byte, 0, lengthPrefixSize+len(b.MetadataBytes)+len(b.Nonce)+len(b.Ciphertext)+len(b.Signature))
	out = binary.BigEndian.AppendUint32(out, uint32(len(b.MetadataBytes)))
	out = append(out, b.MetadataBytes...)
	out = append(out, b.Nonce...)
	out = append(out, b.Ciphertext...)
	out = append(out, b.Signature...)
	return out, nil
}

// SignedRegion returns metadata || nonce || ciphertext
func (b *EncryptedBundle) SignedRegion() []byte {
	region := make([]byte, 0, len(b.MetadataBytes)+len(b.Nonce)+len(b.Ciphertext))
	region = append(region, b.MetadataBytes...)
	region = append(region, b.Nonce...)
	return append(region, b.Ciphertext...)
}

// VerifySignature checks the bundle signature against verifier
func VerifySignature(b *EncryptedBundle, verifier *security.Verifier) error {
	if b == nil {
		return apperrors.ErrSignatureInvalid
	}
	return verifier.Verify(b.SignedRegion(), b.Signature)
}

// Seal encrypts plaintext under key with metadata as associated data and
// signs the result. It is the vendor-side inverse of Loader.LoadBytes.
func Seal(metadata, nonce, key, plaintext []byte, sign func(region []byte) []byte) (*EncryptedBundle, error) {
	meta, err := parseMetadata(metadata)
	if err != nil {
		return nil, err
	}
	ciphertext, err := security.Encrypt(key, nonce, plaintext, metadata)
	if err != nil {
		return nil, err
	}

	b := &EncryptedBundle{
		Metadata:      meta,
		MetadataBytes: bytes.Clone(metadata),
		Nonce:         bytes.Clone(nonce),
		Ciphertext:    ciphertext,
	}
	b.Signature = sign(b.SignedRegion())
	return b, nil
}
