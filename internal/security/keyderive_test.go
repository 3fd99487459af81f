package security

import (
	"bytes"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"

	apperrors "costpilot/internal/errors"
)

func expectedKey(t *testing.T, ikm, salt []byte, info string) []byte {
	t.Helper()
	out := make([]byte, KeySize)
	_, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(info)), out)
	require.NoError(t, err)
	return out
}

func TestDeriveMatchesHKDF(t *testing.T) {
	d := NewKeyDeriver()
	salt := []byte{0x01, 0x02, 0x03}

	key, err := d.Derive("COST-PRO-0001", "ops@example.com", salt)
	require.NoError(t, err)
	defer key.Destroy()

	assert.Equal(t, KeySize, key.Len())
	assert.Equal(t, expectedKey(t, []byte("COST-PRO-0001ops@example.com"), salt, DefaultKDFInfo), key.Bytes())
}

func TestDeriveDefaultSalt(t *testing.T) {
	d := NewKeyDeriver()
	want := expectedKey(t, []byte("COST-PRO-0001ops@example.com"), []byte(DefaultBundleSalt), DefaultKDFInfo)

	for name, salt := range map[string][]byte{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			key, err := d.Derive("COST-PRO-0001", "ops@example.com", salt)
			require.NoError(t, err)
			defer key.Destroy()
			assert.Equal(t, want, key.Bytes())
		})
	}
}

func TestDeriveDeterministic(t *testing.T) {
	d := NewKeyDeriver()
	a, err := d.Derive("K", "a@example.com", nil)
	require.NoError(t, err)
	b, err := d.Derive("K", "a@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestDeriveInputsChangeKey(t *testing.T) {
	d := NewKeyDeriver()
	base, err := d.Derive("COST-1", "a@example.com", []byte("salt"))
	require.NoError(t, err)

	variants := map[string]func() (*SecureBuffer, error){
		"license key": func() (*SecureBuffer, error) { return d.Derive("COST-2", "a@example.com", []byte("salt")) },
		"email":       func() (*SecureBuffer, error) { return d.Derive("COST-1", "b@example.com", []byte("salt")) },
		"salt":        func() (*SecureBuffer, error) { return d.Derive("COST-1", "a@example.com", []byte("pepper")) },
		"info": func() (*SecureBuffer, error) {
			return NewKeyDeriver(WithInfo("costpilot-pro-engine-v2")).Derive("COST-1", "a@example.com", []byte("salt"))
		},
		"binding": func() (*SecureBuffer, error) {
			return NewKeyDeriver(WithMachineBinding([]byte("host-a"))).Derive("COST-1", "a@example.com", []byte("salt"))
		},
	}

	for name, derive := range variants {
		t.Run(name, func(t *testing.T) {
			key, err := derive()
			require.NoError(t, err)
			assert.NotEqual(t, base.Bytes(), key.Bytes())
		})
	}
}

func TestDeriveConcatenatesInputs(t *testing.T) {
	// The key material is a plain concatenation, so moving bytes across the
	// key/email boundary yields the same key.
	d := NewKeyDeriver()
	a, err := d.Derive("COST-1", "x@example.com", nil)
	require.NoError(t, err)
	b, err := d.Derive("COST-1x", "@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestDeriveMachineBinding(t *testing.T) {
	binding := bytes.Repeat([]byte{0xbe}, 32)
	d := NewKeyDeriver(WithMachineBinding(binding))

	key, err := d.Derive("COST-1", "a@example.com", nil)
	require.NoError(t, err)

	ikm := append([]byte("COST-1a@example.com"), binding...)
	assert.Equal(t, expectedKey(t, ikm, []byte(DefaultBundleSalt), DefaultKDFInfo), key.Bytes())

	// Empty binding behaves like no binding.
	plain, err := NewKeyDeriver().Derive("COST-1", "a@example.com", nil)
	require.NoError(t, err)
	empty, err := NewKeyDeriver(WithMachineBinding(nil)).Derive("COST-1", "a@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, plain.Bytes(), empty.Bytes())
}

func TestDeriveCustomDefaultSalt(t *testing.T) {
	d := NewKeyDeriver(WithDefaultSalt([]byte("other-salt")))
	key, err := d.Derive("COST-1", "a@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, expectedKey(t, []byte("COST-1a@example.com"), []byte("other-salt"), DefaultKDFInfo), key.Bytes())
}

func TestDeriveEmptyLicenseKey(t *testing.T) {
	key, err := NewKeyDeriver().Derive("", "a@example.com", nil)
	assert.Nil(t, key)
	assert.ErrorIs(t, err, apperrors.ErrKeyDerivation)
}
