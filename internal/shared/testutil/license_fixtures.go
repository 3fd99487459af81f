package testutil

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestSeed is the Ed25519 seed used by license fixtures: 32 bytes of 0x42
var TestSeed = bytes.Repeat([]byte{42}, ed25519.SeedSize)

// TestIssuer is the trusted issuer used by fixtures
const TestIssuer = "test-costpilot"

// KeyPair is a signing key pair for fixtures
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// NewKeyPair derives a key pair from a 32-byte seed
func NewKeyPair(seed []byte) KeyPair {
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{
		Private: priv,
		Public:  priv.Public().(ed25519.PublicKey),
	}
}

// TestKeyPair returns the key pair derived from TestSeed
func TestKeyPair() KeyPair {
	return NewKeyPair(TestSeed)
}

// Sign signs message and returns the raw 64-byte signature
func (kp KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// SignHex signs message and returns the signature as lowercase hex
func (kp KeyPair) SignHex(message string) string {
	return hex.EncodeToString(kp.Sign([]byte(message)))
}

// LicenseFields mirrors the license file layout. Kept independent of the
// license package so that package's own tests can use it.
type LicenseFields struct {
	Email      string `json:"email"`
	LicenseKey string `json:"license_key"`
	Expires    string `json:"expires"`
	Signature  string `json:"signature"`
	Issuer     string `json:"issuer"`
}

// Message returns the canonical signed message for the fields
func (f LicenseFields) Message() string {
	return f.Email + "|" + f.LicenseKey + "|" + f.Expires + "|" + f.Issuer
}

// SignedLicense returns license fields expiring at expires and signed by kp
func (kp KeyPair) SignedLicense(email, licenseKey string, expires time.Time, issuer string) LicenseFields {
	f := LicenseFields{
		Email:      email,
		LicenseKey: licenseKey,
		Expires:    expires.UTC().Format(time.RFC3339),
		Issuer:     issuer,
	}
	f.Signature = kp.SignHex(f.Message())
	return f
}

// ValidTestLicense returns a license signed with TestKeyPair that expires 30
// days after now.
func ValidTestLicense(now time.Time) LicenseFields {
	return TestKeyPair().SignedLicense("test@example.com", "COST-PRO-TEST-0042", now.Add(30*24*time.Hour), TestIssuer)
}

// JSON encodes the fields as a license file
func (f LicenseFields) JSON(t testing.TB) []byte {
	t.Helper()
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("marshal license: %v", err)
	}
	return data
}

// WriteFile writes data to name under a fresh temp directory and returns the path
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// WriteLicense writes f as license.json in a fresh temp directory
func WriteLicense(t testing.TB, f LicenseFields) string {
	t.Helper()
	return WriteFile(t, "license.json", f.JSON(t))
}
