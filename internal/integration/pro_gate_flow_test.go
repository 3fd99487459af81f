package integration

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"costpilot/internal/bundle"
	"costpilot/internal/edition"
	apperrors "costpilot/internal/errors"
	"costpilot/internal/license"
	"costpilot/internal/ratelimit"
	"costpilot/internal/security"
	"costpilot/internal/shared/testutil"
)

var (
	bundleKeys = testutil.NewKeyPair(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	module     = []byte("\x00asm\x01\x00\x00\x00pro-engine")
)

// ProGateFlowSuite drives the license -> edition -> bundle path the way the
// product does, with real files and a persisted attempt counter.
type ProGateFlowSuite struct {
	suite.Suite

	dir       string
	clock     *quartz.Mock
	limiter   *ratelimit.FileLimiter
	validator *license.Validator
	detector  *edition.Detector
	loader    *bundle.Loader
	lic       testutil.LicenseFields
}

func TestProGateFlowSuite(t *testing.T) {
	suite.Run(t, new(ProGateFlowSuite))
}

func (s *ProGateFlowSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.clock = quartz.NewMock(s.T())
	s.clock.Set(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.limiter = ratelimit.NewFileLimiter(filepath.Join(s.dir, "state", "license_attempts.json"),
		ratelimit.WithMaxAttempts(5),
		ratelimit.WithWindow(time.Minute),
		ratelimit.WithClock(s.clock),
		ratelimit.WithLogger(logger),
	)

	licenseVerifier, err := security.NewVerifier(testutil.TestKeyPair().Public)
	s.Require().NoError(err)
	s.validator, err = license.NewValidator(licenseVerifier, s.limiter,
		license.WithTrustedIssuers(testutil.TestIssuer),
		license.WithClock(s.clock),
		license.WithLogger(logger),
	)
	s.Require().NoError(err)
	s.detector = edition.NewDetector(s.validator, logger, true)

	bundleVerifier, err := security.NewVerifier(bundleKeys.Public)
	s.Require().NoError(err)
	s.loader, err = bundle.NewLoader(bundleVerifier, security.NewKeyDeriver(), bundle.WithLogger(logger))
	s.Require().NoError(err)

	s.lic = testutil.ValidTestLicense(s.clock.Now())
}

func (s *ProGateFlowSuite) writeLicense(f testutil.LicenseFields) string {
	path := filepath.Join(s.dir, "license.json")
	s.Require().NoError(os.WriteFile(path, f.JSON(s.T()), 0600))
	return path
}

func (s *ProGateFlowSuite) writeBundle(f testutil.LicenseFields, metadata string) string {
	key, err := security.NewKeyDeriver().Derive(f.LicenseKey, f.Email, nil)
	s.Require().NoError(err)
	defer key.Destroy()

	b, err := bundle.Seal([]byte(metadata), bytes.Repeat([]byte{0x09}, security.NonceSize), key.Bytes(), module, bundleKeys.Sign)
	s.Require().NoError(err)
	data, err := bundle.Encode(b)
	s.Require().NoError(err)

	path := filepath.Join(s.dir, "pro-engine.bundle")
	s.Require().NoError(os.WriteFile(path, data, 0600))
	return path
}

const defaultMeta = `{"alg":"AES256-GCM","heuristics_version":"2026.10"}`

func (s *ProGateFlowSuite) TestPremiumUnlocksBundle() {
	ctx := context.Background()
	res := s.detector.Detect(ctx, s.writeLicense(s.lic))
	s.Require().True(res.Premium(), "reason: %s", res.Reason)

	out, err := s.loader.Load(ctx, s.writeBundle(s.lic, defaultMeta), res.Record)
	s.Require().NoError(err)
	s.Equal(module, out)

	state, err := s.limiter.Current()
	s.Require().NoError(err)
	s.Equal(1, state.AttemptCount)
}

func (s *ProGateFlowSuite) TestExpiredLicenseNeverReachesBundle() {
	expired := testutil.TestKeyPair().SignedLicense(s.lic.Email, s.lic.LicenseKey, s.clock.Now().Add(-time.Second), s.lic.Issuer)
	res := s.detector.Detect(context.Background(), s.writeLicense(expired))

	s.Equal(edition.Free, res.Edition)
	s.Equal("expired", res.Reason)
	s.Nil(res.Record)
}

func (s *ProGateFlowSuite) TestLicenseExpiresWhileRunning() {
	path := s.writeLicense(s.lic)
	s.True(s.detector.Detect(context.Background(), path).Premium())

	s.clock.Advance(31 * 24 * time.Hour)
	res := s.detector.Detect(context.Background(), path)
	s.Equal(edition.Free, res.Edition)
	s.ErrorIs(res.Err, apperrors.ErrExpired)
}

func (s *ProGateFlowSuite) TestBruteForceIsThrottledAcrossDetectors() {
	ctx := context.Background()
	forged := s.lic
	forged.Signature = testutil.NewKeyPair(bytes.Repeat([]byte{1}, ed25519.SeedSize)).SignHex(forged.Message())
	forgedPath := s.writeLicense(forged)

	for i := 0; i < 5; i++ {
		res := s.detector.Detect(ctx, forgedPath)
		s.Require().Equal("signature_invalid", res.Reason, "attempt %d", i+1)
	}

	// A second process sharing the state file sees the same counter, and a
	// valid license is refused until the window passes.
	other := ratelimit.NewFileLimiter(s.limiter.Path(), ratelimit.WithMaxAttempts(5), ratelimit.WithClock(s.clock))
	otherValidator, err := license.NewValidator(mustVerifier(s.T(), testutil.TestKeyPair().Public), other,
		license.WithClock(s.clock), license.WithTrustedIssuers(testutil.TestIssuer))
	s.Require().NoError(err)

	validPath := s.writeLicense(s.lic)
	res := edition.NewDetector(otherValidator, nil, true).Detect(ctx, validPath)
	s.Equal("rate_limited", res.Reason)

	var rl *apperrors.RateLimitExceededError
	s.Require().ErrorAs(res.Err, &rl)
	s.Equal(5, rl.Limit)
	s.Positive(rl.RetryAfter)

	s.clock.Advance(time.Minute)
	s.True(s.detector.Detect(ctx, validPath).Premium())
}

func (s *ProGateFlowSuite) TestBundleForOtherCustomerFails() {
	ctx := context.Background()
	res := s.detector.Detect(ctx, s.writeLicense(s.lic))
	s.Require().True(res.Premium())

	someoneElse := testutil.ValidTestLicense(s.clock.Now())
	someoneElse.Email = "other@example.com"
	out, err := s.loader.Load(ctx, s.writeBundle(someoneElse, defaultMeta), res.Record)
	s.Nil(out)
	s.ErrorIs(err, apperrors.ErrDecryptionFailed)
}

func (s *ProGateFlowSuite) TestBundleSignedByLicenseKeyIsRejected() {
	// Keys are not interchangeable: a bundle signed with the license key
	// fails bundle verification.
	ctx := context.Background()
	res := s.detector.Detect(ctx, s.writeLicense(s.lic))
	s.Require().True(res.Premium())

	key, err := security.NewKeyDeriver().Derive(s.lic.LicenseKey, s.lic.Email, nil)
	s.Require().NoError(err)
	defer key.Destroy()
	b, err := bundle.Seal([]byte(defaultMeta), bytes.Repeat([]byte{0x09}, security.NonceSize), key.Bytes(), module, testutil.TestKeyPair().Sign)
	s.Require().NoError(err)
	data, err := bundle.Encode(b)
	s.Require().NoError(err)

	_, err = s.loader.LoadBytes(ctx, data, res.Record)
	s.ErrorIs(err, apperrors.ErrSignatureInvalid)
}

func mustVerifier(t testing.TB, key []byte) *security.Verifier {
	t.Helper()
	v, err := security.NewVerifier(key)
	require.NoError(t, err)
	return v
}

func BenchmarkValidate(b *testing.B) {
	v, err := license.NewValidator(mustVerifier(b, testutil.TestKeyPair().Public), ratelimit.Noop{},
		license.WithTrustedIssuers(testutil.TestIssuer),
		license.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(b, err)

	f := testutil.ValidTestLicense(time.Now())
	rec := &license.Record{Email: f.Email, LicenseKey: f.LicenseKey, Expires: f.Expires, Signature: f.Signature, Issuer: f.Issuer}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := v.Validate(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLoadBytes(b *testing.B) {
	loader, err := bundle.NewLoader(mustVerifier(b, bundleKeys.Public), nil,
		bundle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(b, err)

	f := testutil.ValidTestLicense(time.Now())
	rec := &license.Record{Email: f.Email, LicenseKey: f.LicenseKey, Expires: f.Expires, Signature: f.Signature, Issuer: f.Issuer}

	key, err := security.NewKeyDeriver().Derive(rec.LicenseKey, rec.Email, nil)
	require.NoError(b, err)
	sealed, err := bundle.Seal([]byte(defaultMeta), bytes.Repeat([]byte{0x09}, security.NonceSize), key.Bytes(), bytes.Repeat(module, 1024), bundleKeys.Sign)
	require.NoError(b, err)
	key.Destroy()
	data, err := bundle.Encode(sealed)
	require.NoError(b, err)

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.LoadBytes(ctx, data, rec); err != nil {
			b.Fatal(err)
		}
	}
}
