// Package shared holds helpers used across the CostPilot packages.
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//   - Deterministic Ed25519 key pairs (seed of 32 bytes 0x42)
//   - Signed license fixtures and temp-file writers
//   - A buffered slog handler for asserting on log output
//
// testutil never imports the domain packages, so their internal tests can
// depend on it without an import cycle.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    kp := testutil.TestKeyPair()
//	    path := testutil.WriteLicense(t, testutil.ValidTestLicense(time.Now()))
//	    // validate path against kp.Public
//	}
package shared
