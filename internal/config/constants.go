package config

import (
	"slices"
	"time"
)

// Application constants
const (
	AppName    = "costpilot"
	AppVersion = "1.4.0"

	// File names inside the per-user directories
	LicenseFileName      = "license.json"
	AttemptStateFileName = "license_attempts.json"
	BundleFileName       = "pro-engine.bundle"
	ConfigFileName       = "costpilot.yaml"
	LogFileName          = "costpilot.log"

	// License check throttling
	DefaultMaxAttempts   = 10
	DefaultAttemptWindow = 60 * time.Second
	DefaultLockTimeout   = 200 * time.Millisecond

	// Bundles larger than this are rejected before parsing
	DefaultMaxBundleSize int64 = 64 << 20
)

// trustedIssuers is the production issuer allowlist
var trustedIssuers = []string{"costpilot"}

// TrustedIssuers returns a copy of the issuers accepted by default.
// Validation rejects any other issuer value.
func TrustedIssuers() []string {
	return slices.Clone(trustedIssuers)
}
