// Package config provides configuration for the CostPilot Pro gate.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. costpilot.yaml in the working directory or $XDG_CONFIG_HOME/costpilot
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern COSTPILOT_* for namespacing:
//
//	COSTPILOT_LICENSE_PATH=/etc/costpilot/license.json
//	COSTPILOT_LICENSE_DEBUG=true
//	COSTPILOT_RATE_LIMIT_MAX_ATTEMPTS=10
//	COSTPILOT_RATE_LIMIT_WINDOW=60s
//	COSTPILOT_BUNDLE_PATH=/opt/costpilot/pro-engine.bundle
//	COSTPILOT_LOGGING_LEVEL=debug
//
// # Paths
//
// Default file locations follow the XDG base directory layout of the
// current user (see DefaultPaths). The rate-limit state file lives under the
// state directory so that it survives across CLI invocations.
//
// # Trust Anchors
//
// LicensePublicKey and BundlePublicKey return the embedded Ed25519 keys.
// They are values handed to verifiers at construction, never consulted
// implicitly by the verification code.
package config
