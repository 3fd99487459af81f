// Package license validates signed CostPilot license records.
//
// # License Record
//
// A license is a JSON file with five string fields:
//
//	{
//	  "email": "ops@example.com",
//	  "license_key": "COST-PRO-ABCD-2345",
//	  "expires": "2027-01-01T00:00:00Z",
//	  "issuer": "costpilot",
//	  "signature": "<128 hex chars>"
//	}
//
// Unknown fields are ignored. Records are never written back by this package.
//
// # Canonical Message
//
// The vendor signs the exact byte string
//
//	email|license_key|expires|issuer
//
// with no escaping of embedded separators. This format is a compatibility
// contract with every license ever issued; see CanonicalMessage.
//
// # Validation Flow
//
// Validator.Validate runs these checks in order and stops at the first
// failure:
//
//  1. Record the attempt with the rate limiter (always, even if later checks fail)
//  2. All fields present and non-empty
//  3. Not expired (expires == now is still valid)
//  4. Issuer is in the trusted allowlist
//  5. Strict Ed25519 signature over the canonical message
//
// The public key is injected through a security.Verifier, so tests sign with
// their own key pair and production uses config.LicensePublicKey.
//
// # Observability
//
// Every validation runs in a "license.validate" span and feeds the
// license_validation_* metrics. Log lines carry a masked license key and
// never the signature.
package license
