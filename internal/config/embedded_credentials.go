package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Embedded trust anchors. Release builds override them with
//
//	-ldflags "-X costpilot/internal/config.licensePublicKeyHex=... -X costpilot/internal/config.bundlePublicKeyHex=..."
//
// Rotating either key is a breaking change: every artifact signed under the
// old key stops verifying.
var (
	licensePublicKeyHex = "7d8babec053f789c716ff8c0fca59dae7576a16c6f68d9d0601a340bae332c45"
	bundlePublicKeyHex  = "f93eeb6048030517211841e592d024cf42d8b713b11a41fcfe39bc821c1bf28e"
)

// LicensePublicKey returns the Ed25519 key that signs license records
func LicensePublicKey() (ed25519.PublicKey, error) {
	return decodePublicKey("license", licensePublicKeyHex)
}

// BundlePublicKey returns the Ed25519 key that signs Pro Engine bundles
func BundlePublicKey() (ed25519.PublicKey, error) {
	return decodePublicKey("bundle", bundlePublicKeyHex)
}

func decodePublicKey(name, value string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid embedded %s public key: %w", name, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid embedded %s public key: %d bytes", name, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
