package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
)

// bindingDomain separates machine-binding digests from other sha256 uses
const bindingDomain = "costpilot-machine-binding-v1"

// FingerprintSource supplies the host factors that make up a machine binding.
// Fields are replaceable so tests can pin the host identity.
type FingerprintSource struct {
	Hostname   func() (string, error)
	MACAddress func() (string, error)
}

// DefaultFingerprintSource reads the real hostname and primary MAC address
func DefaultFingerprintSource() FingerprintSource {
	return FingerprintSource{
		Hostname:   hostname,
		MACAddress: primaryMACAddress,
	}
}

// MachineBinding returns a 32-byte digest identifying this host, suitable for
// WithMachineBinding. Both factors are required; a host that cannot report
// them cannot produce a stable binding.
func (fs FingerprintSource) MachineBinding() ([]byte, error) {
	host, err := fs.Hostname()
	if err != nil {
		return nil, fmt.Errorf("machine binding: %w", err)
	}
	mac, err := fs.MACAddress()
	if err != nil {
		return nil, fmt.Errorf("machine binding: %w", err)
	}

	factors := []string{bindingDomain, host, mac, runtime.GOOS, runtime.GOARCH}
	sum := sha256.Sum256([]byte(strings.Join(factors, "|")))

	slog.Debug("Machine binding computed",
		slog.String("hostname", host),
		slog.String("os", runtime.GOOS),
		slog.String("platform", runtime.GOARCH),
	)
	return sum[:], nil
}

// hostname returns the normalized machine hostname
func hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", errors.New("hostname is empty")
	}
	return name, nil
}

// primaryMACAddress returns the first non-loopback, up interface with a
// hardware address
func primaryMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}
	return "", errors.New("no valid MAC address found")
}
