package platform

import (
	"fmt"
	"os"
	"strings"

	"github.com/denisbrodbeck/machineid"
)

// machineIDLength is how much of the hashed machine id names a machine
const machineIDLength = 12

// MachineName identifies this machine in the sync state. It is the
// lower-cased host name, or a stable id derived from the OS machine id
// when the host name is unavailable.
func MachineName() (string, error) {
	if host, err := os.Hostname(); err == nil {
		if name := NormalizeMachineName(host); name != "" {
			return name, nil
		}
	}

	id, err := machineid.ProtectedID("reposync")
	if err != nil {
		return "", fmt.Errorf("failed to determine machine name: %w", err)
	}
	if len(id) > machineIDLength {
		id = id[:machineIDLength]
	}
	return id, nil
}

// NormalizeMachineName lower-cases and trims a machine name so the same
// host always maps to the same side
func NormalizeMachineName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
