package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Moment GATT identifiers
const (
	// FilterServiceUUID is advertised by every Moment and used to filter scans.
	FilterServiceUUID = "00009B69-58FD-0A19-9B69-4CF88FC7B8DA"

	// DataServiceUUID is the primary service that carries the code upload channel.
	DataServiceUUID = "00009B6A-58FD-0A19-9B69-4CF88FC7B8DA"

	// WriteCharacteristicUUID receives uploaded code chunks.
	WriteCharacteristicUUID = "00009B6B-58FD-0A19-9B69-4CF88FC7B8DA"
)

const sigBaseSuffix = "00001000800000805f9b34fb"

var hexOnly = regexp.MustCompile(`^[0-9a-f]+$`)

// NormalizeUUID converts a UUID string to the internal form (lowercase, no dashes).
// Strips 0x prefix if present. For full 128-bit UUIDs in Bluetooth SIG base format
// (0000xxxx-0000-1000-8000-00805f9b34fb), extracts the 16-bit short form (xxxx).
// Returns an empty string for malformed input.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if !hexOnly.MatchString(u) {
		return ""
	}

	switch len(u) {
	case 4, 8:
		return u
	case 32:
		if strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
			return u[4:8]
		}
		return u
	default:
		return ""
	}
}

// EqualUUID reports whether two UUID strings name the same identifier
func EqualUUID(a, b string) bool {
	na := NormalizeUUID(a)
	return na != "" && na == NormalizeUUID(b)
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}
