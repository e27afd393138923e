package device

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// DefaultPattern maps drive ordinals to Linux disk nodes.
const DefaultPattern = "/dev/sd%c"

// maxOrdinal bounds letter-based patterns to a..z.
const maxOrdinal = 25

// Resolve turns a drive ordinal into a device handle. An explicit path wins
// over the pattern. The pattern takes %c for a letter ('a'+ordinal) or %d for
// the ordinal itself.
func Resolve(ordinal int, explicitPath, pattern string) (types.DeviceHandle, error) {
	if ordinal < 0 {
		return types.DeviceHandle{}, fmt.Errorf("drive ordinal must not be negative, got %d", ordinal)
	}
	if explicitPath != "" {
		return types.DeviceHandle{Ordinal: ordinal, Path: explicitPath}, nil
	}
	if pattern == "" {
		pattern = DefaultPattern
	}

	switch {
	case strings.Contains(pattern, "%c"):
		if ordinal > maxOrdinal {
			return types.DeviceHandle{}, fmt.Errorf("drive ordinal %d out of range for pattern %q", ordinal, pattern)
		}
		return types.DeviceHandle{Ordinal: ordinal, Path: fmt.Sprintf(pattern, 'a'+ordinal)}, nil
	case strings.Contains(pattern, "%d"):
		return types.DeviceHandle{Ordinal: ordinal, Path: fmt.Sprintf(pattern, ordinal)}, nil
	default:
		return types.DeviceHandle{}, fmt.Errorf("device pattern %q needs %%c or %%d", pattern)
	}
}
