//go:build !linux

package device

import (
	"os"
)

// Geometry ioctls are Linux only; other platforms keep the unsupported
// channels from NewBlockDevice and a no-op reset.
func attachPlatform(_ *BlockDevice, _ *os.File) {}
