//go:build linux

package device

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

const (
	hdioGetGeo      = 0x0301 // HDIO_GETGEO
	hdioGetIdentity = 0x030d // HDIO_GET_IDENTITY
	blkFlsBuf       = 0x1261 // BLKFLSBUF
)

// hdGeometry mirrors struct hd_geometry from linux/hdreg.h
type hdGeometry struct {
	Heads     uint8
	Sectors   uint8
	Cylinders uint16
	Start     uintptr
}

// ATA IDENTIFY DEVICE words holding the default CHS translation
const (
	identifyWordCylinders = 1
	identifyWordHeads     = 3
	identifyWordSectors   = 6
	identifySize          = 512
)

func attachPlatform(d *BlockDevice, f *os.File) {
	fd := f.Fd()
	d.table = func() (types.RawGeometry, error) {
		var g hdGeometry
		if err := ioctl(fd, hdioGetGeo, unsafe.Pointer(&g)); err != nil {
			return types.RawGeometry{}, fmt.Errorf("HDIO_GETGEO: %w", err)
		}
		return types.RawGeometry{
			Source:          "parameter table",
			Cylinders:       uint32(g.Cylinders),
			Heads:           uint32(g.Heads),
			SectorsPerTrack: uint32(g.Sectors),
		}, nil
	}
	d.ident = func() (types.RawGeometry, error) {
		id := make([]byte, identifySize)
		if err := ioctl(fd, hdioGetIdentity, unsafe.Pointer(&id[0])); err != nil {
			return types.RawGeometry{}, fmt.Errorf("HDIO_GET_IDENTITY: %w", err)
		}
		return parseIdentify(id), nil
	}
	d.reset = func() error {
		err := ioctl(fd, blkFlsBuf, nil)
		if err == unix.ENOTTY || err == unix.EINVAL {
			// Not a block device; drop the page cache for the file instead
			return unix.Fadvise(int(fd), 0, 0, unix.FADV_DONTNEED)
		}
		return err
	}
}

func parseIdentify(id []byte) types.RawGeometry {
	word := func(n int) uint32 {
		return uint32(binary.LittleEndian.Uint16(id[n*2 : n*2+2]))
	}
	return types.RawGeometry{
		Source:          "identify",
		Cylinders:       word(identifyWordCylinders),
		Heads:           word(identifyWordHeads),
		SectorsPerTrack: word(identifyWordSectors),
	}
}

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
