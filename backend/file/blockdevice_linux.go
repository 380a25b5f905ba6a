//go:build linux

package file

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// blockDeviceSize returns the size in bytes of a block device via the
// BLKGETSIZE64 ioctl. Regular files report os.FileInfo.Size correctly on
// their own; this is only needed for raw devices like /dev/sda, where Stat
// reports a size of zero.
func blockDeviceSize(f *os.File) (int64, error) {
	size, err := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("BLKGETSIZE64 ioctl failed: %w", err)
	}
	return int64(size), nil
}
