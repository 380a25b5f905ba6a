//go:build !linux

package file

import (
	"fmt"
	"os"
)

// blockDeviceSize is only implemented on linux, where BLKGETSIZE64 exists.
// Elsewhere, the caller falls back to os.FileInfo.Size, which is correct
// for image files but not for raw block devices.
func blockDeviceSize(f *os.File) (int64, error) {
	return 0, fmt.Errorf("block device size detection not supported on this platform")
}
