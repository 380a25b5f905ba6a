package ext4

import (
	"fmt"
	"io"
	"os"

	"github.com/ext4fs/ext4fs/backend"
)

// Mkfs formats dev as a fresh ext4 filesystem occupying size bytes starting
// at byte 0, using params (nil for the package defaults). It is a thin,
// spec-named wrapper over Create, kept separate so callers following the
// mkfs/mount/umount/mkdir/... naming from the external interface don't need
// to know about Create's start/sectorsize parameters.
func Mkfs(dev backend.Storage, size int64, params *Params) (*FileSystem, error) {
	return Create(dev, size, 0, 0, params)
}

// Mount reads an existing ext4 filesystem starting at byte 0 of dev, taking
// its size from size(dev), and returns a handle to it, or an error if the
// superblock is invalid or requires unsupported features.
func Mount(dev backend.Storage) (*FileSystem, error) {
	return Read(dev, size(dev), 0, 0)
}

// size returns the full size of dev as reported by Stat on the file behind
// dev.Sys(), for callers of Mount that don't already know the device's size
// up front. It returns 0 if dev has no underlying file or Stat fails.
func size(dev backend.Storage) int64 {
	f, err := dev.Sys()
	if err != nil || f == nil {
		return 0
	}
	info, err := f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Umount flushes fs's caches and releases its handle on the backing device.
// After Umount returns, fs must not be used again.
func Umount(fs *FileSystem) error {
	return fs.Close()
}

// Mkdir creates a directory at path, including any missing parent
// directories, matching `mkdir -p` semantics. It is idempotent: an
// already-existing directory at path is not an error.
func Mkdir(fs *FileSystem, path string) error {
	return fs.Mkdir(path)
}

// Mkfile creates a regular file at path and, if contents is non-empty,
// writes it in the same call.
func Mkfile(fs *FileSystem, path string, contents []byte) error {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return fmt.Errorf("could not create file %s: %w", path, err)
	}
	defer f.Close()
	if len(contents) == 0 {
		return nil
	}
	if _, err := f.Write(contents); err != nil {
		return fmt.Errorf("could not write contents of %s: %w", path, err)
	}
	return nil
}

// OpenFile opens path for reading, creating it first if create is true and
// it does not already exist, and returns a handle positioned at offset 0.
func OpenFile(fs *FileSystem, path string, create bool) (*File, error) {
	flag := os.O_RDONLY
	if create {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := fs.OpenFile(path, flag)
	if err != nil {
		return nil, err
	}
	file, ok := f.(*File)
	if !ok {
		return nil, fmt.Errorf("unexpected handle type for %s", path)
	}
	return file, nil
}

// ReadFromFile reads up to n bytes from handle's current offset, advancing
// it, and returns what was read. A short final read returns fewer than n
// bytes with a nil error; io.EOF is returned only once nothing more could
// be read.
func ReadFromFile(fs *FileSystem, handle *File, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := handle.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if err == io.EOF && read == 0 && n > 0 {
		return buf[:0], io.EOF
	}
	return buf[:read], nil
}

// ReadFile returns the entire contents of path in one call.
func ReadFile(fs *FileSystem, path string) ([]byte, error) {
	return fs.ReadFile(path)
}

// FindFile resolves path to its terminal inode number, or ErrNotFound if no
// such path exists.
func FindFile(fs *FileSystem, path string) (uint32, error) {
	_, entry, err := fs.getEntryAndParent(path)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return entry.inode, nil
}
