package ext4

import (
	"io/fs"
	"time"
)

// StatT is the ext4-specific extra information returned by FileInfo.Sys(),
// exposing the ownership bits that os.FileInfo.Sys() doesn't carry.
type StatT struct {
	UID uint32
	GID uint32
}

// FileInfo implements fs.FileInfo for a single ext4 file or directory.
type FileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
	sys     *StatT
}

func (f *FileInfo) Name() string       { return f.name }
func (f *FileInfo) Size() int64        { return f.size }
func (f *FileInfo) Mode() fs.FileMode  { return f.mode }
func (f *FileInfo) ModTime() time.Time { return f.modTime }
func (f *FileInfo) IsDir() bool        { return f.isDir }
func (f *FileInfo) Sys() any           { return f.sys }

// directoryEntryInfo implements fs.DirEntry for an entry read from ReadDir,
// pairing the directory entry (name, file type) with the inode it points to
// (size, mode, times) without a second filesystem round trip.
type directoryEntryInfo struct {
	inode          *inode
	directoryEntry *directoryEntry
}

func (d *directoryEntryInfo) Name() string { return d.directoryEntry.filename }

func (d *directoryEntryInfo) IsDir() bool {
	return d.directoryEntry.fileType == dirFileTypeDirectory
}

func (d *directoryEntryInfo) Type() fs.FileMode {
	return d.inode.permissionsToMode().Type()
}

func (d *directoryEntryInfo) Info() (fs.FileInfo, error) {
	return &FileInfo{
		name:    d.directoryEntry.filename,
		size:    int64(d.inode.size),
		mode:    d.inode.permissionsToMode(),
		modTime: d.inode.modifyTime,
		isDir:   d.directoryEntry.fileType == dirFileTypeDirectory,
		sys: &StatT{
			UID: d.inode.owner,
			GID: d.inode.group,
		},
	}, nil
}
