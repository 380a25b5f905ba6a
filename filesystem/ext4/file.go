package ext4

import (
	"fmt"
	"io"
	iofs "io/fs"
	"time"
)

// File represents a single file in an ext4 filesystem
type File struct {
	*inode
	filename    string
	fileType    directoryFileType
	isReadWrite bool
	isAppend    bool
	offset      int64
	filesystem  *FileSystem
	extents     extents
}

// Read reads up to len(b) bytes from the File.
// It returns the number of bytes read and any error encountered.
// At end of file, Read returns 0, io.EOF
// reads from the last known offset in the file from last read or write
// use Seek() to set at a particular point
func (fl *File) Read(b []byte) (int, error) {
	var (
		fileSize  = int64(fl.size)
		blocksize = uint64(fl.filesystem.superblock.blockSize)
	)
	if fl.offset >= fileSize {
		return 0, io.EOF
	}

	// Calculate the number of bytes to read
	bytesToRead := int64(len(b))
	if fl.offset+bytesToRead > fileSize {
		bytesToRead = fileSize - fl.offset
	}

	// Create a buffer to hold the bytes to be read
	readBytes := int64(0)
	b = b[:bytesToRead]

	// the offset given for reading is relative to the file, so we need to calculate
	// where these are in the extents relative to the file
	readStartBlock := uint64(fl.offset) / blocksize
	for _, e := range fl.extents {
		// if the last block of the extent is before the first block we want to read, skip it
		if uint64(e.fileBlock)+uint64(e.count) < readStartBlock {
			continue
		}
		// extentSize is the number of bytes on the disk for the extent
		extentSize := int64(e.count) * int64(blocksize)
		// where do we start and end in the extent?
		startPositionInExtent := fl.offset - int64(e.fileBlock)*int64(blocksize)
		leftInExtent := extentSize - startPositionInExtent
		// how many bytes are left to read
		toReadInOffset := bytesToRead - readBytes
		if toReadInOffset > leftInExtent {
			toReadInOffset = leftInExtent
		}
		// read those bytes
		startPosOnDisk := e.startingBlock*blocksize + uint64(startPositionInExtent)
		b2 := make([]byte, toReadInOffset)
		read, err := fl.filesystem.backend.ReadAt(b2, int64(startPosOnDisk))
		if err != nil {
			return int(readBytes), fmt.Errorf("failed to read bytes: %v", err)
		}
		copy(b[readBytes:], b2[:read])
		readBytes += int64(read)
		fl.offset += int64(read)

		if readBytes >= bytesToRead {
			break
		}
	}
	var err error
	if fl.offset >= fileSize {
		err = io.EOF
	}

	return int(readBytes), err
}

// Write writes len(b) bytes to the File.
// It returns the number of bytes written and an error, if any.
// returns a non-nil error when n != len(b)
// writes to the last known offset in the file from last read or write,
// growing the file's extent tree and allocating new blocks as needed.
// use Seek() to set at a particular point
func (fl *File) Write(p []byte) (int, error) {
	if !fl.isReadWrite {
		return 0, fmt.Errorf("%s: %w", fl.filename, ErrReadOnly)
	}
	if len(p) == 0 {
		return 0, nil
	}

	blocksize := uint64(fl.filesystem.superblock.blockSize)
	endOffset := uint64(fl.offset) + uint64(len(p))
	requiredBlocks := endOffset / blocksize
	if endOffset%blocksize > 0 {
		requiredBlocks++
	}

	if have := fl.extents.blockCount(); requiredBlocks > have {
		newExtents, err := fl.filesystem.allocateExtents(requiredBlocks*blocksize, &fl.extents)
		if err != nil {
			return 0, fmt.Errorf("could not allocate space for %s: %w", fl.filename, err)
		}
		// allocateExtents hands back raw disk extents with no file-relative
		// position; they pick up where the file's existing blocks leave off.
		nextFileBlock := uint32(have)
		for i := range *newExtents {
			(*newExtents)[i].fileBlock = nextFileBlock
			nextFileBlock += uint32((*newExtents)[i].count)
		}

		updatedTree, _, err := extendExtentTree(fl.inode.extents, newExtents, fl.filesystem, nil)
		if err != nil {
			return 0, fmt.Errorf("could not extend extent tree for %s: %w", fl.filename, err)
		}
		fl.inode.extents = updatedTree
		fl.extents = append(fl.extents, (*newExtents)...)
		fl.inode.blocks = requiredBlocks * (blocksize / 512)
	}

	writableFile, err := fl.filesystem.backend.Writable()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fl.filename, err)
	}

	bytesToWrite := int64(len(p))
	writtenBytes := int64(0)
	writeStartBlock := uint64(fl.offset) / blocksize
	for _, e := range fl.extents {
		if uint64(e.fileBlock)+uint64(e.count) < writeStartBlock {
			continue
		}
		extentSize := int64(e.count) * int64(blocksize)
		startPositionInExtent := fl.offset - int64(e.fileBlock)*int64(blocksize)
		if startPositionInExtent < 0 {
			startPositionInExtent = 0
		}
		leftInExtent := extentSize - startPositionInExtent
		toWriteInExtent := bytesToWrite - writtenBytes
		if toWriteInExtent > leftInExtent {
			toWriteInExtent = leftInExtent
		}
		startPosOnDisk := e.startingBlock*blocksize + uint64(startPositionInExtent)
		wrote, err := writableFile.WriteAt(p[writtenBytes:writtenBytes+toWriteInExtent], int64(startPosOnDisk))
		if err != nil {
			return int(writtenBytes), fmt.Errorf("failed to write bytes: %w", err)
		}
		if fl.filesystem.dataBlockCache != nil && wrote > 0 {
			firstBlock := uint64(startPosOnDisk) / blocksize
			lastBlock := (uint64(startPosOnDisk) + uint64(wrote) - 1) / blocksize
			for b := firstBlock; b <= lastBlock; b++ {
				fl.filesystem.dataBlockCache.invalidate(b)
			}
		}
		writtenBytes += int64(wrote)
		fl.offset += int64(wrote)

		if writtenBytes >= bytesToWrite {
			break
		}
	}

	if uint64(fl.offset) > fl.size {
		fl.size = uint64(fl.offset)
	}
	fl.modifyTime = time.Now()

	if err := fl.filesystem.writeInode(fl.inode); err != nil {
		return int(writtenBytes), fmt.Errorf("could not persist inode for %s: %w", fl.filename, err)
	}

	if writtenBytes < bytesToWrite {
		return int(writtenBytes), fmt.Errorf("wrote %d of %d bytes to %s: %w", writtenBytes, bytesToWrite, fl.filename, ErrWriteError)
	}
	return int(writtenBytes), nil
}

// Seek set the offset to a particular point in the file
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	newOffset := int64(0)
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekEnd:
		newOffset = int64(fl.size) + offset
	case io.SeekCurrent:
		newOffset = fl.offset + offset
	}
	if newOffset < 0 {
		return fl.offset, fmt.Errorf("cannot set offset %d before start of file", offset)
	}
	fl.offset = newOffset
	return fl.offset, nil
}

// Close close a file that is being read
func (fl *File) Close() error {
	*fl = File{}
	return nil
}

// Stat returns fs.FileInfo describing this open file, satisfying fs.File.
func (fl *File) Stat() (iofs.FileInfo, error) {
	return &FileInfo{
		name:    fl.filename,
		size:    int64(fl.size),
		mode:    fl.permissionsToMode(),
		modTime: fl.modifyTime,
		isDir:   fl.fileType == dirFileTypeDirectory,
		sys: &StatT{
			UID: fl.owner,
			GID: fl.group,
		},
	}, nil
}

// ReadDir reads directory entries when this File was opened on a directory,
// satisfying fs.ReadDirFile. n <= 0 returns all entries; n > 0 returns at
// most the first n. No read position is kept between calls, so every call
// starts again from the first entry, and io.EOF is never returned.
func (fl *File) ReadDir(n int) ([]iofs.DirEntry, error) {
	if fl.fileType != dirFileTypeDirectory {
		return nil, fmt.Errorf("%s is not a directory", fl.filename)
	}
	entries, err := fl.filesystem.readDirectory(fl.number)
	if err != nil {
		return nil, fmt.Errorf("could not read directory %s: %v", fl.filename, err)
	}
	ret := make([]iofs.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.filename == "." || e.filename == ".." || e.filename == "" {
			continue
		}
		in, err := fl.filesystem.readInode(e.inode)
		if err != nil {
			return nil, fmt.Errorf("could not read inode %d: %v", e.inode, err)
		}
		ret = append(ret, &directoryEntryInfo{inode: in, directoryEntry: e})
	}
	if n <= 0 || n >= len(ret) {
		return ret, nil
	}
	return ret[:n], nil
}
