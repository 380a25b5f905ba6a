package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ext4fs/ext4fs/filesystem/ext4/crc"
)

// directoryFileType is the on-disk file_type byte recorded in a directory
// entry when the filetype incompat feature is set, distinct from the mode
// bits an inode itself stores.
type directoryFileType uint8

const (
	dirFileTypeUnknown         directoryFileType = 0
	dirFileTypeRegular         directoryFileType = 1
	dirFileTypeDirectory       directoryFileType = 2
	dirFileTypeCharacterDevice directoryFileType = 3
	dirFileTypeBlockDevice     directoryFileType = 4
	dirFileTypeFifo            directoryFileType = 5
	dirFileTypeSocket          directoryFileType = 6
	dirFileTypeSymbolicLink    directoryFileType = 7
	dirFileTypeChecksum        directoryFileType = 0xDE
)

// directoryEntry is one name-to-inode mapping inside a directory block.
type directoryEntry struct {
	inode    uint32
	filename string
	fileType directoryFileType
}

// dirChecksumAppender takes the serialized directory entries for a block,
// without any checksum tail, and returns the bytes to actually write to
// disk, with the dirent_tail pseudo-entry appended.
type dirChecksumAppender func(b []byte) []byte

// directoryChecksumAppender builds the dirChecksumAppender for one
// directory, closing over the inode identity the checksum is seeded with,
// mirroring how inodeChecksum folds in the inode number and generation.
func directoryChecksumAppender(checksumSeed, inodeNumber, inodeGeneration uint32) dirChecksumAppender {
	return func(b []byte) []byte {
		numberBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(numberBytes, inodeNumber)
		genBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(genBytes, inodeGeneration)

		c := crc.CRC32c(checksumSeed, numberBytes)
		c = crc.CRC32c(c, genBytes)
		c = crc.CRC32c(c, b)

		tail := make([]byte, minDirEntryLength)
		binary.LittleEndian.PutUint16(tail[4:6], uint16(minDirEntryLength))
		tail[7] = byte(dirFileTypeChecksum)
		binary.LittleEndian.PutUint32(tail[8:12], c)

		return append(b, tail...)
	}
}

// direntRecLen returns the on-disk record length for name, rounded up to a
// 4-byte boundary as the directory block layout requires.
func direntRecLen(name string) int {
	l := 8 + len(name)
	if rem := l % 4; rem != 0 {
		l += 4 - rem
	}
	return l
}

// parseDirEntriesLinear parses a classic (non-HTree) directory block into
// its entries. When hasChecksum is set, the trailing 12-byte dirent_tail
// pseudo-entry is verified against checksumSeed/inodeNumber/nfsFileVersion
// and excluded from the returned entries.
func parseDirEntriesLinear(b []byte, hasChecksum bool, blocksize, inodeNumber, nfsFileVersion, checksumSeed uint32) ([]*directoryEntry, error) {
	limit := len(b)
	if blocksize > 0 && uint32(limit) > blocksize {
		limit = int(blocksize)
	}
	if hasChecksum {
		if limit < minDirEntryLength {
			return nil, fmt.Errorf("directory block too small to hold checksum tail")
		}
		tailStart := limit - minDirEntryLength
		tail := b[tailStart:limit]
		expected := directoryChecksumAppender(checksumSeed, inodeNumber, nfsFileVersion)(b[:tailStart])
		if !bytes.Equal(tail, expected[tailStart:]) {
			return nil, fmt.Errorf("directory checksum mismatch for inode %d", inodeNumber)
		}
		limit = tailStart
	}

	var entries []*directoryEntry
	pos := 0
	for pos+8 <= limit {
		in := binary.LittleEndian.Uint32(b[pos : pos+4])
		recLen := binary.LittleEndian.Uint16(b[pos+4 : pos+6])
		nameLen := int(b[pos+6])
		fType := directoryFileType(b[pos+7])
		if recLen < 8 {
			return nil, fmt.Errorf("invalid directory entry record length %d at offset %d", recLen, pos)
		}
		if in != 0 && pos+8+nameLen <= limit {
			entries = append(entries, &directoryEntry{
				inode:    in,
				filename: string(b[pos+8 : pos+8+nameLen]),
				fileType: fType,
			})
		}
		pos += int(recLen)
	}
	return entries, nil
}
