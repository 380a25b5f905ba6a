package ext4

import (
	"encoding/binary"
	"fmt"
)

// Directory represents a single directory: the directory entry that points
// to it plus, once read, all of the entries it contains.
type Directory struct {
	directoryEntry
	root    bool
	entries []*directoryEntry
}

// toBytes serializes the directory's entries into one block's worth of
// bytes, extending the last entry's record length to consume the rest of
// the block the way the kernel packs a directory block, then runs the
// result through appender to add the block's checksum tail.
func (d *Directory) toBytes(blocksize uint32, appender dirChecksumAppender) []byte {
	b := make([]byte, 0, blocksize)
	tailReserve := minDirEntryLength

	for i, e := range d.entries {
		recLen := direntRecLen(e.filename)
		if i == len(d.entries)-1 {
			if remaining := int(blocksize) - tailReserve - len(b); remaining > recLen {
				recLen = remaining
			}
		}
		entry := make([]byte, 8, recLen)
		binary.LittleEndian.PutUint32(entry[0:4], e.inode)
		binary.LittleEndian.PutUint16(entry[4:6], uint16(recLen))
		entry[6] = byte(len(e.filename))
		entry[7] = byte(e.fileType)
		entry = append(entry, []byte(e.filename)...)
		if pad := recLen - len(entry); pad > 0 {
			entry = append(entry, make([]byte, pad)...)
		}
		b = append(b, entry...)
	}

	return appender(b)
}

// dxEntry is one (hash, block) pair in an HTree index node: block is the
// directory-relative logical block number of the node or leaf the hash
// range routes to.
type dxEntry struct {
	hash  uint32
	block uint32
}

// dxRoot is the parsed form of an HTree-indexed directory's first block:
// the fake "." and ".." entries the kernel keeps for readdir compatibility,
// the dx_root_info that names the hash algorithm and tree depth, and the
// top-level index entries.
type dxRoot struct {
	dotEntry       *directoryEntry
	dotDotEntry    *directoryEntry
	hashVersion    hashVersion
	infoLength     uint8
	indirectLevels uint8
	unusedFlags    uint8
	depth          int
	limit          uint16
	count          uint16
	entries        []dxEntry
}

// parseDirectoryTreeRoot parses the dx_root block of an HTree-indexed
// directory: its fake dot/dotdot entries, the dx_root_info describing the
// hash algorithm and indirection depth, and the first-level index entries.
// largeDir is accepted to mirror the kernel's widened counts under the
// large_dir feature; this implementation does not need a different layout
// for it since dx_entry stays a fixed 8 bytes either way.
func parseDirectoryTreeRoot(b []byte, largeDir bool) (*dxRoot, error) {
	_ = largeDir
	if len(b) < 32 {
		return nil, fmt.Errorf("block too small for directory tree root")
	}

	dotInode := binary.LittleEndian.Uint32(b[0:4])
	dotRecLen := int(binary.LittleEndian.Uint16(b[4:6]))
	dotNameLen := int(b[6])
	if dotRecLen < 8+dotNameLen || dotRecLen > len(b) {
		return nil, fmt.Errorf("invalid dot entry in directory tree root")
	}
	dotName := string(b[8 : 8+dotNameLen])

	dotdotStart := dotRecLen
	if dotdotStart+8 > len(b) {
		return nil, fmt.Errorf("directory tree root too small for dotdot entry")
	}
	dotdotInode := binary.LittleEndian.Uint32(b[dotdotStart : dotdotStart+4])
	dotdotRecLen := int(binary.LittleEndian.Uint16(b[dotdotStart+4 : dotdotStart+6]))
	dotdotNameLen := int(b[dotdotStart+6])
	if dotdotStart+8+dotdotNameLen > len(b) {
		return nil, fmt.Errorf("invalid dotdot entry in directory tree root")
	}
	dotdotName := string(b[dotdotStart+8 : dotdotStart+8+dotdotNameLen])

	infoStart := dotdotStart + dotdotRecLen
	if infoStart+8 > len(b) {
		return nil, fmt.Errorf("directory tree root too small for dx_root_info")
	}
	hashVer := hashVersion(b[infoStart+4])
	infoLength := b[infoStart+5]
	indirectLevels := b[infoStart+6]
	unusedFlags := b[infoStart+7]
	if infoLength == 0 {
		infoLength = 8
	}

	entriesStart := infoStart + int(infoLength)
	if entriesStart+4 > len(b) {
		return nil, fmt.Errorf("directory tree root too small for index entries")
	}
	limit := binary.LittleEndian.Uint16(b[entriesStart : entriesStart+2])
	count := binary.LittleEndian.Uint16(b[entriesStart+2 : entriesStart+4])

	entries := make([]dxEntry, 0, count)
	pos := entriesStart + 4
	for i := uint16(0); i < count && pos+8 <= len(b); i++ {
		hash := binary.LittleEndian.Uint32(b[pos : pos+4])
		block := binary.LittleEndian.Uint32(b[pos+4 : pos+8])
		entries = append(entries, dxEntry{hash: hash, block: block})
		pos += 8
	}

	return &dxRoot{
		dotEntry:       &directoryEntry{inode: dotInode, filename: dotName, fileType: dirFileTypeDirectory},
		dotDotEntry:    &directoryEntry{inode: dotdotInode, filename: dotdotName, fileType: dirFileTypeDirectory},
		hashVersion:    hashVer,
		infoLength:     infoLength,
		indirectLevels: indirectLevels,
		unusedFlags:    unusedFlags,
		depth:          int(indirectLevels) + 1,
		limit:          limit,
		count:          count,
		entries:        entries,
	}, nil
}

// parseDirEntriesHashed walks the leaf blocks an HTree index points to and
// parses each as a normal linear directory block, returning their combined
// entries. b holds the directory file's full, block-concatenated bytes, and
// dx_entry.block values are logical block numbers within it.
func parseDirEntriesHashed(b []byte, depth int, root *dxRoot, blocksize uint32, hasChecksum bool, inodeNumber, nfsFileVersion, checksumSeed uint32) ([]*directoryEntry, error) {
	var leafBlocks []uint32
	if depth <= 1 {
		for _, e := range root.entries {
			leafBlocks = append(leafBlocks, e.block)
		}
	} else {
		for _, e := range root.entries {
			start := int(e.block) * int(blocksize)
			if start < 0 || start+int(blocksize) > len(b) {
				continue
			}
			node := b[start : start+int(blocksize)]
			count := binary.LittleEndian.Uint16(node[2:4])
			pos := 4
			for i := uint16(0); i < count && pos+8 <= len(node); i++ {
				leafBlocks = append(leafBlocks, binary.LittleEndian.Uint32(node[pos+4:pos+8]))
				pos += 8
			}
		}
	}

	var entries []*directoryEntry
	for _, blk := range leafBlocks {
		start := int(blk) * int(blocksize)
		if start < 0 || start+int(blocksize) > len(b) {
			continue
		}
		leaf := b[start : start+int(blocksize)]
		leafEntries, err := parseDirEntriesLinear(leaf, hasChecksum, blocksize, inodeNumber, nfsFileVersion, checksumSeed)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hashed directory leaf block %d: %w", blk, err)
		}
		entries = append(entries, leafEntries...)
	}
	return entries, nil
}
