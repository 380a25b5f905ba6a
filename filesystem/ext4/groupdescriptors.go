package ext4

import (
	"encoding/binary"
	"fmt"

	"github.com/ext4fs/ext4fs/filesystem/ext4/crc"
)

// blockGroupFlags tracks the per-group EXT4_BG_* bits stored in bg_flags:
// whether the group's inode table, inode bitmap, or block bitmap still need
// to be initialized on first use (the "uninit_bg"/"gdt_csum" lazy-init
// scheme), letting mkfs skip zeroing large regions it has not written to yet.
type blockGroupFlags struct {
	inodeTableZeroed         bool
	inodesUninitialized      bool
	blockBitmapUninitialized bool
}

const (
	bgFlagInodeUninit uint16 = 0x0001
	bgFlagBlockUninit  uint16 = 0x0002
	bgFlagItableZeroed uint16 = 0x0004
)

func blockGroupFlagsFromUint16(v uint16) blockGroupFlags {
	return blockGroupFlags{
		inodesUninitialized:      v&bgFlagInodeUninit != 0,
		blockBitmapUninitialized: v&bgFlagBlockUninit != 0,
		inodeTableZeroed:         v&bgFlagItableZeroed != 0,
	}
}

func (f blockGroupFlags) toUint16() uint16 {
	var v uint16
	if f.inodesUninitialized {
		v |= bgFlagInodeUninit
	}
	if f.blockBitmapUninitialized {
		v |= bgFlagBlockUninit
	}
	if f.inodeTableZeroed {
		v |= bgFlagItableZeroed
	}
	return v
}

// groupDescriptor is the in-memory form of one 32- or 64-byte block group
// descriptor table (GDT) entry, describing where a block group's bitmaps
// and inode table live and how much free space it still has.
type groupDescriptor struct {
	number                           uint16
	size                             uint16
	blockBitmapLocation              uint64
	inodeBitmapLocation              uint64
	inodeTableLocation               uint64
	freeBlocks                       uint32
	freeInodes                       uint32
	usedDirectories                  uint32
	flags                            blockGroupFlags
	unusedInodes                     uint32
	blockBitmapChecksum              uint32
	inodeBitmapChecksum              uint32
	snapshotExclusionBitmapLocation  uint64
}

// groupDescriptorFromBytes parses a single group descriptor entry, which in
// a 64bit filesystem is 64 bytes (the high 32 bits of each location
// following the low 32 bits of every other field), or 32 bytes otherwise.
func groupDescriptorFromBytes(b []byte, size uint16, number int, checksumType gdtChecksumType, checksumSeed uint32) (*groupDescriptor, error) {
	if size != groupDescriptorSize && size != groupDescriptorSize64Bit {
		return nil, fmt.Errorf("invalid group descriptor size %d", size)
	}
	if len(b) < int(size) {
		return nil, fmt.Errorf("cannot read group descriptor from %d bytes, need at least %d", len(b), size)
	}
	b = b[:size]

	gd := &groupDescriptor{
		number: uint16(number),
		size:   size,
	}

	blockBitmapLow := binary.LittleEndian.Uint32(b[0x0:0x4])
	inodeBitmapLow := binary.LittleEndian.Uint32(b[0x4:0x8])
	inodeTableLow := binary.LittleEndian.Uint32(b[0x8:0xc])
	freeBlocksLow := binary.LittleEndian.Uint16(b[0xc:0xe])
	freeInodesLow := binary.LittleEndian.Uint16(b[0xe:0x10])
	usedDirsLow := binary.LittleEndian.Uint16(b[0x10:0x12])
	flagsVal := binary.LittleEndian.Uint16(b[0x12:0x14])
	excludeBitmapLow := binary.LittleEndian.Uint32(b[0x14:0x18])
	blockBitmapChecksumLow := binary.LittleEndian.Uint16(b[0x18:0x1a])
	inodeBitmapChecksumLow := binary.LittleEndian.Uint16(b[0x1a:0x1c])
	unusedInodesLow := binary.LittleEndian.Uint16(b[0x1c:0x1e])
	checksum := binary.LittleEndian.Uint16(b[0x1e:0x20])

	var (
		blockBitmapHigh, inodeBitmapHigh, inodeTableHigh                           uint32
		freeBlocksHigh, freeInodesHigh, usedDirsHigh                               uint16
		excludeBitmapHigh, blockBitmapChecksumHigh, inodeBitmapChecksumHigh        uint16
		unusedInodesHigh                                                          uint16
	)
	if size == groupDescriptorSize64Bit {
		blockBitmapHigh = binary.LittleEndian.Uint32(b[0x20:0x24])
		inodeBitmapHigh = binary.LittleEndian.Uint32(b[0x24:0x28])
		inodeTableHigh = binary.LittleEndian.Uint32(b[0x28:0x2c])
		freeBlocksHigh = binary.LittleEndian.Uint16(b[0x2c:0x2e])
		freeInodesHigh = binary.LittleEndian.Uint16(b[0x2e:0x30])
		usedDirsHigh = binary.LittleEndian.Uint16(b[0x30:0x32])
		unusedInodesHigh = binary.LittleEndian.Uint16(b[0x32:0x34])
		excludeBitmapHigh = binary.LittleEndian.Uint16(b[0x34:0x36])
		blockBitmapChecksumHigh = binary.LittleEndian.Uint16(b[0x36:0x38])
		inodeBitmapChecksumHigh = binary.LittleEndian.Uint16(b[0x38:0x3a])
	}

	gd.blockBitmapLocation = uint64(blockBitmapLow) | uint64(blockBitmapHigh)<<32
	gd.inodeBitmapLocation = uint64(inodeBitmapLow) | uint64(inodeBitmapHigh)<<32
	gd.inodeTableLocation = uint64(inodeTableLow) | uint64(inodeTableHigh)<<32
	gd.freeBlocks = uint32(freeBlocksLow) | uint32(freeBlocksHigh)<<16
	gd.freeInodes = uint32(freeInodesLow) | uint32(freeInodesHigh)<<16
	gd.usedDirectories = uint32(usedDirsLow) | uint32(usedDirsHigh)<<16
	gd.unusedInodes = uint32(unusedInodesLow) | uint32(unusedInodesHigh)<<16
	gd.snapshotExclusionBitmapLocation = uint64(excludeBitmapLow) | uint64(excludeBitmapHigh)<<32
	gd.blockBitmapChecksum = uint32(blockBitmapChecksumLow) | uint32(blockBitmapChecksumHigh)<<16
	gd.inodeBitmapChecksum = uint32(inodeBitmapChecksumLow) | uint32(inodeBitmapChecksumHigh)<<16
	gd.flags = blockGroupFlagsFromUint16(flagsVal)

	if checksumType != gdtChecksumNone {
		actual := groupDescriptorChecksum(gd, checksumType, checksumSeed)
		if actual != checksum {
			return nil, fmt.Errorf("invalid group descriptor checksum for group %d: got %#x, want %#x", number, actual, checksum)
		}
	}

	return gd, nil
}

// toBytes serializes a single group descriptor to its 32- or 64-byte
// on-disk form, recalculating its checksum according to checksumType.
func (gd *groupDescriptor) toBytes(checksumType gdtChecksumType, checksumSeed uint32) []byte {
	size := gd.size
	if size != groupDescriptorSize64Bit {
		size = groupDescriptorSize
	}
	b := make([]byte, size)

	binary.LittleEndian.PutUint32(b[0x0:0x4], uint32(gd.blockBitmapLocation))
	binary.LittleEndian.PutUint32(b[0x4:0x8], uint32(gd.inodeBitmapLocation))
	binary.LittleEndian.PutUint32(b[0x8:0xc], uint32(gd.inodeTableLocation))
	binary.LittleEndian.PutUint16(b[0xc:0xe], uint16(gd.freeBlocks))
	binary.LittleEndian.PutUint16(b[0xe:0x10], uint16(gd.freeInodes))
	binary.LittleEndian.PutUint16(b[0x10:0x12], uint16(gd.usedDirectories))
	binary.LittleEndian.PutUint16(b[0x12:0x14], gd.flags.toUint16())
	binary.LittleEndian.PutUint32(b[0x14:0x18], uint32(gd.snapshotExclusionBitmapLocation))
	binary.LittleEndian.PutUint16(b[0x18:0x1a], uint16(gd.blockBitmapChecksum))
	binary.LittleEndian.PutUint16(b[0x1a:0x1c], uint16(gd.inodeBitmapChecksum))
	binary.LittleEndian.PutUint16(b[0x1c:0x1e], uint16(gd.unusedInodes))

	if size == groupDescriptorSize64Bit {
		binary.LittleEndian.PutUint32(b[0x20:0x24], uint32(gd.blockBitmapLocation>>32))
		binary.LittleEndian.PutUint32(b[0x24:0x28], uint32(gd.inodeBitmapLocation>>32))
		binary.LittleEndian.PutUint32(b[0x28:0x2c], uint32(gd.inodeTableLocation>>32))
		binary.LittleEndian.PutUint16(b[0x2c:0x2e], uint16(gd.freeBlocks>>16))
		binary.LittleEndian.PutUint16(b[0x2e:0x30], uint16(gd.freeInodes>>16))
		binary.LittleEndian.PutUint16(b[0x30:0x32], uint16(gd.usedDirectories>>16))
		binary.LittleEndian.PutUint16(b[0x32:0x34], uint16(gd.unusedInodes>>16))
		binary.LittleEndian.PutUint16(b[0x34:0x36], uint16(gd.snapshotExclusionBitmapLocation>>32))
		binary.LittleEndian.PutUint16(b[0x36:0x38], uint16(gd.blockBitmapChecksum>>16))
		binary.LittleEndian.PutUint16(b[0x38:0x3a], uint16(gd.inodeBitmapChecksum>>16))
	}

	if checksumType != gdtChecksumNone {
		checksum := groupDescriptorChecksum(gd, checksumType, checksumSeed)
		binary.LittleEndian.PutUint16(b[0x1e:0x20], checksum)
	}

	return b
}

// crc16Table is the standard CCITT-less, ANSI/IBM polynomial 0xA001 table
// used by the kernel's legacy ext2 crc16() for the gdt_csum group checksum.
var crc16Table = func() [256]uint16 {
	var t [256]uint16
	for i := 0; i < 256; i++ {
		c := uint16(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = (c >> 1) ^ 0xA001
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc16(seed uint16, b []byte) uint16 {
	c := seed
	for _, v := range b {
		c = crc16Table[(c^uint16(v))&0xff] ^ (c >> 8)
	}
	return c
}

// groupDescriptorChecksum computes bg_checksum: a CRC16 of the group number
// and descriptor bytes under gdt_csum, or the low 16 bits of a CRC32C under
// metadata_csum, matching the two checksum schemes the kernel supports for
// the GDT. checksumSeed is the filesystem's crc32c(~0, uuid) seed in both
// cases, reused here in place of the raw UUID bytes for the legacy crc16
// path since only the seed is threaded through the rest of the package.
func groupDescriptorChecksum(gd *groupDescriptor, checksumType gdtChecksumType, checksumSeed uint32) uint16 {
	numberBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(numberBytes, uint32(gd.number))

	descBytes := gd.toBytes(gdtChecksumNone, 0)
	// zero out the checksum field itself before hashing
	descBytes[0x1e] = 0
	descBytes[0x1f] = 0

	switch checksumType {
	case gdtChecksumMetadata:
		c := crc.CRC32c(checksumSeed, numberBytes)
		c = crc.CRC32c(c, descBytes)
		return uint16(c & 0xffff)
	case gdtChecksumGDT:
		seedBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(seedBytes, checksumSeed)
		c := crc16(0xFFFF, seedBytes)
		c = crc16(c, numberBytes)
		c = crc16(c, descBytes)
		return c
	default:
		return 0
	}
}

// groupDescriptors is the full group descriptor table: one entry per block
// group, laid out contiguously starting in the block after the superblock.
type groupDescriptors struct {
	descriptors []groupDescriptor
}

// groupDescriptorsFromBytes parses a contiguous GDT from b, one size-byte
// entry per group.
func groupDescriptorsFromBytes(b []byte, size uint16, checksumSeed uint32, checksumType gdtChecksumType) (*groupDescriptors, error) {
	if size != groupDescriptorSize && size != groupDescriptorSize64Bit {
		return nil, fmt.Errorf("invalid group descriptor size %d", size)
	}
	count := len(b) / int(size)
	descriptors := make([]groupDescriptor, 0, count)
	for i := 0; i < count; i++ {
		entry := b[i*int(size) : (i+1)*int(size)]
		gd, err := groupDescriptorFromBytes(entry, size, i, checksumType, checksumSeed)
		if err != nil {
			return nil, fmt.Errorf("error parsing group descriptor %d: %w", i, err)
		}
		descriptors = append(descriptors, *gd)
	}
	return &groupDescriptors{descriptors: descriptors}, nil
}

// toBytes serializes the full GDT back to its contiguous on-disk form.
func (gds *groupDescriptors) toBytes(checksumType gdtChecksumType, checksumSeed uint32) []byte {
	if len(gds.descriptors) == 0 {
		return nil
	}
	size := gds.descriptors[0].size
	if size != groupDescriptorSize64Bit {
		size = groupDescriptorSize
	}
	b := make([]byte, 0, int(size)*len(gds.descriptors))
	for i := range gds.descriptors {
		b = append(b, gds.descriptors[i].toBytes(checksumType, checksumSeed)...)
	}
	return b
}

// equal reports whether two group descriptor tables describe the same
// groups, ignoring ordering differences in how each groupDescriptor's
// checksum bytes would serialize (since toBytes is deterministic given the
// same inputs, it compares the structs directly).
func (gds *groupDescriptors) equal(a *groupDescriptors) bool {
	if gds == nil || a == nil {
		return gds == a
	}
	if len(gds.descriptors) != len(a.descriptors) {
		return false
	}
	for i := range gds.descriptors {
		if gds.descriptors[i] != a.descriptors[i] {
			return false
		}
	}
	return true
}
