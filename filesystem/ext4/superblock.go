package ext4

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ext4fs/ext4fs/filesystem/ext4/crc"
	"github.com/google/uuid"
)

// superblockSignature is the magic number at byte offset 0x38 of every
// ext4 superblock.
const superblockSignature uint16 = 0xEF53

// compat/incompat/ro_compat feature bit positions, matching the kernel's
// EXT4_FEATURE_{COMPAT,INCOMPAT,RO_COMPAT}_* constants.
const (
	compatHasJournal           uint32 = 0x0004
	compatExtendedAttributes   uint32 = 0x0008
	compatResizeInode          uint32 = 0x0010
	compatDirectoryIndices     uint32 = 0x0020

	incompatFiletype      uint32 = 0x0002
	incompatJournalDev    uint32 = 0x0008
	incompatMetaBG        uint32 = 0x0010
	incompatExtents       uint32 = 0x0040
	incompat64Bit         uint32 = 0x0080
	incompatMMP           uint32 = 0x0100
	incompatFlexBG        uint32 = 0x0200
	incompatCsumSeed      uint32 = 0x2000
	incompatLargeDir      uint32 = 0x4000
	incompatInlineData    uint32 = 0x8000
	incompatEncrypt       uint32 = 0x10000

	roCompatSparseSuper  uint32 = 0x0001
	roCompatLargeFile    uint32 = 0x0002
	roCompatHugeFile     uint32 = 0x0008
	roCompatGDTChecksum  uint32 = 0x0010
	roCompatDirNlink     uint32 = 0x0020
	roCompatExtraIsize   uint32 = 0x0040
	roCompatQuota        uint32 = 0x0100
	roCompatBigalloc     uint32 = 0x0200
	roCompatMetadataCsum uint32 = 0x0400
	roCompatProject      uint32 = 0x2000
	roCompatOrphanFile   uint32 = 0x10000
)

// supportedIncompatFeatures is the set of incompatible feature bits this
// implementation understands well enough to mount. Read rejects any
// superblock whose features_incompatible mask has a bit outside this set
// with ErrFeatureNotSupported, matching the kernel's own refusal to mount
// a filesystem with unrecognized INCOMPAT bits.
const supportedIncompatFeatures = incompatFiletype | incompatJournalDev |
	incompatMetaBG | incompatExtents | incompat64Bit | incompatMMP |
	incompatFlexBG | incompatCsumSeed | incompatLargeDir |
	incompatInlineData | incompatEncrypt

// checkSupportedFeatures reports whether incompat contains only bits this
// implementation knows how to handle.
func checkSupportedFeatures(incompat uint32) error {
	if unsupported := incompat &^ supportedIncompatFeatures; unsupported != 0 {
		return fmt.Errorf("superblock requires unsupported incompatible feature bits 0x%x: %w", unsupported, ErrFeatureNotSupported)
	}
	return nil
}

func parseFeatureFlags(compat, incompat, roCompat uint32) featureFlags {
	return featureFlags{
		hasJournal:                    compat&compatHasJournal != 0,
		extendedAttributes:            compat&compatExtendedAttributes != 0,
		reservedGDTBlocksForExpansion: compat&compatResizeInode != 0,
		directoryIndices:              compat&compatDirectoryIndices != 0,

		directoryEntriesRecordFileType:   incompat&incompatFiletype != 0,
		separateJournalDevice:            incompat&incompatJournalDev != 0,
		metaBlockGroups:                  incompat&incompatMetaBG != 0,
		extents:                          incompat&incompatExtents != 0,
		fs64Bit:                          incompat&incompat64Bit != 0,
		multipleMountProtection:          incompat&incompatMMP != 0,
		flexBlockGroups:                  incompat&incompatFlexBG != 0,
		metadataChecksumSeedInSuperblock: incompat&incompatCsumSeed != 0,
		largeDirectory:                   incompat&incompatLargeDir != 0,
		inlineData:                       incompat&incompatInlineData != 0,
		encrypt:                          incompat&incompatEncrypt != 0,

		sparseSuperblock:         roCompat&roCompatSparseSuper != 0,
		largeFile:                roCompat&roCompatLargeFile != 0,
		hugeFile:                 roCompat&roCompatHugeFile != 0,
		uninitializedBlockGroups: roCompat&roCompatGDTChecksum != 0,
		largeSubdirectoryCount:   roCompat&roCompatDirNlink != 0,
		largeInodes:              roCompat&roCompatExtraIsize != 0,
		quota:                    roCompat&roCompatQuota != 0,
		bigalloc:                 roCompat&roCompatBigalloc != 0,
		metadataChecksums:        roCompat&roCompatMetadataCsum != 0,
		projectQuotas:            roCompat&roCompatProject != 0,
		orphanFile:               roCompat&roCompatOrphanFile != 0,
	}
}

func (f featureFlags) toInts() (compat, incompat, roCompat uint32) {
	if f.hasJournal {
		compat |= compatHasJournal
	}
	if f.extendedAttributes {
		compat |= compatExtendedAttributes
	}
	if f.reservedGDTBlocksForExpansion {
		compat |= compatResizeInode
	}
	if f.directoryIndices {
		compat |= compatDirectoryIndices
	}

	if f.directoryEntriesRecordFileType {
		incompat |= incompatFiletype
	}
	if f.separateJournalDevice {
		incompat |= incompatJournalDev
	}
	if f.metaBlockGroups {
		incompat |= incompatMetaBG
	}
	if f.extents {
		incompat |= incompatExtents
	}
	if f.fs64Bit {
		incompat |= incompat64Bit
	}
	if f.multipleMountProtection {
		incompat |= incompatMMP
	}
	if f.flexBlockGroups {
		incompat |= incompatFlexBG
	}
	if f.metadataChecksumSeedInSuperblock {
		incompat |= incompatCsumSeed
	}
	if f.largeDirectory {
		incompat |= incompatLargeDir
	}
	if f.inlineData {
		incompat |= incompatInlineData
	}
	if f.encrypt {
		incompat |= incompatEncrypt
	}

	if f.sparseSuperblock {
		roCompat |= roCompatSparseSuper
	}
	if f.largeFile {
		roCompat |= roCompatLargeFile
	}
	if f.hugeFile {
		roCompat |= roCompatHugeFile
	}
	if f.uninitializedBlockGroups {
		roCompat |= roCompatGDTChecksum
	}
	if f.largeSubdirectoryCount {
		roCompat |= roCompatDirNlink
	}
	if f.largeInodes {
		roCompat |= roCompatExtraIsize
	}
	if f.quota {
		roCompat |= roCompatQuota
	}
	if f.bigalloc {
		roCompat |= roCompatBigalloc
	}
	if f.metadataChecksums {
		roCompat |= roCompatMetadataCsum
	}
	if f.projectQuotas {
		roCompat |= roCompatProject
	}
	if f.orphanFile {
		roCompat |= roCompatOrphanFile
	}

	return compat, incompat, roCompat
}

const (
	mountPrintDebugInfo                 uint32 = 0x0001
	mountNewFilesGidContainingDirectory uint32 = 0x0002
	mountUserspaceExtendedAttributes    uint32 = 0x0004
	mountPosixACLs                      uint32 = 0x0008
	mount16BitUIDs                      uint32 = 0x0010
	mountJournalDataAndMetadata         uint32 = 0x0020
	mountFlushBeforeJournal             uint32 = 0x0040
	mountUnorderingDataMetadata         uint32 = 0x0060
	mountDisableWriteFlushes            uint32 = 0x0100
	mountTrackMetadataBlocks            uint32 = 0x0200
	mountDiscardDeviceSupport           uint32 = 0x0400
	mountDisableDelayedAllocation       uint32 = 0x0800
)

func parseMountOptions(flags uint32) mountOptions {
	return mountOptions{
		printDebugInfo:                 flags&mountPrintDebugInfo != 0,
		newFilesGidContainingDirectory: flags&mountNewFilesGidContainingDirectory != 0,
		userspaceExtendedAttributes:    flags&mountUserspaceExtendedAttributes != 0,
		posixACLs:                      flags&mountPosixACLs != 0,
		use16BitUIDs:                   flags&mount16BitUIDs != 0,
		journalDataAndMetadata:         flags&mountJournalDataAndMetadata != 0,
		flushBeforeJournal:             flags&mountFlushBeforeJournal != 0,
		unorderingDataMetadata:         flags&mountUnorderingDataMetadata != 0,
		disableWriteFlushes:            flags&mountDisableWriteFlushes != 0,
		trackMetadataBlocks:            flags&mountTrackMetadataBlocks != 0,
		discardDeviceSupport:           flags&mountDiscardDeviceSupport != 0,
		disableDelayedAllocation:       flags&mountDisableDelayedAllocation != 0,
	}
}

func (m mountOptions) toInt() uint32 {
	var flags uint32
	if m.printDebugInfo {
		flags |= mountPrintDebugInfo
	}
	if m.newFilesGidContainingDirectory {
		flags |= mountNewFilesGidContainingDirectory
	}
	if m.userspaceExtendedAttributes {
		flags |= mountUserspaceExtendedAttributes
	}
	if m.posixACLs {
		flags |= mountPosixACLs
	}
	if m.use16BitUIDs {
		flags |= mount16BitUIDs
	}
	if m.journalDataAndMetadata {
		flags |= mountJournalDataAndMetadata
	}
	if m.flushBeforeJournal {
		flags |= mountFlushBeforeJournal
	}
	if m.unorderingDataMetadata {
		flags |= mountUnorderingDataMetadata
	}
	if m.disableWriteFlushes {
		flags |= mountDisableWriteFlushes
	}
	if m.trackMetadataBlocks {
		flags |= mountTrackMetadataBlocks
	}
	if m.discardDeviceSupport {
		flags |= mountDiscardDeviceSupport
	}
	if m.disableDelayedAllocation {
		flags |= mountDisableDelayedAllocation
	}
	return flags
}

const (
	flagSignedDirectoryHash   uint32 = 0x0001
	flagUnsignedDirectoryHash uint32 = 0x0002
	flagTestDevCode           uint32 = 0x0004
)

func parseMiscFlags(flags uint32) miscFlags {
	return miscFlags{
		signedDirectoryHash:   flags&flagSignedDirectoryHash != 0,
		unsignedDirectoryHash: flags&flagUnsignedDirectoryHash != 0,
		developmentTest:       flags&flagTestDevCode != 0,
	}
}

func (m miscFlags) toInt() uint32 {
	var flags uint32
	if m.signedDirectoryHash {
		flags |= flagSignedDirectoryHash
	}
	if m.unsignedDirectoryHash {
		flags |= flagUnsignedDirectoryHash
	}
	if m.developmentTest {
		flags |= flagTestDevCode
	}
	return flags
}

// journalBackup is the superblock's backup of the journal inode's i_block[]
// array and i_size, kept so a damaged journal inode can be reconstructed.
type journalBackup struct {
	iBlocks [15]uint32
	iSize   uint64
}

// superblock is the in-memory representation of the 1024-byte ext4
// superblock, found at byte offset 1024 in the filesystem and, when
// sparse_super applies, backed up at the first block of several other
// block groups.
type superblock struct {
	inodeCount                   uint32
	blockCount                   uint64
	reservedBlocks               uint64
	freeBlocks                   uint64
	freeInodes                   uint32
	firstDataBlock               uint32
	blockSize                    uint32
	clusterSize                  uint64
	blocksPerGroup               uint32
	clustersPerGroup             uint32
	inodesPerGroup               uint32
	mountTime                    time.Time
	writeTime                    time.Time
	mountCount                   uint16
	mountsToFsck                 uint16
	filesystemState              filesystemState
	errorBehaviour               errorBehaviour
	minorRevision                uint16
	lastCheck                    time.Time
	checkInterval                uint32
	creatorOS                    creatorOS
	revisionLevel                uint32
	reservedBlocksDefaultUID     uint16
	reservedBlocksDefaultGID     uint16
	firstNonReservedInode        uint32
	inodeSize                    uint16
	blockGroup                   uint16
	features                     featureFlags
	uuid                         *uuid.UUID
	volumeLabel                  string
	lastMountedDirectory         string
	algorithmUsageBitmap         uint32
	preallocationBlocks          uint8
	preallocationDirectoryBlocks uint8
	reservedGDTBlocks            uint16
	journalSuperblockUUID        *uuid.UUID
	journalInode                 uint32
	journalDeviceNumber          uint32
	orphanedInodesStart          uint32
	orphanedInodeInodeNumber     uint32
	hashTreeSeed                 []uint32
	hashVersion                  hashVersion
	groupDescriptorSize          uint16
	defaultMountOptions          mountOptions
	firstMetablockGroup          uint32
	mkfsTime                     time.Time
	journalBackup                *journalBackup
	inodeMinBytes                uint16
	inodeReserveBytes            uint16
	miscFlags                    miscFlags
	raidStride                   uint16
	multiMountPreventionInterval uint16
	multiMountProtectionBlock    uint64
	raidStripeWidth              uint32
	logGroupsPerFlex              uint64
	checksumType                 uint8
	totalKBWritten                uint64
	snapshotInodeNumber           uint32
	snapshotID                    uint32
	snapshotReservedBlocks        uint64
	snapshotStartInode            uint32
	errorCount                   uint32
	errorFirstTime                time.Time
	errorFirstInode               uint32
	errorFirstBlock                uint64
	errorFirstFunction             string
	errorFirstLine                 uint32
	errorLastTime                  time.Time
	errorLastInode                 uint32
	errorLastLine                  uint32
	errorLastBlock                 uint64
	errorLastFunction               string
	mountOptions                   string
	userQuotaInode                  uint32
	groupQuotaInode                 uint32
	overheadBlocks                  uint32
	backupSuperblockBlockGroups     [2]uint32
	encryptionAlgorithms            []byte
	encryptionSalt                  []byte
	lostFoundInode                  uint32
	projectQuotaInode               uint32
	checksumSeed                    uint32
}

func (sb *superblock) equal(a *superblock) bool {
	if sb == nil || a == nil {
		return sb == a
	}
	switch {
	case (sb.uuid == nil) != (a.uuid == nil):
		return false
	case sb.uuid != nil && *sb.uuid != *a.uuid:
		return false
	case (sb.journalSuperblockUUID == nil) != (a.journalSuperblockUUID == nil):
		return false
	case sb.journalSuperblockUUID != nil && *sb.journalSuperblockUUID != *a.journalSuperblockUUID:
		return false
	}
	sbCopy, aCopy := *sb, *a
	sbCopy.uuid, aCopy.uuid = nil, nil
	sbCopy.journalSuperblockUUID, aCopy.journalSuperblockUUID = nil, nil
	if len(sbCopy.hashTreeSeed) != len(aCopy.hashTreeSeed) {
		return false
	}
	for i := range sbCopy.hashTreeSeed {
		if sbCopy.hashTreeSeed[i] != aCopy.hashTreeSeed[i] {
			return false
		}
	}
	sbCopy.hashTreeSeed, aCopy.hashTreeSeed = nil, nil
	if (sbCopy.journalBackup == nil) != (aCopy.journalBackup == nil) {
		return false
	}
	if sbCopy.journalBackup != nil && *sbCopy.journalBackup != *aCopy.journalBackup {
		return false
	}
	sbCopy.journalBackup, aCopy.journalBackup = nil, nil
	return sbCopy == aCopy
}

// superblockFromBytes parses a 1024-byte ext4 superblock.
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) != int(SuperblockSize) {
		return nil, fmt.Errorf("cannot read superblock from %d bytes instead of expected %d", len(b), SuperblockSize)
	}

	actualSignature := binary.LittleEndian.Uint16(b[0x38:0x3a])
	if actualSignature != superblockSignature {
		return nil, fmt.Errorf("invalid superblock signature at 0x38: got %#x, want %#x", actualSignature, superblockSignature)
	}

	sb := &superblock{}

	compatFlags := binary.LittleEndian.Uint32(b[0x5c:0x60])
	incompatFlags := binary.LittleEndian.Uint32(b[0x60:0x64])
	roCompatFlags := binary.LittleEndian.Uint32(b[0x64:0x68])
	sb.features = parseFeatureFlags(compatFlags, incompatFlags, roCompatFlags)

	sb.inodeCount = binary.LittleEndian.Uint32(b[0x0:0x4])

	blockCountBytes := make([]byte, 8)
	reservedBlocksBytes := make([]byte, 8)
	freeBlocksBytes := make([]byte, 8)
	copy(blockCountBytes[0:4], b[0x4:0x8])
	copy(reservedBlocksBytes[0:4], b[0x8:0xc])
	copy(freeBlocksBytes[0:4], b[0xc:0x10])
	if sb.features.fs64Bit {
		copy(blockCountBytes[4:8], b[0x150:0x154])
		copy(reservedBlocksBytes[4:8], b[0x154:0x158])
		copy(freeBlocksBytes[4:8], b[0x158:0x15c])
	}
	sb.blockCount = binary.LittleEndian.Uint64(blockCountBytes)
	sb.reservedBlocks = binary.LittleEndian.Uint64(reservedBlocksBytes)
	sb.freeBlocks = binary.LittleEndian.Uint64(freeBlocksBytes)

	sb.freeInodes = binary.LittleEndian.Uint32(b[0x10:0x14])
	sb.firstDataBlock = binary.LittleEndian.Uint32(b[0x14:0x18])
	sb.blockSize = 1 << (10 + binary.LittleEndian.Uint32(b[0x18:0x1c]))
	sb.clusterSize = 1 << uint(binary.LittleEndian.Uint32(b[0x1c:0x20]))
	sb.blocksPerGroup = binary.LittleEndian.Uint32(b[0x20:0x24])
	sb.clustersPerGroup = binary.LittleEndian.Uint32(b[0x24:0x28])
	sb.inodesPerGroup = binary.LittleEndian.Uint32(b[0x28:0x2c])
	sb.mountTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x2c:0x30])), 0).UTC()
	sb.writeTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x30:0x34])), 0).UTC()
	sb.mountCount = binary.LittleEndian.Uint16(b[0x34:0x36])
	sb.mountsToFsck = binary.LittleEndian.Uint16(b[0x36:0x38])

	sb.filesystemState = filesystemState(binary.LittleEndian.Uint16(b[0x3a:0x3c]))
	sb.errorBehaviour = errorBehaviour(binary.LittleEndian.Uint16(b[0x3c:0x3e]))
	sb.minorRevision = binary.LittleEndian.Uint16(b[0x3e:0x40])
	sb.lastCheck = time.Unix(int64(binary.LittleEndian.Uint32(b[0x40:0x44])), 0).UTC()
	sb.checkInterval = binary.LittleEndian.Uint32(b[0x44:0x48])
	sb.creatorOS = creatorOS(binary.LittleEndian.Uint32(b[0x48:0x4c]))
	sb.revisionLevel = binary.LittleEndian.Uint32(b[0x4c:0x50])
	sb.reservedBlocksDefaultUID = binary.LittleEndian.Uint16(b[0x50:0x52])
	sb.reservedBlocksDefaultGID = binary.LittleEndian.Uint16(b[0x52:0x54])

	sb.firstNonReservedInode = binary.LittleEndian.Uint32(b[0x54:0x58])
	sb.inodeSize = binary.LittleEndian.Uint16(b[0x58:0x5a])
	sb.blockGroup = binary.LittleEndian.Uint16(b[0x5a:0x5c])

	volUUID, err := uuid.FromBytes(b[0x68:0x78])
	if err != nil {
		return nil, fmt.Errorf("unable to read volume UUID: %w", err)
	}
	sb.uuid = &volUUID
	sb.volumeLabel = minString(b[0x78:0x88])
	sb.lastMountedDirectory = minString(b[0x88:0xc8])
	sb.algorithmUsageBitmap = binary.LittleEndian.Uint32(b[0xc8:0xcc])

	sb.preallocationBlocks = b[0xcc]
	sb.preallocationDirectoryBlocks = b[0xcd]
	sb.reservedGDTBlocks = binary.LittleEndian.Uint16(b[0xce:0xd0])

	journalUUID, err := uuid.FromBytes(b[0xd0:0xe0])
	if err != nil {
		return nil, fmt.Errorf("unable to read journal UUID: %w", err)
	}
	sb.journalSuperblockUUID = &journalUUID
	sb.journalInode = binary.LittleEndian.Uint32(b[0xe0:0xe4])
	sb.journalDeviceNumber = binary.LittleEndian.Uint32(b[0xe4:0xe8])
	sb.orphanedInodesStart = binary.LittleEndian.Uint32(b[0xe8:0xec])
	sb.orphanedInodeInodeNumber = sb.orphanedInodesStart

	htreeSeed := make([]uint32, 4)
	htreeSeed[0] = binary.LittleEndian.Uint32(b[0xec:0xf0])
	htreeSeed[1] = binary.LittleEndian.Uint32(b[0xf0:0xf4])
	htreeSeed[2] = binary.LittleEndian.Uint32(b[0xf4:0xf8])
	htreeSeed[3] = binary.LittleEndian.Uint32(b[0xf8:0xfc])
	sb.hashTreeSeed = htreeSeed

	sb.hashVersion = hashVersion(b[0xfc])
	sb.groupDescriptorSize = binary.LittleEndian.Uint16(b[0xfd:0xff])

	sb.defaultMountOptions = parseMountOptions(binary.LittleEndian.Uint32(b[0x100:0x104]))
	sb.firstMetablockGroup = binary.LittleEndian.Uint32(b[0x104:0x108])
	sb.mkfsTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x108:0x10c])), 0).UTC()

	journalBackupStart := 0x10c
	var jb journalBackup
	var hasJournalBackup bool
	for i := 0; i < 15; i++ {
		v := binary.LittleEndian.Uint32(b[journalBackupStart+4*i : journalBackupStart+4*i+4])
		jb.iBlocks[i] = v
		if v != 0 {
			hasJournalBackup = true
		}
	}
	iSizeHigh := binary.LittleEndian.Uint32(b[journalBackupStart+4*15 : journalBackupStart+4*16])
	iSizeLow := binary.LittleEndian.Uint32(b[journalBackupStart+4*16 : journalBackupStart+4*17])
	jb.iSize = uint64(iSizeLow) | uint64(iSizeHigh)<<32
	if hasJournalBackup {
		sb.journalBackup = &jb
	}

	sb.inodeMinBytes = binary.LittleEndian.Uint16(b[0x15c:0x15e])
	sb.inodeReserveBytes = binary.LittleEndian.Uint16(b[0x15e:0x160])
	sb.miscFlags = parseMiscFlags(binary.LittleEndian.Uint32(b[0x160:0x164]))

	sb.raidStride = binary.LittleEndian.Uint16(b[0x164:0x166])
	sb.multiMountPreventionInterval = binary.LittleEndian.Uint16(b[0x166:0x168])
	sb.multiMountProtectionBlock = binary.LittleEndian.Uint64(b[0x168:0x170])
	sb.raidStripeWidth = binary.LittleEndian.Uint32(b[0x170:0x174])

	sb.logGroupsPerFlex = 1 << uint(b[0x174])
	sb.checksumType = b[0x175]

	sb.totalKBWritten = binary.LittleEndian.Uint64(b[0x178:0x180])

	sb.snapshotInodeNumber = binary.LittleEndian.Uint32(b[0x180:0x184])
	sb.snapshotID = binary.LittleEndian.Uint32(b[0x184:0x188])
	sb.snapshotReservedBlocks = binary.LittleEndian.Uint64(b[0x188:0x190])
	sb.snapshotStartInode = binary.LittleEndian.Uint32(b[0x190:0x194])

	sb.errorCount = binary.LittleEndian.Uint32(b[0x194:0x198])
	sb.errorFirstTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x198:0x19c])), 0).UTC()
	sb.errorFirstInode = binary.LittleEndian.Uint32(b[0x19c:0x1a0])
	sb.errorFirstBlock = binary.LittleEndian.Uint64(b[0x1a0:0x1a8])
	sb.errorFirstFunction = minString(b[0x1a8:0x1c8])
	sb.errorFirstLine = binary.LittleEndian.Uint32(b[0x1c8:0x1cc])
	sb.errorLastTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x1cc:0x1d0])), 0).UTC()
	sb.errorLastInode = binary.LittleEndian.Uint32(b[0x1d0:0x1d4])
	sb.errorLastLine = binary.LittleEndian.Uint32(b[0x1d4:0x1d8])
	sb.errorLastBlock = binary.LittleEndian.Uint64(b[0x1d8:0x1e0])
	sb.errorLastFunction = minString(b[0x1e0:0x200])

	sb.mountOptions = minString(b[0x200:0x240])
	sb.userQuotaInode = binary.LittleEndian.Uint32(b[0x240:0x244])
	sb.groupQuotaInode = binary.LittleEndian.Uint32(b[0x244:0x248])
	sb.overheadBlocks = binary.LittleEndian.Uint32(b[0x248:0x24c])
	sb.backupSuperblockBlockGroups = [2]uint32{
		binary.LittleEndian.Uint32(b[0x24c:0x250]),
		binary.LittleEndian.Uint32(b[0x250:0x254]),
	}
	sb.encryptionAlgorithms = append([]byte(nil), b[0x254:0x258]...)
	sb.encryptionSalt = append([]byte(nil), b[0x258:0x268]...)
	sb.lostFoundInode = binary.LittleEndian.Uint32(b[0x268:0x26c])
	sb.projectQuotaInode = binary.LittleEndian.Uint32(b[0x26c:0x270])

	sb.checksumSeed = binary.LittleEndian.Uint32(b[0x270:0x274])

	if sb.features.metadataChecksums {
		checksum := binary.LittleEndian.Uint32(b[0x3fc:0x400])
		actual := crc.CRC32c(^uint32(0), b[0:0x3fc])
		if actual != checksum {
			return nil, fmt.Errorf("invalid superblock checksum: got %#x, want %#x", actual, checksum)
		}
	}

	if err := sb.check(); err != nil {
		return nil, err
	}

	return sb, nil
}

// check validates the fields of a parsed superblock beyond the magic
// number and checksum already verified in superblockFromBytes: a
// filesystem with zero inodes or blocks, an inode record too small to hold
// the fixed-layout fields this package reads, a first-non-reserved-inode
// inside the traditionally reserved range, or a group descriptor size
// outside the two sizes ext4 defines is not a filesystem this package can
// safely operate on.
func (sb *superblock) check() error {
	if sb.inodeCount == 0 {
		return fmt.Errorf("%w: inode count is zero", ErrSuperblockInvalid)
	}
	if sb.blockCount == 0 {
		return fmt.Errorf("%w: block count is zero", ErrSuperblockInvalid)
	}
	if sb.inodeSize < 128 {
		return fmt.Errorf("%w: inode size %d is smaller than minimum 128", ErrSuperblockInvalid, sb.inodeSize)
	}
	if sb.firstNonReservedInode < 11 {
		return fmt.Errorf("%w: first non-reserved inode %d is inside the reserved range (<11)", ErrSuperblockInvalid, sb.firstNonReservedInode)
	}
	if sb.groupDescriptorSize != 0 && (sb.groupDescriptorSize < 32 || sb.groupDescriptorSize > 64) {
		return fmt.Errorf("%w: group descriptor size %d is outside the valid range [32,64]", ErrSuperblockInvalid, sb.groupDescriptorSize)
	}
	return nil
}

// blocksCount returns the total number of blocks in the filesystem.
func (sb *superblock) blocksCount() uint64 {
	return sb.blockCount
}

// setBlocksCount sets the total number of blocks in the filesystem.
func (sb *superblock) setBlocksCount(count uint64) {
	sb.blockCount = count
}

// toBytes serializes the superblock into its 1024-byte on-disk form.
func (sb *superblock) toBytes() ([]byte, error) {
	b := make([]byte, SuperblockSize)

	binary.LittleEndian.PutUint16(b[0x38:0x3a], superblockSignature)
	compatFlags, incompatFlags, roCompatFlags := sb.features.toInts()
	binary.LittleEndian.PutUint32(b[0x5c:0x60], compatFlags)
	binary.LittleEndian.PutUint32(b[0x60:0x64], incompatFlags)
	binary.LittleEndian.PutUint32(b[0x64:0x68], roCompatFlags)

	binary.LittleEndian.PutUint32(b[0x0:0x4], sb.inodeCount)

	blockCountBytes := make([]byte, 8)
	reservedBlocksBytes := make([]byte, 8)
	freeBlocksBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(blockCountBytes, sb.blockCount)
	binary.LittleEndian.PutUint64(reservedBlocksBytes, sb.reservedBlocks)
	binary.LittleEndian.PutUint64(freeBlocksBytes, sb.freeBlocks)
	copy(b[0x4:0x8], blockCountBytes[0:4])
	copy(b[0x8:0xc], reservedBlocksBytes[0:4])
	copy(b[0xc:0x10], freeBlocksBytes[0:4])
	if sb.features.fs64Bit {
		copy(b[0x150:0x154], blockCountBytes[4:8])
		copy(b[0x154:0x158], reservedBlocksBytes[4:8])
		copy(b[0x158:0x15c], freeBlocksBytes[4:8])
	}

	binary.LittleEndian.PutUint32(b[0x10:0x14], sb.freeInodes)
	binary.LittleEndian.PutUint32(b[0x14:0x18], sb.firstDataBlock)
	if sb.blockSize < 1024 {
		return nil, fmt.Errorf("invalid block size %d", sb.blockSize)
	}
	binary.LittleEndian.PutUint32(b[0x18:0x1c], uint32(math.Log2(float64(sb.blockSize)))-10)
	if sb.clusterSize > 0 {
		binary.LittleEndian.PutUint32(b[0x1c:0x20], uint32(math.Log2(float64(sb.clusterSize))))
	}
	binary.LittleEndian.PutUint32(b[0x20:0x24], sb.blocksPerGroup)
	binary.LittleEndian.PutUint32(b[0x24:0x28], sb.clustersPerGroup)
	binary.LittleEndian.PutUint32(b[0x28:0x2c], sb.inodesPerGroup)
	binary.LittleEndian.PutUint32(b[0x2c:0x30], uint32(sb.mountTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x30:0x34], uint32(sb.writeTime.Unix()))
	binary.LittleEndian.PutUint16(b[0x34:0x36], sb.mountCount)
	binary.LittleEndian.PutUint16(b[0x36:0x38], sb.mountsToFsck)

	binary.LittleEndian.PutUint16(b[0x3a:0x3c], uint16(sb.filesystemState))
	binary.LittleEndian.PutUint16(b[0x3c:0x3e], uint16(sb.errorBehaviour))
	binary.LittleEndian.PutUint16(b[0x3e:0x40], sb.minorRevision)
	binary.LittleEndian.PutUint32(b[0x40:0x44], uint32(sb.lastCheck.Unix()))
	binary.LittleEndian.PutUint32(b[0x44:0x48], sb.checkInterval)
	binary.LittleEndian.PutUint32(b[0x48:0x4c], uint32(sb.creatorOS))
	binary.LittleEndian.PutUint32(b[0x4c:0x50], sb.revisionLevel)
	binary.LittleEndian.PutUint16(b[0x50:0x52], sb.reservedBlocksDefaultUID)
	binary.LittleEndian.PutUint16(b[0x52:0x54], sb.reservedBlocksDefaultGID)

	binary.LittleEndian.PutUint32(b[0x54:0x58], sb.firstNonReservedInode)
	binary.LittleEndian.PutUint16(b[0x58:0x5a], sb.inodeSize)
	binary.LittleEndian.PutUint16(b[0x5a:0x5c], sb.blockGroup)

	if sb.uuid != nil {
		copy(b[0x68:0x78], sb.uuid[:])
	}
	labelBytes, err := stringToASCIIBytes(sb.volumeLabel, 16)
	if err != nil {
		return nil, fmt.Errorf("error converting volume label: %w", err)
	}
	copy(b[0x78:0x88], labelBytes)
	lastMountBytes, err := stringToASCIIBytes(sb.lastMountedDirectory, 64)
	if err != nil {
		return nil, fmt.Errorf("error converting last mounted directory: %w", err)
	}
	copy(b[0x88:0xc8], lastMountBytes)

	binary.LittleEndian.PutUint32(b[0xc8:0xcc], sb.algorithmUsageBitmap)
	b[0xcc] = sb.preallocationBlocks
	b[0xcd] = sb.preallocationDirectoryBlocks
	binary.LittleEndian.PutUint16(b[0xce:0xd0], sb.reservedGDTBlocks)

	if sb.journalSuperblockUUID != nil {
		copy(b[0xd0:0xe0], sb.journalSuperblockUUID[:])
	}
	binary.LittleEndian.PutUint32(b[0xe0:0xe4], sb.journalInode)
	binary.LittleEndian.PutUint32(b[0xe4:0xe8], sb.journalDeviceNumber)
	binary.LittleEndian.PutUint32(b[0xe8:0xec], sb.orphanedInodesStart)

	for i := 0; i < 4 && i < len(sb.hashTreeSeed); i++ {
		binary.LittleEndian.PutUint32(b[0xec+4*i:0xf0+4*i], sb.hashTreeSeed[i])
	}

	b[0xfc] = byte(sb.hashVersion)
	binary.LittleEndian.PutUint16(b[0xfd:0xff], sb.groupDescriptorSize)

	binary.LittleEndian.PutUint32(b[0x100:0x104], sb.defaultMountOptions.toInt())
	binary.LittleEndian.PutUint32(b[0x104:0x108], sb.firstMetablockGroup)
	binary.LittleEndian.PutUint32(b[0x108:0x10c], uint32(sb.mkfsTime.Unix()))

	if sb.journalBackup != nil {
		journalBackupStart := 0x10c
		for i := 0; i < 15; i++ {
			binary.LittleEndian.PutUint32(b[journalBackupStart+4*i:journalBackupStart+4*i+4], sb.journalBackup.iBlocks[i])
		}
		binary.LittleEndian.PutUint32(b[journalBackupStart+4*15:journalBackupStart+4*16], uint32(sb.journalBackup.iSize>>32))
		binary.LittleEndian.PutUint32(b[journalBackupStart+4*16:journalBackupStart+4*17], uint32(sb.journalBackup.iSize))
	}

	binary.LittleEndian.PutUint16(b[0x15c:0x15e], sb.inodeMinBytes)
	binary.LittleEndian.PutUint16(b[0x15e:0x160], sb.inodeReserveBytes)
	binary.LittleEndian.PutUint32(b[0x160:0x164], sb.miscFlags.toInt())

	binary.LittleEndian.PutUint16(b[0x164:0x166], sb.raidStride)
	binary.LittleEndian.PutUint16(b[0x166:0x168], sb.multiMountPreventionInterval)
	binary.LittleEndian.PutUint64(b[0x168:0x170], sb.multiMountProtectionBlock)
	binary.LittleEndian.PutUint32(b[0x170:0x174], sb.raidStripeWidth)

	if sb.logGroupsPerFlex > 0 {
		b[0x174] = byte(math.Log2(float64(sb.logGroupsPerFlex)))
	}
	b[0x175] = sb.checksumType

	binary.LittleEndian.PutUint64(b[0x178:0x180], sb.totalKBWritten)

	binary.LittleEndian.PutUint32(b[0x180:0x184], sb.snapshotInodeNumber)
	binary.LittleEndian.PutUint32(b[0x184:0x188], sb.snapshotID)
	binary.LittleEndian.PutUint64(b[0x188:0x190], sb.snapshotReservedBlocks)
	binary.LittleEndian.PutUint32(b[0x190:0x194], sb.snapshotStartInode)

	binary.LittleEndian.PutUint32(b[0x194:0x198], sb.errorCount)
	binary.LittleEndian.PutUint32(b[0x198:0x19c], uint32(sb.errorFirstTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x19c:0x1a0], sb.errorFirstInode)
	binary.LittleEndian.PutUint64(b[0x1a0:0x1a8], sb.errorFirstBlock)
	firstFnBytes, err := stringToASCIIBytes(sb.errorFirstFunction, 32)
	if err != nil {
		return nil, err
	}
	copy(b[0x1a8:0x1c8], firstFnBytes)
	binary.LittleEndian.PutUint32(b[0x1c8:0x1cc], sb.errorFirstLine)
	binary.LittleEndian.PutUint32(b[0x1cc:0x1d0], uint32(sb.errorLastTime.Unix()))
	binary.LittleEndian.PutUint32(b[0x1d0:0x1d4], sb.errorLastInode)
	binary.LittleEndian.PutUint32(b[0x1d4:0x1d8], sb.errorLastLine)
	binary.LittleEndian.PutUint64(b[0x1d8:0x1e0], sb.errorLastBlock)
	lastFnBytes, err := stringToASCIIBytes(sb.errorLastFunction, 32)
	if err != nil {
		return nil, err
	}
	copy(b[0x1e0:0x200], lastFnBytes)

	mountOptBytes, err := stringToASCIIBytes(sb.mountOptions, 64)
	if err != nil {
		return nil, err
	}
	copy(b[0x200:0x240], mountOptBytes)
	binary.LittleEndian.PutUint32(b[0x240:0x244], sb.userQuotaInode)
	binary.LittleEndian.PutUint32(b[0x244:0x248], sb.groupQuotaInode)
	binary.LittleEndian.PutUint32(b[0x248:0x24c], sb.overheadBlocks)
	binary.LittleEndian.PutUint32(b[0x24c:0x250], sb.backupSuperblockBlockGroups[0])
	binary.LittleEndian.PutUint32(b[0x250:0x254], sb.backupSuperblockBlockGroups[1])
	copy(b[0x254:0x258], sb.encryptionAlgorithms)
	copy(b[0x258:0x268], sb.encryptionSalt)
	binary.LittleEndian.PutUint32(b[0x268:0x26c], sb.lostFoundInode)
	binary.LittleEndian.PutUint32(b[0x26c:0x270], sb.projectQuotaInode)

	binary.LittleEndian.PutUint32(b[0x270:0x274], sb.checksumSeed)

	if sb.features.metadataChecksums {
		checksum := crc.CRC32c(^uint32(0), b[0:0x3fc])
		binary.LittleEndian.PutUint32(b[0x3fc:0x400], checksum)
	}

	return b, nil
}
