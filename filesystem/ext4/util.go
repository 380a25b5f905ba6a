package ext4

import (
	"fmt"
	"os"
	"sort"
	"syscall"
)

// byte-size constants used throughout mkfs sizing calculations
const (
	KB int64 = 1024
	MB int64 = KB * 1024
	GB int64 = MB * 1024
)

// Ext4MinSize is the smallest filesystem this package will create. Below this
// there is not enough room for a superblock, one group descriptor, the
// reserved inodes and a root directory block.
const Ext4MinSize int64 = MB

// group descriptor sizes, selected by whether the 64bit feature is enabled
const (
	groupDescriptorSize      uint16 = 32
	groupDescriptorSize64Bit uint16 = 64
)

const minDirEntryLength = 12

// gdtChecksumType tells the group descriptor (de)serializer which checksum,
// if any, occupies the gd_checksum field.
type gdtChecksumType uint8

const (
	gdtChecksumNone gdtChecksumType = iota
	gdtChecksumGDT                  // legacy uninit_bg CRC16 checksum
	gdtChecksumMetadata             // metadata_csum CRC32C checksum
)

// gdtChecksumType reports which checksum algorithm, if any, applies to this
// superblock's group descriptors, based on the feature flags it carries.
func (sb *superblock) gdtChecksumType() gdtChecksumType {
	switch {
	case sb.features.metadataChecksums:
		return gdtChecksumMetadata
	case sb.features.uninitializedBlockGroups:
		return gdtChecksumGDT
	default:
		return gdtChecksumNone
	}
}

// blockGroupCount returns the number of block groups implied by the
// superblock's block count and blocks-per-group, rounding up for a partial
// final group.
func (sb *superblock) blockGroupCount() uint64 {
	if sb.blocksPerGroup == 0 {
		return 0
	}
	return (sb.blockCount + uint64(sb.blocksPerGroup) - 1) / uint64(sb.blocksPerGroup)
}

// filesystemState records s_state: whether the filesystem was cleanly
// unmounted the last time it was written.
type filesystemState uint16

const (
	fsStateCleanlyUnmounted filesystemState = 1
	fsStateErrors           filesystemState = 2
)

// errorBehaviour records s_errors: what the kernel should do when it hits a
// filesystem inconsistency.
type errorBehaviour uint16

const (
	errorsContinue        errorBehaviour = 1
	errorsRemountReadonly errorBehaviour = 2
	errorsPanic           errorBehaviour = 3
)

// creatorOS records s_creator_os, the OS that created the filesystem.
type creatorOS uint32

const (
	osLinux   creatorOS = 0
	osHurd    creatorOS = 1
	osMasix   creatorOS = 2
	osFreeBSD creatorOS = 3
	osLites   creatorOS = 4
)

const checkSumTypeCRC32c uint8 = 1

// lowercase aliases for the hashVersion constants, used where the field
// holds a superblock-native value rather than the exported API constant.
const (
	hashLegacy          = HashVersionLegacy
	hashHalfMD4         = HashVersionHalfMD4
	hashTea             = HashVersionTEA
	hashLegacyUnsigned  = HashVersionLegacyUnsigned
	hashHalfMD4Unsigned = HashVersionHalfMD4Unsigned
	hashTeaUnsigned     = HashVersionTEAUnsigned
)

// featureFlags tracks the ext4 feature bits (s_feature_compat,
// s_feature_incompat, s_feature_ro_compat) as named booleans, so the rest of
// the package can test e.g. fflags.extents instead of masking bits directly.
type featureFlags struct {
	// compat (s_feature_compat)
	directoryIndices              bool
	hasJournal                    bool
	extendedAttributes             bool
	reservedGDTBlocksForExpansion bool // resize_inode

	// incompat (s_feature_incompat)
	directoryEntriesRecordFileType   bool // filetype
	separateJournalDevice            bool
	metaBlockGroups                  bool
	extents                          bool
	fs64Bit                          bool
	multipleMountProtection          bool
	flexBlockGroups                  bool
	metadataChecksumSeedInSuperblock bool
	largeDirectory                   bool
	inlineData                       bool
	encrypt                          bool

	// ro_compat (s_feature_ro_compat)
	sparseSuperblock         bool
	largeFile                bool
	hugeFile                 bool
	uninitializedBlockGroups bool // gdt_csum
	largeSubdirectoryCount   bool // dir_nlink
	largeInodes              bool // extra_isize
	quota                    bool
	bigalloc                 bool
	metadataChecksums        bool
	projectQuotas            bool
	orphanFile               bool
}

// defaultFeatureFlags is the baseline mkfs feature set: roughly what
// mke2fs's "ext4" fs_type applies by default.
var defaultFeatureFlags = featureFlags{
	directoryIndices:              true,
	hasJournal:                    true,
	extendedAttributes:            true,
	reservedGDTBlocksForExpansion: true,
	directoryEntriesRecordFileType: true,
	extents:                       true,
	fs64Bit:                       false,
	flexBlockGroups:               true,
	sparseSuperblock:              true,
	largeFile:                     true,
	hugeFile:                      true,
	largeSubdirectoryCount:        true,
	largeInodes:                   true,
}

// FeatureOpt mutates a feature flag set at mkfs time. Callers get one from
// the With* functions below and pass it in Params.Features.
type FeatureOpt func(*featureFlags)

// WithFeatureJournal toggles the has_journal feature, controlling whether
// mkfs creates and initializes a jbd2 journal inode.
func WithFeatureJournal(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.hasJournal = enabled }
}

// WithFeatureSeparateJournalDevice toggles whether the journal lives on an
// external device rather than an internal journal inode.
func WithFeatureSeparateJournalDevice(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.separateJournalDevice = enabled }
}

// WithFeature64Bit toggles the 64bit feature, which doubles the group
// descriptor size to hold the high halves of block/inode locations.
func WithFeature64Bit(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.fs64Bit = enabled }
}

// WithFeatureMetadataChecksums toggles the metadata_csum ro_compat feature.
func WithFeatureMetadataChecksums(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.metadataChecksums = enabled }
}

// WithFeatureFlexBlockGroups toggles the flex_bg incompat feature, which
// clusters several groups' bitmaps and inode tables together.
func WithFeatureFlexBlockGroups(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.flexBlockGroups = enabled }
}

// WithFeatureExtendedAttributes toggles the ext_attr compat feature.
func WithFeatureExtendedAttributes(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.extendedAttributes = enabled }
}

// WithFeatureProjectQuotas toggles the project quota ro_compat feature,
// reserving an inode to track per-project quota accounting.
func WithFeatureProjectQuotas(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.projectQuotas = enabled }
}

// WithFeatureReservedGDTBlocksForExpansion toggles the resize_inode compat
// feature, which reserves GDT blocks so the filesystem can later grow.
func WithFeatureReservedGDTBlocksForExpansion(enabled bool) FeatureOpt {
	return func(f *featureFlags) { f.reservedGDTBlocksForExpansion = enabled }
}

// miscFlags tracks s_flags: small behavioral switches unrelated to the
// feature-compatibility bitmasks above.
type miscFlags struct {
	signedDirectoryHash   bool
	unsignedDirectoryHash bool
	developmentTest       bool
}

var defaultMiscFlags = miscFlags{
	unsignedDirectoryHash: true,
}

// mountOptions tracks s_default_mount_opts: behavior the kernel applies at
// mount time unless overridden on the mount command line.
type mountOptions struct {
	printDebugInfo               bool
	newFilesGidContainingDirectory bool
	userspaceExtendedAttributes  bool
	posixACLs                    bool
	use16BitUIDs                 bool
	journalDataAndMetadata        bool
	flushBeforeJournal            bool
	unorderingDataMetadata        bool
	disableWriteFlushes           bool
	trackMetadataBlocks           bool
	discardDeviceSupport          bool
	disableDelayedAllocation      bool
}

var defaultMountOptionsValue = mountOptions{
	userspaceExtendedAttributes: true,
	posixACLs:                   true,
}

// MountOpt mutates a default mount options set, in the same functional
// option style as FeatureOpt.
type MountOpt func(*mountOptions)

// WithMountUserspaceExtendedAttributes toggles the user_xattr default mount option.
func WithMountUserspaceExtendedAttributes(enabled bool) MountOpt {
	return func(m *mountOptions) { m.userspaceExtendedAttributes = enabled }
}

// WithMountPosixACLs toggles the acl default mount option.
func WithMountPosixACLs(enabled bool) MountOpt {
	return func(m *mountOptions) { m.posixACLs = enabled }
}

// defaultMountOptionsFromOpts builds the default mount options a freshly
// created filesystem records in its superblock, starting from the package
// defaults and applying any caller-supplied overrides.
func defaultMountOptionsFromOpts(opts []MountOpt) *mountOptions {
	m := defaultMountOptionsValue
	for _, opt := range opts {
		opt(&m)
	}
	return &m
}

// calculateBackupSuperblockGroups returns, in ascending order, the block
// groups below bgs that hold a sparse-super backup superblock: those whose
// number is a power of 3, 5, or 7 (including 3^0 = 5^0 = 7^0 = 1). Group 0,
// which always holds the primary superblock, is not included here; callers
// that need it add it separately.
func calculateBackupSuperblockGroups(bgs int64) []int64 {
	seen := make(map[int64]bool)
	for _, base := range []int64{3, 5, 7} {
		for p := int64(1); p < bgs; p *= base {
			seen[p] = true
		}
	}
	groups := make([]int64, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// journalDevice resolves an external journal device path to the device
// number (major<<8|minor, the traditional Linux dev_t encoding) recorded in
// s_journal_dev. Only regular device files are supported.
func journalDevice(path string) (uint32, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("cannot stat journal device %s: %w", path, err)
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("cannot determine device number for %s", path)
	}
	return uint32(sys.Rdev), nil
}

// stringToASCIIBytes encodes s as size bytes, truncating or NUL-padding as
// needed, for fixed-width on-disk string fields like the volume label.
func stringToASCIIBytes(s string, size int) ([]byte, error) {
	b := make([]byte, size)
	copy(b, s)
	return b, nil
}

// minString returns the leading NUL-terminated portion of b as a string,
// the inverse of stringToASCIIBytes for fixed-width fields that may not use
// their full width.
func minString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
