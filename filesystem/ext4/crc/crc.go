// Package crc computes the CRC32C (Castagnoli) checksums used throughout
// ext4 metadata: superblock, group descriptors, inodes, directory blocks,
// extent tail blocks and the jbd2 journal.
package crc

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

// CRC32c computes a CRC32C checksum over b, seeded with crc. To checksum a
// structure that itself stores the running seed (e.g. ext4_sb_info's
// s_checksum_seed), pass that seed in; to start a fresh checksum pass 0 or
// ^uint32(0) per the caller's convention. ext4 feeds the previous crc back in
// to checksum multiple disjoint byte ranges (such as inode number + inode
// generation + inode bytes) as a single running computation.
func CRC32c(crc uint32, b []byte) uint32 {
	return crc32.Update(crc, table, b)
}

// Seed computes the filesystem-wide checksum seed used for inode and some
// directory-block checksums: crc32c(~0, uuid).
func Seed(uuid []byte) uint32 {
	return CRC32c(^uint32(0), uuid)
}
