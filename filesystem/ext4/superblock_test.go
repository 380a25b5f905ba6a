package ext4

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/ext4fs/ext4fs/testhelper"
	"github.com/go-test/deep"
)

func TestSuperblockFromBytes(t *testing.T) {
	expected, _, b, _, err := testGetValidSuperblockAndGDTs()
	if err != nil {
		t.Fatalf("Failed to create valid superblock: %v", err)
	}
	sb, err := superblockFromBytes(b)
	if err != nil {
		t.Fatalf("Failed to parse superblock bytes: %v", err)
	}

	deep.CompareUnexportedFields = true
	if diff := deep.Equal(*expected, *sb); diff != nil {
		t.Errorf("superblockFromBytes() = %v", diff)
	}
}

func TestSuperblockToBytes(t *testing.T) {
	sb, _, expected, _, err := testGetValidSuperblockAndGDTs()
	if err != nil {
		t.Fatalf("Failed to create valid superblock: %v", err)
	}
	b, err := sb.toBytes()
	if err != nil {
		t.Fatalf("Failed to serialize superblock: %v", err)
	}
	diff, diffString := testhelper.DumpByteSlicesWithDiffs(b, expected, 32, false, true, true)
	if diff {
		t.Errorf("superblock.toBytes() mismatched, actual then expected\n%s", diffString)
	}
}

func TestSuperblockFromBytesRejectsInvalid(t *testing.T) {
	_, _, validBytes, _, err := testGetValidSuperblockAndGDTs()
	if err != nil {
		t.Fatalf("Failed to create valid superblock: %v", err)
	}

	tests := []struct {
		name    string
		corrupt func(b []byte)
	}{
		{
			name: "zero inode count",
			corrupt: func(b []byte) {
				binary.LittleEndian.PutUint32(b[0x0:0x4], 0)
			},
		},
		{
			name: "zero block count",
			corrupt: func(b []byte) {
				binary.LittleEndian.PutUint32(b[0x4:0x8], 0)
			},
		},
		{
			name: "inode size below 128",
			corrupt: func(b []byte) {
				binary.LittleEndian.PutUint16(b[0x58:0x5a], 64)
			},
		},
		{
			name: "first non-reserved inode inside reserved range",
			corrupt: func(b []byte) {
				binary.LittleEndian.PutUint32(b[0x54:0x58], 5)
			},
		},
		{
			name: "group descriptor size outside [32,64]",
			corrupt: func(b []byte) {
				binary.LittleEndian.PutUint16(b[0xfd:0xff], 128)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := append([]byte(nil), validBytes...)
			tt.corrupt(b)
			if _, err := superblockFromBytes(b); !errors.Is(err, ErrSuperblockInvalid) {
				t.Errorf("superblockFromBytes() with %s: expected ErrSuperblockInvalid, got %v", tt.name, err)
			}
		})
	}
}

func TestSuperblockBlocksCountRoundTrip(t *testing.T) {
	sb := &superblock{}
	const count uint64 = 0x1_0000_0001 // exercises bits beyond 32
	sb.setBlocksCount(count)
	if got := sb.blocksCount(); got != count {
		t.Errorf("blocksCount() = %#x, want %#x", got, count)
	}
}

func TestCalculateBackupSuperblocks(t *testing.T) {
	tests := []struct {
		bgs      int64
		expected []int64
	}{
		// Test case 1: Two block groups
		{bgs: 2, expected: []int64{1}},

		// Test case 2: Multiple block groups
		{bgs: 119, expected: []int64{1, 3, 5, 7, 9, 25, 27, 49, 81}},

		// Test case 3: Large number of block groups
		{bgs: 746, expected: []int64{1, 3, 5, 7, 9, 25, 27, 49, 81, 125, 243, 343, 625, 729}},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			result := calculateBackupSuperblockGroups(tt.bgs)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("calculateBackupSuperblockGroups(%d) = %v; want %v",
					tt.bgs, result, tt.expected)
			}
		})
	}
}
