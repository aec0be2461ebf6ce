// Package layout holds the fixed numerical constants that define ExFS2's
// on-disk format (spec.md §3, §6). Every other internal package imports
// this one instead of redeclaring the numbers, so the format is defined
// in exactly one place.
package layout

import "math"

const (
	// BlockSize (B) is the size in bytes of every object slot, directory
	// block, indirect block, and bitmap block.
	BlockSize = 4096

	// SlotsPerSegment (K) is the number of object slots in one segment,
	// i.e. the number of blocks after the bitmap block.
	SlotsPerSegment = 255

	// SegmentSize (S) is the exact on-disk size of a segment file: one
	// bitmap block plus SlotsPerSegment object slots.
	SegmentSize = BlockSize * (1 + SlotsPerSegment)

	// DirectPointers (D) is the number of direct block pointers carried
	// in an inode record.
	DirectPointers = 10

	// PointersPerIndirect (P) is the number of block numbers packed into
	// one indirect block: BlockSize / 4.
	PointersPerIndirect = BlockSize / 4

	// DirectoryEntrySize is the fixed size of one directory entry record:
	// a 4-byte inode number plus a 256-byte null-terminated name field.
	DirectoryEntrySize = 4 + MaxNameLength + 1

	// MaxNameLength is the longest name (in bytes) a directory entry can
	// hold, not counting the terminating NUL.
	MaxNameLength = 255

	// EntriesPerBlock (E) is the number of directory entries packed into
	// one directory data block.
	EntriesPerBlock = BlockSize / DirectoryEntrySize

	// RootInode is the global inode number reserved for the root directory.
	RootInode uint32 = 0

	// RootDataBlock is the global data-block number reserved for the
	// root directory's first (and, until it grows, only) data block.
	RootDataBlock uint32 = 0
)

// NullBlock is the sentinel meaning "no block here". It is deliberately
// outside the range any real block number can occupy in any store this
// implementation could build, and is distinct from block number 0, which
// is a legitimately allocatable slot (in fact, the root's own slot).
const NullBlock uint32 = math.MaxUint32

// MaxFileBlocks is the largest logical block index (exclusive upper
// bound) addressable through direct + single + double + triple indirect
// pointers, per spec.md §4.4.
const MaxFileBlocks = DirectPointers +
	PointersPerIndirect +
	PointersPerIndirect*PointersPerIndirect +
	PointersPerIndirect*PointersPerIndirect*PointersPerIndirect

// MaxFileSize is MaxFileBlocks expressed in bytes.
const MaxFileSize = int64(MaxFileBlocks) * BlockSize
