// Package common holds the constants and small value types shared by every
// layer of the image: block size, region limits, inode/block numbering, and
// the file-type tag used in place of the source's function-pointer tables.
package common

// BlockSize is the fixed size of a disk block, in bytes.
const BlockSize = 1024

// NDIRECT is the number of direct block-map slots held in an inode.
const NDIRECT = 10

// NINDIRECT is the number of block numbers that fit in one indirect block.
const NINDIRECT = BlockSize / 4

// NINDIRECT2 is the number of block numbers reachable through the
// doubly-indirect block.
const NINDIRECT2 = NINDIRECT * NINDIRECT

// MAXFILESIZE is the largest size, in bytes, a regular file may reach.
const MAXFILESIZE = (NDIRECT + NINDIRECT + NINDIRECT2) * BlockSize

// MAXNAMELEN is the largest length of a path component, not counting the
// trailing NUL.
const MAXNAMELEN = 59

// InodeSize is the on-disk size of one inode record.
const InodeSize = 64

// symlinkHeaderSize is {size, ftype, nlink}, each a u32, which a symlink
// inode keeps before reinterpreting the rest of the record as inline target
// bytes (the mode field's slot is folded into the target buffer).
const symlinkHeaderSize = 12

// MAXSYMLINKLEN is the largest length of an inline symlink target, not
// counting the trailing NUL, given the record is reinterpreted in place.
const MAXSYMLINKLEN = InodeSize - symlinkHeaderSize - 1

// DirentSize is the on-disk size of one directory entry record.
const DirentSize = 64

// JMAX is the maximum number of data blocks a single journal batch may
// stage.
const JMAX = 256

// Journal region layout, in blocks relative to the region's first block.
const (
	JournalHeaderBlock    = 0
	JournalAffectedBlock  = 1
	JournalIndirect2Block = 2
	JournalIndirectBlock  = 3
	JournalDataStart      = 4
	JournalRegionBlocks   = JournalDataStart + JMAX // 260
)

// Magic is the superblock magic constant.
const Magic = 0x05f5f5f5

// Bnum is a block number; 0 is the sentinel for "no block" / "out of file".
type Bnum = uint32

// Inum is an inode number; 0 is the sentinel for "no inode".
type Inum = uint32

const NullBnum Bnum = 0
const NullInum Inum = 0

// RootInum is the inode number of the file system root directory.
const RootInum Inum = 1

// FileType tags what an inode record represents. Replaces the source's
// per-type function-pointer tables with a plain sum type dispatched by
// ordinary Go switches.
type FileType uint32

const (
	FreeType FileType = iota
	RegularType
	DirectoryType
	SymlinkType
)

// ResizeFlags records what a journal batch did to a file's meta-blocks.
// Touched* means the block's contents changed and must be written back;
// Meta* means the block's own bitmap bit changed (allocated if the batch's
// Kind is ALLOC, freed if it is FREE) — set only on the batch that actually
// crosses the meta-block boundary, never on every slot write within an
// already-existing indirect block.
type ResizeFlags uint32

const (
	TouchedIndirect ResizeFlags = 1 << iota
	TouchedIndirect2
	MetaIndirect
	MetaIndirect2
)
