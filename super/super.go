// Package super holds the superblock record and the static layout
// computation derived from it: where the bitmap, inode table, journal
// region and data region each begin. The superblock is immutable after
// mount, matching spec.md §3.
//
// Grounded on the teacher's FsSuper (other_examples/mit-pdos-go-nfsd__super.go),
// generalized from its hardcoded sizes to the on-disk, magic-stamped record
// spec.md §6 specifies.
package super

import (
	"encoding/binary"
	"fmt"

	"github.com/ospfs/journalfs/common"
)

// Super is the decoded superblock: block 1 of the image.
type Super struct {
	Magic         uint32
	NBlocks       common.Bnum
	NInodes       uint32
	FirstInodeB   common.Bnum
	FirstJournalB common.Bnum
	NJournalB     common.Bnum
	FirstDataB    common.Bnum
}

const superFields = 7
const superEncodedSize = superFields * 4

// BitmapStart is the first bitmap block; the bitmap always begins right
// after the boot sector and superblock (blocks 0 and 1).
const BitmapStart common.Bnum = 2

// NBitmapBlocks returns how many blocks the free-block bitmap occupies for
// an image of nblocks total blocks, sized at one bit per image block. Package
// bitmap maps bit 0 to the first data block, so the blocks before the data
// region (boot sector, superblock, bitmap, inode table, journal) have no bit
// and the last bits of the region go unused.
func NBitmapBlocks(nblocks common.Bnum) common.Bnum {
	bits := common.BlockSize * 8
	return common.Bnum((uint64(nblocks) + uint64(bits) - 1) / uint64(bits))
}

// Layout computes a fresh superblock for an image of the given size, with
// the given inode count. It does not write anything; callers (mkfs, or an
// in-memory test harness) still need to zero and stamp the regions.
func Layout(nblocks common.Bnum, ninodes uint32) (Super, error) {
	firstInode := BitmapStart + NBitmapBlocks(nblocks)
	inodeBlocks := common.Bnum((uint64(ninodes)*common.InodeSize + common.BlockSize - 1) / common.BlockSize)
	firstJournal := firstInode + inodeBlocks
	firstData := firstJournal + common.JournalRegionBlocks
	if firstData >= nblocks {
		return Super{}, fmt.Errorf("super: image of %d blocks too small for %d inodes", nblocks, ninodes)
	}
	return Super{
		Magic:         common.Magic,
		NBlocks:       nblocks,
		NInodes:       ninodes,
		FirstInodeB:   firstInode,
		FirstJournalB: firstJournal,
		NJournalB:     common.JournalRegionBlocks,
		FirstDataB:    firstData,
	}, nil
}

// Decode parses the superblock out of block 1's contents.
func Decode(blk []byte) (Super, error) {
	s := Super{
		Magic:         binary.LittleEndian.Uint32(blk[0:4]),
		NBlocks:       binary.LittleEndian.Uint32(blk[4:8]),
		NInodes:       binary.LittleEndian.Uint32(blk[8:12]),
		FirstInodeB:   binary.LittleEndian.Uint32(blk[12:16]),
		FirstJournalB: binary.LittleEndian.Uint32(blk[16:20]),
		NJournalB:     binary.LittleEndian.Uint32(blk[20:24]),
		FirstDataB:    binary.LittleEndian.Uint32(blk[24:28]),
	}
	if s.Magic != common.Magic {
		return Super{}, fmt.Errorf("super: bad magic %#x", s.Magic)
	}
	return s, nil
}

// Encode serializes s into a fresh block-sized buffer.
func (s Super) Encode() []byte {
	blk := make([]byte, common.BlockSize)
	binary.LittleEndian.PutUint32(blk[0:4], s.Magic)
	binary.LittleEndian.PutUint32(blk[4:8], s.NBlocks)
	binary.LittleEndian.PutUint32(blk[8:12], s.NInodes)
	binary.LittleEndian.PutUint32(blk[12:16], s.FirstInodeB)
	binary.LittleEndian.PutUint32(blk[16:20], s.FirstJournalB)
	binary.LittleEndian.PutUint32(blk[20:24], s.NJournalB)
	binary.LittleEndian.PutUint32(blk[24:28], s.FirstDataB)
	return blk
}

// BitmapBlocks reports how many blocks the bitmap occupies in this layout.
func (s Super) BitmapBlocks() common.Bnum {
	return s.FirstInodeB - BitmapStart
}

// InodeBlocks reports how many blocks the inode table occupies.
func (s Super) InodeBlocks() common.Bnum {
	return s.FirstJournalB - s.FirstInodeB
}

// InodesPerBlock is how many inode records fit in one block.
const InodesPerBlock = common.BlockSize / common.InodeSize

// InodeBlockAndOffset returns which block holds inum's record, and the
// byte offset of that record within the block.
func (s Super) InodeBlockAndOffset(inum common.Inum) (common.Bnum, int) {
	idx := uint64(inum)
	return s.FirstInodeB + common.Bnum(idx/InodesPerBlock), int(idx%InodesPerBlock) * common.InodeSize
}
