// Package inode implements the on-disk inode record (encode/decode), the
// pure block-map arithmetic that translates a file offset into a
// direct/indirect/indirect² slot (C3), and the read-only block-device view
// that walks that map to answer "what block backs this offset" (part of
// C1). It deliberately knows nothing about the journal or the bitmap: the
// resize planner (package resize) and the journal (package journal) are the
// only code that ever mutates a block map.
//
// Grounded on original_source/ospfsmod.c's block_direct_index /
// block_indirect_index / block_indirect2_index and ospfs_inode_blockno, and
// on the teacher's addr.Addr (a typed location, not a pointer) for the
// "value, not a pointer graph" re-architecture spec.md §9 asks for.
package inode

import (
	"encoding/binary"

	"github.com/ospfs/journalfs/common"
)

// Inode is the in-memory, decoded form of an on-disk inode record. For
// FType == common.SymlinkType, only Size, FType, NLink and SymlinkTarget
// are meaningful; the block-map fields are zero and must not be consulted.
type Inode struct {
	Size          uint32
	FType         common.FileType
	NLink         uint32
	Mode          uint32
	Direct        [common.NDIRECT]common.Bnum
	Indirect      common.Bnum
	Indirect2     common.Bnum
	SymlinkTarget string
}

// IsLive reports whether the inode is in use (invariant: live iff NLink != 0).
func (i *Inode) IsLive() bool { return i.NLink != 0 }

// Decode parses a common.InodeSize-byte record. blk must be exactly that
// long (callers slice the containing inode block before calling this).
func Decode(blk []byte) *Inode {
	i := &Inode{
		Size:  binary.LittleEndian.Uint32(blk[0:4]),
		FType: common.FileType(binary.LittleEndian.Uint32(blk[4:8])),
		NLink: binary.LittleEndian.Uint32(blk[8:12]),
	}
	if i.FType == common.SymlinkType {
		raw := blk[12 : 12+common.MAXSYMLINKLEN+1]
		n := i.Size
		if n > common.MAXSYMLINKLEN {
			n = common.MAXSYMLINKLEN
		}
		i.SymlinkTarget = string(raw[:n])
		return i
	}
	i.Mode = binary.LittleEndian.Uint32(blk[12:16])
	off := 16
	for d := 0; d < common.NDIRECT; d++ {
		i.Direct[d] = binary.LittleEndian.Uint32(blk[off : off+4])
		off += 4
	}
	i.Indirect = binary.LittleEndian.Uint32(blk[off : off+4])
	off += 4
	i.Indirect2 = binary.LittleEndian.Uint32(blk[off : off+4])
	return i
}

// Encode writes i into a fresh common.InodeSize-byte record.
func (i *Inode) Encode() []byte {
	blk := make([]byte, common.InodeSize)
	binary.LittleEndian.PutUint32(blk[0:4], i.Size)
	binary.LittleEndian.PutUint32(blk[4:8], uint32(i.FType))
	binary.LittleEndian.PutUint32(blk[8:12], i.NLink)
	if i.FType == common.SymlinkType {
		copy(blk[12:12+len(i.SymlinkTarget)], i.SymlinkTarget)
		return blk
	}
	binary.LittleEndian.PutUint32(blk[12:16], i.Mode)
	off := 16
	for d := 0; d < common.NDIRECT; d++ {
		binary.LittleEndian.PutUint32(blk[off:off+4], i.Direct[d])
		off += 4
	}
	binary.LittleEndian.PutUint32(blk[off:off+4], i.Indirect)
	off += 4
	binary.LittleEndian.PutUint32(blk[off:off+4], i.Indirect2)
	return blk
}

// Clone returns a deep copy, used as the planner's working copy so staged
// edits never touch the live inode until journal apply.
func (i *Inode) Clone() *Inode {
	c := *i
	return &c
}

// DirIdx returns n's position inside whichever array directly contains its
// slot: the inode's direct array if n < NDIRECT, the indirect block's array
// if NDIRECT <= n < NDIRECT+NINDIRECT, or the slot inside the indirect block
// named by the indirect² block's entry otherwise.
func DirIdx(n uint64) uint64 {
	if n < common.NDIRECT {
		return n
	}
	return (n - common.NDIRECT) % common.NINDIRECT
}

// IndirIdx classifies n with respect to the indirect region: -1 below it,
// 0 within the plain indirect block, or (for n in the indirect² region) the
// slot inside the indirect² block naming the relevant indirect block.
func IndirIdx(n uint64) int64 {
	if n < common.NDIRECT {
		return -1
	}
	n -= common.NDIRECT
	if n < common.NINDIRECT {
		return 0
	}
	n -= common.NINDIRECT
	return int64(n / common.NINDIRECT)
}

// Indir2Idx reports whether n requires the indirect² block at all: -1 if
// not, 0 if so.
func Indir2Idx(n uint64) int64 {
	if n < common.NDIRECT+common.NINDIRECT {
		return -1
	}
	return 0
}

// ReadBlock fetches the contents of block number bn, e.g. from the image or
// from a journal-aware cache. BlockAtOffset uses it to walk indirect blocks.
type ReadBlock func(bn common.Bnum) ([]byte, error)

// BlockAtOffset returns the data block backing byte offset off in ino, or
// common.NullBnum if off is at or past the file's size, or the inode is a
// symlink. readBlock is only invoked when an indirect or indirect² block
// must be consulted.
func BlockAtOffset(ino *Inode, off uint64, readBlock ReadBlock) (common.Bnum, error) {
	if ino.FType == common.SymlinkType || off >= uint64(ino.Size) {
		return common.NullBnum, nil
	}
	n := off / common.BlockSize
	slot := DirIdx(n)

	if Indir2Idx(n) == 0 {
		if ino.Indirect2 == common.NullBnum {
			return common.NullBnum, nil
		}
		i2blk, err := readBlock(ino.Indirect2)
		if err != nil {
			return 0, err
		}
		indirSlot := IndirIdx(n)
		indirBno := binary.LittleEndian.Uint32(i2blk[indirSlot*4 : indirSlot*4+4])
		if indirBno == common.NullBnum {
			return common.NullBnum, nil
		}
		iblk, err := readBlock(indirBno)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(iblk[slot*4 : slot*4+4]), nil
	}

	if IndirIdx(n) == 0 {
		if ino.Indirect == common.NullBnum {
			return common.NullBnum, nil
		}
		iblk, err := readBlock(ino.Indirect)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(iblk[slot*4 : slot*4+4]), nil
	}

	return ino.Direct[slot], nil
}

// GetBnum and PutBnum read/write a single little-endian block number at a
// slot index (byte offset slot*4) inside an indirect or indirect² block
// buffer. Used by the
// resize planner when it edits scratch copies of those blocks.
func GetBnum(blk []byte, slot uint64) common.Bnum {
	return binary.LittleEndian.Uint32(blk[slot*4 : slot*4+4])
}

func PutBnum(blk []byte, slot uint64, v common.Bnum) {
	binary.LittleEndian.PutUint32(blk[slot*4:slot*4+4], v)
}
