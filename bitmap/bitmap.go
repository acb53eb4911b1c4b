// Package bitmap implements the free-block allocator (C2): a bitmap with a
// locality-biased placement policy, adapted from the teacher's
// alloc.Alloc (alloc/alloc.go), which keeps a single "next" cursor and
// wraps around the bitmap's bit space. This module generalizes that single
// cursor into the spec's explicit (lo, hi) locality window, which the
// resize planner (package resize) updates across a batch so that
// consecutive allocations in one journal batch land near each other.
package bitmap

import "github.com/ospfs/journalfs/common"

// Bitmap is a read/write view over the free-block bitmap blocks of an
// image. It does not own any storage itself: IsFree, AllocateBlockno and
// FreeBlock operate on whatever blocks the caller hands it. The journal
// hands it the bitmap blocks it loads at mount, edits them only while
// applying a batch, and writes them back afterwards.
type Bitmap struct {
	// Blocks holds the live bitmap blocks, one bit per data block, bit=1
	// meaning free. Blocks[0] covers blocks [firstData, firstData+8*BlockSize).
	Blocks    [][]byte
	FirstData common.Bnum
	NBlocks   common.Bnum
}

// New wraps existing bitmap blocks. firstData is the block number that bit
// 0 of Blocks[0] corresponds to; nblocks is the total block count of the
// image (indices at or beyond it are never addressable).
func New(blocks [][]byte, firstData, nblocks common.Bnum) *Bitmap {
	return &Bitmap{Blocks: blocks, FirstData: firstData, NBlocks: nblocks}
}

func (b *Bitmap) bit(k common.Bnum) (blockIdx int, byteIdx int, bit uint) {
	rel := k - b.FirstData
	blockIdx = int(rel / (common.BlockSize * 8))
	within := rel % (common.BlockSize * 8)
	byteIdx = int(within / 8)
	bit = uint(within % 8)
	return
}

// IsFree reports whether block k's bit is set (free).
func (b *Bitmap) IsFree(k common.Bnum) bool {
	if k < b.FirstData || k >= b.NBlocks {
		return false
	}
	blockIdx, byteIdx, bit := b.bit(k)
	return b.Blocks[blockIdx][byteIdx]&(1<<bit) != 0
}

// AllocateBlockno clears bit k unconditionally, realizing a pre-selected
// allocation during journal apply. It is the caller's responsibility to
// have reserved k via FindFreeBlock beforehand; AllocateBlockno itself does
// not check that the bit was set.
func (b *Bitmap) AllocateBlockno(k common.Bnum) {
	if k < b.FirstData || k >= b.NBlocks {
		return
	}
	blockIdx, byteIdx, bit := b.bit(k)
	b.Blocks[blockIdx][byteIdx] &^= 1 << bit
}

// FreeBlock sets bit k (marks it free), but only if k is within the data
// region; out-of-range indices are ignored defensively rather than panicking,
// since apply may be replayed against a partially-recovered image.
func (b *Bitmap) FreeBlock(k common.Bnum) {
	if k < b.FirstData || k >= b.NBlocks {
		return
	}
	blockIdx, byteIdx, bit := b.bit(k)
	b.Blocks[blockIdx][byteIdx] |= 1 << bit
}

// FindFreeBlock returns the smallest free block index at or above hi,
// wrapping once through the whole bitmap and stopping when it reaches lo
// again. It returns 0 (NullBnum) if the bitmap is entirely full.
//
// (lo, hi) is the locality window: hi is where the search starts, lo is
// where it is allowed to give up. Passing (firstData-1, firstData) — the
// window a freshly mounted image starts with — searches the whole disk
// starting at firstData, matching one documented source variant; an empty
// image may legitimately allocate block index firstData first.
func (b *Bitmap) FindFreeBlock(lo, hi common.Bnum) common.Bnum {
	if b.NBlocks <= b.FirstData {
		return common.NullBnum
	}
	span := b.NBlocks - b.FirstData
	start := hi
	for i := common.Bnum(0); i < span; i++ {
		k := b.FirstData + (start-b.FirstData+i)%span
		if k == lo && i > 0 {
			return common.NullBnum
		}
		if b.IsFree(k) {
			return k
		}
	}
	return common.NullBnum
}
