// Package resize implements the block-map resize planner (C4): turning a
// single "add one block" or "remove one block" step into edits against a
// working copy of an inode plus scratch copies of whichever indirect and
// indirect² blocks are in play, without touching the live image. A Planner
// accumulates these edits into one journal.StagedBatch at a time; the
// caller (package fs) decides when to Stage+Apply a batch and hand the
// Planner a fresh one to keep filling.
//
// Grounded on original_source/ospfsmod.c's add_block_file / free_block_file
// and the grow_size/free_memory driver loops that call them: a batch always
// ends the moment a call allocates or frees an indirect or indirect² block
// (writing a slot of an existing one does not end it), and a call
// that would need to allocate a fresh meta-block while the batch already
// holds other blocks aborts without effect so the caller can close the
// batch and retry in a new one.
package resize

import (
	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/journal"
)

// Planner carries the working state of one file's resize across however
// many journal batches it takes to reach the target size. Inode is the
// working copy; callers read it to decide when the target size is reached.
type Planner struct {
	Inode         *inode.Inode
	FindFreeBlock func(lo, hi common.Bnum) common.Bnum
	ReadBlock     inode.ReadBlock

	lo, hi common.Bnum

	indirectBlk      []byte
	indirectBlockno  common.Bnum
	indirect2Blk     []byte
	indirect2Blockno common.Bnum

	affected   []common.Bnum
	resizeType common.ResizeFlags

	// indirectFreed/indirect2Freed mark that FreeBlockFile just freed that
	// meta-block this batch; indirectBlockno/indirect2Blk stay valid so
	// Batch() can still report the freed block number, and are cleared by
	// ResetBatch once the batch has actually been staged.
	indirectFreed  bool
	indirect2Freed bool
}

// New builds a planner for ino, seeded with a locality window biasing the
// first allocation of the batch to land near lo/hi (package fs always
// passes its fixed data-region window, see fs.dataWindow). If ino already has an indirect² block, its
// contents are loaded immediately since it is a single block for the whole
// file's lifetime; the active indirect block (if any) is loaded lazily,
// since which one is active depends on the current size.
func New(ino *inode.Inode, lo, hi common.Bnum, findFree func(lo, hi common.Bnum) common.Bnum, readBlock inode.ReadBlock) (*Planner, error) {
	p := &Planner{
		Inode:         ino,
		FindFreeBlock: findFree,
		ReadBlock:     readBlock,
		lo:            lo,
		hi:            hi,
	}
	if ino.Indirect2 != common.NullBnum {
		blk, err := readBlock(ino.Indirect2)
		if err != nil {
			return nil, err
		}
		p.indirect2Blk = blk
		p.indirect2Blockno = ino.Indirect2
	}
	return p, nil
}

// updateBounds mirrors update_bounds: the first reservation of a batch
// pins the low watermark, every later one only advances the high one.
func (p *Planner) updateBounds(bn common.Bnum) {
	if len(p.affected) == 0 {
		p.lo = bn
		p.hi = bn + 1
	} else {
		p.hi = bn + 1
	}
}

// loadActiveIndirect makes sure p.indirectBlk holds the contents of
// whichever indirect block backs block index n, if any. It is a no-op if
// that block is already loaded, and leaves indirectBlk nil if n's indirect
// block does not exist yet (the caller is about to allocate it).
func (p *Planner) loadActiveIndirect(n uint64) error {
	if inode.IndirIdx(n) < 0 {
		return nil
	}
	var want common.Bnum
	if inode.Indir2Idx(n) == 0 {
		if p.indirect2Blk == nil {
			want = common.NullBnum
		} else {
			want = inode.GetBnum(p.indirect2Blk, uint64(inode.IndirIdx(n)))
		}
	} else {
		want = p.Inode.Indirect
	}
	if want == p.indirectBlockno && p.indirectBlk != nil {
		return nil
	}
	if want == common.NullBnum {
		p.indirectBlk = nil
		p.indirectBlockno = common.NullBnum
		return nil
	}
	blk, err := p.ReadBlock(want)
	if err != nil {
		return err
	}
	p.indirectBlk = blk
	p.indirectBlockno = want
	return nil
}

// AddBlockFile appends one block to the file (Inode.Size must already be a
// multiple of common.BlockSize). progressed is false when this call had no
// effect and must be retried against a freshly committed batch: either the
// image is full (err is common.ErrNoSpace) or the next block needs a fresh
// indirect or indirect² block and this batch already holds other
// reservations. stopBatch is true when the call just allocated an
// indirect/indirect² block, or deferred one to the next batch, meaning the
// batch must be staged and applied now even if JMAX has not been reached.
func (p *Planner) AddBlockFile() (progressed, stopBatch bool, err error) {
	n := uint64(p.Inode.Size) / common.BlockSize
	if err := p.loadActiveIndirect(n); err != nil {
		return false, false, err
	}

	bn := p.FindFreeBlock(p.lo, p.hi)
	if bn == common.NullBnum {
		return false, false, common.ErrNoSpace
	}
	p.updateBounds(bn)

	if inode.Indir2Idx(n) == 0 && inode.IndirIdx(n) == 0 && inode.DirIdx(n) == 0 {
		if len(p.affected) != 0 {
			return false, true, nil
		}
		i2bn := p.FindFreeBlock(p.lo, p.hi)
		if i2bn == common.NullBnum {
			return false, false, common.ErrNoSpace
		}
		p.updateBounds(i2bn)
		p.Inode.Indirect2 = i2bn
		p.indirect2Blk = make([]byte, common.BlockSize)
		p.indirect2Blockno = i2bn
		p.resizeType |= common.TouchedIndirect2 | common.MetaIndirect2
	}

	if inode.IndirIdx(n) >= 0 && inode.DirIdx(n) == 0 {
		if len(p.affected) != 0 {
			return false, true, nil
		}
		ibn := p.FindFreeBlock(p.lo, p.hi)
		if ibn == common.NullBnum {
			return false, false, common.ErrNoSpace
		}
		p.updateBounds(ibn)
		if inode.Indir2Idx(n) == 0 {
			inode.PutBnum(p.indirect2Blk, uint64(inode.IndirIdx(n)), ibn)
			p.resizeType |= common.TouchedIndirect2
		} else {
			p.Inode.Indirect = ibn
		}
		p.indirectBlk = make([]byte, common.BlockSize)
		p.indirectBlockno = ibn
		p.resizeType |= common.TouchedIndirect | common.MetaIndirect
	}

	slot := inode.DirIdx(n)
	if inode.Indir2Idx(n) < 0 && inode.IndirIdx(n) < 0 {
		p.Inode.Direct[slot] = bn
	} else {
		inode.PutBnum(p.indirectBlk, slot, bn)
		p.resizeType |= common.TouchedIndirect
	}

	p.affected = append(p.affected, bn)
	p.Inode.Size += common.BlockSize
	return true, p.metaTouched(), nil
}

// metaTouched reports whether this batch has allocated or freed an
// indirect/indirect² meta-block, the point at which the batch must close.
func (p *Planner) metaTouched() bool {
	return p.resizeType&(common.MetaIndirect|common.MetaIndirect2) != 0
}

// FreeBlockFile removes the file's current last block. Unlike add, free
// never has to defer: it succeeds against whatever batch is open, and fails
// with common.ErrIO only when the file has no block left to remove.
// stopBatch is true once it has just freed an indirect or indirect² block,
// matching the same must-commit-now rule AddBlockFile uses.
func (p *Planner) FreeBlockFile() (stopBatch bool, err error) {
	if p.Inode.Size == 0 {
		return false, common.ErrIO
	}
	n := uint64(p.Inode.Size)/common.BlockSize - 1
	if err := p.loadActiveIndirect(n); err != nil {
		return false, err
	}

	slot := inode.DirIdx(n)
	var bn common.Bnum
	if inode.Indir2Idx(n) < 0 && inode.IndirIdx(n) < 0 {
		bn = p.Inode.Direct[slot]
		p.Inode.Direct[slot] = common.NullBnum
		p.affected = append(p.affected, bn)
		p.Inode.Size -= common.BlockSize
		return false, nil
	}

	bn = inode.GetBnum(p.indirectBlk, slot)
	inode.PutBnum(p.indirectBlk, slot, common.NullBnum)
	p.resizeType |= common.TouchedIndirect
	p.affected = append(p.affected, bn)
	p.Inode.Size -= common.BlockSize

	if slot == 0 {
		p.resizeType |= common.MetaIndirect
		if inode.Indir2Idx(n) == 0 {
			inode.PutBnum(p.indirect2Blk, uint64(inode.IndirIdx(n)), common.NullBnum)
			p.resizeType |= common.TouchedIndirect2
		} else {
			p.Inode.Indirect = common.NullBnum
		}
		p.indirectFreed = true
		if inode.Indir2Idx(n) == 0 && inode.IndirIdx(n) == 0 {
			p.Inode.Indirect2 = common.NullBnum
			p.resizeType |= common.MetaIndirect2
			p.indirect2Freed = true
		}
	}
	return p.metaTouched(), nil
}

// BatchFull reports whether the batch has reached common.JMAX reservations
// and must be staged regardless of whether an indirect boundary was hit.
func (p *Planner) BatchFull() bool {
	return len(p.affected) >= common.JMAX
}

// Pending reports whether the open batch holds any reservations at all.
func (p *Planner) Pending() bool {
	return len(p.affected) != 0
}

// Batch materializes the open batch into a journal.StagedBatch. kind is
// journal.AllocKind or journal.FreeKind, matching what the caller has been
// driving this planner for.
func (p *Planner) Batch(kind journal.Kind, inum common.Inum) journal.StagedBatch {
	b := journal.StagedBatch{
		Kind:             kind,
		TargetInum:       inum,
		Inode:            p.Inode.Clone(),
		AffectedBlocks:   append([]common.Bnum(nil), p.affected...),
		ResizeType:       p.resizeType,
		IndirectBlockno:  p.indirectBlockno,
		Indirect2Blockno: p.indirect2Blockno,
	}
	if p.resizeType&common.TouchedIndirect != 0 && p.indirectBlk != nil {
		b.IndirectSnapshot = append([]byte(nil), p.indirectBlk...)
	}
	if p.resizeType&common.TouchedIndirect2 != 0 && p.indirect2Blk != nil {
		b.Indirect2Snapshot = append([]byte(nil), p.indirect2Blk...)
	}
	return b
}

// ResetBatch clears the per-batch bookkeeping after a Batch's been staged
// and applied, so the same Planner can keep building the next one.
func (p *Planner) ResetBatch() {
	p.affected = nil
	p.resizeType = 0
	if p.indirectFreed {
		p.indirectBlk = nil
		p.indirectBlockno = common.NullBnum
		p.indirectFreed = false
	}
	if p.indirect2Freed {
		p.indirect2Blk = nil
		p.indirect2Blockno = common.NullBnum
		p.indirect2Freed = false
	}
}
