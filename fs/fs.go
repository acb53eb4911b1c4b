// Package fs is the top-level file system: C6's change_size loop, C7's
// byte-range read/write, C8's directory scans, and C9's name-space
// operations, all built on top of the journal (package journal) and the
// resize planner (package resize). Every mutating method here ends with
// exactly one journal.Stage + journal.Apply pair per batch; nothing here
// ever writes live structures directly except the one documented
// non-journaled inode write Unlink uses to zero a symlink's record.
//
// Grounded on original_source/ospfsmod.c's change_size/grow_size/free_memory
// driver loops, ospfs_read/ospfs_write, and the create/link/unlink/symlink
// family, reworked around journal.StagedBatch instead of a shared
// journal_header_t.
package fs

import (
	"sync"

	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/disk"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/journal"
	"github.com/ospfs/journalfs/resize"
	"github.com/ospfs/journalfs/super"
	"github.com/ospfs/journalfs/util"
)

// FS is a mounted image: the journal (which itself owns the live bitmap)
// plus the immutable superblock. mu serializes every mutating operation,
// a direct simplification of the teacher's per-transaction txn.Txn.mu down
// to a single lock, since only one mutator is ever allowed at a time; Read
// takes no lock at all.
type FS struct {
	J   *journal.Journal
	Sup super.Super
	mu  sync.Mutex
}

// Mount reads the superblock off d, replays any committed-but-unapplied
// journal batch, and returns a ready FS. This is C10 run at the one point
// it is ever needed: before any operation touches the image.
func Mount(d disk.Disk) (*FS, error) {
	blk, err := d.Read(1)
	if err != nil {
		return nil, err
	}
	sup, err := super.Decode(blk)
	if err != nil {
		return nil, err
	}
	j := journal.New(d, sup)
	if err := j.Recover(); err != nil {
		return nil, err
	}
	return &FS{J: j, Sup: sup}, nil
}

// dataWindow is the locality window every fresh resize batch starts from:
// one below the first data block, wrapping all the way around on its very
// first search. This matches the source's init_resize_request, which
// always resets to this pair rather than seeding from the file's current
// last block — freshly grown files legitimately land at FirstDataB first.
func (f *FS) dataWindow() (lo, hi common.Bnum) {
	return f.Sup.FirstDataB - 1, f.Sup.FirstDataB
}

// Setattr implements the external setattr operation: today the only
// attribute is size, and directories may not be resized directly (they
// grow only as a side effect of C8 adding entries).
func (f *FS) Setattr(inum common.Inum, newSize uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ino, err := f.J.ReadInode(inum)
	if err != nil {
		return err
	}
	if ino.FType == common.DirectoryType {
		return common.ErrNotPermitted
	}
	return f.changeSize(inum, ino, newSize)
}

// changeSize is the internal C6 engine shared by Setattr, the write path
// (growing to fit a write past EOF) and the directory engine (growing a
// directory by one block). It never validates the inode's type; callers
// that must forbid resizing directories do so themselves.
func (f *FS) changeSize(inum common.Inum, ino *inode.Inode, newSize uint32) error {
	if newSize > common.MAXFILESIZE {
		return common.ErrNoSpace
	}
	if newSize == ino.Size {
		return nil
	}
	// The planner works in whole blocks: resize between the block-rounded
	// sizes, then record the exact byte size in the inode.
	exact := newSize
	ino.Size = uint32(util.RoundUp(uint64(ino.Size), common.BlockSize) * common.BlockSize)
	newSize = uint32(util.RoundUp(uint64(newSize), common.BlockSize) * common.BlockSize)
	resizeTo := f.shrinkTo
	if newSize > ino.Size {
		resizeTo = f.growTo
	}
	if err := resizeTo(inum, ino, newSize); err != nil || ino.Size == exact {
		return err
	}
	ino.Size = exact
	if err := f.J.Stage(journal.StagedBatch{Kind: journal.AllocKind, TargetInum: inum, Inode: ino.Clone()}); err != nil {
		return err
	}
	return f.J.Apply()
}

func (f *FS) growTo(inum common.Inum, ino *inode.Inode, target uint32) error {
	working := ino.Clone()
	for working.Size < target {
		lo, hi := f.dataWindow()
		p, err := resize.New(working, lo, hi, f.J.Bitmap().FindFreeBlock, f.J.ReadBlock)
		if err != nil {
			return err
		}
		for working.Size < target && !p.BatchFull() {
			progressed, stop, err := p.AddBlockFile()
			if err != nil {
				return err
			}
			if !progressed {
				break
			}
			if stop {
				break
			}
		}
		if !p.Pending() {
			util.DPrintf(1, "fs: growTo made no progress for inode %d at size %d\n", inum, working.Size)
			return common.ErrIO
		}
		batch := p.Batch(journal.AllocKind, inum)
		if err := f.J.Stage(batch); err != nil {
			return err
		}
		if err := f.J.Apply(); err != nil {
			return err
		}
	}
	*ino = *working
	return nil
}

func (f *FS) shrinkTo(inum common.Inum, ino *inode.Inode, target uint32) error {
	working := ino.Clone()
	for working.Size > target {
		lo, hi := f.dataWindow()
		p, err := resize.New(working, lo, hi, f.J.Bitmap().FindFreeBlock, f.J.ReadBlock)
		if err != nil {
			return err
		}
		for working.Size > target && !p.BatchFull() {
			stop, err := p.FreeBlockFile()
			if err != nil {
				return err
			}
			if stop {
				break
			}
		}
		batch := p.Batch(journal.FreeKind, inum)
		if err := f.J.Stage(batch); err != nil {
			return err
		}
		if err := f.J.Apply(); err != nil {
			return err
		}
	}
	*ino = *working
	return nil
}

// allocInode finds the lowest-numbered inode with link count 0 and returns
// its number; NOT_FOUND-shaped failure is reported as common.ErrNoSpace,
// matching "no free inode slot" in the external error taxonomy. Inode 0 is
// never handed out (it is reserved as the null inode number), and
// common.RootInum is skipped since the root directory is always live.
func (f *FS) allocInode() (common.Inum, error) {
	for i := common.Inum(1); i < f.Sup.NInodes; i++ {
		ino, err := f.J.ReadInode(i)
		if err != nil {
			return common.NullInum, err
		}
		if !ino.IsLive() {
			return i, nil
		}
	}
	return common.NullInum, common.ErrNoSpace
}
