package fs

import (
	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/dirent"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/journal"
)

// dirBlockCount is how many whole data blocks a directory of this size
// spans. Directory size is always a multiple of common.BlockSize: it only
// ever changes by whole-block grows in findBlankDirEntry.
func dirBlockCount(ino *inode.Inode) int {
	return int(ino.Size / common.BlockSize)
}

func (f *FS) readDirBlock(ino *inode.Inode, blockIdx int) ([]byte, common.Bnum, error) {
	bn, err := inode.BlockAtOffset(ino, uint64(blockIdx)*common.BlockSize, f.J.ReadBlock)
	if err != nil {
		return nil, 0, err
	}
	if bn == common.NullBnum {
		return nil, 0, common.ErrIO
	}
	blk, err := f.J.ReadBlock(bn)
	if err != nil {
		return nil, 0, err
	}
	return blk, bn, nil
}

// findDirEntry linearly scans dirIno's data blocks for name, returning the
// inode it names. Grounded on ospfs_dir_lookup's find_direntry.
func (f *FS) findDirEntry(dirIno *inode.Inode, name string) (common.Inum, error) {
	for b := 0; b < dirBlockCount(dirIno); b++ {
		blk, _, err := f.readDirBlock(dirIno, b)
		if err != nil {
			return common.NullInum, err
		}
		for s := 0; s < dirent.PerBlock; s++ {
			e := dirent.Decode(blk, s)
			if !e.IsTombstone() && e.Name == name {
				return e.Ino, nil
			}
		}
	}
	return common.NullInum, common.ErrNotFound
}

// dirSlot names one directory entry's position: which data block, the
// block number it lives at, and the slot within that block.
type dirSlot struct {
	blockIdx int
	blockno  common.Bnum
	slot     int
	data     []byte
}

// findBlankDirEntry scans for a tombstone slot, growing the directory by
// one (freshly zeroed) block if none is found. Grounded on
// create_blank_direntry; spec.md's explicit fix for the source's dropped
// error is applied here since changeSize's error is returned directly
// rather than silently discarded.
func (f *FS) findBlankDirEntry(dirInum common.Inum, dirIno *inode.Inode) (dirSlot, error) {
	for b := 0; b < dirBlockCount(dirIno); b++ {
		blk, bn, err := f.readDirBlock(dirIno, b)
		if err != nil {
			return dirSlot{}, err
		}
		for s := 0; s < dirent.PerBlock; s++ {
			if dirent.Decode(blk, s).IsTombstone() {
				return dirSlot{blockIdx: b, blockno: bn, slot: s, data: blk}, nil
			}
		}
	}

	oldSize := dirIno.Size
	if err := f.changeSize(dirInum, dirIno, oldSize+common.BlockSize); err != nil {
		return dirSlot{}, err
	}
	newBlockIdx := int(oldSize / common.BlockSize)
	bn, err := inode.BlockAtOffset(dirIno, uint64(newBlockIdx)*common.BlockSize, f.J.ReadBlock)
	if err != nil {
		return dirSlot{}, err
	}
	zero := make([]byte, common.BlockSize)
	if err := f.J.Stage(journal.StagedBatch{
		Kind:           journal.WriteKind,
		TargetInum:     dirInum,
		Inode:          dirIno.Clone(),
		AffectedBlocks: []common.Bnum{bn},
		DataBlocks:     [][]byte{zero},
	}); err != nil {
		return dirSlot{}, err
	}
	if err := f.J.Apply(); err != nil {
		return dirSlot{}, err
	}
	return dirSlot{blockIdx: newBlockIdx, blockno: bn, slot: 0, data: zero}, nil
}

// installDirEntry stages name→inum into slot as a single directory-edit
// batch, along with targetIno's post-edit contents (the new file's inode
// for create, or the existing target's bumped NLink for hardlink).
func (f *FS) installDirEntry(kind journal.Kind, targetInum common.Inum, targetIno *inode.Inode, slot dirSlot, name string) error {
	patched := append([]byte(nil), slot.data...)
	dirent.Encode(patched, slot.slot, dirent.Entry{Ino: targetInum, Name: name})
	return f.J.Stage(journal.StagedBatch{
		Kind:           kind,
		TargetInum:     targetInum,
		Inode:          targetIno.Clone(),
		DirDataBlockno: slot.blockno,
		DirData:        patched,
	})
}

// Readdir lists entries starting at cursor, emitting synthetic "." and
// ".." at cursor 0 and 1 and skipping tombstones thereafter: a single call
// walks past any number of consecutive tombstones and only returns once it
// finds a live entry or exhausts the directory. Terminates once cursor
// reaches size/entry_size + 2.
func (f *FS) Readdir(dirInum common.Inum, cursor int) (name string, inum common.Inum, nextCursor int, done bool, err error) {
	dirIno, err := f.J.ReadInode(dirInum)
	if err != nil {
		return "", 0, cursor, true, err
	}
	if dirIno.FType != common.DirectoryType {
		return "", 0, cursor, true, common.ErrNotPermitted
	}
	limit := int(dirIno.Size/common.DirentSize) + 2
	if cursor >= limit {
		return "", 0, cursor, true, nil
	}
	if cursor == 0 {
		return ".", dirInum, 1, false, nil
	}
	if cursor == 1 {
		return "..", dirInum, 2, false, nil
	}
	for cursor < limit {
		idx := cursor - 2
		blockIdx := idx / dirent.PerBlock
		slot := idx % dirent.PerBlock
		blk, _, err := f.readDirBlock(dirIno, blockIdx)
		if err != nil {
			return "", 0, cursor, true, err
		}
		e := dirent.Decode(blk, slot)
		cursor++
		if e.IsTombstone() {
			continue
		}
		return e.Name, e.Ino, cursor, false, nil
	}
	return "", 0, cursor, true, nil
}
