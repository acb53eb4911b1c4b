package fs

import (
	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/journal"
	"github.com/ospfs/journalfs/util"
)

// Read copies up to n bytes starting at off from inum's data into a fresh
// slice, stopping at EOF; it never errors on a short read. Grounded on
// ospfs_read's block-at-a-time copy loop (C7).
func (f *FS) Read(inum common.Inum, off uint64, n int) ([]byte, error) {
	ino, err := f.J.ReadInode(inum)
	if err != nil {
		return nil, err
	}
	if ino.FType != common.RegularType {
		return nil, common.ErrNotPermitted
	}
	if off >= uint64(ino.Size) {
		return nil, nil
	}
	remaining := uint64(ino.Size) - off
	if uint64(n) > remaining {
		n = int(remaining)
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		bn, err := inode.BlockAtOffset(ino, off, f.J.ReadBlock)
		if err != nil {
			return nil, err
		}
		blockOff := off % common.BlockSize
		take := util.Min(common.BlockSize-blockOff, uint64(n-len(out)))
		if bn == common.NullBnum {
			return nil, common.ErrIO
		}
		blk, err := f.J.ReadBlock(bn)
		if err != nil {
			return nil, err
		}
		out = append(out, blk[blockOff:blockOff+take]...)
		off += take
	}
	return out, nil
}

// Write patches data into inum's file starting at off, growing the file
// first (via changeSize) if the write reaches past the current size.
// appendMode selects O_APPEND semantics: off is ignored and the write always
// targets the current end of file. Writes touching more than common.JMAX
// blocks are staged across multiple WRITE batches, one per chunk.
//
// Grounded on ospfs_write's grow-then-copy loop (C7), restructured around
// journal.StagedBatch chunks instead of a shared journal_header_t.
func (f *FS) Write(inum common.Inum, off uint64, data []byte, appendMode bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(data) == 0 {
		return 0, nil
	}
	ino, err := f.J.ReadInode(inum)
	if err != nil {
		return 0, err
	}
	if ino.FType != common.RegularType {
		return 0, common.ErrNotPermitted
	}
	if appendMode {
		off = uint64(ino.Size)
	}
	end := off + uint64(len(data))
	if end > common.MAXFILESIZE {
		return 0, common.ErrNoSpace
	}
	if end > uint64(ino.Size) {
		if err := f.changeSize(inum, ino, uint32(end)); err != nil {
			return 0, err
		}
	}

	written := 0
	for written < len(data) {
		var blocks []common.Bnum
		var payloads [][]byte
		for len(blocks) < common.JMAX && written < len(data) {
			curOff := off + uint64(written)
			bn, err := inode.BlockAtOffset(ino, curOff, f.J.ReadBlock)
			if err != nil {
				return written, err
			}
			if bn == common.NullBnum {
				return written, common.ErrIO
			}
			blk, err := f.J.ReadBlock(bn)
			if err != nil {
				return written, err
			}
			blockOff := curOff % common.BlockSize
			take := util.Min(common.BlockSize-blockOff, uint64(len(data)-written))
			patched := append([]byte(nil), blk...)
			copy(patched[blockOff:], data[written:written+int(take)])
			blocks = append(blocks, bn)
			payloads = append(payloads, patched)
			written += int(take)
		}
		batch := journal.StagedBatch{
			Kind:           journal.WriteKind,
			TargetInum:     inum,
			Inode:          ino.Clone(),
			AffectedBlocks: blocks,
			DataBlocks:     payloads,
		}
		if err := f.J.Stage(batch); err != nil {
			return written, err
		}
		if err := f.J.Apply(); err != nil {
			return written, err
		}
	}
	return written, nil
}
