// Package journal is the crash-consistent mutation engine (C5) and its
// recovery (C10): a fixed on-image region that stages an inode snapshot, an
// affected-block list, optional indirect/indirect² snapshots and up to
// common.JMAX staged data blocks, commits by flipping one flag, and applies
// by copying the staged effects into the live structures.
//
// Grounded on the teacher's wal.circular (write header, payload, flip flag)
// and obj.Log (load/install/commit), generalized from goose-nfsd's
// sub-block buffer model to the fixed five-part record spec.md §3
// ("Journal region (J)") specifies, and on original_source/ospfsmod.c's
// journal_struct.h / journal.h for the header field set and the apply
// dispatch in ospfs_apply_journal.
package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/ospfs/journalfs/bitmap"
	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/disk"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/super"
	"github.com/ospfs/journalfs/util"
)

// Kind is the execute_type of a staged transaction.
type Kind uint32

const (
	EmptyKind Kind = iota
	WriteKind
	FreeKind
	AllocKind
	CreateKind
	HardlinkKind
)

// StagedBatch is the pure value a planner (package resize, or the
// directory/namespace code) builds before ever touching live structures.
// Journal.Stage is the only thing that ever turns a StagedBatch into bytes
// on the image, and Journal.Apply is the only thing that ever copies it
// into the live inode table, bitmap and data blocks.
type StagedBatch struct {
	Kind       Kind
	TargetInum common.Inum
	Inode      *inode.Inode // the target inode as it should read after apply

	// AffectedBlocks are, depending on Kind: newly (de)allocated data block
	// numbers (ALLOC/FREE), or rewritten data block numbers (WRITE).
	AffectedBlocks []common.Bnum
	// DataBlocks holds one payload per AffectedBlocks entry, for WriteKind.
	// Left nil for ALLOC/FREE, where the affected list alone is enough.
	DataBlocks [][]byte

	IndirectSnapshot  []byte // scratch copy of the indirect block, if edited
	Indirect2Snapshot []byte // scratch copy of the indirect² block, if edited
	ResizeType        common.ResizeFlags
	IndirectBlockno   common.Bnum
	Indirect2Blockno  common.Bnum

	// DirDataBlockno/DirData are used by CREATE and HARDLINK: the directory
	// data block being rewritten to add one entry, staged in full.
	DirDataBlockno common.Bnum
	DirData        []byte
}

// header is the decoded form of journal region block 0.
type header struct {
	kind            Kind
	committed       bool
	targetInum      common.Inum
	inodeSnapshot   []byte // raw, common.InodeSize bytes
	nBlocksAffected uint32
	indirectBlockno common.Bnum
	indirect2Bno    common.Bnum
	resizeType      common.ResizeFlags
	dirDataBlockno  common.Bnum
}

// Journal mediates every mutating write to the image: the object-load and
// apply-install logic sits here, exactly as it does in the teacher's
// obj.Log, just specialized to a single fixed-size journal region instead
// of an append-only WAL.
type Journal struct {
	d   disk.Disk
	sup super.Super
	bm  *bitmap.Bitmap
}

// New wraps a mounted disk and superblock. The caller is responsible for
// having verified the superblock's magic.
func New(d disk.Disk, sup super.Super) *Journal {
	nbitmap := sup.BitmapBlocks()
	blocks := make([][]byte, nbitmap)
	bm := bitmap.New(blocks, sup.FirstDataB, sup.NBlocks)
	j := &Journal{d: d, sup: sup, bm: bm}
	j.loadBitmap()
	return j
}

func (j *Journal) loadBitmap() {
	for i := range j.bm.Blocks {
		blk, err := j.d.Read(uint64(super.BitmapStart) + uint64(i))
		if err != nil {
			panic(err) // the bitmap region must always be readable once mounted
		}
		j.bm.Blocks[i] = blk
	}
}

func (j *Journal) flushBitmapBlock(i int) error {
	return j.d.Write(uint64(super.BitmapStart)+uint64(i), j.bm.Blocks[i])
}

// Bitmap exposes the live bitmap for the allocator and resize planner. Only
// Journal.Apply is allowed to call AllocateBlockno/FreeBlock on it outside
// of recovery; FindFreeBlock is read-only and safe for planners to call
// directly.
func (j *Journal) Bitmap() *bitmap.Bitmap { return j.bm }

func (j *Journal) regionBlock(i common.Bnum) uint64 {
	return uint64(j.sup.FirstJournalB) + uint64(i)
}

func (j *Journal) readRegion(i common.Bnum) ([]byte, error) {
	return j.d.Read(j.regionBlock(i))
}

func (j *Journal) writeRegion(i common.Bnum, blk []byte) error {
	return j.d.Write(j.regionBlock(i), blk)
}

// ReadBlock is a pass-through read of any live block, used by the inode
// block-map walker and the read engine.
func (j *Journal) ReadBlock(bn common.Bnum) ([]byte, error) {
	return j.d.Read(uint64(bn))
}

// ReadInode loads inum's live record.
func (j *Journal) ReadInode(inum common.Inum) (*inode.Inode, error) {
	blkno, off := j.sup.InodeBlockAndOffset(inum)
	blk, err := j.d.Read(uint64(blkno))
	if err != nil {
		return nil, err
	}
	return inode.Decode(blk[off : off+common.InodeSize]), nil
}

// WriteInodeDirect writes an inode record straight to the inode table,
// bypassing the journal. Used only by fs.Unlink to zero a symlink's record
// after its last link is gone: the journaled batch before it has already
// tombstoned the directory entry, so the record is unreachable and a crash
// mid-write leaves at most an orphan inode, not a structural inconsistency.
func (j *Journal) WriteInodeDirect(inum common.Inum, ino *inode.Inode) error {
	return j.writeInodeRecord(inum, ino)
}

func (j *Journal) writeInodeRecord(inum common.Inum, ino *inode.Inode) error {
	blkno, off := j.sup.InodeBlockAndOffset(inum)
	blk, err := j.d.Read(uint64(blkno))
	if err != nil {
		return err
	}
	copy(blk[off:off+common.InodeSize], ino.Encode())
	return j.d.Write(uint64(blkno), blk)
}

func encodeHeader(h header) []byte {
	blk := make([]byte, common.BlockSize)
	off := 0
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(blk[off:off+4], v)
		off += 4
	}
	putU32(uint32(h.kind))
	if h.committed {
		putU32(1)
	} else {
		putU32(0)
	}
	putU32(h.targetInum)
	copy(blk[off:off+common.InodeSize], h.inodeSnapshot)
	off += common.InodeSize
	putU32(h.nBlocksAffected)
	putU32(h.indirectBlockno)
	putU32(h.indirect2Bno)
	putU32(uint32(h.resizeType))
	putU32(h.dirDataBlockno)
	return blk
}

func decodeHeader(blk []byte) header {
	off := 0
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(blk[off : off+4])
		off += 4
		return v
	}
	h := header{}
	h.kind = Kind(getU32())
	h.committed = getU32() != 0
	h.targetInum = getU32()
	h.inodeSnapshot = append([]byte(nil), blk[off:off+common.InodeSize]...)
	off += common.InodeSize
	h.nBlocksAffected = getU32()
	h.indirectBlockno = getU32()
	h.indirect2Bno = getU32()
	h.resizeType = common.ResizeFlags(getU32())
	h.dirDataBlockno = getU32()
	return h
}

func (j *Journal) readHeader() (header, error) {
	blk, err := j.readRegion(common.JournalHeaderBlock)
	if err != nil {
		return header{}, err
	}
	return decodeHeader(blk), nil
}

func (j *Journal) writeHeader(h header) error {
	return j.writeRegion(common.JournalHeaderBlock, encodeHeader(h))
}

func (j *Journal) writeAffectedList(list []common.Bnum) error {
	blk := make([]byte, common.BlockSize)
	for i, bn := range list {
		binary.LittleEndian.PutUint32(blk[i*4:i*4+4], bn)
	}
	return j.writeRegion(common.JournalAffectedBlock, blk)
}

func (j *Journal) readAffectedList(n uint32) ([]common.Bnum, error) {
	blk, err := j.readRegion(common.JournalAffectedBlock)
	if err != nil {
		return nil, err
	}
	list := make([]common.Bnum, n)
	for i := range list {
		list[i] = binary.LittleEndian.Uint32(blk[i*4 : i*4+4])
	}
	return list, nil
}

// Stage writes batch into the journal region, payload first, and then
// flips the committed flag as the very last write. No reader can observe
// committed=1 before every byte of the payload it references is durable.
func (j *Journal) Stage(batch StagedBatch) error {
	if len(batch.AffectedBlocks) > common.JMAX {
		return fmt.Errorf("journal: batch of %d blocks exceeds JMAX=%d", len(batch.AffectedBlocks), common.JMAX)
	}
	util.DPrintf(2, "journal: stage kind=%d inum=%d nblocks=%d\n", batch.Kind, batch.TargetInum, len(batch.AffectedBlocks))

	h := header{
		kind:            batch.Kind,
		committed:       false,
		targetInum:      batch.TargetInum,
		inodeSnapshot:   batch.Inode.Encode(),
		nBlocksAffected: uint32(len(batch.AffectedBlocks)),
		indirectBlockno: batch.IndirectBlockno,
		indirect2Bno:    batch.Indirect2Blockno,
		resizeType:      batch.ResizeType,
		dirDataBlockno:  batch.DirDataBlockno,
	}
	if err := j.writeHeader(h); err != nil {
		return err
	}
	if err := j.writeAffectedList(batch.AffectedBlocks); err != nil {
		return err
	}
	if batch.Indirect2Snapshot != nil {
		if err := j.writeRegion(common.JournalIndirect2Block, batch.Indirect2Snapshot); err != nil {
			return err
		}
	}
	if batch.IndirectSnapshot != nil {
		if err := j.writeRegion(common.JournalIndirectBlock, batch.IndirectSnapshot); err != nil {
			return err
		}
	}
	switch batch.Kind {
	case WriteKind:
		for i, data := range batch.DataBlocks {
			if err := j.writeRegion(common.JournalDataStart+common.Bnum(i), data); err != nil {
				return err
			}
		}
	case CreateKind, HardlinkKind:
		if err := j.writeRegion(common.JournalDataStart, batch.DirData); err != nil {
			return err
		}
	}
	if err := j.d.Barrier(); err != nil {
		return err
	}
	h.committed = true
	if err := j.writeHeader(h); err != nil {
		return err
	}
	return j.d.Barrier()
}

// Apply replays whatever the journal header currently describes. It is
// idempotent: re-copying an already-installed block is a no-op, and
// re-running AllocateBlockno/FreeBlock on the same bit leaves it in the
// same state.
func (j *Journal) Apply() error {
	h, err := j.readHeader()
	if err != nil {
		return err
	}
	if h.kind == EmptyKind {
		return nil
	}
	util.DPrintf(2, "journal: apply kind=%d inum=%d\n", h.kind, h.targetInum)

	switch h.kind {
	case AllocKind:
		if err := j.applyAlloc(h); err != nil {
			return err
		}
	case FreeKind:
		if err := j.applyFree(h); err != nil {
			return err
		}
	case WriteKind:
		if err := j.applyWrite(h); err != nil {
			return err
		}
	case CreateKind, HardlinkKind:
		if err := j.applyDirWrite(h); err != nil {
			return err
		}
	default:
		return fmt.Errorf("journal: unknown execute_type %d", h.kind)
	}

	return j.clearHeader()
}

func (j *Journal) clearHeader() error {
	return j.writeHeader(header{kind: EmptyKind, committed: false})
}

func (j *Journal) applyAlloc(h header) error {
	ino := inode.Decode(h.inodeSnapshot)
	if err := j.writeInodeRecord(h.targetInum, ino); err != nil {
		return err
	}
	list, err := j.readAffectedList(h.nBlocksAffected)
	if err != nil {
		return err
	}
	for _, bn := range list {
		j.bm.AllocateBlockno(bn)
	}
	if h.resizeType&common.MetaIndirect != 0 {
		j.bm.AllocateBlockno(h.indirectBlockno)
	}
	if h.resizeType&common.TouchedIndirect != 0 {
		blk, err := j.readRegion(common.JournalIndirectBlock)
		if err != nil {
			return err
		}
		if err := j.d.Write(uint64(h.indirectBlockno), blk); err != nil {
			return err
		}
	}
	if h.resizeType&common.MetaIndirect2 != 0 {
		j.bm.AllocateBlockno(h.indirect2Bno)
	}
	if h.resizeType&common.TouchedIndirect2 != 0 {
		blk, err := j.readRegion(common.JournalIndirect2Block)
		if err != nil {
			return err
		}
		if err := j.d.Write(uint64(h.indirect2Bno), blk); err != nil {
			return err
		}
	}
	return j.flushBitmap()
}

func (j *Journal) applyFree(h header) error {
	ino := inode.Decode(h.inodeSnapshot)
	if err := j.writeInodeRecord(h.targetInum, ino); err != nil {
		return err
	}
	if h.resizeType&common.TouchedIndirect != 0 {
		blk, err := j.readRegion(common.JournalIndirectBlock)
		if err != nil {
			return err
		}
		if err := j.d.Write(uint64(h.indirectBlockno), blk); err != nil {
			return err
		}
	}
	if h.resizeType&common.MetaIndirect != 0 {
		j.bm.FreeBlock(h.indirectBlockno)
	}
	if h.resizeType&common.TouchedIndirect2 != 0 {
		blk, err := j.readRegion(common.JournalIndirect2Block)
		if err != nil {
			return err
		}
		if err := j.d.Write(uint64(h.indirect2Bno), blk); err != nil {
			return err
		}
	}
	if h.resizeType&common.MetaIndirect2 != 0 {
		j.bm.FreeBlock(h.indirect2Bno)
	}
	list, err := j.readAffectedList(h.nBlocksAffected)
	if err != nil {
		return err
	}
	for _, bn := range list {
		j.bm.FreeBlock(bn)
	}
	return j.flushBitmap()
}

func (j *Journal) applyWrite(h header) error {
	list, err := j.readAffectedList(h.nBlocksAffected)
	if err != nil {
		return err
	}
	for i, bn := range list {
		data, err := j.readRegion(common.JournalDataStart + common.Bnum(i))
		if err != nil {
			return err
		}
		if err := j.d.Write(uint64(bn), data); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) applyDirWrite(h header) error {
	ino := inode.Decode(h.inodeSnapshot)
	if err := j.writeInodeRecord(h.targetInum, ino); err != nil {
		return err
	}
	data, err := j.readRegion(common.JournalDataStart)
	if err != nil {
		return err
	}
	return j.d.Write(uint64(h.dirDataBlockno), data)
}

func (j *Journal) flushBitmap() error {
	for i := range j.bm.Blocks {
		if err := j.flushBitmapBlock(i); err != nil {
			return err
		}
	}
	return nil
}

// Recover inspects the journal header at mount time and re-applies it if
// committed was left set, bringing a crashed image back to a consistent
// post-transaction state. It always leaves the header cleared.
func (j *Journal) Recover() error {
	h, err := j.readHeader()
	if err != nil {
		return err
	}
	if !h.committed {
		if h.kind != EmptyKind {
			return j.clearHeader()
		}
		return nil
	}
	util.DPrintf(1, "journal: recovering committed kind=%d inum=%d\n", h.kind, h.targetInum)
	return j.Apply()
}
