// Package dirent implements the fixed-size directory entry record (D in
// spec.md §3) and the encode/decode between it and a directory data block.
// A directory's contents are a dense array of these records; an entry with
// inode number 0 is a tombstone (freed slot, position preserved).
//
// Grounded on original_source/ospfsmod.c's ospfs_direntry_t and the
// fixed-width od_name field it uses for directory scans.
package dirent

import (
	"encoding/binary"

	"github.com/ospfs/journalfs/common"
)

// NameLen is the fixed width of the name field, including its trailing NUL.
const NameLen = common.DirentSize - 4

// Entry is one decoded directory entry.
type Entry struct {
	Ino  common.Inum
	Name string
}

// IsTombstone reports whether the slot is free (inode number zero).
func (e Entry) IsTombstone() bool { return e.Ino == common.NullInum }

// PerBlock is how many entries fit in one directory data block.
const PerBlock = common.BlockSize / common.DirentSize

// Decode reads one entry at the given slot index within a directory block.
func Decode(blk []byte, slot int) Entry {
	off := slot * common.DirentSize
	ino := binary.LittleEndian.Uint32(blk[off : off+4])
	raw := blk[off+4 : off+common.DirentSize]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return Entry{Ino: ino, Name: string(raw[:n])}
}

// Encode writes e into slot within blk.
func Encode(blk []byte, slot int, e Entry) {
	off := slot * common.DirentSize
	binary.LittleEndian.PutUint32(blk[off:off+4], e.Ino)
	raw := blk[off+4 : off+common.DirentSize]
	for i := range raw {
		raw[i] = 0
	}
	copy(raw, e.Name)
}

// Tombstone zeroes the inode number of the entry at slot, leaving its
// position (and any residual name bytes) alone — the scan only looks at
// the inode number to decide liveness.
func Tombstone(blk []byte, slot int) {
	off := slot * common.DirentSize
	binary.LittleEndian.PutUint32(blk[off:off+4], common.NullInum)
}
