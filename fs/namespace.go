// This file covers C9: lookup, create, hard-link, unlink, symlink and
// symlink resolution, all built on the directory scans in dir.go.
//
// Grounded on original_source/ospfsmod.c's ospfs_dir_lookup,
// ospfs_dir_link, ospfs_dir_unlink and ospfs_symlink.
package fs

import (
	"strings"

	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/dirent"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/journal"
)

// condSymlinkPrefix is the conditional-symlink convention's literal marker:
// a target of the form root?A:B resolves to A under uid 0, B otherwise.
const condSymlinkPrefix = "root?"

// Lookup resolves name within dirInum's entries.
func (f *FS) Lookup(dirInum common.Inum, name string) (common.Inum, error) {
	dirIno, err := f.J.ReadInode(dirInum)
	if err != nil {
		return common.NullInum, err
	}
	if dirIno.FType != common.DirectoryType {
		return common.NullInum, common.ErrNotPermitted
	}
	return f.findDirEntry(dirIno, name)
}

func validateName(name string) error {
	if len(name) > dirent.NameLen-1 {
		return common.ErrNameTooLong
	}
	return nil
}

// Create makes a new regular file named name inside dirInum with the given
// permission bits, failing with ErrExists if the name is already taken.
func (f *FS) Create(dirInum common.Inum, name string, mode uint32) (common.Inum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := validateName(name); err != nil {
		return common.NullInum, err
	}
	dirIno, err := f.J.ReadInode(dirInum)
	if err != nil {
		return common.NullInum, err
	}
	if dirIno.FType != common.DirectoryType {
		return common.NullInum, common.ErrNotPermitted
	}
	if _, err := f.findDirEntry(dirIno, name); err == nil {
		return common.NullInum, common.ErrExists
	} else if err != common.ErrNotFound {
		return common.NullInum, err
	}

	newInum, err := f.allocInode()
	if err != nil {
		return common.NullInum, err
	}
	slot, err := f.findBlankDirEntry(dirInum, dirIno)
	if err != nil {
		return common.NullInum, err
	}

	newIno := &inode.Inode{FType: common.RegularType, NLink: 1, Mode: mode}
	if err := f.installDirEntry(journal.CreateKind, newInum, newIno, slot, name); err != nil {
		return common.NullInum, err
	}
	if err := f.J.Apply(); err != nil {
		return common.NullInum, err
	}
	return newInum, nil
}

// HardLink installs a new name for an existing live inode.
func (f *FS) HardLink(srcInum common.Inum, dirInum common.Inum, dstName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := validateName(dstName); err != nil {
		return err
	}
	srcIno, err := f.J.ReadInode(srcInum)
	if err != nil {
		return err
	}
	if !srcIno.IsLive() {
		return common.ErrIO
	}
	dirIno, err := f.J.ReadInode(dirInum)
	if err != nil {
		return err
	}
	if dirIno.FType != common.DirectoryType {
		return common.ErrNotPermitted
	}
	if _, err := f.findDirEntry(dirIno, dstName); err == nil {
		return common.ErrExists
	} else if err != common.ErrNotFound {
		return err
	}

	slot, err := f.findBlankDirEntry(dirInum, dirIno)
	if err != nil {
		return err
	}
	bumped := srcIno.Clone()
	bumped.NLink++
	if err := f.installDirEntry(journal.HardlinkKind, srcInum, bumped, slot, dstName); err != nil {
		return err
	}
	return f.J.Apply()
}

// Unlink removes name from dirInum, tombstoning its entry and dropping the
// target inode's link count; at zero links a symlink's record is zeroed
// outright, and any other inode is shrunk to size 0, releasing its blocks
// while its type and mode stay in the record.
func (f *FS) Unlink(dirInum common.Inum, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dirIno, err := f.J.ReadInode(dirInum)
	if err != nil {
		return err
	}
	if dirIno.FType != common.DirectoryType {
		return common.ErrNotPermitted
	}

	var found dirSlot
	var targetInum common.Inum
	ok := false
	for b := 0; b < dirBlockCount(dirIno); b++ {
		blk, bn, err := f.readDirBlock(dirIno, b)
		if err != nil {
			return err
		}
		for s := 0; s < dirent.PerBlock; s++ {
			e := dirent.Decode(blk, s)
			if !e.IsTombstone() && e.Name == name {
				found = dirSlot{blockIdx: b, blockno: bn, slot: s, data: blk}
				targetInum = e.Ino
				ok = true
				break
			}
		}
		if ok {
			break
		}
	}
	if !ok {
		return common.ErrNotFound
	}

	targetIno, err := f.J.ReadInode(targetInum)
	if err != nil {
		return err
	}
	targetIno.NLink--

	patched := append([]byte(nil), found.data...)
	dirent.Tombstone(patched, found.slot)

	// The journal's kind set has no dedicated UNLINK entry; a tombstone plus
	// an inode-record update is exactly what HARDLINK already applies, so
	// unlink stages as one too.
	if err := f.J.Stage(journal.StagedBatch{
		Kind:           journal.HardlinkKind,
		TargetInum:     targetInum,
		Inode:          targetIno.Clone(),
		DirDataBlockno: found.blockno,
		DirData:        patched,
	}); err != nil {
		return err
	}
	if err := f.J.Apply(); err != nil {
		return err
	}

	if targetIno.IsLive() {
		return nil
	}
	if targetIno.FType == common.SymlinkType {
		return f.J.WriteInodeDirect(targetInum, &inode.Inode{})
	}
	return f.changeSize(targetInum, targetIno, 0)
}

// Symlink allocates a fresh inode holding target inline and installs the
// directory entry the same way Create does, in one journaled batch, so a
// findBlankDirEntry failure (e.g. ErrNoSpace growing the directory) never
// leaves a live, unreferenced inode behind. Targets spelled in the
// root?A:B conditional form have their delimiter rewritten to NUL in
// place; a target that merely starts with the prefix but omits the colon
// is rejected rather than left to silently misparse.
func (f *FS) Symlink(dirInum common.Inum, name string, target string) (common.Inum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := validateName(name); err != nil {
		return common.NullInum, err
	}
	if len(target) > common.MAXSYMLINKLEN {
		return common.NullInum, common.ErrNameTooLong
	}
	if strings.HasPrefix(target, condSymlinkPrefix) && !strings.Contains(target[len(condSymlinkPrefix):], ":") {
		return common.NullInum, common.ErrNameTooLong
	}
	dirIno, err := f.J.ReadInode(dirInum)
	if err != nil {
		return common.NullInum, err
	}
	if dirIno.FType != common.DirectoryType {
		return common.NullInum, common.ErrNotPermitted
	}
	if _, err := f.findDirEntry(dirIno, name); err == nil {
		return common.NullInum, common.ErrExists
	} else if err != common.ErrNotFound {
		return common.NullInum, err
	}

	newInum, err := f.allocInode()
	if err != nil {
		return common.NullInum, err
	}

	slot, err := f.findBlankDirEntry(dirInum, dirIno)
	if err != nil {
		return common.NullInum, err
	}

	stored := target
	if strings.HasPrefix(stored, condSymlinkPrefix) {
		rest := stored[len(condSymlinkPrefix):]
		i := strings.IndexByte(rest, ':')
		stored = condSymlinkPrefix + rest[:i] + "\x00" + rest[i+1:]
	}
	newIno := &inode.Inode{FType: common.SymlinkType, NLink: 1, Size: uint32(len(stored)), SymlinkTarget: stored}
	if err := f.installDirEntry(journal.CreateKind, newInum, newIno, slot, name); err != nil {
		return common.NullInum, err
	}
	if err := f.J.Apply(); err != nil {
		return common.NullInum, err
	}
	return newInum, nil
}

// FollowSymlink resolves ino's inline target under the calling uid,
// applying the root?A:B conditional convention when present.
func (f *FS) FollowSymlink(inum common.Inum, effectiveUID uint32) (string, error) {
	ino, err := f.J.ReadInode(inum)
	if err != nil {
		return "", err
	}
	if ino.FType != common.SymlinkType {
		return "", common.ErrNotPermitted
	}
	t := ino.SymlinkTarget
	if !strings.HasPrefix(t, condSymlinkPrefix) {
		return t, nil
	}
	rest := t[len(condSymlinkPrefix):]
	sep := strings.IndexByte(rest, 0)
	if sep < 0 {
		return "", common.ErrIO
	}
	if effectiveUID == 0 {
		return rest[:sep], nil
	}
	return rest[sep+1:], nil
}
