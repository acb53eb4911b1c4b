package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/disk"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/super"
)

// freshImage builds an in-memory image with a stamped superblock, an
// all-free bitmap, and a live, empty root directory inode, then mounts it.
func freshImage(t *testing.T, nblocks common.Bnum, ninodes uint32) *FS {
	t.Helper()
	sup, err := super.Layout(nblocks, ninodes)
	require.NoError(t, err)
	d := disk.NewMemDisk(uint64(nblocks))
	require.NoError(t, d.Write(1, sup.Encode()))
	for i := common.Bnum(0); i < sup.BitmapBlocks(); i++ {
		blk := make([]byte, common.BlockSize)
		for b := range blk {
			blk[b] = 0xFF
		}
		require.NoError(t, d.Write(uint64(super.BitmapStart)+uint64(i), blk))
	}
	root := &inode.Inode{FType: common.DirectoryType, NLink: 1, Mode: 0755}
	blkno, off := sup.InodeBlockAndOffset(common.RootInum)
	blk, err := d.Read(uint64(blkno))
	require.NoError(t, err)
	copy(blk[off:off+common.InodeSize], root.Encode())
	require.NoError(t, d.Write(uint64(blkno), blk))

	image, err := Mount(d)
	require.NoError(t, err)
	return image
}

func TestMountsFreshImage(t *testing.T) {
	image := freshImage(t, 1024, 64)
	ino, err := image.J.ReadInode(common.RootInum)
	require.NoError(t, err)
	assert.True(t, ino.IsLive())
	assert.Equal(t, common.DirectoryType, ino.FType)
}

func TestSetattrRejectsDirectory(t *testing.T) {
	image := freshImage(t, 1024, 64)
	err := image.Setattr(common.RootInum, 10)
	assert.ErrorIs(t, err, common.ErrNotPermitted)
}

func TestChangeSizeGrowThenShrinkRegularFile(t *testing.T) {
	image := freshImage(t, 1024, 64)
	inum, err := image.Create(common.RootInum, "f", 0644)
	require.NoError(t, err)

	require.NoError(t, image.Setattr(inum, uint32(common.NDIRECT+3)*common.BlockSize))
	ino, err := image.J.ReadInode(inum)
	require.NoError(t, err)
	assert.Equal(t, uint32(common.NDIRECT+3)*common.BlockSize, ino.Size)
	assert.NotEqual(t, common.NullBnum, ino.Indirect)

	require.NoError(t, image.Setattr(inum, 0))
	ino, err = image.J.ReadInode(inum)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ino.Size)
	assert.Equal(t, common.NullBnum, ino.Indirect)
	for _, bn := range ino.Direct {
		assert.Equal(t, common.NullBnum, bn)
	}
}

func TestChangeSizeRejectsOversizedFile(t *testing.T) {
	image := freshImage(t, 1024, 64)
	inum, err := image.Create(common.RootInum, "f", 0644)
	require.NoError(t, err)
	err = image.Setattr(inum, common.MAXFILESIZE+1)
	assert.ErrorIs(t, err, common.ErrNoSpace)
}
