package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/disk"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/super"
)

func freshImage(t *testing.T, nblocks common.Bnum, ninodes uint32) (disk.Disk, super.Super) {
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
	return d, sup
}

func TestStageApplyWrite(t *testing.T) {
	d, sup := freshImage(t, 512, 32)
	j := New(d, sup)

	dataBlkno := sup.FirstDataB
	payload := make([]byte, common.BlockSize)
	payload[0] = 0xAB

	ino := &inode.Inode{Size: common.BlockSize, FType: common.RegularType, NLink: 1}
	ino.Direct[0] = dataBlkno

	batch := StagedBatch{
		Kind:           WriteKind,
		TargetInum:     common.RootInum,
		Inode:          ino,
		AffectedBlocks: []common.Bnum{dataBlkno},
		DataBlocks:     [][]byte{payload},
	}
	require.NoError(t, j.Stage(batch))
	require.NoError(t, j.Apply())

	got, err := j.ReadBlock(dataBlkno)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), got[0])

	h, err := j.readHeader()
	require.NoError(t, err)
	assert.Equal(t, EmptyKind, h.kind)
	assert.False(t, h.committed)
}

func TestRecoverReplaysCommittedBatch(t *testing.T) {
	d, sup := freshImage(t, 512, 32)
	j := New(d, sup)

	dataBlkno := sup.FirstDataB
	payload := make([]byte, common.BlockSize)
	payload[5] = 0x42
	ino := &inode.Inode{Size: common.BlockSize, FType: common.RegularType, NLink: 1}
	ino.Direct[0] = dataBlkno

	batch := StagedBatch{
		Kind:           WriteKind,
		TargetInum:     common.RootInum,
		Inode:          ino,
		AffectedBlocks: []common.Bnum{dataBlkno},
		DataBlocks:     [][]byte{payload},
	}
	// Stage but do not Apply, simulating a crash right after commit.
	require.NoError(t, j.Stage(batch))

	j2 := New(d, sup)
	require.NoError(t, j2.Recover())

	got, err := j2.ReadBlock(dataBlkno)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), got[5])

	h, err := j2.readHeader()
	require.NoError(t, err)
	assert.Equal(t, EmptyKind, h.kind)
}

func TestRecoverNoOpWhenNotCommitted(t *testing.T) {
	d, sup := freshImage(t, 512, 32)
	j := New(d, sup)
	require.NoError(t, j.Recover())
	h, err := j.readHeader()
	require.NoError(t, err)
	assert.Equal(t, EmptyKind, h.kind)
}

func TestApplyAllocFreeBitmap(t *testing.T) {
	d, sup := freshImage(t, 512, 32)
	j := New(d, sup)

	bn := sup.FirstDataB + 3
	assert.True(t, j.Bitmap().IsFree(bn))

	ino := &inode.Inode{Size: common.BlockSize, FType: common.RegularType, NLink: 1}
	ino.Direct[0] = bn
	require.NoError(t, j.Stage(StagedBatch{
		Kind:           AllocKind,
		TargetInum:     common.RootInum,
		Inode:          ino,
		AffectedBlocks: []common.Bnum{bn},
	}))
	require.NoError(t, j.Apply())
	assert.False(t, j.Bitmap().IsFree(bn))

	ino2 := &inode.Inode{Size: 0, FType: common.RegularType, NLink: 1}
	require.NoError(t, j.Stage(StagedBatch{
		Kind:           FreeKind,
		TargetInum:     common.RootInum,
		Inode:          ino2,
		AffectedBlocks: []common.Bnum{bn},
	}))
	require.NoError(t, j.Apply())
	assert.True(t, j.Bitmap().IsFree(bn))
}

func TestApplyTwiceIsIdempotent(t *testing.T) {
	d, sup := freshImage(t, 512, 32)
	j := New(d, sup)

	bn := sup.FirstDataB
	ino := &inode.Inode{Size: common.BlockSize, FType: common.RegularType, NLink: 1}
	ino.Direct[0] = bn
	require.NoError(t, j.Stage(StagedBatch{
		Kind:           AllocKind,
		TargetInum:     common.RootInum,
		Inode:          ino,
		AffectedBlocks: []common.Bnum{bn},
	}))
	require.NoError(t, j.Apply())
	first, err := d.Read(uint64(bn))
	require.NoError(t, err)

	require.NoError(t, j.Apply()) // header now EMPTY; second apply must be a no-op
	second, err := d.Read(uint64(bn))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
