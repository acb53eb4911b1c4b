package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ospfs/journalfs/common"
)

func allFree(nblocks int) [][]byte {
	blocks := make([][]byte, nblocks)
	for i := range blocks {
		b := make([]byte, common.BlockSize)
		for j := range b {
			b[j] = 0xFF
		}
		blocks[i] = b
	}
	return blocks
}

func TestAllocateAndFree(t *testing.T) {
	bm := New(allFree(1), 10, 10+common.BlockSize*8)

	assert.True(t, bm.IsFree(10))
	bm.AllocateBlockno(10)
	assert.False(t, bm.IsFree(10))
	bm.FreeBlock(10)
	assert.True(t, bm.IsFree(10))
}

func TestFindFreeBlockStartsAtHi(t *testing.T) {
	bm := New(allFree(1), 10, 10+common.BlockSize*8)
	for k := common.Bnum(10); k < 15; k++ {
		bm.AllocateBlockno(k)
	}
	found := bm.FindFreeBlock(14, 15)
	assert.Equal(t, common.Bnum(15), found)
}

func TestFindFreeBlockFull(t *testing.T) {
	bm := New(make([][]byte, 1), 10, 10+common.BlockSize*8)
	bm.Blocks[0] = make([]byte, common.BlockSize) // all zero bits = all allocated
	found := bm.FindFreeBlock(9, 10)
	assert.Equal(t, common.NullBnum, found)
}

func TestFindFreeBlockOutOfRangeIgnored(t *testing.T) {
	bm := New(allFree(1), 10, 10+common.BlockSize*8)
	assert.False(t, bm.IsFree(5))
	bm.FreeBlock(5) // no-op, below FirstData
	bm.AllocateBlockno(5)
	assert.False(t, bm.IsFree(5))
}
