package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDiskReadWrite(t *testing.T) {
	d := NewMemDisk(4)
	sz, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), sz)

	blk := make(Block, BlockSize)
	for i := range blk {
		blk[i] = 0xAA
	}
	require.NoError(t, d.Write(2, blk))

	got, err := d.Read(2)
	require.NoError(t, err)
	assert.Equal(t, blk, got)

	zero, err := d.Read(0)
	require.NoError(t, err)
	for _, b := range zero {
		assert.Equal(t, byte(0), b)
	}
}

func TestMemDiskOutOfBounds(t *testing.T) {
	d := NewMemDisk(2)
	_, err := d.Read(5)
	assert.Error(t, err)
	assert.Error(t, d.Write(5, make(Block, BlockSize)))
}

func TestFileDisk(t *testing.T) {
	path := t.TempDir() + "/image.bin"
	d, err := NewFileDisk(path, 8)
	require.NoError(t, err)
	defer d.Close()

	sz, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), sz)

	blk := make(Block, BlockSize)
	blk[0] = 0x7F
	require.NoError(t, d.Write(3, blk))
	require.NoError(t, d.Barrier())

	got, err := d.Read(3)
	require.NoError(t, err)
	assert.Equal(t, blk, got)
}
