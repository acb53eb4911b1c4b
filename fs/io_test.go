package fs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ospfs/journalfs/common"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	image := freshImage(t, 1024, 64)
	inum, err := image.Create(common.RootInum, "f", 0644)
	require.NoError(t, err)

	msg := []byte("Hello, world!\n")
	n, err := image.Write(inum, 0, msg, false)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)

	ino, err := image.J.ReadInode(inum)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(msg)), ino.Size)

	got, err := image.Read(inum, 0, len(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestTruncateReleasesAllBlocks(t *testing.T) {
	image := freshImage(t, 2048, 64)
	inum, err := image.Create(common.RootInum, "f", 0644)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0x42}, 11264)
	n, err := image.Write(inum, 0, data, false)
	require.NoError(t, err)
	assert.Equal(t, 11264, n)

	before := countAllocated(image)
	require.NoError(t, image.Setattr(inum, 0))
	after := countAllocated(image)
	// 11 data blocks (ceil(11264/1024)) plus the one indirect meta-block
	// the 11th block's slot lives behind, since NDIRECT==10.
	assert.Equal(t, 12, before-after)

	ino, err := image.J.ReadInode(inum)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ino.Size)
}

func TestAppendPastIndirectBoundaryThenRead(t *testing.T) {
	image := freshImage(t, 4096, 64)
	inum, err := image.Create(common.RootInum, "f", 0644)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0xAA}, 13000)
	n, err := image.Write(inum, 0, data, false)
	require.NoError(t, err)
	assert.Equal(t, 13000, n)

	ino, err := image.J.ReadInode(inum)
	require.NoError(t, err)
	assert.NotEqual(t, common.NullBnum, ino.Indirect)

	got, err := image.Read(inum, 10000, 2000)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 2000), got)
}

func TestAppendModeIgnoresOffset(t *testing.T) {
	image := freshImage(t, 1024, 64)
	inum, err := image.Create(common.RootInum, "f", 0644)
	require.NoError(t, err)

	_, err = image.Write(inum, 0, []byte("abc"), false)
	require.NoError(t, err)
	n, err := image.Write(inum, 0, []byte("def"), true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := image.Read(inum, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), got)
}

func countAllocated(image *FS) int {
	count := 0
	for bn := image.Sup.FirstDataB; bn < image.Sup.NBlocks; bn++ {
		if !image.J.Bitmap().IsFree(bn) {
			count++
		}
	}
	return count
}
