package fs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/dirent"
)

func TestFindBlankDirEntryGrowsDirectory(t *testing.T) {
	image := freshImage(t, 4096, 256)
	dirIno, err := image.J.ReadInode(common.RootInum)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), dirIno.Size)

	perBlock := dirent.PerBlock
	for i := 0; i < perBlock+1; i++ {
		_, err := image.Create(common.RootInum, fmt.Sprintf("a%d", i), 0644)
		require.NoError(t, err)
	}

	dirIno, err = image.J.ReadInode(common.RootInum)
	require.NoError(t, err)
	assert.Equal(t, uint32(2*common.BlockSize), dirIno.Size)
}

func TestFindBlankDirEntryReusesTombstone(t *testing.T) {
	image := freshImage(t, 1024, 64)
	_, err := image.Create(common.RootInum, "a", 0644)
	require.NoError(t, err)
	require.NoError(t, image.Unlink(common.RootInum, "a"))

	dirIno, err := image.J.ReadInode(common.RootInum)
	require.NoError(t, err)
	sizeAfterUnlink := dirIno.Size

	_, err = image.Create(common.RootInum, "b", 0644)
	require.NoError(t, err)

	dirIno, err = image.J.ReadInode(common.RootInum)
	require.NoError(t, err)
	assert.Equal(t, sizeAfterUnlink, dirIno.Size, "reusing a tombstone must not grow the directory")
}

func TestReaddirEmitsDotAndDotDotThenEntries(t *testing.T) {
	image := freshImage(t, 1024, 64)
	_, err := image.Create(common.RootInum, "a", 0644)
	require.NoError(t, err)

	name, inum, cursor, done, err := image.Readdir(common.RootInum, 0)
	require.NoError(t, err)
	assert.Equal(t, ".", name)
	assert.Equal(t, common.RootInum, inum)
	assert.False(t, done)

	name, inum, cursor, done, err = image.Readdir(common.RootInum, cursor)
	require.NoError(t, err)
	assert.Equal(t, "..", name)
	assert.False(t, done)

	name, _, cursor, done, err = image.Readdir(common.RootInum, cursor)
	require.NoError(t, err)
	assert.Equal(t, "a", name)
	assert.False(t, done)

	_, _, _, done, err = image.Readdir(common.RootInum, cursor)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestReaddirSkipsTombstones(t *testing.T) {
	image := freshImage(t, 1024, 64)
	_, err := image.Create(common.RootInum, "a", 0644)
	require.NoError(t, err)
	_, err = image.Create(common.RootInum, "b", 0644)
	require.NoError(t, err)
	require.NoError(t, image.Unlink(common.RootInum, "a"))

	names := []string{}
	cursor := 0
	for {
		name, _, next, done, err := image.Readdir(common.RootInum, cursor)
		require.NoError(t, err)
		if done {
			break
		}
		if name != "." && name != ".." {
			names = append(names, name)
		}
		cursor = next
	}
	assert.Equal(t, []string{"b"}, names)
}
