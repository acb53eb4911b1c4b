// Command mkfs creates a fresh, empty image: a zeroed boot block, a stamped
// superblock, a fully-free bitmap covering the data region (the superblock,
// bitmap and inode-table blocks before it are never bitmap-addressable), an
// empty inode table, a cleared journal region, and a root directory inode
// with a zero-length data region.
//
// Grounded on the flag-driven image-builder in
// _examples/jnwhiteh-minixfs/cmd/mkfs/main.go, adapted to this image's
// fixed 1 KiB block size and journal-region layout.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ospfs/journalfs/bitmap"
	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/disk"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/super"
)

func fatalf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	var path string
	var nblocks uint
	var ninodes uint

	flag.StringVar(&path, "file", "", "image file to create")
	flag.UintVar(&nblocks, "blocks", 65536, "image size, in 1 KiB blocks")
	flag.UintVar(&ninodes, "inodes", 1024, "number of inode slots")
	flag.Parse()

	if path == "" {
		fatalf("mkfs: -file is required\n")
	}

	sup, err := super.Layout(common.Bnum(nblocks), uint32(ninodes))
	if err != nil {
		fatalf("mkfs: %s\n", err)
	}

	d, err := disk.NewFileDisk(path, uint64(sup.NBlocks))
	if err != nil {
		fatalf("mkfs: opening %q: %s\n", path, err)
	}
	defer d.Close()

	zero := make([]byte, common.BlockSize)
	for b := uint64(0); b < uint64(sup.NBlocks); b++ {
		if err := d.Write(b, zero); err != nil {
			fatalf("mkfs: zeroing block %d: %s\n", b, err)
		}
	}

	if err := d.Write(1, sup.Encode()); err != nil {
		fatalf("mkfs: writing superblock: %s\n", err)
	}

	bm := bitmap.New(nil, sup.FirstDataB, sup.NBlocks)
	nbitmap := sup.BitmapBlocks()
	blocks := make([][]byte, nbitmap)
	for i := range blocks {
		blk := make([]byte, common.BlockSize)
		for j := range blk {
			blk[j] = 0xff
		}
		blocks[i] = blk
	}
	bm.Blocks = blocks
	for i, blk := range bm.Blocks {
		blkno := uint64(super.BitmapStart) + uint64(i)
		if err := d.Write(blkno, blk); err != nil {
			fatalf("mkfs: writing bitmap block %d: %s\n", i, err)
		}
	}

	root := &inode.Inode{FType: common.DirectoryType, NLink: 1, Mode: 0755}
	blkno, off := sup.InodeBlockAndOffset(common.RootInum)
	inodeBlk, err := d.Read(uint64(blkno))
	if err != nil {
		fatalf("mkfs: reading inode block: %s\n", err)
	}
	copy(inodeBlk[off:off+common.InodeSize], root.Encode())
	if err := d.Write(uint64(blkno), inodeBlk); err != nil {
		fatalf("mkfs: writing root inode: %s\n", err)
	}

	if err := d.Barrier(); err != nil {
		fatalf("mkfs: %s\n", err)
	}
	fmt.Printf("mkfs: wrote %d blocks (%d inodes) to %s\n", sup.NBlocks, sup.NInodes, path)
}
