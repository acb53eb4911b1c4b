// Command fsck is an invariant checker: it walks every live inode's block
// map, reports any block reachable from more than one owner (P1), rebuilds
// the set of blocks that ought to be allocated and cross-checks it against
// the live bitmap (P2), and checks each inode's block count against its
// size. It writes nothing itself; mounting the image, as every mount does,
// replays a committed journal batch if one is pending.
//
// Grounded on the inspection pass in
// _examples/jnwhiteh-minixfs/cmd/fsck/main.go, narrowed to this image's
// invariants instead of Minix's.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ospfs/journalfs/common"
	"github.com/ospfs/journalfs/disk"
	"github.com/ospfs/journalfs/fs"
	"github.com/ospfs/journalfs/inode"
	"github.com/ospfs/journalfs/util"
)

func fatalf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	var path string
	flag.StringVar(&path, "file", "", "image file to check")
	flag.Parse()
	if path == "" {
		fatalf("fsck: -file is required\n")
	}

	st, err := os.Stat(path)
	if err != nil {
		fatalf("fsck: stat %q: %s\n", path, err)
	}
	numBlocks := uint64(st.Size()) / common.BlockSize

	d, err := disk.NewFileDisk(path, numBlocks)
	if err != nil {
		fatalf("fsck: opening %q: %s\n", path, err)
	}
	defer d.Close()

	image, err := fs.Mount(d)
	if err != nil {
		fatalf("fsck: mount: %s\n", err)
	}

	errs := 0
	reachable := map[common.Bnum]bool{}
	mark := func(bn common.Bnum, context string) {
		if bn == common.NullBnum {
			return
		}
		if reachable[bn] {
			fmt.Printf("fsck: block %d reachable from more than one owner (%s)\n", bn, context)
			errs++
		}
		reachable[bn] = true
	}

	for i := common.Inum(1); i < image.Sup.NInodes; i++ {
		ino, err := image.J.ReadInode(i)
		if err != nil {
			fatalf("fsck: reading inode %d: %s\n", i, err)
		}
		if !ino.IsLive() || ino.FType == common.SymlinkType {
			continue
		}

		nblocks := 0
		for _, bn := range ino.Direct {
			if bn != common.NullBnum {
				mark(bn, fmt.Sprintf("inode %d direct", i))
				nblocks++
			}
		}
		if ino.Indirect != common.NullBnum {
			mark(ino.Indirect, fmt.Sprintf("inode %d indirect meta", i))
			blk, err := image.J.ReadBlock(ino.Indirect)
			if err != nil {
				fatalf("fsck: reading indirect block of inode %d: %s\n", i, err)
			}
			for s := 0; s < common.NINDIRECT; s++ {
				bn := inode.GetBnum(blk, uint64(s))
				if bn != common.NullBnum {
					mark(bn, fmt.Sprintf("inode %d indirect", i))
					nblocks++
				}
			}
		}
		if ino.Indirect2 != common.NullBnum {
			mark(ino.Indirect2, fmt.Sprintf("inode %d indirect2 meta", i))
			i2blk, err := image.J.ReadBlock(ino.Indirect2)
			if err != nil {
				fatalf("fsck: reading indirect2 block of inode %d: %s\n", i, err)
			}
			for s := 0; s < common.NINDIRECT; s++ {
				ibn := inode.GetBnum(i2blk, uint64(s))
				if ibn == common.NullBnum {
					continue
				}
				mark(ibn, fmt.Sprintf("inode %d indirect2 meta child", i))
				iblk, err := image.J.ReadBlock(ibn)
				if err != nil {
					fatalf("fsck: reading indirect block under indirect2 of inode %d: %s\n", i, err)
				}
				for t := 0; t < common.NINDIRECT; t++ {
					bn := inode.GetBnum(iblk, uint64(t))
					if bn != common.NullBnum {
						mark(bn, fmt.Sprintf("inode %d indirect2", i))
						nblocks++
					}
				}
			}
		}

		if ino.FType == common.RegularType || ino.FType == common.DirectoryType {
			want := int(util.RoundUp(uint64(ino.Size), common.BlockSize))
			if nblocks < want {
				fmt.Printf("fsck: inode %d has size %d (needs %d blocks) but only %d block-map slots are non-zero\n", i, ino.Size, want, nblocks)
				errs++
			}
		}
	}

	for bn := range reachable {
		if !image.J.Bitmap().IsFree(bn) {
			continue
		}
		fmt.Printf("fsck: block %d is reachable from a live inode but marked free\n", bn)
		errs++
	}
	for bn := image.Sup.FirstDataB; bn < image.Sup.NBlocks; bn++ {
		if image.J.Bitmap().IsFree(bn) {
			continue
		}
		if !reachable[bn] {
			fmt.Printf("fsck: block %d is marked allocated but unreachable from any live inode\n", bn)
			errs++
		}
	}

	if errs == 0 {
		fmt.Println("fsck: clean")
		return
	}
	fmt.Printf("fsck: %d inconsistencies found\n", errs)
	os.Exit(1)
}
