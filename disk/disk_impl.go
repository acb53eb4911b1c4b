package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var _ Disk = (*fileDisk)(nil)

// fileDisk backs the image with a real file, using direct pread/pwrite so
// reads and writes never go through Go's buffered I/O. This is how a mounted
// image survives a process restart; the core never depends on it directly.
type fileDisk struct {
	fd        int
	numBlocks uint64
}

// NewFileDisk opens (creating if necessary) path as a numBlocks-block image.
func NewFileDisk(path string, numBlocks uint64) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, err
	}
	wantSize := int64(numBlocks * BlockSize)
	if stat.Mode&unix.S_IFREG != 0 && stat.Size != wantSize {
		if err := unix.Ftruncate(fd, wantSize); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return &fileDisk{fd: fd, numBlocks: numBlocks}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		return fmt.Errorf("disk: buffer is not block-sized (%d bytes)", len(buf))
	}
	if a >= d.numBlocks {
		return fmt.Errorf("disk: out-of-bounds read at %d", a)
	}
	_, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	return err
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		return fmt.Errorf("disk: value is not block-sized (%d bytes)", len(v))
	}
	if a >= d.numBlocks {
		return fmt.Errorf("disk: out-of-bounds write at %d", a)
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	return err
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

// Barrier fsyncs the backing file. On macOS this does not issue a true
// write barrier (see internal/poll/fd_fsync_darwin.go); the correct fix is
// an fcntl with F_FULLFSYNC, which this does not attempt.
func (d *fileDisk) Barrier() error {
	return unix.Fsync(d.fd)
}

func (d *fileDisk) Close() error {
	return unix.Close(d.fd)
}

var _ Disk = (*memDisk)(nil)

// memDisk is the image held wholly in memory: the literal "contiguous byte
// array" of spec.md §1. Mounting one is how tests and the in-process
// adaptor get a disk with no backing file at all.
type memDisk struct {
	l      *sync.RWMutex
	blocks [][BlockSize]byte
}

// NewMemDisk allocates a zeroed, numBlocks-block in-memory image.
func NewMemDisk(numBlocks uint64) *memDisk {
	return &memDisk{l: new(sync.RWMutex), blocks: make([][BlockSize]byte, numBlocks)}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if a >= uint64(len(d.blocks)) {
		return fmt.Errorf("disk: out-of-bounds read at %d", a)
	}
	copy(buf, d.blocks[a][:])
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *memDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		return fmt.Errorf("disk: value is not block-sized (%d bytes)", len(v))
	}
	d.l.Lock()
	defer d.l.Unlock()
	if a >= uint64(len(d.blocks)) {
		return fmt.Errorf("disk: out-of-bounds write at %d", a)
	}
	copy(d.blocks[a][:], v)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	return uint64(len(d.blocks)), nil
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
