// Package disk is the typed accessor over the image's backing byte array
// (C1, block device view). The image's provenance — a plain in-memory
// buffer, a file, a caller-provided mapping — is deliberately hidden behind
// this interface; everything above it only ever sees block-addressed,
// block-sized reads and writes.
package disk

import "github.com/ospfs/journalfs/common"

// Block is one 1024-byte buffer.
type Block = []byte

// BlockSize is the fixed block size of the image.
const BlockSize = common.BlockSize

// Disk provides block-addressed access to the image.
type Disk interface {
	// Read reads a disk block by address. Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a into b, which must be BlockSize long.
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address. Expects a < Size().
	Write(a uint64, v Block) error

	// Size reports how many blocks the image holds.
	Size() (uint64, error)

	// Barrier ensures every outstanding write is durable when it returns.
	Barrier() error

	// Close releases any resources used by the disk.
	Close() error
}
