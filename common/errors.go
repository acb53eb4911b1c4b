package common

import "errors"

// Sentinel errors returned by the core, one per §7 error kind. Callers
// compare with errors.Is; an adaptor maps these onto host error codes.
var (
	ErrNoSpace      = errors.New("journalfs: no space")
	ErrNotFound     = errors.New("journalfs: not found")
	ErrExists       = errors.New("journalfs: name exists")
	ErrNameTooLong  = errors.New("journalfs: name too long")
	ErrNotPermitted = errors.New("journalfs: operation not permitted")
	ErrIO           = errors.New("journalfs: structural invariant violated")
	ErrFault        = errors.New("journalfs: bad user buffer")
	ErrOutOfMemory  = errors.New("journalfs: out of memory")
)
