package spill

import "fmt"

// Status is the lock and residency state of an envelope.
type Status uint8

const (
	// StatusEmpty means no block is held in memory or in the local cache.
	StatusEmpty Status = iota
	// StatusRead means one or more readers hold the block.
	StatusRead
	// StatusModify means a single writer holds the block.
	StatusModify
	// StatusCached means the block is unpinned and may live in memory,
	// the soft cache, the write-back buffer or an eviction file.
	StatusCached
	// StatusCachedNoWrite is StatusCached for a block that equals its
	// backing copy and never needs a local eviction file.
	StatusCachedNoWrite
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusRead:
		return "READ"
	case StatusModify:
		return "MODIFY"
	case StatusCached:
		return "CACHED"
	case StatusCachedNoWrite:
		return "CACHED_NOWRITE"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// IsCached reports whether s is CACHED or CACHED_NOWRITE.
func (s Status) IsCached() bool {
	return s == StatusCached || s == StatusCachedNoWrite
}

// IsPinned reports whether a lock is held.
func (s Status) IsPinned() bool {
	return s == StatusRead || s == StatusModify
}

// empty covers the states from which a backing copy must be read.
func (s Status) empty() bool {
	return s == StatusEmpty || s == StatusCachedNoWrite
}
