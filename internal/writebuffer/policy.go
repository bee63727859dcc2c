package writebuffer

import (
	"fmt"
	"strings"
)

// Policy selects which queued entry is flushed first.
type Policy uint8

const (
	// FIFO flushes in insertion order.
	FIFO Policy = iota
	// LRU flushes the least recently written or read entry.
	LRU
)

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case LRU:
		return "lru"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy parses "fifo" or "lru", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return FIFO, nil
	case "lru":
		return LRU, nil
	default:
		return 0, fmt.Errorf("writebuffer: unknown policy %q", s)
	}
}
