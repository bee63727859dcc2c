package resource

import (
	"math"
	"runtime/debug"
)

// fallbackMemory is used when neither a runtime limit nor the host memory
// can be determined.
const fallbackMemory int64 = 4 << 30

// LocalMaxMemory returns the memory ceiling eviction budgets derive from.
func LocalMaxMemory() int64 {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		return limit
	}
	if total := physicalMemory(); total > 0 {
		return total
	}
	return fallbackMemory
}
