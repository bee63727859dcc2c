// Package writebuffer stages evicted blocks in memory and writes them to
// local eviction files once the staged total exceeds its budget.
//
// Eviction therefore costs the caller a map insert. Disk I/O only happens
// when the budget forces a flush, and it happens synchronously under the
// buffer's single lock, oldest entry first:
//
//	WriteBlock(p3) ──► [ p1 | p2 ] + p3 > limit ──► flush p1 ──► [ p2 | p3 ]
//
// Under [LRU], [Buffer.ReadBlock] hits move an entry to the young end, so
// blocks that keep getting restored stay in memory. Under [FIFO] (the
// default) reads do not affect flush order.
//
// An entry leaves the queue only after its file has been written, so a
// payload handed to WriteBlock is always either queued or on disk.
package writebuffer
