// Package fs abstracts the local filesystem used for eviction files.
//
// Two implementations exist:
//
//   - [LocalFS]: the os package, exposed as [Default]
//   - [FaultyFS]: a wrapper that injects I/O failures for tests
//
// Eviction files are always written through [WriteFileAtomic], which stages
// the payload in a temporary sibling and renames it into place, so a reader
// never observes a partially written file.
//
// Operations take no context.Context: local syscalls are not interruptible
// and the callers already hold the write-back buffer lock for their duration.
package fs
