// Package mmap maps blob files read-only into memory.
//
// LocalStore serves backing files through a Mapping so that block decoders
// read straight from the page cache. On Windows Advise is a no-op.
package mmap
