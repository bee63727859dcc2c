// Package lineage provides the lazy computation and broadcast descriptors
// that spill envelopes hold back-references from.
//
// A [Handle] stands for a block that has not been computed yet. The
// envelope materializes it on first read, or streams it straight to a
// backing path on export. [FromFile] describes a plain read of a stored
// file, which envelopes short-circuit into a backing read.
//
// A [Broadcast] is a shared, immutable copy of a block. Its size is
// charged to the manager for as long as it lives.
//
// Both keep non-owning spill.Ref back-references. A referenced envelope
// can be collected at any time; [Handle.Release] clears the envelopes
// that are still alive.
package lineage
