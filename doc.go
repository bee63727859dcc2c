// Package spill manages large data blocks whose working set exceeds
// memory.
//
// Every block lives in an [Envelope] that mediates access through an
// acquire/release protocol. While a caller holds a lock the block is
// pinned in memory. Once the last lock is released, a block above the
// caching threshold moves out of memory: it is handed to a bounded
// write-back buffer that persists it to a local eviction file, and kept
// in a reclaimable soft cache. The next acquire restores it transparently
// from the first level that still has it.
//
// # Quick Start
//
//	ctx := context.Background()
//	m, _ := spill.InitCaching("run-42", spill.WithCacheRoot("/fast/nvme"))
//	defer m.CleanupCacheDir(ctx)
//
//	env, _ := spill.NewEnvelope(m, spill.EnvelopeConfig[*block.Matrix]{
//	    Codec: block.MatrixCodec{},
//	})
//
//	// Install a new block under the exclusive lock.
//	env.AcquireModify(ctx, mat)
//	env.Release(ctx) // evicted once released
//
//	// Shared readers restore it on demand.
//	restored, _ := env.AcquireRead(ctx)
//	_ = restored.Get(3, 7)
//	env.Release(ctx)
//
//	// Free every copy.
//	env.ClearData(ctx)
//
// # Lock Protocol
//
// An envelope is EMPTY, READ (one or more readers), MODIFY (one writer),
// CACHED or CACHED_NOWRITE. Conflicting requests never wait: they fail
// immediately with [ErrLockConflict]. A conflict means the caller's
// control flow is wrong and is not retried.
//
// CACHED_NOWRITE marks a block read unchanged from its backing store; it
// is dropped from memory without an eviction file because the backing
// copy is authoritative.
//
// # Backing Stores
//
// Envelopes optionally carry a [Backend] for their persisted copy, a
// [Lineage] that can compute the block lazily, a [Broadcast] and any
// number of [DeviceCopy] accelerator copies. [Envelope.Export] writes the
// current content to a path with at most one physical write.
//
// The backing package implements [Backend] over the object stores in
// blobstore (local disk, memory, S3 and MinIO).
//
// # Pinned Size
//
// Go has no thread-local state, so pinned bytes are accounted in a
// [PinTracker] carried by the context:
//
//	ctx, pins := spill.WithPinTracker(ctx)
//	env.AcquireRead(ctx)
//	fmt.Println(pins.Total())
package spill
