package spill

import (
	"context"
	"weak"
)

// Backend reads and writes blocks at persisted paths. The backing package
// provides an implementation over object stores.
type Backend[T Block] interface {
	// Read loads the block stored at path. rows and cols are the known
	// dimensions, or -1 when unknown.
	Read(ctx context.Context, path string, rows, cols int64) (T, error)

	// Write stores block at path in format, together with its metadata.
	Write(ctx context.Context, path, format string, opts WriteOptions, block T) error

	// WriteMeta rewrites only the metadata of path.
	WriteMeta(ctx context.Context, path, format string, opts WriteOptions) error

	// Copy duplicates the data object at src to dst.
	Copy(ctx context.Context, src, dst string) error

	// Rename moves the data object at src to dst.
	Rename(ctx context.Context, src, dst string) error

	// Delete removes path and its metadata. A missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a data object is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// Lineage is a lazily evaluated computation that produces a block.
type Lineage[T Block] interface {
	// Materialize evaluates the computation. persisted reports whether
	// evaluation already wrote the result somewhere durable.
	Materialize(ctx context.Context) (block T, persisted bool, err error)

	// WriteTo evaluates the computation straight into path.
	WriteTo(ctx context.Context, path, format string) error

	// AllowsShortCircuitRead reports whether the backing path can be read
	// directly instead of evaluating the computation.
	AllowsShortCircuitRead() bool

	IsPending() bool
	SetPending(pending bool)

	// IsStoreFile reports whether the computation is a plain read of a
	// stored file.
	IsStoreFile() bool

	Attach(ref Ref)
	Detach(ref Ref)
}

// Broadcast is a shared, immutable distributed copy of a block.
type Broadcast interface {
	Attach(ref Ref)
	Detach(ref Ref)
}

// DeviceCopy is an accelerator-resident copy of a block.
type DeviceCopy[T Block] interface {
	// Device identifies the accelerator context holding the copy.
	Device() string

	// AcquireHostRead copies the device data to the host if it is dirty.
	// copied is false, and block the zero value, when nothing was copied.
	AcquireHostRead(ctx context.Context) (block T, copied bool, err error)

	IsDirty() bool

	// ClearData frees the device memory. eager frees immediately rather
	// than returning the memory to a pool.
	ClearData(ctx context.Context, eager bool) error
}

// anchor is the target of weak back-references to an envelope.
type anchor struct {
	id    int64
	clear func(ctx context.Context) error
}

// Ref is a non-owning back-reference from a lineage, broadcast or device
// descriptor to the envelope it belongs to. A Ref never keeps its envelope
// alive. Refs are comparable.
type Ref struct {
	id int64
	p  weak.Pointer[anchor]
}

func newRef(a *anchor) Ref {
	return Ref{id: a.id, p: weak.Make(a)}
}

// ID returns the envelope id, or -1 for envelopes created while caching
// was inactive.
func (r Ref) ID() int64 { return r.id }

// Alive reports whether the envelope is still reachable.
func (r Ref) Alive() bool { return r.p.Value() != nil }

// ClearData clears the referenced envelope. It is a no-op once the
// envelope has been collected.
func (r Ref) ClearData(ctx context.Context) error {
	a := r.p.Value()
	if a == nil {
		return nil
	}
	return a.clear(ctx)
}
