package lineage

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/spill"
)

// ErrNoBackend is returned by WriteTo on a handle without a backend.
var ErrNoBackend = errors.New("lineage: no backend")

// ComputeFunc evaluates a lineage.
type ComputeFunc[T spill.Block] func(ctx context.Context) (T, error)

// Handle is a lazily evaluated block. It implements spill.Lineage.
type Handle[T spill.Block] struct {
	compute ComputeFunc[T]
	backend spill.Backend[T]

	// output, when set, receives the result of every materialization.
	output       string
	outputFormat string
	replication  int

	storeFile bool

	mu       sync.Mutex
	pending  bool
	computed int
	refs     refSet
}

var _ spill.Lineage[spill.Block] = (*Handle[spill.Block])(nil)

// Option configures a Handle.
type Option[T spill.Block] func(*Handle[T])

// WithBackend sets the backend used by WriteTo and WithOutput.
func WithBackend[T spill.Block](b spill.Backend[T]) Option[T] {
	return func(h *Handle[T]) { h.backend = b }
}

// WithOutput persists every materialization to path in format. Once the
// output is written, readers may load it directly.
func WithOutput[T spill.Block](path, format string) Option[T] {
	return func(h *Handle[T]) {
		h.output = path
		h.outputFormat = format
	}
}

// WithReplication sets the replication factor of written outputs.
func WithReplication[T spill.Block](n int) Option[T] {
	return func(h *Handle[T]) { h.replication = n }
}

// New creates a pending handle for compute.
func New[T spill.Block](compute ComputeFunc[T], optFns ...Option[T]) *Handle[T] {
	h := &Handle[T]{compute: compute, pending: true}
	for _, fn := range optFns {
		fn(h)
	}
	return h
}

// FromFile creates a handle for a plain read of path.
func FromFile[T spill.Block](backend spill.Backend[T], path string, rows, cols int64) *Handle[T] {
	return &Handle[T]{
		compute: func(ctx context.Context) (T, error) {
			return backend.Read(ctx, path, rows, cols)
		},
		backend:   backend,
		output:    path,
		storeFile: true,
	}
}

// Materialize evaluates the lineage. When an output path is configured,
// the result is written there and persisted is true.
func (h *Handle[T]) Materialize(ctx context.Context) (T, bool, error) {
	b, err := h.evaluate(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if h.storeFile || h.output == "" {
		return b, h.storeFile, nil
	}
	if h.backend == nil {
		var zero T
		return zero, false, ErrNoBackend
	}
	if err := h.backend.Write(ctx, h.output, h.outputFormat, h.writeOptions(h.outputFormat, b), b); err != nil {
		var zero T
		return zero, false, err
	}
	h.SetPending(false)
	return b, true, nil
}

// WriteTo evaluates the lineage straight into path.
func (h *Handle[T]) WriteTo(ctx context.Context, path, format string) error {
	if h.backend == nil {
		return ErrNoBackend
	}
	b, err := h.evaluate(ctx)
	if err != nil {
		return err
	}
	return h.backend.Write(ctx, path, format, h.writeOptions(format, b), b)
}

func (h *Handle[T]) evaluate(ctx context.Context) (T, error) {
	b, err := h.compute(ctx)
	if err != nil {
		return b, err
	}
	h.mu.Lock()
	h.computed++
	h.mu.Unlock()
	return b, nil
}

func (h *Handle[T]) writeOptions(format string, b T) spill.WriteOptions {
	rows, cols, nnz := b.Dims()
	return spill.WriteOptions{
		Replication: h.replication,
		Meta:        spill.Meta{Rows: rows, Cols: cols, NNZ: nnz, Format: format},
	}
}

// AllowsShortCircuitRead reports whether the result can be read from its
// persisted location instead of being recomputed.
func (h *Handle[T]) AllowsShortCircuitRead() bool {
	if h.storeFile {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.output != "" && !h.pending
}

// IsPending reports whether the lineage still has to be evaluated.
func (h *Handle[T]) IsPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

func (h *Handle[T]) SetPending(pending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = pending
}

func (h *Handle[T]) IsStoreFile() bool { return h.storeFile }

// Computed returns how often the lineage has been evaluated.
func (h *Handle[T]) Computed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.computed
}

func (h *Handle[T]) Attach(ref spill.Ref) { h.refs.add(ref) }

func (h *Handle[T]) Detach(ref spill.Ref) { h.refs.remove(ref) }

// Refs returns the back-references to envelopes that are still alive.
func (h *Handle[T]) Refs() []spill.Ref { return h.refs.alive() }

// Release clears every live envelope that references this lineage and
// holds data. Envelopes stay linked across modifications; an envelope
// already cleared is linked again on its next acquire. Release is called
// when the variable owning the lineage goes out of scope.
func (h *Handle[T]) Release(ctx context.Context) error {
	var errs []error
	for _, ref := range h.refs.alive() {
		if err := ref.ClearData(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
