package spill

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testThreshold = 64

// vec is a float64 vector block. Eight values or fewer stay below testThreshold.
type vec struct {
	vals      []float64
	compacted bool
}

func newVec(n int, seed float64) *vec {
	v := &vec{vals: make([]float64, n)}
	for i := range v.vals {
		v.vals[i] = seed + float64(i)
	}
	return v
}

func (v *vec) InMemorySize() int64 { return int64(len(v.vals)) * 8 }
func (v *vec) CompactEmpty()       { v.compacted = true }

func (v *vec) Dims() (int64, int64, int64) {
	var nnz int64
	for _, x := range v.vals {
		if x != 0 {
			nnz++
		}
	}
	return int64(len(v.vals)), 1, nnz
}

type vecCodec struct {
	marshals   atomic.Int64
	unmarshals atomic.Int64
}

func (c *vecCodec) Marshal(v *vec) ([]byte, error) {
	c.marshals.Add(1)
	buf := make([]byte, 8*len(v.vals))
	for i, x := range v.vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf, nil
}

func (c *vecCodec) Unmarshal(data []byte) (*vec, error) {
	c.unmarshals.Add(1)
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("bad length %d", len(data))
	}
	v := &vec{vals: make([]float64, len(data)/8)}
	for i := range v.vals {
		v.vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return v, nil
}

type object struct {
	data   []float64
	format string
	meta   bool
}

// memBackend is an in-memory Backend that counts its calls.
type memBackend struct {
	mu      sync.Mutex
	objects map[string]object
	calls   map[string]int
	failOn  string
}

func newMemBackend() *memBackend {
	return &memBackend{objects: make(map[string]object), calls: make(map[string]int)}
}

func (b *memBackend) call(op string) error {
	b.calls[op]++
	if b.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (b *memBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *memBackend) physicalWrites() int {
	return b.count("write") + b.count("copy") + b.count("rename")
}

func (b *memBackend) put(path string, v *vec, format string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = object{data: slices.Clone(v.vals), format: format, meta: true}
}

func (b *memBackend) get(path string) (object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[path]
	return o, ok
}

func (b *memBackend) Read(_ context.Context, path string, _, _ int64) (*vec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("read"); err != nil {
		return nil, err
	}
	o, ok := b.objects[path]
	if !ok {
		return nil, fmt.Errorf("%s: not found", path)
	}
	return &vec{vals: slices.Clone(o.data)}, nil
}

func (b *memBackend) Write(_ context.Context, path, format string, _ WriteOptions, v *vec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("write"); err != nil {
		return err
	}
	b.objects[path] = object{data: slices.Clone(v.vals), format: format, meta: true}
	return nil
}

func (b *memBackend) WriteMeta(_ context.Context, path, format string, _ WriteOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("meta"); err != nil {
		return err
	}
	o := b.objects[path]
	o.format, o.meta = format, true
	b.objects[path] = o
	return nil
}

func (b *memBackend) Copy(_ context.Context, src, dst string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("copy"); err != nil {
		return err
	}
	o, ok := b.objects[src]
	if !ok {
		return fmt.Errorf("%s: not found", src)
	}
	b.objects[dst] = object{data: slices.Clone(o.data)}
	return nil
}

func (b *memBackend) Rename(_ context.Context, src, dst string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("rename"); err != nil {
		return err
	}
	o, ok := b.objects[src]
	if !ok {
		return fmt.Errorf("%s: not found", src)
	}
	delete(b.objects, src)
	b.objects[dst] = object{data: o.data}
	return nil
}

func (b *memBackend) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.call("delete"); err != nil {
		return err
	}
	delete(b.objects, path)
	return nil
}

func (b *memBackend) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

// fakeLineage computes a fixed block.
type fakeLineage struct {
	result       *vec
	persisted    bool
	shortCircuit bool
	storeFile    bool
	pending      bool

	materialized int
	writes       []string
	refs         map[Ref]struct{}
	backend      *memBackend
}

func newFakeLineage(result *vec) *fakeLineage {
	return &fakeLineage{result: result, pending: true, refs: make(map[Ref]struct{})}
}

func (l *fakeLineage) Materialize(context.Context) (*vec, bool, error) {
	l.materialized++
	return &vec{vals: slices.Clone(l.result.vals)}, l.persisted, nil
}

func (l *fakeLineage) WriteTo(_ context.Context, path, format string) error {
	l.writes = append(l.writes, path)
	if l.backend != nil {
		l.backend.put(path, l.result, format)
	}
	return nil
}

func (l *fakeLineage) AllowsShortCircuitRead() bool { return l.shortCircuit }
func (l *fakeLineage) IsPending() bool              { return l.pending }
func (l *fakeLineage) SetPending(p bool)            { l.pending = p }
func (l *fakeLineage) IsStoreFile() bool            { return l.storeFile }
func (l *fakeLineage) Attach(r Ref)                 { l.refs[r] = struct{}{} }
func (l *fakeLineage) Detach(r Ref)                 { delete(l.refs, r) }

type fakeBroadcast struct {
	refs map[Ref]struct{}
}

func (b *fakeBroadcast) Attach(r Ref) {
	if b.refs == nil {
		b.refs = make(map[Ref]struct{})
	}
	b.refs[r] = struct{}{}
}

func (b *fakeBroadcast) Detach(r Ref) { delete(b.refs, r) }

type mockDevice struct {
	mock.Mock
	name string
}

func (d *mockDevice) Device() string { return d.name }

func (d *mockDevice) AcquireHostRead(ctx context.Context) (*vec, bool, error) {
	args := d.Called(ctx)
	v, _ := args.Get(0).(*vec)
	return v, args.Bool(1), args.Error(2)
}

func (d *mockDevice) IsDirty() bool {
	return d.Called().Bool(0)
}

func (d *mockDevice) ClearData(ctx context.Context, eager bool) error {
	return d.Called(ctx, eager).Error(0)
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()

	base := []Option{
		WithCacheRoot(t.TempDir()),
		WithThreshold(testThreshold),
		WithWriteBufferBytes(1 << 20),
		WithMemoryCeiling(1 << 30),
		WithCompression(CompressionNone),
	}
	m, err := InitCaching("run", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.CleanupCacheDir(context.Background())
	})
	return m
}

func newTestEnvelope(t *testing.T, m *Manager, cfg EnvelopeConfig[*vec]) (*Envelope[*vec], *vecCodec) {
	t.Helper()

	codec := &vecCodec{}
	cfg.Codec = codec
	e, err := NewEnvelope(m, cfg)
	require.NoError(t, err)
	return e, codec
}
