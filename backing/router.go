package backing

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/spill"
)

// DefaultScheme is the scheme of paths without one.
const DefaultScheme = "file"

// SplitScheme splits path into its lower-cased scheme and the remainder.
func SplitScheme(path string) (scheme, rest string) {
	if i := strings.Index(path, "://"); i > 0 {
		return strings.ToLower(path[:i]), path[i+3:]
	}
	return DefaultScheme, path
}

// Router dispatches paths to a backend per URL scheme. The scheme prefix
// is stripped before a path reaches its backend.
type Router[T spill.Block] struct {
	routes map[string]spill.Backend[T]
}

// NewRouter creates a Router whose file scheme is served by local.
func NewRouter[T spill.Block](local spill.Backend[T]) *Router[T] {
	return &Router[T]{routes: map[string]spill.Backend[T]{DefaultScheme: local}}
}

// Handle registers b for scheme.
func (r *Router[T]) Handle(scheme string, b spill.Backend[T]) {
	r.routes[strings.ToLower(scheme)] = b
}

func (r *Router[T]) resolve(path string) (spill.Backend[T], string, error) {
	scheme, rest := SplitScheme(path)
	b, ok := r.routes[scheme]
	if !ok {
		return nil, "", fmt.Errorf("backing: no backend for scheme %q", scheme)
	}
	return b, rest, nil
}

// pair resolves src and dst, which must share a scheme.
func (r *Router[T]) pair(src, dst string) (spill.Backend[T], string, string, error) {
	srcScheme, _ := SplitScheme(src)
	dstScheme, d := SplitScheme(dst)
	if srcScheme != dstScheme {
		return nil, "", "", fmt.Errorf("backing: %s and %s use different schemes", src, dst)
	}
	b, s, err := r.resolve(src)
	if err != nil {
		return nil, "", "", err
	}
	return b, s, d, nil
}

func (r *Router[T]) Read(ctx context.Context, path string, rows, cols int64) (T, error) {
	b, p, err := r.resolve(path)
	if err != nil {
		var zero T
		return zero, err
	}
	return b.Read(ctx, p, rows, cols)
}

func (r *Router[T]) Write(ctx context.Context, path, format string, opts spill.WriteOptions, blk T) error {
	b, p, err := r.resolve(path)
	if err != nil {
		return err
	}
	return b.Write(ctx, p, format, opts, blk)
}

func (r *Router[T]) WriteMeta(ctx context.Context, path, format string, opts spill.WriteOptions) error {
	b, p, err := r.resolve(path)
	if err != nil {
		return err
	}
	return b.WriteMeta(ctx, p, format, opts)
}

func (r *Router[T]) Copy(ctx context.Context, src, dst string) error {
	b, s, d, err := r.pair(src, dst)
	if err != nil {
		return err
	}
	return b.Copy(ctx, s, d)
}

func (r *Router[T]) Rename(ctx context.Context, src, dst string) error {
	b, s, d, err := r.pair(src, dst)
	if err != nil {
		return err
	}
	return b.Rename(ctx, s, d)
}

func (r *Router[T]) Delete(ctx context.Context, path string) error {
	b, p, err := r.resolve(path)
	if err != nil {
		return err
	}
	return b.Delete(ctx, p)
}

func (r *Router[T]) Exists(ctx context.Context, path string) (bool, error) {
	b, p, err := r.resolve(path)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, p)
}
