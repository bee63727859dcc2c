package spill

import (
	"context"
	"sync/atomic"
)

// PinTracker counts the bytes of above-threshold blocks currently held
// under a read or modify lock. It is pure bookkeeping and never blocks.
//
// Go has no thread-local storage: a tracker travels in a context, one per
// worker goroutine. See WithPinTracker.
type PinTracker struct {
	total atomic.Int64
}

// Pin adds size bytes.
func (p *PinTracker) Pin(size int64) {
	if p == nil || size <= 0 {
		return
	}
	p.total.Add(size)
}

// Unpin subtracts size bytes, clamping the total at zero.
func (p *PinTracker) Unpin(size int64) {
	if p == nil || size <= 0 {
		return
	}
	for {
		cur := p.total.Load()
		next := max(cur-size, 0)
		if p.total.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Total returns the pinned byte count.
func (p *PinTracker) Total() int64 {
	if p == nil {
		return 0
	}
	return p.total.Load()
}

// Reset zeroes the tracker.
func (p *PinTracker) Reset() {
	if p != nil {
		p.total.Store(0)
	}
}

type pinKey struct{}

// WithPinTracker returns a context carrying a fresh tracker. Envelope
// operations called with the returned context account their pins there.
func WithPinTracker(ctx context.Context) (context.Context, *PinTracker) {
	p := &PinTracker{}
	return context.WithValue(ctx, pinKey{}, p), p
}

// PinTrackerFrom returns the tracker carried by ctx, or nil.
func PinTrackerFrom(ctx context.Context) *PinTracker {
	p, _ := ctx.Value(pinKey{}).(*PinTracker)
	return p
}

// PinnedSize returns the bytes pinned through ctx's tracker, or 0.
func PinnedSize(ctx context.Context) int64 {
	return PinTrackerFrom(ctx).Total()
}
