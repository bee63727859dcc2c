package lineage

import (
	"sync"

	"github.com/hupe1980/spill"
)

// SizeAccount is charged for live broadcasts. *spill.Manager implements it.
type SizeAccount interface {
	AddBroadcastSize(delta int64)
}

// Broadcast is a shared immutable copy of a block. It implements
// spill.Broadcast.
type Broadcast struct {
	acct SizeAccount
	size int64

	mu        sync.Mutex
	destroyed bool
	refs      refSet
}

var _ spill.Broadcast = (*Broadcast)(nil)

// NewBroadcast registers a broadcast of size bytes with acct.
func NewBroadcast(acct SizeAccount, size int64) *Broadcast {
	acct.AddBroadcastSize(size)
	return &Broadcast{acct: acct, size: size}
}

// Size returns the broadcast size in bytes.
func (b *Broadcast) Size() int64 { return b.size }

func (b *Broadcast) Attach(ref spill.Ref) { b.refs.add(ref) }

func (b *Broadcast) Detach(ref spill.Ref) { b.refs.remove(ref) }

// Refs returns the back-references to envelopes that are still alive.
func (b *Broadcast) Refs() []spill.Ref { return b.refs.alive() }

// Destroy returns the broadcast size to the account and drops all
// back-references. It is idempotent.
func (b *Broadcast) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.acct.AddBroadcastSize(-b.size)
	b.refs.clear()
}
