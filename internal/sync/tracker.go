// Package sync provides the in-flight operation tracker for remote cart
// mutations.
//
// Every mutating call the cart engine schedules passes through a Tracker,
// which assigns it a sequence number from a single monotonic counter and
// guarantees at most one live operation per key. Submitting a new operation
// for a key cancels the prior one: its debounce timer if it has not fired,
// its network request if it is in flight. Network responses may arrive out
// of order; the sequence numbers let the reconciler discard stale ones.
package sync

import (
	"context"
	stdsync "sync"
	"time"
)

// Tracker is a registry of pending remote operations keyed by a stable
// operation key (bare product id for updates, a remove-prefixed key for
// removals).
type Tracker struct {
	mu  stdsync.Mutex
	seq int64
	ops map[string]*operation
}

// operation is one pending remote mutation.
type operation struct {
	seq    int64
	cancel context.CancelFunc
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ops: make(map[string]*operation)}
}

// Submit schedules work for key, superseding any prior operation on the
// same key. Returns the assigned sequence number.
//
// The work function runs on its own goroutine after the delay elapses; a
// zero delay dispatches immediately but still asynchronously, so callers
// never block on the network. The supplied context is canceled when a newer
// submission replaces this one, aborting the debounce wait or the in-flight
// request. A network abort may race an already-sent request; the sequence
// gate in the reconciler covers that case.
func (t *Tracker) Submit(key string, delay time.Duration, work func(ctx context.Context, seq int64)) int64 {
	t.mu.Lock()
	t.seq++
	seq := t.seq

	if prev, ok := t.ops[key]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.ops[key] = &operation{seq: seq, cancel: cancel}
	t.mu.Unlock()

	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		work(ctx, seq)
	}()

	return seq
}

// Settle removes the entry for key if it still belongs to seq and reports
// whether it did. A false return means a newer operation superseded this
// one and its result must be discarded without touching state.
func (t *Tracker) Settle(key string, seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[key]
	if !ok || op.seq != seq {
		return false
	}
	delete(t.ops, key)
	return true
}

// Cancel aborts and removes the pending operation for key, if any.
// Used by the remove-wins policy: scheduling a removal cancels any pending
// quantity update for the same product.
func (t *Tracker) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if op, ok := t.ops[key]; ok {
		op.cancel()
		delete(t.ops, key)
	}
}

// Reset aborts every pending operation and clears the registry. The
// sequence counter keeps climbing so late responses from before the reset
// can never pass the sequence gate.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, op := range t.ops {
		op.cancel()
		delete(t.ops, key)
	}
}

// Active reports whether key has a pending operation.
func (t *Tracker) Active(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ops[key]
	return ok
}

// Len returns the number of pending operations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}
