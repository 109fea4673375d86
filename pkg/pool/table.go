package pool

import (
	"context"
	"fmt"
	"sync"
)

// Table is the client-owned mapping from host name to Endpoint. Per
// spec.md's Design Notes, the ref-count lives under this mutex rather than
// as an atomic, because decrement-to-zero must atomically remove the entry
// from the map; an atomic counter would still need a second lock for that.
type Table struct {
	mu   sync.Mutex
	cfg  Config
	eps  map[string]*Endpoint
}

// NewTable creates an empty endpoint table.
func NewTable(cfg Config) *Table {
	return &Table{
		cfg: cfg,
		eps: make(map[string]*Endpoint),
	}
}

// Acquire returns the Endpoint for host, creating and inserting it into the
// table if this is the first reference. alreadyHoldingLock lets a caller
// that already holds the Table's lock avoid a recursive lock; pass false
// from anywhere else (the scheduler and s3engine both do).
func (t *Table) Acquire(ctx context.Context, host string, alreadyHoldingLock bool) (*Endpoint, error) {
	if !alreadyHoldingLock {
		t.mu.Lock()
		defer t.mu.Unlock()
	}

	if ep, ok := t.eps[host]; ok {
		ep.refs++
		return ep, nil
	}

	ep, err := newEndpoint(ctx, host, t.cfg)
	if err != nil {
		return nil, fmt.Errorf("pool: acquire %s: %w", host, err)
	}
	ep.refs = 1
	t.eps[host] = ep
	return ep, nil
}

// Release decrements ep's ref-count and removes it from the table if it
// reaches zero. Per the Design Notes this must NEVER be called while the
// Table's lock is already held by the caller; it takes the lock itself.
func (t *Table) Release(ep *Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ep.refs--
	if ep.refs > 0 {
		return
	}
	if cur, ok := t.eps[ep.host]; ok && cur == ep {
		delete(t.eps, ep.host)
	}
}

// Len reports the number of live endpoints. Used by housekeeping and the
// status surface; not part of the hot path.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.eps)
}

// Snapshot returns a stats snapshot for every live endpoint.
func (t *Table) Snapshot() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Stats, 0, len(t.eps))
	for _, ep := range t.eps {
		out = append(out, ep.Stats())
	}
	return out
}
