package leasepool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/poolable/leasepool/internal/argkey"
)

type entry[V any] struct {
	value V
}

// Pool memoizes loader results by canonical argument key and hands out
// scoped leases. The key map is mutex-guarded and invalidation uses
// compare-and-delete on entry identity, so a Pool is safe for concurrent
// use; concurrent misses on the same key are not de-duplicated (both load,
// last store wins).
type Pool[V, E any] struct {
	loader  Loader[V]
	project func(V) E
	deleter func(V) error
	targets []error
	match   func(error) bool
	log     Logger
	hooks   Hooks

	mu      sync.Mutex
	entries map[string]*entry[V]

	active    atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// Acquire returns a lease for the given call. No work happens here: key
// derivation and loading are deferred to Lease.Enter.
func (p *Pool[V, E]) Acquire(call Call) *Lease[V, E] {
	return &Lease[V, E]{pool: p, call: call}
}

// With runs fn inside a lease scope: Enter, fn, Exit with fn's error.
// A panic in fn releases the lease without invalidating the entry and
// continues unwinding.
func (p *Pool[V, E]) With(ctx context.Context, call Call, fn func(E) error) error {
	l := p.Acquire(call)
	v, err := l.Enter(ctx)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			_ = l.Exit(nil)
		}
	}()
	err = fn(v)
	done = true
	return l.Exit(err)
}

// Flush discards every cached entry: all keys are removed first, then the
// deleter runs exactly once per removed value. Deleter errors are joined
// and returned; no value is skipped. Flushing an empty pool is a no-op.
func (p *Pool[V, E]) Flush() error {
	p.mu.Lock()
	drained := p.entries
	p.entries = make(map[string]*entry[V])
	p.mu.Unlock()

	if len(drained) == 0 {
		return nil
	}

	var errs []error
	if p.deleter != nil {
		for k, ent := range drained {
			if err := p.deleter(ent.value); err != nil {
				p.hooks.DeleterError(argkey.Digest(k), err)
				errs = append(errs, err)
			}
		}
	}

	p.hooks.Flushed(len(drained))
	p.log.Debug("pool flushed", Fields{"entries": len(drained)})
	return errors.Join(errs...)
}

// Close tears the pool down: Flush runs exactly once, after which Enter
// fails with ErrClosed. Closing with outstanding leases is logged; those
// leases keep their values but can no longer invalidate anything.
func (p *Pool[V, E]) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if n := p.active.Load(); n > 0 {
			p.log.Warn("pool closed with outstanding leases", Fields{"active": n})
		}
		err = p.Flush()
	})
	return err
}

// Len reports the number of currently cached entries.
func (p *Pool[V, E]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// invalid reports whether err belongs to a registered invalidation
// category. errors.Is walks wrap chains, so wrapped errors match their
// registered base category.
func (p *Pool[V, E]) invalid(err error) bool {
	if err == nil {
		return false
	}
	if p.match != nil && p.match(err) {
		return true
	}
	for _, target := range p.targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
