package leasepool

import (
	"context"
	"errors"

	"github.com/poolable/leasepool/internal/argkey"
)

// Lease scopes one access to a pool entry. Acquire stores only the call;
// Enter derives the key and binds the lease to a cached or freshly loaded
// value. A lease must stay strictly within the scope that entered it and
// must not be reused once exited.
type Lease[V, E any] struct {
	pool    *Pool[V, E]
	call    Call
	key     string
	id      string // digest of key, for logs and hooks
	ent     *entry[V]
	entered bool
	exited  bool
}

// Enter starts the lease scope. On a hit the lease binds to the existing
// entry; on a miss the loader runs with the lease's call and the raw result
// is cached (a loader error leaves the key unpopulated and propagates
// unwrapped). Either way the caller receives the projection applied to the
// stored value.
func (l *Lease[V, E]) Enter(ctx context.Context) (E, error) {
	var zero E
	if l.entered {
		return zero, ErrLeaseSpent
	}
	p := l.pool
	if p.closed.Load() {
		return zero, ErrClosed
	}

	key, err := l.call.Key()
	if err != nil {
		return zero, err
	}
	l.key = key
	l.id = argkey.Digest(key)

	p.mu.Lock()
	ent, ok := p.entries[key]
	p.mu.Unlock()

	if !ok {
		v, err := p.loader(ctx, l.call)
		if err != nil {
			return zero, err
		}
		ent = &entry[V]{value: v}
		p.mu.Lock()
		// Close may have flushed while the loader ran; storing now would
		// leave a value no flush will ever reach. Tear it down instead.
		if p.closed.Load() {
			p.mu.Unlock()
			if p.deleter != nil {
				if derr := p.deleter(v); derr != nil {
					p.hooks.DeleterError(l.id, derr)
				}
			}
			return zero, ErrClosed
		}
		p.entries[key] = ent
		p.mu.Unlock()
		p.hooks.Loaded(l.id)
		p.log.Debug("loaded entry", Fields{"key": l.id})
	} else {
		p.hooks.Hit(l.id)
	}

	l.ent = ent
	l.entered = true
	p.active.Add(1)
	return p.project(ent.value), nil
}

// Exit ends the lease scope with the error (if any) propagating out of it.
// A matched error discards the entry, provided the key still maps to the
// same value the lease acquired: the key is removed first, then the deleter
// runs. Exit never swallows err; a deleter error is joined onto it so the
// caller still observes the original through errors.Is. Exit on a lease
// that never entered is a no-op.
func (l *Lease[V, E]) Exit(err error) error {
	if !l.entered || l.exited {
		return err
	}
	l.exited = true
	p := l.pool
	p.active.Add(-1)

	if !p.invalid(err) {
		return err
	}

	p.mu.Lock()
	removed := false
	if cur, ok := p.entries[l.key]; ok && cur == l.ent {
		delete(p.entries, l.key)
		removed = true
	}
	p.mu.Unlock()

	if !removed {
		p.hooks.GuardSkipped(l.id)
		return err
	}

	p.hooks.Invalidated(l.id)
	p.log.Debug("invalidated entry after filtered exit", Fields{"key": l.id})

	if p.deleter != nil {
		if derr := p.deleter(l.ent.value); derr != nil {
			p.hooks.DeleterError(l.id, derr)
			return errors.Join(err, derr)
		}
	}
	return err
}
