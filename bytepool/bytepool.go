// Package bytepool is the serialized tier of leasepool: for loaders whose
// values are plain data rather than live handles, entries are kept encoded
// in a pluggable byte store (in-memory, ristretto, bigcache, redis) behind
// a pluggable codec. The lease protocol is the same as the in-process pool;
// the identity guard, which cannot survive serialization, is replaced by a
// per-key generation counter: a lease invalidates its entry only while the
// generation it loaded under is still current.
package bytepool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/poolable/leasepool"
	"github.com/poolable/leasepool/codec"
	"github.com/poolable/leasepool/genstore"
	"github.com/poolable/leasepool/internal/argkey"
	"github.com/poolable/leasepool/store"
)

// Loader produces a cacheable value from a call's arguments.
type Loader[V any] func(ctx context.Context, call leasepool.Call) (V, error)

// Options configure a byte-backed pool.
// Namespace, Store, Codec and Loader are required.
type Options[V any] struct {
	// Required
	Namespace string // isolates this pool's keyspace, e.g. "session", "report"
	Store     store.Store
	Codec     codec.Codec[V]
	Loader    Loader[V]

	Deleter      func(V) error    // runs on invalidated values with the lease's decoded copy
	InvalidateOn []error          // categories matched with errors.Is on lease exit
	MatchInvalid func(error) bool // optional extra predicate
	TTL          time.Duration    // stored-entry TTL; 0 => no expiry
	Logger       leasepool.Logger // if nil, NopLogger is used
	Hooks        leasepool.Hooks  // if nil, NopHooks is used
	Gens         genstore.GenStore // nil => in-process generations
}

// Pool memoizes encoded loader results in a byte store and hands out scoped
// leases over the decoded values.
type Pool[V any] struct {
	ns      string
	st      store.Store
	cod     codec.Codec[V]
	loader  Loader[V]
	deleter func(V) error
	targets []error
	match   func(error) bool
	ttl     time.Duration
	log     leasepool.Logger
	hooks   leasepool.Hooks
	gens    genstore.GenStore

	// storage keys this pool has written; byte stores expose no scan, so
	// Flush works off this set
	keysMu sync.Mutex
	keys   map[string]struct{}

	closeOnce sync.Once
}

func New[V any](opts Options[V]) (*Pool[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("bytepool: namespace is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bytepool: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("bytepool: codec is required")
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("bytepool: loader is required")
	}

	p := &Pool[V]{
		ns:      opts.Namespace,
		st:      opts.Store,
		cod:     opts.Codec,
		loader:  opts.Loader,
		deleter: opts.Deleter,
		targets: opts.InvalidateOn,
		match:   opts.MatchInvalid,
		ttl:     opts.TTL,
		keys:    make(map[string]struct{}),
	}
	if opts.Logger != nil {
		p.log = opts.Logger
	} else {
		p.log = leasepool.NopLogger{}
	}
	if opts.Hooks != nil {
		p.hooks = opts.Hooks
	} else {
		p.hooks = leasepool.NopHooks{}
	}
	if opts.Gens != nil {
		p.gens = opts.Gens
	} else {
		p.gens = genstore.NewLocal(0, 0)
	}
	return p, nil
}

// Acquire returns a lease for the given call; key derivation, store reads
// and loading are deferred to Lease.Enter.
func (p *Pool[V]) Acquire(call leasepool.Call) *Lease[V] {
	return &Lease[V]{pool: p, call: call}
}

// With runs fn inside a lease scope: Enter, fn, Exit with fn's error.
func (p *Pool[V]) With(ctx context.Context, call leasepool.Call, fn func(V) error) error {
	l := p.Acquire(call)
	v, err := l.Enter(ctx)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			_ = l.Exit(ctx, nil)
		}
	}()
	err = fn(v)
	done = true
	return l.Exit(ctx, err)
}

// Flush retires every entry this pool has written: each key's generation is
// bumped and the stored frame deleted. Serialized values need no teardown,
// so the deleter does not run here. Errors are joined and returned.
func (p *Pool[V]) Flush(ctx context.Context) error {
	p.keysMu.Lock()
	drained := p.keys
	p.keys = make(map[string]struct{})
	p.keysMu.Unlock()

	if len(drained) == 0 {
		return nil
	}

	var errs []error
	for k := range drained {
		if _, err := p.gens.Bump(ctx, k); err != nil {
			p.hooks.GenBumpError(k, err)
			errs = append(errs, err)
		}
		if err := p.st.Del(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	p.hooks.Flushed(len(drained))
	p.log.Debug("byte pool flushed", leasepool.Fields{"entries": len(drained)})
	return errors.Join(errs...)
}

// Close flushes exactly once, then closes the generation store (best
// effort) and the byte store.
func (p *Pool[V]) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		err = p.Flush(ctx)
		_ = p.gens.Close(ctx)
		if cerr := p.st.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

func (p *Pool[V]) storageKey(canonical string) string {
	return "entry:" + p.ns + ":" + argkey.Digest(canonical)
}

func (p *Pool[V]) trackKey(k string) {
	p.keysMu.Lock()
	p.keys[k] = struct{}{}
	p.keysMu.Unlock()
}

func (p *Pool[V]) untrackKey(k string) {
	p.keysMu.Lock()
	delete(p.keys, k)
	p.keysMu.Unlock()
}

func (p *Pool[V]) snapshotGen(ctx context.Context, storageKey string) uint64 {
	g, err := p.gens.Snapshot(ctx, storageKey)
	if err != nil {
		// conservative: gen 0 makes stored frames read as stale and self-heal
		p.log.Warn("gen snapshot error", leasepool.Fields{"key": storageKey, "err": err})
		return 0
	}
	return g
}

func (p *Pool[V]) invalid(err error) bool {
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
