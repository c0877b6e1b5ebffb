package leasepool

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/poolable/leasepool/internal/argkey"
)

// Accessor is a bound loader: calling it returns a lease over the backing
// pool rather than invoking the loader directly.
type Accessor[V, E any] func(call Call) *Lease[V, E]

// BindConfig is the fingerprinted part of a binding. Logger and Hooks are
// ambient wiring and do not participate in conflict detection.
type BindConfig[V, E any] struct {
	Project      func(V) E // required; use Identity
	Deleter      func(V) error
	InvalidateOn []error
	MatchInvalid func(error) bool
	Logger       Logger
	Hooks        Hooks
}

type binding struct {
	name        string
	fingerprint string
	accessor    any
	doc         string
}

// Registry tracks which loader functions have been bound and with what
// configuration fingerprint. Entries are added on first binding and never
// removed; there is no unbind. Construct one per process, or one per test
// for isolation, and inject it rather than relying on ambient state.
//
// Function identity is the loader's code pointer. Distinct closures built
// from the same function literal share a code pointer and would collide;
// bind top-level loader functions.
type Registry struct {
	mu        sync.Mutex
	bound     map[uintptr]*binding
	overrides map[string]*binding
}

func NewRegistry() *Registry {
	return &Registry{
		bound:     make(map[uintptr]*binding),
		overrides: make(map[string]*binding),
	}
}

// Bind upgrades a loader into a pooled accessor exactly once. Rebinding the
// same loader with an equal configuration fingerprint returns the existing
// accessor unchanged; a differing fingerprint fails with *ConflictError and
// performs no second binding.
func Bind[V, E any](r *Registry, loader Loader[V], cfg BindConfig[V, E]) (Accessor[V, E], error) {
	if r == nil {
		return nil, errors.New("leasepool: nil registry")
	}
	if loader == nil {
		return nil, errors.New("leasepool: loader is required")
	}

	id := reflect.ValueOf(loader).Pointer()
	name := funcName(id)
	fp := fingerprint(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bound[id]; ok {
		if b.fingerprint != fp {
			hooks := coalesce[Hooks](cfg.Hooks, NopHooks{})
			hooks.BindConflict(b.name)
			return nil, &ConflictError{Func: b.name, Prev: b.fingerprint, Curr: fp}
		}
		acc, ok := b.accessor.(Accessor[V, E])
		if !ok {
			return nil, fmt.Errorf("leasepool: %s already bound with different accessor type", b.name)
		}
		return acc, nil
	}

	pool, err := New[V, E](Options[V, E]{
		Loader:       loader,
		Project:      cfg.Project,
		Deleter:      cfg.Deleter,
		InvalidateOn: cfg.InvalidateOn,
		MatchInvalid: cfg.MatchInvalid,
		Logger:       cfg.Logger,
		Hooks:        cfg.Hooks,
	})
	if err != nil {
		return nil, err
	}

	acc := Accessor[V, E](func(call Call) *Lease[V, E] { return pool.Acquire(call) })
	r.bound[id] = &binding{
		name:        name,
		fingerprint: fp,
		accessor:    acc,
		doc:         bindDoc(name),
	}
	return acc, nil
}

// ForceBind binds like Bind, then installs the accessor in the registry's
// override table under the loader's name so that future lookups resolve to
// the pooled version. References captured before the call are unaffected.
// Re-invoking with the identical configuration is a no-op replacement;
// a differing configuration fails with the same *ConflictError.
func ForceBind[V, E any](r *Registry, loader Loader[V], cfg BindConfig[V, E]) (Accessor[V, E], error) {
	acc, err := Bind(r, loader, cfg)
	if err != nil {
		return nil, err
	}
	id := reflect.ValueOf(loader).Pointer()
	r.mu.Lock()
	r.overrides[r.bound[id].name] = r.bound[id]
	r.mu.Unlock()
	return acc, nil
}

// Lookup consults the override table. The result is the untyped accessor;
// use LookupAccessor for the typed form.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.overrides[name]
	if !ok {
		return nil, false
	}
	return b.accessor, true
}

// LookupAccessor is the typed Lookup; ok is false when the name is not
// overridden or was bound with different type parameters.
func LookupAccessor[V, E any](r *Registry, name string) (Accessor[V, E], bool) {
	v, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	acc, ok := v.(Accessor[V, E])
	return acc, ok
}

// Describe returns the generated pooling description for a bound loader
// name. Informational only.
func (r *Registry) Describe(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.overrides[name]; ok {
		return b.doc, true
	}
	for _, b := range r.bound {
		if b.name == name {
			return b.doc, true
		}
	}
	return "", false
}

func fingerprint[V, E any](cfg BindConfig[V, E]) string {
	return argkey.Fingerprint([]argkey.Named{
		{Name: "project", Value: cfg.Project},
		{Name: "deleter", Value: cfg.Deleter},
		{Name: "invalidate_on", Value: cfg.InvalidateOn},
		{Name: "match", Value: cfg.MatchInvalid},
	})
}

func funcName(pc uintptr) string {
	if f := runtime.FuncForPC(pc); f != nil {
		return f.Name()
	}
	return "func"
}

func bindDoc(name string) string {
	return fmt.Sprintf(
		"%s returns a lease for a pooled resource loaded from %s.\n\n"+
			"Enter the lease to receive the value and exit it with the error (if any)\n"+
			"leaving the scope. Errors matching the pool's invalidation categories\n"+
			"discard the cached entry and run its deleter.",
		name, name)
}
