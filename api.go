package leasepool

import (
	"context"
	"fmt"
)

// Loader produces a cacheable value from a call's arguments. It is invoked
// at most once per distinct key until that key is invalidated.
type Loader[V any] func(ctx context.Context, call Call) (V, error)

// Identity is the identity projection: the cached value is handed to lease
// holders unchanged.
func Identity[V any](v V) V { return v }

// Options configure a Pool.
// Loader and Project are required; others have sensible defaults.
type Options[V, E any] struct {
	// Required
	Loader  Loader[V]
	Project func(V) E // view handed to callers; runs on every access, hit or miss. Use Identity.

	Deleter      func(V) error     // runs once per discarded value (invalidation or flush)
	InvalidateOn []error           // categories matched with errors.Is on lease exit
	MatchInvalid func(error) bool  // optional extra predicate over the exiting error
	Logger       Logger            // if nil, NopLogger is used
	Hooks        Hooks             // if nil, NopHooks is used
}

// New builds a Pool. The raw loader output is what is cached; the projection
// is applied each time a lease enters, so structurally derived views stay
// consistent with the single underlying value.
func New[V, E any](opts Options[V, E]) (*Pool[V, E], error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("leasepool: loader is required")
	}
	if opts.Project == nil {
		return nil, fmt.Errorf("leasepool: projection is required (use Identity)")
	}

	p := &Pool[V, E]{
		loader:  opts.Loader,
		project: opts.Project,
		deleter: opts.Deleter,
		targets: opts.InvalidateOn,
		match:   opts.MatchInvalid,
		entries: make(map[string]*entry[V]),
	}
	p.log = coalesce[Logger](opts.Logger, NopLogger{})
	p.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return p, nil
}
