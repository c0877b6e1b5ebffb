package leasepool

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type conn struct {
	addr  string
	parts []int
}

var (
	errBadConn = errors.New("bad connection")
	errTimeout = errors.New("timeout")
)

func dial(_ context.Context, call Call) (*conn, error) {
	x, _ := call.Arg(0).(int)
	return &conn{addr: fmt.Sprintf("node-%d", x), parts: []int{x, 0, 1, 2}}, nil
}

func newTestPool(t *testing.T, optsOpt func(*Options[*conn, *conn])) *Pool[*conn, *conn] {
	t.Helper()
	opts := Options[*conn, *conn]{
		Loader:  dial,
		Project: Identity[*conn],
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	p, err := New[*conn, *conn](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func enter(t *testing.T, p *Pool[*conn, *conn], call Call) (*Lease[*conn, *conn], *conn) {
	t.Helper()
	l := p.Acquire(call)
	v, err := l.Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	return l, v
}

// ==============================
// Lease lifecycle
// ==============================

// TestRepeatAcquireBindsSameValue verifies that sequential leases on equal
// arguments observe the identical underlying object.
func TestRepeatAcquireBindsSameValue(t *testing.T) {
	p := newTestPool(t, nil)
	defer p.Close()

	l1, v1 := enter(t, p, Args(5))
	if err := l1.Exit(nil); err != nil {
		t.Fatalf("Exit: %v", err)
	}

	l2, v2 := enter(t, p, Args(5))
	if v1 != v2 {
		t.Fatalf("expected identical cached object, got %p vs %p", v1, v2)
	}
	if err := l2.Exit(nil); err != nil {
		t.Fatalf("Exit: %v", err)
	}

	if p.Len() != 1 {
		t.Fatalf("pool should hold one entry, has %d", p.Len())
	}
}

// TestNestedLeasesShareValue verifies no re-entrant reload on the same key.
func TestNestedLeasesShareValue(t *testing.T) {
	p := newTestPool(t, nil)
	defer p.Close()

	outer, v1 := enter(t, p, Args(7))
	inner, v2 := enter(t, p, Args(7))
	if v1 != v2 {
		t.Fatalf("nested lease observed a different value")
	}
	if err := inner.Exit(nil); err != nil {
		t.Fatal(err)
	}
	if err := outer.Exit(nil); err != nil {
		t.Fatal(err)
	}
}

// TestLazyAcquire ensures Acquire does no key derivation or loading.
func TestLazyAcquire(t *testing.T) {
	loads := 0
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.Loader = func(ctx context.Context, call Call) (*conn, error) {
			loads++
			return dial(ctx, call)
		}
	})
	defer p.Close()

	_ = p.Acquire(Args(1))
	if loads != 0 {
		t.Fatalf("Acquire must not load; loads=%d", loads)
	}
	// even an unsortable argument is fine until Enter
	_ = p.Acquire(Args(func() {}))
}

// TestProjectionRunsOnEveryAccess ensures the raw value is cached and the
// projection applies per access, hit or miss.
func TestProjectionRunsOnEveryAccess(t *testing.T) {
	projections := 0
	opts := Options[*conn, []int]{
		Loader: dial,
		Project: func(c *conn) []int {
			projections++
			return c.parts
		},
	}
	p, err := New[*conn, []int](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l := p.Acquire(Args(9))
		parts, err := l.Enter(ctx)
		if err != nil {
			t.Fatalf("Enter: %v", err)
		}
		if len(parts) != 4 || parts[0] != 9 {
			t.Fatalf("unexpected projected value %v", parts)
		}
		if err := l.Exit(nil); err != nil {
			t.Fatal(err)
		}
	}
	if projections != 3 {
		t.Fatalf("projection should run per access: got %d want 3", projections)
	}
}

// TestKeyOrderIndependence checks named-argument and positional-argument
// order do not change the derived key.
func TestKeyOrderIndependence(t *testing.T) {
	p := newTestPool(t, nil)
	defer p.Close()

	l1, v1 := enter(t, p, Args(1).Named("mode", "fast").Named("tls", true))
	_ = l1.Exit(nil)
	l2, v2 := enter(t, p, Args(1).Named("tls", true).Named("mode", "fast"))
	_ = l2.Exit(nil)
	if v1 != v2 {
		t.Fatalf("keyword order changed the key")
	}

	l3, v3 := enter(t, p, Args(1, 2))
	_ = l3.Exit(nil)
	l4, v4 := enter(t, p, Args(2, 1))
	_ = l4.Exit(nil)
	if v3 != v4 {
		t.Fatalf("positional order changed the key")
	}
}

// TestKeySeparatesCallShapes: two positionals and one named argument with
// the same bytes are different calls and must not share an entry.
func TestKeySeparatesCallShapes(t *testing.T) {
	loads := 0
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.Loader = func(ctx context.Context, call Call) (*conn, error) {
			loads++
			return dial(ctx, call)
		}
	})
	defer p.Close()

	l1, v1 := enter(t, p, Args("a", "b"))
	_ = l1.Exit(nil)
	l2, v2 := enter(t, p, Args().Named("a", "b"))
	_ = l2.Exit(nil)

	if v1 == v2 {
		t.Fatalf("positional pair shared an entry with a named argument")
	}
	if loads != 2 {
		t.Fatalf("loads: got %d want 2", loads)
	}
	if p.Len() != 2 {
		t.Fatalf("entries: got %d want 2", p.Len())
	}
}

// ==============================
// Invalidation
// ==============================

// TestFilteredExitInvalidates verifies discard + deleter on a registered
// error category, including wrapped (derived) errors.
func TestFilteredExitInvalidates(t *testing.T) {
	var deleted []*conn
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.InvalidateOn = []error{errBadConn, errTimeout}
		o.Deleter = func(c *conn) error {
			deleted = append(deleted, c)
			return nil
		}
	})
	defer p.Close()

	for _, exitErr := range []error{
		errBadConn,
		errTimeout,
		fmt.Errorf("read loop: %w", errBadConn), // wrapped still matches
	} {
		l, v := enter(t, p, Args(5))
		if got := l.Exit(exitErr); !errors.Is(got, exitErr) {
			t.Fatalf("Exit must propagate the original error, got %v", got)
		}
		if n := len(deleted); n == 0 || deleted[n-1] != v {
			t.Fatalf("deleter did not receive the discarded value")
		}

		l2, v2 := enter(t, p, Args(5))
		if v2 == v {
			t.Fatalf("invalidated value was served again")
		}
		if err := l2.Exit(nil); err != nil {
			t.Fatal(err)
		}
	}

	if len(deleted) != 3 {
		t.Fatalf("deleter calls: got %d want 3", len(deleted))
	}
}

// TestUnfilteredExitRetains verifies other errors leave the entry alone.
func TestUnfilteredExitRetains(t *testing.T) {
	deletes := 0
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.InvalidateOn = []error{errBadConn}
		o.Deleter = func(*conn) error { deletes++; return nil }
	})
	defer func() { _ = p.Close() }()

	l, v := enter(t, p, Args(5))
	other := errors.New("unrelated failure")
	if got := l.Exit(other); !errors.Is(got, other) {
		t.Fatalf("Exit changed the error: %v", got)
	}
	if deletes != 0 {
		t.Fatalf("deleter ran on an unfiltered error")
	}

	l2, v2 := enter(t, p, Args(5))
	if v2 != v {
		t.Fatalf("entry was not retained across an unfiltered error")
	}
	_ = l2.Exit(nil)
}

// TestMatchInvalidPredicate covers the predicate form of category matching.
func TestMatchInvalidPredicate(t *testing.T) {
	deletes := 0
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.MatchInvalid = func(err error) bool {
			var tmp interface{ Temporary() bool }
			return errors.As(err, &tmp)
		}
		o.Deleter = func(*conn) error { deletes++; return nil }
	})
	defer p.Close()

	l, _ := enter(t, p, Args(1))
	_ = l.Exit(tempError{})
	if deletes != 1 {
		t.Fatalf("predicate match should invalidate; deletes=%d", deletes)
	}
}

type tempError struct{}

func (tempError) Error() string   { return "temporary outage" }
func (tempError) Temporary() bool { return true }

// TestGuardSkipsStaleLease: a lease whose entry was flushed mid-scope must
// not delete again on a filtered exit.
func TestGuardSkipsStaleLease(t *testing.T) {
	deletes := 0
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.InvalidateOn = []error{errBadConn}
		o.Deleter = func(*conn) error { deletes++; return nil }
	})
	defer p.Close()

	l, _ := enter(t, p, Args(5))
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if deletes != 1 {
		t.Fatalf("flush deleter calls: got %d want 1", deletes)
	}

	if got := l.Exit(errBadConn); !errors.Is(got, errBadConn) {
		t.Fatalf("Exit: %v", got)
	}
	if deletes != 1 {
		t.Fatalf("stale lease deleted again: %d", deletes)
	}
}

// TestExitJoinsDeleterError: the deleter's error never replaces the
// original; both are observable.
func TestExitJoinsDeleterError(t *testing.T) {
	delErr := errors.New("close failed")
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.InvalidateOn = []error{errBadConn}
		o.Deleter = func(*conn) error { return delErr }
	})
	defer p.Close()

	l, _ := enter(t, p, Args(5))
	got := l.Exit(errBadConn)
	if !errors.Is(got, errBadConn) {
		t.Fatalf("original error lost: %v", got)
	}
	if !errors.Is(got, delErr) {
		t.Fatalf("deleter error swallowed: %v", got)
	}
}

// ==============================
// Loader and argument errors
// ==============================

// TestLoaderErrorLeavesKeyUnpopulated: a failed load is retried by the next
// acquisition.
func TestLoaderErrorLeavesKeyUnpopulated(t *testing.T) {
	loads := 0
	boom := errors.New("dial refused")
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.Loader = func(ctx context.Context, call Call) (*conn, error) {
			loads++
			if loads == 1 {
				return nil, boom
			}
			return dial(ctx, call)
		}
	})
	defer p.Close()

	l := p.Acquire(Args(3))
	if _, err := l.Enter(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("loader error not surfaced: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("failed load populated the pool")
	}

	l2, _ := enter(t, p, Args(3))
	_ = l2.Exit(nil)
	if loads != 2 {
		t.Fatalf("loads: got %d want 2", loads)
	}
}

// TestUnsortableArgumentSurfacesDirectly: unsupported argument types fail
// key derivation with the encoder's own error.
func TestUnsortableArgumentSurfacesDirectly(t *testing.T) {
	p := newTestPool(t, nil)
	defer p.Close()

	l := p.Acquire(Args(func() {}))
	if _, err := l.Enter(context.Background()); err == nil {
		t.Fatalf("expected a caller argument error")
	}
	if p.Len() != 0 {
		t.Fatalf("bad call populated the pool")
	}
}

// ==============================
// Flush / Close / misuse
// ==============================

func TestFlushDeletesEachValueOnce(t *testing.T) {
	var deleted []*conn
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.Deleter = func(c *conn) error {
			deleted = append(deleted, c)
			return nil
		}
	})
	defer p.Close()

	values := make(map[*conn]bool)
	for x := 0; x < 4; x++ {
		l, v := enter(t, p, Args(x))
		values[v] = true
		_ = l.Exit(nil)
	}

	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(deleted) != 4 || p.Len() != 0 {
		t.Fatalf("flush: deleted=%d len=%d", len(deleted), p.Len())
	}
	for _, c := range deleted {
		if !values[c] {
			t.Fatalf("deleter saw an unknown value %v", c)
		}
		delete(values, c) // each exactly once
	}

	// empty flush is a no-op
	if err := p.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if len(deleted) != 4 {
		t.Fatalf("second flush ran deleters")
	}
}

func TestFlushJoinsDeleterErrorsAndStillEmpties(t *testing.T) {
	delErr := errors.New("teardown failed")
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.Deleter = func(*conn) error { return delErr }
	})
	defer p.Close()

	for x := 0; x < 2; x++ {
		l, _ := enter(t, p, Args(x))
		_ = l.Exit(nil)
	}
	if err := p.Flush(); !errors.Is(err, delErr) {
		t.Fatalf("Flush error: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("flush with failing deleters left entries behind")
	}
}

func TestCloseFlushesOnceAndBlocksEnter(t *testing.T) {
	deletes := 0
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.Deleter = func(*conn) error { deletes++; return nil }
	})

	l, _ := enter(t, p, Args(1))
	_ = l.Exit(nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if deletes != 1 {
		t.Fatalf("close flushed more than once: %d", deletes)
	}

	if _, err := p.Acquire(Args(1)).Enter(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enter after Close: %v", err)
	}
}

// TestCloseDuringLoadDiscardsResult: a load still in flight when Close
// flushes must not leave an unreachable value behind; the straggler is torn
// down and the enter fails closed.
func TestCloseDuringLoadDiscardsResult(t *testing.T) {
	deletes := 0
	var p *Pool[*conn, *conn]
	p = newTestPool(t, func(o *Options[*conn, *conn]) {
		o.Deleter = func(*conn) error { deletes++; return nil }
		o.Loader = func(_ context.Context, _ Call) (*conn, error) {
			_ = p.Close()
			return &conn{addr: "late"}, nil
		}
	})

	l := p.Acquire(Args(1))
	if _, err := l.Enter(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enter: %v", err)
	}
	if deletes != 1 {
		t.Fatalf("late value not torn down: deletes=%d", deletes)
	}
	if p.Len() != 0 {
		t.Fatalf("late value stored after close")
	}
}

func TestLeaseReuseFails(t *testing.T) {
	p := newTestPool(t, nil)
	defer p.Close()

	l, _ := enter(t, p, Args(1))
	if _, err := l.Enter(context.Background()); !errors.Is(err, ErrLeaseSpent) {
		t.Fatalf("second Enter: %v", err)
	}
	_ = l.Exit(nil)

	// Exit after exit, and Exit without Enter, pass the error through.
	some := errors.New("x")
	if got := l.Exit(some); got != some {
		t.Fatalf("re-Exit altered the error: %v", got)
	}
	if got := p.Acquire(Args(2)).Exit(some); got != some {
		t.Fatalf("Exit without Enter altered the error: %v", got)
	}
}

// ==============================
// With
// ==============================

func TestWithScopesLease(t *testing.T) {
	deletes := 0
	p := newTestPool(t, func(o *Options[*conn, *conn]) {
		o.InvalidateOn = []error{errBadConn}
		o.Deleter = func(*conn) error { deletes++; return nil }
	})
	defer p.Close()

	var first *conn
	err := p.With(context.Background(), Args(5), func(c *conn) error {
		first = c
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}

	// filtered error from the scope invalidates
	err = p.With(context.Background(), Args(5), func(c *conn) error {
		if c != first {
			t.Fatalf("second With observed a different value")
		}
		return errBadConn
	})
	if !errors.Is(err, errBadConn) {
		t.Fatalf("With swallowed the scope error: %v", err)
	}
	if deletes != 1 {
		t.Fatalf("deletes: got %d want 1", deletes)
	}

	err = p.With(context.Background(), Args(5), func(c *conn) error {
		if c == first {
			t.Fatalf("invalidated value served again")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
}
