package leasepool

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Lease.Enter after the pool has been closed.
	ErrClosed = errors.New("leasepool: pool is closed")

	// ErrLeaseSpent is returned when a lease is entered a second time.
	// A lease scopes exactly one access; acquire a new one instead.
	ErrLeaseSpent = errors.New("leasepool: lease already entered")
)

// ConflictError reports an attempt to bind a loader function a second time
// with a configuration whose fingerprint differs from the first binding.
// It carries both fingerprints for diagnostics. The original binding stays
// intact and usable.
type ConflictError struct {
	Func string // the loader's registered name
	Prev string // fingerprint of the existing binding
	Curr string // fingerprint of the rejected binding
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("leasepool: %s already bound with different configuration: Bind(%s, %s) != Bind(%s, %s)",
		e.Func, e.Func, e.Prev, e.Func, e.Curr)
}
