// Package leasepool implements a leased resource cache: a loader function's
// results are memoized under a canonical key derived from the call's
// arguments, and callers access them through scoped leases. When a lease
// scope ends with an error matching one of the pool's registered
// invalidation categories, the entry is discarded and a deleter callback
// runs on it instead of being retained for reuse.
//
// Components:
//   - Pool[V, E]: key -> value map plus the lease protocol. V is the loader's
//     output (what is cached), E is the projected view handed to callers.
//   - Lease[V, E]: scopes one access; Enter loads or binds, Exit retains or
//     invalidates depending on the propagating error.
//   - Registry: check-and-bind of loader functions into pooled accessors,
//     with conflict detection on re-binding and a name override table.
//
// Keys are order-independent: positional arguments sort among themselves and
// named arguments sort by name, each canonicalized with deterministic CBOR.
//
// Lease pattern:
//
//	l := pool.Acquire(leasepool.Args(host, port))
//	conn, err := l.Enter(ctx)
//	if err != nil { ... }
//	err = use(conn)
//	return l.Exit(err) // a matched err discards the entry and runs the deleter
//
// Values that are plain data rather than live handles can instead be kept
// serialized in a byte store; see the bytepool subpackage.
package leasepool
