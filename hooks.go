package leasepool

// Hooks are lightweight callbacks for high-signal pool events.
// Implementations MUST be cheap and non-blocking; pools call them on hot
// paths. Keys are passed in short digest form, never as raw argument bytes.
type Hooks interface {
	// A lease bound to an existing entry.
	Hit(key string)

	// The loader ran on a miss and the result was cached.
	Loaded(key string)

	// An entry was discarded after a lease exited with a matched error.
	Invalidated(key string)

	// A lease exited with a matched error but the entry no longer belonged
	// to it (flushed or replaced meanwhile); nothing was discarded.
	GuardSkipped(key string)

	// The pool was flushed; entries is the number of discarded values.
	Flushed(entries int)

	// A deleter returned an error for the given entry.
	DeleterError(key string, err error)

	// A rebind was attempted with a differing configuration fingerprint.
	BindConflict(fn string)

	// The byte tier dropped a stored entry on read.
	// reason is one of "corrupt", "gen_mismatch", "decode".
	SelfHeal(storageKey, reason string)

	// The byte store rejected a write under pressure (ok=false on Set).
	StoreSetRejected(storageKey string)

	// The generation store failed to bump during invalidation.
	GenBumpError(storageKey string, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) Hit(string)                 {}
func (NopHooks) Loaded(string)              {}
func (NopHooks) Invalidated(string)         {}
func (NopHooks) GuardSkipped(string)        {}
func (NopHooks) Flushed(int)                {}
func (NopHooks) DeleterError(string, error) {}
func (NopHooks) BindConflict(string)        {}
func (NopHooks) SelfHeal(string, string)    {}
func (NopHooks) StoreSetRejected(string)    {}
func (NopHooks) GenBumpError(string, error) {}
