// Package asynchook decouples hook delivery from pool hot paths: events are
// queued and replayed on worker goroutines, and dropped when the queue is
// full rather than blocking a lease.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	pool, _ := leasepool.New[Conn, Conn](leasepool.Options[Conn, Conn]{
//	    Loader:  dial,
//	    Project: leasepool.Identity[Conn],
//	    Hooks:   hooks, // or raw if synchronous delivery is fine
//	})
package asynchook

import (
	"sync"

	"github.com/poolable/leasepool"
)

type Hooks struct {
	inner leasepool.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ leasepool.Hooks = (*Hooks)(nil)

func New(inner leasepool.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) Hit(k string)          { h.try(func() { h.inner.Hit(k) }) }
func (h *Hooks) Loaded(k string)       { h.try(func() { h.inner.Loaded(k) }) }
func (h *Hooks) Invalidated(k string)  { h.try(func() { h.inner.Invalidated(k) }) }
func (h *Hooks) GuardSkipped(k string) { h.try(func() { h.inner.GuardSkipped(k) }) }
func (h *Hooks) Flushed(n int)         { h.try(func() { h.inner.Flushed(n) }) }
func (h *Hooks) BindConflict(fn string) {
	h.try(func() { h.inner.BindConflict(fn) })
}
func (h *Hooks) DeleterError(k string, err error) {
	h.try(func() { h.inner.DeleterError(k, err) })
}
func (h *Hooks) SelfHeal(k, reason string) {
	h.try(func() { h.inner.SelfHeal(k, reason) })
}
func (h *Hooks) StoreSetRejected(k string) {
	h.try(func() { h.inner.StoreSetRejected(k) })
}
func (h *Hooks) GenBumpError(k string, err error) {
	h.try(func() { h.inner.GenBumpError(k, err) })
}
