// Package sloghooks emits leasepool hook events through log/slog, with
// sampling for the chatty events and redaction for storage keys.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/poolable/leasepool"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery      uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ leasepool.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("leasepool.hit", "key", h.redact(key))
}

func (h *Hooks) Loaded(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("leasepool.loaded", "key", h.redact(key))
}

func (h *Hooks) Invalidated(key string) {
	if h.l == nil {
		return
	}
	h.l.Info("leasepool.invalidated", "key", h.redact(key))
}

func (h *Hooks) GuardSkipped(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("leasepool.guard_skipped", "key", h.redact(key))
}

func (h *Hooks) Flushed(entries int) {
	if h.l == nil {
		return
	}
	h.l.Info("leasepool.flushed", "entries", entries)
}

func (h *Hooks) DeleterError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("leasepool.deleter_error",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) BindConflict(fn string) {
	if h.l == nil {
		return
	}
	h.l.Warn("leasepool.bind_conflict", "func", fn)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("leasepool.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StoreSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("leasepool.store_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("leasepool.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}
