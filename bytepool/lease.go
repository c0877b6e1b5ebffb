package bytepool

import (
	"context"
	"errors"

	"github.com/poolable/leasepool"
	"github.com/poolable/leasepool/internal/wire"
)

// Lease scopes one access to a stored entry. It records the generation the
// entry was loaded under; Exit with a matched error invalidates only while
// that generation is still current.
type Lease[V any] struct {
	pool    *Pool[V]
	call    leasepool.Call
	key     string // storage key
	gen     uint64
	val     V
	entered bool
	exited  bool
}

// Enter starts the lease scope: a stored frame whose generation matches the
// gen store is decoded and returned; anything corrupt or stale is deleted
// (self-heal) and treated as a miss. On a miss the loader runs and the
// encoded result is stored best-effort - a store or codec failure degrades
// to caching nothing, never to failing the caller once the loader
// succeeded. Loader errors propagate unwrapped and nothing is stored.
func (l *Lease[V]) Enter(ctx context.Context) (V, error) {
	var zero V
	if l.entered {
		return zero, leasepool.ErrLeaseSpent
	}
	p := l.pool

	canonical, err := l.call.Key()
	if err != nil {
		return zero, err
	}
	k := p.storageKey(canonical)
	obs := p.snapshotGen(ctx, k)

	if raw, ok, gerr := p.st.Get(ctx, k); gerr != nil {
		p.log.Warn("store read failed; loading", leasepool.Fields{"key": k, "err": gerr})
	} else if ok {
		gen, payload, derr := wire.Decode(raw)
		switch {
		case derr != nil:
			_ = p.st.Del(ctx, k)
			p.hooks.SelfHeal(k, "corrupt")
		case gen != obs:
			_ = p.st.Del(ctx, k)
			p.hooks.SelfHeal(k, "gen_mismatch")
		default:
			v, cerr := p.cod.Decode(payload)
			if cerr != nil {
				_ = p.st.Del(ctx, k)
				p.hooks.SelfHeal(k, "decode")
				break
			}
			l.bind(k, obs, v)
			p.hooks.Hit(k)
			return v, nil
		}
	}

	v, lerr := p.loader(ctx, l.call)
	if lerr != nil {
		return zero, lerr
	}

	if payload, eerr := p.cod.Encode(v); eerr != nil {
		p.log.Warn("encode failed; serving uncached", leasepool.Fields{"key": k, "err": eerr})
	} else {
		frame := wire.Encode(obs, payload)
		ok, serr := p.st.Set(ctx, k, frame, int64(len(frame)), p.ttl)
		switch {
		case serr != nil:
			p.log.Warn("store write failed; serving uncached", leasepool.Fields{"key": k, "err": serr})
		case !ok:
			p.hooks.StoreSetRejected(k)
		default:
			p.trackKey(k)
		}
	}

	l.bind(k, obs, v)
	p.hooks.Loaded(k)
	return v, nil
}

// Exit ends the lease scope with the error (if any) propagating out of it.
// A matched error invalidates the entry provided its generation is
// unchanged since Enter: the generation is bumped and the frame deleted
// before the deleter runs on the lease's decoded value. Exit never swallows
// err; a deleter error is joined onto it.
func (l *Lease[V]) Exit(ctx context.Context, err error) error {
	if !l.entered || l.exited {
		return err
	}
	l.exited = true
	p := l.pool

	if !p.invalid(err) {
		return err
	}

	if p.snapshotGen(ctx, l.key) != l.gen {
		p.hooks.GuardSkipped(l.key)
		return err
	}

	if _, berr := p.gens.Bump(ctx, l.key); berr != nil {
		p.hooks.GenBumpError(l.key, berr)
	}
	_ = p.st.Del(ctx, l.key)
	p.untrackKey(l.key)
	p.hooks.Invalidated(l.key)
	p.log.Debug("invalidated stored entry after filtered exit", leasepool.Fields{"key": l.key})

	if p.deleter != nil {
		if derr := p.deleter(l.val); derr != nil {
			p.hooks.DeleterError(l.key, derr)
			return errors.Join(err, derr)
		}
	}
	return err
}

func (l *Lease[V]) bind(key string, gen uint64, v V) {
	l.key = key
	l.gen = gen
	l.val = v
	l.entered = true
}
