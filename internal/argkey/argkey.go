// Package argkey derives canonical, order-independent identities from call
// arguments. The same normalization serves two purposes: cache keys for pool
// entries, and configuration fingerprints for binding conflict detection.
package argkey

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Named is a keyword argument: a name paired with its value.
type Named struct {
	Name  string
	Value any
}

var (
	encOnce sync.Once
	enc     cbor.EncMode
	encErr  error
)

// encMode builds the deterministic encoder once. Core deterministic mode
// (RFC 8949) guarantees byte-stable output for equal values, which is what
// makes the bytewise sort of positional arguments a total order.
func encMode() (cbor.EncMode, error) {
	encOnce.Do(func() {
		eo := cbor.CoreDetEncOptions()
		eo.Time = cbor.TimeRFC3339Nano
		enc, encErr = eo.EncMode()
	})
	return enc, encErr
}

// Key derives the canonical cache key for a call: the positional count,
// then the positional argument encodings sorted bytewise among themselves,
// then the named arguments sorted by name. Each element is length-prefixed
// so distinct argument lists can never collide by concatenation, and the
// leading count keeps a positional pair from reading as a (name, value)
// pair.
//
// Arguments must be CBOR-encodable; encoding errors (funcs, channels, ...)
// are caller errors and surface unwrapped.
func Key(pos []any, named []Named) (string, error) {
	em, err := encMode()
	if err != nil {
		return "", err
	}

	encs := make([][]byte, 0, len(pos))
	for _, v := range pos {
		b, err := em.Marshal(v)
		if err != nil {
			return "", err
		}
		encs = append(encs, b)
	}
	sort.Slice(encs, func(i, j int) bool { return bytes.Compare(encs[i], encs[j]) < 0 })

	ns := make([]Named, len(named))
	copy(ns, named)
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].Name < ns[j].Name })

	var buf bytes.Buffer
	var cnt [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(cnt[:], uint64(len(encs)))
	buf.Write(cnt[:n])

	appendElem := func(b []byte) {
		var l [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(l[:], uint64(len(b)))
		buf.Write(l[:n])
		buf.Write(b)
	}
	for _, b := range encs {
		appendElem(b)
	}
	for _, na := range ns {
		nb, err := em.Marshal(na.Name)
		if err != nil {
			return "", err
		}
		vb, err := em.Marshal(na.Value)
		if err != nil {
			return "", err
		}
		appendElem(nb)
		appendElem(vb)
	}
	return buf.String(), nil
}

// Digest returns a short hex digest of a canonical key, used for storage
// keys and log/hook redaction (canonical keys carry raw argument bytes).
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// Fingerprint renders a canonical description of a binding configuration.
// Fields sort by name. Slice and array values are flattened exactly one
// level: elements are rendered individually and sorted, so a category list
// is compared by contents rather than by order or identity. Nested slices
// are rendered structurally without further normalization.
func Fingerprint(fields []Named) string {
	fs := make([]Named, len(fields))
	copy(fs, fields)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Name < fs[j].Name })

	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, f.Name+"="+render(f.Value, true))
	}
	return strings.Join(parts, ", ")
}

func render(v any, flatten bool) string {
	if v == nil {
		return "nil"
	}
	if err, ok := v.(error); ok {
		// categories are matched by errors.Is, which for sentinels is
		// identity; the message alone would alias distinct sentinels
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			return fmt.Sprintf("%T(%#x):%s", v, rv.Pointer(), err.Error())
		}
		return fmt.Sprintf("%T:%s", v, err.Error())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return "nil"
		}
		if f := runtime.FuncForPC(rv.Pointer()); f != nil {
			return f.Name()
		}
		return "func"
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "[]"
		}
		if !flatten {
			return fmt.Sprintf("%v", v)
		}
		elems := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems = append(elems, render(rv.Index(i).Interface(), false))
		}
		sort.Strings(elems)
		return "[" + strings.Join(elems, " ") + "]"
	}
	return fmt.Sprintf("%v", v)
}
