package leasepool

import (
	"github.com/poolable/leasepool/internal/argkey"
)

// NamedArg is a keyword argument on a Call.
type NamedArg struct {
	Name  string
	Value any
}

// Call holds the positional and named arguments of one loader invocation.
// The zero value is an empty call. Calls are value types; Named returns a
// new Call rather than mutating the receiver.
type Call struct {
	pos   []any
	named []NamedArg
}

// Args starts a Call from positional arguments.
func Args(pos ...any) Call {
	return Call{pos: pos}
}

// Named returns a copy of the call with an additional named argument.
// Supplying a name more than once is allowed; the last value wins for both
// Value and the derived key.
func (c Call) Named(name string, value any) Call {
	named := make([]NamedArg, len(c.named), len(c.named)+1)
	copy(named, c.named)
	named = append(named, NamedArg{Name: name, Value: value})
	return Call{pos: c.pos, named: named}
}

// Positional returns the positional arguments in call order.
// The returned slice is shared with the call; do not mutate it.
func (c Call) Positional() []any { return c.pos }

// Arg returns the i-th positional argument, or nil when out of range.
func (c Call) Arg(i int) any {
	if i < 0 || i >= len(c.pos) {
		return nil
	}
	return c.pos[i]
}

// Value returns the named argument by name. When a name was supplied more
// than once the last value wins.
func (c Call) Value(name string) (any, bool) {
	for i := len(c.named) - 1; i >= 0; i-- {
		if c.named[i].Name == name {
			return c.named[i].Value, true
		}
	}
	return nil, false
}

// Key derives the canonical, order-independent cache key for this call.
// Positional arguments sort among themselves; named arguments sort by name,
// with the last value winning for a name supplied more than once. Encoding
// errors from unsupported argument types surface unwrapped.
func (c Call) Key() (string, error) {
	named := make([]argkey.Named, 0, len(c.named))
	seen := make(map[string]int, len(c.named))
	for _, na := range c.named {
		if i, ok := seen[na.Name]; ok {
			named[i] = argkey.Named{Name: na.Name, Value: na.Value}
			continue
		}
		seen[na.Name] = len(named)
		named = append(named, argkey.Named{Name: na.Name, Value: na.Value})
	}
	return argkey.Key(c.pos, named)
}
