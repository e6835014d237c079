// Package bindings applies a set of named resolved functions to cycles.
package bindings

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"cyclegen/internal/funcs"
	"cyclegen/internal/resolver"
)

// Spec names one field and the flow expression producing it. A nil Type
// accepts any result.
type Spec struct {
	Name string
	Expr string
	Type reflect.Type
}

type field struct {
	name     string
	resolved *resolver.Resolved
	fn       funcs.Fn
}

// Bindings is an ordered set of fields. It is safe for concurrent use:
// functions that are not thread-safe are serialized behind a mutex.
type Bindings struct {
	fields []field
	index  map[string]int
}

// Resolve resolves every spec. All failures are reported together.
func Resolve(r *resolver.Resolver, specs []Spec) (*Bindings, error) {
	b := &Bindings{index: make(map[string]int, len(specs))}
	var errs []error
	for _, s := range specs {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("binding for %q has no name", s.Expr))
			continue
		}
		if _, dup := b.index[s.Name]; dup {
			errs = append(errs, fmt.Errorf("binding %q: duplicate name", s.Name))
			continue
		}
		res, err := r.Resolve(s.Expr, s.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("binding %q: %w", s.Name, err))
			continue
		}
		b.index[s.Name] = len(b.fields)
		b.fields = append(b.fields, field{name: s.Name, resolved: res, fn: guard(res)})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve(r *resolver.Resolver, specs ...Spec) *Bindings {
	b, err := Resolve(r, specs)
	if err != nil {
		panic(err)
	}
	return b
}

func guard(res *resolver.Resolved) funcs.Fn {
	if res.ThreadSafe {
		return res.Fn
	}
	var mu sync.Mutex
	return func(v any) any {
		mu.Lock()
		defer mu.Unlock()
		return res.Fn(v)
	}
}

// Len returns the number of fields.
func (b *Bindings) Len() int {
	return len(b.fields)
}

// Names returns the field names in order.
func (b *Bindings) Names() []string {
	out := make([]string, len(b.fields))
	for i, f := range b.fields {
		out[i] = f.name
	}
	return out
}

// Lookup returns the resolved function bound to name.
func (b *Bindings) Lookup(name string) (*resolver.Resolved, bool) {
	i, ok := b.index[name]
	if !ok {
		return nil, false
	}
	return b.fields[i].resolved, true
}

// Apply returns the field values for cycle in field order.
func (b *Bindings) Apply(cycle int64) []any {
	return b.ApplyInto(cycle, make([]any, 0, len(b.fields)))
}

// ApplyInto appends the field values for cycle to dst.
func (b *Bindings) ApplyInto(cycle int64, dst []any) []any {
	for _, f := range b.fields {
		dst = append(dst, f.fn(cycle))
	}
	return dst
}

// ApplyMap returns the field values for cycle keyed by name.
func (b *Bindings) ApplyMap(cycle int64) map[string]any {
	out := make(map[string]any, len(b.fields))
	for _, f := range b.fields {
		out[f.name] = f.fn(cycle)
	}
	return out
}

// Value returns one field's value for cycle.
func (b *Bindings) Value(cycle int64, name string) (any, bool) {
	i, ok := b.index[name]
	if !ok {
		return nil, false
	}
	return b.fields[i].fn(cycle), true
}
