// Package funcs holds the function library: an immutable table of named
// candidate functions that flow expressions are resolved against.
package funcs

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Fn is a resolved, callable function stage.
type Fn func(v any) any

// Constructor builds a stage from its arguments. Literal arguments arrive
// converted to the declared parameter type; function arguments arrive as Fn.
type Constructor func(args []any) (Fn, error)

// Param describes one constructor parameter.
type Param struct {
	Name string
	Type reflect.Type
	// Func marks a parameter that takes a nested function call producing Type.
	// Nested functions receive the same input as the stage itself.
	Func bool
}

// Entry is one candidate implementation of a named function.
type Entry struct {
	Name       string
	In         reflect.Type
	Out        reflect.Type
	ThreadSafe bool
	Params     []Param
	// Variadic lets the last parameter repeat zero or more times.
	Variadic bool
	Doc      string
	New      Constructor
}

// ParamAt returns the parameter an argument at position i binds to.
func (e *Entry) ParamAt(i int) (Param, bool) {
	if i < len(e.Params) {
		return e.Params[i], true
	}
	if e.Variadic && len(e.Params) > 0 {
		return e.Params[len(e.Params)-1], true
	}
	return Param{}, false
}

// AcceptsArity reports whether the entry can be called with n arguments.
func (e *Entry) AcceptsArity(n int) bool {
	if e.Variadic {
		return n >= len(e.Params)-1
	}
	return n == len(e.Params)
}

// Signature renders the entry as "Name(params) in->out".
func (e *Entry) Signature() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte('(')
	for i, p := range e.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		if p.Func {
			b.WriteString("fn:")
		}
		b.WriteString(TypeName(p.Type))
		if e.Variadic && i == len(e.Params)-1 {
			b.WriteString("...")
		}
	}
	b.WriteString(") ")
	b.WriteString(TypeName(e.In))
	b.WriteString("->")
	b.WriteString(TypeName(e.Out))
	return b.String()
}

func (e *Entry) validate() error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, errors.New("missing name"))
	}
	if e.In == nil || e.Out == nil {
		errs = append(errs, errors.New("missing input or output type"))
	}
	if e.New == nil {
		errs = append(errs, errors.New("missing constructor"))
	}
	if e.Variadic && len(e.Params) == 0 {
		errs = append(errs, errors.New("variadic entry without parameters"))
	}
	for i, p := range e.Params {
		if p.Type == nil {
			errs = append(errs, fmt.Errorf("parameter %d has no type", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("function %q: %w", e.Name, errors.Join(errs...))
	}
	return nil
}

// Library is an immutable registry of function entries, safe for concurrent
// reads. Entries sharing a name keep their registration order.
type Library struct {
	byName map[string][]*Entry
	names  []string
}

// NewLibrary validates entries and builds a library from them.
func NewLibrary(entries ...Entry) (*Library, error) {
	lib := &Library{byName: make(map[string][]*Entry)}
	var errs []error
	for i := range entries {
		e := entries[i]
		if err := e.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := lib.byName[e.Name]; !ok {
			lib.names = append(lib.names, e.Name)
		}
		lib.byName[e.Name] = append(lib.byName[e.Name], &e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Strings(lib.names)
	return lib, nil
}

// MustLibrary is like NewLibrary but panics on invalid entries.
func MustLibrary(entries ...Entry) *Library {
	lib, err := NewLibrary(entries...)
	if err != nil {
		panic(err)
	}
	return lib
}

// With returns a new library holding the receiver's entries followed by extra.
func (l *Library) With(extra ...Entry) (*Library, error) {
	all := make([]Entry, 0, len(extra))
	for _, name := range l.names {
		for _, e := range l.byName[name] {
			all = append(all, *e)
		}
	}
	return NewLibrary(append(all, extra...)...)
}

// Lookup returns the entries registered under name. Callers must not modify
// the returned entries.
func (l *Library) Lookup(name string) []*Entry {
	entries := l.byName[name]
	out := make([]*Entry, len(entries))
	copy(out, entries)
	return out
}

// Has reports whether any entry is registered under name.
func (l *Library) Has(name string) bool {
	return len(l.byName[name]) > 0
}

// Names returns all function names in sorted order.
func (l *Library) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Entries returns every entry, sorted by name then registration order.
func (l *Library) Entries() []*Entry {
	var out []*Entry
	for _, name := range l.names {
		out = append(out, l.byName[name]...)
	}
	return out
}

// Len returns the number of entries.
func (l *Library) Len() int {
	n := 0
	for _, entries := range l.byName {
		n += len(entries)
	}
	return n
}
