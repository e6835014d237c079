// Package resolver turns flow expressions into callable functions of a cycle.
//
// Each stage of a chain is matched against the function library, giving a
// list of candidates per stage. The lists are filtered so the last stage
// produces the wanted type and the first accepts a cycle, then narrowed by a
// fixed sequence of rules until one candidate per stage remains:
//
//  1. feasibility: a candidate needs a convertible neighbour on each side
//  2. exact: prefer inputs equal to some previous output
//  3. assignable: prefer inputs assignable from some previous output
//  4. widening: prefer inputs reachable by lossless widening
//  5. preference: keep the best ranked types, see funcs.Less
//
// When no rule applies and a stage still holds more than one candidate the
// expression is ambiguous. Every decision is recorded in a Trace.
package resolver

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"cyclegen/internal/flow"
	"cyclegen/internal/funcs"
)

// Resolved is a composed function of a cycle.
type Resolved struct {
	Fn         funcs.Fn
	In         reflect.Type
	Out        reflect.Type
	ThreadSafe bool
	// Expr is the canonical form of the resolved expression.
	Expr   string
	Stages []string
	Trace  *Trace
}

// Apply evaluates the function for cycle.
func (r *Resolved) Apply(cycle int64) any {
	return r.Fn(cycle)
}

// Signature lists the selected entry of every stage.
func (r *Resolved) Signature() string {
	return strings.Join(r.Stages, "; ")
}

type cacheKey struct {
	expr string
	want reflect.Type
}

// Resolver resolves expressions against one library. It is safe for
// concurrent use.
type Resolver struct {
	lib    *funcs.Library
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey]*Resolved
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for resolution debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a resolver over lib.
func New(lib *funcs.Library, opts ...Option) *Resolver {
	r := &Resolver{
		lib:    lib,
		logger: slog.Default(),
		cache:  make(map[cacheKey]*Resolved),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Library returns the library the resolver draws from.
func (r *Resolver) Library() *funcs.Library {
	return r.lib
}

// Resolve resolves expr into a function whose result is assignable to want.
// A nil want accepts any result type. Thread-safe results are cached and
// shared; others are built fresh on every call.
func (r *Resolver) Resolve(expr string, want reflect.Type) (*Resolved, error) {
	key := cacheKey{expr: expr, want: want}
	r.mu.RLock()
	res, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return res, nil
	}

	chain, err := flow.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", expr, err)
	}
	res, err = r.resolve(chain, want)
	if err != nil {
		r.logger.Debug("resolution failed", "expr", expr, "error", err)
		return nil, err
	}
	r.logger.Debug("resolved flow",
		"expr", res.Expr,
		"signature", res.Signature(),
		"threadsafe", res.ThreadSafe,
	)

	if res.ThreadSafe {
		r.mu.Lock()
		if cached, ok := r.cache[key]; ok {
			res = cached
		} else {
			r.cache[key] = res
		}
		r.mu.Unlock()
	}
	return res, nil
}

// MustResolve is like Resolve but panics on error.
func (r *Resolver) MustResolve(expr string, want reflect.Type) *Resolved {
	res, err := r.Resolve(expr, want)
	if err != nil {
		panic(err)
	}
	return res
}

// ResolveAs resolves expr into a typed function of a cycle.
func ResolveAs[T any](r *Resolver, expr string) (func(int64) T, error) {
	res, err := r.Resolve(expr, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return func(cycle int64) T {
		v, _ := res.Fn(cycle).(T)
		return v
	}, nil
}

func (r *Resolver) resolve(chain *flow.Chain, want reflect.Type) (*Resolved, error) {
	expr := chain.String()
	wantName := "any"
	if want != nil {
		wantName = funcs.TypeName(want)
	}
	st := &state{r: r, expr: expr, trace: &Trace{Expr: expr, Want: wantName}}

	stages := make([][]*candidate, len(chain.Stages))
	for i, call := range chain.Stages {
		cands, err := st.candidates(i, call)
		if err != nil {
			return nil, err
		}
		stages[i] = cands
	}

	last := len(stages) - 1
	if want != nil {
		kept := keep(stages[last], func(c *candidate) bool { return funcs.Assignable(c.out(), want) })
		st.step(Step{Stage: last, Rule: RuleResultType, Note: "want " + wantName, Kept: names(kept), Removed: names(minus(stages[last], kept))})
		if len(kept) == 0 {
			return nil, st.fail(ErrNoResultType, last,
				fmt.Sprintf("none of %v produces %s", names(stages[last]), wantName), nil)
		}
		stages[last] = kept
	}

	kept := keep(stages[0], func(c *candidate) bool { return funcs.Assignable(funcs.Long, c.in()) })
	st.step(Step{Stage: 0, Rule: RuleCycleEntry, Kept: names(kept), Removed: names(minus(stages[0], kept))})
	if len(kept) == 0 {
		return nil, st.fail(ErrNoCycleEntry, 0,
			fmt.Sprintf("none of %v accepts a cycle", names(stages[0])), nil)
	}
	stages[0] = kept

	return st.solve(expr, stages)
}

// solve reduces stages to one candidate each and composes them.
func (st *state) solve(expr string, stages [][]*candidate) (*Resolved, error) {
	if err := st.reduce(stages); err != nil {
		return nil, err
	}

	res := &Resolved{
		In:         stages[0][0].in(),
		Out:        stages[len(stages)-1][0].out(),
		ThreadSafe: true,
		Expr:       expr,
		Trace:      st.trace,
	}
	fns := make([]funcs.Fn, 0, 2*len(stages))
	var prev reflect.Type
	for i, s := range stages {
		c := s[0]
		if prev != nil {
			if conv := funcs.Converter(prev, c.in()); conv != nil {
				fns = append(fns, conv)
			}
		}
		f, err := c.entry.New(c.args)
		if err != nil {
			return nil, st.fail(ErrInvalidArgument, i, c.String(), err)
		}
		fns = append(fns, f)
		res.ThreadSafe = res.ThreadSafe && c.safe
		res.Stages = append(res.Stages, c.String())
		st.step(Step{Stage: i, Rule: RuleSelected, Kept: []string{c.String()}})
		prev = c.out()
	}
	res.Fn = compose(fns)
	return res, nil
}

func compose(fns []funcs.Fn) funcs.Fn {
	if len(fns) == 1 {
		return fns[0]
	}
	return func(v any) any {
		for _, f := range fns {
			v = f(v)
		}
		return v
	}
}
