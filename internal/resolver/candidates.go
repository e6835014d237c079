package resolver

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"cyclegen/internal/flow"
	"cyclegen/internal/funcs"
)

// candidate is one library entry with its constructor arguments bound for a
// particular call site.
type candidate struct {
	entry  *funcs.Entry
	args   []any
	safe   bool
	nested []string
}

func (c *candidate) in() reflect.Type  { return c.entry.In }
func (c *candidate) out() reflect.Type { return c.entry.Out }

func (c *candidate) String() string {
	s := c.entry.Signature()
	if len(c.nested) > 0 {
		s += " {" + strings.Join(c.nested, ", ") + "}"
	}
	return s
}

func names(cs []*candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

// state carries one Resolve call through candidate generation and reduction.
type state struct {
	r     *Resolver
	expr  string
	trace *Trace
	depth int
}

func (st *state) fail(kind error, stage int, msg string, cause error) *ResolutionError {
	return &ResolutionError{Kind: kind, Expr: st.expr, Stage: stage, Msg: msg, Trace: st.trace, Err: cause}
}

func (st *state) step(s Step) {
	s.Depth = st.depth
	st.trace.add(s)
}

// candidates lists the entries that can serve call given its annotations and
// arguments. Nested calls are resolved first.
func (st *state) candidates(stage int, call *flow.Call) ([]*candidate, error) {
	var declIn, declOut reflect.Type
	if call.In != "" {
		t, err := funcs.TypeByName(call.In)
		if err != nil {
			return nil, st.fail(ErrUnknownType, stage, call.String(), err)
		}
		declIn = t
	}
	if call.Out != "" {
		t, err := funcs.TypeByName(call.Out)
		if err != nil {
			return nil, st.fail(ErrUnknownType, stage, call.String(), err)
		}
		declOut = t
	}

	entries := st.r.lib.Lookup(call.Name)
	if len(entries) == 0 {
		return nil, st.fail(ErrUnknownFunction, stage, call.Name, nil)
	}

	// Per argument position: the literal itself or the variants of a nested call.
	options := make([][]*Resolved, len(call.Args))
	for i, a := range call.Args {
		if a.Kind != flow.CallArg {
			continue
		}
		vs, err := st.variants(stage, a.Call)
		if err != nil {
			return nil, err
		}
		options[i] = vs
	}

	var out []*candidate
	for _, e := range entries {
		if declIn != nil && e.In != declIn {
			continue
		}
		if declOut != nil && e.Out != declOut {
			continue
		}
		if !e.AcceptsArity(len(call.Args)) {
			continue
		}
		if c, ok := bind(e, call.Args, options); ok {
			out = append(out, c)
		}
	}

	if len(out) == 0 {
		tried := make([]string, len(entries))
		for i, e := range entries {
			tried[i] = e.Signature()
		}
		return nil, st.fail(ErrNoCandidates, stage,
			fmt.Sprintf("%s matches none of [%s]", signature(call, options), strings.Join(tried, ", ")), nil)
	}
	st.step(Step{Stage: stage, Rule: RuleCandidates, Note: call.String(), Kept: names(out)})
	return out, nil
}

// bind matches arguments against the entry's parameters. For nested calls the
// first variant in preference order that fits the parameter wins.
func bind(e *funcs.Entry, args []flow.Arg, options [][]*Resolved) (*candidate, bool) {
	c := &candidate{entry: e, args: make([]any, len(args)), safe: e.ThreadSafe}
	for i, a := range args {
		p, ok := e.ParamAt(i)
		if !ok {
			return nil, false
		}
		if a.Kind != flow.CallArg {
			if p.Func {
				return nil, false
			}
			v, ok := literal(a, p.Type)
			if !ok {
				return nil, false
			}
			c.args[i] = v
			continue
		}
		if !p.Func {
			return nil, false
		}
		var chosen *Resolved
		for _, v := range options[i] {
			if funcs.Convertible(v.Out, p.Type) {
				chosen = v
				break
			}
		}
		if chosen == nil {
			return nil, false
		}
		f := chosen.Fn
		if conv := funcs.Converter(chosen.Out, p.Type); conv != nil {
			inner := f
			f = func(v any) any { return conv(inner(v)) }
		}
		c.args[i] = f
		c.safe = c.safe && chosen.ThreadSafe
		c.nested = append(c.nested, chosen.Signature())
	}
	return c, true
}

// literal converts a literal argument to a parameter type when the value
// fits.
func literal(a flow.Arg, t reflect.Type) (any, bool) {
	switch a.Kind {
	case flow.IntArg:
		switch t {
		case funcs.Long, funcs.Any:
			return a.Int, true
		case funcs.Int:
			if a.Int >= math.MinInt && a.Int <= math.MaxInt {
				return int(a.Int), true
			}
		case funcs.Int32:
			if a.Int >= math.MinInt32 && a.Int <= math.MaxInt32 {
				return int32(a.Int), true
			}
		case funcs.Double:
			return float64(a.Int), true
		case funcs.Float:
			return float32(a.Int), true
		}
	case flow.FloatArg:
		switch t {
		case funcs.Double, funcs.Any:
			return a.Float, true
		case funcs.Float:
			return float32(a.Float), true
		}
	case flow.StringArg:
		switch t {
		case funcs.String, funcs.Any:
			return a.Str, true
		case funcs.Bytes:
			return []byte(a.Str), true
		}
	case flow.BoolArg:
		switch t {
		case funcs.Bool, funcs.Any:
			return a.Bool, true
		}
	}
	return nil, false
}

// variants resolves a nested call once per feasible output type, in
// preference order. Nested calls receive the enclosing stage's input, which
// must be a cycle.
func (st *state) variants(stage int, call *flow.Call) ([]*Resolved, error) {
	st.depth++
	defer func() { st.depth-- }()

	cands, err := st.candidates(stage, call)
	if err != nil {
		return nil, err
	}
	cands = keep(cands, func(c *candidate) bool { return funcs.Assignable(funcs.Long, c.in()) })
	if len(cands) == 0 {
		return nil, st.fail(ErrNoCycleEntry, stage, "nested "+call.String(), nil)
	}

	var outs []reflect.Type
	seen := make(map[reflect.Type]bool)
	for _, c := range cands {
		if !seen[c.out()] {
			seen[c.out()] = true
			outs = append(outs, c.out())
		}
	}
	sort.Slice(outs, func(i, j int) bool { return funcs.Less(outs[i], outs[j]) })

	var (
		res      []*Resolved
		firstErr error
	)
	for _, t := range outs {
		group := keep(cands, func(c *candidate) bool { return c.out() == t })
		r, err := st.solve(call.String(), [][]*candidate{group})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res = append(res, r)
	}
	if len(res) == 0 {
		return nil, firstErr
	}
	sigs := make([]string, len(res))
	for i, r := range res {
		sigs[i] = r.Signature()
	}
	st.step(Step{Stage: stage, Rule: RuleNested, Note: call.String(), Kept: sigs})
	return res, nil
}

// signature renders the argument types of a call site for error messages.
func signature(call *flow.Call, options [][]*Resolved) string {
	parts := make([]string, len(call.Args))
	for i, a := range call.Args {
		if a.Kind != flow.CallArg {
			parts[i] = a.Kind.String()
			continue
		}
		types := make([]string, len(options[i]))
		for j, v := range options[i] {
			types[j] = funcs.TypeName(v.Out)
		}
		parts[i] = "fn:" + strings.Join(types, "|")
	}
	return call.Name + "(" + strings.Join(parts, ",") + ")"
}

func keep(cs []*candidate, pred func(*candidate) bool) []*candidate {
	var out []*candidate
	for _, c := range cs {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}
