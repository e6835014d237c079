// Package flow parses flow expressions: chains of function calls that map a
// cycle number to a value.
//
//	long -> Hash() -> long; Mod(1000); ToString() -> String
//
// Stages are separated by ';' and applied left to right, so the first stage
// receives the cycle. Each stage may carry an input type annotation before the
// call and an output type annotation after it. Arguments are integer, float,
// string or boolean literals, or nested calls.
package flow

import (
	"strconv"
	"strings"
)

// Chain is a parsed flow expression. Stage 0 is applied first.
type Chain struct {
	Stages []*Call
}

// Call is one function call, optionally annotated with type names.
type Call struct {
	In   string // declared input type name, "" when absent
	Name string
	Args []Arg
	Out  string // declared output type name, "" when absent
	Pos  int    // byte offset of the function name in the source
}

// ArgKind identifies what an argument holds.
type ArgKind int

const (
	IntArg ArgKind = iota
	FloatArg
	StringArg
	BoolArg
	CallArg
)

func (k ArgKind) String() string {
	switch k {
	case IntArg:
		return "int"
	case FloatArg:
		return "float"
	case StringArg:
		return "string"
	case BoolArg:
		return "bool"
	case CallArg:
		return "call"
	}
	return "unknown"
}

// Arg is a literal or a nested call.
type Arg struct {
	Kind  ArgKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Call  *Call
}

// Value returns the literal value of the argument as int64, float64, string
// or bool. It returns nil for nested calls.
func (a Arg) Value() any {
	switch a.Kind {
	case IntArg:
		return a.Int
	case FloatArg:
		return a.Float
	case StringArg:
		return a.Str
	case BoolArg:
		return a.Bool
	}
	return nil
}

func (a Arg) String() string {
	switch a.Kind {
	case IntArg:
		return strconv.FormatInt(a.Int, 10)
	case FloatArg:
		s := strconv.FormatFloat(a.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case StringArg:
		return quote(a.Str)
	case BoolArg:
		return strconv.FormatBool(a.Bool)
	case CallArg:
		return a.Call.String()
	}
	return "?"
}

// String renders the call in canonical form.
func (c *Call) String() string {
	var b strings.Builder
	if c.In != "" {
		b.WriteString(c.In)
		b.WriteString("->")
	}
	b.WriteString(c.Name)
	b.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	if c.Out != "" {
		b.WriteString("->")
		b.WriteString(c.Out)
	}
	return b.String()
}

// String renders the chain in canonical form. Equivalent expressions that
// differ only in whitespace or quoting render identically.
func (c *Chain) String() string {
	parts := make([]string, len(c.Stages))
	for i, s := range c.Stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
