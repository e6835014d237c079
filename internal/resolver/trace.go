package resolver

import (
	"fmt"
	"strings"
)

// Rule names recorded in a Trace.
const (
	RuleCandidates  = "candidates"
	RuleNested      = "nested"
	RuleResultType  = "result-type"
	RuleCycleEntry  = "cycle-entry"
	RuleFeasibility = "feasibility"
	RuleExact       = "exact"
	RuleAssignable  = "assignable"
	RuleWidening    = "widening"
	RulePreference  = "preference"
	RuleSelected    = "selected"
)

// Step is one entry of a resolution trace.
type Step struct {
	Depth   int
	Stage   int
	Rule    string
	Kept    []string
	Removed []string
	Note    string
}

func (s Step) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", s.Depth))
	fmt.Fprintf(&b, "stage %d %s:", s.Stage, s.Rule)
	if s.Note != "" {
		b.WriteString(" ")
		b.WriteString(s.Note)
	}
	if len(s.Kept) > 0 {
		fmt.Fprintf(&b, " kept [%s]", strings.Join(s.Kept, ", "))
	}
	if len(s.Removed) > 0 {
		fmt.Fprintf(&b, " removed [%s]", strings.Join(s.Removed, ", "))
	}
	return b.String()
}

// Trace explains how an expression was resolved or why it failed.
type Trace struct {
	Expr  string
	Want  string
	Steps []Step
}

func (t *Trace) add(s Step) {
	t.Steps = append(t.Steps, s)
}

// Rules returns the rule of every step, in order.
func (t *Trace) Rules() []string {
	out := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Rule
	}
	return out
}

func (t *Trace) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolve %q as %s\n", t.Expr, t.Want)
	for _, s := range t.Steps {
		b.WriteString("  ")
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}
