package resolver

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"cyclegen/internal/funcs"
)

type relation func(from, to reflect.Type) bool

// reduce narrows every stage to one candidate. Rules run in precedence order
// and the sequence restarts after any rule removes a candidate, so the
// candidate total strictly decreases on every iteration.
func (st *state) reduce(stages [][]*candidate) error {
	for !settled(stages) {
		removed, err := st.feasibility(stages)
		if err != nil {
			return err
		}
		if removed {
			continue
		}
		if st.prune(stages, RuleExact, funcs.Exact) ||
			st.prune(stages, RuleAssignable, funcs.Assignable) ||
			st.prune(stages, RuleWidening, funcs.Convertible) ||
			st.prefer(stages) {
			continue
		}
		for i, s := range stages {
			if len(s) > 1 {
				st.step(Step{Stage: i, Rule: RulePreference, Note: "no rule applies", Kept: names(s)})
				return st.fail(ErrAmbiguous, i, fmt.Sprintf("%d candidates remain: %v", len(s), names(s)), nil)
			}
		}
	}
	return nil
}

func settled(stages [][]*candidate) bool {
	for _, s := range stages {
		if len(s) != 1 {
			return false
		}
	}
	return true
}

// feasibility drops candidates with no convertible neighbour on either side.
func (st *state) feasibility(stages [][]*candidate) (bool, error) {
	for i := 0; i+1 < len(stages); i++ {
		cur, next := stages[i], stages[i+1]
		nextKeep := keep(next, func(c *candidate) bool { return linked(cur, c, funcs.Convertible) })
		curKeep := keep(cur, func(p *candidate) bool {
			for _, c := range next {
				if funcs.Convertible(p.out(), c.in()) {
					return true
				}
			}
			return false
		})
		if len(nextKeep) == 0 || len(curKeep) == 0 {
			st.step(Step{Stage: i + 1, Rule: RuleFeasibility, Note: "no convertible link", Removed: names(next)})
			return false, st.fail(ErrIncompatibleStages, i+1,
				fmt.Sprintf("outputs of %v do not feed inputs of %v", names(cur), names(next)), nil)
		}
		if len(curKeep) < len(cur) {
			st.step(Step{Stage: i, Rule: RuleFeasibility, Kept: names(curKeep), Removed: names(minus(cur, curKeep))})
			stages[i] = curKeep
			return true, nil
		}
		if len(nextKeep) < len(next) {
			st.step(Step{Stage: i + 1, Rule: RuleFeasibility, Kept: names(nextKeep), Removed: names(minus(next, nextKeep))})
			stages[i+1] = nextKeep
			return true, nil
		}
	}
	return false, nil
}

// prune removes next-stage candidates that no previous-stage candidate feeds
// under rel, provided at least one candidate is fed.
func (st *state) prune(stages [][]*candidate, rule string, rel relation) bool {
	for i := 0; i+1 < len(stages); i++ {
		next := stages[i+1]
		kept := keep(next, func(c *candidate) bool { return linked(stages[i], c, rel) })
		if len(kept) > 0 && len(kept) < len(next) {
			st.step(Step{Stage: i + 1, Rule: rule, Kept: names(kept), Removed: names(minus(next, kept))})
			stages[i+1] = kept
			return true
		}
	}
	return false
}

func linked(prev []*candidate, c *candidate, rel relation) bool {
	for _, p := range prev {
		if rel(p.out(), c.in()) {
			return true
		}
	}
	return false
}

// prefer applies the type preference order at the first stage where it
// removes something. Candidates of equal rank are separated by how many
// candidates each would leave at the other stages, fewest first.
func (st *state) prefer(stages [][]*candidate) bool {
	for i, s := range stages {
		if len(s) < 2 {
			continue
		}
		sorted := append([]*candidate(nil), s...)
		sort.SliceStable(sorted, func(a, b int) bool { return better(sorted[a], sorted[b]) })
		top := keep(sorted, func(c *candidate) bool {
			return c.in() == sorted[0].in() && c.out() == sorted[0].out()
		})
		if len(top) > 1 {
			top = st.fewestRemaining(stages, i, top)
		}
		if len(top) < len(s) {
			st.step(Step{Stage: i, Rule: RulePreference, Kept: names(top), Removed: names(minus(s, top))})
			stages[i] = top
			return true
		}
	}
	return false
}

func better(a, b *candidate) bool {
	if a.in() != b.in() {
		return funcs.Less(a.in(), b.in())
	}
	if a.out() != b.out() {
		return funcs.Less(a.out(), b.out())
	}
	return false
}

func (st *state) fewestRemaining(stages [][]*candidate, at int, tied []*candidate) []*candidate {
	best := math.MaxInt
	var out []*candidate
	for _, c := range tied {
		n := remaining(stages, at, c)
		switch {
		case n < best:
			best = n
			out = []*candidate{c}
		case n == best:
			out = append(out, c)
		}
	}
	return out
}

// remaining counts the candidates left at other stages if stage at held only
// c, after feasibility settles. An infeasible choice counts as MaxInt.
func remaining(stages [][]*candidate, at int, c *candidate) int {
	sim := make([][]*candidate, len(stages))
	copy(sim, stages)
	sim[at] = []*candidate{c}
	for changed := true; changed; {
		changed = false
		for i := 0; i+1 < len(sim); i++ {
			next := keep(sim[i+1], func(n *candidate) bool { return linked(sim[i], n, funcs.Convertible) })
			cur := keep(sim[i], func(p *candidate) bool {
				for _, n := range sim[i+1] {
					if funcs.Convertible(p.out(), n.in()) {
						return true
					}
				}
				return false
			})
			if len(next) == 0 || len(cur) == 0 {
				return math.MaxInt
			}
			if len(next) < len(sim[i+1]) || len(cur) < len(sim[i]) {
				sim[i+1], sim[i] = next, cur
				changed = true
			}
		}
	}
	n := 0
	for i, s := range sim {
		if i != at {
			n += len(s)
		}
	}
	return n
}

func minus(all, kept []*candidate) []*candidate {
	in := make(map[*candidate]bool, len(kept))
	for _, c := range kept {
		in[c] = true
	}
	return keep(all, func(c *candidate) bool { return !in[c] })
}
