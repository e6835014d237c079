package controller

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var identifier = regexp.MustCompile(`^[\w-]+$`)

// splitSpec splits an alias spec on commas, semicolons and whitespace.
func splitSpec(spec string) []string {
	return strings.FieldsFunc(spec, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
}

// match resolves every pattern in spec against aliases. A pattern made only
// of identifier characters must name an alias exactly; any other pattern is
// an anchored regular expression that must match at least one alias. The
// result is sorted and free of duplicates.
func match(spec string, aliases []string) ([]string, error) {
	patterns := splitSpec(spec)
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: empty alias spec", ErrNoMatch)
	}
	known := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		known[a] = true
	}

	seen := make(map[string]bool)
	var out []string
	add := func(a string) {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, p := range patterns {
		if identifier.MatchString(p) {
			if !known[p] {
				return nil, fmt.Errorf("%w %q", ErrUnknownAlias, p)
			}
			add(p)
			continue
		}
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("alias pattern %q: %w", p, err)
		}
		n := 0
		for _, a := range aliases {
			if re.MatchString(a) {
				add(a)
				n++
			}
		}
		if n == 0 {
			return nil, fmt.Errorf("%w %q", ErrNoMatch, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
