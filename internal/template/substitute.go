// Package template fills ${name} placeholders from bound values and checks
// JSON responses. It knows nothing about the protocol it is used with.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// varPattern matches ${name} and ${env:NAME} placeholders.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Values looks up placeholder values. *core.Vars satisfies it.
type Values interface {
	Get(name string) (any, bool)
}

// Map adapts the per-cycle value map produced by bindings.
type Map map[string]any

func (m Map) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Chain looks names up in each Values in turn.
type Chain []Values

func (c Chain) Get(name string) (any, bool) {
	for _, v := range c {
		if v == nil {
			continue
		}
		if val, ok := v.Get(name); ok {
			return val, true
		}
	}
	return nil, false
}

// Substitute replaces ${name} and ${env:NAME} placeholders in text.
// Every missing name is reported.
// Text without placeholders is returned unchanged.
func Substitute(text string, vals Values) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-1]

		if envName, ok := strings.CutPrefix(name, "env:"); ok {
			if val, ok := os.LookupEnv(envName); ok {
				return val
			}
			errs = append(errs, fmt.Errorf("env var %q not set", envName))
			return match
		}

		if vals != nil {
			if val, ok := vals.Get(name); ok {
				return Format(val)
			}
		}
		errs = append(errs, fmt.Errorf("value %q not bound", name))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

// Format renders a bound value as text.
func Format(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// SubstituteMap applies substitution to all values in a map.
func SubstituteMap(m map[string]string, vals Values) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	var errs []error

	for k, v := range m {
		substituted, err := Substitute(v, vals)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		result[k] = substituted
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// Names returns the distinct placeholder names in text, env references
// excluded, in order of first appearance.
func Names(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range varPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if strings.HasPrefix(name, "env:") || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
