// Package activity runs the cycle loop of one load-generating activity.
package activity

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"cyclegen/internal/bindings"
	"cyclegen/internal/ratelimit"
)

// Reserved parameter names. All other parameters belong to the driver.
const (
	ParamAlias     = "alias"
	ParamDriver    = "driver"
	ParamCycles    = "cycles"
	ParamThreads   = "threads"
	ParamStride    = "stride"
	ParamCycleRate = "cyclerate"
	ParamMaxTries  = "maxtries"
)

var reserved = map[string]bool{
	ParamAlias: true, ParamDriver: true, ParamCycles: true, ParamThreads: true,
	ParamStride: true, ParamCycleRate: true, ParamMaxTries: true,
}

// Range is a half-open cycle interval. An unbounded range has no Last.
type Range struct {
	First     int64
	Last      int64
	Unbounded bool
}

// Len returns the number of cycles, or -1 when unbounded.
func (r Range) Len() int64 {
	if r.Unbounded {
		return -1
	}
	return r.Last - r.First
}

func (r Range) String() string {
	if r.Unbounded {
		return fmt.Sprintf("%d..inf", r.First)
	}
	return fmt.Sprintf("%d..%d", r.First, r.Last)
}

// ParseRange parses "N" (cycles 0..N), "a..b", "a.." or "inf". Numbers accept
// the suffixes K, M and B.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "inf") {
		return Range{Unbounded: true}, nil
	}
	lo, hi, isInterval := strings.Cut(s, "..")
	if !isInterval {
		n, err := parseCount(s)
		if err != nil {
			return Range{}, err
		}
		return Range{Last: n}, nil
	}
	first, err := parseCount(lo)
	if err != nil {
		return Range{}, err
	}
	hi = strings.TrimSpace(hi)
	if hi == "" || strings.EqualFold(hi, "inf") {
		return Range{First: first, Unbounded: true}, nil
	}
	last, err := parseCount(hi)
	if err != nil {
		return Range{}, err
	}
	if last < first {
		return Range{}, fmt.Errorf("cycle range %q ends before it starts", s)
	}
	return Range{First: first, Last: last}, nil
}

func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'k', 'K':
			mult = 1_000
		case 'm', 'M':
			mult = 1_000_000
		case 'b', 'B':
			mult = 1_000_000_000
		}
		if mult > 1 {
			s = s[:n-1]
		}
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid cycle count %q", s)
	}
	if v > math.MaxInt64/mult {
		return 0, fmt.Errorf("cycle count %q overflows", s)
	}
	return v * mult, nil
}

// Def is a validated activity definition.
type Def struct {
	Alias     string
	Driver    string
	Cycles    Range
	Threads   int
	Stride    int
	CycleRate ratelimit.Spec
	MaxTries  int
	// Params holds every non-reserved parameter for the driver.
	Params   map[string]string
	Bindings []bindings.Spec
}

// ParseDef validates a flat parameter map. Every problem is reported.
func ParseDef(params map[string]string) (Def, error) {
	def := Def{
		Alias:    strings.TrimSpace(params[ParamAlias]),
		Driver:   strings.TrimSpace(params[ParamDriver]),
		Cycles:   Range{Last: 1},
		Threads:  1,
		Stride:   1,
		MaxTries: 1,
		Params:   make(map[string]string),
	}
	var errs []error

	if def.Driver == "" {
		errs = append(errs, errors.New("driver is required"))
	}
	if def.Alias == "" {
		def.Alias = def.Driver
	}
	if v, ok := params[ParamCycles]; ok {
		r, err := ParseRange(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("cycles: %w", err))
		}
		def.Cycles = r
	}
	if v, ok := params[ParamThreads]; ok {
		if strings.EqualFold(strings.TrimSpace(v), "auto") {
			def.Threads = runtime.GOMAXPROCS(0)
		} else if n, err := strconv.Atoi(strings.TrimSpace(v)); err != nil || n < 1 {
			errs = append(errs, fmt.Errorf("threads: invalid value %q", v))
		} else {
			def.Threads = n
		}
	}
	if v, ok := params[ParamStride]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err != nil || n < 1 {
			errs = append(errs, fmt.Errorf("stride: invalid value %q", v))
		} else {
			def.Stride = n
		}
	}
	if v, ok := params[ParamCycleRate]; ok {
		spec, err := ratelimit.ParseSpec(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("cyclerate: %w", err))
		}
		def.CycleRate = spec
	}
	if v, ok := params[ParamMaxTries]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err != nil || n < 1 {
			errs = append(errs, fmt.Errorf("maxtries: invalid value %q", v))
		} else {
			def.MaxTries = n
		}
	}
	for k, v := range params {
		if !reserved[k] {
			def.Params[k] = v
		}
	}

	if len(errs) > 0 {
		name := def.Alias
		if name == "" {
			name = "<unnamed>"
		}
		return Def{}, fmt.Errorf("activity %s: %w", name, errors.Join(errs...))
	}
	return def, nil
}

// MustParseDef is like ParseDef but panics on error.
func MustParseDef(params map[string]string) Def {
	d, err := ParseDef(params)
	if err != nil {
		panic(err)
	}
	return d
}

// WithBindings returns a copy of d using specs.
func (d Def) WithBindings(specs ...bindings.Spec) Def {
	d.Bindings = append([]bindings.Spec(nil), specs...)
	return d
}

// Param returns a driver parameter or def when unset.
func (d Def) Param(key, def string) string {
	if v, ok := d.Params[key]; ok {
		return v
	}
	return def
}

// RequireParam returns a driver parameter that must be set.
func (d Def) RequireParam(key string) (string, error) {
	v, ok := d.Params[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("activity %s: driver %s requires parameter %q", d.Alias, d.Driver, key)
	}
	return v, nil
}

// IntParam parses an integer driver parameter.
func (d Def) IntParam(key string, def int) (int, error) {
	v, ok := d.Params[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("activity %s: parameter %s: %w", d.Alias, key, err)
	}
	return n, nil
}

// DurationParam parses a duration driver parameter such as "250ms".
func (d Def) DurationParam(key string, def time.Duration) (time.Duration, error) {
	v, ok := d.Params[key]
	if !ok {
		return def, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("activity %s: parameter %s: %w", d.Alias, key, err)
	}
	return dur, nil
}

// ParamsWithPrefix returns driver parameters starting with prefix, keyed by
// the remainder.
func (d Def) ParamsWithPrefix(prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range d.Params {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out[rest] = v
		}
	}
	return out
}

// String summarises the definition in parameter form.
func (d Def) String() string {
	parts := []string{
		ParamAlias + "=" + d.Alias,
		ParamDriver + "=" + d.Driver,
		ParamCycles + "=" + d.Cycles.String(),
		ParamThreads + "=" + strconv.Itoa(d.Threads),
		ParamStride + "=" + strconv.Itoa(d.Stride),
	}
	if d.CycleRate.Rate > 0 {
		parts = append(parts, ParamCycleRate+"="+strconv.FormatFloat(d.CycleRate.Rate, 'g', -1, 64))
	}
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+d.Params[k])
	}
	return strings.Join(parts, ";")
}
