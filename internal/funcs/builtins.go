package funcs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"cyclegen/internal/data"
)

// UUID is the value type produced by the ToUUID variant returning uuid.UUID.
var UUID = reflect.TypeFor[uuid.UUID]()

// CycleNamespace seeds the name-based UUIDs produced by ToUUID.
var CycleNamespace = uuid.MustParse("6f1d2c3a-9b8e-4c7d-a1f0-3e2b5d4c6a79")

// NewStandard builds the built-in library, loading DataField files through
// cache. A nil cache resolves data files against the working directory.
func NewStandard(cache *data.Cache) *Library {
	if cache == nil {
		cache = data.NewCache("")
	}
	return MustLibrary(builtins(cache)...)
}

func lit(name string, t reflect.Type) Param { return Param{Name: name, Type: t} }
func fn(name string, t reflect.Type) Param  { return Param{Name: name, Type: t, Func: true} }

// entry builds a thread-safe entry whose constructor returns a typed function.
func entry[I, O any](name, doc string, params []Param, build func(args []any) (func(I) O, error)) Entry {
	return Entry{
		Name:       name,
		In:         reflect.TypeFor[I](),
		Out:        reflect.TypeFor[O](),
		ThreadSafe: true,
		Params:     params,
		Doc:        doc,
		New: func(args []any) (Fn, error) {
			f, err := build(args)
			if err != nil {
				return nil, err
			}
			return func(v any) any {
				in, _ := v.(I)
				return f(in)
			}, nil
		},
	}
}

// unary builds a parameterless entry.
func unary[I, O any](name, doc string, f func(I) O) Entry {
	return entry(name, doc, nil, func([]any) (func(I) O, error) { return f, nil })
}

// Hash is a stable 63-bit non-negative hash of a cycle.
func Hash(v int64) int64 {
	return int64(data.Mix(uint64(v)) & math.MaxInt64)
}

func builtins(cache *data.Cache) []Entry {
	return []Entry{
		unary("Identity", "returns its input", func(v int64) int64 { return v }),
		unary("Identity", "returns its input", func(v float64) float64 { return v }),
		unary("Identity", "returns its input", func(v string) string { return v }),

		entry("Add", "adds a constant", []Param{lit("addend", Long)}, func(a []any) (func(int64) int64, error) {
			n := a[0].(int64)
			return func(v int64) int64 { return v + n }, nil
		}),
		entry("Add", "adds a constant", []Param{lit("addend", Int)}, func(a []any) (func(int) int, error) {
			n := a[0].(int)
			return func(v int) int { return v + n }, nil
		}),
		entry("Add", "adds a constant", []Param{lit("addend", Double)}, func(a []any) (func(float64) float64, error) {
			n := a[0].(float64)
			return func(v float64) float64 { return v + n }, nil
		}),

		entry("Mul", "multiplies by a constant", []Param{lit("factor", Long)}, func(a []any) (func(int64) int64, error) {
			n := a[0].(int64)
			return func(v int64) int64 { return v * n }, nil
		}),
		entry("Mul", "multiplies by a constant", []Param{lit("factor", Double)}, func(a []any) (func(float64) float64, error) {
			n := a[0].(float64)
			return func(v float64) float64 { return v * n }, nil
		}),

		entry("Div", "divides by a constant", []Param{lit("divisor", Long)}, func(a []any) (func(int64) int64, error) {
			n := a[0].(int64)
			if n == 0 {
				return nil, errors.New("division by zero")
			}
			return func(v int64) int64 { return v / n }, nil
		}),
		entry("Div", "divides by a constant", []Param{lit("divisor", Double)}, func(a []any) (func(float64) float64, error) {
			n := a[0].(float64)
			if n == 0 {
				return nil, errors.New("division by zero")
			}
			return func(v float64) float64 { return v / n }, nil
		}),

		entry("Mod", "non-negative remainder", []Param{lit("modulus", Long)}, func(a []any) (func(int64) int64, error) {
			n := a[0].(int64)
			if n <= 0 {
				return nil, fmt.Errorf("modulus must be positive, got %d", n)
			}
			return func(v int64) int64 { return ((v % n) + n) % n }, nil
		}),
		entry("Mod", "non-negative remainder", []Param{lit("modulus", Int)}, func(a []any) (func(int) int, error) {
			n := a[0].(int)
			if n <= 0 {
				return nil, fmt.Errorf("modulus must be positive, got %d", n)
			}
			return func(v int) int { return ((v % n) + n) % n }, nil
		}),

		entry("Clamp", "limits to [min,max]", []Param{lit("min", Long), lit("max", Long)}, func(a []any) (func(int64) int64, error) {
			lo, hi := a[0].(int64), a[1].(int64)
			if lo > hi {
				return nil, fmt.Errorf("min %d exceeds max %d", lo, hi)
			}
			return func(v int64) int64 { return min(max(v, lo), hi) }, nil
		}),
		entry("Clamp", "limits to [min,max]", []Param{lit("min", Double), lit("max", Double)}, func(a []any) (func(float64) float64, error) {
			lo, hi := a[0].(float64), a[1].(float64)
			if lo > hi {
				return nil, fmt.Errorf("min %g exceeds max %g", lo, hi)
			}
			return func(v float64) float64 { return min(max(v, lo), hi) }, nil
		}),

		unary("Hash", "stable non-negative hash", Hash),
		unary("Hash", "stable non-negative hash", func(v int64) int { return int(Hash(v) % math.MaxInt32) }),

		entry("HashRange", "hash in [0,max)", []Param{lit("max", Long)}, func(a []any) (func(int64) int64, error) {
			hi := a[0].(int64)
			if hi <= 0 {
				return nil, fmt.Errorf("max must be positive, got %d", hi)
			}
			return func(v int64) int64 { return Hash(v) % hi }, nil
		}),
		entry("HashRange", "hash in [min,max)", []Param{lit("min", Long), lit("max", Long)}, func(a []any) (func(int64) int64, error) {
			lo, hi := a[0].(int64), a[1].(int64)
			if hi <= lo {
				return nil, fmt.Errorf("max %d must exceed min %d", hi, lo)
			}
			span := hi - lo
			return func(v int64) int64 { return lo + Hash(v)%span }, nil
		}),
		entry("HashRange", "hash in [0,max)", []Param{lit("max", Int)}, func(a []any) (func(int64) int, error) {
			hi := a[0].(int)
			if hi <= 0 {
				return nil, fmt.Errorf("max must be positive, got %d", hi)
			}
			return func(v int64) int { return int(Hash(v) % int64(hi)) }, nil
		}),

		entry("Uniform", "hash mapped onto [min,max)", []Param{lit("min", Double), lit("max", Double)}, func(a []any) (func(int64) float64, error) {
			lo, hi := a[0].(float64), a[1].(float64)
			if hi <= lo {
				return nil, fmt.Errorf("max %g must exceed min %g", hi, lo)
			}
			return func(v int64) float64 {
				unit := float64(Hash(v)>>10) / float64(1<<53)
				return lo + unit*(hi-lo)
			}, nil
		}),

		entry("FixedValue", "ignores its input", []Param{lit("value", Long)}, func(a []any) (func(int64) int64, error) {
			n := a[0].(int64)
			return func(int64) int64 { return n }, nil
		}),
		entry("FixedValue", "ignores its input", []Param{lit("value", String)}, func(a []any) (func(int64) string, error) {
			s := a[0].(string)
			return func(int64) string { return s }, nil
		}),

		unary("ToInt", "truncates to int", func(v int64) int { return int(v) }),
		unary("ToInt", "truncates to int", func(v float64) int { return int(v) }),
		unary("ToLong", "widens to long", func(v int) int64 { return int64(v) }),
		unary("ToLong", "truncates to long", func(v float64) int64 { return int64(v) }),
		unary("ToLong", "parses a decimal string, 0 when malformed", func(v string) int64 {
			n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			return n
		}),
		unary("ToDouble", "converts to double", func(v int64) float64 { return float64(v) }),
		unary("ToDouble", "converts to double", func(v int) float64 { return float64(v) }),
		unary("ToFloat", "converts to float", func(v int64) float32 { return float32(v) }),
		unary("ToFloat", "narrows to float", func(v float64) float32 { return float32(v) }),

		unary("ToString", "decimal form", func(v int64) string { return strconv.FormatInt(v, 10) }),
		unary("ToString", "decimal form", func(v int) string { return strconv.Itoa(v) }),
		unary("ToString", "shortest decimal form", func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }),
		unary("ToString", "default formatting", func(v any) string { return fmt.Sprint(v) }),
		unary("ToHex", "lower-case hexadecimal", func(v int64) string { return strconv.FormatUint(uint64(v), 16) }),
		unary("ToBoolean", "true for odd values", func(v int64) bool { return v&1 == 1 }),

		unary("ToUUID", "name-based UUID of the cycle", func(v int64) string { return cycleUUID(v).String() }),
		unary("ToUUID", "name-based UUID of the cycle", cycleUUID),

		entry("Prefix", "prepends a constant", []Param{lit("prefix", String)}, func(a []any) (func(string) string, error) {
			p := a[0].(string)
			return func(v string) string { return p + v }, nil
		}),
		entry("Suffix", "appends a constant", []Param{lit("suffix", String)}, func(a []any) (func(string) string, error) {
			p := a[0].(string)
			return func(v string) string { return v + p }, nil
		}),

		templateEntry(),
		dataFieldEntry(cache, false),
		dataFieldEntry(cache, true),
	}
}

func cycleUUID(v int64) uuid.UUID {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return uuid.NewSHA1(CycleNamespace, b[:])
}

// templateEntry fills each "{}" in a format with the next nested function's
// result. It reuses one buffer, so it is not thread-safe.
func templateEntry() Entry {
	return Entry{
		Name:     "Template",
		In:       Long,
		Out:      String,
		Params:   []Param{lit("format", String), fn("value", Any)},
		Variadic: true,
		Doc:      "fills {} placeholders with nested function results",
		New: func(args []any) (Fn, error) {
			parts := strings.Split(args[0].(string), "{}")
			fns := make([]Fn, 0, len(args)-1)
			for _, a := range args[1:] {
				fns = append(fns, a.(Fn))
			}
			if len(parts)-1 != len(fns) {
				return nil, fmt.Errorf("format has %d placeholders but %d values were given", len(parts)-1, len(fns))
			}
			var buf []byte
			return func(v any) any {
				buf = append(buf[:0], parts[0]...)
				for i, f := range fns {
					buf = fmt.Append(buf, f(v))
					buf = append(buf, parts[i+1]...)
				}
				return string(buf)
			}, nil
		},
	}
}

// dataFieldEntry selects one field of a CSV or JSON row by cycle.
func dataFieldEntry(cache *data.Cache, withMode bool) Entry {
	params := []Param{lit("path", String), lit("field", String)}
	if withMode {
		params = append(params, lit("mode", String))
	}
	return entry("DataField", "field of the data file row selected by the cycle", params, func(a []any) (func(int64) string, error) {
		mode := data.ModeSequential
		if withMode {
			m, err := data.ParseMode(a[2].(string))
			if err != nil {
				return nil, err
			}
			mode = m
		}
		src, err := cache.Load(a[0].(string), mode)
		if err != nil {
			return nil, err
		}
		field := a[1].(string)
		if _, ok := src.Field(0, field); !ok {
			return nil, fmt.Errorf("data file %s has no field %q", a[0], field)
		}
		return func(v int64) string {
			f, _ := src.Field(v, field)
			if s, ok := f.(string); ok {
				return s
			}
			return fmt.Sprint(f)
		}, nil
	})
}
