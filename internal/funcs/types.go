package funcs

import (
	"fmt"
	"reflect"
	"strings"
)

// Value types understood by flow expression annotations.
var (
	Long   = reflect.TypeFor[int64]()
	Int    = reflect.TypeFor[int]()
	Int32  = reflect.TypeFor[int32]()
	Double = reflect.TypeFor[float64]()
	Float  = reflect.TypeFor[float32]()
	String = reflect.TypeFor[string]()
	Bool   = reflect.TypeFor[bool]()
	Bytes  = reflect.TypeFor[[]byte]()
	Any    = reflect.TypeFor[any]()
)

// preference is the total order used as the last tie-break during
// resolution. Types not listed rank after all of these, ordered by their
// reflect string.
var preference = []reflect.Type{Long, Int, Int32, Double, Float, String, Bool, Bytes, Any}

var typeNames = map[string]reflect.Type{
	"long":    Long,
	"int64":   Long,
	"int":     Int,
	"integer": Int,
	"int32":   Int32,
	"double":  Double,
	"float64": Double,
	"float":   Float,
	"float32": Float,
	"string":  String,
	"boolean": Bool,
	"bool":    Bool,
	"bytes":   Bytes,
	"object":  Any,
	"any":     Any,
}

// TypeByName maps an annotation such as "long" or "String" to its Go type.
// Names are case-insensitive.
func TypeByName(name string) (reflect.Type, error) {
	if t, ok := typeNames[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown type name %q", name)
}

// TypeName returns the annotation name for t, or its Go name when t has none.
func TypeName(t reflect.Type) string {
	switch t {
	case nil:
		return "<nil>"
	case Long:
		return "long"
	case Int:
		return "int"
	case Int32:
		return "int32"
	case Double:
		return "double"
	case Float:
		return "float"
	case String:
		return "string"
	case Bool:
		return "boolean"
	case Bytes:
		return "bytes"
	case Any:
		return "object"
	}
	return t.String()
}

// Rank returns the position of t in the preference order.
func Rank(t reflect.Type) int {
	for i, p := range preference {
		if p == t {
			return i
		}
	}
	return len(preference)
}

// Less reports whether a is preferred over b. It is a strict total order.
func Less(a, b reflect.Type) bool {
	ra, rb := Rank(a), Rank(b)
	if ra != rb {
		return ra < rb
	}
	if ra < len(preference) {
		return false
	}
	return a.String() < b.String()
}

// Exact reports whether a value of type from feeds a parameter of type to
// without any adaptation.
func Exact(from, to reflect.Type) bool {
	return from == to
}

// Assignable reports Go assignability, which includes satisfying an interface.
func Assignable(from, to reflect.Type) bool {
	return from.AssignableTo(to)
}

// Widens reports whether from converts to to without loss: a smaller integer
// to a wider one, float32 to float64, or an integer up to 32 bits to float64.
func Widens(from, to reflect.Type) bool {
	if from == to {
		return false
	}
	fk, tk := from.Kind(), to.Kind()
	switch {
	case isInt(fk) && tk == reflect.Int:
		// int may be 32 bits wide
		return intBits(fk) <= 32
	case isInt(fk) && isInt(tk):
		return intBits(fk) <= intBits(tk)
	case (fk == reflect.Float32) && tk == reflect.Float64:
		return true
	case isInt(fk) && tk == reflect.Float64:
		return intBits(fk) <= 32
	}
	return false
}

// Convertible reports assignability or lossless widening.
func Convertible(from, to reflect.Type) bool {
	return Assignable(from, to) || Widens(from, to)
}

// Converter returns a function adapting values of type from to type to.
// It returns nil when no adaptation is needed.
func Converter(from, to reflect.Type) Fn {
	if Assignable(from, to) {
		return nil
	}
	return func(v any) any {
		return reflect.ValueOf(v).Convert(to).Interface()
	}
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func intBits(k reflect.Kind) int {
	switch k {
	case reflect.Int8:
		return 8
	case reflect.Int16:
		return 16
	case reflect.Int32:
		return 32
	}
	return 64
}
