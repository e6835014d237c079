package funcs

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclegen/internal/data"
)

func build(t *testing.T, lib *Library, name string, in, out reflect.Type, args ...any) Fn {
	t.Helper()
	for _, e := range lib.Lookup(name) {
		if e.In == in && e.Out == out && e.AcceptsArity(len(args)) {
			f, err := e.New(args)
			require.NoError(t, err)
			return f
		}
	}
	t.Fatalf("no %s %s->%s", name, TypeName(in), TypeName(out))
	return nil
}

func TestTypeByName(t *testing.T) {
	tests := []struct {
		name string
		want reflect.Type
	}{
		{"long", Long},
		{"LONG", Long},
		{"int", Int},
		{"double", Double},
		{"String", String},
		{"boolean", Bool},
		{"object", Any},
		{"any", Any},
	}
	for _, tt := range tests {
		got, err := TypeByName(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
	_, err := TypeByName("decimal")
	assert.Error(t, err)
}

func TestLess_TotalOrder(t *testing.T) {
	types := []reflect.Type{Long, Int, Int32, Double, Float, String, Bool, Bytes, Any, UUID, reflect.TypeFor[uint8]()}
	for i, a := range types {
		assert.False(t, Less(a, a), "irreflexive %v", a)
		for _, b := range types[i+1:] {
			assert.True(t, Less(a, b) != Less(b, a), "exactly one of %v<%v or %v<%v", a, b, b, a)
		}
	}
	assert.True(t, Less(Long, Int))
	assert.True(t, Less(String, Any))
	assert.True(t, Less(Any, UUID))
}

func TestWidens(t *testing.T) {
	assert.True(t, Widens(Int32, Long))
	assert.True(t, Widens(Int, Long))
	assert.True(t, Widens(Int32, Int))
	assert.False(t, Widens(Long, Int))
	assert.True(t, Widens(Float, Double))
	assert.True(t, Widens(Int32, Double))
	assert.False(t, Widens(Long, Double))
	assert.False(t, Widens(Double, Float))
	assert.False(t, Widens(Long, Long))
	assert.False(t, Widens(String, Long))
}

func TestConverter(t *testing.T) {
	assert.Nil(t, Converter(Long, Long))
	assert.Nil(t, Converter(Long, Any))
	conv := Converter(Int32, Long)
	require.NotNil(t, conv)
	assert.Equal(t, int64(7), conv(int32(7)))
}

func TestNewLibrary_Validation(t *testing.T) {
	_, err := NewLibrary(Entry{Name: "Broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
	assert.Contains(t, err.Error(), "missing constructor")
}

func TestLibrary_LookupAndWith(t *testing.T) {
	lib := MustLibrary(unary("B", "", func(v int64) int64 { return v }), unary("A", "", func(v int64) string { return "" }))
	assert.Equal(t, []string{"A", "B"}, lib.Names())
	assert.True(t, lib.Has("A"))
	assert.False(t, lib.Has("C"))
	assert.Empty(t, lib.Lookup("C"))

	more, err := lib.With(unary("C", "", func(v int64) int64 { return v }))
	require.NoError(t, err)
	assert.Equal(t, 3, more.Len())
	assert.Equal(t, 2, lib.Len(), "With must not modify the receiver")
}

func TestEntry_Signature(t *testing.T) {
	lib := NewStandard(nil)
	var sigs []string
	for _, e := range lib.Lookup("Template") {
		sigs = append(sigs, e.Signature())
	}
	assert.Equal(t, []string{"Template(string,fn:object...) long->string"}, sigs)
}

func TestStandard_Arithmetic(t *testing.T) {
	lib := NewStandard(nil)
	assert.Equal(t, int64(12), build(t, lib, "Add", Long, Long, int64(5))(int64(7)))
	assert.Equal(t, 2.5, build(t, lib, "Add", Double, Double, 2.0)(0.5))
	assert.Equal(t, int64(21), build(t, lib, "Mul", Long, Long, int64(3))(int64(7)))
	assert.Equal(t, int64(3), build(t, lib, "Div", Long, Long, int64(2))(int64(7)))
	assert.Equal(t, int64(3), build(t, lib, "Mod", Long, Long, int64(10))(int64(-7)))
	assert.Equal(t, int64(5), build(t, lib, "Clamp", Long, Long, int64(1), int64(5))(int64(99)))
}

func TestStandard_ConstructorErrors(t *testing.T) {
	lib := NewStandard(nil)
	for _, e := range lib.Lookup("Div") {
		if e.In == Long {
			_, err := e.New([]any{int64(0)})
			assert.Error(t, err)
		}
	}
	for _, e := range lib.Lookup("Mod") {
		if e.In == Long {
			_, err := e.New([]any{int64(-1)})
			assert.Error(t, err)
		}
	}
	for _, e := range lib.Lookup("HashRange") {
		if len(e.Params) == 2 {
			_, err := e.New([]any{int64(10), int64(10)})
			assert.Error(t, err)
		}
	}
}

func TestStandard_HashIsStable(t *testing.T) {
	lib := NewStandard(nil)
	h := build(t, lib, "Hash", Long, Long)
	for i := int64(0); i < 1000; i++ {
		v := h(i).(int64)
		assert.GreaterOrEqual(t, v, int64(0))
		assert.Equal(t, v, h(i))
		assert.Equal(t, v, Hash(i))
	}
	assert.NotEqual(t, h(int64(1)), h(int64(2)))

	r := build(t, lib, "HashRange", Long, Long, int64(10), int64(20))
	for i := int64(0); i < 1000; i++ {
		v := r(i).(int64)
		assert.True(t, v >= 10 && v < 20, "HashRange value %d out of range", v)
	}

	u := build(t, lib, "Uniform", Long, Double, 1.0, 2.0)
	for i := int64(0); i < 1000; i++ {
		v := u(i).(float64)
		assert.True(t, v >= 1.0 && v < 2.0, "Uniform value %g out of range", v)
	}
}

func TestStandard_Conversions(t *testing.T) {
	lib := NewStandard(nil)
	assert.Equal(t, "42", build(t, lib, "ToString", Long, String)(int64(42)))
	assert.Equal(t, "1.5", build(t, lib, "ToString", Double, String)(1.5))
	assert.Equal(t, "ff", build(t, lib, "ToHex", Long, String)(int64(255)))
	assert.Equal(t, true, build(t, lib, "ToBoolean", Long, Bool)(int64(3)))
	assert.Equal(t, int64(17), build(t, lib, "ToLong", String, Long)(" 17 "))
	assert.Equal(t, int64(0), build(t, lib, "ToLong", String, Long)("x"))
	assert.Equal(t, 3, build(t, lib, "ToInt", Double, Int)(3.9))
	assert.Equal(t, "pre-x-suf", build(t, lib, "Suffix", String, String, "-suf")(build(t, lib, "Prefix", String, String, "pre-")("x")))
}

func TestStandard_ToUUID(t *testing.T) {
	lib := NewStandard(nil)
	s := build(t, lib, "ToUUID", Long, String)
	u := build(t, lib, "ToUUID", Long, UUID)

	a := s(int64(1)).(string)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
	assert.Equal(t, a, s(int64(1)))
	assert.NotEqual(t, a, s(int64(2)))
	assert.Equal(t, parsed, u(int64(1)))
}

func TestStandard_Template(t *testing.T) {
	lib := NewStandard(nil)
	entries := lib.Lookup("Template")
	require.Len(t, entries, 1)
	assert.False(t, entries[0].ThreadSafe)

	id := Fn(func(v any) any { return v })
	double := Fn(func(v any) any { return v.(int64) * 2 })
	f, err := entries[0].New([]any{"{}-{}!", id, double})
	require.NoError(t, err)
	assert.Equal(t, "3-6!", f(int64(3)))
	assert.Equal(t, "4-8!", f(int64(4)))

	_, err = entries[0].New([]any{"{}-{}", id})
	assert.Error(t, err)
}

func TestStandard_DataField(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.csv"), []byte("name,age\nalice,30\nbob,40\n"), 0o644))
	lib := NewStandard(data.NewCache(dir))

	f := build(t, lib, "DataField", Long, String, "users.csv", "name")
	assert.Equal(t, "alice", f(int64(0)))
	assert.Equal(t, "bob", f(int64(1)))
	assert.Equal(t, "alice", f(int64(2)))

	h := build(t, lib, "DataField", Long, String, "users.csv", "age", "hashed")
	assert.Contains(t, []any{"30", "40"}, h(int64(7)))
	assert.Equal(t, h(int64(7)), h(int64(7)))

	for _, e := range lib.Lookup("DataField") {
		if len(e.Params) == 2 {
			_, err := e.New([]any{"users.csv", "missing"})
			assert.Error(t, err)
			_, err = e.New([]any{"nope.csv", "name"})
			assert.Error(t, err)
		}
	}
}

func TestNewStandard_LibrariesAreIndependent(t *testing.T) {
	dirs := []string{t.TempDir(), t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(dirs[0], "rows.csv"), []byte("name\nalpha\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirs[1], "rows.csv"), []byte("name\nbeta\n"), 0o644))

	a := NewStandard(data.NewCache(dirs[0]))
	b := NewStandard(data.NewCache(dirs[1]))
	require.NotSame(t, a, b)

	assert.Equal(t, "alpha", build(t, a, "DataField", Long, String, "rows.csv", "name")(int64(0)))
	assert.Equal(t, "beta", build(t, b, "DataField", Long, String, "rows.csv", "name")(int64(0)))
	assert.Equal(t, a.Len(), NewStandard(nil).Len())
}
