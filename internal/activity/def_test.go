package activity

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclegen/internal/bindings"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    Range
		wantErr bool
	}{
		{"10", Range{Last: 10}, false},
		{"5..15", Range{First: 5, Last: 15}, false},
		{"1K", Range{Last: 1000}, false},
		{"2M..3M", Range{First: 2_000_000, Last: 3_000_000}, false},
		{"1b", Range{Last: 1_000_000_000}, false},
		{"inf", Range{Unbounded: true}, false},
		{"100..", Range{First: 100, Unbounded: true}, false},
		{"100..inf", Range{First: 100, Unbounded: true}, false},
		{"1_000", Range{Last: 1000}, false},
		{"10..5", Range{}, true},
		{"-1", Range{}, true},
		{"ten", Range{}, true},
		{"9999999999999B", Range{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, int64(-1), Range{Unbounded: true}.Len())
	assert.Equal(t, "5..15", Range{First: 5, Last: 15}.String())
}

func TestParseDef_Defaults(t *testing.T) {
	def, err := ParseDef(map[string]string{"driver": "diag"})
	require.NoError(t, err)
	assert.Equal(t, "diag", def.Alias, "alias defaults to the driver")
	assert.Equal(t, Range{Last: 1}, def.Cycles)
	assert.Equal(t, 1, def.Threads)
	assert.Equal(t, 1, def.Stride)
	assert.Equal(t, 1, def.MaxTries)
	assert.Zero(t, def.CycleRate.Rate)
	assert.Empty(t, def.Params)
}

func TestParseDef_AllParams(t *testing.T) {
	def, err := ParseDef(map[string]string{
		"alias":     "writes",
		"driver":    "diag",
		"cycles":    "10..20",
		"threads":   "4",
		"stride":    "5",
		"cyclerate": "100,2",
		"maxtries":  "3",
		"latency":   "5ms",
		"h.Accept":  "application/json",
	})
	require.NoError(t, err)
	assert.Equal(t, "writes", def.Alias)
	assert.Equal(t, Range{First: 10, Last: 20}, def.Cycles)
	assert.Equal(t, 4, def.Threads)
	assert.Equal(t, 5, def.Stride)
	assert.Equal(t, 100.0, def.CycleRate.Rate)
	assert.Equal(t, 2.0, def.CycleRate.BurstRatio)
	assert.Equal(t, 3, def.MaxTries)
	assert.Equal(t, map[string]string{"latency": "5ms", "h.Accept": "application/json"}, def.Params)

	lat, err := def.DurationParam("latency", 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, lat)
	assert.Equal(t, map[string]string{"Accept": "application/json"}, def.ParamsWithPrefix("h."))
	assert.Equal(t, "fallback", def.Param("missing", "fallback"))
	_, err = def.RequireParam("missing")
	assert.ErrorContains(t, err, `requires parameter "missing"`)
	n, err := def.IntParam("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	_, err = def.IntParam("latency", 0)
	assert.Error(t, err)

	assert.Equal(t, "alias=writes;driver=diag;cycles=10..20;threads=4;stride=5;cyclerate=100;h.Accept=application/json;latency=5ms", def.String())
}

func TestParseDef_ThreadsAuto(t *testing.T) {
	def := MustParseDef(map[string]string{"driver": "diag", "threads": "auto"})
	assert.Equal(t, runtime.GOMAXPROCS(0), def.Threads)
}

func TestParseDef_ReportsEveryProblem(t *testing.T) {
	_, err := ParseDef(map[string]string{
		"cycles":    "x",
		"threads":   "0",
		"stride":    "-2",
		"cyclerate": "fast",
		"maxtries":  "none",
	})
	require.Error(t, err)
	for _, want := range []string{"driver is required", "cycles", "threads", "stride", "cyclerate", "maxtries"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDef_WithBindings(t *testing.T) {
	base := MustParseDef(map[string]string{"driver": "diag"})
	specs := []bindings.Spec{{Name: "id", Expr: "Identity()"}}
	d := base.WithBindings(specs...)
	specs[0].Name = "changed"
	assert.Equal(t, "id", d.Bindings[0].Name)
	assert.Empty(t, base.Bindings)
}
