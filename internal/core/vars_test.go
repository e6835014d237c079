package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestVars(t *testing.T) {
	vars := NewVars()
	vars.Set("key", "value")
	val, ok := vars.Get("key")
	if !ok || val != "value" {
		t.Errorf("expected 'value', got %v", val)
	}
	_, ok = vars.Get("missing")
	if ok {
		t.Error("expected not found")
	}

	vars.Delete("key")
	if _, ok := vars.Get("key"); ok {
		t.Error("expected key to be deleted")
	}
}

func TestVars_KeysSorted(t *testing.T) {
	vars := NewVars()
	vars.Set("b", 2)
	vars.Set("a", 1)
	vars.Set("c", 3)

	keys := vars.Keys()
	if fmt.Sprint(keys) != "[a b c]" {
		t.Errorf("expected sorted keys [a b c], got %v", keys)
	}

	snap := vars.Snapshot()
	vars.Set("a", 10)
	if snap["a"] != 1 {
		t.Errorf("snapshot should not observe later writes, got %v", snap["a"])
	}
}

func TestVars_ConcurrentAccess(t *testing.T) {
	vars := NewVars()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				vars.Set(fmt.Sprintf("k%d", n), j)
				vars.Get("k0")
				vars.Keys()
			}
		}(i)
	}
	wg.Wait()

	if len(vars.Keys()) != 8 {
		t.Errorf("expected 8 keys, got %d", len(vars.Keys()))
	}
}

func TestContextWithAlias(t *testing.T) {
	ctx := context.Background()
	if alias := AliasFromContext(ctx); alias != "" {
		t.Errorf("expected empty alias, got %q", alias)
	}
	ctx = ContextWithAlias(ctx, "writes")
	if alias := AliasFromContext(ctx); alias != "writes" {
		t.Errorf("expected 'writes', got %q", alias)
	}
}

func TestStrideSinks_FanOut(t *testing.T) {
	a := &StrideRecorder{}
	b := &StrideRecorder{}
	sinks := StrideSinks{a, nil, b}

	sinks.ReportStride(Stride{Alias: "x", First: 0, Last: 10, Events: []Event{{Cycle: 0}}})

	if len(a.Strides()) != 1 || len(b.Strides()) != 1 {
		t.Fatalf("expected both sinks to receive the stride, got %d and %d", len(a.Strides()), len(b.Strides()))
	}
	if a.Strides()[0].Len() != 10 {
		t.Errorf("expected stride length 10, got %d", a.Strides()[0].Len())
	}
	if len(a.Events()) != 1 {
		t.Errorf("expected 1 event, got %d", len(a.Events()))
	}
}
