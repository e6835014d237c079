package collector

import (
	"sync"
	"testing"
	"time"

	"cyclegen/internal/core"
)

func stride(alias string, first int64, events ...core.Event) core.Stride {
	for i := range events {
		events[i].Alias = alias
		events[i].Cycle = first + int64(i)
	}
	return core.Stride{Alias: alias, First: first, Last: first + int64(len(events)), Events: events}
}

func TestCollector_CollectsStrides(t *testing.T) {
	c := NewCollector()
	c.ReportStride(stride("a", 0, core.Event{Success: true}, core.Event{Success: false}))
	c.ReportStride(stride("b", 0, core.Event{Success: true}))
	c.Close()

	events := c.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestCollector_Compute(t *testing.T) {
	c := NewCollector()
	c.ReportStride(stride("a", 0,
		core.Event{Success: true, ServiceTime: 10 * time.Millisecond},
		core.Event{Success: true, ServiceTime: 20 * time.Millisecond},
		core.Event{Success: false, ServiceTime: 30 * time.Millisecond},
	))
	c.Close()

	m := c.Compute()
	if m.TotalOps != 3 {
		t.Errorf("expected 3 ops, got %d", m.TotalOps)
	}
	if m.SuccessCount != 2 {
		t.Errorf("expected 2 success, got %d", m.SuccessCount)
	}
	if m.FailureCount != 1 {
		t.Errorf("expected 1 failure, got %d", m.FailureCount)
	}
}

func TestComputePercentile(t *testing.T) {
	durations := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	p50 := ComputePercentile(durations, 0.50)
	if p50 != 50 {
		t.Errorf("expected p50=50, got %d", p50)
	}
	p90 := ComputePercentile(durations, 0.90)
	if p90 != 90 {
		t.Errorf("expected p90=90, got %d", p90)
	}
	if got := ComputePercentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0 for empty input, got %d", got)
	}
}

func TestCollector_ThreadSafety(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	motors := 50
	strides := 40

	for m := 0; m < motors; m++ {
		wg.Add(1)
		go func(m int) {
			defer wg.Done()
			for s := 0; s < strides; s++ {
				first := int64(m*strides+s) * 2
				c.ReportStride(stride("a", first, core.Event{Success: true}, core.Event{Success: true}))
			}
		}(m)
	}

	wg.Wait()
	c.Close()

	if got, want := len(c.Events()), motors*strides*2; got != want {
		t.Errorf("expected %d events, got %d", want, got)
	}
	if c.DroppedEvents() != 0 {
		t.Errorf("expected no dropped events, got %d", c.DroppedEvents())
	}
}

func TestCollector_ReportAfterClose(t *testing.T) {
	c := NewCollector()
	c.Close()
	c.Close()
	c.ReportStride(stride("a", 0, core.Event{Success: true}, core.Event{Success: true}))

	if len(c.Events()) != 0 {
		t.Errorf("expected no events after close")
	}
	if c.DroppedEvents() != 2 {
		t.Errorf("expected 2 dropped events, got %d", c.DroppedEvents())
	}
}

func TestCollector_Duration(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(0, 0))
	c := NewCollectorWithClock(clock)

	clock.Advance(3 * time.Second)
	if d := c.Duration(); d != 3*time.Second {
		t.Errorf("expected running duration 3s, got %v", d)
	}

	clock.Advance(2 * time.Second)
	c.Close()
	clock.Advance(time.Hour)
	if d := c.Duration(); d != 5*time.Second {
		t.Errorf("expected closed duration 5s, got %v", d)
	}
}
