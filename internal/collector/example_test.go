package collector_test

import (
	"fmt"
	"time"

	"cyclegen/internal/collector"
	"cyclegen/internal/core"
)

func ExampleNewCollector() {
	c := collector.NewCollector()

	// Executors report one stride per group of cycles
	c.ReportStride(core.Stride{Alias: "writes", First: 0, Last: 2, Events: []core.Event{
		{Alias: "writes", Cycle: 0, Success: true, ServiceTime: 5 * time.Millisecond},
		{Alias: "writes", Cycle: 1, Success: true, ServiceTime: 7 * time.Millisecond},
	}})

	c.Close()

	fmt.Printf("Collected %d events\n", len(c.Events()))
	// Output: Collected 2 events
}

func ExampleComputeMetrics() {
	events := []core.Event{
		{Alias: "api", Success: true, ServiceTime: 10 * time.Millisecond},
		{Alias: "api", Success: true, ServiceTime: 20 * time.Millisecond},
		{Alias: "api", Success: true, ServiceTime: 30 * time.Millisecond},
		{Alias: "api", Success: false, ServiceTime: 5 * time.Millisecond},
	}

	metrics := collector.ComputeMetrics(events, 1*time.Second)

	fmt.Printf("Total: %d, Success: %d, Rate: %.0f%%\n",
		metrics.TotalOps, metrics.SuccessCount, metrics.SuccessRate)
	// Output: Total: 4, Success: 3, Rate: 75%
}
