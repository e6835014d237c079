package collector

import (
	"sort"
	"time"
)

// Metrics contains aggregated run results.
type Metrics struct {
	TotalOps     int                         `json:"totalOps"`
	SuccessCount int                         `json:"successCount"`
	FailureCount int                         `json:"failureCount"`
	SkippedCount int                         `json:"skippedCount"`
	SuccessRate  float64                     `json:"successRate"`
	OpsPerSec    float64                     `json:"opsPerSec"`
	TestDuration time.Duration               `json:"testDuration"`
	ServiceTime  DurationMetrics             `json:"serviceTime"`
	ResponseTime DurationMetrics             `json:"responseTime"`
	Activities   map[string]*ActivityMetrics `json:"activities"`
}

// FailureRate returns the percentage of executed ops that failed.
func (m *Metrics) FailureRate() float64 {
	if m.SuccessCount+m.FailureCount == 0 {
		return 0
	}
	return 100 - m.SuccessRate
}

// Aliases returns the activity aliases in sorted order.
func (m *Metrics) Aliases() []string {
	out := make([]string, 0, len(m.Activities))
	for a := range m.Activities {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// DurationMetrics contains latency statistics.
type DurationMetrics struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// ActivityMetrics contains per-activity statistics.
type ActivityMetrics struct {
	Count        int             `json:"count"`
	Success      int             `json:"success"`
	Failed       int             `json:"failed"`
	Skipped      int             `json:"skipped"`
	ServiceTime  DurationMetrics `json:"serviceTime"`
	ResponseTime DurationMetrics `json:"responseTime"`
}

// ComputePercentile calculates the percentile value from a sorted slice of durations.
// The percentile p should be between 0 and 1 (e.g., 0.95 for p95).
// The slice must be sorted in ascending order.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	// nearest rank
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// ComputeDurationMetrics calculates all duration statistics from a slice of durations.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}
