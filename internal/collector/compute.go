package collector

import (
	"time"

	"cyclegen/internal/core"
)

// ComputeMetrics computes metrics from events. Pure function, no side effects.
// Skipped ops are counted but excluded from timings, the success rate and
// the op rate.
func ComputeMetrics(events []core.Event, testDuration time.Duration) *Metrics {
	m := &Metrics{
		Activities:   make(map[string]*ActivityMetrics),
		TestDuration: testDuration,
	}

	if len(events) == 0 {
		return m
	}

	var service, response []time.Duration
	perService := make(map[string][]time.Duration)
	perResponse := make(map[string][]time.Duration)

	for _, e := range events {
		m.TotalOps++
		am, ok := m.Activities[e.Alias]
		if !ok {
			am = &ActivityMetrics{}
			m.Activities[e.Alias] = am
		}
		am.Count++

		switch {
		case e.Skipped:
			m.SkippedCount++
			am.Skipped++
			continue
		case e.Success:
			m.SuccessCount++
			am.Success++
		default:
			m.FailureCount++
			am.Failed++
		}

		service = append(service, e.ServiceTime)
		response = append(response, e.ResponseTime)
		perService[e.Alias] = append(perService[e.Alias], e.ServiceTime)
		perResponse[e.Alias] = append(perResponse[e.Alias], e.ResponseTime)
	}

	executed := m.SuccessCount + m.FailureCount
	if executed > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(executed) * 100
	}

	if m.TestDuration > 0 {
		m.OpsPerSec = float64(executed) / m.TestDuration.Seconds()
	}

	m.ServiceTime = ComputeDurationMetrics(service)
	m.ResponseTime = ComputeDurationMetrics(response)

	for alias, am := range m.Activities {
		am.ServiceTime = ComputeDurationMetrics(perService[alias])
		am.ResponseTime = ComputeDurationMetrics(perResponse[alias])
	}

	return m
}
