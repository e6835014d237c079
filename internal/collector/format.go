package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// FormatText writes metrics in human-readable format.
func FormatText(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	if m.TotalOps == 0 {
		fmt.Fprintln(w, "No ops recorded")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "cyclegen - Run Results")
	fmt.Fprintln(w, "======================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:      %v\n", m.TestDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Ops:     %s\n", formatNumber(m.TotalOps))
	fmt.Fprintf(w, "Success Rate:  %.1f%% (%s / %s)\n",
		m.SuccessRate, formatNumber(m.SuccessCount), formatNumber(m.SuccessCount+m.FailureCount))
	if m.SkippedCount > 0 {
		fmt.Fprintf(w, "Skipped:       %s\n", formatNumber(m.SkippedCount))
	}
	fmt.Fprintf(w, "Ops/sec:       %.1f\n", m.OpsPerSec)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Service Times:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(m.ServiceTime.Min))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(m.ServiceTime.Avg))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(m.ServiceTime.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(m.ServiceTime.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(m.ServiceTime.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(m.ServiceTime.P99))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(m.ServiceTime.Max))
	fmt.Fprintf(w, "Response Time P99: %s\n", FormatDuration(m.ResponseTime.P99))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Activity:")
	for _, alias := range m.Aliases() {
		am := m.Activities[alias]
		fmt.Fprintf(w, "  %-15s %s ops   avg=%s  p95=%s  p99=%s  failed=%s\n",
			alias, formatNumber(am.Count),
			FormatDuration(am.ServiceTime.Avg),
			FormatDuration(am.ServiceTime.P95),
			FormatDuration(am.ServiceTime.P99),
			formatNumber(am.Failed))
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes metrics in JSON format.
func FormatJSON(w io.Writer, m *Metrics, thresholds *ThresholdResults) error {
	output := struct {
		Duration     string                         `json:"duration"`
		TotalOps     int                            `json:"totalOps"`
		SuccessCount int                            `json:"successCount"`
		FailureCount int                            `json:"failureCount"`
		SkippedCount int                            `json:"skippedCount"`
		SuccessRate  float64                        `json:"successRate"`
		OpsPerSec    float64                        `json:"opsPerSec"`
		ServiceTime  jsonDurationMetrics            `json:"serviceTime"`
		ResponseTime jsonDurationMetrics            `json:"responseTime"`
		Activities   map[string]jsonActivityMetrics `json:"activities"`
		Thresholds   *ThresholdResults              `json:"thresholds,omitempty"`
	}{
		Duration:     m.TestDuration.Round(time.Millisecond).String(),
		TotalOps:     m.TotalOps,
		SuccessCount: m.SuccessCount,
		FailureCount: m.FailureCount,
		SkippedCount: m.SkippedCount,
		SuccessRate:  m.SuccessRate,
		OpsPerSec:    m.OpsPerSec,
		ServiceTime:  toJSONDurationMetrics(m.ServiceTime),
		ResponseTime: toJSONDurationMetrics(m.ResponseTime),
		Activities:   make(map[string]jsonActivityMetrics),
		Thresholds:   thresholds,
	}

	for alias, am := range m.Activities {
		var rate float64
		if executed := am.Success + am.Failed; executed > 0 {
			rate = float64(am.Success) / float64(executed) * 100
		}
		output.Activities[alias] = jsonActivityMetrics{
			Count:        am.Count,
			Success:      am.Success,
			Failed:       am.Failed,
			Skipped:      am.Skipped,
			SuccessRate:  rate,
			ServiceTime:  toJSONDurationMetrics(am.ServiceTime),
			ResponseTime: toJSONDurationMetrics(am.ResponseTime),
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonActivityMetrics struct {
	Count        int                 `json:"count"`
	Success      int                 `json:"success"`
	Failed       int                 `json:"failed"`
	Skipped      int                 `json:"skipped"`
	SuccessRate  float64             `json:"successRate"`
	ServiceTime  jsonDurationMetrics `json:"serviceTime"`
	ResponseTime jsonDurationMetrics `json:"responseTime"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
