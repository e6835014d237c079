package collector

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleMetrics() *Metrics {
	d := DurationMetrics{
		Min: 10 * time.Millisecond,
		Max: 100 * time.Millisecond,
		Avg: 50 * time.Millisecond,
		P50: 45 * time.Millisecond,
		P90: 80 * time.Millisecond,
		P95: 90 * time.Millisecond,
		P99: 98 * time.Millisecond,
	}
	return &Metrics{
		TotalOps:     1200,
		SuccessCount: 1140,
		FailureCount: 60,
		SuccessRate:  95.0,
		OpsPerSec:    120.0,
		TestDuration: 10 * time.Second,
		ServiceTime:  d,
		ResponseTime: d,
		Activities: map[string]*ActivityMetrics{
			"writes": {Count: 200, Success: 190, Failed: 10, ServiceTime: d, ResponseTime: d},
			"reads":  {Count: 1000, Success: 950, Failed: 50, ServiceTime: d, ResponseTime: d},
		},
	}
}

func TestFormatText_BasicOutput(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, sampleMetrics(), nil)
	output := buf.String()

	for _, want := range []string{
		"cyclegen - Run Results",
		"Total Ops:     1,200",
		"Success Rate:  95.0% (1,140 / 1,200)",
		"Ops/sec:       120.0",
		"P99:    98ms",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "Thresholds:") {
		t.Error("expected no thresholds section")
	}
	if strings.Index(output, "reads") > strings.Index(output, "writes") {
		t.Error("expected activities in alias order")
	}
}

func TestFormatText_Empty(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, ComputeMetrics(nil, 0), nil)
	if !strings.Contains(buf.String(), "No ops recorded") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFormatText_Thresholds(t *testing.T) {
	results := &ThresholdResults{
		Passed: false,
		Results: []ThresholdResult{
			{Name: "op_service_time.p99", Passed: true, Threshold: "200ms", Actual: "98ms"},
			{Name: "op_failed.rate", Passed: false, Threshold: "1%", Actual: "5.00%"},
		},
	}

	var buf bytes.Buffer
	FormatText(&buf, sampleMetrics(), results)
	output := buf.String()

	if !strings.Contains(output, "✓ op_service_time.p99 < 200ms (actual: 98ms)") {
		t.Errorf("expected passing threshold line, got: %s", output)
	}
	if !strings.Contains(output, "✗ op_failed.rate < 1% (actual: 5.00%)") {
		t.Errorf("expected failing threshold line, got: %s", output)
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := FormatJSON(&buf, sampleMetrics(), &ThresholdResults{Passed: true}); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var out struct {
		TotalOps   int `json:"totalOps"`
		Activities map[string]struct {
			Count       int     `json:"count"`
			SuccessRate float64 `json:"successRate"`
		} `json:"activities"`
		ServiceTime struct {
			P99 string `json:"p99"`
		} `json:"serviceTime"`
		Thresholds *ThresholdResults `json:"thresholds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.TotalOps != 1200 {
		t.Errorf("expected 1200 ops, got %d", out.TotalOps)
	}
	if out.Activities["reads"].SuccessRate != 95.0 {
		t.Errorf("expected reads success rate 95, got %.1f", out.Activities["reads"].SuccessRate)
	}
	if out.ServiceTime.P99 != "98ms" {
		t.Errorf("expected p99 98ms, got %s", out.ServiceTime.P99)
	}
	if out.Thresholds == nil || !out.Thresholds.Passed {
		t.Error("expected thresholds in output")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
		-5:      "-5",
	}
	for n, want := range tests {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{42 * time.Millisecond, "42ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
