package collector

import (
	"strings"
	"testing"
	"time"
)

func TestThresholds_NilPasses(t *testing.T) {
	var th *Thresholds
	r := th.Check(&Metrics{})
	if !r.Passed || len(r.Results) != 0 {
		t.Errorf("expected nil thresholds to pass, got %+v", r)
	}
	if err := th.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestThresholds_ServiceTime(t *testing.T) {
	th := &Thresholds{OpServiceTime: &DurationThresholds{
		P50: 50 * time.Millisecond,
		P99: 90 * time.Millisecond,
	}}
	m := &Metrics{ServiceTime: DurationMetrics{P50: 40 * time.Millisecond, P99: 98 * time.Millisecond}}

	r := th.Check(m)
	if r.Passed {
		t.Error("expected p99 violation")
	}
	if len(r.Results) != 2 {
		t.Fatalf("expected 2 results for the configured percentiles, got %d", len(r.Results))
	}
	v := r.Violations()
	if len(v) != 1 || v[0].Name != "op_service_time.p99" {
		t.Errorf("unexpected violations: %+v", v)
	}
}

func TestThresholds_FailureRate(t *testing.T) {
	th := &Thresholds{OpFailed: &RateThreshold{Rate: "5%"}}

	r := th.Check(&Metrics{SuccessCount: 97, FailureCount: 3, SuccessRate: 97})
	if !r.Passed {
		t.Errorf("expected 3%% failures to pass a 5%% threshold: %+v", r.Results)
	}
	if r.Results[0].Actual != "3.00%" {
		t.Errorf("unexpected actual rate %q", r.Results[0].Actual)
	}

	r = th.Check(&Metrics{SuccessCount: 90, FailureCount: 10, SuccessRate: 90})
	if r.Passed {
		t.Error("expected 10% failures to violate a 5% threshold")
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := (&Thresholds{OpFailed: &RateThreshold{Rate: "1%"}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&Thresholds{OpFailed: &RateThreshold{Rate: "one"}}).Validate(); err == nil {
		t.Error("expected error for malformed rate")
	}
}

func TestThresholds_ResponseTimeAndSkipRate(t *testing.T) {
	th := &Thresholds{
		OpResponseTime: &DurationThresholds{P95: 100 * time.Millisecond},
		OpSkipped:      &RateThreshold{Rate: "10%"},
	}
	m := &Metrics{
		SuccessCount: 80,
		SkippedCount: 20,
		ResponseTime: DurationMetrics{P95: 60 * time.Millisecond},
	}

	r := th.Check(m)
	if r.Passed {
		t.Fatal("expected the 20% skip rate to violate a 10% threshold")
	}
	v := r.Violations()
	if len(v) != 1 || v[0].Name != "op_skipped.rate" || v[0].Actual != "20.00%" {
		t.Errorf("unexpected violations: %+v", v)
	}
}

func TestThresholds_PerActivity(t *testing.T) {
	th := &Thresholds{
		OpFailed: &RateThreshold{Rate: "50%"},
		Activities: map[string]*Thresholds{
			"writes": {OpFailed: &RateThreshold{Rate: "1%"}},
			"idle":   {OpFailed: &RateThreshold{Rate: "1%"}},
		},
	}
	m := &Metrics{
		SuccessCount: 190,
		FailureCount: 10,
		SuccessRate:  95,
		Activities: map[string]*ActivityMetrics{
			"writes": {Count: 100, Success: 90, Failed: 10},
			"reads":  {Count: 100, Success: 100},
		},
	}

	r := th.Check(m)
	if r.Passed {
		t.Fatal("expected writes to violate its own limit")
	}
	names := make([]string, len(r.Results))
	for i, res := range r.Results {
		names[i] = res.Name
	}
	want := []string{"op_failed.rate", "idle/op_failed.rate", "writes/op_failed.rate"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("results = %v, want %v", names, want)
	}
	v := r.Violations()
	if len(v) != 1 || v[0].Name != "writes/op_failed.rate" || v[0].Actual != "10.00%" {
		t.Errorf("unexpected violations: %+v", v)
	}
}

func TestThresholds_ValidateNested(t *testing.T) {
	th := &Thresholds{
		OpSkipped: &RateThreshold{Rate: "120%"},
		Activities: map[string]*Thresholds{
			"a": {
				OpFailed:   &RateThreshold{Rate: "x%"},
				Activities: map[string]*Thresholds{"b": {}},
			},
		},
	}
	err := th.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"op_skipped.rate", "activities.a.op_failed.rate", "cannot nest"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
	if got := th.ActivityAliases(); len(got) != 1 || got[0] != "a" {
		t.Errorf("ActivityAliases() = %v", got)
	}
}
