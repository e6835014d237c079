package collector

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a run. Limits under Activities
// apply to one alias only and are checked in addition to the run-wide ones.
type Thresholds struct {
	OpServiceTime  *DurationThresholds    `yaml:"op_service_time"`
	OpResponseTime *DurationThresholds    `yaml:"op_response_time"`
	OpFailed       *RateThreshold         `yaml:"op_failed"`
	OpSkipped      *RateThreshold         `yaml:"op_skipped"`
	Activities     map[string]*Thresholds `yaml:"activities"`
}

// DurationThresholds are upper limits on timing statistics. Zero means
// unchecked.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// RateThreshold is an upper limit written as a percentage, e.g. "1%".
type RateThreshold struct {
	Rate string `yaml:"rate"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports malformed rates and nested per-activity limits.
func (t *Thresholds) Validate() error {
	if t == nil {
		return nil
	}
	errs := t.validateRates("")
	for _, alias := range t.aliases() {
		a := t.Activities[alias]
		if a == nil {
			continue
		}
		if len(a.Activities) > 0 {
			errs = append(errs, fmt.Errorf("activities.%s: limits cannot nest", alias))
		}
		errs = append(errs, a.validateRates("activities."+alias+".")...)
	}
	return errors.Join(errs...)
}

func (t *Thresholds) validateRates(prefix string) []error {
	var errs []error
	for name, r := range map[string]*RateThreshold{"op_failed": t.OpFailed, "op_skipped": t.OpSkipped} {
		if r == nil || r.Rate == "" {
			continue
		}
		if _, err := parsePercentage(r.Rate); err != nil {
			errs = append(errs, fmt.Errorf("%s%s.rate: %w", prefix, name, err))
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

// ActivityAliases returns the aliases with their own limits, sorted.
func (t *Thresholds) ActivityAliases() []string {
	if t == nil {
		return nil
	}
	return t.aliases()
}

func (t *Thresholds) aliases() []string {
	out := make([]string, 0, len(t.Activities))
	for a := range t.Activities {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// counts is the slice of metrics a set of limits is checked against.
type counts struct {
	success, failed, skipped int
	service, response        DurationMetrics
}

func (c counts) failureRate() float64 {
	if c.success+c.failed == 0 {
		return 0
	}
	return float64(c.failed) / float64(c.success+c.failed) * 100
}

func (c counts) skipRate() float64 {
	total := c.success + c.failed + c.skipped
	if total == 0 {
		return 0
	}
	return float64(c.skipped) / float64(total) * 100
}

// Check evaluates all thresholds against computed metrics. An alias with
// limits but no recorded ops is checked against zero counts.
func (t *Thresholds) Check(m *Metrics) *ThresholdResults {
	results := &ThresholdResults{Passed: true}
	if t == nil {
		return results
	}
	t.check(results, "", counts{
		success:  m.SuccessCount,
		failed:   m.FailureCount,
		skipped:  m.SkippedCount,
		service:  m.ServiceTime,
		response: m.ResponseTime,
	})
	for _, alias := range t.aliases() {
		limits := t.Activities[alias]
		if limits == nil {
			continue
		}
		var c counts
		if am, ok := m.Activities[alias]; ok {
			c = counts{
				success:  am.Success,
				failed:   am.Failed,
				skipped:  am.Skipped,
				service:  am.ServiceTime,
				response: am.ResponseTime,
			}
		}
		limits.check(results, alias+"/", c)
	}
	return results
}

func (t *Thresholds) check(r *ThresholdResults, prefix string, c counts) {
	r.checkDurations(prefix+"op_service_time", t.OpServiceTime, c.service)
	r.checkDurations(prefix+"op_response_time", t.OpResponseTime, c.response)
	r.checkRate(prefix+"op_failed.rate", t.OpFailed, c.failureRate())
	r.checkRate(prefix+"op_skipped.rate", t.OpSkipped, c.skipRate())
}

func (r *ThresholdResults) add(res ThresholdResult) {
	if !res.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, res)
}

func (r *ThresholdResults) checkDurations(name string, limits *DurationThresholds, actual DurationMetrics) {
	if limits == nil {
		return
	}
	checks := []struct {
		stat   string
		limit  time.Duration
		actual time.Duration
	}{
		{"avg", limits.Avg, actual.Avg},
		{"p50", limits.P50, actual.P50},
		{"p90", limits.P90, actual.P90},
		{"p95", limits.P95, actual.P95},
		{"p99", limits.P99, actual.P99},
	}
	for _, c := range checks {
		if c.limit == 0 {
			continue
		}
		r.add(ThresholdResult{
			Name:      name + "." + c.stat,
			Passed:    c.actual < c.limit,
			Threshold: FormatDuration(c.limit),
			Actual:    FormatDuration(c.actual),
		})
	}
}

func (r *ThresholdResults) checkRate(name string, limit *RateThreshold, actual float64) {
	if limit == nil || limit.Rate == "" {
		return
	}
	ceiling, err := parsePercentage(limit.Rate)
	if err != nil {
		return
	}
	r.add(ThresholdResult{
		Name:      name,
		Passed:    actual < ceiling,
		Threshold: limit.Rate,
		Actual:    fmt.Sprintf("%.2f%%", actual),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, ok := strings.CutSuffix(s, "%")
	if !ok {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q", s)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("percentage %s out of range", s)
	}
	return v, nil
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	var out []ThresholdResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}
