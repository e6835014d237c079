// Package ratelimit paces cycles to a target rate.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Spec is a parsed cyclerate: ops per second and a burst ratio. A zero Rate
// means unlimited.
type Spec struct {
	Rate       float64
	BurstRatio float64
}

// ParseSpec parses "rate" or "rate,burstratio". The burst ratio defaults to
// 1.1 and must be at least 1.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{BurstRatio: 1.1}
	s = strings.TrimSpace(s)
	if s == "" {
		return spec, nil
	}
	rateStr, burstStr, hasBurst := strings.Cut(s, ",")
	r, err := strconv.ParseFloat(strings.TrimSpace(rateStr), 64)
	if err != nil || r < 0 || math.IsInf(r, 0) || math.IsNaN(r) {
		return Spec{}, fmt.Errorf("invalid cycle rate %q", rateStr)
	}
	spec.Rate = r
	if hasBurst {
		b, err := strconv.ParseFloat(strings.TrimSpace(burstStr), 64)
		if err != nil || b < 1 {
			return Spec{}, fmt.Errorf("invalid burst ratio %q (must be >= 1)", burstStr)
		}
		spec.BurstRatio = b
	}
	return spec, nil
}

// Burst is the number of ops allowed back to back.
func (s Spec) Burst() int {
	return max(1, int(math.Ceil(s.Rate*s.BurstRatio)))
}

func (s Spec) String() string {
	if s.Rate == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%g/s burst %g", s.Rate, s.BurstRatio)
}

// RateLimiter is shared by every motor of an activity.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// NewRateLimiter creates a limiter for spec.
func NewRateLimiter(spec Spec) *RateLimiter {
	if spec.Rate == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(0, 0)}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(spec.Rate), spec.Burst()),
	}
}

// Wait blocks until the next op may run and returns how long it waited.
func (r *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	r.mu.RLock()
	limiter := r.limiter
	limit := limiter.Limit()
	r.mu.RUnlock()

	// If rate limit is 0, don't wait (no rate limiting)
	if limit == 0 {
		return 0, ctx.Err()
	}
	start := time.Now()
	err := limiter.Wait(ctx)
	return time.Since(start), err
}

// SetSpec changes the rate while motors are running.
func (r *RateLimiter) SetSpec(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetLimit(rate.Limit(spec.Rate))
	if spec.Rate == 0 {
		r.limiter.SetBurst(0)
		return
	}
	r.limiter.SetBurst(spec.Burst())
}

// Rate returns the current ops per second, zero when unlimited.
func (r *RateLimiter) Rate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(r.limiter.Limit())
}
