package activity

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
)

// ErrExhausted is returned by an Input with no cycles left.
var ErrExhausted = errors.New("cycle input exhausted")

// Segment is a half-open run of cycles handed to one motor.
type Segment struct {
	First int64
	Last  int64
}

// Len returns the number of cycles in the segment.
func (s Segment) Len() int64 {
	return s.Last - s.First
}

// Input hands out cycles. Each cycle is handed out exactly once, in
// increasing order across calls. Implementations must be safe for concurrent
// use.
type Input interface {
	NextSegment(stride int) (Segment, error)
}

// Starter is implemented by inputs that must be activated before use.
type Starter interface {
	Start(ctx context.Context) error
}

// Resetter is implemented by inputs that can be restarted from the
// beginning.
type Resetter interface {
	Reset()
}

// IntervalInput hands out the cycles of a Range.
type IntervalInput struct {
	r    Range
	next atomic.Int64
}

// NewIntervalInput creates an input over r.
func NewIntervalInput(r Range) *IntervalInput {
	in := &IntervalInput{r: r}
	in.next.Store(r.First)
	return in
}

// NextSegment claims up to stride cycles.
func (in *IntervalInput) NextSegment(stride int) (Segment, error) {
	if stride < 1 {
		stride = 1
	}
	for {
		cur := in.next.Load()
		limit := in.r.Last
		if in.r.Unbounded {
			limit = math.MaxInt64
		}
		if cur >= limit {
			return Segment{}, ErrExhausted
		}
		end := cur + int64(stride)
		if end > limit || end < cur {
			end = limit
		}
		if in.next.CompareAndSwap(cur, end) {
			return Segment{First: cur, Last: end}, nil
		}
	}
}

// Reset restarts the input at the first cycle.
func (in *IntervalInput) Reset() {
	in.next.Store(in.r.First)
}

// Remaining returns the cycles not yet handed out, or -1 when unbounded.
func (in *IntervalInput) Remaining() int64 {
	if in.r.Unbounded {
		return -1
	}
	return max(0, in.r.Last-in.next.Load())
}
