// Package op implements the lifecycle of one unit of protocol work.
//
// An op moves Created → Started → Succeeded or Failed. Retry keeps it in
// Started and counts another try. Skip takes it from Created or Started to
// Skipped, which is excluded from success and failure accounting. Every
// terminal state is reached at most once.
//
// Every Start must be followed by exactly one terminal call. An op left in
// Started is counted as in flight by Tracker for as long as it exists.
package op

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"cyclegen/internal/core"
)

// State of an op.
type State int32

const (
	Created State = iota
	Started
	Succeeded
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

// ErrIllegalTransition is returned when a transition is not allowed from the
// op's current state.
var ErrIllegalTransition = errors.New("illegal op transition")

// Op is one cycle's unit of work. Transitions are safe to call from any
// goroutine, but observers are notified on the calling goroutine.
type Op struct {
	Cycle   int64
	Payload any

	mu         sync.Mutex
	clock      core.Clock
	observers  []Observer
	state      State
	status     int
	err        error
	startedAt  time.Time
	endedAt    time.Time
	wait       time.Duration
	tries      int
	skipReason string
}

// New creates an op for cycle carrying payload.
func New(cycle int64, payload any) *Op {
	return &Op{Cycle: cycle, Payload: payload, clock: core.RealClock{}}
}

// WithClock replaces the clock used for timestamps. It must be called before
// Start.
func (o *Op) WithClock(c core.Clock) *Op {
	o.mu.Lock()
	o.clock = c
	o.mu.Unlock()
	return o
}

// Observe appends observers, notified in registration order on every
// transition. It must be called before Start.
func (o *Op) Observe(obs ...Observer) *Op {
	o.mu.Lock()
	for _, ob := range obs {
		if ob != nil {
			o.observers = append(o.observers, ob)
		}
	}
	o.mu.Unlock()
	return o
}

// transition moves from one of the allowed states to next and notifies
// observers outside the lock.
func (o *Op) transition(next State, apply func(now time.Time), allowed ...State) error {
	o.mu.Lock()
	ok := false
	for _, s := range allowed {
		if o.state == s {
			ok = true
			break
		}
	}
	if !ok {
		from := o.state
		o.mu.Unlock()
		return fmt.Errorf("op %d: %s -> %s: %w", o.Cycle, from, next, ErrIllegalTransition)
	}
	prev := o.state
	apply(o.clock.Now())
	o.state = next
	observers := o.observers
	o.mu.Unlock()

	for _, ob := range observers {
		switch {
		case next == Started && prev == Started:
			ob.OpRetried(o)
		case next == Started:
			ob.OpStarted(o)
		case next == Succeeded:
			ob.OpSucceeded(o)
		case next == Failed:
			ob.OpFailed(o)
		case next == Skipped:
			ob.OpSkipped(o, prev)
		}
	}
	return nil
}

// Start records the start time and sets the try count to 1.
func (o *Op) Start() error {
	return o.transition(Started, func(now time.Time) {
		o.startedAt = now
		o.tries = 1
	}, Created)
}

// Retry records a new start time and counts another try.
func (o *Op) Retry() error {
	return o.transition(Started, func(now time.Time) {
		o.startedAt = now
		o.tries++
	}, Started)
}

// Succeed records the end time and status.
func (o *Op) Succeed(status int) error {
	return o.transition(Succeeded, func(now time.Time) {
		o.endedAt = now
		o.status = status
	}, Started)
}

// Fail records the end time, status and cause.
func (o *Op) Fail(status int, err error) error {
	return o.transition(Failed, func(now time.Time) {
		o.endedAt = now
		o.status = status
		o.err = err
	}, Started)
}

// Skip excludes the op from accounting.
func (o *Op) Skip(reason string) error {
	return o.transition(Skipped, func(now time.Time) {
		if o.state == Started {
			o.endedAt = now
		}
		o.skipReason = reason
	}, Created, Started)
}

// AddWait records time spent waiting before the op could run, such as rate
// limiter delay.
func (o *Op) AddWait(d time.Duration) {
	o.mu.Lock()
	o.wait += d
	o.mu.Unlock()
}

// State returns the current state.
func (o *Op) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns the status recorded by the terminal call.
func (o *Op) Status() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Err returns the cause recorded by Fail.
func (o *Op) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Tries returns 1 plus the number of retries, or 0 before Start.
func (o *Op) Tries() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tries
}

func (o *Op) StartedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startedAt
}

func (o *Op) EndedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.endedAt
}

func (o *Op) Wait() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wait
}

func (o *Op) SkipReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipReason
}

// ServiceTime is the time from the last start to the end, or zero before a
// terminal call.
func (o *Op) ServiceTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.serviceTime()
}

func (o *Op) serviceTime() time.Duration {
	if o.endedAt.IsZero() || o.startedAt.IsZero() {
		return 0
	}
	return o.endedAt.Sub(o.startedAt)
}

// ResponseTime is service time plus recorded wait.
func (o *Op) ResponseTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.serviceTime() + o.wait
}

// Result converts a terminal op into an accounting event.
func (o *Op) Result(alias string) core.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	ev := core.Event{
		Alias:        alias,
		Cycle:        o.Cycle,
		Timestamp:    o.startedAt,
		Status:       o.status,
		Tries:        o.tries,
		ServiceTime:  o.serviceTime(),
		ResponseTime: o.serviceTime() + o.wait,
		Success:      o.state == Succeeded,
		Skipped:      o.state == Skipped,
		SkipReason:   o.skipReason,
	}
	if o.err != nil {
		ev.Error = o.err.Error()
	}
	return ev
}

func (o *Op) String() string {
	return fmt.Sprintf("op %d (%s)", o.Cycle, o.State())
}
