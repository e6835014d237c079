package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cyclegen/internal/core"
	"cyclegen/internal/op"
	"cyclegen/internal/ratelimit"
)

// State of an executor.
type State int32

const (
	Created State = iota
	Starting
	Running
	Stopping
	Stopped
	Finished
	Errored
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool {
	return s == Stopped || s == Finished || s == Errored
}

var (
	// ErrAlreadyRun is returned when Run is called more than once.
	ErrAlreadyRun = errors.New("executor already run")
	// ErrPanic wraps a panic recovered from a dispenser.
	ErrPanic = errors.New("panic in activity")
	// ErrForceStopped is the cancellation cause seen by motors after the
	// ForceStop grace period. It is not reported as the run's error.
	ErrForceStopped = errors.New("activity force stopped")
)

// ExecutionResult is the outcome of one run.
type ExecutionResult struct {
	Alias string
	State State
	Err   error
	// Interrupted is set when motors were cancelled or abandoned rather than
	// stopping between ops.
	Interrupted bool
	Started     time.Time
	Ended       time.Time
	Cycles      int64
	Ops         op.TrackerCounts
}

// Duration is the wall time of the run.
func (r ExecutionResult) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Ended.Sub(r.Started)
}

// Handle is the completion handle of a run.
type Handle struct {
	e *Executor
}

// Done is closed once the run is terminal.
func (h Handle) Done() <-chan struct{} {
	return h.e.done
}

// Wait blocks until the run is terminal or ctx is done.
func (h Handle) Wait(ctx context.Context) (ExecutionResult, error) {
	select {
	case <-h.e.done:
		return h.e.result, nil
	case <-ctx.Done():
		return ExecutionResult{}, ctx.Err()
	}
}

// Result returns the outcome if the run is terminal.
func (h Handle) Result() (ExecutionResult, bool) {
	select {
	case <-h.e.done:
		return h.e.result, true
	default:
		return ExecutionResult{}, false
	}
}

// Option configures an Executor.
type Option func(*Executor)

// WithSink sets the receiver of completed strides.
func WithSink(s core.StrideSink) Option {
	return func(e *Executor) { e.sink = s }
}

// WithObservers adds op observers, notified after the executor's own tracker.
func WithObservers(obs ...op.Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, obs...) }
}

// WithClock sets the clock used for op timing.
func WithClock(c core.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// forceSettle is how long ForceStop waits after cancelling before it
// abandons motors.
const forceSettle = 100 * time.Millisecond

// Executor runs the cycle loop of one activity with Def.Threads motors.
type Executor struct {
	def       Def
	input     Input
	disp      Dispenser
	sink      core.StrideSink
	observers []op.Observer
	clock     core.Clock
	logger    *slog.Logger
	limiter   *ratelimit.RateLimiter
	tracker   *op.Tracker

	state     atomic.Int32
	online    atomic.Int32
	running   atomic.Int32
	completed atomic.Int64

	stopOnce      sync.Once
	stopCh        chan struct{}
	interruptOnce sync.Once
	interrupt     chan struct{}

	startMu sync.Mutex
	started time.Time

	upOnce     sync.Once
	up         chan struct{}
	finishOnce sync.Once
	done       chan struct{}
	result     ExecutionResult
}

// NewExecutor creates an executor for def reading cycles from input and
// producing ops with disp.
func NewExecutor(def Def, input Input, disp Dispenser, opts ...Option) *Executor {
	e := &Executor{
		def:       def,
		input:     input,
		disp:      disp,
		clock:     core.RealClock{},
		logger:    slog.Default(),
		tracker:   &op.Tracker{},
		stopCh:    make(chan struct{}),
		interrupt: make(chan struct{}),
		up:        make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = core.StrideSinks(nil)
	}
	if def.CycleRate.Rate > 0 {
		e.limiter = ratelimit.NewRateLimiter(def.CycleRate)
	}
	e.observers = append([]op.Observer{e.tracker}, e.observers...)
	return e
}

// Def returns the definition the executor runs.
func (e *Executor) Def() Def { return e.def }

// State returns the current state.
func (e *Executor) State() State { return State(e.state.Load()) }

// Motors returns the number of motors currently running.
func (e *Executor) Motors() int { return int(e.running.Load()) }

// Completed returns the number of cycles processed so far.
func (e *Executor) Completed() int64 { return e.completed.Load() }

// Ops returns live op counts.
func (e *Executor) Ops() op.TrackerCounts { return e.tracker.Counts() }

// Handle returns the completion handle.
func (e *Executor) Handle() Handle { return Handle{e: e} }

// SetCycleRate changes the cycle rate of a running activity. It reports
// false when the activity was started without a rate.
func (e *Executor) SetCycleRate(spec ratelimit.Spec) bool {
	if e.limiter == nil {
		return false
	}
	e.limiter.SetSpec(spec)
	return true
}

// CycleRate returns the current rate in ops/s, or 0 when unlimited.
func (e *Executor) CycleRate() float64 {
	if e.limiter == nil {
		return 0
	}
	return e.limiter.Rate()
}

// Run executes the activity until the input is exhausted, it is stopped, ctx
// is cancelled or a motor fails. It returns the run's error.
func (e *Executor) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(Created), int32(Starting)) {
		if e.State().Terminal() {
			<-e.done
			return e.result.Err
		}
		return ErrAlreadyRun
	}
	// drivers read the alias back with core.AliasFromContext
	ctx, cancel := context.WithCancel(core.ContextWithAlias(ctx, e.def.Alias))
	defer cancel()
	e.startMu.Lock()
	e.started = e.clock.Now()
	e.startMu.Unlock()

	log := e.logger.With(slog.String("alias", e.def.Alias))
	log.Info("activity starting",
		slog.String("driver", e.def.Driver),
		slog.String("cycles", e.def.Cycles.String()),
		slog.Int("threads", e.def.Threads),
		slog.Int("stride", e.def.Stride),
	)

	if s, ok := e.input.(Starter); ok {
		if err := e.startInput(ctx, s); err != nil {
			if e.interrupted() {
				e.finish(Stopped, nil, true)
				return nil
			}
			err = fmt.Errorf("activity %s: start input: %w", e.def.Alias, err)
			e.finish(Errored, err, false)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	motorsDone := make(chan struct{})
	var motors sync.WaitGroup

	// Lifetime monitor: a force stop fails the scope, cancelling every motor.
	g.Go(func() error {
		select {
		case <-motorsDone:
			return nil
		case <-e.interrupt:
			return ErrForceStopped
		case <-gctx.Done():
			<-motorsDone
			return nil
		}
	})
	for i := 0; i < e.def.Threads; i++ {
		motors.Add(1)
		g.Go(func() error {
			defer motors.Done()
			return e.motor(gctx, i)
		})
	}
	go func() {
		motors.Wait()
		close(motorsDone)
	}()

	err := g.Wait()
	forced := errors.Is(err, ErrForceStopped)
	if forced {
		err = nil
	}
	interrupted := forced || (ctx.Err() != nil && err == nil)
	switch {
	case err != nil:
		e.finish(Errored, err, false)
	case e.stopRequested() || interrupted:
		e.finish(Stopped, nil, interrupted)
	default:
		e.finish(Finished, nil, false)
	}

	res := e.result
	attrs := []any{
		slog.String("state", res.State.String()),
		slog.Duration("duration", res.Duration()),
		slog.Int64("cycles", res.Cycles),
	}
	if res.Err != nil {
		log.Error("activity failed", append(attrs, slog.Any("error", res.Err))...)
	} else {
		log.Info("activity ended", attrs...)
	}
	return res.Err
}

// startInput activates the input. A force stop cancels the activation.
func (e *Executor) startInput(ctx context.Context, s Starter) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-e.interrupt:
			cancel(ErrForceStopped)
		case <-ctx.Done():
		}
	}()
	return s.Start(ctx)
}

func (e *Executor) markUp() {
	e.upOnce.Do(func() {
		e.state.CompareAndSwap(int32(Starting), int32(Running))
		close(e.up)
	})
}

func (e *Executor) motor(ctx context.Context, id int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activity %s motor %d: %w: %v", e.def.Alias, id, ErrPanic, r)
		}
	}()
	e.running.Add(1)
	defer e.running.Add(-1)
	if int(e.online.Add(1)) == e.def.Threads {
		e.markUp()
	}

	for {
		if e.stopRequested() || ctx.Err() != nil {
			return nil
		}
		seg, err := e.input.NextSegment(e.def.Stride)
		if errors.Is(err, ErrExhausted) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("activity %s motor %d: %w", e.def.Alias, id, err)
		}
		if err := e.runSegment(ctx, seg); err != nil {
			return err
		}
	}
}

// runSegment processes one stride and reports it, including a partial stride
// cut short by a stop.
func (e *Executor) runSegment(ctx context.Context, seg Segment) error {
	events := make([]core.Event, 0, seg.Len())
	last := seg.First
	var err error
	for c := seg.First; c < seg.Last; c++ {
		if e.stopRequested() || ctx.Err() != nil {
			break
		}
		var (
			ev core.Event
			ok bool
		)
		ev, ok, err = e.cycle(ctx, c)
		if err != nil || !ok {
			break
		}
		events = append(events, ev)
		last = c + 1
		e.completed.Add(1)
	}
	if last > seg.First {
		e.sink.ReportStride(core.Stride{Alias: e.def.Alias, First: seg.First, Last: last, Events: events})
	}
	return err
}

// cycle runs one op. ok is false when the cycle was abandoned because ctx
// ended while waiting for the rate limiter.
func (e *Executor) cycle(ctx context.Context, c int64) (core.Event, bool, error) {
	var wait time.Duration
	if e.limiter != nil {
		w, err := e.limiter.Wait(ctx)
		if err != nil {
			return core.Event{}, false, nil
		}
		wait = w
	}

	o, err := e.disp.Dispense(c)
	if err != nil {
		return core.Event{}, false, fmt.Errorf("activity %s: dispense cycle %d: %w", e.def.Alias, c, err)
	}
	o.WithClock(e.clock).Observe(e.observers...)
	o.AddWait(wait)

	if o.State() == op.Created {
		if err := o.Start(); err != nil {
			return core.Event{}, false, err
		}
	}
	if o.State() == op.Started {
		status, xerr := e.disp.Execute(ctx, o)
		if o.State() == op.Started {
			if xerr != nil {
				_ = o.Fail(status, xerr)
			} else {
				_ = o.Succeed(status)
			}
		}
	}
	return o.Result(e.def.Alias), true, nil
}

func (e *Executor) finish(s State, err error, interrupted bool) {
	e.finishOnce.Do(func() {
		e.startMu.Lock()
		started := e.started
		e.startMu.Unlock()
		e.result = ExecutionResult{
			Alias:       e.def.Alias,
			State:       s,
			Err:         err,
			Interrupted: interrupted,
			Started:     started,
			Ended:       e.clock.Now(),
			Cycles:      e.completed.Load(),
			Ops:         e.tracker.Counts(),
		}
		e.state.Store(int32(s))
		close(e.done)
	})
}

func (e *Executor) interrupted() bool {
	select {
	case <-e.interrupt:
		return true
	default:
		return false
	}
}

func (e *Executor) stopRequested() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

// AwaitMotorsRunningOrTerminal blocks until every motor is running or the
// run is terminal.
func (e *Executor) AwaitMotorsRunningOrTerminal(ctx context.Context) error {
	select {
	case <-e.up:
		return nil
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks motors to stop at the next op boundary. It does not wait.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	for {
		s := e.state.Load()
		if State(s) != Starting && State(s) != Running {
			break
		}
		if e.state.CompareAndSwap(s, int32(Stopping)) {
			break
		}
	}
	if e.state.CompareAndSwap(int32(Created), int32(Stopped)) {
		e.finishOnce.Do(func() {
			e.result = ExecutionResult{Alias: e.def.Alias, State: Stopped}
			close(e.done)
		})
	}
}

// ForceStop stops cooperatively and waits up to grace. Motors still running
// then have their context cancelled with cause ErrForceStopped; any that
// ignore cancellation are
// abandoned and the run is marked terminal and interrupted. It reports
// whether every motor exited.
func (e *Executor) ForceStop(grace time.Duration) bool {
	e.Stop()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-e.done:
		return true
	case <-timer.C:
	}

	e.interruptOnce.Do(func() { close(e.interrupt) })
	settle := time.NewTimer(forceSettle)
	defer settle.Stop()
	select {
	case <-e.done:
		return true
	case <-settle.C:
	}

	e.logger.Warn("abandoning motors that ignore cancellation",
		slog.String("alias", e.def.Alias),
		slog.Int("motors", e.Motors()),
	)
	e.finish(Stopped, nil, true)
	return false
}
