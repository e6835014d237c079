// Package controller starts, stops and awaits the activities of one
// container.
//
// Mutations (Start, Run, Stop, ForceStop, Remove, Shutdown) are serialized
// so two starts of the same alias cannot race. Queries read the registry
// under a read lock and may run concurrently with a mutation.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cyclegen/internal/activity"
	"cyclegen/internal/core"
	"cyclegen/internal/op"
	"cyclegen/internal/ratelimit"
	"cyclegen/internal/resolver"
)

var (
	// ErrUnknownAlias is returned for an alias that is not registered.
	ErrUnknownAlias = errors.New("unknown activity alias")
	// ErrNoMatch is returned for a pattern that matches no alias.
	ErrNoMatch = errors.New("no activity matches")
	// ErrTimeout is returned by Run when the activity outlives its timeout.
	ErrTimeout = errors.New("timed out awaiting activity")
	// ErrStillRunning is returned when removing an activity that is not
	// terminal.
	ErrStillRunning = errors.New("activity still running")
	// ErrShutdown is returned by Start after Shutdown.
	ErrShutdown = errors.New("controller shut down")
	// ErrNoCycleRate is returned when changing the rate of an activity
	// started without a cyclerate.
	ErrNoCycleRate = errors.New("activity has no cyclerate")
)

// RuntimeInfo pairs a started activity with its executor and completion
// handle.
type RuntimeInfo struct {
	Activity *activity.Activity
	Executor *activity.Executor
	Started  time.Time
}

// Alias returns the activity alias.
func (ri *RuntimeInfo) Alias() string { return ri.Activity.Def.Alias }

// State returns the executor state.
func (ri *RuntimeInfo) State() activity.State { return ri.Executor.State() }

// Handle returns the completion handle.
func (ri *RuntimeInfo) Handle() activity.Handle { return ri.Executor.Handle() }

// ObserverFactory builds extra op observers for an activity.
type ObserverFactory func(def activity.Def) []op.Observer

// Option configures a Controller.
type Option func(*Controller)

// WithSink sets the receiver of every activity's strides.
func WithSink(s core.StrideSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithObservers adds op observers built per activity.
func WithObservers(f ObserverFactory) Option {
	return func(c *Controller) { c.observers = f }
}

// WithCompletionHook registers a function called once per run after it
// becomes terminal.
func WithCompletionHook(f func(activity.ExecutionResult)) Option {
	return func(c *Controller) { c.onEnd = f }
}

// InputFactory builds the cycle input of a run.
type InputFactory func(def activity.Def) activity.Input

// WithInputs sets the factory of cycle inputs. By default each run reads
// its definition's cycle range.
func WithInputs(f InputFactory) Option {
	return func(c *Controller) { c.inputs = f }
}

// WithClock sets the clock used for op timing.
func WithClock(clock core.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// Controller is the registry and control surface of a container's
// activities.
type Controller struct {
	resolver  *resolver.Resolver
	drivers   *activity.DriverTable
	sink      core.StrideSink
	logger    *slog.Logger
	observers ObserverFactory
	onEnd     func(activity.ExecutionResult)
	inputs    InputFactory
	clock     core.Clock

	ctx    context.Context
	cancel context.CancelFunc

	writeMu    sync.Mutex
	mu         sync.RWMutex
	activities map[string]*RuntimeInfo
	shutdown   bool
}

// New creates a controller resolving bindings with r and opening drivers
// from drivers.
func New(r *resolver.Resolver, drivers *activity.DriverTable, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		resolver:   r,
		drivers:    drivers,
		logger:     slog.Default(),
		clock:      core.RealClock{},
		ctx:        ctx,
		cancel:     cancel,
		activities: make(map[string]*RuntimeInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) lookup(alias string) (*RuntimeInfo, error) {
	c.mu.RLock()
	ri, ok := c.activities[alias]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAlias, alias)
	}
	return ri, nil
}

func (c *Controller) snapshot() []*RuntimeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RuntimeInfo, 0, len(c.activities))
	for _, ri := range c.activities {
		out = append(out, ri)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias() < out[j].Alias() })
	return out
}

// Start loads and launches def unless its alias is already running, in which
// case the existing runtime info is returned. It returns once every motor is
// running or the run is already terminal. A terminal run under the same
// alias is replaced; its input is reset and reused when it is restartable
// and the cycle range is unchanged.
func (c *Controller) Start(def activity.Def) (*RuntimeInfo, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.shutdown {
		return nil, ErrShutdown
	}

	c.mu.RLock()
	existing, ok := c.activities[def.Alias]
	c.mu.RUnlock()
	if ok && !existing.State().Terminal() {
		return existing, nil
	}

	act, err := activity.Load(c.ctx, def, c.resolver, c.drivers)
	if err != nil {
		return nil, err
	}
	if !ok {
		existing = nil
	}
	act.Input = c.input(def, existing)

	observers := []op.Observer{op.NewLoggingObserver(c.logger, def.Alias)}
	if c.observers != nil {
		observers = append(observers, c.observers(def)...)
	}
	opts := []activity.Option{
		activity.WithLogger(c.logger),
		activity.WithClock(c.clock),
		activity.WithObservers(observers...),
	}
	if c.sink != nil {
		opts = append(opts, activity.WithSink(c.sink))
	}
	exec := act.NewExecutor(opts...)
	ri := &RuntimeInfo{Activity: act, Executor: exec, Started: c.clock.Now()}

	c.mu.Lock()
	c.activities[def.Alias] = ri
	c.mu.Unlock()

	go func() {
		_ = exec.Run(c.ctx)
		if err := act.Close(); err != nil {
			c.logger.Warn("closing driver", slog.String("alias", def.Alias), slog.Any("error", err))
		}
	}()
	go func() {
		<-exec.Handle().Done()
		if res, ok := exec.Handle().Result(); ok && c.onEnd != nil {
			c.onEnd(res)
		}
	}()

	if err := exec.AwaitMotorsRunningOrTerminal(c.ctx); err != nil {
		return ri, err
	}
	return ri, nil
}

// input picks the cycle input of a new run under def.Alias. prev is the
// terminal run being replaced, or nil.
func (c *Controller) input(def activity.Def, prev *RuntimeInfo) activity.Input {
	if prev != nil && prev.Activity.Def.Cycles == def.Cycles && prev.Executor.Motors() == 0 {
		if r, ok := prev.Activity.Input.(activity.Resetter); ok {
			r.Reset()
			c.logger.Debug("reusing cycle input", slog.String("alias", def.Alias))
			return prev.Activity.Input
		}
	}
	if c.inputs != nil {
		return c.inputs(def)
	}
	return activity.NewIntervalInput(def.Cycles)
}

// SetCycleRate changes the cycle rate of a registered activity.
func (c *Controller) SetCycleRate(alias string, spec ratelimit.Spec) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ri, err := c.lookup(alias)
	if err != nil {
		return err
	}
	if !ri.Executor.SetCycleRate(spec) {
		return fmt.Errorf("%w: %s", ErrNoCycleRate, alias)
	}
	c.logger.Info("cycle rate changed", slog.String("alias", alias), slog.String("rate", spec.String()))
	return nil
}

// Run starts def and waits up to timeout for it to end. The activity's own
// error is returned with its result.
func (c *Controller) Run(def activity.Def, timeout time.Duration) (activity.ExecutionResult, error) {
	ri, err := c.Start(def)
	if err != nil {
		return activity.ExecutionResult{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	res, err := ri.Handle().Wait(ctx)
	if err != nil {
		return activity.ExecutionResult{}, fmt.Errorf("%w %s after %v", ErrTimeout, def.Alias, timeout)
	}
	return res, res.Err
}

// Stop asks every activity matching spec to stop at its next op boundary.
// Nothing is stopped when any pattern in spec fails to match.
func (c *Controller) Stop(spec string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ris, err := c.matching(spec)
	if err != nil {
		return err
	}
	for _, ri := range ris {
		c.logger.Info("stopping activity", slog.String("alias", ri.Alias()))
		ri.Executor.Stop()
	}
	return nil
}

// ForceStop stops every activity matching spec, cancelling any still running
// after grace. Activities are stopped concurrently, so the call returns after
// about grace at most.
func (c *Controller) ForceStop(spec string, grace time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ris, err := c.matching(spec)
	if err != nil {
		return err
	}
	c.forceStop(ris, grace)
	return nil
}

// StopActivities stops every activity.
func (c *Controller) StopActivities() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, ri := range c.snapshot() {
		ri.Executor.Stop()
	}
}

// ForceStopActivities force-stops every activity with one shared grace
// period.
func (c *Controller) ForceStopActivities(grace time.Duration) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.forceStop(c.snapshot(), grace)
}

func (c *Controller) forceStop(ris []*RuntimeInfo, grace time.Duration) {
	var wg sync.WaitGroup
	for _, ri := range ris {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !ri.Executor.ForceStop(grace) {
				c.logger.Warn("activity abandoned after grace period",
					slog.String("alias", ri.Alias()),
					slog.Duration("grace", grace),
				)
			}
		}()
	}
	wg.Wait()
}

func (c *Controller) matching(spec string) ([]*RuntimeInfo, error) {
	aliases, err := match(spec, c.Aliases())
	if err != nil {
		return nil, err
	}
	out := make([]*RuntimeInfo, 0, len(aliases))
	for _, a := range aliases {
		ri, err := c.lookup(a)
		if err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, nil
}

// AwaitActivity waits up to timeout for alias to end. It reports false on
// timeout and returns the activity's error otherwise.
func (c *Controller) AwaitActivity(alias string, timeout time.Duration) (bool, error) {
	ri, err := c.lookup(alias)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	res, err := ri.Handle().Wait(ctx)
	if err != nil {
		return false, nil
	}
	return true, res.Err
}

// AwaitCompletion waits for every registered activity, sharing one timeout.
// It reports false if any activity is still running when the timeout
// expires. After every activity has been awaited it returns the first
// activity error in alias order.
func (c *Controller) AwaitCompletion(timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	complete := true
	var firstErr error
	for _, ri := range c.snapshot() {
		res, err := ri.Handle().Wait(ctx)
		if err != nil {
			complete = false
			continue
		}
		if res.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("activity %s: %w", ri.Alias(), res.Err)
		}
	}
	return complete, firstErr
}

// IsRunningActivity reports whether alias is registered and not terminal.
func (c *Controller) IsRunningActivity(alias string) bool {
	ri, err := c.lookup(alias)
	return err == nil && !ri.State().Terminal()
}

// Aliases returns the registered aliases in sorted order.
func (c *Controller) Aliases() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.activities))
	for a := range c.activities {
		out = append(out, a)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Activity returns the loaded activity registered under alias.
func (c *Controller) Activity(alias string) (*activity.Activity, error) {
	ri, err := c.lookup(alias)
	if err != nil {
		return nil, err
	}
	return ri.Activity, nil
}

// RuntimeInfo returns the runtime info registered under alias.
func (c *Controller) RuntimeInfo(alias string) (*RuntimeInfo, error) {
	return c.lookup(alias)
}

// Remove drops a terminal activity from the registry.
func (c *Controller) Remove(alias string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ri, err := c.lookup(alias)
	if err != nil {
		return err
	}
	if !ri.State().Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrStillRunning, alias, ri.State())
	}
	c.mu.Lock()
	delete(c.activities, alias)
	c.mu.Unlock()
	return nil
}

// Shutdown cancels every activity immediately without a grace period.
// Further starts fail with ErrShutdown.
func (c *Controller) Shutdown() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.shutdown = true
	for _, ri := range c.snapshot() {
		ri.Executor.Stop()
	}
	c.cancel()
}
