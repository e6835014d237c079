package op

import (
	"log/slog"
	"sync/atomic"
)

// Observer is notified after every transition. Implementations must be fast
// and safe for concurrent use; many motors notify the same observer.
type Observer interface {
	OpStarted(o *Op)
	OpRetried(o *Op)
	OpSucceeded(o *Op)
	OpFailed(o *Op)
	// OpSkipped receives the state the op was skipped from.
	OpSkipped(o *Op, from State)
}

// NoopObserver ignores every transition.
type NoopObserver struct{}

func (NoopObserver) OpStarted(*Op)        {}
func (NoopObserver) OpRetried(*Op)        {}
func (NoopObserver) OpSucceeded(*Op)      {}
func (NoopObserver) OpFailed(*Op)         {}
func (NoopObserver) OpSkipped(*Op, State) {}

// CompositeObserver fans out transitions to several observers in order.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver forwards to each non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OpStarted(o *Op) {
	for _, ob := range c.observers {
		ob.OpStarted(o)
	}
}

func (c *CompositeObserver) OpRetried(o *Op) {
	for _, ob := range c.observers {
		ob.OpRetried(o)
	}
}

func (c *CompositeObserver) OpSucceeded(o *Op) {
	for _, ob := range c.observers {
		ob.OpSucceeded(o)
	}
}

func (c *CompositeObserver) OpFailed(o *Op) {
	for _, ob := range c.observers {
		ob.OpFailed(o)
	}
}

func (c *CompositeObserver) OpSkipped(o *Op, from State) {
	for _, ob := range c.observers {
		ob.OpSkipped(o, from)
	}
}

// LoggingObserver logs transitions at debug level.
type LoggingObserver struct {
	Logger *slog.Logger
	Alias  string
}

// NewLoggingObserver logs through logger, or slog.Default when nil.
func NewLoggingObserver(logger *slog.Logger, alias string) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger, Alias: alias}
}

func (l *LoggingObserver) OpStarted(o *Op) {
	l.Logger.Debug("op_started", slog.String("alias", l.Alias), slog.Int64("cycle", o.Cycle))
}

func (l *LoggingObserver) OpRetried(o *Op) {
	l.Logger.Debug("op_retried",
		slog.String("alias", l.Alias),
		slog.Int64("cycle", o.Cycle),
		slog.Int("tries", o.Tries()),
	)
}

func (l *LoggingObserver) OpSucceeded(o *Op) {
	l.Logger.Debug("op_succeeded",
		slog.String("alias", l.Alias),
		slog.Int64("cycle", o.Cycle),
		slog.Int("status", o.Status()),
		slog.Duration("service_time", o.ServiceTime()),
	)
}

func (l *LoggingObserver) OpFailed(o *Op) {
	l.Logger.Debug("op_failed",
		slog.String("alias", l.Alias),
		slog.Int64("cycle", o.Cycle),
		slog.Int("status", o.Status()),
		slog.Int("tries", o.Tries()),
		slog.Any("error", o.Err()),
	)
}

func (l *LoggingObserver) OpSkipped(o *Op, from State) {
	l.Logger.Debug("op_skipped",
		slog.String("alias", l.Alias),
		slog.Int64("cycle", o.Cycle),
		slog.String("from", from.String()),
		slog.String("reason", o.SkipReason()),
	)
}

// Tracker counts transitions and the number of ops in flight.
type Tracker struct {
	inFlight  atomic.Int64
	started   atomic.Int64
	retried   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

func (t *Tracker) OpStarted(*Op)   { t.inFlight.Add(1); t.started.Add(1) }
func (t *Tracker) OpRetried(*Op)   { t.retried.Add(1) }
func (t *Tracker) OpSucceeded(*Op) { t.inFlight.Add(-1); t.succeeded.Add(1) }
func (t *Tracker) OpFailed(*Op)    { t.inFlight.Add(-1); t.failed.Add(1) }

func (t *Tracker) OpSkipped(_ *Op, from State) {
	if from == Started {
		t.inFlight.Add(-1)
	}
	t.skipped.Add(1)
}

// InFlight returns the number of started ops without a terminal call.
func (t *Tracker) InFlight() int64 { return t.inFlight.Load() }

// TrackerCounts is a snapshot of a Tracker.
type TrackerCounts struct {
	InFlight  int64
	Started   int64
	Retried   int64
	Succeeded int64
	Failed    int64
	Skipped   int64
}

// Counts returns a snapshot. Fields are read independently, so a snapshot
// taken while ops run may be momentarily inconsistent.
func (t *Tracker) Counts() TrackerCounts {
	return TrackerCounts{
		InFlight:  t.inFlight.Load(),
		Started:   t.started.Load(),
		Retried:   t.retried.Load(),
		Succeeded: t.succeeded.Load(),
		Failed:    t.failed.Load(),
		Skipped:   t.skipped.Load(),
	}
}
