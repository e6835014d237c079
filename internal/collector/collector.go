// Package collector aggregates stride reports and computes metrics.
package collector

import (
	"sync"
	"time"

	"cyclegen/internal/core"
)

// Collector receives strides from every activity and keeps their events.
// It implements core.StrideSink.
type Collector struct {
	events    []core.Event
	ch        chan core.Stride
	done      chan struct{}
	mu        sync.Mutex
	closeMu   sync.RWMutex
	closed    bool
	dropped   int
	clock     core.Clock
	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a new Collector and starts its collection goroutine.
func NewCollector() *Collector {
	return NewCollectorWithClock(core.RealClock{})
}

// NewCollectorWithClock is NewCollector with an explicit clock for the run
// duration.
func NewCollectorWithClock(clock core.Clock) *Collector {
	c := &Collector{
		events:    make([]core.Event, 0),
		ch:        make(chan core.Stride, 256),
		done:      make(chan struct{}),
		clock:     clock,
		startTime: clock.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for stride := range c.ch {
		c.mu.Lock()
		c.events = append(c.events, stride.Events...)
		c.mu.Unlock()
	}
	close(c.done)
}

// ReportStride queues a stride. It blocks while the queue is full so no
// stride is lost. Strides reported after Close are counted as dropped.
func (c *Collector) ReportStride(s core.Stride) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		c.mu.Lock()
		c.dropped += len(s.Events)
		c.mu.Unlock()
		return
	}
	c.ch <- s
}

// Close stops accepting strides and waits for queued ones to be collected.
func (c *Collector) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.endTime = c.clock.Now()
	close(c.ch)
	c.closeMu.Unlock()
	<-c.done
}

// Events returns a copy of collected events.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// DroppedEvents returns the number of events reported after Close.
func (c *Collector) DroppedEvents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Duration returns the collection duration.
// If the collector is closed, returns the duration from start to end.
// If still running, returns the duration from start to now.
func (c *Collector) Duration() time.Duration {
	c.closeMu.RLock()
	end := c.endTime
	c.closeMu.RUnlock()
	if !end.IsZero() {
		return end.Sub(c.startTime)
	}
	return c.clock.Since(c.startTime)
}

// Compute returns metrics over everything collected so far.
func (c *Collector) Compute() *Metrics {
	return ComputeMetrics(c.Events(), c.Duration())
}
