// Package progress prints a one-line status of every activity while a
// session runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cyclegen/internal/controller"
)

// Status is a point-in-time view of one activity.
type Status struct {
	Alias     string
	State     string
	Completed int64
	Failed    int64
	InFlight  int64
}

// Source supplies activity statuses in display order.
type Source interface {
	Statuses() []Status
}

// SourceFunc adapts a function to Source.
type SourceFunc func() []Status

func (f SourceFunc) Statuses() []Status { return f() }

// ControllerSource reports the activities registered with c.
func ControllerSource(c *controller.Controller) Source {
	return SourceFunc(func() []Status {
		aliases := c.Aliases()
		out := make([]Status, 0, len(aliases))
		for _, alias := range aliases {
			ri, err := c.RuntimeInfo(alias)
			if err != nil {
				continue
			}
			counts := ri.Executor.Ops()
			out = append(out, Status{
				Alias:     alias,
				State:     ri.State().String(),
				Completed: ri.Executor.Completed(),
				Failed:    counts.Failed,
				InFlight:  counts.InFlight,
			})
		}
		return out
	})
}

type Progress struct {
	startTime time.Time
	source    Source
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(src Source, quiet bool) *Progress {
	return &Progress{
		source:   src,
		quiet:    quiet,
		interval: time.Second,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetInterval changes the refresh interval. It must be called before Start.
func (p *Progress) SetInterval(d time.Duration) {
	p.interval = d
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	line := Line(time.Since(p.startTime), p.source.Statuses())
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\r", line)
	p.mu.Unlock()
}

// Line renders elapsed time and statuses as a single line.
func Line(elapsed time.Duration, statuses []Status) string {
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	var b strings.Builder
	fmt.Fprintf(&b, "[%02d:%02d]", mins, secs)
	if len(statuses) == 0 {
		b.WriteString(" no activities")
	}
	for i, s := range statuses {
		if i > 0 {
			b.WriteString(" |")
		}
		fmt.Fprintf(&b, " %s %s %d ops", s.Alias, s.State, s.Completed)
		if s.Failed > 0 {
			fmt.Fprintf(&b, " (%d failed)", s.Failed)
		}
	}
	return b.String()
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
