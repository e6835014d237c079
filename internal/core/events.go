// Package core defines the types shared by the cycle pipeline: op outcome
// events, stride reports, the shared variable namespace and clocks.
package core

import "time"

// Event is the accounting record of one op after it reached a terminal state.
type Event struct {
	Alias        string
	Cycle        int64
	Timestamp    time.Time
	Status       int
	Tries        int
	ServiceTime  time.Duration
	ResponseTime time.Duration
	Success      bool
	Skipped      bool
	SkipReason   string
	Error        string
}

// Stride is a fixed-size group of consecutive cycles reported together.
// Events are in completion order, which within one motor is cycle order.
type Stride struct {
	Alias  string
	First  int64 // inclusive
	Last   int64 // exclusive
	Events []Event
}

// Len returns the number of cycles the stride covers.
func (s Stride) Len() int64 {
	return s.Last - s.First
}

// StrideSink receives completed strides. Implementations must be safe for
// concurrent use: every motor of an activity reports independently.
type StrideSink interface {
	ReportStride(Stride)
}

// StrideSinks fans a stride out to every sink in order.
type StrideSinks []StrideSink

func (s StrideSinks) ReportStride(st Stride) {
	for _, sink := range s {
		if sink != nil {
			sink.ReportStride(st)
		}
	}
}
