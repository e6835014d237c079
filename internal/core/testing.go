package core

import (
	"strings"
	"sync"
)

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// Lines returns the non-empty lines written so far.
func (w *MockWriter) Lines() []string {
	var lines []string
	for _, l := range strings.Split(w.String(), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// StrideRecorder is a StrideSink that keeps every stride it receives.
type StrideRecorder struct {
	mu      sync.Mutex
	strides []Stride
}

func (r *StrideRecorder) ReportStride(s Stride) {
	r.mu.Lock()
	r.strides = append(r.strides, s)
	r.mu.Unlock()
}

func (r *StrideRecorder) Strides() []Stride {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stride, len(r.strides))
	copy(out, r.strides)
	return out
}

// Events flattens the recorded strides.
func (r *StrideRecorder) Events() []Event {
	var out []Event
	for _, s := range r.Strides() {
		out = append(out, s.Events...)
	}
	return out
}
