// Package profiler collects per-stage wall-clock timings for the detection
// pipeline and renders a summary report after a run.
package profiler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// StageTimer aggregates durations per named pipeline stage. It is safe for
// concurrent use.
type StageTimer struct {
	mu     sync.Mutex
	stages map[string]*stageStats
	order  []string
}

type stageStats struct {
	total time.Duration
	min   time.Duration
	max   time.Duration
	count int64
}

// NewStageTimer creates an empty timer.
func NewStageTimer() *StageTimer {
	return &StageTimer{stages: make(map[string]*stageStats)}
}

// Start begins timing one stage invocation; the returned func records the
// elapsed time when called.
//
//	stop := timer.Start("proposals")
//	defer stop()
func (t *StageTimer) Start(stage string) func() {
	started := time.Now()
	return func() { t.Record(stage, time.Since(started)) }
}

// Record adds one measured duration to a stage.
func (t *StageTimer) Record(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stages[stage]
	if !ok {
		s = &stageStats{min: d, max: d}
		t.stages[stage] = s
		t.order = append(t.order, stage)
	}
	s.total += d
	s.count++
	if d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
}

// Count returns the number of recorded invocations for a stage.
func (t *StageTimer) Count(stage string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stages[stage]; ok {
		return s.count
	}
	return 0
}

// Total returns the accumulated time for a stage.
func (t *StageTimer) Total(stage string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stages[stage]; ok {
		return s.total
	}
	return 0
}

// Report renders one line per stage in first-recorded order, with count,
// total, mean and min/max durations.
func (t *StageTimer) Report() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	for _, name := range t.order {
		s := t.stages[name]
		mean := time.Duration(int64(s.total) / s.count)
		fmt.Fprintf(&b, "%-12s n=%-5d total=%-12s mean=%-10s min=%-10s max=%s\n",
			name, s.count, s.total.Round(time.Microsecond), mean.Round(time.Microsecond),
			s.min.Round(time.Microsecond), s.max.Round(time.Microsecond))
	}
	return b.String()
}

// Stages returns the recorded stage names, sorted.
func (t *StageTimer) Stages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.order...)
	sort.Strings(out)
	return out
}
