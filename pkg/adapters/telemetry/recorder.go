package telemetry

import (
	"sort"
	"sync"

	"github.com/user/remotevideo/pkg/ports"
)

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	counts map[string]int
	values map[string][]int
}

var _ ports.Telemetry = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{counts: map[string]int{}, values: map[string][]int{}}
}

func (r *Recorder) RecordEvent(name string, value int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
	r.values[name] = append(r.values[name], value)
}

// Stat summarizes one event name.
type Stat struct {
	Name  string
	Count int
	Sum   int
}

// Snapshot returns per-event totals sorted by name.
func (r *Recorder) Snapshot() []Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make([]Stat, 0, len(r.counts))
	for name, n := range r.counts {
		s := Stat{Name: name, Count: n}
		for _, v := range r.values[name] {
			s.Sum += v
		}
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Tee fans events out to several sinks.
type Tee []ports.Telemetry

func (t Tee) RecordEvent(name string, value int) {
	for _, sink := range t {
		if sink != nil {
			sink.RecordEvent(name, value)
		}
	}
}
