package task

import (
	"fmt"
	"sort"
	"sync"
)

type State int

const (
	New State = iota
	Running
	Success
	Degraded
	Failed
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Running:
		return "running"
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText lets reports carry state names instead of numbers.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Record tracks one step for the lifetime of the process.
type Record struct {
	Index int
	Step  Step

	mu    sync.Mutex
	state State
}

func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start moves a new record to Running.
func (r *Record) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == New {
		r.state = Running
	}
}

// Degrade records that a unit of this step failed.
func (r *Record) Degrade() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Failed {
		r.state = Degraded
	}
}

// Finish closes dispatch: a step still Running had no failed unit.
func (r *Record) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Running {
		r.state = Success
	}
}

// Fail marks the step failed on every declared target.
func (r *Record) Fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Failed
}

// Registry maps step indexes to records with insert-if-absent semantics.
type Registry struct {
	mu      sync.Mutex
	records map[int]*Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[int]*Record)}
}

// GetOrCreate returns the record for index, creating it from step the first
// time. An existing record is returned unchanged.
func (r *Registry) GetOrCreate(index int, step Step) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[index]; ok {
		return rec
	}
	rec := &Record{Index: index, Step: step}
	r.records[index] = rec
	return rec
}

func (r *Registry) Lookup(index int) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[index]
	return rec, ok
}

// Records returns all records ordered by index.
func (r *Registry) Records() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
