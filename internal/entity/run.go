package entity

import (
	"fmt"
	"sync"
	"time"
)

// RunState is a step of the crawl run state machine.
type RunState int

const (
	StateInit RunState = iota
	StateAuthenticated
	StateLockAcquired
	StateEnumerating
	StateFetching
	StatePersisting
	StateLockReleased
	StateDone
	StateFailed
)

var runStateNames = [...]string{
	"INIT", "AUTHENTICATED", "LOCK_ACQUIRED", "ENUMERATING", "FETCHING",
	"PERSISTING", "LOCK_RELEASED", "DONE", "FAILED",
}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return fmt.Sprintf("RunState(%d)", int(s))
	}
	return runStateNames[s]
}

// RunCounters are flushed once per run.
type RunCounters struct {
	Total     int `json:"total"`
	Success   int `json:"success"`
	Error     int `json:"error"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// RunContext is the state owned by a single run. It is created at run start
// and discarded at the end; nothing in it is shared across runs.
type RunContext struct {
	Source          string
	RunID           string
	Cookies         Cookies
	CookieTimestamp time.Time
	Started         time.Time

	mu       sync.Mutex
	state    RunState
	history  []RunState
	counters RunCounters
}

func NewRunContext(source, runID string, started time.Time) *RunContext {
	return &RunContext{
		Source:  source,
		RunID:   runID,
		Started: started,
		state:   StateInit,
		history: []RunState{StateInit},
	}
}

// Transition moves the run to s. History keeps the first entry into each state
// only, so the per-item FETCHING/PERSISTING cycle is recorded once.
func (r *RunContext) Transition(s RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	for _, h := range r.history {
		if h == s {
			return
		}
	}
	r.history = append(r.history, s)
}

func (r *RunContext) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *RunContext) History() []RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunState(nil), r.history...)
}

// Count applies fn to the counters under the run mutex.
func (r *RunContext) Count(fn func(c *RunCounters)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.counters)
}

func (r *RunContext) Counters() RunCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// RunReport is the result of a run, persisted to the counter file.
type RunReport struct {
	Source   string
	RunID    string
	State    RunState
	History  []RunState
	Counters RunCounters
	Reason   string
	Started  time.Time
	Finished time.Time
}

func (r *RunReport) Elapsed() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Summary is the one-line run summary written to the log.
func (r *RunReport) Summary() string {
	s := fmt.Sprintf("#summary# source=%s run=%s state=%s total=%d processed=%d success=%d error=%d skipped=%d elapsed=%.1fs",
		r.Source, r.RunID, r.State, r.Counters.Total, r.Counters.Processed, r.Counters.Success,
		r.Counters.Error, r.Counters.Skipped, r.Elapsed().Seconds())
	if r.Reason != "" {
		s += " reason=" + r.Reason
	}
	return s
}
