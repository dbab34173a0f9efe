package scheduler

import (
	"sort"
	"sync"
	"time"
)

// JobStatus is the run history of one job.
type JobStatus struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	Running    bool      `json:"running"`
	Runs       int       `json:"runs"`
	Failures   int       `json:"failures"`
	LastStart  time.Time `json:"last_start,omitempty"`
	LastFinish time.Time `json:"last_finish,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	NextRun    time.Time `json:"next_run,omitempty"`
}

// Tracker keeps the latest outcome of every job.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobStatus
	next map[string]func() time.Time
	now  func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]*JobStatus),
		next: make(map[string]func() time.Time),
		now:  time.Now,
	}
}

// Register adds a job. next reports its next scheduled run and may be nil.
func (t *Tracker) Register(name, schedule string, next func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status(name).Schedule = schedule
	if next != nil {
		t.next[name] = next
	}
}

// Started records the start of a run.
func (t *Tracker) Started(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.status(name)
	st.Running = true
	st.LastStart = t.now()
}

// Finished records the end of a run.
func (t *Tracker) Finished(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.status(name)
	st.Running = false
	st.Runs++
	st.LastFinish = t.now()
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
}

// Get returns the status of one job.
func (t *Tracker) Get(name string) (JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.jobs[name]
	if !ok {
		return JobStatus{}, false
	}
	return t.snapshot(st), true
}

// All returns every job status, sorted by name.
func (t *Tracker) All() []JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]JobStatus, 0, len(t.jobs))
	for _, st := range t.jobs {
		out = append(out, t.snapshot(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether the last run of every job succeeded.
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, st := range t.jobs {
		if st.LastError != "" {
			return false
		}
	}
	return true
}

// must be called with the lock held
func (t *Tracker) status(name string) *JobStatus {
	st, ok := t.jobs[name]
	if !ok {
		st = &JobStatus{Name: name}
		t.jobs[name] = st
	}
	return st
}

func (t *Tracker) snapshot(st *JobStatus) JobStatus {
	out := *st
	if next, ok := t.next[st.Name]; ok {
		out.NextRun = next()
	}
	return out
}
