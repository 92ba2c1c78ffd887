// Package download implements the in-memory Download Job queue: a
// worker-pool executor with cooperative per-job cancellation. Nothing here
// is persisted across a restart, matching the "in-memory only" contract.
package download

import (
	"context"
	"sync"
	"time"
)

// Status is a Download Job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Request is the caller-supplied track-selection body that starts a job.
type Request struct {
	ServiceTag string
	TitleID    string
	Profile    string
	Proxy      string
	NoProxy    bool
	// Kind picks which configured output template applies: "movie",
	// "series", or "song". Left empty, no template is applied and
	// OutputName stays blank.
	Kind string
	// Metadata feeds the chosen output template's variables (title,
	// year, season, episode, resolution, ...); keys not referenced by
	// the template are ignored.
	Metadata map[string]string
	Extra    map[string]any
}

// Result is what a completed job produced.
type Result struct {
	OutputPaths []string
	Extra       map[string]any
}

// Job is one queued or running download. Exported fields are safe to read
// without the queue's lock; status, progress, result and err are read
// through View, since workers mutate them concurrently.
type Job struct {
	ID          string
	Request     Request
	CreatedTime time.Time
	// OutputName is the formatted filename the configured output template
	// produced for this job's metadata, computed once at submission time.
	// Empty if no template matched the request's kind.
	OutputName string

	mu       sync.RWMutex
	status   Status
	progress float64
	result   *Result
	err      error

	cancel context.CancelFunc
}

func newJob(id string, req Request, outputName string, cancel context.CancelFunc) *Job {
	return &Job{
		ID:          id,
		Request:     req,
		CreatedTime: time.Now(),
		OutputName:  outputName,
		status:      StatusQueued,
		cancel:      cancel,
	}
}

// Snapshot is a consistent read of a job's mutable state, returned by value
// so callers (HTTP handlers, the WebSocket stream) never race the worker.
type Snapshot struct {
	ID          string
	Status      Status
	Progress    float64
	CreatedTime time.Time
	OutputName  string
	Result      *Result
	Err         error
}

// View returns a point-in-time Snapshot of the job.
func (j *Job) View() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		ID:          j.ID,
		Status:      j.status,
		Progress:    j.progress,
		CreatedTime: j.CreatedTime,
		OutputName:  j.OutputName,
		Result:      j.result,
		Err:         j.err,
	}
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) setProgress(p float64) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

func (j *Job) finish(result *Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusCancelled {
		return
	}
	j.result = result
	j.err = err
	if err != nil {
		j.status = StatusFailed
	} else {
		j.status = StatusCompleted
		j.progress = 1
	}
}

// Cancelled reports whether the job's status is StatusCancelled.
func (j *Job) Cancelled() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status == StatusCancelled
}
