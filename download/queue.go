package download

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/oklog/ulid/v2"

	"github.com/ddevcap/unshackle-core/template"
)

// Templates holds one output-filename formatter per title kind, built
// from the deployment's configured output_template document.
type Templates struct {
	Movies *template.Formatter
	Series *template.Formatter
	Songs  *template.Formatter
}

func (t Templates) forKind(kind string) *template.Formatter {
	switch kind {
	case "movie":
		return t.Movies
	case "series":
		return t.Series
	case "song":
		return t.Songs
	default:
		return nil
	}
}

// RunFunc executes one job's track-selection pipeline. It observes
// cancellation through ctx and reports progress through the report
// callback; it never receives the Job itself, so pipeline code doesn't
// need to import this package's internals.
type RunFunc func(ctx context.Context, req Request, report func(progress float64)) (*Result, error)

// Queue is a worker-pool executor for Download Jobs. Job IDs are ULIDs so
// listing jobs in creation order (the /api/download/jobs contract) is a
// plain map iteration plus string sort, no stored timestamp comparison
// needed.
type Queue struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	run       RunFunc
	templates Templates
	work      chan *Job
	workers   int

	retained *ttlcache.Cache[string, struct{}]

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Config bounds the queue's concurrency and job-record retention.
type Config struct {
	// Workers is how many jobs run concurrently (spec's "downloads"
	// width — the per-track segment worker count lives inside RunFunc).
	Workers int
	// Retention is how long a completed/failed/cancelled job's record
	// stays queryable before the queue evicts it.
	Retention time.Duration
	// Templates formats each job's OutputName at submission time, per
	// its Request.Kind. Zero value disables formatting entirely.
	Templates Templates
}

// DefaultConfig matches the teacher's preference for small, explicit
// defaults over a zero-value that silently disables concurrency.
func DefaultConfig() Config {
	return Config{Workers: 3, Retention: 30 * time.Minute}
}

// New builds a Queue and starts its worker pool. run executes one job;
// Stop must be called to release the worker goroutines and the retention
// cache's background sweep.
func New(cfg Config, run RunFunc) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Minute
	}

	retained := ttlcache.New[string, struct{}](ttlcache.WithTTL[string, struct{}](cfg.Retention))

	q := &Queue{
		jobs:      make(map[string]*Job),
		run:       run,
		templates: cfg.Templates,
		work:      make(chan *Job),
		workers:   cfg.Workers,
		retained:  retained,
		stop:      make(chan struct{}),
	}

	retained.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, struct{}]) {
		q.mu.Lock()
		delete(q.jobs, item.Key())
		q.mu.Unlock()
	})
	go retained.Start()

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-q.work:
			if !ok {
				return
			}
			q.execute(job)
		case <-q.stop:
			return
		}
	}
}

func (q *Queue) execute(job *Job) {
	if job.Cancelled() {
		return
	}
	job.setStatus(StatusRunning)

	ctx, cancel := context.WithCancel(context.Background())
	job.mu.Lock()
	job.cancel = cancel
	job.mu.Unlock()
	defer cancel()

	result, err := q.run(ctx, job.Request, job.setProgress)
	job.finish(result, err)
	q.retained.Set(job.ID, struct{}{}, ttlcache.DefaultTTL)
}

// Submit enqueues req and returns its new Job. The job starts in the
// "queued" state and transitions to "running" once a worker picks it up.
func (q *Queue) Submit(req Request) *Job {
	id := ulid.Make().String()

	var outputName string
	if f := q.templates.forKind(req.Kind); f != nil {
		outputName = f.Format(req.Metadata)
	}

	job := newJob(id, req, outputName, func() {})

	q.mu.Lock()
	q.jobs[id] = job
	q.mu.Unlock()
	q.retained.Set(id, struct{}{}, ttlcache.NoTTL)

	go func() {
		select {
		case q.work <- job:
		case <-q.stop:
		}
	}()

	return job
}

// Get returns a job by ID.
func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	return job, ok
}

// List returns every currently-retained job, in creation order (ULIDs sort
// lexicographically by creation time, so a plain string sort suffices).
func (q *Queue) List() []*Job {
	q.mu.RLock()
	out := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, job)
	}
	q.mu.RUnlock()

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Cancel marks a job cancelled and invokes its context's CancelFunc so a
// running worker observes the cancellation at its next checkpoint. Returns
// an error if the job is not found or already in a terminal state.
func (q *Queue) Cancel(id string) error {
	job, ok := q.Get(id)
	if !ok {
		return fmt.Errorf("download: job %s not found", id)
	}

	job.mu.Lock()
	switch job.status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		job.mu.Unlock()
		return fmt.Errorf("download: job %s cannot be cancelled from status %s", id, job.status)
	}
	job.status = StatusCancelled
	cancel := job.cancel
	job.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Once the retention window starts now rather than from completion,
	// moving a cancelled-while-queued job (never picked up by a worker) out
	// of the map on the same schedule as a normally-finished one.
	q.retained.Set(id, struct{}{}, ttlcache.DefaultTTL)
	return nil
}

// Stop shuts down the worker pool and the retention sweep. Jobs already
// running are left to finish; their context is not cancelled by Stop.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
	q.retained.Stop()
}
