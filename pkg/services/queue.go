package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/logging"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

// Deps are the collaborators shared by the queue and its runners. Store and
// Sources are required; everything else defaults to a no-op.
type Deps struct {
	Store    Store
	Sources  *sources.Registry
	Sink     StatusSink
	Faults   FaultReporter
	Observer ContentAddedObserver
	Host     Host
	Logger   *zap.Logger
	Metrics  *Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = nopCollaborators{}
	}
	if d.Faults == nil {
		d.Faults = nopCollaborators{}
	}
	if d.Observer == nil {
		d.Observer = nopCollaborators{}
	}
	if d.Host == nil {
		d.Host = nopCollaborators{}
	}
	d.Logger = logging.OrNop(d.Logger)
	return d
}

// Queue runs jobs one at a time in submission order.
type Queue struct {
	ctx    context.Context
	deps   Deps
	logger *zap.Logger

	mu        sync.Mutex
	jobs      []*data.Job
	active    *Runner
	listeners []Listener

	// idle is closed while no runner is active.
	idle       chan struct{}
	idleClosed bool
	// drained is closed when the last job of a run finishes, then replaced.
	drained chan struct{}
}

// NewQueue creates an idle queue. Cancelling ctx cancels the queue.
func NewQueue(ctx context.Context, deps Deps) (*Queue, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("queue requires a store")
	}
	if deps.Sources == nil {
		return nil, fmt.Errorf("queue requires a source registry")
	}
	deps = deps.withDefaults()

	idle := make(chan struct{})
	close(idle)
	q := &Queue{
		ctx:        ctx,
		deps:       deps,
		logger:     deps.Logger.Named("queue"),
		idle:       idle,
		idleClosed: true,
		drained:    make(chan struct{}),
	}
	context.AfterFunc(ctx, q.Cancel)
	return q, nil
}

// Enqueue appends job. It starts right away when nothing is running.
func (q *Queue) Enqueue(job *data.Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.deps.Metrics.setQueueLength(len(q.jobs))
	var r *Runner
	if q.active == nil {
		r = q.startLocked(job)
	}
	q.mu.Unlock()

	q.logger.Debug("job enqueued", zap.String("manga", job.Name), zap.Bool("started", r != nil))
	if r != nil {
		go q.work(r)
		return
	}
	q.queueChanged()
}

// Cancel stops the running job and drops every queued one. With nothing
// running the host is told it can stop.
func (q *Queue) Cancel() {
	q.CancelRunning()
}

// CancelRunning is Cancel that also returns the interrupted job and a channel
// closed once its runner has stopped. Both are nil when nothing was running.
func (q *Queue) CancelRunning() (*data.Job, <-chan struct{}) {
	q.mu.Lock()
	r := q.active
	if r != nil {
		r.Cancel()
	}
	q.jobs = nil
	q.deps.Metrics.setQueueLength(0)
	q.mu.Unlock()

	if r == nil {
		q.deps.Host.Stop()
		return nil, nil
	}
	q.logger.Info("cancelling downloads", zap.String("manga", r.Job().Name))
	q.deps.Sink.Update(Status{Title: r.Job().Name, Text: "cancelling", Indeterminate: true, Cancelling: true})
	return r.Job(), r.Done()
}

// Subscribe registers l. Listeners must be comparable, usually pointers.
func (q *Queue) Subscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Unsubscribe removes l. Unknown listeners are ignored.
func (q *Queue) Unsubscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.listeners {
		if existing == l {
			q.listeners = append(q.listeners[:i:i], q.listeners[i+1:]...)
			return
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Item returns the job at pos.
func (q *Queue) Item(pos int) (*data.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pos < 0 || pos >= len(q.jobs) {
		return nil, false
	}
	return q.jobs[pos], true
}

// Jobs returns a snapshot of the queue.
func (q *Queue) Jobs() []*data.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*data.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Active reports whether a runner is alive.
func (q *Queue) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active != nil
}

// Drained returns a channel closed when the current run of jobs finishes.
// Runs ended by Cancel never close it.
func (q *Queue) Drained() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drained
}

// Wait blocks until no runner is active and the host was told to stop.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) startLocked(job *data.Job) *Runner {
	if q.idleClosed {
		q.idle = make(chan struct{})
		q.idleClosed = false
	}
	q.active = newRunner(job, q.deps, q)
	return q.active
}

// work is the single worker goroutine. It runs r and whatever follows it.
func (q *Queue) work(r *Runner) {
	for r != nil {
		r.Run(q.ctx)
		r = q.complete(r)
	}
}

// complete chains to the job after r's, or winds the queue down.
func (q *Queue) complete(r *Runner) *Runner {
	q.mu.Lock()
	pos := q.indexLocked(r.Job())
	cleared := pos < 0 || r.State() == RunnerCancelled
	switch {
	case cleared && len(q.jobs) > 0:
		// Cancel emptied the queue while r was unwinding; these jobs came after.
		q.logger.Info("starting job enqueued during cancel", zap.String("manga", q.jobs[0].Name))
		next := q.startLocked(q.jobs[0])
		q.mu.Unlock()
		return next
	case !cleared && pos < len(q.jobs)-1:
		next := q.startLocked(q.jobs[pos+1])
		q.mu.Unlock()
		return next
	}
	q.active = nil
	drained := !cleared
	q.mu.Unlock()

	if drained {
		q.logger.Info("queue drained")
		q.deps.Metrics.setProgress(0, 0)
		q.deps.Sink.Update(Status{Title: r.Job().Name, Text: "done", Done: true})
	}
	q.deps.Host.Stop()

	q.mu.Lock()
	if q.active == nil {
		if drained {
			close(q.drained)
			q.drained = make(chan struct{})
		}
		if !q.idleClosed {
			close(q.idle)
			q.idleClosed = true
		}
	}
	q.mu.Unlock()
	return nil
}

func (q *Queue) indexLocked(job *data.Job) int {
	for i, j := range q.jobs {
		if j == job {
			return i
		}
	}
	return -1
}

func (q *Queue) snapshotListeners() []Listener {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Listener, len(q.listeners))
	copy(out, q.listeners)
	return out
}

func (q *Queue) progress(job *data.Job) {
	q.mu.Lock()
	pos := q.indexLocked(job)
	q.mu.Unlock()
	if pos < 0 {
		return
	}
	for _, l := range q.snapshotListeners() {
		l.OnProgress(pos)
	}
}

func (q *Queue) queueChanged() {
	for _, l := range q.snapshotListeners() {
		l.OnQueueChanged()
	}
}
