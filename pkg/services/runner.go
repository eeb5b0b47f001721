package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

// RunnerState is the lifecycle of a single Runner.
type RunnerState int32

const (
	RunnerCreated RunnerState = iota
	RunnerPreparing
	RunnerRunning
	RunnerFinished
	RunnerCancelled
	// RunnerFailed means the job never started: its source could not be
	// built or the job could not be saved.
	RunnerFailed
)

func (s RunnerState) String() string {
	switch s {
	case RunnerPreparing:
		return "preparing"
	case RunnerRunning:
		return "running"
	case RunnerFinished:
		return "finished"
	case RunnerCancelled:
		return "cancelled"
	case RunnerFailed:
		return "failed"
	default:
		return "created"
	}
}

// coordinator receives the runner's notifications. The Queue implements it.
type coordinator interface {
	progress(job *data.Job)
	queueChanged()
}

// Runner downloads exactly one job.
type Runner struct {
	job    *data.Job
	deps   Deps
	coord  coordinator
	logger *zap.Logger

	state     atomic.Int32
	cancelled atomic.Bool
	done      chan struct{}
}

func newRunner(job *data.Job, deps Deps, coord coordinator) *Runner {
	return &Runner{
		job:    job,
		deps:   deps,
		coord:  coord,
		logger: deps.Logger.With(zap.String("manga", job.Name), zap.String("source", job.Source)),
		done:   make(chan struct{}),
	}
}

func (r *Runner) Job() *data.Job {
	return r.job
}

func (r *Runner) State() RunnerState {
	return RunnerState(r.state.Load())
}

// Cancel asks the runner to stop at the next page boundary.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

func (r *Runner) Cancelled() bool {
	return r.cancelled.Load()
}

// Done is closed once Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Run executes the job and returns once the runner reached a terminal state.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)
	job := r.job
	r.state.Store(int32(RunnerPreparing))
	r.deps.Sink.Update(Status{Title: job.Name, Text: "saving manga", Indeterminate: true})
	job.SetState(data.JobRunning)
	r.coord.queueChanged()

	fetcher, err := r.deps.Sources.New(job.Source)
	if err != nil {
		r.fail(&FatalJobError{Source: job.Source, Err: err})
		return
	}
	jobID, err := r.deps.Store.PushJob(ctx, job)
	if err != nil {
		r.fail(&FatalJobError{Source: job.Source, Err: fmt.Errorf("failed to save manga: %w", err)})
		return
	}
	job.ID = jobID

	r.state.Store(int32(RunnerRunning))
	r.logger.Info("download started", zap.String("job", jobID), zap.Int("chapters", len(job.Chapters)))
	r.download(ctx, fetcher, jobID)

	if r.cancelled.Load() {
		r.cancel()
		return
	}
	r.finish()
}

func (r *Runner) download(ctx context.Context, fetcher sources.Fetcher, jobID string) {
	total := len(r.job.Chapters)
	for i, chapter := range r.job.Chapters {
		if r.cancelled.Load() {
			return
		}
		chapterID, err := r.deps.Store.PushChapter(ctx, chapter, jobID)
		if err != nil {
			r.transient(StagePushChapter, i, -1, err)
			continue
		}
		chapter.ID = chapterID
		chapter.MangaID = jobID

		pages, err := fetcher.ListPages(ctx, chapter)
		if err != nil {
			r.transient(StageListPages, i, -1, err)
			continue
		}
		r.primary(i)

		chapter.Pages = nil
		for j, page := range pages {
			page.ChapterID = chapterID
			page.Index = j
			if r.fetchPage(ctx, fetcher, page, jobID, i) {
				chapter.Pages = append(chapter.Pages, page)
				r.secondary(j, len(pages))
			}
			if r.cancelled.Load() {
				break
			}
		}
		r.secondary(len(pages), len(pages))
	}
	if !r.cancelled.Load() {
		r.primary(total)
	}
}

// fetchPage materializes and stores one page. It reports false when the page
// was skipped.
func (r *Runner) fetchPage(ctx context.Context, fetcher sources.Fetcher, page *data.Page, jobID string, chapter int) bool {
	path, err := fetcher.FetchContent(ctx, page)
	if err != nil {
		r.transient(StageFetchContent, chapter, page.Index, err)
		return false
	}
	page.Path = path

	pageID, err := r.deps.Store.PushPage(ctx, page, jobID, page.ChapterID)
	if err != nil {
		r.transient(StagePushPage, chapter, page.Index, err)
		return false
	}
	page.ID = pageID
	r.deps.Metrics.pageFetched()
	return true
}

func (r *Runner) primary(pos int) {
	r.job.Progress.SetChapter(pos)
	r.publish()
}

func (r *Runner) secondary(done, total int) {
	r.job.Progress.SetPage(done, total)
	r.publish()
}

// publish forwards the current progress. Once cancelled, the job has left the
// queue and nothing is forwarded.
func (r *Runner) publish() {
	if r.cancelled.Load() {
		return
	}
	value, max := r.job.Progress.Value(), r.job.Progress.Max()
	r.deps.Metrics.setProgress(value, max)
	r.deps.Sink.Update(Status{Title: r.job.Name, Text: "downloading", Progress: value, Max: max})
	r.coord.progress(r.job)
}

func (r *Runner) transient(stage string, chapter, page int, err error) {
	if r.cancelled.Load() {
		r.logger.Debug("ignoring failure after cancel", zap.String("stage", stage), zap.Error(err))
		return
	}
	r.deps.Metrics.fetchFailed(stage)
	r.logger.Warn("download step failed",
		zap.String("stage", stage),
		zap.Int("chapter", chapter),
		zap.Int("page", page),
		zap.Error(err),
	)
	r.deps.Faults.Report(&TransientFetchError{Stage: stage, Chapter: chapter, Page: page, Err: err})
}

func (r *Runner) fail(err *FatalJobError) {
	r.logger.Error("download cannot start", zap.Error(err))
	r.deps.Faults.Report(err)
	r.deps.Metrics.jobDone(ResultFailed)
	r.job.SetState(data.JobIdle)
	r.state.Store(int32(RunnerFailed))
	r.coord.queueChanged()
}

func (r *Runner) finish() {
	r.job.SetState(data.JobFinished)
	r.state.Store(int32(RunnerFinished))
	r.deps.Metrics.jobDone(ResultFinished)
	r.logger.Info("download finished", zap.Int("pages", r.job.PageCount()))
	r.coord.queueChanged()
	r.deps.Observer.OnContentAdded(r.job)
}

func (r *Runner) cancel() {
	r.job.SetState(data.JobIdle)
	r.state.Store(int32(RunnerCancelled))
	r.deps.Metrics.jobDone(ResultCancelled)
	r.logger.Info("download cancelled", zap.Int("pages", r.job.PageCount()))
	r.coord.queueChanged()
}
