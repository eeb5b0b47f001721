package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/mangaqueue/pkg/data"
)

type queueFixture struct {
	*runnerFixture
	host     *countingHost
	listener *countingListener
	queue    *Queue
}

func newQueueFixture(t *testing.T, ctx context.Context, pageCounts map[string]int) *queueFixture {
	t.Helper()
	rf := newRunnerFixture(pageCounts)
	f := &queueFixture{
		runnerFixture: rf,
		host:          &countingHost{},
		listener:      &countingListener{},
	}
	rf.deps.Host = f.host

	q, err := NewQueue(ctx, rf.deps)
	require.NoError(t, err)
	q.Subscribe(f.listener)
	f.queue = q
	return f
}

// gate blocks the first fetch of the named job until released.
type gate struct {
	job     string
	started chan struct{}
	release chan struct{}
	tripped atomic.Bool
}

func newGate(job string) *gate {
	return &gate{job: job, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait(page *data.Page) {
	if page.ChapterID == "job-"+g.job+"-ch0" && g.tripped.CompareAndSwap(false, true) {
		close(g.started)
		<-g.release
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestNewQueueRequiresDeps(t *testing.T) {
	_, err := NewQueue(context.Background(), Deps{})
	assert.Error(t, err)

	_, err = NewQueue(context.Background(), Deps{Store: &mockStore{log: &eventLog{}}})
	assert.Error(t, err)
}

func TestQueueDrainsInOrder(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 2, "c1": 1})
	g := newGate("J1")

	var maxRunning atomic.Int32
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		running := int32(0)
		for _, job := range f.queue.Jobs() {
			if job.State() == data.JobRunning {
				running++
			}
		}
		if running > maxRunning.Load() {
			maxRunning.Store(running)
		}
		g.wait(page)
		return nil
	}

	jobs := []*data.Job{testJob("J1", 2), testJob("J2", 1), testJob("J3", 2)}
	drained := f.queue.Drained()

	f.queue.Enqueue(jobs[0])
	waitFor(t, g.started)
	f.queue.Enqueue(jobs[1])
	f.queue.Enqueue(jobs[2])
	assert.True(t, f.queue.Active())
	assert.Equal(t, 3, f.queue.Len())
	close(g.release)

	waitFor(t, drained)
	require.NoError(t, f.queue.Wait(context.Background()))

	assert.Equal(t, []string{"J1", "J2", "J3"}, f.observer.names())
	for _, job := range jobs {
		assert.Equal(t, data.JobFinished, job.State())
	}
	var pushed []string
	for _, e := range f.log.all() {
		if len(e) > 9 && e[:9] == "push_job:" {
			pushed = append(pushed, e[9:])
		}
	}
	assert.Equal(t, []string{"J1", "J2", "J3"}, pushed)

	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, int32(1), f.host.stops.Load())
	assert.Equal(t, 1, f.sink.count(func(s Status) bool { return s.Done }))
	assert.False(t, f.queue.Active())
	assert.Equal(t, 3, f.queue.Len(), "finished jobs stay listed")

	seen := f.listener.seenIndexes()
	assert.True(t, seen[0] && seen[1] && seen[2])
}

func TestQueueStartsAgainAfterDrain(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 1})

	first := f.queue.Drained()
	f.queue.Enqueue(testJob("A", 1))
	waitFor(t, first)
	require.NoError(t, f.queue.Wait(context.Background()))

	second := f.queue.Drained()
	f.queue.Enqueue(testJob("B", 1))
	waitFor(t, second)
	require.NoError(t, f.queue.Wait(context.Background()))

	assert.Equal(t, []string{"A", "B"}, f.observer.names())
	assert.Equal(t, int32(2), f.host.stops.Load())
	assert.NotEqual(t, first, second)
}

func TestQueueCancel(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 3, "c1": 3})
	g := newGate("J1")
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		g.wait(page)
		return nil
	}
	j1, j2 := testJob("J1", 2), testJob("J2", 1)

	f.queue.Enqueue(j1)
	waitFor(t, g.started)
	f.queue.Enqueue(j2)

	changedBefore := f.listener.changed.Load()
	f.queue.Cancel()
	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, 1, f.sink.count(func(s Status) bool { return s.Cancelling && s.Indeterminate }))
	close(g.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.queue.Wait(ctx))

	assert.Equal(t, data.JobIdle, j1.State())
	assert.Equal(t, data.JobIdle, j2.State())
	assert.Equal(t, 0, f.queue.Len())
	assert.False(t, f.queue.Active())
	assert.Empty(t, f.observer.names())
	assert.Equal(t, int32(1), f.listener.changed.Load()-changedBefore)
	assert.Equal(t, int32(1), f.host.stops.Load())
	assert.Zero(t, f.sink.count(func(s Status) bool { return s.Done }))

	// partial persistence: the in-flight page was kept
	pages := f.store.pushedPages()
	require.Len(t, pages, 1)
	assert.Equal(t, "job-J1-ch0", pages[0].ChapterID)
	assert.NotContains(t, f.log.all(), "push_job:J2")

	select {
	case <-f.queue.Drained():
		t.Fatal("a cancelled run must not drain")
	default:
	}
}

func TestQueueCancelWhenIdle(t *testing.T) {
	f := newQueueFixture(t, context.Background(), nil)

	f.queue.Cancel()

	assert.Equal(t, int32(1), f.host.stops.Load())
	assert.Zero(t, f.listener.changed.Load())
	require.NoError(t, f.queue.Wait(context.Background()))
}

func TestQueueEnqueueWhileCancelling(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 2})
	g := newGate("J1")
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		g.wait(page)
		return nil
	}
	j1, j2 := testJob("J1", 1), testJob("J2", 1)

	f.queue.Enqueue(j1)
	waitFor(t, g.started)

	cancelled, stopped := f.queue.CancelRunning()
	assert.Same(t, j1, cancelled)
	drained := f.queue.Drained()

	// J1 is still unwinding, so J2 only gets queued
	f.queue.Enqueue(j2)
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, data.JobIdle, j2.State())
	close(g.release)

	waitFor(t, stopped)
	waitFor(t, drained)
	require.NoError(t, f.queue.Wait(context.Background()))

	assert.Equal(t, data.JobIdle, j1.State())
	assert.Equal(t, data.JobFinished, j2.State())
	assert.Equal(t, []string{"J2"}, f.observer.names())
	assert.Equal(t, 1, f.queue.Len())
	assert.False(t, f.queue.Active())
	assert.Equal(t, int32(1), f.host.stops.Load(), "the host stops once, after J2")
	assert.Equal(t, 1, f.sink.count(func(s Status) bool { return s.Done }))

	// a later job runs behind the finished one
	j3 := testJob("J3", 1)
	drained = f.queue.Drained()
	f.queue.Enqueue(j3)
	waitFor(t, drained)
	assert.Equal(t, []string{"J2", "J3"}, f.observer.names())
	assert.Equal(t, data.JobFinished, j3.State())
}

func TestQueueCancelRunningWhenIdle(t *testing.T) {
	f := newQueueFixture(t, context.Background(), nil)

	job, stopped := f.queue.CancelRunning()
	assert.Nil(t, job)
	assert.Nil(t, stopped)
	assert.Equal(t, int32(1), f.host.stops.Load())
}

func TestQueueContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newQueueFixture(t, ctx, map[string]int{"c0": 2})
	g := newGate("J1")
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		g.wait(page)
		return nil
	}
	job := testJob("J1", 1)

	f.queue.Enqueue(job)
	waitFor(t, g.started)
	cancel()
	require.Eventually(t, func() bool { return f.queue.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	close(g.release)

	require.NoError(t, f.queue.Wait(context.Background()))
	assert.Equal(t, data.JobIdle, job.State())
	assert.Empty(t, f.observer.names())
}

func TestQueueFatalJobChains(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 1})
	g := newGate("J2")
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		g.wait(page)
		return nil
	}

	blocker := testJob("J2", 1)
	f.queue.Enqueue(blocker)
	waitFor(t, g.started)

	broken := testJob("broken", 1)
	broken.Source = "missing"
	last := testJob("J3", 1)
	f.queue.Enqueue(broken)
	f.queue.Enqueue(last)
	drained := f.queue.Drained()
	close(g.release)

	waitFor(t, drained)
	assert.Equal(t, data.JobIdle, broken.State())
	assert.Equal(t, data.JobFinished, last.State())
	assert.Equal(t, []string{"J2", "J3"}, f.observer.names())

	faults := f.faults.all()
	require.Len(t, faults, 1)
	var fatal *FatalJobError
	assert.True(t, errors.As(faults[0], &fatal))
}

func TestQueueFatalLastJobDrains(t *testing.T) {
	f := newQueueFixture(t, context.Background(), nil)
	job := testJob("broken", 1)
	job.Source = "missing"

	drained := f.queue.Drained()
	f.queue.Enqueue(job)
	waitFor(t, drained)
	require.NoError(t, f.queue.Wait(context.Background()))

	assert.Equal(t, data.JobIdle, job.State())
	assert.Equal(t, int32(1), f.host.stops.Load())
}

func TestQueueListeners(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 1})
	extra := &countingListener{}
	f.queue.Subscribe(extra)
	f.queue.Unsubscribe(&countingListener{})
	f.queue.Unsubscribe(extra)

	drained := f.queue.Drained()
	f.queue.Enqueue(testJob("A", 1))
	waitFor(t, drained)

	assert.Positive(t, f.listener.progress.Load())
	assert.Equal(t, int32(2), f.listener.changed.Load(), "preparing and finished")
	assert.Zero(t, extra.progress.Load())
	assert.Zero(t, extra.changed.Load())
}

func TestQueueSnapshot(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 1})
	g := newGate("A")
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		g.wait(page)
		return nil
	}
	a, b := testJob("A", 1), testJob("B", 1)

	f.queue.Enqueue(a)
	waitFor(t, g.started)
	f.queue.Enqueue(b)

	item, ok := f.queue.Item(1)
	assert.True(t, ok)
	assert.Same(t, b, item)
	assert.Equal(t, data.JobIdle, item.State())
	_, ok = f.queue.Item(2)
	assert.False(t, ok)
	_, ok = f.queue.Item(-1)
	assert.False(t, ok)
	assert.Equal(t, []*data.Job{a, b}, f.queue.Jobs())

	close(g.release)
	require.NoError(t, f.queue.Wait(context.Background()))
}

func TestQueueWaitHonorsContext(t *testing.T) {
	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 1})
	g := newGate("A")
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		g.wait(page)
		return nil
	}
	f.queue.Enqueue(testJob("A", 1))
	waitFor(t, g.started)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.queue.Wait(ctx), context.DeadlineExceeded)

	close(g.release)
	require.NoError(t, f.queue.Wait(context.Background()))
}

func TestQueueMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	f := newQueueFixture(t, context.Background(), map[string]int{"c0": 2})
	f.fetcher.fetchContentFunc = func(page *data.Page) error {
		if page.Index == 1 {
			return errors.New("gone")
		}
		return nil
	}
	f.deps.Metrics = metrics
	q, err := NewQueue(context.Background(), f.deps)
	require.NoError(t, err)

	drained := q.Drained()
	q.Enqueue(testJob("A", 1))
	waitFor(t, drained)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.jobs.WithLabelValues(ResultFinished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pagesFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fetchErrors.WithLabelValues(StageFetchContent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.queueLength))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.jobDone(ResultFinished)
	m.pageFetched()
	m.fetchFailed(StagePushPage)
	m.setQueueLength(3)
	m.setProgress(1, 2)
}
