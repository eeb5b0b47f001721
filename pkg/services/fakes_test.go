package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

// eventLog collects calls from every fake in the order they happen.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

type mockStore struct {
	log *eventLog

	pushJobFunc     func(job *data.Job) error
	pushChapterFunc func(chapter *data.Chapter) error
	pushPageFunc    func(page *data.Page) error

	mu    sync.Mutex
	pages []*data.Page
}

func (m *mockStore) PushJob(_ context.Context, job *data.Job) (string, error) {
	m.log.add("push_job:%s", job.Name)
	if m.pushJobFunc != nil {
		if err := m.pushJobFunc(job); err != nil {
			return "", err
		}
	}
	return "job-" + job.Name, nil
}

func (m *mockStore) PushChapter(_ context.Context, chapter *data.Chapter, jobID string) (string, error) {
	m.log.add("push_chapter:%d", chapter.Index)
	if m.pushChapterFunc != nil {
		if err := m.pushChapterFunc(chapter); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s-ch%d", jobID, chapter.Index), nil
}

func (m *mockStore) PushPage(_ context.Context, page *data.Page, jobID, chapterID string) (string, error) {
	m.log.add("push_page:%s:%d", chapterID, page.Index)
	if m.pushPageFunc != nil {
		if err := m.pushPageFunc(page); err != nil {
			return "", err
		}
	}
	m.mu.Lock()
	m.pages = append(m.pages, page)
	m.mu.Unlock()
	return fmt.Sprintf("%s-p%d", chapterID, page.Index), nil
}

func (m *mockStore) pushedPages() []*data.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*data.Page, len(m.pages))
	copy(out, m.pages)
	return out
}

// mockFetcher serves pageCounts[readLink] pages per chapter.
type mockFetcher struct {
	log        *eventLog
	pageCounts map[string]int

	listPagesFunc    func(chapter *data.Chapter) error
	fetchContentFunc func(page *data.Page) error
}

func (m *mockFetcher) ListPages(_ context.Context, chapter *data.Chapter) ([]*data.Page, error) {
	m.log.add("list_pages:%d", chapter.Index)
	if m.listPagesFunc != nil {
		if err := m.listPagesFunc(chapter); err != nil {
			return nil, err
		}
	}
	pages := make([]*data.Page, m.pageCounts[chapter.ReadLink])
	for i := range pages {
		pages[i] = &data.Page{URL: fmt.Sprintf("%s/%d.png", chapter.ReadLink, i)}
	}
	return pages, nil
}

func (m *mockFetcher) FetchContent(_ context.Context, page *data.Page) (string, error) {
	m.log.add("fetch:%s:%d", page.ChapterID, page.Index)
	if m.fetchContentFunc != nil {
		if err := m.fetchContentFunc(page); err != nil {
			return "", err
		}
	}
	return "/pages/" + page.URL, nil
}

func registryWith(name string, fetcher sources.Fetcher) *sources.Registry {
	r := sources.NewRegistry()
	r.Register(name, func(sources.Options) (sources.Fetcher, error) { return fetcher, nil }, sources.Options{})
	return r
}

type recordingSink struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *recordingSink) Update(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *recordingSink) all() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func (s *recordingSink) count(match func(Status) bool) int {
	n := 0
	for _, st := range s.all() {
		if match(st) {
			n++
		}
	}
	return n
}

type recordingFaults struct {
	mu   sync.Mutex
	errs []error
}

func (f *recordingFaults) Report(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *recordingFaults) all() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]error, len(f.errs))
	copy(out, f.errs)
	return out
}

type recordingObserver struct {
	log *eventLog

	mu   sync.Mutex
	jobs []*data.Job
}

func (o *recordingObserver) OnContentAdded(job *data.Job) {
	o.log.add("content_added:%s", job.Name)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, job)
}

func (o *recordingObserver) names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var names []string
	for _, j := range o.jobs {
		names = append(names, j.Name)
	}
	return names
}

type countingHost struct {
	stops atomic.Int32
}

func (h *countingHost) Stop() { h.stops.Add(1) }

type countingListener struct {
	log *eventLog

	progress atomic.Int32
	changed  atomic.Int32

	mu      sync.Mutex
	indexes []int
}

func (l *countingListener) OnProgress(index int) {
	l.progress.Add(1)
	l.mu.Lock()
	l.indexes = append(l.indexes, index)
	l.mu.Unlock()
}

func (l *countingListener) OnQueueChanged() {
	if l.log != nil {
		l.log.add("queue_changed")
	}
	l.changed.Add(1)
}

func (l *countingListener) seenIndexes() map[int]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[int]bool)
	for _, i := range l.indexes {
		seen[i] = true
	}
	return seen
}

// testJob builds a job whose chapters are read links "c0", "c1", ...
func testJob(name string, chapters int) *data.Job {
	list := make([]*data.Chapter, chapters)
	for i := range list {
		list[i] = &data.Chapter{ReadLink: fmt.Sprintf("c%d", i), Number: fmt.Sprint(i + 1)}
	}
	return data.NewJob(data.Manga{Name: name, Source: "fake", RemoteID: name}, list)
}
