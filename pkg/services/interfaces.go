package services

import (
	"context"

	"github.com/kerbaras/mangaqueue/pkg/data"
)

// Store persists a job incrementally. Identifiers are assigned by the store.
type Store interface {
	PushJob(ctx context.Context, job *data.Job) (string, error)
	PushChapter(ctx context.Context, chapter *data.Chapter, jobID string) (string, error)
	PushPage(ctx context.Context, page *data.Page, jobID, chapterID string) (string, error)
}

// Status is a human-facing snapshot of the engine. Progress and Max are only
// meaningful when Indeterminate is false.
type Status struct {
	Title         string
	Text          string
	Progress      int
	Max           int
	Indeterminate bool
	Done          bool
	Cancelling    bool
}

// StatusSink receives status updates. It never feeds back into the engine.
type StatusSink interface {
	Update(Status)
}

// FaultReporter receives errors that do not stop the queue.
type FaultReporter interface {
	Report(err error)
}

// ContentAddedObserver learns about jobs that finished downloading.
type ContentAddedObserver interface {
	OnContentAdded(job *data.Job)
}

// Host is the environment running the queue.
type Host interface {
	// Stop asks the host to shut down; the queue has nothing left to do.
	Stop()
}

// Listener is notified of queue activity. Calls happen on the goroutine that
// caused the event and must not block.
type Listener interface {
	OnProgress(index int)
	OnQueueChanged()
}

type StatusFunc func(Status)

func (f StatusFunc) Update(s Status) { f(s) }

type HostFunc func()

func (f HostFunc) Stop() { f() }

type nopCollaborators struct{}

func (nopCollaborators) Update(Status)            {}
func (nopCollaborators) Report(error)             {}
func (nopCollaborators) OnContentAdded(*data.Job) {}
func (nopCollaborators) Stop()                    {}
