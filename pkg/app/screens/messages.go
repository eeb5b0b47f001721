package screens

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/services"
)

// requestTimeout bounds catalog and library calls made from the UI.
const requestTimeout = 30 * time.Second

// Controller is what the screens need from services.MangaController.
//
// Enqueue and Cancel notify queue listeners synchronously, and the UI
// listener forwards to the running program. Call them from a tea.Cmd, never
// from Update.
type Controller interface {
	Library(ctx context.Context) ([]services.LibraryEntry, error)
	Search(ctx context.Context, source, query string) ([]*data.Manga, error)
	Chapters(ctx context.Context, source, mangaID, language string) (*data.Manga, []*data.Chapter, error)
	Export(ctx context.Context, mangaID string) (string, error)
	Remove(ctx context.Context, mangaID string) error
	Enqueue(job *data.Job)
	Cancel()
	Jobs() []*data.Job
	Item(pos int) (*data.Job, bool)
}

// ProgressMsg reports progress of the job at Index.
type ProgressMsg struct {
	Index int
}

// QueueChangedMsg reports that jobs were added, started, finished or dropped.
type QueueChangedMsg struct{}

// StatusMsg carries the latest engine status.
type StatusMsg struct {
	Status services.Status
}

// IdleMsg reports that the queue has nothing left to run.
type IdleMsg struct{}

// SwitchScreenMsg asks the root screen to change view.
type SwitchScreenMsg struct {
	Screen string
	Data   interface{}
}

// mangaRef points at a manga in a source catalog.
type mangaRef struct {
	Source   string
	RemoteID string
	// Back is the screen to return to.
	Back string
}

func switchTo(screen string, payload interface{}) tea.Cmd {
	return func() tea.Msg { return SwitchScreenMsg{Screen: screen, Data: payload} }
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
