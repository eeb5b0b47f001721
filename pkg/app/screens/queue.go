package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/mangaqueue/pkg/app/components"
	"github.com/kerbaras/mangaqueue/pkg/app/styles"
)

// QueueScreen shows every queued job with its progress.
type QueueScreen struct {
	ctrl    Controller
	tracker *components.ProgressTracker
	width   int
	height  int
}

func NewQueueScreen(ctrl Controller) *QueueScreen {
	return &QueueScreen{
		ctrl:    ctrl,
		tracker: components.NewProgressTracker(80),
	}
}

func (s *QueueScreen) Init() tea.Cmd {
	s.tracker.SetJobs(s.ctrl.Jobs())
	return nil
}

func (s *QueueScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.tracker.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			// Cancel runs as a command; it notifies the program synchronously
			return s, s.cancel
		case "r":
			s.tracker.SetJobs(s.ctrl.Jobs())
		}

	case ProgressMsg:
		if job, ok := s.ctrl.Item(msg.Index); ok {
			s.tracker.Refresh(msg.Index, job)
		}

	case QueueChangedMsg, IdleMsg:
		s.tracker.SetJobs(s.ctrl.Jobs())

	case StatusMsg:
		s.tracker.SetStatus(msg.Status)
	}
	return s, nil
}

func (s *QueueScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("⬇ Downloads")
	help := styles.HelpStyle.Render("c: cancel all • r: refresh • tab: switch view • q: quit")
	return fmt.Sprintf("%s\n\n%s\n%s", header, s.tracker.View(), help)
}

// Rows exposes the rendered snapshot.
func (s *QueueScreen) Rows() []components.JobRow {
	return s.tracker.Rows()
}

type cancelRequestedMsg struct{}

func (s *QueueScreen) cancel() tea.Msg {
	s.ctrl.Cancel()
	return cancelRequestedMsg{}
}
