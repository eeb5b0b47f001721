package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/mangaqueue/pkg/app/components"
	"github.com/kerbaras/mangaqueue/pkg/app/styles"
	"github.com/kerbaras/mangaqueue/pkg/services"
)

type LibraryScreen struct {
	ctrl      Controller
	mangaList *components.MangaList
	notice    string
	width     int
	height    int
	err       error
}

func NewLibraryScreen(ctrl Controller) *LibraryScreen {
	return &LibraryScreen{
		ctrl:      ctrl,
		mangaList: components.NewMangaList(),
	}
}

func (s *LibraryScreen) Init() tea.Cmd {
	return s.loadLibrary
}

func (s *LibraryScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.mangaList.Width = msg.Width - 4
		s.mangaList.Height = msg.Height - 10

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			s.mangaList.Prev()
		case "down", "j":
			s.mangaList.Next()
		case "r":
			return s, s.loadLibrary
		case "d":
			// Delete selected manga
			if selected := s.mangaList.Selected(); selected != nil {
				return s, s.deleteManga(selected.ID)
			}
		case "e":
			// Build an EPUB from what is stored
			if selected := s.mangaList.Selected(); selected != nil {
				s.notice = "Exporting " + selected.Name + "..."
				return s, s.exportEPUB(selected.ID)
			}
		case "enter":
			// Pick chapters of the selected manga
			if selected := s.mangaList.Selected(); selected != nil {
				return s, switchTo("details", mangaRef{
					Source:   selected.Source,
					RemoteID: selected.RemoteID,
					Back:     "library",
				})
			}
		}

	case QueueChangedMsg:
		return s, s.loadLibrary

	case libraryLoadedMsg:
		s.err = msg.err
		if msg.err == nil {
			s.mangaList.SetItems(msg.items)
		}

	case epubExportedMsg:
		s.err = msg.err
		s.notice = ""
		if msg.err == nil {
			s.notice = "EPUB written to " + msg.path
		}

	case mangaDeletedMsg:
		s.err = msg.err
		return s, s.loadLibrary
	}

	return s, nil
}

func (s *LibraryScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("📚 Manga Library")

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	} else if s.notice != "" {
		errorMsg = styles.SubtitleStyle.Render(s.notice) + "\n\n"
	}

	help := styles.HelpStyle.Render(
		"↑/k: up • ↓/j: down • enter: chapters • e: export EPUB • d: delete • r: refresh • tab: switch view • q: quit",
	)

	return fmt.Sprintf("%s\n\n%s%s\n%s", header, errorMsg, s.mangaList.View(), help)
}

// Messages
type libraryLoadedMsg struct {
	items []services.LibraryEntry
	err   error
}

type epubExportedMsg struct {
	path string
	err  error
}

type mangaDeletedMsg struct {
	err error
}

// Commands
func (s *LibraryScreen) loadLibrary() tea.Msg {
	ctx, cancel := withTimeout()
	defer cancel()
	items, err := s.ctrl.Library(ctx)
	return libraryLoadedMsg{items: items, err: err}
}

func (s *LibraryScreen) exportEPUB(mangaID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		path, err := s.ctrl.Export(ctx, mangaID)
		return epubExportedMsg{path: path, err: err}
	}
}

func (s *LibraryScreen) deleteManga(mangaID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		return mangaDeletedMsg{err: s.ctrl.Remove(ctx, mangaID)}
	}
}
