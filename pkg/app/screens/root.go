package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kerbaras/mangaqueue/pkg/app/styles"
)

type screenType int

const (
	libraryView screenType = iota
	searchView
	queueView
	detailsView
)

// tabCount is the number of views reachable with tab.
const tabCount = 3

var tabNames = [tabCount]string{"Library", "Search", "Queue"}

type RootScreen struct {
	ctrl Controller

	currentView screenType
	library     *LibraryScreen
	search      *SearchScreen
	queue       *QueueScreen
	details     *DetailsScreen

	width  int
	height int
}

// NewRootScreen builds the tabbed UI. Searches go to source.
func NewRootScreen(ctrl Controller, source string) *RootScreen {
	return &RootScreen{
		ctrl:        ctrl,
		currentView: libraryView,
		library:     NewLibraryScreen(ctrl),
		search:      NewSearchScreen(ctrl, source),
		queue:       NewQueueScreen(ctrl),
	}
}

func (r *RootScreen) Init() tea.Cmd {
	return tea.Batch(r.library.Init(), r.queue.Init())
}

func (r *RootScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		return r, r.broadcast(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return r, tea.Quit
		case "q":
			if !r.typing() {
				return r, tea.Quit
			}
		case "tab":
			// Cycle through views
			if r.currentView == detailsView {
				// Can't tab away from details, use esc
				break
			}
			return r, r.show(screenType((int(r.currentView) + 1) % tabCount))
		}

	// Queue events reach the queue tab even while it is hidden
	case ProgressMsg, StatusMsg, IdleMsg:
		_, cmd := r.queue.Update(msg)
		return r, cmd

	case QueueChangedMsg:
		_, queueCmd := r.queue.Update(msg)
		_, libraryCmd := r.library.Update(msg)
		return r, tea.Batch(queueCmd, libraryCmd)

	case SwitchScreenMsg:
		switch msg.Screen {
		case "library":
			return r, r.show(libraryView)
		case "search":
			return r, r.show(searchView)
		case "queue":
			return r, r.show(queueView)
		case "details":
			if ref, ok := msg.Data.(mangaRef); ok {
				r.details = NewDetailsScreen(r.ctrl, ref)
				r.details.Update(tea.WindowSizeMsg{Width: r.width, Height: r.height})
				r.currentView = detailsView
				return r, r.details.Init()
			}
		}
		return r, nil
	}

	// Forward message to active screen
	var cmd tea.Cmd
	switch r.currentView {
	case libraryView:
		_, cmd = r.library.Update(msg)
	case searchView:
		_, cmd = r.search.Update(msg)
	case queueView:
		_, cmd = r.queue.Update(msg)
	case detailsView:
		if r.details != nil {
			_, cmd = r.details.Update(msg)
		}
	}
	return r, cmd
}

// typing reports whether the focused screen consumes plain keys.
func (r *RootScreen) typing() bool {
	return r.currentView == searchView && r.search.Typing()
}

func (r *RootScreen) show(view screenType) tea.Cmd {
	r.currentView = view
	switch view {
	case libraryView:
		return r.library.Init()
	case searchView:
		return r.search.Init()
	case queueView:
		return r.queue.Init()
	}
	return nil
}

// broadcast sends msg to every screen so hidden ones stay sized.
func (r *RootScreen) broadcast(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	for _, screen := range []tea.Model{r.library, r.search, r.queue} {
		_, cmd := screen.Update(msg)
		cmds = append(cmds, cmd)
	}
	if r.details != nil {
		_, cmd := r.details.Update(msg)
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

func (r *RootScreen) View() string {
	var content string
	switch r.currentView {
	case libraryView:
		content = r.library.View()
	case searchView:
		content = r.search.View()
	case queueView:
		content = r.queue.View()
	case detailsView:
		if r.details != nil {
			content = r.details.View()
		}
	}

	if r.currentView == detailsView {
		return content
	}
	return fmt.Sprintf("%s\n\n%s", r.renderTabs(), content)
}

func (r *RootScreen) renderTabs() string {
	tabs := make([]string, 0, tabCount)
	for i, name := range tabNames {
		if screenType(i) == r.currentView {
			tabs = append(tabs, styles.ActiveTabStyle.Render(name))
		} else {
			tabs = append(tabs, styles.InactiveTabStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}
