package screens

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/mangaqueue/pkg/app/styles"
	"github.com/kerbaras/mangaqueue/pkg/data"
)

type SearchScreen struct {
	ctrl      Controller
	source    string
	input     textinput.Model
	results   []*data.Manga
	selected  int
	searching bool
	width     int
	height    int
	err       error
}

func NewSearchScreen(ctrl Controller, source string) *SearchScreen {
	ti := textinput.New()
	ti.Placeholder = "Search manga..."
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 50

	return &SearchScreen{
		ctrl:   ctrl,
		source: source,
		input:  ti,
	}
}

func (s *SearchScreen) Init() tea.Cmd {
	return textinput.Blink
}

// Typing reports whether keys go to the search input.
func (s *SearchScreen) Typing() bool {
	return s.input.Focused()
}

func (s *SearchScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height

	case tea.KeyMsg:
		if s.searching {
			return s, nil
		}

		switch msg.String() {
		case "enter":
			if s.input.Focused() {
				// Perform search
				query := strings.TrimSpace(s.input.Value())
				if query != "" {
					s.searching = true
					return s, s.performSearch(query)
				}
			} else if len(s.results) > 0 {
				manga := s.results[s.selected]
				return s, switchTo("details", mangaRef{Source: manga.Source, RemoteID: manga.RemoteID, Back: "search"})
			}

		case "esc":
			// Toggle focus between input and results
			if s.input.Focused() {
				s.input.Blur()
			} else {
				s.input.Focus()
				cmd = textinput.Blink
			}
			return s, cmd

		case "up", "k":
			if !s.input.Focused() && len(s.results) > 0 {
				s.selected = (s.selected - 1 + len(s.results)) % len(s.results)
			}

		case "down", "j":
			if !s.input.Focused() && len(s.results) > 0 {
				s.selected = (s.selected + 1) % len(s.results)
			}
		}

	case searchResultMsg:
		s.searching = false
		s.results = msg.results
		s.selected = 0
		s.err = msg.err
		if len(s.results) > 0 {
			s.input.Blur()
		}
	}

	if s.input.Focused() {
		s.input, cmd = s.input.Update(msg)
	}

	return s, cmd
}

func (s *SearchScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("🔍 Search " + s.source)

	inputStyle := styles.InputStyle
	if s.input.Focused() {
		inputStyle = styles.FocusedInputStyle
	}
	inputView := inputStyle.Render(s.input.View())

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	}

	var resultsView string
	switch {
	case s.searching:
		resultsView = styles.StatusDownloading.Render("Searching...")
	case len(s.results) > 0:
		resultsView = s.renderResults()
	case s.input.Value() != "":
		resultsView = styles.MutedStyle.Render("No results found")
	}

	help := styles.HelpStyle.Render(
		"enter: search/choose chapters • esc: switch focus • ↑/k ↓/j: navigate • tab: switch view • q: quit",
	)

	return fmt.Sprintf("%s\n\n%s\n\n%s%s\n\n%s", header, inputView, errorMsg, resultsView, help)
}

func (s *SearchScreen) renderResults() string {
	var b strings.Builder
	b.WriteString(styles.SubtitleStyle.Render(fmt.Sprintf("Found %d results:", len(s.results))))
	b.WriteString("\n\n")

	for i, manga := range s.results {
		cursor := "  "
		name := styles.TextStyle.Render(manga.Name)
		if i == s.selected && !s.input.Focused() {
			cursor = styles.SelectedStyle.Render("> ")
			name = styles.SelectedStyle.Render(manga.Name)
		}

		desc := strings.ReplaceAll(manga.Description, "\n", " ")
		if len(desc) > 100 {
			desc = desc[:97] + "..."
		}

		b.WriteString(cursor + name + "\n")
		if desc != "" {
			b.WriteString("    " + styles.MutedStyle.Render(desc) + "\n")
		}
	}
	return b.String()
}

type searchResultMsg struct {
	results []*data.Manga
	err     error
}

func (s *SearchScreen) performSearch(query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := withTimeout()
		defer cancel()
		results, err := s.ctrl.Search(ctx, s.source, query)
		return searchResultMsg{results: results, err: err}
	}
}
