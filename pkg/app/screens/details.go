package screens

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kerbaras/mangaqueue/pkg/app/styles"
	"github.com/kerbaras/mangaqueue/pkg/data"
)

// visibleChapters is how many chapter rows the list shows at once.
const visibleChapters = 12

var errNothingSelected = errors.New("select at least one chapter")

// DetailsScreen lets the user pick which chapters of a manga to download.
type DetailsScreen struct {
	ctrl     Controller
	ref      mangaRef
	manga    *data.Manga
	chapters []*data.Chapter
	checked  []bool
	cursor   int
	loading  bool
	saving   bool
	width    int
	height   int
	err      error
}

func NewDetailsScreen(ctrl Controller, ref mangaRef) *DetailsScreen {
	return &DetailsScreen{
		ctrl:    ctrl,
		ref:     ref,
		loading: true,
	}
}

func (s *DetailsScreen) Init() tea.Cmd {
	return s.loadChapters
}

func (s *DetailsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height

	case tea.KeyMsg:
		if s.saving {
			return s, nil
		}
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < len(s.chapters)-1 {
				s.cursor++
			}
		case " ", "x":
			if len(s.checked) > 0 {
				s.checked[s.cursor] = !s.checked[s.cursor]
			}
		case "a":
			// Check all, or clear when everything is checked
			s.toggleAll()
		case "s", "enter":
			return s, s.save()
		case "esc", "backspace":
			// Go back to where we came from
			return s, switchTo(s.back(), nil)
		}

	case chaptersLoadedMsg:
		s.loading = false
		s.err = msg.err
		if msg.err == nil {
			s.manga = msg.manga
			s.chapters = msg.chapters
			s.checked = make([]bool, len(msg.chapters))
			s.cursor = 0
		}

	case jobEnqueuedMsg:
		return s, switchTo("queue", nil)
	}

	return s, nil
}

// toggleAll checks every chapter, or clears them when all are checked.
func (s *DetailsScreen) toggleAll() {
	all := s.SelectedCount() == len(s.checked)
	for i := range s.checked {
		s.checked[i] = !all
	}
}

// SelectedCount is the number of checked chapters.
func (s *DetailsScreen) SelectedCount() int {
	n := 0
	for _, c := range s.checked {
		if c {
			n++
		}
	}
	return n
}

func (s *DetailsScreen) back() string {
	if s.ref.Back == "" {
		return "library"
	}
	return s.ref.Back
}

// save enqueues the checked chapters, in catalog order, as one job.
func (s *DetailsScreen) save() tea.Cmd {
	if s.manga == nil {
		return nil
	}
	var selected []*data.Chapter
	for i, ch := range s.chapters {
		if s.checked[i] {
			copied := *ch
			selected = append(selected, &copied)
		}
	}
	if len(selected) == 0 {
		s.err = errNothingSelected
		return nil
	}

	manga := *s.manga
	manga.Status = data.MangaDownloading
	job := data.NewJob(manga, selected)
	s.saving = true
	s.err = nil
	return func() tea.Msg {
		s.ctrl.Enqueue(job)
		return jobEnqueuedMsg{job: job}
	}
}

func (s *DetailsScreen) View() string {
	if s.width == 0 || s.loading {
		return "Loading..."
	}

	var errorMsg string
	if s.err != nil {
		errorMsg = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	}
	if s.manga == nil {
		return errorMsg + styles.HelpStyle.Render("esc: back • q: quit")
	}

	header := styles.TitleStyle.Render(fmt.Sprintf("📖 %s", s.manga.Name))

	help := styles.HelpStyle.Render(
		"↑/k ↓/j: navigate • space: check • a: check all • s: download selected • esc: back",
	)

	return fmt.Sprintf("%s\n\n%s%s\n%s\n%s",
		header,
		errorMsg,
		s.renderMangaInfo(),
		s.renderChaptersList(),
		help,
	)
}

func (s *DetailsScreen) renderMangaInfo() string {
	desc := s.manga.Description
	if len(desc) > 200 {
		desc = desc[:197] + "..."
	}

	info := lipgloss.JoinVertical(
		lipgloss.Left,
		styles.TextStyle.Render(desc),
		styles.MutedStyle.Render(fmt.Sprintf("Source: %s", s.manga.Source)),
	)

	return styles.CardStyle.Width(s.width - 4).Render(info)
}

func (s *DetailsScreen) renderChaptersList() string {
	if len(s.chapters) == 0 {
		return styles.MutedStyle.Render("No chapters available")
	}

	var b strings.Builder
	b.WriteString(styles.SubtitleStyle.Render(
		fmt.Sprintf("Chapters (%d selected of %d):", s.SelectedCount(), len(s.chapters)),
	))
	b.WriteString("\n\n")

	// Keep the cursor near the middle of the window
	start := 0
	end := len(s.chapters)
	if end > visibleChapters {
		start = s.cursor - visibleChapters/2
		if start < 0 {
			start = 0
		}
		end = start + visibleChapters
		if end > len(s.chapters) {
			end = len(s.chapters)
			start = end - visibleChapters
		}
	}

	for i := start; i < end; i++ {
		box := "[ ]"
		style := styles.MutedStyle
		if s.checked[i] {
			box = "[x]"
			style = styles.CheckedStyle
		}
		line := fmt.Sprintf("%s %s", box, s.chapters[i].DisplayTitle())
		if i == s.cursor {
			line = styles.SelectedStyle.Render("> " + line)
		} else {
			line = style.Render("  " + line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(s.chapters) > visibleChapters {
		b.WriteString("\n")
		b.WriteString(styles.MutedStyle.Render(
			fmt.Sprintf("Showing %d-%d of %d chapters", start+1, end, len(s.chapters)),
		))
	}

	return b.String()
}

// Messages
type chaptersLoadedMsg struct {
	manga    *data.Manga
	chapters []*data.Chapter
	err      error
}

type jobEnqueuedMsg struct {
	job *data.Job
}

func (s *DetailsScreen) loadChapters() tea.Msg {
	ctx, cancel := withTimeout()
	defer cancel()
	manga, chapters, err := s.ctrl.Chapters(ctx, s.ref.Source, s.ref.RemoteID, "")
	return chaptersLoadedMsg{manga: manga, chapters: chapters, err: err}
}
