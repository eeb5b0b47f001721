package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kerbaras/mangaqueue/pkg/app/styles"
	"github.com/kerbaras/mangaqueue/pkg/services"
)

// linesPerItem is how many terminal lines a rendered entry takes.
const linesPerItem = 3

// MangaList is a scrolling cursor over library entries.
type MangaList struct {
	Items         []services.LibraryEntry
	SelectedIndex int
	Width         int
	Height        int
}

func NewMangaList() *MangaList {
	return &MangaList{
		Width:  80,
		Height: 20,
	}
}

func (m *MangaList) SetItems(items []services.LibraryEntry) {
	m.Items = items
	if m.SelectedIndex >= len(items) {
		m.SelectedIndex = len(items) - 1
	}
	if m.SelectedIndex < 0 {
		m.SelectedIndex = 0
	}
}

func (m *MangaList) Next() {
	if len(m.Items) == 0 {
		return
	}
	m.SelectedIndex = (m.SelectedIndex + 1) % len(m.Items)
}

func (m *MangaList) Prev() {
	if len(m.Items) == 0 {
		return
	}
	m.SelectedIndex = (m.SelectedIndex - 1 + len(m.Items)) % len(m.Items)
}

func (m *MangaList) Selected() *services.LibraryEntry {
	if len(m.Items) == 0 || m.SelectedIndex >= len(m.Items) {
		return nil
	}
	return &m.Items[m.SelectedIndex]
}

// window returns the slice of items that fits in Height around the cursor.
func (m *MangaList) window() (int, int) {
	visible := m.Height / linesPerItem
	if visible < 1 {
		visible = 1
	}
	if len(m.Items) <= visible {
		return 0, len(m.Items)
	}
	start := m.SelectedIndex - visible/2
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > len(m.Items) {
		end = len(m.Items)
		start = end - visible
	}
	return start, end
}

func (m *MangaList) View() string {
	if len(m.Items) == 0 {
		emptyMsg := styles.MutedStyle.Render("No manga in library")
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, emptyMsg)
	}

	var b strings.Builder
	start, end := m.window()
	for i := start; i < end; i++ {
		item := m.Items[i]

		cursor := "  "
		name := styles.TextStyle.Render(item.Name)
		if i == m.SelectedIndex {
			cursor = styles.SelectedStyle.Render("> ")
			name = styles.SelectedStyle.Render(item.Name)
		}

		status := item.Status
		if status == "" {
			status = "ready"
		}
		b.WriteString(cursor + name + "  " + styles.StatusStyle(item.Status).Render(status))
		b.WriteString("\n")
		b.WriteString("    " + styles.MutedStyle.Render(fmt.Sprintf(
			"%d / %d downloaded • %s", item.Downloaded, item.Chapters, item.Source,
		)))
		b.WriteString("\n\n")
	}

	if start > 0 || end < len(m.Items) {
		b.WriteString(styles.MutedStyle.Render(
			fmt.Sprintf("Showing %d-%d of %d", start+1, end, len(m.Items)),
		))
	}
	return b.String()
}
