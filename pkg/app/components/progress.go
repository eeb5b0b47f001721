package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/kerbaras/mangaqueue/pkg/app/styles"
	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/services"
)

// JobRow is a snapshot of one queued job, safe to render after the runner
// moved on.
type JobRow struct {
	Name     string
	State    data.JobState
	Chapter  int
	Chapters int
	// Page progress of the current chapter
	PageDone  int
	PageTotal int
	Percent   int
}

// RowOf snapshots job.
func RowOf(job *data.Job) JobRow {
	row := JobRow{
		Name:     job.Name,
		State:    job.State(),
		Chapter:  job.Progress.Pos(),
		Chapters: job.Progress.Chapters(),
		Percent:  job.Progress.Percent(),
	}
	row.PageDone, row.PageTotal = job.Progress.Chapter(row.Chapter)
	return row
}

// ProgressTracker renders the download queue with one bar per job.
type ProgressTracker struct {
	rows   []JobRow
	status services.Status
	width  int
	bar    progress.Model
}

func NewProgressTracker(width int) *ProgressTracker {
	p := &ProgressTracker{}
	p.SetWidth(width)
	return p
}

func (p *ProgressTracker) SetWidth(width int) {
	p.width = width
	barWidth := width - 10
	if barWidth < 10 {
		barWidth = 10
	}
	p.bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth))
}

// SetJobs replaces every row with a fresh snapshot of jobs.
func (p *ProgressTracker) SetJobs(jobs []*data.Job) {
	p.rows = make([]JobRow, len(jobs))
	for i, job := range jobs {
		p.rows[i] = RowOf(job)
	}
}

// Refresh updates the row at index. Unknown positions are ignored.
func (p *ProgressTracker) Refresh(index int, job *data.Job) {
	if index < 0 || index >= len(p.rows) {
		return
	}
	p.rows[index] = RowOf(job)
}

func (p *ProgressTracker) SetStatus(st services.Status) {
	p.status = st
}

func (p *ProgressTracker) Rows() []JobRow {
	return p.rows
}

func (p *ProgressTracker) Clear() {
	p.rows = nil
	p.status = services.Status{}
}

// HasActive reports whether a job is running.
func (p *ProgressTracker) HasActive() bool {
	for _, row := range p.rows {
		if row.State == data.JobRunning {
			return true
		}
	}
	return false
}

func (p *ProgressTracker) View() string {
	var b strings.Builder
	b.WriteString(p.statusLine())
	b.WriteString("\n\n")

	if len(p.rows) == 0 {
		b.WriteString(styles.MutedStyle.Render("Queue is empty"))
		return b.String()
	}

	for i, row := range p.rows {
		state := row.State.String()
		b.WriteString(styles.TextStyle.Render(fmt.Sprintf("%d. %s", i+1, row.Name)))
		b.WriteString("  ")
		b.WriteString(styles.StatusStyle(state).Render(state))
		b.WriteString("\n")
		b.WriteString(p.bar.ViewAs(float64(row.Percent) / 100))
		b.WriteString("\n")

		detail := fmt.Sprintf("%d chapters", row.Chapters)
		if row.State == data.JobRunning && row.Chapter < row.Chapters {
			detail = fmt.Sprintf("chapter %d/%d", row.Chapter+1, row.Chapters)
			if row.PageTotal > 0 {
				detail += fmt.Sprintf(" (%d/%d pages)", row.PageDone, row.PageTotal)
			}
		}
		b.WriteString(styles.MutedStyle.Render(detail))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (p *ProgressTracker) statusLine() string {
	st := p.status
	switch {
	case st.Cancelling:
		return styles.StatusCancelled.Render("Cancelling " + st.Title + "...")
	case st.Done:
		return styles.StatusCompleted.Render("All downloads finished")
	case st.Text == "":
		return styles.MutedStyle.Render("Idle")
	case st.Indeterminate:
		return styles.StatusDownloading.Render(fmt.Sprintf("%s: %s...", st.Title, st.Text))
	default:
		return styles.StatusDownloading.Render(fmt.Sprintf("%s: %s %s", st.Title, st.Text, percent(st.Progress, st.Max)))
	}
}

func percent(value, max int) string {
	if max <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", value*100/max)
}
