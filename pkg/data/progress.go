package data

import "sync"

// Progress tracks a single job: the current chapter position and, per chapter,
// the page total and the number of pages done. Only the runner owning the job
// writes to it; readers take snapshots.
type Progress struct {
	mu              sync.RWMutex
	pos             int
	chapterSizes    []int
	chapterProgress []int
}

// NewProgress sizes both per-chapter sequences to the chapter count.
func NewProgress(chapters int) *Progress {
	return &Progress{
		chapterSizes:    make([]int, chapters),
		chapterProgress: make([]int, chapters),
	}
}

// SetChapter records a primary progress event. pos is clamped to [0, chapters].
func (p *Progress) SetChapter(pos int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if pos > len(p.chapterSizes) {
		pos = len(p.chapterSizes)
	}
	p.pos = pos
}

// SetPage records a secondary progress event for the current chapter.
func (p *Progress) SetPage(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos >= len(p.chapterSizes) {
		return
	}
	p.chapterSizes[p.pos] = total
	p.chapterProgress[p.pos] = done
}

func (p *Progress) Pos() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

func (p *Progress) Chapters() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chapterSizes)
}

// Chapter returns the recorded (done, total) pages for chapter i.
func (p *Progress) Chapter(i int) (done, total int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.chapterSizes) {
		return 0, 0
	}
	return p.chapterProgress[i], p.chapterSizes[i]
}

// ChapterPercent is the integer percentage of the current chapter.
func (p *Progress) ChapterPercent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chapterPercent()
}

func (p *Progress) chapterPercent() int {
	if p.pos >= len(p.chapterSizes) || p.chapterSizes[p.pos] == 0 {
		return 0
	}
	return p.chapterProgress[p.pos] * 100 / p.chapterSizes[p.pos]
}

// Value is pos*100 plus the current chapter percentage, on a 0..Max scale.
func (p *Progress) Value() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos*100 + p.chapterPercent()
}

func (p *Progress) Max() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chapterSizes) * 100
}

// Percent scales Value to 0..100 with floor division.
func (p *Progress) Percent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.chapterSizes) == 0 {
		return 0
	}
	return (p.pos*100 + p.chapterPercent()) / len(p.chapterSizes)
}
