package data

import "sync/atomic"

// JobState is the lifecycle state of a queued download.
type JobState int32

const (
	JobIdle JobState = iota
	JobRunning
	JobFinished
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobFinished:
		return "finished"
	default:
		return "idle"
	}
}

// Job is one download unit: a manga and the ordered chapters selected for it.
type Job struct {
	Manga
	Chapters []*Chapter
	Progress *Progress

	state atomic.Int32
}

// NewJob builds an idle job whose progress is sized to the chapter list.
func NewJob(manga Manga, chapters []*Chapter) *Job {
	for i, ch := range chapters {
		ch.Index = i
	}
	return &Job{
		Manga:    manga,
		Chapters: chapters,
		Progress: NewProgress(len(chapters)),
	}
}

func (j *Job) State() JobState {
	return JobState(j.state.Load())
}

func (j *Job) SetState(s JobState) {
	j.state.Store(int32(s))
}

// PageCount returns the number of pages recorded across all chapters.
func (j *Job) PageCount() int {
	n := 0
	for _, ch := range j.Chapters {
		n += len(ch.Pages)
	}
	return n
}
