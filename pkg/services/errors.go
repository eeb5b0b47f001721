package services

import "fmt"

// Stages at which a TransientFetchError can happen.
const (
	StagePushChapter  = "push_chapter"
	StageListPages    = "list_pages"
	StageFetchContent = "fetch_content"
	StagePushPage     = "push_page"
)

// FatalJobError means a job could not start at all. Only that job is
// abandoned; the queue moves on.
type FatalJobError struct {
	Source string
	Err    error
}

func (e *FatalJobError) Error() string {
	return fmt.Sprintf("job for source %s cannot run: %v", e.Source, e.Err)
}

func (e *FatalJobError) Unwrap() error {
	return e.Err
}

// TransientFetchError is a failed chapter or page. The unit is skipped and
// not retried. Page is -1 for chapter level failures.
type TransientFetchError struct {
	Stage   string
	Chapter int
	Page    int
	Err     error
}

func (e *TransientFetchError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("%s failed for chapter %d: %v", e.Stage, e.Chapter, e.Err)
	}
	return fmt.Sprintf("%s failed for chapter %d page %d: %v", e.Stage, e.Chapter, e.Page, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}
