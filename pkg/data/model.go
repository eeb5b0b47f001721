package data

import "errors"

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Manga status values persisted in the library.
const (
	MangaDownloading = "downloading"
	MangaCompleted   = "completed"
	MangaCancelled   = "cancelled"
)

type Manga struct {
	ID          string // durable id, assigned by the store
	RemoteID    string // id at the source
	Name        string
	Description string
	CoverURL    string
	Source      string
	Status      string // "downloading", "completed", "cancelled"
}

type Chapter struct {
	ID       string // durable id, assigned by the store
	MangaID  string
	Index    int
	ReadLink string // remote reference used to list pages
	Title    string
	Language string
	Volume   string
	Number   string

	// Pages processed so far; filled in while the chapter downloads.
	Pages []*Page
}

// DisplayTitle renders the chapter heading used in exports and the UI.
func (c *Chapter) DisplayTitle() string {
	title := "Chapter " + c.Number
	if c.Number == "" {
		title = "Oneshot"
	}
	if c.Volume != "" && c.Volume != "0" {
		title = "Vol. " + c.Volume + ", " + title
	}
	if c.Title != "" {
		title += ": " + c.Title
	}
	return title
}

type Page struct {
	ID        string // durable id, assigned by the store
	ChapterID string
	Index     int
	URL       string // remote reference
	Path      string // local content reference, set once fetched
}
