package sources

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	_ "golang.org/x/image/webp"

	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/utils"
)

const (
	MangaDexName = "mangadex"

	mangaDexBaseURL = "https://api.mangadex.org"
	coversBaseURL   = "https://uploads.mangadex.org/covers"
	feedPageSize    = 500
)

type Manga struct {
	ID         string `json:"id"`
	Attributes struct {
		Title       map[string]string `json:"title"`
		Description map[string]string `json:"description"`
	} `json:"attributes"`
	Relationships []struct {
		Type       string `json:"type"`
		Attributes struct {
			FileName string `json:"fileName"`
		} `json:"attributes"`
	} `json:"relationships"`
}

// localized picks the English value, falling back to any other.
func localized(m map[string]string) string {
	if v, ok := m["en"]; ok {
		return v
	}
	for _, v := range m {
		return v
	}
	return ""
}

func (m *Manga) ToManga() *data.Manga {
	manga := &data.Manga{
		RemoteID:    m.ID,
		Name:        localized(m.Attributes.Title),
		Description: localized(m.Attributes.Description),
		Source:      MangaDexName,
	}
	for _, rel := range m.Relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			manga.CoverURL = fmt.Sprintf("%s/%s/%s", coversBaseURL, m.ID, rel.Attributes.FileName)
		}
	}
	return manga
}

type Chapter struct {
	ID         string `json:"id"`
	Attributes struct {
		Title    string `json:"title"`
		Language string `json:"translatedLanguage"`
		Volume   string `json:"volume"`
		Number   string `json:"chapter"`
		Pages    int    `json:"pages"`
	} `json:"attributes"`
}

func (c *Chapter) ToChapter() *data.Chapter {
	return &data.Chapter{
		ReadLink: c.ID,
		Title:    c.Attributes.Title,
		Language: c.Attributes.Language,
		Volume:   c.Attributes.Volume,
		Number:   c.Attributes.Number,
	}
}

// MangaDex is both the catalog and the page fetcher for api.mangadex.org.
type MangaDex struct {
	api         *utils.API
	downloadDir string
	language    string
}

func NewMangaDex(opts Options) *MangaDex {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = mangaDexBaseURL
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}
	return &MangaDex{
		api:         utils.NewAPI(baseURL, opts.RequestsPerSecond),
		downloadDir: opts.DownloadDir,
		language:    language,
	}
}

// NewMangaDexFetcher is the registry Factory for MangaDex. It fails when the
// download directory cannot be prepared.
func NewMangaDexFetcher(opts Options) (Fetcher, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download directory is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return NewMangaDex(opts), nil
}

func (m *MangaDex) Search(ctx context.Context, query string) ([]*data.Manga, error) {
	params := url.Values{}
	params.Set("title", query)
	params.Set("limit", "20")
	params.Add("includes[]", "cover_art")

	var mangas struct {
		Data []Manga `json:"data"`
	}
	if err := m.api.Get(ctx, "/manga", params, &mangas); err != nil {
		return nil, fmt.Errorf("failed to search mangas: %w", err)
	}
	out := make([]*data.Manga, len(mangas.Data))
	for i := range mangas.Data {
		out[i] = mangas.Data[i].ToManga()
	}
	return out, nil
}

func (m *MangaDex) GetManga(ctx context.Context, id string) (*data.Manga, error) {
	params := url.Values{}
	params.Add("includes[]", "cover_art")

	var manga struct {
		Data Manga `json:"data"`
	}
	if err := m.api.Get(ctx, "/manga/"+url.PathEscape(id), params, &manga); err != nil {
		return nil, fmt.Errorf("failed to get manga: %w", err)
	}
	return manga.Data.ToManga(), nil
}

// GetChapters walks the manga feed in chapter order. Chapters hosted
// elsewhere report zero pages and are skipped.
func (m *MangaDex) GetChapters(ctx context.Context, manga *data.Manga, language string) ([]*data.Chapter, error) {
	if language == "" {
		language = m.language
	}
	var out []*data.Chapter
	for offset := 0; ; offset += feedPageSize {
		params := url.Values{}
		params.Add("translatedLanguage[]", language)
		params.Set("order[volume]", "asc")
		params.Set("order[chapter]", "asc")
		params.Set("limit", strconv.Itoa(feedPageSize))
		params.Set("offset", strconv.Itoa(offset))

		var feed struct {
			Data  []Chapter `json:"data"`
			Total int       `json:"total"`
		}
		if err := m.api.Get(ctx, "/manga/"+url.PathEscape(manga.RemoteID)+"/feed", params, &feed); err != nil {
			return nil, fmt.Errorf("failed to get chapters: %w", err)
		}
		for i := range feed.Data {
			if feed.Data[i].Attributes.Pages == 0 {
				continue
			}
			out = append(out, feed.Data[i].ToChapter())
		}
		if len(feed.Data) == 0 || offset+len(feed.Data) >= feed.Total {
			break
		}
	}
	return out, nil
}

func (m *MangaDex) ListPages(ctx context.Context, chapter *data.Chapter) ([]*data.Page, error) {
	var server struct {
		BaseURL string `json:"baseUrl"`
		Chapter struct {
			Hash string   `json:"hash"`
			Data []string `json:"data"`
		} `json:"chapter"`
	}
	if err := m.api.Get(ctx, "/at-home/server/"+url.PathEscape(chapter.ReadLink), nil, &server); err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	pages := make([]*data.Page, len(server.Chapter.Data))
	for i, file := range server.Chapter.Data {
		pages[i] = &data.Page{
			ChapterID: chapter.ID,
			Index:     i,
			URL:       fmt.Sprintf("%s/data/%s/%s", server.BaseURL, server.Chapter.Hash, file),
		}
	}
	return pages, nil
}

// FetchContent downloads the page image, checks that it decodes, and stores
// it as <downloads>/<chapter>/<NNNN>.<ext>.
func (m *MangaDex) FetchContent(ctx context.Context, page *data.Page) (string, error) {
	body, _, err := m.api.GetBytes(ctx, page.URL)
	if err != nil {
		return "", fmt.Errorf("failed to download page %d: %w", page.Index, err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to decode page %d: %w", page.Index, err)
	}

	dir := filepath.Join(m.downloadDir, page.ChapterID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create chapter directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%04d.%s", page.Index+1, extension(format)))
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write page %d: %w", page.Index, err)
	}
	return path, nil
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
