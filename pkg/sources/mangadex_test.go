package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/mangaqueue/pkg/data"
)

func createTestPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 3))))
	return buf.Bytes()
}

// newMangaDexServer fakes the subset of the MangaDex API used by the source.
func newMangaDexServer(t *testing.T) *httptest.Server {
	t.Helper()
	pngData := createTestPNG(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "naruto", r.URL.Query().Get("title"))
		fmt.Fprint(w, `{"data":[{"id":"m-1","attributes":{"title":{"en":"Naruto"},"description":{"en":"Ninja"}},
			"relationships":[{"type":"cover_art","attributes":{"fileName":"cover.jpg"}}]}]}`)
	})
	mux.HandleFunc("/manga/m-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"id":"m-1","attributes":{"title":{"ja":"ナルト"},"description":{}}}}`)
	})
	mux.HandleFunc("/manga/m-1/feed", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "es", r.URL.Query().Get("translatedLanguage[]"))
		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, `{"data":[],"total":3}`)
			return
		}
		fmt.Fprint(w, `{"total":3,"data":[
			{"id":"c-1","attributes":{"title":"Start","translatedLanguage":"es","volume":"1","chapter":"1","pages":2}},
			{"id":"c-ext","attributes":{"title":"Elsewhere","translatedLanguage":"es","volume":"1","chapter":"2","pages":0}},
			{"id":"c-3","attributes":{"title":"","translatedLanguage":"es","volume":"1","chapter":"3","pages":5}}]}`)
	})
	mux.HandleFunc("/at-home/server/c-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"baseUrl":%q,"chapter":{"hash":"h","data":["a.png","b.png"]}}`, "http://"+r.Host)
	})
	mux.HandleFunc("/data/h/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	})
	mux.HandleFunc("/data/bad/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestMangaDex_Search(t *testing.T) {
	server := newMangaDexServer(t)
	md := NewMangaDex(Options{BaseURL: server.URL})

	mangas, err := md.Search(context.Background(), "naruto")
	require.NoError(t, err)
	require.Len(t, mangas, 1)
	assert.Equal(t, "m-1", mangas[0].RemoteID)
	assert.Empty(t, mangas[0].ID)
	assert.Equal(t, "Naruto", mangas[0].Name)
	assert.Equal(t, "Ninja", mangas[0].Description)
	assert.Equal(t, MangaDexName, mangas[0].Source)
	assert.Equal(t, "https://uploads.mangadex.org/covers/m-1/cover.jpg", mangas[0].CoverURL)
}

func TestMangaDex_GetManga(t *testing.T) {
	server := newMangaDexServer(t)
	md := NewMangaDex(Options{BaseURL: server.URL})

	manga, err := md.GetManga(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", manga.RemoteID)
	assert.Equal(t, "ナルト", manga.Name, "falls back to a non-English title")
}

func TestMangaDex_GetChapters(t *testing.T) {
	server := newMangaDexServer(t)
	md := NewMangaDex(Options{BaseURL: server.URL, Language: "es"})

	chapters, err := md.GetChapters(context.Background(), &data.Manga{RemoteID: "m-1"}, "")
	require.NoError(t, err)
	require.Len(t, chapters, 2, "external chapters are skipped")
	assert.Equal(t, "c-1", chapters[0].ReadLink)
	assert.Equal(t, "Start", chapters[0].Title)
	assert.Equal(t, "es", chapters[0].Language)
	assert.Equal(t, "1", chapters[0].Volume)
	assert.Equal(t, "3", chapters[1].Number)
}

func TestMangaDex_ListPages(t *testing.T) {
	server := newMangaDexServer(t)
	md := NewMangaDex(Options{BaseURL: server.URL})

	pages, err := md.ListPages(context.Background(), &data.Chapter{ID: "ch-durable", ReadLink: "c-1"})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, server.URL+"/data/h/a.png", pages[0].URL)
	assert.Equal(t, 1, pages[1].Index)
	assert.Equal(t, "ch-durable", pages[1].ChapterID)
}

func TestMangaDex_ListPagesError(t *testing.T) {
	server := newMangaDexServer(t)
	md := NewMangaDex(Options{BaseURL: server.URL})

	_, err := md.ListPages(context.Background(), &data.Chapter{ReadLink: "missing"})
	assert.Error(t, err)
}

func TestMangaDex_FetchContent(t *testing.T) {
	server := newMangaDexServer(t)
	dir := t.TempDir()
	md := NewMangaDex(Options{BaseURL: server.URL, DownloadDir: dir})

	path, err := md.FetchContent(context.Background(), &data.Page{
		ChapterID: "ch-1",
		Index:     4,
		URL:       server.URL + "/data/h/e.png",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ch-1", "0005.png"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, createTestPNG(t), content)
}

func TestMangaDex_FetchContentRejectsNonImages(t *testing.T) {
	server := newMangaDexServer(t)
	md := NewMangaDex(Options{BaseURL: server.URL, DownloadDir: t.TempDir()})

	_, err := md.FetchContent(context.Background(), &data.Page{ChapterID: "ch-1", URL: server.URL + "/data/bad/x.png"})
	assert.Error(t, err)
}

func TestNewMangaDexFetcher(t *testing.T) {
	_, err := NewMangaDexFetcher(Options{})
	assert.Error(t, err)

	// a regular file where the directory should go
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = NewMangaDexFetcher(Options{DownloadDir: filepath.Join(file, "downloads")})
	assert.Error(t, err)

	fetcher, err := NewMangaDexFetcher(Options{DownloadDir: filepath.Join(t.TempDir(), "downloads")})
	require.NoError(t, err)
	assert.IsType(t, &MangaDex{}, fetcher)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.New("nope")
	assert.True(t, errors.Is(err, ErrUnknownSource))

	boom := errors.New("boom")
	r.Register("broken", func(Options) (Fetcher, error) { return nil, boom }, Options{})
	_, err = r.New("broken")
	assert.True(t, errors.Is(err, boom))

	var got Options
	r.Register("plain", func(opts Options) (Fetcher, error) {
		got = opts
		return fetcherFunc{}, nil
	}, Options{Language: "fr"})

	fetcher, err := r.New("plain")
	require.NoError(t, err)
	assert.NotNil(t, fetcher)
	assert.Equal(t, "fr", got.Language)

	_, err = r.Catalog("plain")
	assert.Error(t, err, "plain fetchers cannot be browsed")

	assert.Equal(t, []string{"broken", "plain"}, r.Names())
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(Options{DownloadDir: t.TempDir()})
	assert.Equal(t, []string{MangaDexName}, r.Names())

	catalog, err := r.Catalog(MangaDexName)
	require.NoError(t, err)
	assert.NotNil(t, catalog)
}

type fetcherFunc struct{}

func (fetcherFunc) ListPages(context.Context, *data.Chapter) ([]*data.Page, error) { return nil, nil }
func (fetcherFunc) FetchContent(context.Context, *data.Page) (string, error)       { return "", nil }
