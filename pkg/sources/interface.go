package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kerbaras/mangaqueue/pkg/data"
)

// ErrUnknownSource is returned when no factory is registered for a source name.
var ErrUnknownSource = errors.New("unknown source")

// Fetcher resolves the pages of a chapter and materializes their content.
type Fetcher interface {
	ListPages(ctx context.Context, chapter *data.Chapter) ([]*data.Page, error)
	// FetchContent downloads a page and returns the local content reference.
	FetchContent(ctx context.Context, page *data.Page) (string, error)
}

// Catalog is the browsing side of a source, used to build jobs.
type Catalog interface {
	Search(ctx context.Context, query string) ([]*data.Manga, error)
	GetManga(ctx context.Context, id string) (*data.Manga, error)
	GetChapters(ctx context.Context, manga *data.Manga, language string) ([]*data.Chapter, error)
}

// Options configure a source instance.
type Options struct {
	BaseURL           string
	DownloadDir       string
	RequestsPerSecond float64
	Language          string
}

// Factory builds a fresh Fetcher. A returned error means the source could not
// be constructed at all.
type Factory func(Options) (Fetcher, error)

type entry struct {
	factory Factory
	opts    Options
}

// Registry maps source names to their factories and options.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds name to f. Registering a name twice replaces the factory.
func (r *Registry) Register(name string, f Factory, opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{factory: f, opts: opts}
}

// New constructs a Fetcher for the named source.
func (r *Registry) New(name string) (Fetcher, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	fetcher, err := e.factory(e.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create source %s: %w", name, err)
	}
	return fetcher, nil
}

// Catalog constructs the named source and returns its browsing side.
func (r *Registry) Catalog(name string) (Catalog, error) {
	fetcher, err := r.New(name)
	if err != nil {
		return nil, err
	}
	catalog, ok := fetcher.(Catalog)
	if !ok {
		return nil, fmt.Errorf("source %s cannot be browsed", name)
	}
	return catalog, nil
}

// Names lists the registered sources in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every built-in source registered
// under opts.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(MangaDexName, NewMangaDexFetcher, opts)
	return r
}
