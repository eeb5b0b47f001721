package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/config"
	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/integrations"
	"github.com/kerbaras/mangaqueue/pkg/logging"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

const statusTimeout = 10 * time.Second

// ControllerOptions are the host-specific collaborators of a MangaController.
type ControllerOptions struct {
	Sink       StatusSink
	Host       Host
	Registerer prometheus.Registerer
	Logger     *zap.Logger
	// Sources replaces the registry built from the configuration.
	Sources *sources.Registry
}

// SubmitOptions select the chapters of a submitted manga.
type SubmitOptions struct {
	Language string
	// Chapters lists chapter numbers to keep. Empty keeps every chapter.
	Chapters []string
	// Range keeps chapters numbered within "from-to".
	Range string
}

// LibraryEntry is a stored manga with its chapter counts.
type LibraryEntry struct {
	*data.Manga
	Chapters   int
	Downloaded int
}

// MangaController wires the download queue to the library, the sources and
// the exporter. Every host (TUI, CLI, HTTP) goes through it.
type MangaController struct {
	cfg      config.Config
	repo     *data.Repository
	sources  *sources.Registry
	queue    *Queue
	exporter *integrations.EPUBExporter
	faults   FaultReporter
	logger   *zap.Logger

	bookkeeping sync.WaitGroup
}

func NewMangaController(ctx context.Context, cfg config.Config, opts ControllerOptions) (*MangaController, error) {
	logger := logging.OrNop(opts.Logger)

	repo, err := data.OpenRepository(cfg.Library.Driver, cfg.Library.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	logger.Info("library opened",
		zap.String("driver", repo.Driver()),
		zap.String("path", cfg.Library.Path),
	)

	registry := opts.Sources
	if registry == nil {
		registry = sources.DefaultRegistry(sources.Options{
			BaseURL:           cfg.Sources.MangaDex.BaseURL,
			DownloadDir:       cfg.Downloads.Dir,
			RequestsPerSecond: cfg.Sources.MangaDex.RequestsPerSecond,
			Language:          cfg.Sources.MangaDex.Language,
		})
	}

	var metrics *Metrics
	if opts.Registerer != nil {
		if metrics, err = NewMetrics(opts.Registerer); err != nil {
			repo.Close()
			return nil, err
		}
	}

	c := &MangaController{
		cfg:     cfg,
		repo:    repo,
		sources: registry,
		faults:  NewLogFaultReporter(logger),
		logger:  logger.Named("controller"),
	}
	if cfg.Export.EPUB {
		c.exporter = integrations.NewEPUBExporter(cfg.Export.Dir, c.faults, logger)
	}

	c.queue, err = NewQueue(ctx, Deps{
		Store:    repo,
		Sources:  registry,
		Sink:     opts.Sink,
		Faults:   c.faults,
		Observer: c,
		Host:     opts.Host,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		repo.Close()
		return nil, err
	}
	return c, nil
}

// OnContentAdded marks the manga completed and exports it when enabled.
func (c *MangaController) OnContentAdded(job *data.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	if err := c.repo.SetMangaStatus(ctx, job.ID, data.MangaCompleted); err != nil {
		c.faults.Report(fmt.Errorf("failed to mark %s completed: %w", job.Name, err))
	}
	if c.exporter != nil {
		c.exporter.OnContentAdded(job)
	}
}

// Submit looks the manga up, selects its chapters and enqueues the job.
func (c *MangaController) Submit(ctx context.Context, source, mangaID string, opts SubmitOptions) (*data.Job, error) {
	catalog, err := c.sources.Catalog(source)
	if err != nil {
		return nil, err
	}
	manga, err := catalog.GetManga(ctx, mangaID)
	if err != nil {
		return nil, err
	}
	language := opts.Language
	if language == "" {
		language = c.cfg.Sources.MangaDex.Language
	}
	chapters, err := catalog.GetChapters(ctx, manga, language)
	if err != nil {
		return nil, err
	}
	chapters = filterChapters(chapters, opts)
	if len(chapters) == 0 {
		return nil, fmt.Errorf("no chapters to download for %s", manga.Name)
	}

	manga.Status = data.MangaDownloading
	job := data.NewJob(*manga, chapters)
	c.queue.Enqueue(job)
	c.logger.Info("manga submitted",
		zap.String("manga", manga.Name),
		zap.String("source", source),
		zap.Int("chapters", len(chapters)),
	)
	return job, nil
}

func (c *MangaController) Enqueue(job *data.Job) {
	c.queue.Enqueue(job)
}

// Cancel stops the queue. The interrupted manga is marked cancelled once its
// runner has stopped, even if newer jobs were enqueued in the meantime.
func (c *MangaController) Cancel() {
	running, stopped := c.queue.CancelRunning()
	if running == nil {
		return
	}

	c.bookkeeping.Add(1)
	go func() {
		defer c.bookkeeping.Done()
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		defer cancel()
		select {
		case <-stopped:
		case <-ctx.Done():
			c.faults.Report(fmt.Errorf("%s did not stop in time: %w", running.Name, ctx.Err()))
			return
		}
		// A job cancelled before it was saved has nothing to mark.
		if running.ID == "" || running.State() == data.JobFinished {
			return
		}
		if err := c.repo.SetMangaStatus(ctx, running.ID, data.MangaCancelled); err != nil {
			c.faults.Report(fmt.Errorf("failed to mark %s cancelled: %w", running.Name, err))
		}
	}()
}

func (c *MangaController) Subscribe(l Listener) {
	c.queue.Subscribe(l)
}

func (c *MangaController) Unsubscribe(l Listener) {
	c.queue.Unsubscribe(l)
}

func (c *MangaController) Count() int {
	return c.queue.Len()
}

func (c *MangaController) Item(pos int) (*data.Job, bool) {
	return c.queue.Item(pos)
}

func (c *MangaController) Jobs() []*data.Job {
	return c.queue.Jobs()
}

func (c *MangaController) Active() bool {
	return c.queue.Active()
}

func (c *MangaController) Drained() <-chan struct{} {
	return c.queue.Drained()
}

func (c *MangaController) Wait(ctx context.Context) error {
	return c.queue.Wait(ctx)
}

func (c *MangaController) Sources() []string {
	return c.sources.Names()
}

func (c *MangaController) Search(ctx context.Context, source, query string) ([]*data.Manga, error) {
	catalog, err := c.sources.Catalog(source)
	if err != nil {
		return nil, err
	}
	return catalog.Search(ctx, query)
}

// Chapters returns the manga and its chapters, without enqueueing anything.
func (c *MangaController) Chapters(ctx context.Context, source, mangaID, language string) (*data.Manga, []*data.Chapter, error) {
	catalog, err := c.sources.Catalog(source)
	if err != nil {
		return nil, nil, err
	}
	manga, err := catalog.GetManga(ctx, mangaID)
	if err != nil {
		return nil, nil, err
	}
	if language == "" {
		language = c.cfg.Sources.MangaDex.Language
	}
	chapters, err := catalog.GetChapters(ctx, manga, language)
	if err != nil {
		return nil, nil, err
	}
	return manga, dedupeChapters(chapters), nil
}

// Library lists the stored mangas with their chapter counts.
func (c *MangaController) Library(ctx context.Context) ([]LibraryEntry, error) {
	mangas, err := c.repo.ListMangas(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]LibraryEntry, 0, len(mangas))
	for _, m := range mangas {
		manga, total, downloaded, err := c.repo.GetMangaWithChapterCount(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LibraryEntry{Manga: manga, Chapters: total, Downloaded: downloaded})
	}
	return entries, nil
}

// Export builds an EPUB from the stored pages of a manga.
func (c *MangaController) Export(ctx context.Context, mangaID string) (string, error) {
	job, err := c.repo.LoadJob(ctx, mangaID)
	if err != nil {
		return "", err
	}
	exporter := c.exporter
	if exporter == nil {
		exporter = integrations.NewEPUBExporter(c.cfg.Export.Dir, c.faults, c.logger)
	}
	return exporter.CreateEPub(job)
}

// Remove deletes a stored manga. Mangas still in the queue cannot be removed.
func (c *MangaController) Remove(ctx context.Context, mangaID string) error {
	stored, err := c.repo.GetManga(ctx, mangaID)
	if err != nil {
		return err
	}
	for _, job := range c.queue.Jobs() {
		if job.State() == data.JobFinished {
			continue
		}
		if job.RemoteID == stored.RemoteID && job.Source == stored.Source {
			return fmt.Errorf("manga %s is still queued", stored.Name)
		}
	}
	return c.repo.DeleteManga(ctx, mangaID)
}

// Close waits for pending bookkeeping and closes the library. The queue must
// be idle.
func (c *MangaController) Close() error {
	c.bookkeeping.Wait()
	return c.repo.Close()
}

// filterChapters applies SubmitOptions to chapters, keeping the first
// release of each chapter number.
func filterChapters(chapters []*data.Chapter, opts SubmitOptions) []*data.Chapter {
	filtered := chapters
	if opts.Language != "" {
		filtered = keep(filtered, func(ch *data.Chapter) bool {
			return ch.Language == "" || ch.Language == opts.Language
		})
	}
	filtered = dedupeChapters(filtered)
	if len(opts.Chapters) > 0 {
		wanted := make(map[string]bool, len(opts.Chapters))
		for _, n := range opts.Chapters {
			wanted[strings.TrimSpace(n)] = true
		}
		filtered = keep(filtered, func(ch *data.Chapter) bool { return wanted[ch.Number] })
	}
	if opts.Range != "" {
		filtered = filterByRange(filtered, opts.Range)
	}
	return filtered
}

// dedupeChapters drops repeated chapter numbers, which happen when several
// groups translated the same chapter.
func dedupeChapters(chapters []*data.Chapter) []*data.Chapter {
	seen := make(map[string]bool, len(chapters))
	out := make([]*data.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		key := ch.Volume + "/" + ch.Number
		if ch.Number != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ch)
	}
	return out
}

// filterByRange keeps chapters numbered within "from-to". Ranges that do not
// parse keep everything.
func filterByRange(chapters []*data.Chapter, rangeStr string) []*data.Chapter {
	from, to, err := parseRange(rangeStr)
	if err != nil {
		return chapters
	}
	return keep(chapters, func(ch *data.Chapter) bool {
		n, err := strconv.ParseFloat(ch.Number, 64)
		return err == nil && n >= from && n <= to
	})
}

func parseRange(rangeStr string) (float64, float64, error) {
	lo, hi, ok := strings.Cut(rangeStr, "-")
	if !ok {
		return 0, 0, errors.New("range must look like from-to")
	}
	from, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return 0, 0, err
	}
	to, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return 0, 0, err
	}
	if from > to {
		return 0, 0, fmt.Errorf("range %s is reversed", rangeStr)
	}
	return from, to, nil
}

func keep(chapters []*data.Chapter, fn func(*data.Chapter) bool) []*data.Chapter {
	out := make([]*data.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if fn(ch) {
			out = append(out, ch)
		}
	}
	return out
}
