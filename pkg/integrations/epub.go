package integrations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-shiori/go-epub"
	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/logging"
	"github.com/kerbaras/mangaqueue/pkg/utils"
)

const coverTimeout = 30 * time.Second

// FaultReporter receives export failures.
type FaultReporter interface {
	Report(err error)
}

// EPUBExporter compiles finished jobs into one EPUB per manga.
type EPUBExporter struct {
	outputDir string
	faults    FaultReporter
	logger    *zap.Logger
	covers    *utils.API
}

func NewEPUBExporter(outputDir string, faults FaultReporter, logger *zap.Logger) *EPUBExporter {
	return &EPUBExporter{
		outputDir: outputDir,
		faults:    faults,
		logger:    logging.OrNop(logger).Named("epub"),
		covers:    utils.NewAPI("", 0),
	}
}

func (p *EPUBExporter) OutputDir() string {
	return p.outputDir
}

// OnContentAdded exports a job as soon as it finished downloading.
func (p *EPUBExporter) OnContentAdded(job *data.Job) {
	path, err := p.CreateEPub(job)
	if err != nil {
		err = fmt.Errorf("failed to export %s: %w", job.Name, err)
		p.logger.Error("export failed", zap.Error(err))
		if p.faults != nil {
			p.faults.Report(err)
		}
		return
	}
	p.logger.Info("exported", zap.String("manga", job.Name), zap.String("path", path))
}

// CreateEPub compiles every chapter of the job that has pages into a single
// EPUB file and returns its path.
func (p *EPUBExporter) CreateEPub(job *data.Job) (string, error) {
	chapters := make([]*data.Chapter, 0, len(job.Chapters))
	for _, ch := range job.Chapters {
		if len(ch.Pages) > 0 {
			chapters = append(chapters, ch)
		}
	}
	if len(chapters) == 0 {
		return "", fmt.Errorf("no chapters to compile")
	}
	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Index < chapters[j].Index
	})

	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	e, err := epub.NewEpub(job.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create EPub: %w", err)
	}
	e.SetAuthor(job.Source)
	if job.Description != "" {
		e.SetDescription(job.Description)
	}
	if lang := chapters[0].Language; lang != "" {
		e.SetLang(lang)
	}

	if job.CoverURL != "" {
		if err := p.addCover(e, job.CoverURL); err != nil {
			p.logger.Warn("skipping cover", zap.String("manga", job.Name), zap.Error(err))
		}
	}

	for _, chapter := range chapters {
		if err := addChapterToEPub(e, chapter); err != nil {
			return "", fmt.Errorf("failed to add chapter %s: %w", chapter.Number, err)
		}
	}

	outputPath := filepath.Join(p.outputDir, sanitizeFilename(job.Name)+".epub")
	if err := e.Write(outputPath); err != nil {
		return "", fmt.Errorf("failed to write EPub: %w", err)
	}
	return outputPath, nil
}

// addCover downloads the cover and adds it as the first section.
func (p *EPUBExporter) addCover(e *epub.Epub, coverURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), coverTimeout)
	defer cancel()

	body, _, err := p.covers.GetBytes(ctx, coverURL)
	if err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "mangaqueue-cover-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	name := "cover" + strings.ToLower(filepath.Ext(coverURL))
	if !isImageFile(name) {
		name = "cover.jpg"
	}
	local := filepath.Join(dir, name)
	if err := os.WriteFile(local, body, 0644); err != nil {
		return err
	}
	internalPath, err := e.AddImage(local, name)
	if err != nil {
		return err
	}
	_, err = e.AddSection(
		fmt.Sprintf(`<div class="cover"><img src="%s" alt="Cover" style="width:100%%;height:auto;"/></div>`, internalPath),
		"Cover", "", "",
	)
	return err
}

// addChapterToEPub adds a chapter's stored pages to the EPub in page order.
func addChapterToEPub(e *epub.Epub, chapter *data.Chapter) error {
	pages := make([]*data.Page, 0, len(chapter.Pages))
	for _, page := range chapter.Pages {
		if page.Path != "" && isImageFile(page.Path) {
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return fmt.Errorf("no images found for chapter")
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Index < pages[j].Index
	})

	title := chapter.DisplayTitle()

	var htmlContent strings.Builder
	htmlContent.WriteString(fmt.Sprintf("<h1>%s</h1>\n", title))

	for i, page := range pages {
		internalPath, err := e.AddImage(page.Path, "")
		if err != nil {
			return fmt.Errorf("failed to add image %s: %w", filepath.Base(page.Path), err)
		}
		htmlContent.WriteString(fmt.Sprintf(
			`<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>%s`,
			internalPath, i+1, "\n",
		))
	}

	if _, err := e.AddSection(htmlContent.String(), title, "", ""); err != nil {
		return fmt.Errorf("failed to add section: %w", err)
	}
	return nil
}

// isImageFile checks if a file has an image extension
func isImageFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".gif" || ext == ".webp"
}

// sanitizeFilename removes characters that are invalid in filenames
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	if result == "" {
		result = "manga"
	}
	return result
}
