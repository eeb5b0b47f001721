package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// lookupID returns the id matched by query, or "" when there is none.
func (r *Repository) lookupID(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// PushJob stores the job's manga record and returns its durable id. Pushing
// the same (source, remote id) again updates the row and returns the same id.
func (r *Repository) PushJob(ctx context.Context, job *Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("job cannot be nil")
	}
	id, err := r.lookupID(ctx, `SELECT id FROM mangas WHERE source = ? AND remote_id = ?`, job.Source, job.RemoteID)
	if err != nil {
		return "", fmt.Errorf("failed to look up manga: %w", err)
	}

	if id != "" {
		_, err = r.db.ExecContext(ctx,
			`UPDATE mangas SET name = ?, description = ?, cover_url = ?, status = ? WHERE id = ?`,
			job.Name, job.Description, job.CoverURL, job.Status, id,
		)
		if err != nil {
			return "", fmt.Errorf("failed to update manga: %w", err)
		}
		return id, nil
	}

	if id, err = newID(); err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO mangas (id, source, remote_id, name, description, cover_url, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, job.Source, job.RemoteID, job.Name, job.Description, job.CoverURL, job.Status,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save manga: %w", err)
	}
	return id, nil
}

// PushChapter stores a chapter under jobID, keyed by its read link.
func (r *Repository) PushChapter(ctx context.Context, chapter *Chapter, jobID string) (string, error) {
	if chapter == nil {
		return "", fmt.Errorf("chapter cannot be nil")
	}
	id, err := r.lookupID(ctx, `SELECT id FROM chapters WHERE manga_id = ? AND read_link = ?`, jobID, chapter.ReadLink)
	if err != nil {
		return "", fmt.Errorf("failed to look up chapter: %w", err)
	}

	if id != "" {
		_, err = r.db.ExecContext(ctx,
			`UPDATE chapters SET position = ?, title = ?, language = ?, volume = ?, number = ? WHERE id = ?`,
			chapter.Index, chapter.Title, chapter.Language, chapter.Volume, chapter.Number, id,
		)
		if err != nil {
			return "", fmt.Errorf("failed to update chapter: %w", err)
		}
		return id, nil
	}

	if id, err = newID(); err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO chapters (id, manga_id, read_link, position, title, language, volume, number) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, jobID, chapter.ReadLink, chapter.Index, chapter.Title, chapter.Language, chapter.Volume, chapter.Number,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save chapter: %w", err)
	}
	return id, nil
}

// PushPage stores a fetched page under its chapter, keyed by page index.
func (r *Repository) PushPage(ctx context.Context, page *Page, jobID, chapterID string) (string, error) {
	if page == nil {
		return "", fmt.Errorf("page cannot be nil")
	}
	id, err := r.lookupID(ctx, `SELECT id FROM pages WHERE chapter_id = ? AND position = ?`, chapterID, page.Index)
	if err != nil {
		return "", fmt.Errorf("failed to look up page: %w", err)
	}

	if id != "" {
		_, err = r.db.ExecContext(ctx, `UPDATE pages SET url = ?, path = ? WHERE id = ?`, page.URL, page.Path, id)
		if err != nil {
			return "", fmt.Errorf("failed to update page: %w", err)
		}
		return id, nil
	}

	if id, err = newID(); err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pages (id, chapter_id, manga_id, position, url, path) VALUES (?, ?, ?, ?, ?, ?)`,
		id, chapterID, jobID, page.Index, page.URL, page.Path,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save page: %w", err)
	}
	return id, nil
}

// SetMangaStatus updates the library status of a stored manga.
func (r *Repository) SetMangaStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE mangas SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update manga status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("manga %s: %w", id, ErrNotFound)
	}
	return nil
}

const mangaColumns = `id, remote_id, name, description, cover_url, source, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanManga(row scanner) (*Manga, error) {
	var m Manga
	if err := row.Scan(&m.ID, &m.RemoteID, &m.Name, &m.Description, &m.CoverURL, &m.Source, &m.Status); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetManga returns the stored manga with the given durable id.
func (r *Repository) GetManga(ctx context.Context, id string) (*Manga, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mangaColumns+` FROM mangas WHERE id = ?`, id)
	m, err := scanManga(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manga %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manga: %w", err)
	}
	return m, nil
}

// ListMangas returns every stored manga ordered by name.
func (r *Repository) ListMangas(ctx context.Context) ([]*Manga, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+mangaColumns+` FROM mangas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mangas: %w", err)
	}
	defer rows.Close()

	var mangas []*Manga
	for rows.Next() {
		m, err := scanManga(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manga: %w", err)
		}
		mangas = append(mangas, m)
	}
	return mangas, rows.Err()
}

// GetChapters returns a manga's chapters in download order.
func (r *Repository) GetChapters(ctx context.Context, mangaID string) ([]*Chapter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, manga_id, position, read_link, title, language, volume, number
		 FROM chapters WHERE manga_id = ? ORDER BY position`, mangaID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.MangaID, &c.Index, &c.ReadLink, &c.Title, &c.Language, &c.Volume, &c.Number); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		chapters = append(chapters, &c)
	}
	return chapters, rows.Err()
}

// GetPages returns a chapter's pages in reading order.
func (r *Repository) GetPages(ctx context.Context, chapterID string) ([]*Page, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chapter_id, position, url, path FROM pages WHERE chapter_id = ? ORDER BY position`, chapterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.ChapterID, &p.Index, &p.URL, &p.Path); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// LoadJob rebuilds a finished job from the library, pages included.
func (r *Repository) LoadJob(ctx context.Context, mangaID string) (*Job, error) {
	manga, err := r.GetManga(ctx, mangaID)
	if err != nil {
		return nil, err
	}
	chapters, err := r.GetChapters(ctx, mangaID)
	if err != nil {
		return nil, err
	}
	for _, ch := range chapters {
		if ch.Pages, err = r.GetPages(ctx, ch.ID); err != nil {
			return nil, err
		}
	}
	job := NewJob(*manga, chapters)
	job.SetState(JobFinished)
	return job, nil
}

// GetMangaWithChapterCount returns the manga with its chapter total and the
// number of chapters that have at least one stored page.
func (r *Repository) GetMangaWithChapterCount(ctx context.Context, mangaID string) (*Manga, int, int, error) {
	manga, err := r.GetManga(ctx, mangaID)
	if err != nil {
		return nil, 0, 0, err
	}

	var total, downloaded int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN EXISTS (SELECT 1 FROM pages p WHERE p.chapter_id = c.id) THEN 1 ELSE 0 END), 0)
		 FROM chapters c WHERE c.manga_id = ?`, mangaID,
	).Scan(&total, &downloaded)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count chapters: %w", err)
	}
	return manga, total, downloaded, nil
}

// DeleteManga removes a manga with its chapters and pages.
func (r *Repository) DeleteManga(ctx context.Context, mangaID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM pages WHERE manga_id = ?`,
		`DELETE FROM chapters WHERE manga_id = ?`,
		`DELETE FROM mangas WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, mangaID); err != nil {
			return fmt.Errorf("failed to delete manga: %w", err)
		}
	}
	return tx.Commit()
}
