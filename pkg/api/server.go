// Package api exposes the download queue over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kerbaras/mangaqueue/pkg/data"
	"github.com/kerbaras/mangaqueue/pkg/logging"
	"github.com/kerbaras/mangaqueue/pkg/services"
	"github.com/kerbaras/mangaqueue/pkg/sources"
)

// Queue is the part of the controller the API drives.
type Queue interface {
	Submit(ctx context.Context, source, mangaID string, opts services.SubmitOptions) (*data.Job, error)
	Jobs() []*data.Job
	Item(pos int) (*data.Job, bool)
	Active() bool
	Cancel()
}

// Server wires HTTP handlers to the download queue.
type Server struct {
	router chi.Router
	queue  Queue
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. Metrics are
// served from gatherer when it is not nil.
func NewServer(queue Queue, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		queue:  queue,
		logger: logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthz)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/downloads", func(r chi.Router) {
		r.Get("/", s.listDownloads)
		r.Post("/", s.submitDownload)
		r.Post("/cancel", s.cancelDownloads)
		r.Get("/{pos}", s.getDownload)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type submitRequest struct {
	Source   string   `json:"source"`
	MangaID  string   `json:"manga_id"`
	Language string   `json:"language"`
	Chapters []string `json:"chapters"`
	Range    string   `json:"range"`
}

type downloadView struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Source   string `json:"source"`
	RemoteID string `json:"remote_id"`
	State    string `json:"state"`
	Chapters int    `json:"chapters"`
	Chapter  int    `json:"chapter"`
	Progress int    `json:"progress"`
	Max      int    `json:"max"`
	Percent  int    `json:"percent"`
}

func viewOf(pos int, job *data.Job) downloadView {
	return downloadView{
		Position: pos,
		Name:     job.Name,
		Source:   job.Source,
		RemoteID: job.RemoteID,
		State:    job.State().String(),
		Chapters: len(job.Chapters),
		Chapter:  job.Progress.Pos(),
		Progress: job.Progress.Value(),
		Max:      job.Progress.Max(),
		Percent:  job.Progress.Percent(),
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listDownloads(w http.ResponseWriter, _ *http.Request) {
	jobs := s.queue.Jobs()
	views := make([]downloadView, len(jobs))
	for i, job := range jobs {
		views[i] = viewOf(i, job)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.queue.Active(),
		"downloads": views,
	})
}

func (s *Server) getDownload(w http.ResponseWriter, r *http.Request) {
	pos, err := strconv.Atoi(chi.URLParam(r, "pos"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "position must be a number")
		return
	}
	job, ok := s.queue.Item(pos)
	if !ok {
		writeError(w, http.StatusNotFound, "download not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(pos, job))
}

func (s *Server) submitDownload(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MangaID == "" {
		writeError(w, http.StatusBadRequest, "missing manga_id")
		return
	}
	if req.Source == "" {
		req.Source = sources.MangaDexName
	}

	job, err := s.queue.Submit(r.Context(), req.Source, req.MangaID, services.SubmitOptions{
		Language: req.Language,
		Chapters: req.Chapters,
		Range:    req.Range,
	})
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, sources.ErrUnknownSource):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}

	pos := -1
	for i, queued := range s.queue.Jobs() {
		if queued == job {
			pos = i
		}
	}
	writeJSON(w, http.StatusAccepted, viewOf(pos, job))
}

func (s *Server) cancelDownloads(w http.ResponseWriter, _ *http.Request) {
	status := "idle"
	if s.queue.Active() {
		status = "cancelling"
	}
	s.queue.Cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
