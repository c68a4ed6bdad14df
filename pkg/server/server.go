// Package server exposes scan control, per-item analysis and snapshots over
// HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/devraulu/airank/pkg/ai"
	"github.com/devraulu/airank/pkg/app"
	"github.com/devraulu/airank/pkg/history"
	"github.com/devraulu/airank/pkg/process"
	"github.com/devraulu/airank/pkg/scoring"
	"github.com/devraulu/airank/pkg/storage"
)

type Server struct {
	app    *app.App
	router chi.Router
}

func New(a *app.App) *Server {
	s := &Server{app: a, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/scan", s.handleScanState)
		r.Post("/scan/start", s.handleScanStart)
		r.Post("/scan/cancel", s.handleScanCancel)
		r.Post("/scan/tick", s.handleScanTick)
		r.Get("/scan/notice", s.handleScanNotice)

		r.Post("/items/{id}/analyze", s.handleAnalyze)
		r.Get("/items/{id}/history", s.handleHistory)
		r.Post("/items/{id}/generate/{kind}", s.handleGenerate)

		r.Get("/snapshots", s.handleSnapshots)
		r.Get("/crawlers", s.handleCrawlers)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScanState(w http.ResponseWriter, r *http.Request) {
	v, err := s.app.Scheduler.State(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var types []string
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	st, err := s.app.Scheduler.Start(r.Context(), types)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": st.RunID,
		"status": st.Status,
		"total":  len(st.Queue),
		"types":  st.Types,
	})
}

func (s *Server) handleScanCancel(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.app.Scheduler.Cancel(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleScanTick(w http.ResponseWriter, r *http.Request) {
	out := s.app.Tick(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"outcome": out.String()})
}

func (s *Server) handleScanNotice(w http.ResponseWriter, r *http.Request) {
	ok, err := s.app.Scheduler.TakeCompletionNotice(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"complete": ok})
}

type analysisResponse struct {
	ID      int64            `json:"id"`
	Score   int              `json:"score"`
	Metrics scoring.Metrics  `json:"metrics"`
	Signals []scoring.Signal `json:"signals"`
	Delta   history.Delta    `json:"delta"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	m, err := s.app.Analyzer.AnalyzeManual(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	score, _, err := s.app.Analyzer.Score(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	delta, err := s.app.History.Delta(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, analysisResponse{
		ID:      id,
		Score:   score,
		Metrics: m,
		Signals: scoring.Signals(m),
		Delta:   delta,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	entries, err := s.app.History.Entries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"delta":   history.Compute(entries),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var (
		out string
		err error
	)
	switch chi.URLParam(r, "kind") {
	case "summary":
		out, err = s.app.Enrich.GenerateSummary(r.Context(), id)
	case "qa":
		out, err = s.app.Enrich.GenerateQA(r.Context(), id)
	default:
		http.Error(w, "unknown generation kind", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": out})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	snaps, err := s.app.Recorder.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if snaps == nil {
		snaps = []storage.SiteSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleCrawlers(w http.ResponseWriter, r *http.Request) {
	if s.app.Config.Site.URL == "" {
		http.Error(w, "site url not configured", http.StatusConflict)
		return
	}
	access, err := process.AuditAICrawlers(s.app.Config.Site.URL, nil)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case ai.IsServiceError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", slog.Any("err", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
