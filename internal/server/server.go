package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/backup"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/budget"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/expiry"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/schedule"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
)

// Options configure a Server.
type Options struct {
	// IngestEvents stores the event's spend record before checking budgets.
	IngestEvents bool
	// MaxBodySize limits request bodies in bytes.
	MaxBodySize int64
	// Backup is optional; the trigger route answers 503 without it.
	Backup *backup.Service
	// Debouncer guards the backup trigger. Defaults to a 30s window.
	Debouncer *schedule.Debouncer
	// Now overrides the clock used by the debouncer.
	Now func() time.Time
}

// Server exposes the alert triggers over HTTP.
type Server struct {
	store    storage.Storage
	checker  *budget.Checker
	scanner  *expiry.Scanner
	backup   *backup.Service
	debounce *schedule.Debouncer
	ingest   bool
	maxBody  int64
	now      func() time.Time
	router   chi.Router
	logger   *slog.Logger
}

// NewServer creates an API server.
func NewServer(store storage.Storage, checker *budget.Checker, scanner *expiry.Scanner, logger *slog.Logger, opts Options) *Server {
	if opts.Debouncer == nil {
		opts.Debouncer = schedule.NewDebouncer(schedule.DefaultDebounceWindow)
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 1 << 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		store:    store,
		checker:  checker,
		scanner:  scanner,
		backup:   opts.Backup,
		debounce: opts.Debouncer,
		ingest:   opts.IngestEvents,
		maxBody:  opts.MaxBodySize,
		now:      opts.Now,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestSize(s.maxBody))

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.AllowContentType("application/json")).Post("/events/spend", s.handleSpendEvent)
		r.Post("/scan/expiry", s.handleExpiryScan)
		r.Post("/backup/trigger", s.handleBackupTrigger)
		r.Get("/owners/{ownerID}/budget", s.handleBudgetStatus)
	})
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSpendEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	ev, err := budget.ParseChangeEvent(body)
	if errors.Is(err, budget.ErrIgnoredOperation) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.ingest {
		if err := s.store.RecordSpend(ctx, ev.FullDocument); err != nil {
			s.logger.Error("record spend", "owner", ev.FullDocument.OwnerID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	out, err := s.checker.HandleSpendEvent(ctx, ev)
	if err != nil {
		s.logger.Error("budget check", "owner", ev.FullDocument.OwnerID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, perr := range out.Errors() {
		s.logger.Warn("budget period failed", "owner", out.OwnerID, "error", perr)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExpiryScan(w http.ResponseWriter, r *http.Request) {
	sum, err := s.scanner.Scan(r.Context())
	if err != nil {
		s.logger.Error("expiry scan", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleBackupTrigger(w http.ResponseWriter, r *http.Request) {
	if s.backup == nil {
		http.Error(w, "backups are not configured", http.StatusServiceUnavailable)
		return
	}

	ok, wait := s.debounce.Allow(s.now())
	if !ok {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(wait.Round(time.Second)/time.Second)+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"status":   "debounced",
			"retry_in": wait.Round(time.Millisecond).String(),
		})
		return
	}

	res, err := s.backup.Run(r.Context())
	if errors.Is(err, backup.ErrNotSupported) {
		http.Error(w, err.Error(), http.StatusNotImplemented)
		return
	}
	if err != nil {
		s.logger.Error("backup", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	status, err := s.checker.Status(r.Context(), ownerID)
	if err != nil {
		s.logger.Error("budget status", "owner", ownerID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
