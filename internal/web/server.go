// Package web exposes the dashboard HTTP API: read-only whale views plus the
// management endpoints for rescans and full recalculation.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/lifecycle"
	"whale-allocator/internal/observability"
	"whale-allocator/internal/storage"
)

// Options configures a Server.
type Options struct {
	Store     storage.WhaleStore
	History   storage.ScoreHistoryStore // optional, enables score history in whale details
	Lifecycle *lifecycle.Manager
	Mode      string
	Logger    zerolog.Logger
	Now       func() time.Time // defaults to time.Now
}

// Server serves the dashboard API. Handlers are thin over the store and the
// lifecycle manager; all state transitions go through the manager.
type Server struct {
	store     storage.WhaleStore
	history   storage.ScoreHistoryStore
	lifecycle *lifecycle.Manager
	mode      string
	log       zerolog.Logger
	now       func() time.Time
	started   time.Time
}

// NewServer creates a dashboard server.
func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		store:     opts.Store,
		history:   opts.History,
		lifecycle: opts.Lifecycle,
		mode:      opts.Mode,
		log:       opts.Logger.With().Str("component", "web").Logger(),
		now:       opts.Now,
		started:   opts.Now(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /whales", s.handleListWhales)
	mux.HandleFunc("GET /whales/{address}", s.handleWhaleDetails)
	mux.HandleFunc("POST /rescan/{address}", s.handleRescan)
	mux.HandleFunc("POST /recalculate", s.handleRecalculate)

	return mux
}

// Run serves the API on addr until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("dashboard listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status     string `json:"status"`
	Mode       string `json:"mode"`
	Uptime     string `json:"uptime"`
	Active     int    `json:"active_whales"`
	Discarded  int    `json:"discarded_whales"`
	Candidates int    `json:"adaptive_candidates"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Mode:   s.mode,
		Uptime: s.now().Sub(s.started).String(),
	}

	for _, st := range []domain.Status{domain.StatusActive, domain.StatusDiscarded, domain.StatusAdaptiveCandidate} {
		whales, err := s.store.ListByStatus(r.Context(), st)
		if err != nil {
			s.writeError(w, err)
			return
		}
		switch st {
		case domain.StatusActive:
			resp.Active = len(whales)
		case domain.StatusDiscarded:
			resp.Discarded = len(whales)
		case domain.StatusAdaptiveCandidate:
			resp.Candidates = len(whales)
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// ListResponse is the /whales payload. Whales are ordered score descending.
type ListResponse struct {
	Status string                `json:"status"`
	Count  int                   `json:"count"`
	Whales []*domain.WhaleRecord `json:"whales"`
}

func (s *Server) handleListWhales(w http.ResponseWriter, r *http.Request) {
	status := domain.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status " + string(status)})
		return
	}

	whales, err := s.store.ListByStatus(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ListResponse{
		Status: string(status),
		Count:  len(whales),
		Whales: whales,
	})
}

// DetailsResponse is the /whales/{address} payload.
type DetailsResponse struct {
	Whale      *domain.WhaleRecord     `json:"whale"`
	TradeCount int                     `json:"trade_count"`
	History    []*domain.ScoreSnapshot `json:"score_history,omitempty"`
}

func (s *Server) handleWhaleDetails(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	rec, err := s.store.Get(r.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	count, err := s.store.TradeCount(r.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := DetailsResponse{Whale: rec, TradeCount: count}
	if s.history != nil {
		snaps, err := s.history.GetByAddress(r.Context(), address)
		if err != nil {
			s.log.Warn().Err(err).Str("address", address).Msg("score history unavailable")
		} else {
			resp.History = snaps
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	if err := s.lifecycle.Rescan(r.Context(), address); err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.store.Get(r.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	result, err := s.lifecycle.RecalculateAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encoding failed")
	}
}
