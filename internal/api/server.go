// Package api exposes the control plane for observers: start, stop,
// delete, list and status, plus health and metrics endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"hl-grid-bot/internal/observer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Server struct {
	registry *observer.Registry
	log      *zap.Logger
	token    string
	metrics  http.Handler
}

// NewServer wires the registry behind the HTTP surface. An empty token
// disables authentication; the metrics handler may be nil.
func NewServer(registry *observer.Registry, log *zap.Logger, token string, metrics http.Handler) *Server {
	return &Server{registry: registry, log: log, token: token, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/observers", func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/", s.handleStart)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleStatus)
		r.Post("/{id}/stop", s.handleStop)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

// auth requires a bearer token on the observer surface. Health and
// metrics stay open for probes and scrapers.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != s.token {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		writeError(w, "address is required", http.StatusBadRequest)
		return
	}
	id, err := s.registry.Start(r.Context(), address)
	if err != nil {
		if errors.Is(err, observer.ErrAddressBusy) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		s.log.Error("observer start failed", zap.String("address", address), zap.Error(err))
		writeError(w, "observer start failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"observers": s.registry.List(),
		"active":    s.registry.ActiveCount(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "observer not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Stop(id); err != nil {
		if errors.Is(err, observer.ErrNotFound) {
			writeError(w, "observer not found", http.StatusNotFound)
			return
		}
		s.log.Error("observer stop failed", zap.String("id", id), zap.Error(err))
		writeError(w, "observer stop failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, observer.ErrNotFound) {
			writeError(w, "observer not found", http.StatusNotFound)
			return
		}
		writeError(w, "observer delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
