package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fping-exporter/internal/metrics"
	"fping-exporter/internal/registry"
)

// Refresher primes metrics for a single target outside the scheduled cycle.
// *collector.Collector satisfies it.
type Refresher interface {
	CollectOne(ctx context.Context, target string)
}

// Server provides the target mutation HTTP API.
type Server struct {
	listen    string
	reg       *registry.Registry
	sink      *metrics.Sink
	refresher Refresher
}

// NewServer constructs the API server. refresher may be nil, in which case
// freshly added targets wait for the next scheduled cycle.
func NewServer(listen string, reg *registry.Registry, sink *metrics.Sink, refresher Refresher) *Server {
	return &Server{
		listen:    listen,
		reg:       reg,
		sink:      sink,
		refresher: refresher,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/targets", s.handleTargets)
	mux.HandleFunc("/targets/", s.handleTarget)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logrus.WithField("listen", s.listen).Info("target API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, TargetsResponse{Targets: s.reg.List()})
	case http.MethodPost:
		s.handleAdd(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimPrefix(r.URL.Path, "/targets/")
	if target == "" || strings.Contains(target, "/") {
		writeJSONError(w, http.StatusBadRequest, "invalid target address")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		s.handleRemove(w, target)
	case http.MethodPut:
		s.handleRename(w, r, target)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	target := strings.TrimSpace(req.Address)
	if target == "" {
		writeJSONError(w, http.StatusBadRequest, "address is required")
		return
	}

	warning, ok := mutationError(w, s.reg.Add(target))
	if !ok {
		return
	}

	// Probe right away so the new target has metrics before the next tick.
	if s.refresher != nil {
		s.refresher.CollectOne(r.Context(), target)
	}
	logrus.WithField("target", target).Debug("target added")
	writeJSON(w, http.StatusOK, MutationResponse{Status: "added", Target: target, Warning: warning})
}

func (s *Server) handleRemove(w http.ResponseWriter, target string) {
	warning, ok := mutationError(w, s.reg.Remove(target))
	if !ok {
		return
	}
	s.sink.Remove(target)
	logrus.WithField("target", target).Debug("target removed")
	writeJSON(w, http.StatusOK, MutationResponse{Status: "removed", Target: target, Warning: warning})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request, oldTarget string) {
	var req TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	newTarget := strings.TrimSpace(req.Address)
	if newTarget == "" {
		writeJSONError(w, http.StatusBadRequest, "address is required")
		return
	}
	if newTarget == oldTarget {
		// A same-address rename is a no-op, but only for a registered target.
		// Going through Rename here would drop the target's live series.
		if !s.reg.Has(oldTarget) {
			writeJSONError(w, http.StatusNotFound, registry.ErrNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, MutationResponse{Status: "renamed", Target: newTarget})
		return
	}

	warning, ok := mutationError(w, s.reg.Rename(oldTarget, newTarget))
	if !ok {
		return
	}
	// Series for the old address would otherwise linger until restart.
	s.sink.Remove(oldTarget)
	logrus.WithFields(logrus.Fields{"from": oldTarget, "to": newTarget}).Debug("target renamed")
	writeJSON(w, http.StatusOK, MutationResponse{Status: "renamed", Target: newTarget, Warning: warning})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mutationError maps a registry error onto the HTTP response. ok is false
// when the response has already been written and the handler must stop; a
// non-empty warning means the mutation held in memory but was not persisted,
// which is reported to the caller instead of failing the request.
func mutationError(w http.ResponseWriter, err error) (warning string, ok bool) {
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, registry.ErrExists):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return "", false
	case errors.Is(err, registry.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
		return "", false
	case errors.Is(err, registry.ErrPersist):
		logrus.WithError(err).Warn("target mutation applied but not persisted")
		return err.Error(), true
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return "", false
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
