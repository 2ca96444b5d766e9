// Package server exposes job control over HTTP.
//
// Information Hiding:
// - Route layout and method wiring hidden
// - Response envelope encoding internalized
// - Listener lifecycle and shutdown handled here
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/richinex/animatch/job"
	"github.com/richinex/animatch/model"
)

// Resp is the response envelope every endpoint returns. Code 0 means
// success; anything else carries a message.
type Resp struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func respOK(data interface{}) Resp {
	return Resp{Code: 0, Data: data}
}

func respErr(msg string) Resp {
	return Resp{Code: 1, Msg: msg}
}

// Server serves the job control API.
type Server struct {
	bind   string
	logger *slog.Logger
	runner *job.Runner

	listener net.Listener
	server   *http.Server
}

// New creates a server bound to the given address.
func New(bind string, runner *job.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		bind:   bind,
		logger: logger,
		runner: runner,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/job/list", s.handleList)
	mux.HandleFunc("GET /api/job/{platform}/create/{year}/{provider}/{model}", s.handleCreate)
	mux.HandleFunc("GET /api/job/{platform}/run/{year}", s.handleRun)
	mux.HandleFunc("GET /api/job/{platform}/pause/{year}", s.handlePause)
	mux.HandleFunc("GET /api/job/{platform}/resume/{year}", s.handleResume)
	mux.HandleFunc("GET /api/job/{platform}/remove/{year}", s.handleRemove)
	return mux
}

// Start begins serving. Shutdown is tied to ctx: cancelling it drains the
// server with a short grace period.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", "address", listener.Addr().String())
	return nil
}

// Stop shuts the server down outside of context cancellation.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// jobKey parses the platform and year path segments.
func jobKey(r *http.Request) (job.Key, error) {
	platform, err := model.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		return job.Key{}, err
	}
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return job.Key{}, fmt.Errorf("invalid year: %q", r.PathValue("year"))
	}
	return job.Key{Platform: platform, Year: year}, nil
}

// errStatus maps runner errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, job.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, job.ErrExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, respErr(err.Error()))
		return
	}
	provider := r.PathValue("provider")
	mdl := r.PathValue("model")

	view, err := s.runner.Create(r.Context(), key, provider, mdl)
	if err != nil {
		s.writeJSON(w, errStatus(err), respErr(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, respOK(view))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, respErr(err.Error()))
		return
	}
	if err := s.runner.Run(key); err != nil {
		s.writeJSON(w, errStatus(err), respErr(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, respOK(nil))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, respErr(err.Error()))
		return
	}
	paused, err := s.runner.Pause(key)
	if err != nil {
		s.writeJSON(w, errStatus(err), respErr(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, respOK(map[string]bool{"paused": paused}))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, respErr(err.Error()))
		return
	}
	if err := s.runner.Resume(key); err != nil {
		s.writeJSON(w, errStatus(err), respErr(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, respOK(nil))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, respErr(err.Error()))
		return
	}
	if err := s.runner.Remove(key); err != nil {
		s.writeJSON(w, errStatus(err), respErr(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, respOK(nil))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, respOK(s.runner.List()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload Resp) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
