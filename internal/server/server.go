// Package server exposes projects and their previews over HTTP and a
// per-project WebSocket event stream.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/harshul/octo-preview/internal/analyzer"
	"github.com/harshul/octo-preview/internal/eventbus"
	"github.com/harshul/octo-preview/internal/orchestrator"
	"github.com/harshul/octo-preview/internal/ports"
	"github.com/harshul/octo-preview/internal/provisioner"
	"github.com/harshul/octo-preview/internal/store"
)

// Projects is the project store as the API uses it
type Projects interface {
	CreateProject(ctx context.Context, p store.CreateParams) (*store.Project, error)
	GetProject(ctx context.Context, id string) (*store.Project, error)
	ListProjects(ctx context.Context) ([]store.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// Previews is the preview supervisor as the API uses it
type Previews interface {
	Start(ctx context.Context, projectID string) (orchestrator.Info, error)
	Stop(ctx context.Context, projectID string) (orchestrator.Info, error)
	GetStatus(projectID string) orchestrator.Info
	GetLogs(projectID string) []string
	InstallDependencies(ctx context.Context, projectID string) ([]string, error)
	Live() []string
}

// Options configures a Server
type Options struct {
	Projects Projects
	Previews Previews
	Bus      *eventbus.Bus
	Logger   *zap.Logger
}

// Server is the HTTP API
type Server struct {
	router   *mux.Router
	projects Projects
	previews Previews
	hub      *Hub
	logger   *zap.Logger
}

// New creates a server and registers its routes
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.NewBus()
	}
	s := &Server{
		router:   mux.NewRouter(),
		projects: opts.Projects,
		previews: opts.Previews,
		hub:      NewHub(opts.Bus, opts.Logger),
		logger:   opts.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/projects", s.listProjectsHandler).Methods("GET")
	api.HandleFunc("/projects", s.createProjectHandler).Methods("POST")
	api.HandleFunc("/projects/{id}", s.getProjectHandler).Methods("GET")
	api.HandleFunc("/projects/{id}", s.deleteProjectHandler).Methods("DELETE")
	api.HandleFunc("/projects/{id}/preview", s.previewStatusHandler).Methods("GET")
	api.HandleFunc("/projects/{id}/preview/logs", s.previewLogsHandler).Methods("GET")
	api.HandleFunc("/projects/{id}/preview/start", s.startPreviewHandler).Methods("POST")
	api.HandleFunc("/projects/{id}/preview/stop", s.stopPreviewHandler).Methods("POST")
	api.HandleFunc("/projects/{id}/preview/install", s.installHandler).Methods("POST")
	api.HandleFunc("/projects/{id}/events", s.hub.ServeWS).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string   `json:"error"`
	Logs  []string `json:"logs,omitempty"`
	Tail  []string `json:"stderrTail,omitempty"`
}

// ProjectResponse pairs a project record with its live preview state
type ProjectResponse struct {
	Project *store.Project    `json:"project"`
	Preview orchestrator.Info `json:"preview"`
}

// LogsResponse carries preview or install log lines
type LogsResponse struct {
	Logs []string `json:"logs"`
}

// HealthResponse is returned by /api/health
type HealthResponse struct {
	Status   string `json:"status"`
	Previews int    `json:"previews"`
}

// StatusCode maps an orchestration error to an HTTP status
func StatusCode(err error) int {
	var (
		ambiguous *analyzer.AmbiguousStructureError
		multiple  *analyzer.MultipleCandidatesError
		conflict  *analyzer.MoveConflictError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ambiguous), errors.As(err, &multiple), errors.As(err, &conflict),
		errors.Is(err, orchestrator.ErrStopped):
		return http.StatusConflict
	case errors.Is(err, ports.ErrNoPortAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var startErr *orchestrator.StartError
	if errors.As(err, &startErr) {
		resp.Logs = startErr.Logs
	}
	var installErr *provisioner.InstallFailedError
	var cmdErr *provisioner.CommandError
	switch {
	case errors.As(err, &installErr):
		resp.Tail = installErr.StderrTail
	case errors.As(err, &cmdErr):
		resp.Tail = cmdErr.StderrTail
	}

	writeJSON(w, StatusCode(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Previews: len(s.previews.Live())})
}

func (s *Server) listProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if projects == nil {
		projects = []store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProjectHandler(w http.ResponseWriter, r *http.Request) {
	var params store.CreateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	p, err := s.projects.CreateProject(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getProjectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.projects.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectResponse{Project: p, Preview: s.previews.GetStatus(id)})
}

func (s *Server) deleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.projects.GetProject(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.previews.Stop(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.projects.DeleteProject(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) previewStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.previews.GetStatus(mux.Vars(r)["id"]))
}

func (s *Server) previewLogsHandler(w http.ResponseWriter, r *http.Request) {
	logs := s.previews.GetLogs(mux.Vars(r)["id"])
	if tail, err := strconv.Atoi(r.URL.Query().Get("tail")); err == nil && tail >= 0 && tail < len(logs) {
		logs = logs[len(logs)-tail:]
	}
	writeJSON(w, http.StatusOK, LogsResponse{Logs: logs})
}

func (s *Server) startPreviewHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.previews.Start(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) stopPreviewHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.previews.Stop(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) installHandler(w http.ResponseWriter, r *http.Request) {
	logs, err := s.previews.InstallDependencies(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LogsResponse{Logs: logs})
}

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade reach the underlying connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
