// Package api exposes the search facade over HTTP. Every endpoint
// returns the JSON envelope {status, count?, data?, message?}; request
// problems surface as 400/403/404 and never crash the process.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/imudex/imudex/internal/imucsv"
	"github.com/imudex/imudex/internal/security"
	"github.com/imudex/imudex/internal/store"
)

// endpoints is what the /api/* fallback lists for unknown routes.
var endpoints = []string{
	"GET /api/health",
	"GET /api/search/tests",
	"GET /api/tests/{id}/paths",
	"GET /api/tests/{id}/sensors",
	"GET /api/tests/{id}/summary",
	"GET /api/optimization/parameters",
	"GET /api/optimization/parameters/{id}",
	"GET /api/optimization/files/{path}",
}

// Server serves the query API over one store.
type Server struct {
	store  *store.Store
	optDir string
	apiKey string
	log    *slog.Logger
}

// New returns a server. optDir bounds the artifact file endpoint; an
// empty apiKey disables the shared-secret check.
func New(st *store.Store, optDir, apiKey string) *Server {
	return &Server{
		store:  st,
		optDir: optDir,
		apiKey: apiKey,
		log:    slog.Default().With("component", "api"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/search/tests", s.handleSearchTests)
	mux.HandleFunc("GET /api/tests/{id}/paths", s.handleTestPaths)
	mux.HandleFunc("GET /api/tests/{id}/sensors", s.handleTestSensors)
	mux.HandleFunc("GET /api/tests/{id}/summary", s.handleTestSummary)
	mux.HandleFunc("GET /api/optimization/parameters", s.handleSearchParameters)
	mux.HandleFunc("GET /api/optimization/parameters/{id}", s.handleGetParameter)
	mux.HandleFunc("GET /api/optimization/files/{path...}", s.handleArtifactFile)
	mux.HandleFunc("/api/", s.handleUnknown)
	return s.auth(mux)
}

// auth enforces the optional shared secret on every /api route.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]string{
		"status":   "healthy",
		"database": s.store.Path(),
	})
}

func (s *Server) handleSearchTests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tests, err := s.store.SearchTests(store.TestSearch{
		Subject:   q.Get("subject"),
		SubjectID: q.Get("subject_id"),
		SensorID:  q.Get("sensor_id"),
		Scenario:  q.Get("scenario"),
		Date:      q.Get("date"),
		Project:   q.Get("project"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, len(tests), tests)
}

func (s *Server) handleTestPaths(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	paths, err := s.store.GetTestPaths(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, paths)
}

func (s *Server) handleTestSensors(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	// Resolve the test first so an unknown id is a 404, not an empty list.
	if _, err := s.store.GetTest(id); err != nil {
		s.fail(w, r, err)
		return
	}
	sensors, err := s.store.SensorsByTest(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, len(sensors), sensors)
}

// sensorSummary is one sensor's CSV statistics in the summary response.
// A sensor whose file cannot be read reports the error in place instead
// of failing the whole test.
type sensorSummary struct {
	SensorID string          `json:"sensor_id"`
	Position string          `json:"position"`
	FilePath string          `json:"file_path"`
	Summary  *imucsv.Summary `json:"summary,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func (s *Server) handleTestSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	paths, err := s.store.GetTestPaths(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	summaries := make([]sensorSummary, 0, len(paths.SensorFiles))
	for _, sf := range paths.SensorFiles {
		entry := sensorSummary{
			SensorID: sf.SensorID,
			Position: sf.Position,
			FilePath: sf.FilePath,
		}
		if frame, err := imucsv.Load(sf.FilePath); err != nil {
			entry.Error = err.Error()
		} else {
			summary := imucsv.Summarize(frame)
			entry.Summary = &summary
		}
		summaries = append(summaries, entry)
	}
	writeList(w, len(summaries), summaries)
}

func (s *Server) handleSearchParameters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	search := store.ParameterSearch{
		Strategy:      -1,
		ParameterType: q.Get("parameter_type"),
		DataType:      q.Get("data_type"),
		SubjectID:     q.Get("subject_id"),
		Subject:       q.Get("subject"),
		Scenario:      q.Get("scenario"),
		SensorSetting: q.Get("sensor"),
		Model:         q.Get("model"),
	}
	if raw := q.Get("strategy"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 4 {
			writeError(w, http.StatusBadRequest, "strategy must be an integer between 0 and 4")
			return
		}
		search.Strategy = n
	}

	details, err := s.store.SearchParameters(search)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, len(details), details)
}

func (s *Server) handleGetParameter(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	detail, err := s.store.GetParameter(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, detail)
}

// handleArtifactFile serves an optimization artifact by its path
// relative to the optimization root. Requests that resolve outside the
// root are rejected.
func (s *Server) handleArtifactFile(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	if rel == "" {
		writeError(w, http.StatusBadRequest, "missing file path")
		return
	}

	full := filepath.Join(s.optDir, filepath.FromSlash(rel))
	if err := security.ValidatePathWithinDirectory(full, s.optDir); err != nil {
		writeError(w, http.StatusForbidden, "path outside optimization root")
		return
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, full)
}

func (s *Server) handleUnknown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{
		Status:  "error",
		Message: "unknown endpoint",
		Data:    map[string]any{"endpoints": endpoints},
	})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

// fail maps an error to its HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
