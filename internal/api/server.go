// Package api exposes the learning control surface over HTTP: stats,
// registry inspection, and the commit/reset/toggle operations.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/tilewatch/internal/learndb"
	"github.com/banshee-data/tilewatch/internal/tile"
)

// ANSI escape codes for status line coloring
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine  *tile.Engine
	db      *learndb.DB
	session *learndb.Session
}

// NewServer creates the API server. db and session may be nil when running
// without a learning log; the chart endpoint then reports 404.
func NewServer(engine *tile.Engine, db *learndb.DB, session *learndb.Session) *Server {
	return &Server{engine: engine, db: db, session: session}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("[%s] %s %s %vms",
			statusCodeColor(lrw.statusCode), r.Method, r.URL.Path,
			time.Since(start).Milliseconds())
	})
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/registry", s.showRegistry)
	mux.HandleFunc("/api/commit", s.commitTile)
	mux.HandleFunc("/api/reset", s.resetLearning)
	mux.HandleFunc("/api/toggle", s.toggleLearning)
	mux.HandleFunc("/api/chart", s.confidenceChart)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.engine.Stats())
}

func (s *Server) showRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.engine.Registry().Snapshot())
}

func (s *Server) commitTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	res, err := s.engine.Commit()
	if err != nil {
		if errors.Is(err, tile.ErrNoCandidate) {
			s.writeJSONError(w, http.StatusConflict, "nothing to save: no candidate tile ready")
			return
		}
		// persistence failures are retryable; candidate state is intact
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("%s", res.Summary())
	s.writeJSON(w, res)
}

func (s *Server) resetLearning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.engine.Reset()
	s.writeJSON(w, map[string]string{"status": "reset"})
}

func (s *Server) toggleLearning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	enabled := s.engine.Toggle()
	s.writeJSON(w, map[string]bool{"learning_enabled": enabled})
}
