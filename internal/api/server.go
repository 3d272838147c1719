// Package api serves stored sessions over HTTP: JSON listings, per-session
// samples and rendered HTML reports. LiveFeed streams a running session
// over a websocket.
package api

import (
	"bufio"
	"bytes"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/weldcoach/internal/db"
	"github.com/banshee-data/weldcoach/internal/httputil"
	"github.com/banshee-data/weldcoach/internal/report"
	"github.com/banshee-data/weldcoach/internal/technique"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const defaultListLimit = 20

type Server struct {
	db *db.DB
}

func NewServer(db *db.DB) *Server {
	return &Server{db: db}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer cannot be hijacked")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.showSession)
	mux.HandleFunc("GET /api/sessions/{id}/samples", s.listSamples)
	mux.HandleFunc("GET /api/sessions/{id}/report", s.showReport)
	mux.HandleFunc("GET /api/stats", s.showStats)
	mux.HandleFunc("GET /api/techniques", s.listTechniques)
	return mux
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := s.db.RecentSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		httputil.WriteJSONOK(w, []struct{}{})
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.db.Session(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.db.Session(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, err.Error())
		} else {
			httputil.InternalServerError(w, err.Error())
		}
		return
	}
	samples, err := s.db.Samples(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if samples == nil {
		httputil.WriteJSONOK(w, []struct{}{})
		return
	}
	httputil.WriteJSONOK(w, samples)
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.db.Session(id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	samples, err := s.db.Samples(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	params, err := technique.Lookup(res.Technique)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, res, samples, params); err != nil {
		if errors.Is(err, report.ErrNoSamples) {
			httputil.NotFound(w, "session has no samples to chart")
			return
		}
		httputil.InternalServerError(w, "render error: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// TechniqueSummary is one row of /api/stats.
type TechniqueSummary struct {
	Technique     technique.Technique `json:"technique"`
	Sessions      int                 `json:"sessions"`
	BestScore     int                 `json:"best_score"`
	MeanScore     float64             `json:"mean_score"`
	BestSessionID string              `json:"best_session_id"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out := make([]TechniqueSummary, 0, len(stats))
	for _, st := range stats {
		best, err := s.db.BestScore(st.Technique)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		out = append(out, TechniqueSummary{
			Technique:     st.Technique,
			Sessions:      st.Sessions,
			BestScore:     st.BestScore,
			MeanScore:     st.MeanScore,
			BestSessionID: best.ID,
		})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listTechniques(w http.ResponseWriter, r *http.Request) {
	out := make([]technique.Parameters, 0, len(technique.All))
	for _, t := range technique.All {
		out = append(out, technique.MustLookup(t))
	}
	httputil.WriteJSONOK(w, out)
}
