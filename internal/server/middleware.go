package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/handlers"
)

const (
	requestIDHeader = "X-Request-Id"
	corsMethods     = "GET, POST, OPTIONS"
	corsHeaders     = "Content-Type, Authorization, " + requestIDHeader
)

type middleware func(http.Handler) http.Handler

// chain applies mws so that the first one listed runs first
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (s *Server) withMiddleware(h http.Handler) http.Handler {
	return chain(h, s.requestID, s.accessLog, allowCrossOrigin, s.recoverPanics)
}

func isProgressStream(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/ws/")
}

// requestID reuses a caller supplied id or mints one and echoes it back
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = common.NewRequestID()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// accessLog records one line per request. Scrape submissions log at info
// because they hold a browser for the whole call; polls stay at debug.
// Progress streams are logged once on upgrade and get the raw writer.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if isProgressStream(r) {
			s.app.Logger.Debug().
				Str("request_id", id).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("Progress stream requested")
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		event := s.app.Logger.Debug()
		if r.Method == http.MethodPost && r.URL.Path == "/api/scrape" {
			event = s.app.Logger.Info()
		}
		if rec.status >= http.StatusInternalServerError {
			event = s.app.Logger.Warn()
		}
		event.
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.written).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request served")
	})
}

// allowCrossOrigin lets dashboards on other origins submit and poll jobs
func allowCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Expose-Headers", requestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics turns a handler panic into a JSON 500 in the handlers' error shape
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			s.app.Logger.Error().
				Str("request_id", r.Header.Get(requestIDHeader)).
				Str("path", r.URL.Path).
				Str("panic", fmt.Sprintf("%v", v)).
				Msg("Handler panicked")
			handlers.WriteError(w, http.StatusInternalServerError, "internal_error")
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(p []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(p)
	rec.written += n
	return n, err
}

// Hijack keeps upgrades working if a stream route is ever wrapped
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer cannot be hijacked")
	}
	return hj.Hijack()
}

// Flush lets long responses stream through the recorder
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
