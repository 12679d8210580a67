// Package web provides an HTTP status server for the vent-controller daemon.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/vent-controller/internal/status"
)

// staleTicks is how many missed ticks make the loop count as stalled.
const staleTicks = 3

// Server serves the status page, its JSON form, a health check and
// Prometheus metrics.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker. metrics may
// be nil, in which case /metrics is not served.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/healthz", s.handleHealth)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// readOnly rejects anything but GET and HEAD.
func readOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(status.FormatJSON(snap))
}

// unhealthy returns why the daemon should not be considered healthy, or ""
// when it is. The relay must agree with the logical fan state and the loop
// must have ticked recently.
func unhealthy(snap status.Snapshot) string {
	if !snap.RelaySynced {
		return "relay out of sync"
	}
	if snap.Last == nil {
		return "no tick yet"
	}
	limit := staleTicks * time.Duration(snap.Config.IntervalMs) * time.Millisecond
	if age := snap.Now.Sub(snap.Last.Timestamp); limit > 0 && age > limit {
		return fmt.Sprintf("last tick %s ago", age.Round(time.Second))
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if reason := unhealthy(s.tracker.Snapshot()); reason != "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, reason)
		return
	}
	fmt.Fprintln(w, "ok")
}
