package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - progress stream for a single job
	mux.HandleFunc("/ws/progress", s.app.ProgressStreamHandler.HandleProgressStream)

	// API routes - Scrape jobs
	mux.HandleFunc("/api/scrape", s.app.ScrapeHandler.ScrapeHandler) // POST - run a job to completion
	mux.HandleFunc("/api/scrape/progress", s.handleProgressRoute)    // GET (poll/cleanup), POST (cancel)
	mux.HandleFunc("/api/export", s.app.ExportHandler.ExportHandler) // POST - write a scraped catalog

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleProgressRoute routes /api/scrape/progress by method
func (s *Server) handleProgressRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet:  s.app.ProgressHandler.GetProgressHandler,
		http.MethodPost: s.app.ProgressHandler.ProgressActionHandler,
	})
}
