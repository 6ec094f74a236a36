package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/metrics", s.app.StatusHandler.MetricsHandler)

	// Distribution sequences
	mux.HandleFunc("/api/sequences", s.app.SequenceHandler.InitializeHandler)      // POST  - start or resume
	mux.HandleFunc("/api/sequences/advance", s.app.SequenceHandler.AdvanceHandler) // POST  - launch next source
	mux.HandleFunc("/api/sequences/", s.app.SequenceHandler.StatusHandler)         // GET   /{id}

	// Result recovery
	mux.HandleFunc("/api/recovery", s.app.RecoveryHandler.RecoverHandler) // POST

	// Known-error taxonomy
	mux.HandleFunc("/api/known-errors", s.app.KnownErrorHandler.ListHandler)                  // GET ?category=
	mux.HandleFunc("/api/known-errors/categories", s.app.KnownErrorHandler.CategoriesHandler) // GET
	mux.HandleFunc("/api/known-errors/resolve", s.app.KnownErrorHandler.ResolveHandler)       // POST

	// Maintenance
	mux.HandleFunc("/api/maintenance/sweep", s.app.MaintenanceHandler.SweepHandler) // POST

	return mux
}
