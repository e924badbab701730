package ipc

import (
	"context"
	"net"
	"net/http"
)

// Server wraps an HTTP server with kernel-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Inbound messages.
	mux.HandleFunc("POST /api/v1/messages", h.SubmitMessage)

	// Kernel and process table.
	mux.HandleFunc("GET /api/v1/kernel", h.GetKernel)
	mux.HandleFunc("GET /api/v1/processes", h.ListProcesses)
	mux.HandleFunc("GET /api/v1/processes/{id}", h.GetProcess)
	mux.HandleFunc("POST /api/v1/processes/{id}/suspend", h.SuspendProcess)
	mux.HandleFunc("POST /api/v1/processes/{id}/resume", h.ResumeProcess)
	mux.HandleFunc("POST /api/v1/processes/{id}/terminate", h.TerminateProcess)
	mux.HandleFunc("POST /api/v1/processes/{id}/stimulate", h.StimulateProcess)

	// Event endpoints.
	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/events/stream", h.StreamEvents)

	// Outbox and snapshots.
	mux.HandleFunc("GET /api/v1/responses", h.ListResponses)
	mux.HandleFunc("GET /api/v1/snapshots/latest", h.LatestSnapshot)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: corsMiddleware(mux),
	}

	return &Server{
		httpServer: srv,
	}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// FormatListenURL turns a listen address into a URL a local client can open.
// Wildcard and empty hosts become localhost.
func FormatListenURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// corsMiddleware adds CORS headers for local dashboard access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
