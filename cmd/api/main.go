package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"grocery-cli/internal/app"
	"grocery-cli/internal/types"
	"grocery-cli/registry"
)

// CompareRequest is the body of POST /compare
type CompareRequest struct {
	Query     string   `json:"query"`
	Providers []string `json:"providers"`
	Limit     int      `json:"limit"`
}

// APIResponse is the envelope of every response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server exposes read-only registry operations over HTTP
type Server struct {
	logger   types.Logger
	registry *registry.Registry
	timeout  time.Duration
}

// NewServer creates an API server over a registry
func NewServer(reg *registry.Registry, logger types.Logger) *Server {
	return &Server{
		logger:   logger,
		registry: reg,
		timeout:  2 * time.Minute,
	}
}

// Handler returns the routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/providers", s.handleProviders)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/compare", s.handleCompare)
	return mux
}

func setHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "GET")
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sendData(w, s.registry.AvailableProviders())
}

// handleSearch runs one provider's search: GET /search?provider=&q=&limit=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "GET")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.sendError(w, "Missing query parameter q", http.StatusBadRequest)
		return
	}
	limit := 24
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	provider, err := s.registry.Create(r.URL.Query().Get("provider"))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	products, err := provider.Search(ctx, query, types.SearchOptions{Limit: limit})
	if err != nil {
		s.logger.Warnf("[%s] Search failed: %v", provider.Name(), err)
		s.sendError(w, err.Error(), statusFor(err))
		return
	}
	s.sendData(w, products)
}

// handleCompare handles POST /compare
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "POST")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.sendError(w, "No query provided", http.StatusBadRequest)
		return
	}
	for i, name := range req.Providers {
		req.Providers[i] = strings.TrimSpace(name)
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	s.logger.Infof("Compare request for %q across %v", req.Query, req.Providers)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	s.sendData(w, s.registry.CompareProduct(ctx, req.Query, req.Providers, req.Limit))
}

func statusFor(err error) int {
	var transportErr *types.TransportError
	switch {
	case types.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) sendData(w http.ResponseWriter, data any) {
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message}); err != nil {
		s.logger.Errorf("Failed to encode error response: %v", err)
	}
}

func main() {
	// Get port from environment variable, default to 8080
	serverPort := "8080"
	if envPort := os.Getenv("API_PORT"); envPort != "" {
		serverPort = envPort
	}

	a, err := app.New(app.Options{ConfigPath: os.Getenv("GROC_CONFIG")})
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer a.Close()

	server := NewServer(a.Registry, a.Logger)

	a.Logger.Infof("Starting API server on port %s", serverPort)
	a.Logger.Info("Available endpoints:")
	a.Logger.Info("  GET  /health    - Health check")
	a.Logger.Info("  GET  /providers - List providers")
	a.Logger.Info("  GET  /search    - Search one provider (?provider=&q=&limit=)")
	a.Logger.Info("  POST /compare   - Compare a query across providers")

	httpServer := &http.Server{
		Addr:              ":" + serverPort,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Errorf("Server stopped: %v", err)
		fmt.Fprintln(os.Stderr, err)
		a.Close()
		os.Exit(1)
	}
}
