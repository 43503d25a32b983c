package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/tuanle/tickersim/internal/engine"
)

//go:embed static
var staticFS embed.FS

// Config holds HTTP server settings.
type Config struct {
	Addr string
}

// Server serves the websocket feed, the REST API and the browser client.
type Server struct {
	cfg    Config
	engine *engine.Engine
	hub    *Hub
	logger *slog.Logger
	http   *http.Server
}

// New creates a server around an engine and its hub.
func New(cfg Config, eng *engine.Engine, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		engine: eng,
		hub:    hub,
		logger: logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", hub.handleWebSocket)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/market", s.handleMarket).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/portfolio", s.handlePortfolio).Methods(http.MethodGet)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static assets missing: %v", err))
	}
	router.PathPrefix("/").Handler(http.FileServer(http.FS(static)))

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	return s
}

// Start begins serving. It returns once the listener stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.engine.IsRunning() {
		status = "not running"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":   status,
		"sessions": s.hub.ClientCount(),
	})
}

// handleMarket returns the current snapshot in the same shape the
// websocket feed uses.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newMarketUpdate(s.engine.Snapshot()))
}

// handlePortfolio returns a session's holdings marked to the current
// market.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, ok := s.engine.Session(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	views := s.engine.PortfolioView(sess)
	s.writeJSON(w, http.StatusOK, newPortfolioResponse(sess.ID(), sess.Ledger().Cash(), views))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
