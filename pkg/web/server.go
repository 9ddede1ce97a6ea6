package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/oqpsk-sink/pkg/config"
	"github.com/dbehnke/oqpsk-sink/pkg/logger"
)

// Server represents the HTTP API and live feed server
type Server struct {
	config config.WebConfig
	logger *logger.Logger
	server *http.Server
	hub    *WebSocketHub
	api    *API
	addr   string
	mu     sync.RWMutex
}

// NewServer creates a new web server instance. A nil api serves only health
// and the WebSocket feed.
func NewServer(cfg config.WebConfig, api *API, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if api == nil {
		api = NewAPI(log, nil, nil, nil)
	}
	return &Server{
		config: cfg,
		logger: log.WithComponent("web"),
		hub:    NewWebSocketHub(log),
		api:    api,
	}
}

// SetAPI replaces the REST handlers; call before Start
func (s *Server) SetAPI(api *API) {
	if api != nil {
		s.api = api
	}
}

// Routes returns the HTTP handler for all endpoints
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.api.HandleStatus)
	mux.HandleFunc("/api/stats", s.api.HandleStats)
	mux.HandleFunc("/api/frames", s.api.HandleFrames)
	mux.HandleFunc("/api/nodes", s.api.HandleNodes)
	mux.Handle("/ws", s.hub.Handler())
	return mux
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Web server is disabled")
		return nil
	}

	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Listener first so port 0 resolves to a real address
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.server = server
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("Starting web server", logger.String("address", listener.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// GetAddr returns the address the server is listening on
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// GetHub returns the WebSocket hub
func (s *Server) GetHub() *WebSocketHub {
	return s.hub
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "oqpsk-sink",
		"time":    time.Now().Unix(),
	}); err != nil {
		s.logger.Warn("Failed to encode health response", logger.Error(err))
	}
}
