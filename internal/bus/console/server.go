package console

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nautilus-go/kernel/internal/bus"
)

// Server runs the HTTP endpoint that upgrades to the console websocket,
// adapted from the teacher's internal/api.Server.
type Server struct {
	hub      *Hub
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer builds (but does not start) a console server listening on addr
// and attached to b.
func NewServer(addr string, b *bus.MessageBus, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	hub.Attach(b)

	s := &Server{
		hub:      hub,
		logger:   logger.With("component", "console-server"),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("console websocket upgrade failed", "error", err)
		return
	}
	NewClient(s.hub, conn)
}

// Start runs the hub loop and the HTTP server; blocks until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info("console server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("console server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
