// Package api exposes the agent over HTTP: a turn endpoint, conversation
// deletion, a health probe, and a WebSocket variant of the turn endpoint
// that streams tool progress.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmaher/parley/internal/agent"
	"github.com/dmaher/parley/internal/config"
	"github.com/dmaher/parley/internal/logging"
)

// Server is the parley HTTP server.
type Server struct {
	cfg   config.Config
	log   *logging.Logger
	agent *agent.Orchestrator

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates the HTTP server around an orchestrator.
func New(cfg config.Config, orch *agent.Orchestrator, log *logging.Logger) *Server {
	return &Server{
		cfg:   cfg,
		log:   log.Sub("api"),
		agent: orch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}
}

// checkWebSocketOrigin returns an Origin validator. Requests without an
// Origin header (non-browser clients) are always allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// routes sets up all HTTP routes on a fresh mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agent", s.handleAgent)
	mux.HandleFunc("GET /api/agent/ws", s.handleAgentWS)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", handleNotFound)
	return withMiddleware(mux, s.log, s.cfg.Server.AllowedOrigins)
}

// Start begins listening. It blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // turn responses can outlast a fixed write window
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Msg("api server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
