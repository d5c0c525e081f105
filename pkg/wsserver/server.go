// Package wsserver exposes chat sessions over token-gated websocket connections.
package wsserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const shutdownTimeout = 5 * time.Second

// ConnHandler serves an upgraded connection for an authenticated username.
type ConnHandler func(ctx context.Context, conn *websocket.Conn, username string)

// Server wraps the HTTP listener lifecycle for the websocket endpoint.
type Server struct {
	Addr string

	token    string
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New creates a Server that only upgrades requests presenting token.
func New(addr, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Addr:  addr,
		token: token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// Handler returns the routes: GET /ws upgrades, GET /healthz reports liveness.
func (s *Server) Handler(ctx context.Context, handler ConnHandler) http.Handler {
	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	router.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.serveWebSocket(ctx, w, r, handler)
	})
	return router
}

func (s *Server) serveWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request, handler ConnHandler) {
	if !s.authorized(r) {
		s.logger.Warn("Websocket connection rejected: invalid token", "remote", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	username := strings.TrimSpace(r.URL.Query().Get("user"))
	if username == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s.logger.Info("New websocket connection", "remote", r.RemoteAddr, "user", username)
	handler(ctx, conn, username)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	presented := r.URL.Query().Get("token")
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		presented = bearer
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, handler ConnHandler) error {
	if handler == nil {
		return errors.New("wsserver: connection handler required")
	}
	if s.token == "" {
		return errors.New("wsserver: token required")
	}

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen %q: %w", s.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(ctx, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan struct{})
	defer close(shutdown)

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("HTTP shutdown failed", "err", err)
			}
		case <-shutdown:
		}
	}()

	s.logger.Info("Websocket server listening", "addr", listener.Addr().String())

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("wsserver: serve: %w", err)
	}
	return ctx.Err()
}
