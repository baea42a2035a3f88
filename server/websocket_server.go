// Package server is the HTTP surface: the browser widget socket, the webhook
// tool bridge, the Twilio endpoints, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/room4-2/voicedesk/config"
	"github.com/room4-2/voicedesk/session"
)

var json = sonic.ConfigStd

// SessionManager is the part of *session.Manager the server drives.
type SessionManager interface {
	Create(ctx context.Context, down session.Downstream) (*session.Relay, error)
	Count() int
	Shutdown(ctx context.Context)
}

// Options carries the collaborators of a Server.
type Options struct {
	Sessions SessionManager
	Tools    session.ToolExecutor
	// Instructions renders the system instruction for webhook handshakes.
	Instructions func() string
	Logger       *slog.Logger
}

type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	sessions   SessionManager
	tools      session.ToolExecutor
	instruct   func() string
	config     *config.Config
	logger     *slog.Logger
	handler    http.Handler
}

func New(cfg *config.Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: opts.Sessions,
		tools:    opts.Tools,
		instruct: opts.Instructions,
		config:   cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
	if s.instruct == nil {
		s.instruct = func() string { return "" }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/twilio/voice", s.handleVoiceCall)
	mux.HandleFunc("GET /twilio/stream", s.handleTwilioStream)
	s.handler = mux

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
		// No Read/WriteTimeout: they would cut long-lived websockets. The
		// socket layer sets its own write deadlines.
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for connections. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server starting", "port", s.config.Port)
	s.logger.Info("websocket endpoint", "url", fmt.Sprintf("ws://localhost:%d/ws", s.config.Port))
	s.logger.Info("twilio voice endpoint", "url", fmt.Sprintf("http://localhost:%d/twilio/voice", s.config.Port))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	err := s.httpServer.Shutdown(ctx)
	s.sessions.Shutdown(ctx)
	return err
}

// handleRoot upgrades widget sockets opened on / and serves the widget
// bundle otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	if r.URL.Path == "/" && !s.hasIndex() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s Voice Agent Backend is running.\n", s.config.BusinessName)
		return
	}
	http.FileServer(http.Dir(s.config.StaticDir)).ServeHTTP(w, r)
}

func (s *Server) hasIndex() bool {
	if s.config.StaticDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.config.StaticDir, "index.html"))
	return err == nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	s.serveSession(r.Context(), conn, session.NewClientConn(conn, s.logger, s.config.KeepAlivePeriod))
}

// serveSession runs one relay session and returns when it has closed.
func (s *Server) serveSession(ctx context.Context, conn *websocket.Conn, down session.Downstream) {
	relay, err := s.sessions.Create(ctx, down)
	if errors.Is(err, session.ErrMaxSessions) {
		s.logger.Warn("rejecting connection", "err", err)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return
	}
	if err != nil {
		// The session has already closed the client.
		s.logger.Error("failed to create session", "err", err)
		return
	}

	<-relay.Done()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]any{"status": "ok", "sessions": s.sessions.Count()})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
