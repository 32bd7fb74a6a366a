// Package gateway accepts WebSocket connections from dashboard clients,
// performs the token handshake, and streams broadcast alerts to each
// authenticated subscriber until disconnect.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chain-sentinel/internal/auth"
	"chain-sentinel/internal/broadcast"
)

// Close codes for the two authentication failure classes, from the
// application-reserved 4000-4999 WebSocket range.
const (
	CloseAuthTimeout  = 4408
	CloseAuthRejected = 4401
)

// Config holds gateway settings.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	AuthTimeout  time.Duration `yaml:"auth_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8090",
		AuthTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    64 * 1024,
	}
}

// Gateway owns the WebSocket endpoint and its per-connection goroutines.
type Gateway struct {
	config   Config
	verifier auth.Verifier
	subs     broadcast.Subscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger

	server *http.Server
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Gateway.
func New(cfg Config, verifier auth.Verifier, subs broadcast.Subscriber, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultConfig().AuthTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	return &Gateway{
		config:   cfg,
		verifier: verifier,
		subs:     subs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Dashboard origins are enforced by the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint and the
// health check.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/alerts", g.handleAlerts)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	return mux
}

// Start begins serving in a background goroutine.
func (g *Gateway) Start() {
	g.server = &http.Server{
		Addr:    g.config.ListenAddr,
		Handler: g.Handler(),
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server failed", "error", err)
		}
	}()

	g.logger.Info("websocket gateway started", "addr", g.config.ListenAddr)
}

// Stop closes the listener and every live connection, then waits for the
// per-connection goroutines to exit.
func (g *Gateway) Stop(ctx context.Context) error {
	close(g.stopCh)

	var err error
	if g.server != nil {
		err = g.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if g.server != nil {
			g.server.Close()
		}
	}

	g.logger.Info("websocket gateway stopped")
	return err
}

// handleAlerts runs one connection through its lifecycle:
// Connected -> AwaitingAuth -> Authenticated+Subscribed -> Streaming -> Closed.
func (g *Gateway) handleAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.serveConn(conn, r.RemoteAddr)
	}()
}

func (g *Gateway) serveConn(conn *websocket.Conn, remote string) {
	defer conn.Close()

	if g.config.ReadLimit > 0 {
		conn.SetReadLimit(g.config.ReadLimit)
	}

	if !g.authenticate(conn, remote) {
		return
	}

	g.stream(conn, remote)
}

// authenticate waits for exactly one token frame within the auth timeout and
// verifies it. A timeout and a rejected token close the connection with
// distinct codes; the connection never reaches streaming on failure.
func (g *Gateway) authenticate(conn *websocket.Conn, remote string) bool {
	conn.SetReadDeadline(time.Now().Add(g.config.AuthTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		g.logger.Info("client failed to authenticate in time", "remote", remote)
		g.closeWith(conn, CloseAuthTimeout, "authentication timeout")
		return false
	}

	token := ParseTokenFrame(frame)
	if !g.verifier.Verify(context.Background(), token) {
		g.logger.Info("client token rejected", "remote", remote)
		g.closeWith(conn, CloseAuthRejected, "invalid token")
		return false
	}

	conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"authenticated"}`)); err != nil {
		g.logger.Warn("failed to confirm authentication", "remote", remote, "error", err)
		return false
	}

	return true
}

// stream subscribes to the broadcast channel and relays every message
// verbatim until the client disconnects or the gateway shuts down. The
// subscription is released on every exit path.
func (g *Gateway) stream(conn *websocket.Conn, remote string) {
	sub, err := g.subs.Subscribe(context.Background())
	if err != nil {
		g.logger.Error("failed to subscribe to broadcast channel", "remote", remote, "error", err)
		g.closeWith(conn, websocket.CloseInternalServerErr, "subscription unavailable")
		return
	}
	defer sub.Close()

	// Reader goroutine: the client sends nothing after the token frame, so
	// any read result (including an error) means the connection is done.
	// Feeding a channel lets the relay below be a plain select instead of a
	// pair of alternating timed reads.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadDeadline(time.Time{})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g.logger.Info("client streaming", "remote", remote)

	for {
		select {
		case payload, ok := <-sub.Messages():
			if !ok {
				g.closeWith(conn, websocket.CloseGoingAway, "broadcast channel closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				g.logger.Info("client write failed, dropping connection", "remote", remote, "error", err)
				return
			}

		case <-readerDone:
			g.logger.Info("client disconnected", "remote", remote)
			return

		case <-g.stopCh:
			g.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

// closeWith sends a close frame with the given code, best-effort.
func (g *Gateway) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.CloseMessage, msg)
}
