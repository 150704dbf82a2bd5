// Package ws handles the reporter-facing WebSocket gateway: upgrading HTTP
// connections, maintaining the active connection registry, dispatching
// incoming messages, and adapting live connections to the private-channel
// interface the intake workflow consumes.
package ws

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/whisper/reportdesk/internal/metrics"
	"github.com/whisper/reportdesk/internal/protocol"
	"github.com/whisper/reportdesk/internal/ratelimit"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	MaxConnections int           // hard cap on total connections
	StaleTimeout   time.Duration // close connections silent for longer than this
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxConnections: 10000,
		StaleTimeout:   5 * time.Minute,
	}
}

// Server is the WebSocket server for reporter connections, built on
// gobwas/ws. Each connection gets its own read goroutine; a collection
// session suspends only its own goroutine while waiting on the inbox, so
// one silent reporter never stalls another.
type Server struct {
	config     ServerConfig
	conns      *ConnectionManager
	limiter    *ratelimit.Limiter
	onMessage  func(conn *Connection, data []byte)
	httpServer *http.Server
	done       chan struct{}
}

// NewServer creates a Server with the given configuration and message
// callback. The onMessage function is called from the connection's read
// goroutine whenever a complete WebSocket text frame is received.
func NewServer(config ServerConfig, limiter *ratelimit.Limiter, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:    config,
		conns:     NewConnectionManager(),
		limiter:   limiter,
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
}

// Connections returns the server's connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Start configures the HTTP server and begins accepting WebSocket
// connections. It blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	go s.sweepStale()

	log.Printf("ws: server listening on %s (max_conns=%d)",
		s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections and closes the existing ones.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	for _, conn := range s.conns.All() {
		s.removeConn(conn)
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection,
// registers it, and starts its read loop.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	allowed, _ := s.limiter.Allow(r.Context(), host, ratelimit.RuleConnect)
	if !allowed {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	conn := newConnection(uuid.NewString(), netConn, r.RemoteAddr)
	s.conns.Add(conn)
	metrics.ConnectionsTotal.Inc()

	data, err := protocol.NewServerMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{
		SessionID: conn.ID,
	})
	if err == nil {
		if err := conn.WriteMessage(data); err != nil {
			log.Printf("ws: failed to send session_created session=%s: %v", conn.ID, err)
		}
	}

	log.Printf("ws: connection opened session=%s addr=%s total=%d", conn.ID, r.RemoteAddr, s.conns.Count())

	go s.readLoop(conn)
}

// readLoop reads frames from one connection until it fails or closes.
func (s *Server) readLoop(conn *Connection) {
	defer s.removeConn(conn)

	for {
		data, op, err := wsutil.ReadClientData(conn.Conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("ws: read error session=%s: %v", conn.ID, err)
			}
			return
		}
		if op == ws.OpText {
			s.onMessage(conn, data)
		}
	}
}

// removeConn deregisters and closes a connection exactly once.
func (s *Server) removeConn(conn *Connection) {
	if s.conns.Remove(conn.ID) {
		metrics.ConnectionsTotal.Dec()
		log.Printf("ws: connection closed session=%s total=%d", conn.ID, s.conns.Count())
	}
}

// sweepStale periodically closes connections that have not pinged within
// the stale timeout.
func (s *Server) sweepStale() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.config.StaleTimeout)
			for _, conn := range s.conns.All() {
				if conn.LastPing.Before(cutoff) {
					log.Printf("ws: closing stale connection session=%s", conn.ID)
					s.removeConn(conn)
				}
			}
		}
	}
}

// handleHealth reports liveness and the current connection count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connections":%d}`, s.conns.Count())
}
