package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/aeolun/wirechat/pkg/directory"
	"github.com/aeolun/wirechat/pkg/pairing"
	"github.com/aeolun/wirechat/pkg/protocol"
	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags|log.Lmicroseconds)
)

// Server represents the chat server
type Server struct {
	listener    net.Listener
	httpServers []*http.Server
	sessions    *SessionManager
	hub         *Hub
	accounts    *directory.Directory
	metrics     *Metrics
	registry    *prometheus.Registry
	config      ServerConfig
	shutdown    chan struct{}
	stopOnce    sync.Once
	tasks       *taskgroup.Group
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host              string
	TCPPort           int
	WebSocketPort     int // 0 disables the WebSocket listener
	MetricsPort       int // 0 disables /metrics
	MaxUsernameLength int
	MaxMessageLength  int
	MaxQueuedMessages int // per sender and recipient; 0 is unbounded
	OutboundQueueSize int
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Host:              "0.0.0.0",
		TCPPort:           7980,
		WebSocketPort:     0,
		MetricsPort:       0,
		MaxUsernameLength: directory.DefaultMaxUsernameLength,
		MaxMessageLength:  4096,
		MaxQueuedMessages: 100,
		OutboundQueueSize: DefaultOutboundQueueSize,
	}
}

// NewServer creates a new server instance with empty, in-memory state
func NewServer(config ServerConfig) *Server {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	accounts := directory.New(config.MaxUsernameLength)
	graph := pairing.New(accounts, config.MaxMessageLength, config.MaxQueuedMessages)

	sessions := NewSessionManager(config.OutboundQueueSize)
	sessions.SetMetrics(metrics)

	return &Server{
		sessions: sessions,
		hub:      NewHub(accounts, graph, sessions, metrics),
		accounts: accounts,
		metrics:  metrics,
		registry: registry,
		config:   config,
		shutdown: make(chan struct{}),
		tasks:    taskgroup.New(nil),
	}
}

// EnableDebugLogging sends per-frame debug logs to stderr
func (s *Server) EnableDebugLogging() {
	debugLog.SetOutput(os.Stderr)
}

// Start opens the listeners and begins accepting connections
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.TCPPort))
	listener, err := listen(addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("TCP server listening on %s", listener.Addr())

	if s.config.WebSocketPort > 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.HandleWebSocket)
		if err := s.startHTTP(s.config.WebSocketPort, mux); err != nil {
			s.listener.Close()
			return fmt.Errorf("failed to start WebSocket server: %w", err)
		}
	}

	if s.config.MetricsPort > 0 {
		if err := s.startHTTP(s.config.MetricsPort, s.metricsMux()); err != nil {
			s.closeListeners()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.tasks.Go(s.acceptLoop)
	return nil
}

// Addr returns the TCP listener address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) startHTTP(port int, handler http.Handler) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(port))
	ln, err := listen(addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: handler}
	s.httpServers = append(s.httpServers, srv)
	log.Printf("HTTP server listening on %s", ln.Addr())

	s.tasks.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorLog.Printf("HTTP server on %s: %v", ln.Addr(), err)
		}
		return nil
	})
	return nil
}

// Stop tells every client the server is going away, closes the listeners
// and waits for all connection goroutines to finish. Safe to call twice.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		s.closeListeners()

		s.sessions.BroadcastToAll(protocol.ServerQuitMessage{Reason: "Server shutting down"})
		s.sessions.CloseAll()
	})

	return s.tasks.Wait()
}

func (s *Server) closeListeners() {
	if s.listener != nil {
		s.listener.Close()
	}
	for _, srv := range s.httpServers {
		srv.Close()
	}
}

// acceptLoop accepts incoming connections until the listener closes
func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			errorLog.Printf("Accept error: %v", err)
			continue
		}

		// Disable Nagle's algorithm for immediate sends
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		s.tasks.Go(func() error {
			s.serveConn(conn, "tcp")
			return nil
		})
	}
}

// SessionCount returns the number of open connections
func (s *Server) SessionCount() int {
	return s.sessions.Count()
}

// AccountCount returns the number of registered accounts
func (s *Server) AccountCount() int {
	return s.accounts.Count()
}
