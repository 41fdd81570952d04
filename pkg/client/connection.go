package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/wirechat/pkg/protocol"
)

const (
	// DefaultPort is the server's default TCP port
	DefaultPort = 7980

	defaultDialTimeout = 10 * time.Second
)

// ErrNotConnected is returned by Send before Connect or after Close
var ErrNotConnected = errors.New("not connected")

// Connection represents a client connection to the server
type Connection struct {
	addr    string
	dial    func(timeout time.Duration) (net.Conn, error)
	timeout time.Duration

	mu      sync.Mutex // serialises writes and guards conn
	conn    net.Conn
	readErr error

	incoming chan protocol.Message

	// Traffic counters (bytes on the wire)
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	logger *log.Logger

	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConnection creates a new client connection. addr is host[:port] for TCP
// or a ws:// / wss:// URL.
func NewConnection(addr string) (*Connection, error) {
	dialConfig, err := parseServerAddress(addr)
	if err != nil {
		return nil, err
	}

	return &Connection{
		addr:     dialConfig.display,
		dial:     dialConfig.dial,
		timeout:  defaultDialTimeout,
		incoming: make(chan protocol.Message, 100),
		shutdown: make(chan struct{}),
	}, nil
}

// SetLogger sets a logger for debugging connection events
func (c *Connection) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// SetDialTimeout overrides the default dial timeout
func (c *Connection) SetDialTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// logf logs a message if a logger is set
func (c *Connection) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Connect establishes connection to the server and starts the read loop
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	c.logf("Connecting to %s...", c.addr)

	conn, err := c.dial(c.timeout)
	if err != nil {
		c.logf("Connection failed: %v", err)
		return fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logf("Connected successfully to %s", c.addr)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

// Close shuts down the connection. Incoming is closed once the read loop exits.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.shutdown)

		c.mu.Lock()
		if c.conn != nil {
			c.logf("Disconnecting from %s", c.addr)
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// Send writes one message to the server
func (c *Connection) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case <-c.shutdown:
		return ErrNotConnected
	default:
	}

	w := &countingWriter{w: c.conn, counter: &c.bytesSent}
	if err := protocol.WriteMessage(w, msg); err != nil {
		c.logf("Write error: %v", err)
		return fmt.Errorf("write error: %w", err)
	}

	c.logf("→ SEND: Command=%s", msg.Command())
	return nil
}

// Incoming returns the channel of messages from the server. It is closed
// when the connection ends; Err then reports why.
func (c *Connection) Incoming() <-chan protocol.Message {
	return c.incoming
}

// Err returns the error that ended the read loop: io.EOF for a clean close
// by the server, nil while the connection is live
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// GetAddress returns the server address
func (c *Connection) GetAddress() string {
	return c.addr
}

// GetBytesSent returns the total bytes sent
func (c *Connection) GetBytesSent() uint64 {
	return c.bytesSent.Load()
}

// GetBytesReceived returns the total bytes received
func (c *Connection) GetBytesReceived() uint64 {
	return c.bytesReceived.Load()
}

// readLoop reads messages from the connection until it fails or is closed
func (c *Connection) readLoop(conn net.Conn) {
	defer c.wg.Done()
	defer close(c.incoming)

	reader := protocol.NewReader(&countingReader{r: conn, counter: &c.bytesReceived})
	for msg, err := range reader.Messages() {
		if err != nil {
			select {
			case <-c.shutdown:
				err = io.EOF
			default:
			}
			if errors.Is(err, io.EOF) {
				c.logf("Connection closed (EOF)")
			} else {
				c.logf("Read error: %v", err)
			}

			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		c.logf("← RECV: Command=%s", msg.Command())

		select {
		case c.incoming <- msg:
		case <-c.shutdown:
			c.mu.Lock()
			c.readErr = io.EOF
			c.mu.Unlock()
			return
		}
	}
}

// countingReader wraps an io.Reader and counts bytes read using atomic counter
type countingReader struct {
	r       io.Reader
	counter *atomic.Uint64
}

func (cr *countingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	if n > 0 && cr.counter != nil {
		cr.counter.Add(uint64(n))
	}
	return n, err
}

// countingWriter wraps an io.Writer and counts bytes written using atomic counter
type countingWriter struct {
	w       io.Writer
	counter *atomic.Uint64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if n > 0 && cw.counter != nil {
		cw.counter.Add(uint64(n))
	}
	return n, err
}

type dialConfig struct {
	display string
	dial    func(timeout time.Duration) (net.Conn, error)
}

func parseServerAddress(raw string) (*dialConfig, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("server address is empty")
	}

	scheme := "tcp"
	hostPort := trimmed
	path := ""
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid server address %q: %w", raw, err)
		}

		if u.Scheme != "" {
			scheme = strings.ToLower(u.Scheme)
		}
		hostPort = u.Host
		path = u.Path
	}

	host, port, err := splitHostPortWithDefault(hostPort, strconv.Itoa(DefaultPort))
	if err != nil {
		return nil, err
	}
	address := net.JoinHostPort(host, port)

	switch scheme {
	case "tcp":
		return &dialConfig{
			display: address,
			dial: func(timeout time.Duration) (net.Conn, error) {
				return net.DialTimeout("tcp", address, timeout)
			},
		}, nil

	case "ws", "wss":
		if path == "" {
			path = "/ws"
		}
		u := url.URL{Scheme: scheme, Host: address, Path: path}
		return &dialConfig{
			display: u.String(),
			dial: func(timeout time.Duration) (net.Conn, error) {
				return DialWebSocket(u, timeout)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported server scheme %q", scheme)
	}
}

func splitHostPortWithDefault(hostPort, defaultPort string) (string, string, error) {
	hostPort = strings.TrimSpace(hostPort)
	if hostPort == "" {
		return "", "", errors.New("missing host in server address")
	}

	host, port, err := net.SplitHostPort(hostPort)
	if err == nil {
		return host, port, nil
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) && strings.Contains(strings.ToLower(addrErr.Err), "missing port") {
		host = hostPort
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
		}
		return host, defaultPort, nil
	}

	return "", "", err
}
