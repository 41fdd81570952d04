package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/wirechat/pkg/protocol"
	"github.com/fortytw2/leaktest"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

// startTestServer starts a real server on a random port and returns the server and address
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	initTestLoggers(t)

	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.TCPPort = 0

	srv := NewServer(config)
	require.NoError(t, srv.Start())

	t.Cleanup(func() {
		srv.Stop()
	})

	return srv, srv.Addr().String()
}

// testClient is a raw protocol client
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *protocol.Reader
}

func dialTestClient(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return newTestClient(t, conn)
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	return &testClient{t: t, conn: conn, reader: protocol.NewReader(conn)}
}

func (c *testClient) send(msg protocol.Message) {
	c.t.Helper()
	require.NoError(c.t, protocol.WriteMessage(c.conn, msg))
}

// next reads one message with timeout
func (c *testClient) next() protocol.Message {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	msg, err := c.reader.ReadMessage()
	require.NoError(c.t, err)
	return msg
}

// expect reads messages in order and compares them
func (c *testClient) expect(want ...protocol.Message) {
	c.t.Helper()
	for _, w := range want {
		assert.Equal(c.t, w, c.next())
	}
}

// skipUntil reads until a message equal to want arrives
func (c *testClient) skipUntil(want protocol.Message) {
	c.t.Helper()
	for {
		if c.next() == want {
			return
		}
	}
}

// register performs the handshake and waits for the first command prompt
func (c *testClient) register(name string) {
	c.t.Helper()

	c.expect(protocol.DisplayMessage{Text: "Connected to server"}, protocol.LoginPromptMessage{})
	c.send(protocol.RegisterMessage{Username: name})
	c.expect(
		protocol.DisplayMessage{Text: "You are now logged in!\n"},
		protocol.DisplayMessage{Text: helpText},
		protocol.PromptMessage{},
	)
}

// expectClosed waits for the server to close the connection
func (c *testClient) expectClosed() {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	_, err := c.reader.ReadMessage()
	assert.ErrorIs(c.t, err, io.EOF)
}

func TestServerChatEndToEnd(t *testing.T) {
	defer leaktest.Check(t)()

	srv, addr := startTestServer(t)
	defer srv.Stop()

	ann := dialTestClient(t, addr)
	ann.register("ann")
	bob := dialTestClient(t, addr)
	bob.register("bob")

	// bob connects first; ann is not pointed at him so text queues
	bob.send(protocol.ConnectMessage{Username: "ann"})
	bob.expect(
		protocol.StartChatMessage{Peer: "ann"},
		protocol.DisplayMessage{Text: "ann is not connected to you. Sent messages will be queued!"},
	)
	bob.send(protocol.TextMessage{Body: "hi"})

	ann.send(protocol.ConnectMessage{Username: "bob"})
	ann.expect(
		protocol.StartChatMessage{Peer: "bob"},
		protocol.DisplayMessage{Text: "You have queued messages from bob:\nbob: hi\n"},
		protocol.DisplayMessage{Text: "bob is connected to you!"},
	)
	bob.expect(protocol.DisplayMessage{Text: "ann has connected!"})

	ann.send(protocol.TextMessage{Body: "hello bob"})
	bob.expect(protocol.DisplayMessage{Text: "ann: hello bob"})
	bob.send(protocol.TextMessage{Body: "hello ann"})
	ann.expect(protocol.DisplayMessage{Text: "bob: hello ann"})

	bob.send(protocol.ExitChatMessage{})
	bob.expect(protocol.DisplayMessage{Text: "Disconnected from ann."}, protocol.PromptMessage{})
	ann.expect(protocol.DisplayMessage{Text: "bob has disconnected. Sent messages will be queued until they reconnect!"})

	ann.send(protocol.ExitChatMessage{})
	ann.expect(protocol.DisplayMessage{Text: "Disconnected from bob."}, protocol.PromptMessage{})

	ann.send(protocol.QuitMessage{})
	ann.expect(protocol.DisplayMessage{Text: "Quitting..."}, protocol.ServerQuitMessage{})
	ann.expectClosed()

	bob.send(protocol.DeleteMessage{})
	bob.expect(protocol.DisplayMessage{Text: "Account deleted. Quitting application..."}, protocol.ServerQuitMessage{})
	bob.expectClosed()

	assert.Equal(t, 1, srv.AccountCount())
}

func TestServerLargeBacklogKeepsSessionAlive(t *testing.T) {
	defer leaktest.Check(t)()

	srv, addr := startTestServer(t)
	defer srv.Stop()

	ann := dialTestClient(t, addr)
	ann.register("ann")
	bob := dialTestClient(t, addr)
	bob.register("bob")

	bob.send(protocol.ConnectMessage{Username: "ann"})
	bob.expect(
		protocol.StartChatMessage{Peer: "ann"},
		protocol.DisplayMessage{Text: "ann is not connected to you. Sent messages will be queued!"},
	)

	// Together these are well past one frame
	const count = 20
	var want strings.Builder
	want.WriteString("You have queued messages from bob:\n")
	for i := range count {
		body := fmt.Sprintf("%02d%s", i, strings.Repeat("x", 3998))
		bob.send(protocol.TextMessage{Body: body})
		want.WriteString("bob: " + body + "\n")
	}
	require.Eventually(t, func() bool {
		return srv.hub.graph.QueuedCount("ann") == count
	}, testTimeout, 10*time.Millisecond)

	ann.send(protocol.ConnectMessage{Username: "bob"})
	ann.expect(protocol.StartChatMessage{Peer: "bob"})

	var got strings.Builder
	frames := 0
	for {
		msg := ann.next()
		if msg == (protocol.DisplayMessage{Text: "bob is connected to you!"}) {
			break
		}
		display, ok := msg.(protocol.DisplayMessage)
		require.True(t, ok, "unexpected %T", msg)
		got.WriteString(display.Text)
		frames++
	}
	assert.Greater(t, frames, 1)
	assert.Equal(t, want.String(), got.String())

	// The session survives the flush
	ann.send(protocol.HelpMessage{})
	ann.expect(protocol.DisplayMessage{Text: helpText})
}

func TestServerLongUserListKeepsSessionAlive(t *testing.T) {
	defer leaktest.Check(t)()

	srv, addr := startTestServer(t)
	defer srv.Stop()

	const accounts = 2100
	for i := range accounts {
		require.NoError(t, srv.accounts.Register(fmt.Sprintf("member%025d", i)))
	}

	ann := dialTestClient(t, addr)
	ann.register("ann")
	ann.send(protocol.ListUsersMessage{Pattern: "member*"})

	names := 0
	frames := 0
	for {
		msg := ann.next()
		if msg == (protocol.PromptMessage{}) {
			break
		}
		display, ok := msg.(protocol.DisplayMessage)
		require.True(t, ok, "unexpected %T", msg)
		names += strings.Count(display.Text, "member")
		frames++
	}
	assert.Equal(t, accounts, names)
	assert.Greater(t, frames, 1)

	ann.send(protocol.NothingMessage{})
	ann.expect(protocol.PromptMessage{})
}

func TestServerDuplicateLoginRejected(t *testing.T) {
	srv, addr := startTestServer(t)

	first := dialTestClient(t, addr)
	first.register("ann")

	second := dialTestClient(t, addr)
	second.expect(protocol.DisplayMessage{Text: "Connected to server"}, protocol.LoginPromptMessage{})
	second.send(protocol.LoginMessage{Username: "ann"})
	second.expect(protocol.DisplayMessage{Text: "User already logged in"}, protocol.LoginPromptMessage{})

	// Once the first connection drops the account is free again
	first.conn.Close()
	require.Eventually(t, func() bool { return !srv.accounts.IsLoggedIn("ann") }, testTimeout, 10*time.Millisecond)

	second.send(protocol.LoginMessage{Username: "ann"})
	second.expect(protocol.DisplayMessage{Text: "You are now logged in!\n"})
}

func TestServerMalformedFrameClosesConnection(t *testing.T) {
	srv, addr := startTestServer(t)

	client := dialTestClient(t, addr)
	client.expect(protocol.DisplayMessage{Text: "Connected to server"}, protocol.LoginPromptMessage{})

	// Length prefix far beyond the 64 KB limit
	_, err := client.conn.Write([]byte{0x00, 0x10, 0x00, 0x00})
	require.NoError(t, err)
	client.expectClosed()

	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, testTimeout, 10*time.Millisecond)
}

func TestServerConcurrentHandshakes(t *testing.T) {
	srv, addr := startTestServer(t)

	// A client that never answers must not hold up the others
	stalled := dialTestClient(t, addr)
	stalled.expect(protocol.DisplayMessage{Text: "Connected to server"})

	const clients = 10
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()

			conn, err := net.Dial("tcp", addr)
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()

			// require must not be used off the test goroutine
			reader := protocol.NewReader(conn)
			conn.SetReadDeadline(time.Now().Add(testTimeout))
			for _, want := range []protocol.Message{
				protocol.DisplayMessage{Text: "Connected to server"},
				protocol.LoginPromptMessage{},
			} {
				msg, err := reader.ReadMessage()
				assert.NoError(t, err)
				assert.Equal(t, want, msg)
			}

			assert.NoError(t, protocol.WriteMessage(conn, protocol.RegisterMessage{Username: fmt.Sprintf("user%d", i)}))
			msg, err := reader.ReadMessage()
			assert.NoError(t, err)
			assert.Equal(t, protocol.DisplayMessage{Text: "You are now logged in!\n"}, msg)
		}()
	}
	wg.Wait()

	assert.Equal(t, clients, srv.AccountCount())
}

func TestServerStopNotifiesClients(t *testing.T) {
	defer leaktest.Check(t)()

	srv, addr := startTestServer(t)

	client := dialTestClient(t, addr)
	client.register("ann")

	require.NoError(t, srv.Stop())

	client.skipUntil(protocol.ServerQuitMessage{Reason: "Server shutting down"})
	client.expectClosed()

	_, err := net.Dial("tcp", addr)
	assert.Error(t, err, "listener is closed after Stop")
}

func TestServerWebSocketSession(t *testing.T) {
	srv, _ := startTestServer(t)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn := NewWebSocketConn(ws)
	defer conn.Close()

	client := newTestClient(t, conn)
	client.register("ann")

	tcp := dialTestClient(t, srv.Addr().String())
	tcp.register("bob")

	client.send(protocol.ConnectMessage{Username: "bob"})
	client.expect(
		protocol.StartChatMessage{Peer: "bob"},
		protocol.DisplayMessage{Text: "bob is not connected to you. Sent messages will be queued!"},
	)
	tcp.send(protocol.ConnectMessage{Username: "ann"})
	tcp.expect(protocol.StartChatMessage{Peer: "ann"}, protocol.DisplayMessage{Text: "ann is connected to you!"})
	client.expect(protocol.DisplayMessage{Text: "bob has connected!"})

	tcp.send(protocol.TextMessage{Body: "over tcp"})
	client.expect(protocol.DisplayMessage{Text: "bob: over tcp"})
}

func TestServerWebSocketRejectedAfterStop(t *testing.T) {
	srv, _ := startTestServer(t)
	require.NoError(t, srv.Stop())

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv, addr := startTestServer(t)

	client := dialTestClient(t, addr)
	client.register("ann")

	ts := httptest.NewServer(srv.metricsMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Contains(t, string(body), "wirechat_online_users 1")
	assert.Contains(t, string(body), `wirechat_frames_received_total{command="REGISTER"} 1`)

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, StatusResponse{Sessions: 1, Accounts: 1, OnlineUsers: 1}, status)
}

func TestServerStartFailsOnBusyPort(t *testing.T) {
	_, addr := startTestServer(t)

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.TCPPort, err = strconv.Atoi(port)
	require.NoError(t, err)

	err = NewServer(config).Start()
	require.Error(t, err)
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr))
}
