package server

import (
	"net"
	"testing"
	"time"

	"github.com/aeolun/wirechat/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerBindAndLookup(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(4)

	sess := testSession(sm)
	_, ok := sm.Lookup("ann")
	assert.False(t, ok)

	sm.Bind(sess, "ann")
	got, ok := sm.Lookup("ann")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, "ann", sess.Username())

	sm.Unbind(sess)
	_, ok = sm.Lookup("ann")
	assert.False(t, ok)
	assert.Empty(t, sess.Username())

	// Unbinding twice is harmless
	sm.Unbind(sess)
}

func TestSessionManagerUnbindKeepsNewerBinding(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(4)

	old := testSession(sm)
	sm.Bind(old, "ann")
	newer := testSession(sm)
	sm.Bind(newer, "ann")

	sm.Unbind(old)
	got, ok := sm.Lookup("ann")
	require.True(t, ok)
	assert.Same(t, newer, got)
}

func TestSessionManagerRemoveSession(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(4)

	sess := testSession(sm)
	sm.Bind(sess, "ann")
	require.Equal(t, 1, sm.Count())

	sm.RemoveSession(sess.ID)

	assert.Zero(t, sm.Count())
	_, ok := sm.GetSession(sess.ID)
	assert.False(t, ok)
	_, ok = sm.Lookup("ann")
	assert.False(t, ok)
	assert.False(t, sess.Send(protocol.PromptMessage{}), "removed sessions accept no frames")

	// Removing an unknown session is a no-op
	sm.RemoveSession(sess.ID)
}

func TestSessionManagerGetAllSessions(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(4)

	ids := map[uint64]bool{}
	for range 3 {
		ids[testSession(sm).ID] = true
	}

	all := sm.GetAllSessions()
	require.Len(t, all, 3)
	for _, sess := range all {
		assert.True(t, ids[sess.ID])
	}
}

func TestSessionSendDropsSlowConsumer(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(2)
	sess := testSession(sm)

	assert.True(t, sess.Send(protocol.PromptMessage{}))
	assert.True(t, sess.Send(protocol.PromptMessage{}))
	assert.False(t, sess.Send(protocol.PromptMessage{}), "third frame overflows the queue")

	assert.True(t, sess.Conn.(*mockConn).isClosed())
	assert.False(t, sess.Send(protocol.PromptMessage{}))

	// Frames queued before the overflow are still in the closed channel
	assert.Len(t, drain(t, sess), 2)
}

func TestSessionWriteLoopFlushesBeforeClose(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(8)

	conn := newMockConn()
	sess := sm.CreateSession(conn, "tcp")

	sess.Send(protocol.DisplayMessage{Text: "one"})
	sess.Send(protocol.DisplayMessage{Text: "two"})
	sess.Close()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit after Close")
	}

	assert.True(t, conn.isClosed())
	assert.Equal(t, []protocol.Message{
		protocol.DisplayMessage{Text: "one"},
		protocol.DisplayMessage{Text: "two"},
	}, decodeAll(t, conn.writeBuf.Bytes()))
}

func TestSessionAbortStopsWriter(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(8)

	conn := newMockConn()
	sess := sm.CreateSession(conn, "tcp")
	sess.Abort()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit after Abort")
	}
	assert.True(t, conn.isClosed())
}

func TestSessionWriteTimeoutDropsStalledReader(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(8)
	sm.writeTimeout = 50 * time.Millisecond

	serverEnd, clientEnd := net.Pipe()
	defer clientEnd.Close()

	// Nothing reads clientEnd, so the first write stalls
	sess := sm.CreateSession(serverEnd, "tcp")
	sess.Send(protocol.DisplayMessage{Text: "never read"})

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer stayed blocked on a client that stopped reading")
	}
	assert.False(t, sess.Send(protocol.PromptMessage{}), "a timed-out session accepts no more frames")
}

func TestSessionManagerCloseAll(t *testing.T) {
	initTestLoggers(t)
	sm := NewSessionManager(8)

	conns := []*mockConn{newMockConn(), newMockConn()}
	var sessions []*Session
	for _, conn := range conns {
		sessions = append(sessions, sm.CreateSession(conn, "tcp"))
	}

	sm.BroadcastToAll(protocol.ServerQuitMessage{Reason: "bye"})
	sm.CloseAll()

	for i, sess := range sessions {
		<-sess.Done()
		assert.Equal(t, []protocol.Message{protocol.ServerQuitMessage{Reason: "bye"}},
			decodeAll(t, conns[i].writeBuf.Bytes()))
	}

	// Sessions created after CloseAll are closed on arrival
	late := sm.CreateSession(newMockConn(), "tcp")
	select {
	case <-late.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("late session was not closed")
	}
}
