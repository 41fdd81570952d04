package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/aeolun/wirechat/pkg/directory"
	"github.com/aeolun/wirechat/pkg/pairing"
	"github.com/aeolun/wirechat/pkg/protocol"
)

var (
	errSelfTarget    = fmt.Errorf("%w: cannot connect to yourself", pairing.ErrInvalidTarget)
	errMissingTarget = fmt.Errorf("%w: username is missing", pairing.ErrInvalidTarget)
)

// State is a session's position in the protocol state machine
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "logged out"
	case StateAuthenticated:
		return "logged in"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Hub owns the account directory and pairing graph and routes the frames
// their changes produce. Operations touching both structures, or reading one
// before writing the other, run under mu so they are linearised.
type Hub struct {
	mu       sync.Mutex
	accounts *directory.Directory
	graph    *pairing.Graph
	sessions *SessionManager
	metrics  *Metrics

	// displayLimit caps the text of one Display frame
	displayLimit int
}

// NewHub wires a directory and graph to the session registry
func NewHub(accounts *directory.Directory, graph *pairing.Graph, sessions *SessionManager, metrics *Metrics) *Hub {
	return &Hub{
		accounts:     accounts,
		graph:        graph,
		sessions:     sessions,
		metrics:      metrics,
		displayLimit: protocol.MaxPayloadSize,
	}
}

// State derives the session's state from its binding and pairing
func (h *Hub) State(sess *Session) State {
	name := sess.Username()
	if name == "" {
		return StateUnauthenticated
	}
	if h.graph.Target(name) != "" {
		return StateConnected
	}
	return StateAuthenticated
}

// Register creates an account and binds it to sess
func (h *Hub) Register(sess *Session, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.accounts.Register(username); err != nil {
		return err
	}
	h.sessions.Bind(sess, username)
	h.metrics.RecordOnlineUsers(h.accounts.OnlineCount())
	return nil
}

// Login binds sess to an existing, logged-out account
func (h *Hub) Login(sess *Session, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.accounts.Login(username); err != nil {
		return err
	}
	h.sessions.Bind(sess, username)
	h.metrics.RecordOnlineUsers(h.accounts.OnlineCount())
	return nil
}

// Logout severs the session's own pairing, marks the account logged out and
// unbinds the session. Pairings other users hold towards it are kept, so
// their messages keep queuing.
func (h *Hub) Logout(sess *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.logoutLocked(sess)
}

func (h *Hub) logoutLocked(sess *Session) error {
	name := sess.Username()
	if name == "" {
		return directory.ErrNotLoggedIn
	}

	if res, err := h.graph.Disconnect(name); err == nil {
		h.notifyDisconnect(name, res)
	}
	err := h.accounts.Logout(name)
	h.sessions.Unbind(sess)
	h.metrics.RecordOnlineUsers(h.accounts.OnlineCount())
	return err
}

// Delete removes the session's account along with every pairing and queue
// that mentions it. Users that were paired to it drop back to the logged-in
// state and are prompted again.
func (h *Hub) Delete(sess *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := sess.Username()
	if name == "" {
		return directory.ErrNotLoggedIn
	}
	if err := h.accounts.Delete(name); err != nil {
		return err
	}

	res := h.graph.Remove(name)
	for _, other := range res.Severed {
		if peer, ok := h.sessions.Lookup(other); ok {
			peer.Send(protocol.DisplayMessage{Text: fmt.Sprintf("%s deleted their account. You have been disconnected.", name)})
			peer.Send(protocol.PromptMessage{})
		}
	}

	h.sessions.Unbind(sess)
	h.metrics.RecordOnlineUsers(h.accounts.OnlineCount())
	return nil
}

// ListUsers renders the usernames matching pattern as Display texts, split
// so each fits in one frame
func (h *Hub) ListUsers(pattern string) ([]string, error) {
	names, err := h.accounts.List(pattern)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(names)+1)
	lines = append(lines, "Users:")
	lines = append(lines, names...)
	return packLines(lines, h.displayLimit), nil
}

// Connect points the session's pairing at target. The caller receives
// StartChat, then any messages target queued for it, then the mutual or
// one-sided notice. A mutual peer is told the caller connected.
func (h *Hub) Connect(sess *Session, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := sess.Username()
	switch target {
	case "":
		return errMissingTarget
	case name:
		return errSelfTarget
	}

	res, err := h.graph.Connect(name, target)
	if err != nil {
		return err
	}

	if res.Previous != "" {
		h.notifyDisconnect(name, pairing.DisconnectResult{Peer: res.Previous, WasMutual: res.PreviousMutual})
	}

	sess.Send(protocol.StartChatMessage{Peer: target})

	if len(res.Flushed) > 0 {
		lines := make([]string, 0, len(res.Flushed)+1)
		lines = append(lines, fmt.Sprintf("You have queued messages from %s:", target))
		for _, text := range res.Flushed {
			lines = append(lines, chatLine(target, text))
		}
		for _, text := range packLines(lines, h.displayLimit) {
			sess.Send(protocol.DisplayMessage{Text: text})
		}
		h.metrics.RecordQueueFlush(len(res.Flushed))
	}

	if !res.Mutual {
		sess.Send(protocol.DisplayMessage{Text: fmt.Sprintf("%s is not connected to you. Sent messages will be queued!", target)})
		return nil
	}

	sess.Send(protocol.DisplayMessage{Text: fmt.Sprintf("%s is connected to you!", target)})
	if peer, ok := h.sessions.Lookup(target); ok {
		peer.Send(protocol.DisplayMessage{Text: fmt.Sprintf("%s has connected!", name)})
	}
	return nil
}

// Disconnect clears the session's pairing
func (h *Hub) Disconnect(sess *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := sess.Username()
	res, err := h.graph.Disconnect(name)
	if err != nil {
		return err
	}
	h.notifyDisconnect(name, res)
	return nil
}

// notifyDisconnect tells both sides that name left its pairing. Must hold mu.
func (h *Hub) notifyDisconnect(name string, res pairing.DisconnectResult) {
	if self, ok := h.sessions.Lookup(name); ok {
		self.Send(protocol.DisplayMessage{Text: fmt.Sprintf("Disconnected from %s.", res.Peer)})
	}
	if !res.WasMutual {
		return
	}
	if peer, ok := h.sessions.Lookup(res.Peer); ok {
		peer.Send(protocol.DisplayMessage{Text: fmt.Sprintf("%s has disconnected. Sent messages will be queued until they reconnect!", name)})
	}
}

// Send routes chat text from the session to its pairing target
func (h *Hub) Send(sess *Session, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := sess.Username()
	d, err := h.graph.Send(name, text)
	if err != nil {
		return err
	}

	if d.Queued {
		h.metrics.RecordMessageQueued()
		return nil
	}

	if peer, ok := h.sessions.Lookup(d.Peer); ok {
		for _, piece := range splitText(chatLine(name, text), h.displayLimit) {
			peer.Send(protocol.DisplayMessage{Text: piece})
		}
		h.metrics.RecordMessageDelivered()
	}
	return nil
}

// Drop releases everything a closing session holds: its pairing, its login
// and its binding. Safe to call in any state.
func (h *Hub) Drop(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.Username() == "" {
		return
	}
	if err := h.logoutLocked(sess); err != nil {
		debugLog.Printf("Session %d: logout during cleanup: %v", sess.ID, err)
	}
}

func chatLine(from, text string) string {
	return from + ": " + text
}

// packLines joins lines, each newline-terminated, into as few texts of at
// most limit bytes as it can. A line longer than limit is split.
func packLines(lines []string, limit int) []string {
	var texts []string
	var b strings.Builder
	for _, line := range lines {
		for _, piece := range splitText(line+"\n", limit) {
			if b.Len() > 0 && b.Len()+len(piece) > limit {
				texts = append(texts, b.String())
				b.Reset()
			}
			b.WriteString(piece)
		}
	}
	if b.Len() > 0 {
		texts = append(texts, b.String())
	}
	return texts
}

// splitText cuts s into pieces of at most limit bytes without splitting a rune
func splitText(s string, limit int) []string {
	var pieces []string
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		pieces = append(pieces, s[:cut])
		s = s[cut:]
	}
	return append(pieces, s)
}
