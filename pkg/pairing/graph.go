// Package pairing tracks who each user is chatting with and holds messages
// sent while a pairing is one-sided.
package pairing

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"unicode"
)

var (
	ErrInvalidTarget  = errors.New("invalid connection target")
	ErrNotConnected   = errors.New("not connected to another user")
	ErrEmptyMessage   = errors.New("message is missing")
	ErrMessageTooLong = errors.New("message is too long")
	ErrQueueFull      = errors.New("message queue is full")
)

// Registry answers whether a username exists. *directory.Directory satisfies it.
type Registry interface {
	Exists(username string) bool
}

// ConnectResult describes the routing effects of Connect
type ConnectResult struct {
	Peer   string
	Mutual bool
	// Flushed holds the messages Peer queued for the caller, oldest first.
	// Only filled when the pairing became mutual.
	Flushed []string
	// Previous is the caller's former target when Connect replaced a pairing
	Previous       string
	PreviousMutual bool
}

// DisconnectResult describes the pairing that Disconnect cleared
type DisconnectResult struct {
	Peer      string
	WasMutual bool
}

// Delivery says where a sent message went
type Delivery struct {
	Peer   string
	Queued bool
}

// RemoveResult lists the pairings severed by Remove
type RemoveResult struct {
	Peer      string   // the removed user's own target, if any
	WasMutual bool     // whether Peer was paired back
	Severed   []string // users whose pairing pointed at the removed user, sorted
}

// Graph is the directed connected-to relation plus per-recipient queues
type Graph struct {
	mu       sync.Mutex
	accounts Registry
	targets  map[string]string              // username -> target
	queues   map[string]map[string][]string // recipient -> sender -> messages
	maxLen   int
	maxQueue int
}

// New creates an empty graph. maxMessageLength <= 0 disables the length
// check; maxQueued <= 0 lets a sender queue without bound.
func New(accounts Registry, maxMessageLength, maxQueued int) *Graph {
	return &Graph{
		accounts: accounts,
		targets:  make(map[string]string),
		queues:   make(map[string]map[string][]string),
		maxLen:   maxMessageLength,
		maxQueue: maxQueued,
	}
}

// Connect points from's pairing at to. If to was already paired with from the
// pairing is mutual and to's queued messages for from are handed back.
func (g *Graph) Connect(from, to string) (ConnectResult, error) {
	if to == "" || to == from || strings.IndexFunc(to, unicode.IsSpace) >= 0 {
		return ConnectResult{}, ErrInvalidTarget
	}
	if !g.accounts.Exists(to) {
		return ConnectResult{}, ErrInvalidTarget
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	res := ConnectResult{Peer: to}
	if prev := g.targets[from]; prev != "" && prev != to {
		res.Previous = prev
		res.PreviousMutual = g.targets[prev] == from
	}

	g.targets[from] = to
	if g.targets[to] != from {
		return res, nil
	}

	res.Mutual = true
	if pending := g.queues[from][to]; len(pending) > 0 {
		res.Flushed = pending
		delete(g.queues[from], to)
	}
	return res, nil
}

// Disconnect clears user's pairing
func (g *Graph) Disconnect(user string) (DisconnectResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	peer := g.targets[user]
	if peer == "" {
		return DisconnectResult{}, ErrNotConnected
	}
	delete(g.targets, user)

	return DisconnectResult{Peer: peer, WasMutual: g.targets[peer] == user}, nil
}

// Send routes text from sender to its current target. When the pairing is not
// mutual the text is queued under the target, keyed by sender, and
// ErrQueueFull is returned once that queue holds maxQueued messages.
func (g *Graph) Send(sender, text string) (Delivery, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	peer := g.targets[sender]
	if peer == "" {
		return Delivery{}, ErrNotConnected
	}
	if text == "" {
		return Delivery{}, ErrEmptyMessage
	}
	if g.maxLen > 0 && len(text) > g.maxLen {
		return Delivery{}, ErrMessageTooLong
	}

	if g.targets[peer] == sender {
		return Delivery{Peer: peer}, nil
	}

	bySender := g.queues[peer]
	if g.maxQueue > 0 && len(bySender[sender]) >= g.maxQueue {
		return Delivery{}, ErrQueueFull
	}
	if bySender == nil {
		bySender = make(map[string][]string)
		g.queues[peer] = bySender
	}
	bySender[sender] = append(bySender[sender], text)
	return Delivery{Peer: peer, Queued: true}, nil
}

// Remove drops every trace of user: its pairing, pairings aimed at it, its
// inbound queues and the messages it queued for others.
func (g *Graph) Remove(user string) RemoveResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	var res RemoveResult
	if peer := g.targets[user]; peer != "" {
		res.Peer = peer
		res.WasMutual = g.targets[peer] == user
		delete(g.targets, user)
	}

	for other, target := range g.targets {
		if target == user {
			res.Severed = append(res.Severed, other)
			delete(g.targets, other)
		}
	}
	slices.Sort(res.Severed)

	delete(g.queues, user)
	for recipient, bySender := range g.queues {
		delete(bySender, user)
		if len(bySender) == 0 {
			delete(g.queues, recipient)
		}
	}
	return res
}

// Target returns user's current target, or "" if unpaired
func (g *Graph) Target(user string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.targets[user]
}

// IsMutual reports whether user and its target point at each other
func (g *Graph) IsMutual(user string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	peer := g.targets[user]
	return peer != "" && g.targets[peer] == user
}

// Pending returns a copy of the messages sender has queued for recipient
func (g *Graph) Pending(recipient, sender string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.queues[recipient][sender])
}

// QueuedCount returns how many messages are waiting for recipient
func (g *Graph) QueuedCount(recipient string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, msgs := range g.queues[recipient] {
		n += len(msgs)
	}
	return n
}
