package client

import (
	"github.com/aeolun/wirechat/pkg/protocol"
)

// Transport is the part of a connection the terminal UI drives. Connection
// implements it; tests substitute fakes.
type Transport interface {
	// Send writes one message to the server
	Send(msg protocol.Message) error

	// Incoming yields server messages and is closed when the connection ends
	Incoming() <-chan protocol.Message
}
