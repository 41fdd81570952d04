package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aeolun/wirechat/pkg/directory"
	"github.com/aeolun/wirechat/pkg/pairing"
	"github.com/aeolun/wirechat/pkg/protocol"
)

var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrTransport         = errors.New("transport error")
)

// violation reports a command that is not valid in the session's state
func violation(cmd protocol.Command, state State) error {
	return fmt.Errorf("%w: %s is not allowed while %s", ErrProtocolViolation, cmd, state)
}

// userMessage renders a recovered error as the single line shown to the client
func userMessage(err error) string {
	switch {
	case errors.Is(err, directory.ErrInvalidUsername):
		return "Invalid username. It must be non-empty, short and contain no spaces."
	case errors.Is(err, directory.ErrNotFound):
		return "Username does not exist"
	case errors.Is(err, directory.ErrAlreadyExists):
		return "Username already exists"
	case errors.Is(err, directory.ErrAlreadyLoggedIn):
		return "User already logged in"
	case errors.Is(err, directory.ErrNotLoggedIn):
		return "You are not logged in"
	case errors.Is(err, directory.ErrInvalidQuery):
		return "Wildcard must be at the beginning or end of query."
	case errors.Is(err, errSelfTarget):
		return "You cannot connect to yourself"
	case errors.Is(err, errMissingTarget):
		return "Username is missing!"
	case errors.Is(err, pairing.ErrInvalidTarget):
		return "User does not exist"
	case errors.Is(err, pairing.ErrNotConnected):
		return "You are not connected to another user. Type /H for list of commands."
	case errors.Is(err, pairing.ErrEmptyMessage):
		return "Message is missing!"
	case errors.Is(err, pairing.ErrMessageTooLong):
		return "Message is too long"
	case errors.Is(err, pairing.ErrQueueFull):
		return "Too many queued messages. Wait for them to connect back."
	case errors.Is(err, ErrProtocolViolation):
		msg := err.Error()
		return strings.ToUpper(msg[:1]) + msg[1:]
	default:
		return "Internal error: " + err.Error()
	}
}
