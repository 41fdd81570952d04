package protocol

import (
	"fmt"
	"io"
)

// Message is a decoded frame. The set of implementations is closed: one
// struct per Command, each carrying its typed payload.
type Message interface {
	Command() Command
	payload() []byte
}

// Client → Server

// LoginMessage (0x01) - log in to an existing account
type LoginMessage struct{ Username string }

// RegisterMessage (0x02) - create an account and log in
type RegisterMessage struct{ Username string }

// HelpMessage (0x03)
type HelpMessage struct{}

// ListUsersMessage (0x04) - empty pattern lists everyone
type ListUsersMessage struct{ Pattern string }

// ConnectMessage (0x05) - point the sender's pairing at Username
type ConnectMessage struct{ Username string }

// TextMessage (0x06) - chat text for the current pairing
type TextMessage struct{ Body string }

// ExitChatMessage (0x07)
type ExitChatMessage struct{}

// DeleteMessage (0x08)
type DeleteMessage struct{}

// LogoutMessage (0x09)
type LogoutMessage struct{}

// NothingMessage (0x0A) - sent for empty terminal input
type NothingMessage struct{}

// QuitMessage (0x0B)
type QuitMessage struct{}

// Server → Client

// LoginPromptMessage (0x81) - ask the client to log in or register
type LoginPromptMessage struct{}

// DisplayMessage (0x82) - human-readable text for the terminal
type DisplayMessage struct{ Text string }

// PromptMessage (0x83) - ask the client for its next command
type PromptMessage struct{}

// StartChatMessage (0x84) - the client's pairing now targets Peer
type StartChatMessage struct{ Peer string }

// ServerQuitMessage (0x85) - the server is closing this connection
type ServerQuitMessage struct{ Reason string }

func (LoginMessage) Command() Command       { return CmdLogin }
func (RegisterMessage) Command() Command    { return CmdRegister }
func (HelpMessage) Command() Command        { return CmdHelp }
func (ListUsersMessage) Command() Command   { return CmdListUsers }
func (ConnectMessage) Command() Command     { return CmdConnect }
func (TextMessage) Command() Command        { return CmdText }
func (ExitChatMessage) Command() Command    { return CmdExitChat }
func (DeleteMessage) Command() Command      { return CmdDelete }
func (LogoutMessage) Command() Command      { return CmdLogout }
func (NothingMessage) Command() Command     { return CmdNothing }
func (QuitMessage) Command() Command        { return CmdQuit }
func (LoginPromptMessage) Command() Command { return CmdLoginPrompt }
func (DisplayMessage) Command() Command     { return CmdDisplay }
func (PromptMessage) Command() Command      { return CmdPrompt }
func (StartChatMessage) Command() Command   { return CmdStartChat }
func (ServerQuitMessage) Command() Command  { return CmdServerQuit }

func (m LoginMessage) payload() []byte      { return []byte(m.Username) }
func (m RegisterMessage) payload() []byte   { return []byte(m.Username) }
func (HelpMessage) payload() []byte         { return nil }
func (m ListUsersMessage) payload() []byte  { return []byte(m.Pattern) }
func (m ConnectMessage) payload() []byte    { return []byte(m.Username) }
func (m TextMessage) payload() []byte       { return []byte(m.Body) }
func (ExitChatMessage) payload() []byte     { return nil }
func (DeleteMessage) payload() []byte       { return nil }
func (LogoutMessage) payload() []byte       { return nil }
func (NothingMessage) payload() []byte      { return nil }
func (QuitMessage) payload() []byte         { return nil }
func (LoginPromptMessage) payload() []byte  { return nil }
func (m DisplayMessage) payload() []byte    { return []byte(m.Text) }
func (PromptMessage) payload() []byte       { return nil }
func (m StartChatMessage) payload() []byte  { return []byte(m.Peer) }
func (m ServerQuitMessage) payload() []byte { return []byte(m.Reason) }

// NewFrame wraps a message in a frame at the current protocol version
func NewFrame(msg Message) *Frame {
	return &Frame{
		Version: ProtocolVersion,
		Command: msg.Command(),
		Payload: msg.payload(),
	}
}

// Parse decodes a frame into its typed message
func Parse(f *Frame) (Message, error) {
	text, err := decodeText(f.Payload)
	if err != nil {
		return nil, err
	}

	switch f.Command {
	case CmdLogin:
		return LoginMessage{Username: text}, nil
	case CmdRegister:
		return RegisterMessage{Username: text}, nil
	case CmdHelp:
		return HelpMessage{}, nil
	case CmdListUsers:
		return ListUsersMessage{Pattern: text}, nil
	case CmdConnect:
		return ConnectMessage{Username: text}, nil
	case CmdText:
		return TextMessage{Body: text}, nil
	case CmdExitChat:
		return ExitChatMessage{}, nil
	case CmdDelete:
		return DeleteMessage{}, nil
	case CmdLogout:
		return LogoutMessage{}, nil
	case CmdNothing:
		return NothingMessage{}, nil
	case CmdQuit:
		return QuitMessage{}, nil
	case CmdLoginPrompt:
		return LoginPromptMessage{}, nil
	case CmdDisplay:
		return DisplayMessage{Text: text}, nil
	case CmdPrompt:
		return PromptMessage{}, nil
	case CmdStartChat:
		return StartChatMessage{Peer: text}, nil
	case CmdServerQuit:
		return ServerQuitMessage{Reason: text}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(f.Command))
	}
}

// WriteMessage frames msg and writes it to w
func WriteMessage(w io.Writer, msg Message) error {
	return EncodeFrame(w, NewFrame(msg))
}
