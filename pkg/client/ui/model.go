// Package ui is the terminal front end of the chat client. It runs inline
// in the terminal: finished output scrolls above a single input line.
package ui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aeolun/wirechat/pkg/client"
	"github.com/aeolun/wirechat/pkg/protocol"
)

// ErrConnectionLost is returned by Run when the server goes away without
// sending a Quit frame
var ErrConnectionLost = errors.New("connection to server lost")

// maxLineRunes keeps any typed line, at four bytes a rune, inside one frame
const maxLineRunes = protocol.MaxPayloadSize / 4

// InputMode says what the next submitted line is for
type InputMode int

const (
	ModeIdle        InputMode = iota // waiting on the server; Enter is ignored
	ModeLoginChoice                  // L or C
	ModeLoginName                    // username for login or register
	ModePrompt                       // one command
	ModeChat                         // chat text until /E or the server prompts
)

// Model is the client's bubbletea model
type Model struct {
	conn   client.Transport
	styles client.Styles
	prompt string
	input  textinput.Model

	mode     InputMode
	register bool
	loggedIn bool
	peer     string
	width    int

	// done is set once the session is over; err says why, if abnormally
	done bool
	err  error
}

// ServerMsg carries one frame from the server into Update
type ServerMsg struct {
	Msg protocol.Message
}

// DisconnectedMsg reports that the server's frame stream ended
type DisconnectedMsg struct{}

// NewModel builds a model for conn. An empty prompt keeps the default.
func NewModel(conn client.Transport, styles client.Styles, prompt string) Model {
	if prompt == "" {
		prompt = "--> "
	}

	input := textinput.New()
	input.CharLimit = maxLineRunes
	input.Prompt = ""
	input.Focus()

	return Model{
		conn:   conn,
		styles: styles,
		prompt: prompt,
		input:  input,
	}
}

// Init starts the cursor and the wait for the first server frame
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenForServer(m.conn))
}

// Mode reports what the input line is currently for
func (m Model) Mode() InputMode {
	return m.mode
}

// Done reports whether the session has ended
func (m Model) Done() bool {
	return m.done
}

// Err returns why the session ended abnormally, or nil
func (m Model) Err() error {
	return m.err
}

// listenForServer waits for the next server frame
func listenForServer(conn client.Transport) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-conn.Incoming()
		if !ok {
			return DisconnectedMsg{}
		}
		return ServerMsg{Msg: msg}
	}
}

// leave logs out a logged-in user, or quits during the handshake
func (m *Model) leave() {
	var msg protocol.Message = protocol.QuitMessage{}
	if m.loggedIn {
		msg = protocol.LogoutMessage{}
	}
	// The connection is about to close either way
	_ = m.conn.Send(msg)
	m.done = true
}

// Run drives a session in the terminal until the server quits, the
// connection drops, the user leaves or ctx is cancelled. A session cut short
// by ctx or a signal still logs the user out.
func Run(ctx context.Context, conn client.Transport, styles client.Styles, prompt string, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(NewModel(conn, styles, prompt), opts...).Run()

	m, ok := final.(Model)
	if ok && !m.done {
		m.leave()
	}

	if err != nil && ctx.Err() == nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if ok {
		return m.err
	}
	return nil
}
