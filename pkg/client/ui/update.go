package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aeolun/wirechat/pkg/client"
	"github.com/aeolun/wirechat/pkg/protocol"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case ServerMsg:
		lines, quit := m.handleServerMessage(msg.Msg)
		if quit {
			return m, tea.Sequence(printLines(lines), tea.Quit)
		}
		return m, tea.Sequence(printLines(lines), listenForServer(m.conn))

	case DisconnectedMsg:
		m.done = true
		m.err = ErrConnectionLost
		return m, tea.Sequence(printLines([]string{m.styles.Error.Render("Connection to server lost")}), tea.Quit)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.applyMode()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.leave()
		return m, tea.Quit

	case tea.KeyCtrlD:
		if m.input.Value() == "" {
			m.leave()
			return m, tea.Quit
		}

	case tea.KeyEnter:
		if m.mode == ModeIdle {
			return m, nil
		}

		line := m.input.Value()
		m.input.Reset()

		// Keep what was typed in the scrollback
		lines := []string{m.label() + line}
		more, err := m.handleLine(line)
		lines = append(lines, more...)
		if err != nil {
			m.done = true
			m.err = err
			lines = append(lines, m.styles.Error.Render(err.Error()))
			return m, tea.Sequence(printLines(lines), tea.Quit)
		}
		m.applyMode()
		return m, printLines(lines)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleServerMessage reacts to one server frame. It returns the lines to
// print and whether the session is over.
func (m *Model) handleServerMessage(msg protocol.Message) ([]string, bool) {
	var lines []string

	switch msg := msg.(type) {
	case protocol.LoginPromptMessage:
		m.loggedIn = false
		m.peer = ""
		m.mode = ModeLoginChoice

	case protocol.DisplayMessage:
		lines = append(lines, m.styles.FormatDisplay(strings.TrimSuffix(msg.Text, "\n"), m.peer))

	case protocol.PromptMessage:
		m.loggedIn = true
		if m.peer != "" {
			lines = append(lines, m.styles.Muted.Render(fmt.Sprintf("Left chat with %s", m.peer)))
		}
		m.peer = ""
		m.mode = ModePrompt

	case protocol.StartChatMessage:
		m.loggedIn = true
		m.peer = msg.Peer
		m.mode = ModeChat
		lines = append(lines, m.styles.Notice.Render(fmt.Sprintf("Chatting with %s. Type /E to leave the chat.", msg.Peer)))

	case protocol.ServerQuitMessage:
		if msg.Reason != "" {
			lines = append(lines, m.styles.Notice.Render(msg.Reason))
		}
		m.done = true
		return lines, true
	}

	m.applyMode()
	return lines, false
}

// handleLine feeds one submitted line to whatever is waiting for it and
// returns any extra lines to print
func (m *Model) handleLine(line string) ([]string, error) {
	switch m.mode {
	case ModeLoginChoice:
		switch strings.ToUpper(strings.TrimSpace(line)) {
		case "L":
			m.register = false
			m.mode = ModeLoginName
		case "C":
			m.register = true
			m.mode = ModeLoginName
		default:
			return []string{m.styles.Error.Render("Invalid choice. Please try again.")}, nil
		}
		return nil, nil

	case ModeLoginName:
		name := strings.TrimSpace(line)
		m.mode = ModeIdle
		if m.register {
			return nil, m.send(protocol.RegisterMessage{Username: name})
		}
		return nil, m.send(protocol.LoginMessage{Username: name})

	case ModePrompt:
		m.mode = ModeIdle
		return nil, m.send(client.ParseCommand(line))

	case ModeChat:
		msg, ok := client.ParseChatLine(line)
		if !ok {
			return nil, nil
		}
		if _, exit := msg.(protocol.ExitChatMessage); exit {
			m.mode = ModeIdle
		}
		return nil, m.send(msg)
	}

	return nil, nil
}

func (m *Model) send(msg protocol.Message) error {
	if err := m.conn.Send(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Command(), err)
	}
	return nil
}

// printLines prints above the input line, or does nothing for no lines
func printLines(lines []string) tea.Cmd {
	if len(lines) == 0 {
		return nil
	}
	return tea.Println(strings.Join(lines, "\n"))
}
