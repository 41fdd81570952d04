package ui

import "github.com/charmbracelet/lipgloss"

// label is the text shown before the input line for the current mode
func (m Model) label() string {
	switch m.mode {
	case ModeLoginChoice:
		return "Login or create account? (L/C): "
	case ModeLoginName:
		if m.register {
			return "Enter your new username: "
		}
		return "Welcome back. Enter your username: "
	case ModePrompt:
		return m.prompt
	case ModeChat:
		return "> "
	default:
		return ""
	}
}

// applyMode points the input line at the current mode
func (m *Model) applyMode() {
	m.input.Prompt = m.label()
	if m.width > 0 {
		m.input.Width = max(m.width-len(m.input.Prompt)-1, 1)
	}
	switch m.mode {
	case ModePrompt, ModeChat:
		m.input.PromptStyle = m.styles.Prompt
	default:
		m.input.PromptStyle = lipgloss.NewStyle()
	}
}

// View renders the input line. Nothing is shown while waiting on the server.
func (m Model) View() string {
	if m.done || m.mode == ModeIdle {
		return ""
	}
	return m.input.View()
}
