// ABOUTME: Terminal styling for the line-oriented client
// ABOUTME: lipgloss palette plus small formatting helpers
package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	PrimaryColor   = lipgloss.Color("39")  // Blue
	SecondaryColor = lipgloss.Color("213") // Pink
	SuccessColor   = lipgloss.Color("42")  // Green
	ErrorColor     = lipgloss.Color("196") // Red
	MutedColor     = lipgloss.Color("243") // Gray
)

// Styles renders client output. The zero value prints text unstyled.
type Styles struct {
	Prompt lipgloss.Style
	Author lipgloss.Style
	Notice lipgloss.Style
	Error  lipgloss.Style
	Muted  lipgloss.Style
}

// NewStyles builds the palette for w. With color off every style is plain.
func NewStyles(w io.Writer, color bool) Styles {
	r := lipgloss.NewRenderer(w)
	base := r.NewStyle()
	if !color {
		return Styles{Prompt: base, Author: base, Notice: base, Error: base, Muted: base}
	}

	return Styles{
		Prompt: base.Foreground(PrimaryColor),
		Author: base.Foreground(SecondaryColor).Bold(true),
		Notice: base.Foreground(SuccessColor),
		Error:  base.Foreground(ErrorColor),
		Muted:  base.Foreground(MutedColor),
	}
}

// FormatDisplay styles server text. Lines that start with "peer: " are chat
// lines and get the author highlighted.
func (s Styles) FormatDisplay(text, peer string) string {
	if peer == "" {
		return text
	}

	prefix := peer + ": "
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			lines[i] = s.Author.Render(peer) + ": " + rest
		}
	}
	return strings.Join(lines, "\n")
}

// FormatBytes formats bytes into human-readable form (B, KB, MB, etc.)
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
