package client

import (
	"strings"
	"unicode"

	"github.com/aeolun/wirechat/pkg/protocol"
)

// ParseCommand turns a line typed at the command prompt into a message.
// Slash commands take their argument with all whitespace removed, so
// "/C  bob" connects to bob. Anything that is not a known slash command is
// sent as chat text and left for the server to judge.
func ParseCommand(line string) protocol.Message {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return protocol.NothingMessage{}
	}

	compact := stripSpace(line)
	if len(compact) < 2 || compact[0] != '/' {
		return protocol.TextMessage{Body: line}
	}

	arg := compact[2:]
	switch unicode.ToUpper(rune(compact[1])) {
	case 'H':
		return protocol.HelpMessage{}
	case 'L':
		return protocol.ListUsersMessage{Pattern: arg}
	case 'C':
		return protocol.ConnectMessage{Username: arg}
	case 'D':
		return protocol.DeleteMessage{}
	case 'Q':
		return protocol.QuitMessage{}
	case 'O':
		return protocol.LogoutMessage{}
	case 'E':
		return protocol.ExitChatMessage{}
	default:
		return protocol.TextMessage{Body: line}
	}
}

// ParseChatLine turns a line typed during a chat into a message. Only /E is
// special; everything else, slash commands included, is chat text. Blank
// lines send nothing.
func ParseChatLine(line string) (protocol.Message, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	if strings.EqualFold(stripSpace(line), "/E") {
		return protocol.ExitChatMessage{}, true
	}
	return protocol.TextMessage{Body: line}, true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
