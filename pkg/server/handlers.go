package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/aeolun/wirechat/pkg/protocol"
)

const helpText = `
Here are the commands you can use:
/H - Display this help message
/L [pattern] - List users (a * wildcard may start or end the pattern)
/C <username> - Connect to a user
/E - Exit the current chat
/O - Log out
/Q - Quit application
/D - Delete account and exit application
`

// outcome tells the connection loop what to do after a command
type outcome int

const (
	stay   outcome = iota // keep reading commands
	logout                // back to the login handshake
	closed                // close the connection
)

// serveConn runs one connection from accept to close. Every exit path logs the
// user out, severs its pairing and removes the session.
func (s *Server) serveConn(conn net.Conn, connType string) {
	sess := s.sessions.CreateSession(conn, connType)
	defer func() {
		s.hub.Drop(sess)
		s.sessions.RemoveSession(sess.ID)
		<-sess.Done()
	}()

	log.Printf("New %s connection from %s (session %d)", connType, conn.RemoteAddr(), sess.ID)

	reader := protocol.NewReader(conn)
	sess.Send(protocol.DisplayMessage{Text: "Connected to server"})

	for {
		if err := s.handshake(sess, reader); err != nil {
			s.logSessionEnd(sess, err)
			return
		}

		out, err := s.commandLoop(sess, reader)
		if err != nil {
			s.logSessionEnd(sess, err)
			return
		}
		if out == closed {
			log.Printf("Session %d closed by client", sess.ID)
			return
		}
	}
}

func (s *Server) logSessionEnd(sess *Session, err error) {
	switch {
	case errors.Is(err, errQuit):
		log.Printf("Session %d quit before logging in", sess.ID)
	case errors.Is(err, io.EOF):
		log.Printf("Session %d disconnected", sess.ID)
	case errors.Is(err, protocol.ErrMalformedFrame):
		s.metrics.RecordMalformedFrame()
		errorLog.Printf("Session %d sent a malformed frame: %v", sess.ID, err)
	default:
		debugLog.Printf("Session %d read error: %v", sess.ID, err)
	}
}

var errQuit = errors.New("client quit")

// readCommand reads the next message and classifies failures as transport
// errors. A malformed frame means the stream can no longer be trusted.
func (s *Server) readCommand(sess *Session, reader *protocol.Reader) (protocol.Message, error) {
	msg, err := reader.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	s.metrics.RecordFrameReceived(msg.Command())
	debugLog.Printf("Session %d ← RECV: Command=%s", sess.ID, msg.Command())
	return msg, nil
}

// handshake prompts until the client logs in or registers. Rejections are
// shown and the prompt repeats; a failed read ends the handshake.
func (s *Server) handshake(sess *Session, reader *protocol.Reader) error {
	for {
		sess.Send(protocol.LoginPromptMessage{})

		msg, err := s.readCommand(sess, reader)
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case protocol.LoginMessage:
			err = s.hub.Login(sess, m.Username)
		case protocol.RegisterMessage:
			err = s.hub.Register(sess, m.Username)
			if err == nil {
				log.Printf("New user %s created (session %d)", m.Username, sess.ID)
			}
		case protocol.NothingMessage:
			continue
		case protocol.QuitMessage:
			sess.Send(protocol.ServerQuitMessage{Reason: "Goodbye!"})
			return errQuit
		default:
			err = violation(msg.Command(), StateUnauthenticated)
		}

		if err != nil {
			s.metrics.RecordCommandError(msg.Command())
			sess.Send(protocol.DisplayMessage{Text: userMessage(err)})
			continue
		}

		log.Printf("User %s logged in (session %d)", sess.Username(), sess.ID)
		sess.Send(protocol.DisplayMessage{Text: "You are now logged in!\n"})
		sess.Send(protocol.DisplayMessage{Text: helpText})
		return nil
	}
}

// commandLoop serves an authenticated session. It prompts before each read
// unless the session is in a chat, where the client sends text unprompted.
func (s *Server) commandLoop(sess *Session, reader *protocol.Reader) (outcome, error) {
	for {
		if s.hub.State(sess) != StateConnected {
			sess.Send(protocol.PromptMessage{})
		}

		msg, err := s.readCommand(sess, reader)
		if err != nil {
			return closed, err
		}

		out, err := s.dispatch(sess, msg)
		if err != nil {
			s.metrics.RecordCommandError(msg.Command())
			sess.Send(protocol.DisplayMessage{Text: userMessage(err)})
			continue
		}
		if out != stay {
			return out, nil
		}
	}
}

// dispatch runs one command. Returned errors are recoverable and leave the
// session state unchanged.
func (s *Server) dispatch(sess *Session, msg protocol.Message) (outcome, error) {
	state := s.hub.State(sess)

	switch m := msg.(type) {
	case protocol.HelpMessage:
		sess.Send(protocol.DisplayMessage{Text: helpText})

	case protocol.ListUsersMessage:
		texts, err := s.hub.ListUsers(m.Pattern)
		if err != nil {
			return stay, err
		}
		for _, text := range texts {
			sess.Send(protocol.DisplayMessage{Text: text})
		}

	case protocol.ConnectMessage:
		return stay, s.hub.Connect(sess, m.Username)

	case protocol.TextMessage:
		if state != StateConnected {
			return stay, violation(msg.Command(), state)
		}
		return stay, s.hub.Send(sess, m.Body)

	case protocol.ExitChatMessage:
		if state != StateConnected {
			return stay, violation(msg.Command(), state)
		}
		return stay, s.hub.Disconnect(sess)

	case protocol.NothingMessage:

	case protocol.LogoutMessage:
		name := sess.Username()
		if err := s.hub.Logout(sess); err != nil {
			return stay, err
		}
		log.Printf("User %s logged out (session %d)", name, sess.ID)
		sess.Send(protocol.DisplayMessage{Text: "You have been logged out."})
		return logout, nil

	case protocol.QuitMessage:
		name := sess.Username()
		if err := s.hub.Logout(sess); err != nil {
			return stay, err
		}
		log.Printf("User %s quit (session %d)", name, sess.ID)
		sess.Send(protocol.DisplayMessage{Text: "Quitting..."})
		sess.Send(protocol.ServerQuitMessage{})
		return closed, nil

	case protocol.DeleteMessage:
		name := sess.Username()
		if err := s.hub.Delete(sess); err != nil {
			return stay, err
		}
		log.Printf("User %s deleted (session %d)", name, sess.ID)
		sess.Send(protocol.DisplayMessage{Text: "Account deleted. Quitting application..."})
		sess.Send(protocol.ServerQuitMessage{})
		return closed, nil

	default:
		// Login, Register and every server-to-client command
		return stay, violation(msg.Command(), state)
	}

	return stay, nil
}
