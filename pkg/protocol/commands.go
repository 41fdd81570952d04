package protocol

// Command is the one-byte opcode carried by every frame
type Command uint8

// Command constants (Client → Server)
const (
	CmdLogin     Command = 0x01
	CmdRegister  Command = 0x02
	CmdHelp      Command = 0x03
	CmdListUsers Command = 0x04
	CmdConnect   Command = 0x05
	CmdText      Command = 0x06
	CmdExitChat  Command = 0x07
	CmdDelete    Command = 0x08
	CmdLogout    Command = 0x09
	CmdNothing   Command = 0x0A
	CmdQuit      Command = 0x0B
)

// Command constants (Server → Client)
const (
	CmdLoginPrompt Command = 0x81
	CmdDisplay     Command = 0x82
	CmdPrompt      Command = 0x83
	CmdStartChat   Command = 0x84
	CmdServerQuit  Command = 0x85
)

var commandNames = map[Command]string{
	CmdLogin:       "LOGIN",
	CmdRegister:    "REGISTER",
	CmdHelp:        "HELP",
	CmdListUsers:   "LIST_USERS",
	CmdConnect:     "CONNECT",
	CmdText:        "TEXT",
	CmdExitChat:    "EXIT_CHAT",
	CmdDelete:      "DELETE",
	CmdLogout:      "LOGOUT",
	CmdNothing:     "NOTHING",
	CmdQuit:        "QUIT",
	CmdLoginPrompt: "LOGIN_PROMPT",
	CmdDisplay:     "DISPLAY",
	CmdPrompt:      "PROMPT",
	CmdStartChat:   "START_CHAT",
	CmdServerQuit:  "SERVER_QUIT",
}

// Valid reports whether c is a known opcode
func (c Command) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

// FromServer reports whether c is sent server → client
func (c Command) FromServer() bool {
	return c&0x80 != 0
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
