package protocol

// Command verbs used by the engine.
const (
	CmdPass         = "PASS"
	CmdNick         = "NICK"
	CmdUser         = "USER"
	CmdCap          = "CAP"
	CmdAuthenticate = "AUTHENTICATE"
	CmdPing         = "PING"
	CmdPong         = "PONG"
	CmdJoin         = "JOIN"
	CmdPart         = "PART"
	CmdKick         = "KICK"
	CmdPrivmsg      = "PRIVMSG"
	CmdNotice       = "NOTICE"
	CmdQuit         = "QUIT"
	CmdError        = "ERROR"
)

// CAP subcommands.
const (
	CapLS  = "LS"
	CapReq = "REQ"
	CapAck = "ACK"
	CapNak = "NAK"
	CapEnd = "END"
)

// Numeric replies.
const (
	RplWelcome      = "001"
	RplEndOfMOTD    = "376"
	ErrNoMOTD       = "422"
	ErrErroneusNick = "432"
	ErrNicknameUse  = "433"
	ErrNickCollide  = "436"
	ErrUnavailRes   = "437"
	ErrPasswdMismat = "464"
	ErrYoureBanned  = "465"
	RplLoggedIn     = "900"
	RplLoggedOut    = "901"
	ErrNickLocked   = "902"
	RplSASLSuccess  = "903"
	ErrSASLFail     = "904"
	ErrSASLTooLong  = "905"
	ErrSASLAborted  = "906"
	ErrSASLAlready  = "907"
	RplSASLMechs    = "908"
)

// SASL mechanism names.
const (
	MechPlain = "PLAIN"
)

// IsChannel reports whether target names a channel rather than a nick.
func IsChannel(target string) bool {
	if target == "" {
		return false
	}
	switch target[0] {
	case '#', '&', '+', '!':
		return true
	}
	return false
}
