package irc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/observability"
	"github.com/danmuck/le0/internal/protocol"
	"github.com/danmuck/le0/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrAuthFailed           = errors.New("irc: authentication failed")
	ErrRegistrationRejected = errors.New("irc: registration rejected")
	ErrNickRequired         = errors.New("irc: nick required")
)

const (
	DefaultIdentifyDelay = 2 * time.Second
	saslChunkBytes       = 400
	maxNickSuffixes      = 3
	nickServ             = "NickServ"
)

type State int

const (
	StateConnecting State = iota
	StateAuthNegotiating
	StateAuthPending
	StateIdentifying
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthNegotiating:
		return "auth_negotiating"
	case StateAuthPending:
		return "auth_pending"
	case StateIdentifying:
		return "identifying"
	case StateRegistered:
		return "registered"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Identity is who the session registers as and how it authenticates.
type Identity struct {
	Nick     string
	User     string
	RealName string
	AltNicks []string
	Channels []string

	// ServerPassword is sent with PASS before NICK/USER.
	ServerPassword string

	SASLUser     string
	SASLPassword string

	NickServPassword string
	// NickServWaitConfirm holds Identifying until NickServ confirms, with
	// IdentifyDelay as the upper bound.
	NickServWaitConfirm bool
	IdentifyDelay       time.Duration
}

func (id Identity) SASLEnabled() bool {
	return id.SASLUser != "" && id.SASLPassword != ""
}

func (id Identity) withDefaults() Identity {
	id.Nick = strings.TrimSpace(id.Nick)
	if strings.TrimSpace(id.User) == "" {
		id.User = id.Nick
	}
	if strings.TrimSpace(id.RealName) == "" {
		id.RealName = id.Nick
	}
	if id.IdentifyDelay <= 0 {
		id.IdentifyDelay = DefaultIdentifyDelay
	}
	return id
}

// Sender writes handshake lines straight to the wire.
type Sender interface {
	Send(command string, params ...string) error
}

// Registrar drives registration from the first NICK to Registered. It is fed
// one message at a time by the session loop and never blocks; timed steps are
// exposed through Deadline and Tick.
type Registrar struct {
	id    Identity
	send  Sender
	clock clock.Clock

	state         State
	nick          string
	altIndex      int
	suffixes      int
	capEnded      bool
	saslRequested bool
	authenticated bool
	welcomed      bool
	identifyBy    time.Time
	joined        bool
}

func NewRegistrar(id Identity, send Sender, clk clock.Clock) (*Registrar, error) {
	id = id.withDefaults()
	if id.Nick == "" {
		return nil, ErrNickRequired
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Registrar{
		id:    id,
		send:  send,
		clock: clk,
		state: StateConnecting,
		nick:  id.Nick,
	}, nil
}

func (r *Registrar) State() State { return r.state }

func (r *Registrar) Nick() string { return r.nick }

// Authenticated reports whether SASL succeeded.
func (r *Registrar) Authenticated() bool { return r.authenticated }

// Start sends the opening lines. With SASL configured the server holds
// registration until CAP END, so NICK/USER can go out immediately.
func (r *Registrar) Start() error {
	if r.id.SASLEnabled() {
		if err := r.send.Send(protocol.CmdCap, protocol.CapLS, "302"); err != nil {
			return err
		}
		r.setState(StateAuthNegotiating)
	} else {
		r.capEnded = true
	}
	if r.id.ServerPassword != "" {
		if err := r.send.Send(protocol.CmdPass, r.id.ServerPassword); err != nil {
			return err
		}
	}
	if err := r.send.Send(protocol.CmdNick, r.nick); err != nil {
		return err
	}
	return r.send.Send(protocol.CmdUser, r.id.User, "0", "*", r.id.RealName)
}

// Deadline reports when Tick must next be called.
func (r *Registrar) Deadline() (time.Time, bool) {
	if r.state == StateIdentifying {
		return r.identifyBy, true
	}
	return time.Time{}, false
}

func (r *Registrar) Tick(now time.Time) error {
	if r.state != StateIdentifying || now.Before(r.identifyBy) {
		return nil
	}
	if r.id.NickServWaitConfirm {
		log.Warn().Str("nick", r.nick).Msg("irc.Registrar.Tick no NickServ confirmation before deadline")
	}
	return r.enterRegistered()
}

// Handle advances the machine with one inbound message. The only errors are
// ErrRegistrationRejected and send failures; both end the session.
func (r *Registrar) Handle(msg frame.Message) error {
	switch msg.Command {
	case protocol.CmdCap:
		return r.handleCap(msg)
	case protocol.CmdAuthenticate:
		return r.handleAuthenticate(msg)
	case protocol.RplSASLSuccess:
		if r.capEnded {
			return nil
		}
		r.authenticated = true
		log.Info().Str("user", r.id.SASLUser).Msg("irc.Registrar sasl authenticated")
		return r.endCap()
	case protocol.ErrNickLocked, protocol.ErrSASLFail, protocol.ErrSASLTooLong,
		protocol.ErrSASLAborted, protocol.ErrSASLAlready:
		return r.authFailed(msg.Command + " " + msg.Trailing())
	case protocol.RplSASLMechs:
		// only sent when the requested mechanism is unsupported
		return r.authFailed("mechanism unsupported, server offers " + msg.Param(1))
	case protocol.RplLoggedIn:
		log.Info().Str("account", msg.Param(2)).Msg("irc.Registrar logged in")
		if r.state == StateIdentifying {
			return r.enterRegistered()
		}
		return nil
	case protocol.RplWelcome:
		return r.handleWelcome(msg)
	case protocol.ErrNicknameUse, protocol.ErrNickCollide, protocol.ErrUnavailRes:
		return r.handleNickInUse(msg)
	case protocol.ErrErroneusNick:
		if r.welcomed {
			log.Warn().Str("nick", msg.Param(1)).Msg("irc.Registrar erroneous nickname")
			return nil
		}
		return fmt.Errorf("%w: erroneous nickname %q", ErrRegistrationRejected, r.nick)
	case protocol.ErrPasswdMismat, protocol.ErrYoureBanned:
		return fmt.Errorf("%w: %s %s", ErrRegistrationRejected, msg.Command, msg.Trailing())
	case protocol.CmdNotice:
		return r.handleNotice(msg)
	case protocol.CmdNick:
		if msg.Prefix.Nick != "" && protocol.FoldNick(msg.Prefix.Nick) == protocol.FoldNick(r.nick) {
			r.nick = msg.Param(0)
		}
	}
	return nil
}

func (r *Registrar) handleCap(msg frame.Message) error {
	sub := strings.ToUpper(msg.Param(1))
	caps := strings.Fields(msg.Trailing())
	switch sub {
	case protocol.CapLS:
		if r.state != StateAuthNegotiating || r.saslRequested {
			return nil
		}
		if offersPlain(caps) {
			r.saslRequested = true
			return r.send.Send(protocol.CmdCap, protocol.CapReq, "sasl")
		}
		// "CAP * LS * :..." means more lines follow.
		if msg.Param(2) == "*" && len(msg.Params) > 3 {
			return nil
		}
		return r.authFailed("server does not offer sasl plain")
	case protocol.CapAck:
		if r.state != StateAuthNegotiating || !hasCap(caps, "sasl") {
			return nil
		}
		r.setState(StateAuthPending)
		return r.send.Send(protocol.CmdAuthenticate, protocol.MechPlain)
	case protocol.CapNak:
		if hasCap(caps, "sasl") {
			return r.authFailed("sasl capability refused")
		}
	}
	return nil
}

func (r *Registrar) handleAuthenticate(msg frame.Message) error {
	if r.state != StateAuthPending || msg.Param(0) != "+" {
		return nil
	}
	payload := "\x00" + r.id.SASLUser + "\x00" + r.id.SASLPassword
	for _, chunk := range saslChunks(payload) {
		if err := r.send.Send(protocol.CmdAuthenticate, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registrar) handleWelcome(msg frame.Message) error {
	if r.welcomed {
		return nil
	}
	r.welcomed = true
	if !r.capEnded {
		// registered without ever finishing CAP: the server ignored it
		log.Warn().Err(ErrAuthFailed).Msg("irc.Registrar server skipped capability negotiation")
		r.capEnded = true
	}
	if nick := msg.Param(0); nick != "" && nick != "*" {
		r.nick = nick
	}
	log.Info().Str("nick", r.nick).Bool("sasl", r.authenticated).Msg("irc.Registrar welcomed")

	if r.id.NickServPassword != "" && !r.authenticated {
		r.identifyBy = r.clock.Now().Add(r.id.IdentifyDelay)
		r.setState(StateIdentifying)
		return r.send.Send(protocol.CmdPrivmsg, nickServ, "IDENTIFY "+r.id.NickServPassword)
	}
	return r.enterRegistered()
}

func (r *Registrar) handleNickInUse(msg frame.Message) error {
	if r.welcomed {
		log.Warn().Str("nick", msg.Param(1)).Msg("irc.Registrar nickname unavailable")
		return nil
	}
	taken := r.nick
	if r.altIndex < len(r.id.AltNicks) {
		r.nick = r.id.AltNicks[r.altIndex]
		r.altIndex++
	} else if r.suffixes < maxNickSuffixes {
		r.nick += "_"
		r.suffixes++
	} else {
		return fmt.Errorf("%w: no usable nickname after %q", ErrRegistrationRejected, taken)
	}
	log.Warn().Str("taken", taken).Str("next", r.nick).Msg("irc.Registrar nickname in use")
	return r.send.Send(protocol.CmdNick, r.nick)
}

func (r *Registrar) handleNotice(msg frame.Message) error {
	if r.state != StateIdentifying || !strings.EqualFold(msg.Prefix.Nick, nickServ) {
		return nil
	}
	text := strings.ToLower(msg.Trailing())
	if strings.Contains(text, "identified") || strings.Contains(text, "recognized") {
		log.Info().Str("nick", r.nick).Msg("irc.Registrar NickServ confirmed identify")
		return r.enterRegistered()
	}
	return nil
}

// authFailed logs the failure, ends capability negotiation and lets plain
// registration continue.
func (r *Registrar) authFailed(reason string) error {
	if r.capEnded {
		return nil
	}
	log.Warn().Err(fmt.Errorf("%w: %s", ErrAuthFailed, reason)).Msg("irc.Registrar continuing unauthenticated")
	return r.endCap()
}

func (r *Registrar) endCap() error {
	if r.capEnded {
		return nil
	}
	r.capEnded = true
	return r.send.Send(protocol.CmdCap, protocol.CapEnd)
}

func (r *Registrar) enterRegistered() error {
	r.setState(StateRegistered)
	if r.joined {
		return nil
	}
	r.joined = true
	for _, ch := range r.id.Channels {
		if err := r.send.Send(protocol.CmdJoin, ch); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registrar) setState(s State) {
	if r.state == s {
		return
	}
	log.Debug().Str("from", r.state.String()).Str("to", s.String()).Msg("irc.Registrar state")
	r.state = s
	observability.SetRegistrationState(s.String())
}

func hasCap(caps []string, name string) bool {
	for _, c := range caps {
		key, _, _ := strings.Cut(c, "=")
		if strings.EqualFold(strings.TrimPrefix(key, "-"), name) {
			return true
		}
	}
	return false
}

// offersPlain accepts "sasl" and "sasl=...,PLAIN,...".
func offersPlain(caps []string) bool {
	for _, c := range caps {
		key, value, hasValue := strings.Cut(c, "=")
		if !strings.EqualFold(key, "sasl") {
			continue
		}
		if !hasValue {
			return true
		}
		for _, mech := range strings.Split(value, ",") {
			if strings.EqualFold(mech, protocol.MechPlain) {
				return true
			}
		}
	}
	return false
}

// saslChunks splits the base64 payload into 400-byte AUTHENTICATE arguments,
// ending with "+" when the last chunk is exactly 400 bytes.
func saslChunks(payload string) []string {
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	if encoded == "" {
		return []string{"+"}
	}
	var chunks []string
	for len(encoded) > 0 {
		n := min(saslChunkBytes, len(encoded))
		chunks = append(chunks, encoded[:n])
		encoded = encoded[n:]
	}
	if len(chunks[len(chunks)-1]) == saslChunkBytes {
		chunks = append(chunks, "+")
	}
	return chunks
}
