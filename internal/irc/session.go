package irc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/observability"
	"github.com/danmuck/le0/internal/protocol"
	"github.com/danmuck/le0/internal/protocol/frame"
	"github.com/danmuck/le0/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAddressRequired = errors.New("irc: server address required")
	ErrServerClosed    = errors.New("irc: server closed the link")
	ErrNotConnected    = errors.New("irc: not connected")
)

// ServerTarget is the outbox key for lines not addressed to a channel or
// nick (JOIN, PART, NICK, raw).
const ServerTarget = "*"

const inboundBuffer = 32

// MessageHandler receives every message once the session is registered. It
// runs on the session loop, in arrival order.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg frame.Message)
}

type MessageHandlerFunc func(ctx context.Context, msg frame.Message)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg frame.Message) {
	f(ctx, msg)
}

type Config struct {
	Address   string
	Identity  Identity
	Transport session.Config
	Limits    frame.Limits
	Clock     clock.Clock
}

// Status is a point-in-time view of the session.
type Status struct {
	SessionID     string    `json:"session_id"`
	Server        string    `json:"server"`
	State         string    `json:"state"`
	Nick          string    `json:"nick"`
	Authenticated bool      `json:"authenticated"`
	Channels      []string  `json:"channels"`
	Queued        int       `json:"queued"`
	ConnectedAt   time.Time `json:"connected_at"`
}

// Session owns one connection: the registrar, the outbound queues and the
// pacer. Only the loop goroutine touches the registrar; other goroutines see
// the mirrored fields under mu.
type Session struct {
	id     string
	cfg    Config
	clock  clock.Clock
	outbox *session.Outbox

	mu          sync.RWMutex
	conn        *Conn
	cancel      context.CancelFunc
	handler     MessageHandler
	state       State
	nick        string
	authed      bool
	channels    map[string]string
	connectedAt time.Time

	quitOnce sync.Once
	quitting atomic.Bool
	quitSent atomic.Bool
}

func New(cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(cfg.Identity.Nick) == "" {
		return nil, ErrNickRequired
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	if cfg.Limits == (frame.Limits{}) {
		cfg.Limits = frame.DefaultLimits()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		clock:    cfg.Clock,
		outbox:   session.NewOutbox(cfg.Transport.Pacing.MaxQueued),
		nick:     strings.TrimSpace(cfg.Identity.Nick),
		channels: make(map[string]string),
	}, nil
}

func (s *Session) ID() string { return s.id }

// SetHandler installs the post-registration message handler. Call before Run.
func (s *Session) SetHandler(h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Run dials the configured server and serves the connection until quit,
// cancellation or a fatal error. There is no reconnect.
func (s *Session) Run(ctx context.Context) error {
	log.Info().Str("session_id", s.id).Str("server", s.cfg.Address).Bool("tls", s.cfg.Transport.TLS.Enabled).
		Msg("irc.Session.Run connecting")
	conn, err := Dial(ctx, s.cfg.Address, s.cfg.Transport, s.cfg.Limits)
	if err != nil {
		return err
	}
	return s.serve(ctx, conn)
}

// Serve runs the session over an already established transport.
func (s *Session) Serve(ctx context.Context, nc net.Conn) error {
	return s.serve(ctx, NewConn(nc, s.cfg.Transport, s.cfg.Limits))
}

func (s *Session) serve(parent context.Context, conn *Conn) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.connectedAt = s.clock.Now()
	handler := s.handler
	s.mu.Unlock()
	if s.quitting.Load() {
		return conn.Close()
	}

	reg, err := NewRegistrar(s.cfg.Identity, conn, s.clock)
	if err != nil {
		_ = conn.Close()
		return err
	}
	observability.SetRegistrationState(reg.State().String())
	if err := reg.Start(); err != nil {
		_ = conn.Close()
		return err
	}
	s.syncState(reg)
	log.Info().Str("session_id", s.id).Str("remote", conn.RemoteAddr()).Str("nick", reg.Nick()).
		Msg("irc.Session.Run connected")

	pacer := session.NewPacer(s.outbox, conn, session.PacerConfig{
		Interval: s.cfg.Transport.Pacing.Interval,
		Clock:    s.clock,
	})
	inbound := make(chan frame.Message, inboundBuffer)

	pacerDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(pacerDone)
		return pacer.Run(gctx)
	})
	g.Go(func() error { return s.readLoop(gctx, conn, inbound) })
	g.Go(func() error { return s.eventLoop(gctx, reg, handler, inbound) })
	g.Go(func() error {
		<-gctx.Done()
		// the pacer stops before the transport goes away
		<-pacerDone
		if parent.Err() != nil && !s.quitSent.Load() {
			if err := conn.Send(protocol.CmdQuit, "shutting down"); err == nil {
				s.quitSent.Store(true)
			}
		}
		// unblocks the reader
		return conn.Close()
	})

	runErr := g.Wait()
	s.outbox.Close()
	closeErr := conn.Close()
	if errors.Is(closeErr, net.ErrClosed) {
		closeErr = nil
	}
	if s.quitting.Load() || parent.Err() != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, ErrTransport) || errors.Is(runErr, net.ErrClosed) {
			runErr = nil
		}
	}
	err = multierr.Combine(runErr, closeErr)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("irc.Session.Run ended")
	} else {
		log.Info().Str("session_id", s.id).Msg("irc.Session.Run ended")
	}
	return err
}

func (s *Session) readLoop(ctx context.Context, conn *Conn, inbound chan<- frame.Message) error {
	defer close(inbound)
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrTooLong):
				observability.RecordLineReceived("too_long")
				log.Debug().Err(err).Str("session_id", s.id).Msg("irc.Session.readLoop dropped line")
				continue
			case errors.Is(err, frame.ErrMalformed):
				observability.RecordLineReceived("malformed")
				log.Debug().Err(err).Str("session_id", s.id).Msg("irc.Session.readLoop dropped line")
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		observability.RecordLineReceived("ok")
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) eventLoop(ctx context.Context, reg *Registrar, handler MessageHandler, inbound <-chan frame.Message) error {
	for {
		var tick <-chan time.Time
		var timer *clock.Timer
		if deadline, ok := reg.Deadline(); ok {
			now := s.clock.Now()
			if !now.Before(deadline) {
				if err := reg.Tick(now); err != nil {
					return err
				}
				s.syncState(reg)
				continue
			}
			timer = s.clock.Timer(deadline.Sub(now))
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-tick:
			if err := reg.Tick(s.clock.Now()); err != nil {
				return err
			}
			s.syncState(reg)
		case msg, ok := <-inbound:
			stopTimer(timer)
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: inbound stream ended", ErrTransport)
			}
			if err := s.handle(ctx, reg, handler, msg); err != nil {
				return err
			}
		}
	}
}

func stopTimer(t *clock.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (s *Session) handle(ctx context.Context, reg *Registrar, handler MessageHandler, msg frame.Message) error {
	conn := s.currentConn()
	switch msg.Command {
	case protocol.CmdPing:
		return conn.Send(protocol.CmdPong, msg.Params...)
	case protocol.CmdError:
		log.Warn().Str("session_id", s.id).Str("reason", msg.Trailing()).Msg("irc.Session server error")
		return fmt.Errorf("%w: %s", ErrServerClosed, msg.Trailing())
	}

	if err := reg.Handle(msg); err != nil {
		if errors.Is(err, ErrRegistrationRejected) {
			log.Error().Err(err).Str("session_id", s.id).Msg("irc.Session registration failed")
			s.sendQuitOnce(conn, "registration failed")
		}
		return err
	}
	s.trackMembership(reg.Nick(), msg)
	s.syncState(reg)

	if reg.State() == StateRegistered && handler != nil {
		handler.HandleMessage(ctx, msg)
	}
	return nil
}

func (s *Session) trackMembership(self string, msg frame.Message) {
	fromSelf := msg.Prefix.Nick != "" && protocol.FoldNick(msg.Prefix.Nick) == protocol.FoldNick(self)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Command {
	case protocol.CmdJoin:
		if fromSelf {
			s.channels[protocol.FoldNick(msg.Param(0))] = msg.Param(0)
		}
	case protocol.CmdPart:
		if fromSelf {
			delete(s.channels, protocol.FoldNick(msg.Param(0)))
		}
	case protocol.CmdKick:
		if protocol.FoldNick(msg.Param(1)) == protocol.FoldNick(self) {
			log.Warn().Str("channel", msg.Param(0)).Str("by", msg.Prefix.Nick).Msg("irc.Session kicked")
			delete(s.channels, protocol.FoldNick(msg.Param(0)))
		}
	}
}

func (s *Session) syncState(reg *Registrar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = reg.State()
	s.nick = reg.Nick()
	s.authed = reg.Authenticated()
}

func (s *Session) currentConn() *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// Enqueue encodes one line and queues it for target behind the pacer.
func (s *Session) Enqueue(target, command string, params ...string) error {
	line, err := frame.EncodeWithLimits(s.cfg.Limits, command, params...)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if err := s.outbox.Enqueue(session.OutboundLine{Target: target, Line: line, QueuedAt: now}); err != nil {
		return err
	}
	observability.SetOutboundDepth(s.outbox.Len())
	return nil
}

// Quit writes QUIT ahead of anything queued and ends the session. Only the
// first call has any effect.
func (s *Session) Quit(reason string) error {
	var err error
	s.quitOnce.Do(func() {
		s.quitting.Store(true)
		conn := s.currentConn()
		if conn == nil {
			err = ErrNotConnected
			return
		}
		log.Info().Str("session_id", s.id).Str("reason", reason).Msg("irc.Session.Quit")
		err = conn.Send(protocol.CmdQuit, reason)
		if err == nil {
			s.quitSent.Store(true)
		}
		s.mu.RLock()
		cancel := s.cancel
		s.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
	})
	return err
}

func (s *Session) sendQuitOnce(conn *Conn, reason string) {
	if conn == nil || !s.quitSent.CompareAndSwap(false, true) {
		return
	}
	if err := conn.Send(protocol.CmdQuit, reason); err != nil {
		log.Debug().Err(err).Msg("irc.Session quit not sent")
	}
}

func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for _, name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Session) Status() Status {
	channels := s.Channels()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		SessionID:     s.id,
		Server:        s.cfg.Address,
		State:         s.state.String(),
		Nick:          s.nick,
		Authenticated: s.authed,
		Channels:      channels,
		Queued:        s.outbox.Len(),
		ConnectedAt:   s.connectedAt,
	}
}
