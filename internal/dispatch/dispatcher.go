package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/auth"
	"github.com/danmuck/le0/internal/observability"
	"github.com/danmuck/le0/internal/protocol"
	"github.com/danmuck/le0/internal/protocol/frame"
	"github.com/danmuck/le0/internal/ratelimit"
	"github.com/danmuck/le0/internal/sanitize"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPrefix         = "%"
	DefaultMaxReplyLines  = 8
	DefaultMaxLineBytes   = 400
	DefaultHandlerTimeout = 10 * time.Second
)

var ErrNoOutput = errors.New("dispatch: output required")

type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeUnknown
	OutcomeDenied
	OutcomeRateLimited
	OutcomeHandled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeDenied:
		return "denied"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeHandled:
		return "handled"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Output is the paced send path replies are queued on.
type Output interface {
	Enqueue(target, command string, params ...string) error
}

// Observer sees every PRIVMSG from someone other than the bot, command or
// not, before dispatch.
type Observer func(ctx context.Context, msg frame.Message)

type Config struct {
	Prefix         string
	MaxReplyLines  int
	MaxLineBytes   int
	HandlerTimeout time.Duration
	// Nick reports the bot's current nick so its own messages are skipped.
	Nick  func() string
	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.MaxReplyLines <= 0 {
		c.MaxReplyLines = DefaultMaxReplyLines
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = DefaultHandlerTimeout
	}
	if c.Nick == nil {
		c.Nick = func() string { return "" }
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

type Dispatcher struct {
	cfg       Config
	registry  *Registry
	limiter   *ratelimit.Limiter
	authz     auth.Authorizer
	out       Output
	observers []Observer
}

func New(cfg Config, registry *Registry, limiter *ratelimit.Limiter, authz auth.Authorizer, out Output) (*Dispatcher, error) {
	if out == nil {
		return nil, ErrNoOutput
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	if authz == nil {
		authz = auth.FuncAuthorizer(func(frame.Prefix) bool { return false })
	}
	return &Dispatcher{
		cfg:      cfg.withDefaults(),
		registry: registry,
		limiter:  limiter,
		authz:    authz,
		out:      out,
	}, nil
}

// Observe registers o. Not safe to call once messages are flowing.
func (d *Dispatcher) Observe(o Observer) {
	d.observers = append(d.observers, o)
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

func (d *Dispatcher) Prefix() string { return d.cfg.Prefix }

// HandleMessage lets the dispatcher sit directly behind a session.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg frame.Message) {
	d.Dispatch(ctx, msg)
}

// Dispatch routes one message. Anything other than OutcomeHandled produces
// no output.
func (d *Dispatcher) Dispatch(ctx context.Context, msg frame.Message) Outcome {
	if msg.Command != protocol.CmdPrivmsg || len(msg.Params) < 2 {
		return OutcomeIgnored
	}
	sender := msg.Prefix
	if sender.Nick == "" {
		return OutcomeIgnored
	}
	if self := d.cfg.Nick(); self != "" && protocol.FoldNick(sender.Nick) == protocol.FoldNick(self) {
		return OutcomeIgnored
	}
	for _, o := range d.observers {
		o(ctx, msg)
	}

	text := msg.Trailing()
	if !strings.HasPrefix(text, d.cfg.Prefix) {
		return OutcomeIgnored
	}
	word, rest := splitWord(strings.TrimPrefix(text, d.cfg.Prefix))
	if word == "" {
		return OutcomeIgnored
	}
	word = strings.ToLower(word)
	// trim before sanitizing so the escape on a leading ':' survives
	args := strings.TrimRight(sanitize.Text(strings.TrimSpace(rest), d.cfg.MaxLineBytes), " ")

	target := replyTarget(msg.Param(0), sender.Nick)
	event := log.Debug().Str("nick", sender.Nick).Str("target", target).Str("command", word)

	cmd, ok := d.registry.Lookup(word)
	if !ok {
		event.Msg("dispatch.Dispatcher suppressed unknown command")
		observability.RecordCommand("unknown", OutcomeUnknown.String(), 0)
		return OutcomeUnknown
	}
	admin := d.authz.IsAdmin(sender)
	if cmd.Admin && !admin {
		event.Str("mask", sender.String()).Msg("dispatch.Dispatcher suppressed unauthorized command")
		observability.RecordCommand(cmd.Name, OutcomeDenied.String(), 0)
		return OutcomeDenied
	}
	if !admin && !d.limiter.Allow(protocol.FoldNick(sender.Nick)) {
		event.Msg("dispatch.Dispatcher suppressed rate limited command")
		observability.RecordCommand(cmd.Name, OutcomeRateLimited.String(), 0)
		return OutcomeRateLimited
	}

	req := &Request{
		Sender:  sender,
		Target:  target,
		Command: cmd.Name,
		Args:    args,
		Admin:   admin,
	}
	req.reply = func(lines ...string) int { return d.deliver(target, lines) }

	start := d.cfg.Clock.Now()
	lines, err := d.invoke(ctx, cmd, req)
	if err != nil {
		log.Error().Err(err).Str("command", cmd.Name).Str("nick", sender.Nick).Msg("dispatch.Dispatcher handler failed")
		observability.RecordCommand(cmd.Name, OutcomeFailed.String(), d.cfg.Clock.Since(start))
		return OutcomeFailed
	}
	sent := d.deliver(target, lines)
	log.Debug().Str("command", cmd.Name).Str("target", target).Int("lines", sent).Msg("dispatch.Dispatcher handled")
	observability.RecordCommand(cmd.Name, OutcomeHandled.String(), d.cfg.Clock.Since(start))
	return OutcomeHandled
}

func (d *Dispatcher) invoke(ctx context.Context, cmd Command, req *Request) (lines []string, err error) {
	hctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: handler %s panicked: %v", cmd.Name, r)
		}
	}()
	return cmd.Handler.Handle(hctx, req), nil
}

// deliver sanitizes lines, caps them at MaxReplyLines and queues them for
// target. It returns how many lines were queued.
func (d *Dispatcher) deliver(target string, lines []string) int {
	clean := make([]string, 0, len(lines))
	for _, raw := range lines {
		for _, part := range strings.Split(raw, "\n") {
			line, err := sanitize.Line(strings.TrimRight(part, "\r"), d.cfg.MaxLineBytes)
			if err != nil {
				continue
			}
			clean = append(clean, line)
		}
	}
	clean = capLines(clean, d.cfg.MaxReplyLines)

	sent := 0
	for _, line := range clean {
		if err := d.out.Enqueue(target, protocol.CmdPrivmsg, target, line); err != nil {
			log.Warn().Err(err).Str("target", target).Int("dropped", len(clean)-sent).Msg("dispatch.Dispatcher reply not queued")
			break
		}
		sent++
	}
	return sent
}

// capLines keeps at most limit lines, the last one replaced by a note of how
// many were cut. The first line is always kept.
func capLines(lines []string, limit int) []string {
	if limit <= 0 || len(lines) <= limit {
		return lines
	}
	if limit == 1 {
		return lines[:1]
	}
	kept := lines[:limit-1:limit-1]
	return append(kept, fmt.Sprintf("... (%d more lines truncated)", len(lines)-len(kept)))
}

func replyTarget(dest, sender string) string {
	if protocol.IsChannel(dest) {
		return dest
	}
	return sender
}

func splitWord(s string) (string, string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
