package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/protocol"
	"github.com/danmuck/le0/internal/protocol/frame"
	"github.com/danmuck/le0/internal/sanitize"
	"github.com/danmuck/le0/internal/store"
	"github.com/ergochat/irc-go/ircutils"
	"github.com/rs/zerolog/log"
)

const (
	seenPrefix      = "seen/"
	seenMessageSize = 100

	DefaultSeenFlushInterval = 30 * time.Second
)

type seenRecord struct {
	Nick    string    `json:"nick"`
	Channel string    `json:"channel"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Seen records the last channel line of every nick and answers "seen".
// Observed lines are held in memory and written to the store by Run, so the
// read loop never waits on the store.
type Seen struct {
	store    store.Store
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	pending map[string]string
}

func NewSeen(s store.Store, clk clock.Clock) *Seen {
	if clk == nil {
		clk = clock.New()
	}
	return &Seen{
		store:    s,
		clock:    clk,
		interval: DefaultSeenFlushInterval,
		pending:  make(map[string]string),
	}
}

// Run flushes pending records every flush interval until ctx is done, then
// flushes once more.
func (s *Seen) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return nil
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Flush writes pending records to the store. Records that fail to write
// stay pending unless a newer one replaced them meanwhile.
func (s *Seen) Flush() int {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]string, len(batch))
	s.mu.Unlock()

	written := 0
	for key, raw := range batch {
		if err := s.store.Put(key, raw); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("handlers.Seen.Flush store failed")
			s.mu.Lock()
			if _, newer := s.pending[key]; !newer {
				s.pending[key] = raw
			}
			s.mu.Unlock()
			continue
		}
		written++
	}
	if written > 0 {
		log.Debug().Int("records", written).Msg("handlers.Seen.Flush")
	}
	return written
}

// Observe is a dispatch.Observer.
func (s *Seen) Observe(_ context.Context, msg frame.Message) {
	channel := msg.Param(0)
	if msg.Command != protocol.CmdPrivmsg || !protocol.IsChannel(channel) || msg.Prefix.Nick == "" {
		return
	}
	rec := seenRecord{
		Nick:    msg.Prefix.Nick,
		Channel: channel,
		Message: ircutils.TruncateUTF8Safe(msg.Trailing(), 4*seenMessageSize),
		At:      s.clock.Now(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.pending[seenPrefix+protocol.FoldNick(rec.Nick)] = string(raw)
	s.mu.Unlock()
}

func (s *Seen) lookup(nick string) (string, error) {
	key := seenPrefix + protocol.FoldNick(nick)
	s.mu.Lock()
	raw, ok := s.pending[key]
	s.mu.Unlock()
	if ok {
		return raw, nil
	}
	return s.store.Get(key)
}

func (s *Seen) Handle(_ context.Context, req *dispatch.Request) []string {
	fields := req.Fields()
	if len(fields) == 0 {
		return []string{fmt.Sprintf("%s: Usage: seen <nick>", req.Sender.Nick)}
	}
	nick := fields[0]
	raw, err := s.lookup(nick)
	if errors.Is(err, store.ErrNotFound) {
		return []string{failure(fmt.Sprintf("Haven't seen %s yet", nick))}
	}
	if err != nil {
		log.Warn().Err(err).Str("nick", nick).Msg("handlers.Seen.Handle store failed")
		return []string{failure("seen lookup failed")}
	}
	var rec seenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return []string{failure("seen lookup failed")}
	}

	message := []rune(sanitize.StripFormatting(rec.Message))
	if len(message) > seenMessageSize {
		message = message[:seenMessageSize]
	}
	return []string{fmt.Sprintf("%s was last seen %s in %s saying: %s",
		sanitize.Bolden(sanitize.Colorize(rec.Nick, sanitize.Cyan)),
		sanitize.Colorize(Ago(s.clock.Since(rec.At)), sanitize.LightGrey),
		sanitize.Colorize(rec.Channel, sanitize.Yellow),
		sanitize.Colorize(string(message), sanitize.LightGrey),
	)}
}

// Ago renders an elapsed duration in the largest whole unit.
func Ago(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%d seconds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%d minutes ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%d hours ago", secs/3600)
	}
	return fmt.Sprintf("%d days ago", secs/86400)
}
