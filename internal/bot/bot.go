// Package bot wires one IRC session to the command dispatcher, the chat and
// admin commands, the persistent store and the optional status server.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/auth"
	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/handlers"
	"github.com/danmuck/le0/internal/irc"
	"github.com/danmuck/le0/internal/ratelimit"
	"github.com/danmuck/le0/internal/server"
	"github.com/danmuck/le0/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const ServiceName = "le0"

type Config struct {
	Session   irc.Config
	Dispatch  dispatch.Config
	RateLimit ratelimit.Config
	// Admins are nick!user@host glob patterns.
	Admins      []string
	StorePath   string
	StatusAddr  string
	CorsOrigins []string

	// Optional overrides, mainly for tests.
	Clock clock.Clock
	Rand  handlers.Rand
	Store store.Store
}

// Status extends the session view with bot-level details.
type Status struct {
	irc.Status
	Commands []string `json:"commands"`
	Admins   int      `json:"admins"`
	Uptime   string   `json:"uptime"`
}

type Bot struct {
	cfg        Config
	clock      clock.Clock
	started    time.Time
	session    *irc.Session
	dispatcher *dispatch.Dispatcher
	admins     *auth.HostmaskSet
	store      store.Store
	seen       *handlers.Seen
	status     *server.Server
}

func New(cfg Config) (*Bot, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Session.Clock == nil {
		cfg.Session.Clock = clk
	}
	if cfg.Dispatch.Clock == nil {
		cfg.Dispatch.Clock = clk
	}
	if cfg.RateLimit.Clock == nil {
		cfg.RateLimit.Clock = clk
	}
	if cfg.Dispatch.Prefix == "" {
		cfg.Dispatch.Prefix = dispatch.DefaultPrefix
	}

	admins, err := auth.NewHostmaskSet(cfg.Admins)
	if err != nil {
		return nil, err
	}
	kv, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := irc.New(cfg.Session)
	if err != nil {
		return nil, err
	}
	cfg.Dispatch.Nick = sess.Nick

	b := &Bot{
		cfg:     cfg,
		clock:   clk,
		started: clk.Now(),
		session: sess,
		admins:  admins,
		store:   kv,
	}

	registry := dispatch.NewRegistry()
	seen, err := handlers.Register(registry, handlers.Deps{
		Store:  kv,
		Rand:   cfg.Rand,
		Clock:  clk,
		Prefix: cfg.Dispatch.Prefix,
	})
	if err != nil {
		return nil, err
	}
	for _, cmd := range b.adminCommands() {
		if err := registry.Register(cmd); err != nil {
			return nil, err
		}
	}

	d, err := dispatch.New(cfg.Dispatch, registry, ratelimit.New(cfg.RateLimit), admins, sess)
	if err != nil {
		return nil, err
	}
	d.Observe(seen.Observe)
	b.seen = seen
	b.dispatcher = d
	sess.SetHandler(d)

	if cfg.StatusAddr != "" {
		b.status = server.Appear(ServiceName, cfg.StatusAddr, cfg.CorsOrigins, server.Source{
			Status: func() any { return b.Status() },
			Ready:  b.Ready,
			State:  func() string { return b.session.State().String() },
		})
	}
	return b, nil
}

func openStore(cfg Config) (store.Store, error) {
	if cfg.Store != nil {
		return cfg.Store, nil
	}
	if cfg.StorePath == "" {
		return store.NewMemory(), nil
	}
	f, err := store.OpenFile(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return f, nil
}

// Run serves the session, the seen flusher, and the status server when
// configured, until the session ends. Cancelling ctx quits the session.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return b.session.Run(gctx)
	})
	g.Go(func() error {
		return b.seen.Run(gctx)
	})
	if b.status != nil {
		g.Go(func() error {
			return b.status.ListenAndServe(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Str("session_id", b.session.ID()).Err(err).Msg("bot.Bot.Run stopped")
	return err
}

// Quit sends QUIT with reason and ends Run.
func (b *Bot) Quit(reason string) error {
	return b.session.Quit(reason)
}

func (b *Bot) Session() *irc.Session {
	return b.session
}

func (b *Bot) Dispatcher() *dispatch.Dispatcher {
	return b.dispatcher
}

func (b *Bot) Ready() bool {
	return b.session.State() == irc.StateRegistered
}

func (b *Bot) Status() Status {
	cmds := b.dispatcher.Registry().Commands()
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return Status{
		Status:   b.session.Status(),
		Commands: names,
		Admins:   b.admins.Len(),
		Uptime:   b.clock.Since(b.started).Truncate(time.Second).String(),
	}
}
