package handlers

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/sanitize"
	"github.com/danmuck/le0/internal/store"
)

// Rand is the slice of math/rand the handlers need, so tests can script it.
type Rand interface {
	IntN(n int) int
}

type Deps struct {
	Store  store.Store
	Rand   Rand
	Clock  clock.Clock
	Prefix string
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Rand == nil {
		now := uint64(time.Now().UnixNano())
		d.Rand = rand.New(rand.NewPCG(now, now>>17))
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Prefix == "" {
		d.Prefix = dispatch.DefaultPrefix
	}
	return d
}

// Register adds every chat command to reg and returns the seen tracker so the
// caller can attach it as a dispatch observer.
func Register(reg *dispatch.Registry, deps Deps) (*Seen, error) {
	deps = deps.withDefaults()
	seen := NewSeen(deps.Store, deps.Clock)
	quotes := NewQuotes(deps.Store, deps.Rand)

	cmds := []dispatch.Command{
		{Name: "ping", Usage: "ping", Help: "check the bot is alive", Handler: dispatch.HandlerFunc(Ping)},
		{Name: "roll", Aliases: []string{"dice"}, Usage: "roll [XdY]", Help: "roll dice", Handler: Dice{Rand: deps.Rand}},
		{Name: "coin", Aliases: []string{"flip"}, Usage: "coin", Help: "flip a coin", Handler: Coin{Rand: deps.Rand}},
		{Name: "8ball", Aliases: []string{"8"}, Usage: "8ball <question>", Help: "ask the magic 8-ball", Handler: EightBall{Rand: deps.Rand}},
		{Name: "calc", Aliases: []string{"c"}, Usage: "calc <expression>", Help: "evaluate arithmetic", Handler: dispatch.HandlerFunc(Calc)},
		{Name: "time", Usage: "time", Help: "current UTC time", Handler: Time{Clock: deps.Clock}},
		{Name: "seen", Usage: "seen <nick>", Help: "when a nick last spoke", Handler: seen},
		{Name: "quote", Usage: "quote [id]", Help: "recall a quote", Handler: dispatch.HandlerFunc(quotes.Quote)},
		{Name: "addquote", Usage: "addquote <text>", Help: "remember a quote", Handler: dispatch.HandlerFunc(quotes.Add)},
	}
	for _, cmd := range cmds {
		if err := reg.Register(cmd); err != nil {
			return nil, err
		}
	}
	if err := reg.Register(dispatch.Command{
		Name:    "help",
		Usage:   "help",
		Help:    "list commands",
		Handler: Help{Registry: reg, Prefix: deps.Prefix},
	}); err != nil {
		return nil, err
	}
	return seen, nil
}

func Ping(context.Context, *dispatch.Request) []string {
	return []string{"pong"}
}

func failure(text string) string {
	return sanitize.Colorize("x", sanitize.Red) + " " + text
}
