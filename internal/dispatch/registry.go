package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/le0/internal/protocol/frame"
)

var (
	ErrInvalidCommand   = errors.New("dispatch: invalid command")
	ErrDuplicateCommand = errors.New("dispatch: duplicate command")
)

// Handler produces reply lines for one invocation. Lines may also be sent
// later through Request.Reply.
type Handler interface {
	Handle(ctx context.Context, req *Request) []string
}

type HandlerFunc func(ctx context.Context, req *Request) []string

func (f HandlerFunc) Handle(ctx context.Context, req *Request) []string {
	return f(ctx, req)
}

// Request is what a handler sees of the invocation.
type Request struct {
	Sender frame.Prefix
	// Target is where replies go: the channel, or the sender for private
	// messages.
	Target  string
	Command string
	Args    string
	Admin   bool

	reply func(lines ...string) int
}

// Fields splits Args on whitespace.
func (r *Request) Fields() []string {
	return strings.Fields(r.Args)
}

// Reply sanitizes and queues lines for Target outside the normal return
// path. It returns how many lines were queued.
func (r *Request) Reply(lines ...string) int {
	if r.reply == nil {
		return 0
	}
	return r.reply(lines...)
}

// Command is one registry entry. Aliases resolve to the same entry.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string
	Admin   bool
	Handler Handler
}

type Registry struct {
	mu       sync.RWMutex
	byWord   map[string]*Command
	commands []*Command
}

func NewRegistry() *Registry {
	return &Registry{byWord: make(map[string]*Command)}
}

// Register adds cmd under its name and aliases. Words are case-folded and
// must be unique across the registry.
func (r *Registry) Register(cmd Command) error {
	cmd.Name = strings.ToLower(strings.TrimSpace(cmd.Name))
	if cmd.Name == "" || strings.ContainsAny(cmd.Name, " \t") {
		return fmt.Errorf("%w: name %q", ErrInvalidCommand, cmd.Name)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidCommand, cmd.Name)
	}
	words := []string{cmd.Name}
	aliases := make([]string, 0, len(cmd.Aliases))
	for _, alias := range cmd.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" {
			continue
		}
		aliases = append(aliases, alias)
		words = append(words, alias)
	}
	cmd.Aliases = aliases

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range words {
		if existing, ok := r.byWord[w]; ok {
			return fmt.Errorf("%w: %q already maps to %s", ErrDuplicateCommand, w, existing.Name)
		}
	}
	entry := &cmd
	for _, w := range words {
		r.byWord[w] = entry
	}
	r.commands = append(r.commands, entry)
	return nil
}

func (r *Registry) MustRegister(cmds ...Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(word string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byWord[strings.ToLower(word)]
	if !ok {
		return Command{}, false
	}
	return *cmd, true
}

// Commands lists entries sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, *cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
