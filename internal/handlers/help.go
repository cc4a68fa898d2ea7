package handlers

import (
	"context"
	"strings"

	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/sanitize"
)

// Help lists the registry. Admin commands are shown only to admins.
type Help struct {
	Registry *dispatch.Registry
	Prefix   string
}

func (h Help) Handle(_ context.Context, req *dispatch.Request) []string {
	if fields := req.Fields(); len(fields) > 0 {
		cmd, ok := h.Registry.Lookup(strings.TrimPrefix(fields[0], h.Prefix))
		if !ok || (cmd.Admin && !req.Admin) {
			return []string{failure("No such command: " + fields[0])}
		}
		return []string{sanitize.Bolden(h.Prefix+cmd.Usage) + " - " + cmd.Help + aliasNote(h.Prefix, cmd.Aliases)}
	}

	var public, admin []string
	for _, cmd := range h.Registry.Commands() {
		word := h.Prefix + cmd.Name
		for _, alias := range cmd.Aliases {
			word += "/" + alias
		}
		if cmd.Admin {
			admin = append(admin, word)
		} else {
			public = append(public, word)
		}
	}
	lines := []string{
		sanitize.Bolden(sanitize.Colorize("Available commands:", sanitize.Cyan)) + " " + strings.Join(public, ", "),
	}
	if req.Admin && len(admin) > 0 {
		lines = append(lines, sanitize.Colorize("Admin:", sanitize.Yellow)+" "+strings.Join(admin, ", "))
	}
	return lines
}

func aliasNote(prefix string, aliases []string) string {
	if len(aliases) == 0 {
		return ""
	}
	return " (also " + prefix + strings.Join(aliases, ", "+prefix) + ")"
}
