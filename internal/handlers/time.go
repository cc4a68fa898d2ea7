package handlers

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/sanitize"
)

type Time struct {
	Clock clock.Clock
}

func (t Time) Handle(context.Context, *dispatch.Request) []string {
	now := t.Clock.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	return []string{sanitize.Bolden(sanitize.Colorize(now, sanitize.LightCyan))}
}
