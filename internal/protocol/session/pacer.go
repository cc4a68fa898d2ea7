package session

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/observability"
	"github.com/rs/zerolog/log"
)

// LineWriter is the connection send path the pacer drains into.
type LineWriter interface {
	WriteLine(line []byte) error
}

type PacerConfig struct {
	Interval time.Duration
	Clock    clock.Clock
}

// Pacer is the single background sender for queued lines. It never puts two
// lines on the wire closer together than Interval.
type Pacer struct {
	outbox   *Outbox
	w        LineWriter
	clock    clock.Clock
	interval time.Duration
	lastSent time.Time
}

func NewPacer(outbox *Outbox, w LineWriter, cfg PacerConfig) *Pacer {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Pacer{
		outbox:   outbox,
		w:        w,
		clock:    cfg.Clock,
		interval: cfg.Interval,
	}
}

// Step sends at most one due line at now. wait is how long to sleep before
// the next Step; zero means idle until the outbox signals.
func (p *Pacer) Step(now time.Time) (sent bool, wait time.Duration, err error) {
	if !p.lastSent.IsZero() {
		if elapsed := now.Sub(p.lastSent); elapsed < p.interval {
			return false, p.interval - elapsed, nil
		}
	}
	item, wait, ok := p.outbox.Next(now)
	if !ok {
		return false, wait, nil
	}
	if err := p.w.WriteLine(item.Line); err != nil {
		return false, 0, err
	}
	p.lastSent = now
	observability.RecordLineSent(item.Target)
	observability.SetOutboundDepth(p.outbox.Len())
	return true, p.interval, nil
}

// Run drains the outbox until ctx is done or a write fails. A write failure
// is a transport failure and ends the session.
func (p *Pacer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		sent, wait, err := p.Step(p.clock.Now())
		if err != nil {
			log.Error().Err(err).Msg("session.Pacer.Run write failed")
			return err
		}
		if sent {
			continue
		}
		if !p.wait(ctx, wait) {
			return nil
		}
	}
}

func (p *Pacer) wait(ctx context.Context, d time.Duration) bool {
	var timerC <-chan time.Time
	if d > 0 {
		timer := p.clock.Timer(d)
		defer timer.Stop()
		timerC = timer.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-timerC:
	case <-p.outbox.Ready():
	}
	return true
}
