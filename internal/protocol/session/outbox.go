package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrOutboxClosed = errors.New("session: outbox closed")
	ErrQueueFull    = errors.New("session: destination queue full")
	ErrNoTarget     = errors.New("session: outbound line has no target")
)

// OutboundLine is one encoded line waiting for the pacer.
type OutboundLine struct {
	Target    string
	Line      []byte
	QueuedAt  time.Time
	NotBefore time.Time
}

// Outbox keeps one FIFO per destination. Lines for a destination leave in
// the order they were enqueued; destinations are served round-robin so one
// long reply cannot starve the others.
type Outbox struct {
	mu        sync.Mutex
	queues    map[string][]OutboundLine
	ring      []string
	maxQueued int
	ready     chan struct{}
	closed    bool
}

// NewOutbox creates an empty outbox. maxQueued <= 0 means unbounded.
func NewOutbox(maxQueued int) *Outbox {
	return &Outbox{
		queues:    make(map[string][]OutboundLine),
		maxQueued: maxQueued,
		ready:     make(chan struct{}, 1),
	}
}

func (o *Outbox) Enqueue(item OutboundLine) error {
	key := strings.TrimSpace(item.Target)
	if key == "" {
		return ErrNoTarget
	}
	item.Target = key

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutboxClosed
	}
	q := o.queues[key]
	if o.maxQueued > 0 && len(q) >= o.maxQueued {
		o.mu.Unlock()
		return ErrQueueFull
	}
	if len(q) == 0 {
		o.ring = append(o.ring, key)
	}
	o.queues[key] = append(q, item)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return nil
}

// Next pops the first due line in round-robin order. When nothing is due but
// lines are pending, wait is the time until the earliest one becomes due.
func (o *Outbox) Next(now time.Time) (item OutboundLine, wait time.Duration, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var earliest time.Time
	for i, key := range o.ring {
		q := o.queues[key]
		head := q[0]
		if head.NotBefore.After(now) {
			if earliest.IsZero() || head.NotBefore.Before(earliest) {
				earliest = head.NotBefore
			}
			continue
		}

		rest := q[1:]
		o.ring = append(o.ring[:i:i], o.ring[i+1:]...)
		if len(rest) == 0 {
			delete(o.queues, key)
		} else {
			o.queues[key] = rest
			o.ring = append(o.ring, key)
		}
		return head, 0, true
	}
	if earliest.IsZero() {
		return OutboundLine{}, 0, false
	}
	return OutboundLine{}, earliest.Sub(now), false
}

// Ready is signalled after every successful Enqueue.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

func (o *Outbox) Pending(target string) int {
	key := strings.TrimSpace(target)
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queues[key])
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, q := range o.queues {
		n += len(q)
	}
	return n
}

func (o *Outbox) Targets() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.queues))
	for key := range o.queues {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Drop discards everything pending for target and returns how many lines
// were dropped.
func (o *Outbox) Drop(target string) int {
	key := strings.TrimSpace(target)
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.queues[key])
	if n == 0 {
		return 0
	}
	delete(o.queues, key)
	for i, k := range o.ring {
		if k == key {
			o.ring = append(o.ring[:i:i], o.ring[i+1:]...)
			break
		}
	}
	return n
}

// Close rejects further Enqueue calls. Pending lines stay readable.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}
