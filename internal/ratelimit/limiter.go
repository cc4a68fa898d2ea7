// Package ratelimit gates command invocations per identity with a fixed
// cooldown window.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultCooldown = 2 * time.Second
	// DefaultCapacity bounds how many identities are remembered at once.
	DefaultCapacity = 4096
)

type Config struct {
	Cooldown time.Duration
	Capacity int
	Clock    clock.Clock
}

func DefaultConfig() Config {
	return Config{
		Cooldown: DefaultCooldown,
		Capacity: DefaultCapacity,
		Clock:    clock.New(),
	}
}

func (c Config) WithDefaults() Config {
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Limiter remembers the last accepted invocation per identity. The record is
// an LRU, so an identity evicted under pressure simply starts fresh.
type Limiter struct {
	mu       sync.Mutex
	clock    clock.Clock
	cooldown time.Duration
	last     *lru.Cache[string, time.Time]
}

func New(cfg Config) *Limiter {
	cfg = cfg.WithDefaults()
	cache, err := lru.New[string, time.Time](cfg.Capacity)
	if err != nil {
		// only fails for non-positive sizes, which WithDefaults rules out
		panic(err)
	}
	return &Limiter{
		clock:    cfg.Clock,
		cooldown: cfg.Cooldown,
		last:     cache,
	}
}

// Allow checks identity against the limiter clock.
func (l *Limiter) Allow(identity string) bool {
	return l.AllowAt(identity, l.clock.Now())
}

// AllowAt reports whether identity may run a command at now and, if so,
// records now as its last accepted invocation. The read-modify-write is
// atomic per limiter.
func (l *Limiter) AllowAt(identity string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.last.Get(identity); ok && now.Sub(last) < l.cooldown {
		return false
	}
	l.last.Add(identity, now)
	return true
}

// Forget drops any record for identity.
func (l *Limiter) Forget(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last.Remove(identity)
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last.Len()
}

func (l *Limiter) Cooldown() time.Duration {
	return l.cooldown
}
