package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/testutil/testlog"
)

func TestAllowWithinCooldownAcceptsOnce(t *testing.T) {
	testlog.Start(t)
	mock := clock.NewMock()
	l := New(Config{Cooldown: 2 * time.Second, Clock: mock})

	if !l.Allow("alice") {
		t.Fatalf("first attempt must be accepted")
	}
	mock.Add(time.Second)
	if l.Allow("alice") {
		t.Fatalf("second attempt inside cooldown must be dropped")
	}
	if !l.Allow("bob") {
		t.Fatalf("other identities are independent")
	}
}

func TestAllowBeyondCooldownAcceptsBoth(t *testing.T) {
	testlog.Start(t)
	mock := clock.NewMock()
	l := New(Config{Cooldown: 2 * time.Second, Clock: mock})

	if !l.Allow("alice") {
		t.Fatalf("first attempt must be accepted")
	}
	mock.Add(2 * time.Second)
	if !l.Allow("alice") {
		t.Fatalf("attempt at the window edge must be accepted")
	}
}

func TestRejectedAttemptDoesNotExtendWindow(t *testing.T) {
	testlog.Start(t)
	base := time.Unix(1700000000, 0)
	l := New(Config{Cooldown: 2 * time.Second})

	if !l.AllowAt("alice", base) {
		t.Fatalf("first attempt must be accepted")
	}
	if l.AllowAt("alice", base.Add(1500*time.Millisecond)) {
		t.Fatalf("attempt inside window must be rejected")
	}
	if !l.AllowAt("alice", base.Add(2*time.Second)) {
		t.Fatalf("window is measured from the last accepted attempt")
	}
}

func TestCapacityBoundsRecord(t *testing.T) {
	testlog.Start(t)
	l := New(Config{Cooldown: time.Minute, Capacity: 2})
	now := time.Unix(1700000000, 0)
	l.AllowAt("a", now)
	l.AllowAt("b", now)
	l.AllowAt("c", now)
	if got := l.Len(); got != 2 {
		t.Fatalf("len got=%d want=2", got)
	}
	// "a" was evicted, so it starts fresh.
	if !l.AllowAt("a", now) {
		t.Fatalf("evicted identity should be accepted")
	}
}

func TestConcurrentAttemptsAcceptExactlyOne(t *testing.T) {
	testlog.Start(t)
	l := New(Config{Cooldown: time.Minute})
	now := time.Unix(1700000000, 0)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.AllowAt("alice", now) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := accepted.Load(); got != 1 {
		t.Fatalf("accepted=%d want=1", got)
	}
}

func TestForget(t *testing.T) {
	testlog.Start(t)
	l := New(Config{Cooldown: time.Minute})
	now := time.Unix(1700000000, 0)
	l.AllowAt("alice", now)
	l.Forget("alice")
	if !l.AllowAt("alice", now) {
		t.Fatalf("forgotten identity should be accepted")
	}
}
