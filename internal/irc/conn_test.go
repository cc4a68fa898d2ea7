package irc

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/le0/internal/protocol/frame"
	"github.com/danmuck/le0/internal/protocol/session"
	"github.com/danmuck/le0/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

// stallConn blocks every Write until release is closed and records the order
// of writes and closes.
type stallConn struct {
	net.Conn
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	events []string
}

func (c *stallConn) Write(p []byte) (int, error) {
	c.entered <- struct{}{}
	<-c.release
	c.record("write")
	return len(p), nil
}

func (c *stallConn) Close() error {
	c.record("close")
	return c.Conn.Close()
}

func (c *stallConn) record(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func TestConnCloseWaitsForInFlightWrite(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer remote.Close()
	nc := &stallConn{Conn: local, entered: make(chan struct{}, 1), release: make(chan struct{})}
	conn := NewConn(nc, session.DefaultConfig(), frame.Limits{})

	writeDone := make(chan error, 1)
	go func() { writeDone <- conn.Send("PRIVMSG", "#chan", "last words") }()
	<-nc.entered

	closeDone := make(chan error, 1)
	go func() { closeDone <- conn.Close() }()
	select {
	case <-closeDone:
		t.Fatalf("close returned while a write was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(nc.release)
	require.NoError(t, <-writeDone)
	require.NoError(t, <-closeDone)
	require.Equal(t, []string{"write", "close"}, nc.events)
	require.NoError(t, conn.Close(), "close is idempotent")
}
