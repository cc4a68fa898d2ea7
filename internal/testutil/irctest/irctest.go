// Package irctest provides a scripted IRC server for session tests.
package irctest

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// DefaultWait bounds every Expect call.
const DefaultWait = 3 * time.Second

// Server accepts a single client on a loopback listener. The test drives
// it line by line: Send writes to the client, Expect reads what the client
// wrote.
type Server struct {
	t  testing.TB
	ln net.Listener

	accepted chan struct{}
	lines    chan string
	closed   chan struct{}

	mu   sync.Mutex
	conn net.Conn
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("irctest listen: %v", err)
	}
	return Serve(t, ln)
}

// Serve scripts an existing listener, for example one from tlstest.
func Serve(t testing.TB, ln net.Listener) *Server {
	t.Helper()
	s := &Server{
		t:        t,
		ln:       ln,
		accepted: make(chan struct{}),
		lines:    make(chan string, 256),
		closed:   make(chan struct{}),
	}
	go s.acceptOne()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) acceptOne() {
	conn, err := s.ln.Accept()
	if err != nil {
		close(s.lines)
		close(s.closed)
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.accepted)

	defer close(s.closed)
	defer close(s.lines)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		s.lines <- strings.TrimRight(scanner.Text(), "\r")
	}
}

func (s *Server) client() net.Conn {
	s.t.Helper()
	select {
	case <-s.accepted:
	case <-time.After(DefaultWait):
		s.t.Fatalf("irctest: no client connected")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Send writes one line, CRLF appended.
func (s *Server) Send(line string) {
	s.t.Helper()
	if _, err := s.client().Write([]byte(line + "\r\n")); err != nil {
		s.t.Fatalf("irctest send %q: %v", line, err)
	}
}

// Next returns the next line the client sent.
func (s *Server) Next() string {
	s.t.Helper()
	select {
	case line, ok := <-s.lines:
		if !ok {
			s.t.Fatalf("irctest: client closed before next line")
		}
		return line
	case <-time.After(DefaultWait):
		s.t.Fatalf("irctest: timed out waiting for a line")
	}
	return ""
}

// Expect skips lines until one starts with prefix and returns it.
func (s *Server) Expect(prefix string) string {
	s.t.Helper()
	deadline := time.After(DefaultWait)
	var seen []string
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.t.Fatalf("irctest: client closed while waiting for %q, saw %q", prefix, seen)
			}
			if strings.HasPrefix(line, prefix) {
				return line
			}
			seen = append(seen, line)
		case <-deadline:
			s.t.Fatalf("irctest: timed out waiting for %q, saw %q", prefix, seen)
		}
	}
}

// ExpectNone fails if a line starting with prefix arrives within d.
func (s *Server) ExpectNone(prefix string, d time.Duration) {
	s.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			if strings.HasPrefix(line, prefix) {
				s.t.Fatalf("irctest: unexpected line %q", line)
			}
		case <-deadline:
			return
		}
	}
}

// WaitClosed waits for the client to close the connection, discarding
// anything it still sends.
func (s *Server) WaitClosed() {
	s.t.Helper()
	for {
		select {
		case _, ok := <-s.lines:
			if !ok {
				return
			}
		case <-time.After(DefaultWait):
			s.t.Fatalf("irctest: client never closed the connection")
		}
	}
}

// Register completes a plain NICK/USER registration and returns the nick
// the client asked for.
func (s *Server) Register() string {
	s.t.Helper()
	nick := strings.TrimPrefix(s.Expect("NICK "), "NICK ")
	s.Expect("USER ")
	s.Send(":irc.test 001 " + nick + " :Welcome to the test network")
	return nick
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
