package irc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/le0/internal/protocol/frame"
	"github.com/danmuck/le0/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var ErrTransport = errors.New("irc: transport failure")

// Conn wraps one transport with a bounded line reader and a serialized
// writer. Reads happen on a single goroutine; writes may come from any.
type Conn struct {
	nc           net.Conn
	reader       *frame.Reader
	limits       frame.Limits
	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewConn(nc net.Conn, cfg session.Config, limits frame.Limits) *Conn {
	cfg = cfg.WithDefaults()
	return &Conn{
		nc:           nc,
		reader:       frame.NewReader(nc, limits),
		limits:       limits,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Dial connects to address and wraps the transport.
func Dial(ctx context.Context, address string, cfg session.Config, limits frame.Limits) (*Conn, error) {
	nc, err := session.Dial(ctx, address, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, address, err)
	}
	return NewConn(nc, cfg, limits), nil
}

// ReadMessage blocks for the next inbound message. frame.ErrTooLong and
// frame.ErrMalformed are returned unwrapped and are not fatal; anything else
// wraps ErrTransport.
func (c *Conn) ReadMessage() (frame.Message, error) {
	if c.readTimeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	msg, err := c.reader.ReadMessage()
	if err == nil {
		return msg, nil
	}
	if errors.Is(err, frame.ErrTooLong) || errors.Is(err, frame.ErrMalformed) {
		return frame.Message{}, err
	}
	return frame.Message{}, fmt.Errorf("%w: read: %w", ErrTransport, err)
}

// Send encodes and writes one line immediately, bypassing the pacer.
func (c *Conn) Send(command string, params ...string) error {
	line, err := frame.EncodeWithLimits(c.limits, command, params...)
	if err != nil {
		return err
	}
	return c.WriteLine(line)
}

func (c *Conn) WriteLine(line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	log.Trace().Str("line", redact(line)).Msg("irc.Conn.WriteLine")
	if _, err := c.nc.Write(line); err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	return nil
}

// Close waits for an in-flight write, bounded by the write timeout, before
// closing the transport. A blocked read returns with an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// redact hides credentials from trace output.
func redact(line []byte) string {
	text := strings.TrimRight(string(line), "\r\n")
	upper := strings.ToUpper(text)
	switch {
	case strings.HasPrefix(upper, "PASS "):
		return "PASS <redacted>"
	case strings.HasPrefix(upper, "AUTHENTICATE ") && !strings.HasPrefix(upper, "AUTHENTICATE PLAIN"):
		return "AUTHENTICATE <redacted>"
	case strings.Contains(upper, " :IDENTIFY "):
		return "PRIVMSG NickServ :IDENTIFY <redacted>"
	}
	return text
}
