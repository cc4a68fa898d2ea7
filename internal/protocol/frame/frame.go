package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

const (
	// MaxLineBytes is the RFC 1459 body limit, CRLF included.
	MaxLineBytes = 512
	// MaxTagBytes bounds the IRCv3 message-tag section preceding the body.
	MaxTagBytes = 8191
)

var (
	ErrTooLong   = errors.New("frame: line too long")
	ErrMalformed = errors.New("frame: malformed line")
	ErrBadParam  = errors.New("frame: invalid parameter")
	ErrBadVerb   = errors.New("frame: invalid command")
)

// Limits constrains line decode/encode memory use.
type Limits struct {
	MaxLineBytes int
	MaxTagBytes  int
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes: MaxLineBytes,
		MaxTagBytes:  MaxTagBytes,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxLineBytes <= 2 {
		l.MaxLineBytes = MaxLineBytes
	}
	if l.MaxTagBytes < 0 {
		l.MaxTagBytes = 0
	}
	return l
}

// rawLimit is the largest terminated line the reader will buffer.
func (l Limits) rawLimit() int {
	n := l.MaxLineBytes
	if l.MaxTagBytes > 0 {
		// "@" + tags + " "
		n += l.MaxTagBytes + 2
	}
	return n
}

// Message is one decoded wire line.
type Message struct {
	Prefix  Prefix
	Source  string
	Command string
	Params  []string
}

// Param returns the i-th parameter or "" when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter or "" when there are none.
func (m Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Reader yields decoded messages from a byte stream without ever buffering
// more than one bounded line.
type Reader struct {
	br     *bufio.Reader
	limits Limits
}

func NewReader(r io.Reader, limits Limits) *Reader {
	limits = limits.withDefaults()
	return &Reader{
		br:     bufio.NewReaderSize(r, limits.rawLimit()),
		limits: limits,
	}
}

// ReadMessage returns the next message. ErrTooLong and ErrMalformed are
// per-line: the offending line has been consumed and the caller may keep
// reading. Any other error comes from the underlying stream.
func (r *Reader) ReadMessage() (Message, error) {
	line, err := r.readLine()
	if err != nil {
		return Message{}, err
	}
	return DecodeWithLimits(line, r.limits)
}

func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadSlice('\n')
	if err == nil {
		return line, nil
	}
	if errors.Is(err, bufio.ErrBufferFull) {
		if derr := r.discardLine(); derr != nil {
			return nil, derr
		}
		return nil, ErrTooLong
	}
	if errors.Is(err, io.EOF) && len(line) > 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return nil, err
}

func (r *Reader) discardLine() error {
	for {
		_, err := r.br.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// Decode parses one line using the default limits.
func Decode(line []byte) (Message, error) {
	return DecodeWithLimits(line, DefaultLimits())
}

func DecodeWithLimits(line []byte, limits Limits) (Message, error) {
	limits = limits.withDefaults()
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return Message{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	body := line
	if line[0] == '@' {
		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			return Message{}, fmt.Errorf("%w: tags without body", ErrMalformed)
		}
		if sp-1 > limits.MaxTagBytes {
			return Message{}, ErrTooLong
		}
		body = bytes.TrimLeft(line[sp:], " ")
	}
	if len(body)+2 > limits.MaxLineBytes {
		return Message{}, ErrTooLong
	}
	if bytes.IndexByte(line, 0) >= 0 {
		return Message{}, fmt.Errorf("%w: embedded NUL", ErrMalformed)
	}

	parsed, err := ircmsg.ParseLine(string(line))
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(parsed.Command) == "" {
		return Message{}, fmt.Errorf("%w: missing command", ErrMalformed)
	}

	params := make([]string, len(parsed.Params))
	copy(params, parsed.Params)
	return Message{
		Prefix:  ParsePrefix(parsed.Source),
		Source:  parsed.Source,
		Command: strings.ToUpper(parsed.Command),
		Params:  params,
	}, nil
}

// Encode serializes a client line, CRLF terminated. It fails closed on any
// parameter that could split the line or smuggle a second command.
func Encode(command string, params ...string) ([]byte, error) {
	return EncodeWithLimits(DefaultLimits(), command, params...)
}

func EncodeWithLimits(limits Limits, command string, params ...string) ([]byte, error) {
	limits = limits.withDefaults()
	if err := validateCommand(command); err != nil {
		return nil, err
	}
	for i, p := range params {
		if err := validateParam(p, i == len(params)-1); err != nil {
			return nil, fmt.Errorf("%w: param %d", err, i)
		}
	}

	verb := strings.ToUpper(command)
	msg := ircmsg.MakeMessage(nil, "", verb, params...)
	if idx, ok := textParam[verb]; ok && len(params) == idx+1 {
		msg.ForceTrailing()
	}
	line, err := msg.Line()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadParam, err)
	}
	line = strings.TrimRight(line, "\r\n") + "\r\n"
	if len(line) > limits.MaxLineBytes {
		return nil, ErrTooLong
	}
	return []byte(line), nil
}

// textParam is the index of the free-text parameter for verbs that carry
// one; it is always written in trailing form.
var textParam = map[string]int{
	"PRIVMSG": 1,
	"NOTICE":  1,
	"QUIT":    0,
	"PART":    1,
	"KICK":    2,
	"TOPIC":   1,
	"USER":    3,
	"ERROR":   0,
}

func validateCommand(command string) error {
	if command == "" {
		return ErrBadVerb
	}
	for i := 0; i < len(command); i++ {
		c := command[i]
		isAlpha := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
		isDigit := c >= '0' && c <= '9'
		if !isAlpha && !isDigit {
			return fmt.Errorf("%w: %q", ErrBadVerb, command)
		}
	}
	return nil
}

func validateParam(p string, last bool) error {
	if strings.ContainsAny(p, "\r\n\x00") {
		return ErrBadParam
	}
	if last {
		return nil
	}
	if p == "" || p[0] == ':' || strings.ContainsRune(p, ' ') {
		return ErrBadParam
	}
	return nil
}
