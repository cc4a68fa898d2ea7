// Package sanitize scrubs user-supplied and handler-produced text before it
// can reach the wire.
package sanitize

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/ergochat/irc-go/ircutils"
)

// IRC formatting codes that survive sanitizing.
const (
	Bold          = '\x02'
	Color         = '\x03'
	HexColor      = '\x04'
	Reset         = '\x0f'
	Monospace     = '\x11'
	Reverse       = '\x16'
	Italic        = '\x1d'
	Strikethrough = '\x1e'
	Underline     = '\x1f'
)

var ErrEmpty = errors.New("sanitize: nothing printable left")

// Text truncates to maxBytes (UTF-8 safe, maxBytes <= 0 means unbounded),
// removes control characters other than formatting codes, folds CR/LF/TAB
// into spaces, and escapes a leading ':' so the result can never be read as
// a trailing-parameter marker.
func Text(text string, maxBytes int) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	if maxBytes > 0 && len(text) > maxBytes {
		text = ircutils.TruncateUTF8Safe(text, maxBytes)
	}
	text = strip(text)
	if strings.HasPrefix(text, ":") {
		if maxBytes > 0 && len(text)+1 > maxBytes {
			text = ircutils.TruncateUTF8Safe(text, maxBytes-1)
		}
		text = " " + text
	}
	return text
}

// Line is Text for outbound reply lines: it fails with ErrEmpty when nothing
// printable survives, so callers drop the line instead of sending noise.
func Line(text string, maxBytes int) (string, error) {
	out := Text(text, maxBytes)
	if strings.TrimSpace(StripFormatting(out)) == "" {
		return "", ErrEmpty
	}
	return out, nil
}

// StripFormatting removes IRC formatting codes, including color arguments.
func StripFormatting(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case Color:
			i = skipColorArgs(text, i+1, 2) - 1
		case HexColor:
			i = skipHexArgs(text, i+1) - 1
		case Bold, Reset, Monospace, Reverse, Italic, Strikethrough, Underline:
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func strip(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := false
	for _, r := range text {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		case r < 0x20 && !isFormatting(r):
			continue
		case r == 0x7f:
			continue
		}
		b.WriteRune(r)
		lastSpace = r == ' '
	}
	return b.String()
}

func isFormatting(r rune) bool {
	switch r {
	case Bold, Color, HexColor, Reset, Monospace, Reverse, Italic, Strikethrough, Underline:
		return true
	}
	return false
}

// skipColorArgs consumes "NN[,NN]" after a color code and returns the index
// of the first byte past it.
func skipColorArgs(s string, i, width int) int {
	i = skipDigits(s, i, width)
	if i+1 < len(s) && s[i] == ',' && isDigit(s[i+1]) {
		i = skipDigits(s, i+1, width)
	}
	return i
}

func skipHexArgs(s string, i int) int {
	n := 0
	for i < len(s) && n < 6 && isHex(s[i]) {
		i++
		n++
	}
	if i+1 < len(s) && s[i] == ',' && isHex(s[i+1]) {
		i++
		for n = 0; i < len(s) && n < 6 && isHex(s[i]); n++ {
			i++
		}
	}
	return i
}

func skipDigits(s string, i, width int) int {
	for n := 0; i < len(s) && n < width && isDigit(s[i]); n++ {
		i++
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
