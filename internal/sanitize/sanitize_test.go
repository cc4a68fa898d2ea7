package sanitize

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/danmuck/le0/internal/testutil/testlog"
)

func TestTextStripsInjection(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello world", want: "hello world"},
		{name: "crlf folded", in: "hi\r\nQUIT :owned", want: "hi QUIT :owned"},
		{name: "bare lf folded", in: "a\nb", want: "a b"},
		{name: "nul removed", in: "a\x00b", want: "ab"},
		{name: "bell removed", in: "ding\x07", want: "ding"},
		{name: "del removed", in: "x\x7fy", want: "xy"},
		{name: "formatting kept", in: "\x02bold\x02 \x0304red\x0f", want: "\x02bold\x02 \x0304red\x0f"},
		{name: "leading colon escaped", in: ":nick!u@h PRIVMSG", want: " :nick!u@h PRIVMSG"},
		{name: "tab folded", in: "a\tb", want: "a b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Text(tc.in, 0); got != tc.want {
				t.Fatalf("Text(%q) got=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTextTruncatesUTF8Safe(t *testing.T) {
	testlog.Start(t)
	in := strings.Repeat("é", 10) // 20 bytes
	got := Text(in, 7)
	if len(got) > 7 {
		t.Fatalf("len=%d exceeds limit", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if got != strings.Repeat("é", 3) {
		t.Fatalf("got=%q", got)
	}
}

func TestTextEscapeRespectsLimit(t *testing.T) {
	testlog.Start(t)
	got := Text(":abcdef", 4)
	if len(got) > 4 {
		t.Fatalf("len=%d exceeds limit: %q", len(got), got)
	}
	if !strings.HasPrefix(got, " :") {
		t.Fatalf("expected escaped colon, got %q", got)
	}
}

func TestTextNeverContainsControlBytes(t *testing.T) {
	testlog.Start(t)
	var b strings.Builder
	for c := 0; c < 0x20; c++ {
		b.WriteString("x")
		b.WriteByte(byte(c))
	}
	got := Text(b.String(), 0)
	for i := 0; i < len(got); i++ {
		c := got[i]
		if c < 0x20 && !isFormatting(rune(c)) {
			t.Fatalf("control byte 0x%02x survived in %q", c, got)
		}
	}
}

func TestLineRejectsEmpty(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{"", "\r\n", "\x00\x01", "\x02\x02", "   "} {
		if _, err := Line(in, 100); !errors.Is(err, ErrEmpty) {
			t.Fatalf("Line(%q) expected ErrEmpty, got %v", in, err)
		}
	}
	got, err := Line("ok\r\n", 100)
	if err != nil || got != "ok " {
		t.Fatalf("Line ok got=%q err=%v", got, err)
	}
}

func TestStripFormatting(t *testing.T) {
	testlog.Start(t)
	in := Bolden("hi") + " " + Colorize("there", Red) + " \x0304,01bg\x03 \x04ff0000hex"
	if got := StripFormatting(in); got != "hi there bg hex" {
		t.Fatalf("got=%q", got)
	}
}
