package bot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/le0/internal/irc"
	"github.com/danmuck/le0/internal/protocol/session"
	"github.com/danmuck/le0/internal/ratelimit"
	"github.com/danmuck/le0/internal/sanitize"
	"github.com/danmuck/le0/internal/store"
	"github.com/danmuck/le0/internal/testutil/irctest"
	"github.com/danmuck/le0/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

const quiet = 100 * time.Millisecond

// fixedRand always yields n reduced into range.
type fixedRand struct{ n int }

func (r fixedRand) IntN(max int) int { return r.n % max }

type harness struct {
	srv     *irctest.Server
	bot     *Bot
	limiter *clock.Mock
	done    chan error
	cancel  context.CancelFunc
}

func startBot(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	srv := irctest.NewServer(t)
	transport := session.DefaultConfig()
	transport.Pacing.Interval = 2 * time.Millisecond
	mock := clock.NewMock()
	cfg := Config{
		Session: irc.Config{
			Address:   srv.Addr(),
			Identity:  irc.Identity{Nick: "le0", Channels: []string{"#chan"}},
			Transport: transport,
		},
		RateLimit: ratelimit.Config{Cooldown: 2 * time.Second, Clock: mock},
		Admins:    []string{"root!*@admin.net"},
		Rand:      fixedRand{n: 2},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{srv: srv, bot: b, limiter: mock, done: make(chan error, 1), cancel: cancel}
	go func() { h.done <- b.Run(ctx) }()
	t.Cleanup(cancel)

	srv.Register()
	require.Equal(t, "JOIN #chan", srv.Expect("JOIN"))
	deadline := time.Now().Add(irctest.DefaultWait)
	for !b.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("bot never registered, state=%s", b.Session().State())
		}
		time.Sleep(2 * time.Millisecond)
	}
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(irctest.DefaultWait):
		t.Fatalf("bot did not stop")
	}
	return nil
}

func (h *harness) reply(t *testing.T) string {
	t.Helper()
	return sanitize.StripFormatting(h.srv.Expect("PRIVMSG"))
}

func TestPingRepliesOncePerCooldown(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)

	h.srv.Send(":alice!a@host PRIVMSG #chan :%ping")
	h.srv.Send(":alice!a@host PRIVMSG #chan :%ping")
	require.Equal(t, "PRIVMSG #chan :pong", h.reply(t))
	h.srv.ExpectNone("PRIVMSG", quiet)

	h.limiter.Add(2500 * time.Millisecond)
	h.srv.Send(":Alice!a@host PRIVMSG #chan :%ping")
	require.Equal(t, "PRIVMSG #chan :pong", h.reply(t))

	h.cancel()
	require.Equal(t, "QUIT :shutting down", h.srv.Expect("QUIT"))
	require.NoError(t, h.wait(t))
}

func TestRollReply(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)

	h.srv.Send(":alice!a@host PRIVMSG #chan :%roll 2d6")
	require.Equal(t, "PRIVMSG #chan :2d6 -> [3, 3] = 6", h.reply(t))

	h.srv.Send(":bob!b@host PRIVMSG le0 :%dice 1d20")
	require.Equal(t, "PRIVMSG bob :1d20 -> 3", h.reply(t))
}

func TestQuitRequiresAdmin(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)

	h.srv.Send(":mallory!m@evil.net PRIVMSG #chan :%quit bye")
	h.srv.ExpectNone("QUIT", quiet)
	h.srv.ExpectNone("PRIVMSG", quiet)

	h.srv.Send(":root!r@admin.net PRIVMSG #chan :%quit bye")
	require.Equal(t, "QUIT :bye", h.srv.Expect("QUIT"))
	require.NoError(t, h.wait(t))
	h.srv.WaitClosed()
}

func TestBotQuitUsesDefaultReason(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)

	h.srv.Send(":root!r@admin.net PRIVMSG le0 :%raw quit")
	require.Equal(t, "QUIT :shutting down", h.srv.Expect("QUIT"))
	require.NoError(t, h.wait(t))
}

func TestAdminActions(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)
	admin := ":root!r@admin.net PRIVMSG #chan :%"

	tests := []struct {
		command string
		want    string
	}{
		{command: "join #other", want: "JOIN #other"},
		{command: "join #keyed secret", want: "JOIN #keyed secret"},
		{command: "part #other see you", want: "PART #other :see you"},
		{command: "nick le0_", want: "NICK le0_"},
		{command: "kick #chan troll flooding the channel", want: "KICK #chan troll :flooding the channel"},
		{command: "raw MODE #chan +o root", want: "MODE #chan +o root"},
		{command: "say #other hello there", want: "PRIVMSG #other :hello there"},
	}
	for _, tc := range tests {
		h.srv.Send(admin + tc.command)
		verb, _, _ := strings.Cut(tc.want, " ")
		require.Equal(t, tc.want, h.srv.Expect(verb+" "), "command %q", tc.command)
	}

	h.srv.Send(admin + "part")
	require.Equal(t, "PART #chan", h.srv.Expect("PART "))
}

func TestAdminUsageAndRejections(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)
	admin := ":root!r@admin.net PRIVMSG #chan :%"

	h.srv.Send(admin + "join lobby")
	require.Equal(t, "PRIVMSG #chan :usage: %join <#channel> [key]", h.reply(t))

	h.srv.Send(admin + "kick #chan")
	require.Equal(t, "PRIVMSG #chan :usage: %kick <#channel> <nick> [reason]", h.reply(t))

	h.srv.Send(admin + "raw :spoof!x@y PRIVMSG #chan :hi")
	require.Equal(t, "PRIVMSG #chan :raw rejected: prefix not allowed", h.reply(t))

	h.srv.Send(":root!r@admin.net PRIVMSG le0 :%part")
	require.Equal(t, "PRIVMSG root :usage: %part [#channel] [message]", h.reply(t))
}

func TestSeenTracksChannelChatter(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)

	h.srv.Send(":carol!c@host PRIVMSG #chan :lunch anyone?")
	h.srv.Send(":alice!a@host PRIVMSG #chan :%seen carol")
	got := h.reply(t)
	require.True(t, strings.HasPrefix(got, "PRIVMSG #chan :carol was last seen"), got)
	require.True(t, strings.HasSuffix(got, "in #chan saying: lunch anyone?"), got)
}

func TestSelfMessagesIgnored(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)

	h.srv.Send(":le0!le0@host PRIVMSG #chan :%ping")
	h.srv.ExpectNone("PRIVMSG", quiet)
}

func TestQuotesPersistInFileStore(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "le0.store.toml")
	h := startBot(t, func(cfg *Config) { cfg.StorePath = path })

	h.srv.Send(":alice!a@host PRIVMSG #chan :%addquote never trust a bot")
	require.Equal(t, "PRIVMSG #chan :Added quote #1", h.reply(t))
	h.cancel()
	require.NoError(t, h.wait(t))

	f, err := store.OpenFile(path)
	require.NoError(t, err)
	keys, err := f.List("quote/")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	seen, err := f.List("seen/")
	require.NoError(t, err)
	require.Equal(t, []string{"seen/alice"}, seen, "seen records are flushed on shutdown")
}

func TestStatusSnapshot(t *testing.T) {
	testlog.Start(t)
	h := startBot(t, nil)
	h.srv.Send(":le0!le0@host JOIN #chan")

	deadline := time.Now().Add(irctest.DefaultWait)
	for len(h.bot.Session().Channels()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	st := h.bot.Status()
	require.Equal(t, "registered", st.State)
	require.Equal(t, []string{"#chan"}, st.Channels)
	require.Equal(t, 1, st.Admins)
	require.Contains(t, st.Commands, "roll")
	require.Contains(t, st.Commands, "quit")

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Equal(t, "le0", body["nick"])
	require.NotEmpty(t, body["session_id"])
	require.NotNil(t, body["commands"])
}

func TestNewRejectsBadConfig(t *testing.T) {
	testlog.Start(t)
	_, err := New(Config{
		Session: irc.Config{Address: "127.0.0.1:6667", Identity: irc.Identity{Nick: "le0"}},
		Admins:  []string{"not-a-mask"},
	})
	require.Error(t, err)

	_, err = New(Config{Session: irc.Config{Identity: irc.Identity{Nick: "le0"}}})
	require.ErrorIs(t, err, irc.ErrAddressRequired)
}
