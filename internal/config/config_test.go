package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/le0/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "le0.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadBotConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadBotConfig(writeConfig(t, `server = "irc.example.net"`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Address() != "irc.example.net:6667" {
		t.Fatalf("unexpected address: %q", cfg.Address())
	}
	if cfg.Nick != "le0" || cfg.Prefix != "%" {
		t.Fatalf("unexpected identity defaults: nick=%q prefix=%q", cfg.Nick, cfg.Prefix)
	}
	if cfg.Cooldown != 2*time.Second {
		t.Fatalf("unexpected cooldown: %v", cfg.Cooldown)
	}
	if cfg.Pacing.Interval != 500*time.Millisecond || cfg.Pacing.MaxReplyLines != 8 || cfg.Pacing.MaxLineBytes != 400 {
		t.Fatalf("unexpected pacing: %+v", cfg.Pacing)
	}
	if cfg.NickServ.IdentifyDelay != 2*time.Second || cfg.NickServ.WaitConfirm {
		t.Fatalf("unexpected nickserv defaults: %+v", cfg.NickServ)
	}
	if cfg.TLS || !cfg.TLSVerify {
		t.Fatalf("unexpected tls defaults: tls=%v verify=%v", cfg.TLS, cfg.TLSVerify)
	}
}

func TestLoadBotConfigOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadBotConfig(writeConfig(t, `
server = " irc.example.net "
tls = true
tls_verify = false
nick = "hunter"
user = "hunt"
realname = "the hunter"
alt_nicks = ["hunter_", " "]
channels = ["#a,#b", "#c", "#A"]
prefix = "!"
admins = ["root!*@admin.net"]
nickserv_password = "ns"
nickserv_wait_confirm = true
identify_delay = "5s"
sasl_username = "hunter"
sasl_password = "pw"
cooldown = "3s"
pace_interval = "250ms"
max_reply_lines = 4
max_line_bytes = 300
status_addr = "127.0.0.1:9300"
cors_origins = ["http://localhost:5173"]
store_path = "data.toml"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Address() != "irc.example.net:6697" {
		t.Fatalf("tls should default to 6697, got %q", cfg.Address())
	}
	if cfg.TLSVerify {
		t.Fatalf("expected tls_verify override")
	}
	if strings.Join(cfg.Channels, " ") != "#a #b #c" {
		t.Fatalf("unexpected channels: %v", cfg.Channels)
	}
	if len(cfg.AltNicks) != 1 || cfg.AltNicks[0] != "hunter_" {
		t.Fatalf("unexpected alt nicks: %v", cfg.AltNicks)
	}
	if cfg.Prefix != "!" || cfg.Cooldown != 3*time.Second {
		t.Fatalf("unexpected prefix/cooldown: %q %v", cfg.Prefix, cfg.Cooldown)
	}
	if cfg.Pacing.Interval != 250*time.Millisecond || cfg.Pacing.MaxReplyLines != 4 || cfg.Pacing.MaxLineBytes != 300 {
		t.Fatalf("unexpected pacing: %+v", cfg.Pacing)
	}
	if !cfg.NickServ.WaitConfirm || cfg.NickServ.IdentifyDelay != 5*time.Second || cfg.NickServ.Password != "ns" {
		t.Fatalf("unexpected nickserv: %+v", cfg.NickServ)
	}
	if cfg.SASL.Username != "hunter" || cfg.SASL.Password != "pw" {
		t.Fatalf("unexpected sasl: %+v", cfg.SASL)
	}
	if cfg.StatusAddr != "127.0.0.1:9300" || cfg.StorePath != "data.toml" {
		t.Fatalf("unexpected status/store: %q %q", cfg.StatusAddr, cfg.StorePath)
	}
}

func TestExplicitPortWinsOverTLSDefault(t *testing.T) {
	testlog.Start(t)
	cfg, err := Decode("server = \"irc.example.net\"\ntls = true\nport = 7000\n")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing server", body: `nick = "le0"`, want: "missing server"},
		{name: "empty nick", body: "server = \"s\"\nnick = \"\"", want: "missing nick"},
		{name: "empty prefix", body: "server = \"s\"\nprefix = \"\"", want: "empty command prefix"},
		{name: "bad duration", body: "server = \"s\"\ncooldown = \"soon\"", want: "parse cooldown"},
		{name: "negative duration", body: "server = \"s\"\npace_interval = \"-1s\"", want: "pace_interval"},
		{name: "sasl without password", body: "server = \"s\"\nsasl_username = \"le0\"", want: "sasl_username set without sasl_password"},
		{name: "invalid admin mask", body: "server = \"s\"\nadmins = [\"root\"]", want: "admins"},
		{name: "bad channel", body: "server = \"s\"\nchannels = [\"lobby\"]", want: "channel"},
		{name: "ca without tls", body: "server = \"s\"\ntls_ca_file = \"ca.pem\"", want: "tls options"},
		{name: "unknown key", body: "server = \"s\"\nsevrer = \"x\"", want: "unknown key"},
		{name: "bad port", body: "server = \"s\"\nport = 70000", want: "port"},
		{name: "bad status addr", body: "server = \"s\"\nstatus_addr = \"9300\"", want: "status_addr"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.body)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadBotConfigMissingFile(t *testing.T) {
	testlog.Start(t)
	_, err := LoadBotConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func TestTemplateIsValid(t *testing.T) {
	testlog.Start(t)
	cfg, err := Decode(Template())
	if err != nil {
		t.Fatalf("template does not decode: %v", err)
	}
	if !cfg.TLS || cfg.Port != DefaultTLSPort {
		t.Fatalf("unexpected template transport: tls=%v port=%d", cfg.TLS, cfg.Port)
	}

	path := filepath.Join(t.TempDir(), "le0.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
}

func TestBotConversion(t *testing.T) {
	testlog.Start(t)
	cfg, err := Decode(`
server = "irc.example.net"
tls = true
tls_verify = false
nick = "le0"
channels = ["#a"]
sasl_username = "le0"
sasl_password = "pw"
cooldown = "1s"
max_reply_lines = 3
`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := Bot(cfg)
	if out.Session.Address != "irc.example.net:6697" {
		t.Fatalf("unexpected address: %q", out.Session.Address)
	}
	if !out.Session.Transport.TLS.Enabled || !out.Session.Transport.TLS.InsecureSkipVerify {
		t.Fatalf("unexpected tls: %+v", out.Session.Transport.TLS)
	}
	if !out.Session.Identity.SASLEnabled() {
		t.Fatalf("expected sasl identity")
	}
	if out.Dispatch.Prefix != "%" || out.Dispatch.MaxReplyLines != 3 {
		t.Fatalf("unexpected dispatch config: %+v", out.Dispatch)
	}
	if out.Session.Transport.Pacing.Interval != 500*time.Millisecond {
		t.Fatalf("unexpected pacing: %+v", out.Session.Transport.Pacing)
	}
	if out.RateLimit.Cooldown != time.Second {
		t.Fatalf("unexpected cooldown: %v", out.RateLimit.Cooldown)
	}

	plain := Transport(DefaultBotConfig())
	if plain.TLS.Enabled || plain.TLS.InsecureSkipVerify {
		t.Fatalf("plain transport must not carry tls options: %+v", plain.TLS)
	}
}
