package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/le0/internal/auth"
)

var ErrInvalid = errors.New("config: invalid")

// BotConfig is the resolved bot configuration. Durations are parsed from Go
// duration strings in the file.
type BotConfig struct {
	Server      string
	Port        int
	TLS         bool
	TLSVerify   bool
	TLSCAFile   string
	Nick        string
	User        string
	RealName    string
	AltNicks    []string
	Channels    []string
	Prefix      string
	Admins      []string
	Password    string
	NickServ    NickServConfig
	SASL        SASLConfig
	Cooldown    time.Duration
	Pacing      PacingConfig
	StatusAddr  string
	CorsOrigins []string
	StorePath   string
}

type SASLConfig struct {
	Username string
	Password string
}

type PacingConfig struct {
	Interval      time.Duration
	MaxReplyLines int
	MaxLineBytes  int
}

type NickServConfig struct {
	Password      string
	WaitConfirm   bool
	IdentifyDelay time.Duration
}

// fileConfig mirrors the on-disk document.
type fileConfig struct {
	Server              string   `toml:"server"`
	Port                int      `toml:"port"`
	TLS                 bool     `toml:"tls"`
	TLSVerify           bool     `toml:"tls_verify"`
	TLSCAFile           string   `toml:"tls_ca_file"`
	Nick                string   `toml:"nick"`
	User                string   `toml:"user"`
	RealName            string   `toml:"realname"`
	AltNicks            []string `toml:"alt_nicks"`
	Channels            []string `toml:"channels"`
	Prefix              string   `toml:"prefix"`
	Admins              []string `toml:"admins"`
	Password            string   `toml:"password"`
	NickServPassword    string   `toml:"nickserv_password"`
	NickServWaitConfirm bool     `toml:"nickserv_wait_confirm"`
	SASLUsername        string   `toml:"sasl_username"`
	SASLPassword        string   `toml:"sasl_password"`
	Cooldown            string   `toml:"cooldown"`
	PaceInterval        string   `toml:"pace_interval"`
	MaxReplyLines       int      `toml:"max_reply_lines"`
	MaxLineBytes        int      `toml:"max_line_bytes"`
	IdentifyDelay       string   `toml:"identify_delay"`
	StatusAddr          string   `toml:"status_addr"`
	CorsOrigins         []string `toml:"cors_origins"`
	StorePath           string   `toml:"store_path"`
}

const (
	DefaultPort    = 6667
	DefaultTLSPort = 6697
)

func DefaultBotConfig() BotConfig {
	return BotConfig{
		Port:      DefaultPort,
		TLSVerify: true,
		Nick:      "le0",
		Prefix:    "%",
		NickServ: NickServConfig{
			IdentifyDelay: 2 * time.Second,
		},
		Cooldown: 2 * time.Second,
		Pacing: PacingConfig{
			Interval:      500 * time.Millisecond,
			MaxReplyLines: 8,
			MaxLineBytes:  400,
		},
	}
}

// LoadBotConfig reads path and layers every key it defines over
// DefaultBotConfig. The result is validated.
func LoadBotConfig(path string) (BotConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return BotConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := resolve(raw, meta)
	if err != nil {
		return BotConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a TOML document the same way LoadBotConfig parses a file.
func Decode(data string) (BotConfig, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return BotConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	return resolve(raw, meta)
}

func resolve(raw fileConfig, meta toml.MetaData) (BotConfig, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return BotConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	cfg, err := raw.apply(DefaultBotConfig(), meta)
	if err != nil {
		return BotConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return BotConfig{}, err
	}
	return cfg, nil
}

func (raw fileConfig) apply(cfg BotConfig, meta toml.MetaData) (BotConfig, error) {
	if meta.IsDefined("server") {
		cfg.Server = strings.TrimSpace(raw.Server)
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS
		if cfg.TLS && !meta.IsDefined("port") {
			cfg.Port = DefaultTLSPort
		}
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("tls_verify") {
		cfg.TLSVerify = raw.TLSVerify
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.TLSCAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("nick") {
		cfg.Nick = strings.TrimSpace(raw.Nick)
	}
	if meta.IsDefined("user") {
		cfg.User = strings.TrimSpace(raw.User)
	}
	if meta.IsDefined("realname") {
		cfg.RealName = strings.TrimSpace(raw.RealName)
	}
	if meta.IsDefined("alt_nicks") {
		cfg.AltNicks = normalizeList(raw.AltNicks)
	}
	if meta.IsDefined("channels") {
		cfg.Channels = SplitChannels(raw.Channels)
	}
	if meta.IsDefined("prefix") {
		cfg.Prefix = raw.Prefix
	}
	if meta.IsDefined("admins") {
		cfg.Admins = normalizeList(raw.Admins)
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("nickserv_password") {
		cfg.NickServ.Password = raw.NickServPassword
	}
	if meta.IsDefined("nickserv_wait_confirm") {
		cfg.NickServ.WaitConfirm = raw.NickServWaitConfirm
	}
	if meta.IsDefined("sasl_username") {
		cfg.SASL.Username = strings.TrimSpace(raw.SASLUsername)
	}
	if meta.IsDefined("sasl_password") {
		cfg.SASL.Password = raw.SASLPassword
	}
	if meta.IsDefined("cooldown") {
		d, err := parseDuration("cooldown", raw.Cooldown)
		if err != nil {
			return BotConfig{}, err
		}
		cfg.Cooldown = d
	}
	if meta.IsDefined("pace_interval") {
		d, err := parseDuration("pace_interval", raw.PaceInterval)
		if err != nil {
			return BotConfig{}, err
		}
		cfg.Pacing.Interval = d
	}
	if meta.IsDefined("identify_delay") {
		d, err := parseDuration("identify_delay", raw.IdentifyDelay)
		if err != nil {
			return BotConfig{}, err
		}
		cfg.NickServ.IdentifyDelay = d
	}
	if meta.IsDefined("max_reply_lines") {
		cfg.Pacing.MaxReplyLines = raw.MaxReplyLines
	}
	if meta.IsDefined("max_line_bytes") {
		cfg.Pacing.MaxLineBytes = raw.MaxLineBytes
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("store_path") {
		cfg.StorePath = strings.TrimSpace(raw.StorePath)
	}
	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalid, key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalid, key)
	}
	return d, nil
}

// Validate reports the first problem that would stop the bot from starting.
func Validate(cfg BotConfig) error {
	if cfg.Server == "" {
		return fmt.Errorf("%w: missing server", ErrInvalid)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, cfg.Port)
	}
	if cfg.Nick == "" {
		return fmt.Errorf("%w: missing nick", ErrInvalid)
	}
	if strings.ContainsAny(cfg.Nick, " ,*?!@:\r\n") {
		return fmt.Errorf("%w: nick %q contains reserved characters", ErrInvalid, cfg.Nick)
	}
	if strings.TrimSpace(cfg.Prefix) == "" || strings.ContainsAny(cfg.Prefix, " \t\r\n") {
		return fmt.Errorf("%w: empty command prefix", ErrInvalid)
	}
	if cfg.SASL.Username != "" && cfg.SASL.Password == "" {
		return fmt.Errorf("%w: sasl_username set without sasl_password", ErrInvalid)
	}
	if cfg.SASL.Username == "" && cfg.SASL.Password != "" {
		return fmt.Errorf("%w: sasl_password set without sasl_username", ErrInvalid)
	}
	if !cfg.TLS && (cfg.TLSCAFile != "" || !cfg.TLSVerify) {
		return fmt.Errorf("%w: tls options set without tls enabled", ErrInvalid)
	}
	for _, ch := range cfg.Channels {
		if !isChannel(ch) {
			return fmt.Errorf("%w: channel %q", ErrInvalid, ch)
		}
	}
	if _, err := auth.NewHostmaskSet(cfg.Admins); err != nil {
		return fmt.Errorf("%w: admins: %w", ErrInvalid, err)
	}
	if cfg.Pacing.MaxReplyLines <= 0 {
		return fmt.Errorf("%w: max_reply_lines must be positive", ErrInvalid)
	}
	if cfg.Pacing.MaxLineBytes < 16 {
		return fmt.Errorf("%w: max_line_bytes must be at least 16", ErrInvalid)
	}
	if cfg.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.StatusAddr); err != nil {
			return fmt.Errorf("%w: status_addr %q: %v", ErrInvalid, cfg.StatusAddr, err)
		}
	}
	return nil
}

// Address is the host:port the bot dials.
func (c BotConfig) Address() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

// SplitChannels flattens entries that may hold comma-joined channel lists and
// drops blanks and duplicates.
func SplitChannels(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		for _, ch := range strings.Split(entry, ",") {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				continue
			}
			key := strings.ToLower(ch)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ch)
		}
	}
	return out
}

func isChannel(name string) bool {
	if len(name) < 2 || strings.ContainsAny(name, " ,\x07\r\n") {
		return false
	}
	switch name[0] {
	case '#', '&', '+', '!':
		return true
	}
	return false
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
