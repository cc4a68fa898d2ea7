package config

import (
	"github.com/danmuck/le0/internal/bot"
	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/irc"
	"github.com/danmuck/le0/internal/protocol/session"
	"github.com/danmuck/le0/internal/ratelimit"
)

func Identity(cfg BotConfig) irc.Identity {
	return irc.Identity{
		Nick:                cfg.Nick,
		User:                cfg.User,
		RealName:            cfg.RealName,
		AltNicks:            append([]string(nil), cfg.AltNicks...),
		Channels:            append([]string(nil), cfg.Channels...),
		ServerPassword:      cfg.Password,
		SASLUser:            cfg.SASL.Username,
		SASLPassword:        cfg.SASL.Password,
		NickServPassword:    cfg.NickServ.Password,
		NickServWaitConfirm: cfg.NickServ.WaitConfirm,
		IdentifyDelay:       cfg.NickServ.IdentifyDelay,
	}
}

func Transport(cfg BotConfig) session.Config {
	out := session.DefaultConfig()
	if cfg.TLS {
		out.TLS = session.TLSConfig{
			Enabled:            true,
			InsecureSkipVerify: !cfg.TLSVerify,
			CAFile:             cfg.TLSCAFile,
		}
	}
	out.Pacing.Interval = cfg.Pacing.Interval
	return out
}

// Bot maps the file configuration onto the runtime wiring config.
func Bot(cfg BotConfig) bot.Config {
	return bot.Config{
		Session: irc.Config{
			Address:   cfg.Address(),
			Identity:  Identity(cfg),
			Transport: Transport(cfg),
		},
		Dispatch: dispatch.Config{
			Prefix:        cfg.Prefix,
			MaxReplyLines: cfg.Pacing.MaxReplyLines,
			MaxLineBytes:  cfg.Pacing.MaxLineBytes,
		},
		RateLimit: ratelimit.Config{
			Cooldown: cfg.Cooldown,
		},
		Admins:      append([]string(nil), cfg.Admins...),
		StorePath:   cfg.StorePath,
		StatusAddr:  cfg.StatusAddr,
		CorsOrigins: append([]string(nil), cfg.CorsOrigins...),
	}
}
