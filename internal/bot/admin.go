package bot

import (
	"context"
	"strings"

	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/irc"
	"github.com/danmuck/le0/internal/protocol"
	"github.com/danmuck/le0/internal/protocol/frame"
	"github.com/danmuck/le0/internal/sanitize"
	"github.com/rs/zerolog/log"
)

const DefaultQuitReason = "shutting down"

func (b *Bot) adminCommands() []dispatch.Command {
	return []dispatch.Command{
		{Name: "quit", Usage: "quit [message]", Help: "disconnect", Admin: true, Handler: dispatch.HandlerFunc(b.quit)},
		{Name: "join", Usage: "join <#channel> [key]", Help: "join a channel", Admin: true, Handler: dispatch.HandlerFunc(b.join)},
		{Name: "part", Usage: "part [#channel] [message]", Help: "leave a channel", Admin: true, Handler: dispatch.HandlerFunc(b.part)},
		{Name: "nick", Usage: "nick <newnick>", Help: "change nick", Admin: true, Handler: dispatch.HandlerFunc(b.nick)},
		{Name: "kick", Usage: "kick <#channel> <nick> [reason]", Help: "kick a user", Admin: true, Handler: dispatch.HandlerFunc(b.kick)},
		{Name: "say", Usage: "say <target> <text>", Help: "speak as the bot", Admin: true, Handler: dispatch.HandlerFunc(b.say)},
		{Name: "raw", Usage: "raw <line>", Help: "send a protocol line", Admin: true, Handler: dispatch.HandlerFunc(b.raw)},
	}
}

func (b *Bot) quit(_ context.Context, req *dispatch.Request) []string {
	b.quitFor(req, req.Args)
	return nil
}

func (b *Bot) quitFor(req *dispatch.Request, reason string) {
	reason = strings.TrimSpace(sanitize.Text(reason, 0))
	if reason == "" {
		reason = DefaultQuitReason
	}
	log.Info().Str("by", req.Sender.String()).Str("reason", reason).Msg("bot.Bot.quit")
	if err := b.session.Quit(reason); err != nil {
		log.Warn().Err(err).Msg("bot.Bot.quit failed")
	}
}

func (b *Bot) join(_ context.Context, req *dispatch.Request) []string {
	args := req.Fields()
	if len(args) == 0 || len(args) > 2 || !protocol.IsChannel(args[0]) {
		return b.usage(req)
	}
	return b.sendServer(req, protocol.CmdJoin, args...)
}

func (b *Bot) part(_ context.Context, req *dispatch.Request) []string {
	channel, rest := cutWord(req.Args)
	if !protocol.IsChannel(channel) {
		// bare "part" or "part <message>" leaves the channel it was said in
		if !protocol.IsChannel(req.Target) {
			return b.usage(req)
		}
		channel, rest = req.Target, req.Args
	}
	if rest == "" {
		return b.sendServer(req, protocol.CmdPart, channel)
	}
	return b.sendServer(req, protocol.CmdPart, channel, rest)
}

func (b *Bot) nick(_ context.Context, req *dispatch.Request) []string {
	args := req.Fields()
	if len(args) != 1 || protocol.IsChannel(args[0]) {
		return b.usage(req)
	}
	return b.sendServer(req, protocol.CmdNick, args[0])
}

func (b *Bot) kick(_ context.Context, req *dispatch.Request) []string {
	channel, rest := cutWord(req.Args)
	target, reason := cutWord(rest)
	if !protocol.IsChannel(channel) || target == "" {
		return b.usage(req)
	}
	if reason == "" {
		return b.sendServer(req, protocol.CmdKick, channel, target)
	}
	return b.sendServer(req, protocol.CmdKick, channel, target, reason)
}

func (b *Bot) say(_ context.Context, req *dispatch.Request) []string {
	target, text := cutWord(req.Args)
	if target == "" || text == "" {
		return b.usage(req)
	}
	line, err := sanitize.Line(text, b.cfg.Dispatch.MaxLineBytes)
	if err != nil {
		return b.usage(req)
	}
	if err := b.session.Enqueue(target, protocol.CmdPrivmsg, target, line); err != nil {
		return []string{"say failed: " + err.Error()}
	}
	return nil
}

// raw sends one protocol line behind the pacer. QUIT goes through the normal
// quit path so the session ends cleanly.
func (b *Bot) raw(_ context.Context, req *dispatch.Request) []string {
	line := strings.TrimLeft(req.Args, " ")
	if line == "" {
		return b.usage(req)
	}
	// inbound arguments arrive with a leading ':' escaped by a space
	if strings.HasPrefix(line, ":") {
		return []string{"raw rejected: prefix not allowed"}
	}
	msg, err := frame.Decode([]byte(line))
	if err != nil {
		return []string{"raw rejected: " + err.Error()}
	}
	if msg.Source != "" {
		return []string{"raw rejected: prefix not allowed"}
	}
	if msg.Command == protocol.CmdQuit {
		b.quitFor(req, msg.Trailing())
		return nil
	}
	return b.sendServer(req, msg.Command, msg.Params...)
}

func (b *Bot) sendServer(req *dispatch.Request, command string, params ...string) []string {
	log.Info().Str("by", req.Sender.String()).Str("command", command).Strs("params", params).Msg("bot.Bot admin action")
	if err := b.session.Enqueue(irc.ServerTarget, command, params...); err != nil {
		return []string{req.Command + " failed: " + err.Error()}
	}
	return nil
}

func (b *Bot) usage(req *dispatch.Request) []string {
	if cmd, ok := b.dispatcher.Registry().Lookup(req.Command); ok {
		return []string{"usage: " + b.cfg.Dispatch.Prefix + cmd.Usage}
	}
	return []string{"usage: " + b.cfg.Dispatch.Prefix + req.Command}
}

func cutWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	word, rest, _ := strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}
