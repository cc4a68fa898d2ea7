package handlers

import (
	"context"
	"strings"

	"github.com/danmuck/le0/internal/dispatch"
	"github.com/danmuck/le0/internal/sanitize"
)

type Coin struct {
	Rand Rand
}

func (c Coin) Handle(context.Context, *dispatch.Request) []string {
	if c.Rand.IntN(2) == 0 {
		return []string{sanitize.Bolden(sanitize.Colorize("Heads", sanitize.Yellow))}
	}
	return []string{sanitize.Bolden(sanitize.Colorize("Tails", sanitize.LightGrey))}
}

var eightBallAnswers = []string{
	"It is certain", "It is decidedly so", "Without a doubt", "Yes definitely",
	"You may rely on it", "As I see it, yes", "Most likely", "Outlook good",
	"Yes", "Signs point to yes", "Reply hazy, try again", "Ask again later",
	"Better not tell you now", "Cannot predict now", "Concentrate and ask again",
	"Don't count on it", "My reply is no", "My sources say no", "Outlook not so good",
	"Very doubtful",
}

type EightBall struct {
	Rand Rand
}

func (e EightBall) Handle(_ context.Context, req *dispatch.Request) []string {
	if strings.TrimSpace(req.Args) == "" {
		return []string{failure("Ask me a question!")}
	}
	answer := eightBallAnswers[e.Rand.IntN(len(eightBallAnswers))]
	return []string{sanitize.Bolden(sanitize.Colorize(answer, sanitize.Purple))}
}
