// Package guard combines the rate limiter and the bot scorer into the single
// check a form submission goes through.
package guard

import (
	"context"

	"github.com/lumenforge/lumenforge-web/internal/botguard"
	"github.com/lumenforge/lumenforge-web/internal/ratelimit"
)

type Decision int

const (
	Accept Decision = iota
	RateLimited
	Bot
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accepted"
	case RateLimited:
		return "rate_limited"
	case Bot:
		return "bot"
	default:
		return "unknown"
	}
}

// Request is one submission as seen by the guard.
type Request struct {
	// Key is the rate limit identifier, normally the client IP.
	Key       string
	Form      map[string]string
	UserAgent string
}

// Verdict carries the decision and the results it was based on. Bot is the
// zero value when the request was rate limited.
type Verdict struct {
	Decision Decision
	Limit    ratelimit.Result
	Bot      botguard.Result
	// Rules lists the scoring rules that fired.
	Rules []string
}

// Limiter is the subset of *ratelimit.Limiter the guard uses.
type Limiter interface {
	CheckLimit(ctx context.Context, identifier string) ratelimit.Result
}

type Guard struct {
	limiter Limiter
	onBot   func(v Verdict)
}

type Option func(*Guard)

// WithOnBot is called for every submission classified as a bot.
func WithOnBot(fn func(v Verdict)) Option {
	return func(g *Guard) { g.onBot = fn }
}

func New(l Limiter, opts ...Option) *Guard {
	g := &Guard{limiter: l}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Check counts the request against the limiter and, if it is within the
// limit, scores it. A rate limited request is not scored.
func (g *Guard) Check(ctx context.Context, req Request) Verdict {
	v := Verdict{Limit: g.limiter.CheckLimit(ctx, req.Key)}
	if !v.Limit.Allowed {
		v.Decision = RateLimited
		return v
	}

	v.Bot, v.Rules = botguard.Score(botguard.Submission{Form: req.Form, UserAgent: req.UserAgent})
	if v.Bot.IsBot {
		v.Decision = Bot
		if g.onBot != nil {
			g.onBot(v)
		}
	}
	return v
}
