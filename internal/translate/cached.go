package translate

import (
	"context"

	"slacktranslator/internal/memo"
)

// OpTranslate is the memo operation name for translations.
const OpTranslate = "translate"

// cached memoizes a Provider on (engine, text, from, to).
type cached struct {
	p Provider
	m *memo.Memoizer
}

// Cached wraps p so repeated identical requests skip the upstream call.
func Cached(p Provider, m *memo.Memoizer) Provider {
	if m == nil {
		return p
	}
	return &cached{p: p, m: m}
}

func (c *cached) Name() string { return c.p.Name() }

func (c *cached) Translate(ctx context.Context, text, from, to string) (string, error) {
	from = EffectiveSource(Engine(c.p.Name()), from)
	args := []any{c.p.Name(), text, from, to}
	return memo.Call(ctx, c.m, OpTranslate, args, func(ctx context.Context) (string, error) {
		return c.p.Translate(ctx, text, from, to)
	})
}

// EffectiveSource returns the source language actually sent upstream.
func EffectiveSource(e Engine, from string) string {
	if e == EngineGoogle {
		return "auto"
	}
	return from
}
