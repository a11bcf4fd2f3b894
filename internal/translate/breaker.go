package translate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerConfig controls a Breaker. Zero values take defaults; a negative
// Trip disables the breaker.
type BreakerConfig struct {
	Trip       int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	ResetAfter time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Trip == 0 {
		c.Trip = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 5 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Minute
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.ResetAfter <= 0 {
		c.ResetAfter = 5 * time.Minute
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker around a Provider.
//
// After Trip consecutive failures the circuit opens for BaseDelay, doubling
// per further failure up to MaxDelay. A success closes it. Failures older
// than ResetAfter are forgotten.
type Breaker struct {
	p   Provider
	cfg BreakerConfig
	now func() time.Time

	mu          sync.Mutex
	fails       int
	openUntil   time.Time
	lastFailure time.Time
	rejected    uint64
}

func Guarded(p Provider, cfg BreakerConfig) *Breaker {
	return &Breaker{p: p, cfg: cfg.withDefaults(), now: time.Now}
}

func (b *Breaker) Name() string { return b.p.Name() }

func (b *Breaker) Translate(ctx context.Context, text, from, to string) (string, error) {
	if b.cfg.Trip < 0 {
		return b.p.Translate(ctx, text, from, to)
	}
	if until, open := b.isOpen(); open {
		return "", &ProviderError{Engine: b.p.Name(), Err: errOpenUntil{until}}
	}
	out, err := b.p.Translate(ctx, text, from, to)
	if errors.Is(err, context.Canceled) {
		return out, err
	}
	b.record(err)
	return out, err
}

type errOpenUntil struct{ until time.Time }

func (e errOpenUntil) Error() string {
	return ErrCircuitOpen.Error() + " until " + e.until.UTC().Format(time.RFC3339)
}

func (e errOpenUntil) Is(target error) bool { return target == ErrCircuitOpen }

func (b *Breaker) isOpen() (time.Time, bool) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire(now)
	if !b.openUntil.IsZero() && now.Before(b.openUntil) {
		b.rejected++
		return b.openUntil, true
	}
	return time.Time{}, false
}

func (b *Breaker) record(err error) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire(now)

	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		b.lastFailure = time.Time{}
		return
	}
	b.fails++
	b.lastFailure = now
	if b.fails < b.cfg.Trip {
		return
	}

	d := b.cfg.BaseDelay
	for i := 0; i < b.fails-b.cfg.Trip && d < b.cfg.MaxDelay; i++ {
		d *= 2
	}
	b.openUntil = now.Add(min(d, b.cfg.MaxDelay))
}

// expire forgets a failure streak that went quiet. b.mu must be held.
func (b *Breaker) expire(now time.Time) {
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.ResetAfter {
		b.fails = 0
		b.openUntil = time.Time{}
		b.lastFailure = time.Time{}
	}
}

// BreakerStats is a point-in-time view of a Breaker.
type BreakerStats struct {
	Enabled   bool      `json:"enabled"`
	Fails     int       `json:"consecutive_failures"`
	Open      bool      `json:"open"`
	OpenUntil time.Time `json:"open_until,omitempty"`
	Rejected  uint64    `json:"rejected"`
}

func (b *Breaker) Stats() BreakerStats {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BreakerStats{Enabled: b.cfg.Trip >= 0, Fails: b.fails, Rejected: b.rejected}
	if !b.openUntil.IsZero() && now.Before(b.openUntil) {
		st.Open = true
		st.OpenUntil = b.openUntil
	}
	return st
}
