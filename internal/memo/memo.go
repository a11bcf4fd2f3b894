// Package memo implements cache-aside memoization of pure external calls
// (translations, profile lookups) on top of a shared key-value store.
package memo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	logx "slacktranslator/pkg/logx"
)

// DefaultTTL bounds staleness of every memoized value.
const DefaultTTL = 24 * time.Hour

// Store is the key-value service backing the memoizer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Memoizer wraps computations with a get-or-compute cache.
//
// Identical keys computed concurrently inside this process share one upstream
// call. Across processes duplicates are possible and tolerated.
type Memoizer struct {
	store  Store
	prefix string
	ttl    time.Duration
	log    logx.Logger
	group  singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

func New(store Store, prefix string, log logx.Logger) *Memoizer {
	return &Memoizer{store: store, prefix: prefix, ttl: DefaultTTL, log: log}
}

// Key returns the deterministic cache key for (op, args).
func (m *Memoizer) Key(op string, args ...any) (string, error) {
	b, err := json.Marshal(append([]any{op}, args...))
	if err != nil {
		return "", fmt.Errorf("memo key %s: %w", op, err)
	}
	sum := sha1.Sum(b)
	key := op + ":" + hex.EncodeToString(sum[:])
	if m.prefix != "" {
		key = m.prefix + ":memo:" + key
	}
	return key, nil
}

// Do returns the cached value for (op, args) or runs compute and stores its
// result. A compute error is returned as-is and nothing is stored.
func (m *Memoizer) Do(ctx context.Context, op string, args []any, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	key, err := m.Key(op, args...)
	if err != nil {
		return nil, err
	}

	b, ok, err := m.store.Get(ctx, key)
	if err != nil {
		// A broken cache must not break the pipeline; treat it as a miss.
		m.log.Warn("memo read failed", logx.String("op", op), logx.Err(err))
	}
	if ok {
		m.hits.Add(1)
		return b, nil
	}
	m.misses.Add(1)

	v, err, shared := m.group.Do(key, func() (any, error) {
		out, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.store.Set(ctx, key, out, m.ttl); err != nil {
			m.log.Warn("memo write failed", logx.String("op", op), logx.Err(err))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug("memo call coalesced", logx.String("op", op))
	}
	return v.([]byte), nil
}

// Stats reports hit/miss counters since start.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

func (m *Memoizer) Stats() Stats {
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
}

// Call is the typed form of Do; values are stored as JSON.
func Call[T any](ctx context.Context, m *Memoizer, op string, args []any, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b, err := m.Do(ctx, op, args, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, fmt.Errorf("memo decode %s: %w", op, err)
	}
	return out, nil
}
