package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ChatSink posts one preformatted line to the ops channel.
type ChatSink interface {
	PostLog(ctx context.Context, text string) error
}

// Slack rejects messages above 40k characters; stay well under it.
const (
	maxChatLen  = 3500
	maxValueLen = 600
)

const skipChatField = "chat_skip"

var skipChatMarker = []byte(`"` + skipChatField + `":true`)

// chatMirror is a zerolog.LevelWriter that queues qualifying lines and posts
// them from one goroutine. Writes never block the caller.
type chatMirror struct {
	queue chan string

	mu       sync.Mutex
	sink     ChatSink
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

func newChatMirror(sink ChatSink) *chatMirror {
	return &chatMirror{queue: make(chan string, 128), sink: sink, minLevel: LevelWarn}
}

func (c *chatMirror) setSink(sink ChatSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *chatMirror) configure(cfg ChatConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minLevel = parseLevel(cfg.MinLevel, LevelWarn)
	rps := max(1, cfg.RatePerSec)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Enabled && c.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.done = make(chan struct{})
		go c.run(ctx, c.done)
	}
}

func (c *chatMirror) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *chatMirror) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-c.queue:
			c.mu.Lock()
			sink := c.sink
			c.mu.Unlock()
			if sink == nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = sink.PostLog(pctx, text)
			cancel()
		}
	}
}

func (c *chatMirror) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.NoLevel, p) }

func (c *chatMirror) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	ok := c.sink != nil && c.limiter != nil && level != zerolog.NoLevel && level >= c.minLevel
	lim := c.limiter
	c.mu.Unlock()

	if !ok || bytes.Contains(p, skipChatMarker) || !lim.Allow() {
		return len(p), nil
	}
	if text := formatChatLine(p); text != "" {
		select {
		case c.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON line as Slack mrkdwn: the level and
// message on the first line, the remaining fields sorted in a code block.
func formatChatLine(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return clip(raw, maxChatLen)
	}

	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "*[%s]* ", strings.ToUpper(lvl))
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
		default:
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		b.WriteString("\n```")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s=%s", k, clip(fmt.Sprint(m[k]), maxValueLen))
		}
		b.WriteString("```")
	}
	return clip(b.String(), maxChatLen)
}

// clip shortens s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
