package config

// Config holds the optional tunables file (JSON or YAML). Everything here has
// a working default, so the file may be absent. Required settings and secrets
// come from the environment (see Settings).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`
	Worker   WorkerConfig   `json:"worker"`
	Cache    CacheConfig    `json:"cache"`
	Outbound OutboundConfig `json:"outbound"`
	Journal  JournalConfig  `json:"journal"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors warnings into the Slack ops channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HTTPConfig controls the ingress server. The listen port comes from PORT.
type HTTPConfig struct {
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// WorkerConfig controls the deferred-mode consumer pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - block_timeout: "5s"
//   - visibility_timeout: "5m"
//   - reap_schedule: "@every 1m"
//   - history_size: 200
//   - stop_timeout: "30s"
type WorkerConfig struct {
	Workers           int    `json:"workers,omitempty"`
	BlockTimeout      string `json:"block_timeout,omitempty"`
	VisibilityTimeout string `json:"visibility_timeout,omitempty"`
	ReapSchedule      string `json:"reap_schedule,omitempty"`
	HistorySize       int    `json:"history_size,omitempty"`
	StopTimeout       string `json:"stop_timeout,omitempty"`
}

type CacheConfig struct {
	// Prefix namespaces every key in Redis (memo entries and queue lists).
	Prefix string `json:"prefix,omitempty"`
}

// OutboundConfig controls calls to providers and Slack.
type OutboundConfig struct {
	Timeout           string `json:"timeout,omitempty"`
	WebhookRatePerSec int    `json:"webhook_rate_per_sec,omitempty"`
	WebhookBurst      int    `json:"webhook_burst,omitempty"`

	// Breaker guards the translation provider. breaker_trip < 0 disables it.
	BreakerTrip       int    `json:"breaker_trip,omitempty"`
	BreakerBaseDelay  string `json:"breaker_base_delay,omitempty"`
	BreakerMaxDelay   string `json:"breaker_max_delay,omitempty"`
	BreakerResetAfter string `json:"breaker_reset_after,omitempty"`

	GoogleURL   string `json:"google_url,omitempty"`
	NaverURL    string `json:"naver_url,omitempty"`
	SlackAPIURL string `json:"slack_api_url,omitempty"`
}

// JournalConfig controls the optional job journal.
//
// Example:
//
//	"journal": { "driver": "sqlite", "path": "./data/jobs.db" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PprofConfig controls the pprof HTTP server. DEBUG in the environment
// enables it too.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
}

// Default returns the tunables used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
			Chat:    LoggingChat{MinLevel: "WARN", RatePerSec: 1},
		},
		Cache: CacheConfig{Prefix: "slack-translator"},
	}
}
