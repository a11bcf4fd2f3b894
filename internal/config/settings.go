package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings holds the environment-provided configuration. It is read once at
// startup and never per request.
type Settings struct {
	RedisURL string `mapstructure:"REDIS_URL"`
	// Async selects deferred dispatch (ASYNC_TRANSLATION=YES).
	Async bool
	// Debug is true when DEBUG is present in the environment, whatever its value.
	Debug bool

	Engine            string `mapstructure:"TRANSLATE_ENGINE"`
	NaverClientID     string `mapstructure:"NAVER_CLIENT_ID"`
	NaverClientSecret string `mapstructure:"NAVER_CLIENT_SECRET"`

	SlackAPIToken   string `mapstructure:"SLACK_API_TOKEN"`
	SlackWebhookURL string `mapstructure:"SLACK_WEBHOOK_URL"`
	SlackLogChannel string `mapstructure:"SLACK_LOG_CHANNEL"`

	Port string `mapstructure:"PORT"`
}

const (
	DefaultEngine     = "google"
	DefaultLogChannel = "#translator-log"
	DefaultPort       = "5000"
)

var envKeys = []string{
	"REDIS_URL", "ASYNC_TRANSLATION", "TRANSLATE_ENGINE",
	"NAVER_CLIENT_ID", "NAVER_CLIENT_SECRET",
	"SLACK_API_TOKEN", "SLACK_WEBHOOK_URL", "SLACK_LOG_CHANNEL",
	"PORT",
}

// LoadSettings reads Settings from the environment. A .env file in the
// working directory is loaded first for local development; real environment
// variables win over it.
func LoadSettings() (*Settings, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	v.SetDefault("TRANSLATE_ENGINE", DefaultEngine)
	v.SetDefault("SLACK_LOG_CHANNEL", DefaultLogChannel)
	v.SetDefault("PORT", DefaultPort)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.Async = strings.TrimSpace(v.GetString("ASYNC_TRANSLATION")) == "YES"
	_, s.Debug = os.LookupEnv("DEBUG")
	s.Engine = strings.ToLower(strings.TrimSpace(s.Engine))

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks settings that do not depend on other packages. Engine names
// are validated by the translate package.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.RedisURL) == "" {
		return &Error{Key: "REDIS_URL", Reason: "environment variable is required"}
	}
	if u, err := url.Parse(s.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
		if err == nil {
			err = errors.New("scheme must be redis, rediss or unix")
		}
		return &Error{Key: "REDIS_URL", Reason: "invalid url", Err: err}
	}
	if strings.TrimSpace(s.Port) == "" {
		s.Port = DefaultPort
	}
	return nil
}

// Mode names the dispatch mode for logs.
func (s *Settings) Mode() string {
	if s.Async {
		return "deferred"
	}
	return "eager"
}

// String masks secrets.
func (s *Settings) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "redis=%s mode=%s engine=%s debug=%v port=%s log_channel=%s",
		maskURL(s.RedisURL), s.Mode(), s.Engine, s.Debug, s.Port, s.SlackLogChannel)
	fmt.Fprintf(&sb, " slack_token=%s naver_id=%s", mask(s.SlackAPIToken), mask(s.NaverClientID))
	return sb.String()
}

func mask(v string) string {
	if v == "" {
		return "(empty)"
	}
	return "********"
}

func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid)"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
