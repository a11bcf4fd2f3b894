// Package translate adapts external translation services to one Provider
// interface.
package translate

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"slacktranslator/internal/config"
)

// Provider translates text with one external engine.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Engine selects a Provider implementation. It is resolved once at startup.
type Engine string

const (
	EngineGoogle Engine = "google"
	EngineNaver  Engine = "naver"
)

// Engines lists the known engines in a stable order.
var Engines = []Engine{EngineGoogle, EngineNaver}

// ParseEngine maps a configuration value to an Engine. Empty means google.
func ParseEngine(name string) (Engine, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return EngineGoogle, nil
	}
	for _, e := range Engines {
		if string(e) == n {
			return e, nil
		}
	}
	return "", config.Errorf("TRANSLATE_ENGINE", "there is no %q translate engine", name)
}

// Options carries endpoint overrides, credentials and the HTTP timeout.
type Options struct {
	Timeout time.Duration

	GoogleURL string

	NaverURL          string
	NaverClientID     string
	NaverClientSecret string

	// Breaker is applied by Guarded, not by New.
	Breaker BreakerConfig
}

// New builds the provider for e. Missing credentials are configuration errors.
func New(e Engine, opt Options) (Provider, error) {
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	hc := resty.New().SetTimeout(opt.Timeout)

	switch e {
	case EngineGoogle:
		return newGoogle(hc, opt.GoogleURL), nil
	case EngineNaver:
		if strings.TrimSpace(opt.NaverClientID) == "" || strings.TrimSpace(opt.NaverClientSecret) == "" {
			return nil, config.Errorf("NAVER_CLIENT_ID", "naver engine needs NAVER_CLIENT_ID and NAVER_CLIENT_SECRET")
		}
		return newNaver(hc, opt.NaverURL, opt.NaverClientID, opt.NaverClientSecret), nil
	default:
		return nil, config.Errorf("TRANSLATE_ENGINE", "there is no %q translate engine", string(e))
	}
}
