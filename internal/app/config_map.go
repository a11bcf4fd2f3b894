package app

import (
	"strings"
	"time"

	"slacktranslator/internal/config"
	"slacktranslator/internal/observability/pprof"
	"slacktranslator/internal/slack"
	"slacktranslator/internal/storage"
	"slacktranslator/internal/translate"
	"slacktranslator/internal/transport/web"
	"slacktranslator/internal/worker"
	logx "slacktranslator/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config, debug bool) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
	if debug {
		lc.Level = "DEBUG"
	}
	return lc
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	jc := cfg.Journal
	driver := strings.ToLower(strings.TrimSpace(jc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(jc.Path)
	if path == "" {
		return storage.Config{}, false, config.Errorf("journal.path", "is required when journal.driver=%s", driver)
	}
	busy, err := config.ParseDurationOrDefault("journal.busy_timeout", jc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
}

func mapWorkerConfig(cfg *config.Config) (worker.Config, time.Duration, error) {
	wc := cfg.Worker
	block, err := config.ParseDurationOrDefault("worker.block_timeout", wc.BlockTimeout, 5*time.Second)
	if err != nil {
		return worker.Config{}, 0, err
	}
	stop, err := config.ParseDurationOrDefault("worker.stop_timeout", wc.StopTimeout, 30*time.Second)
	if err != nil {
		return worker.Config{}, 0, err
	}
	vis, err := config.ParseDurationOrDefault("worker.visibility_timeout", wc.VisibilityTimeout, 5*time.Minute)
	if err != nil {
		return worker.Config{}, 0, err
	}
	return worker.Config{Workers: wc.Workers, BlockTimeout: block, StopTimeout: stop}, vis, nil
}

func mapHTTPConfig(cfg *config.Config, s *config.Settings) (web.Config, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return web.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 60*time.Second)
	if err != nil {
		return web.Config{}, err
	}
	shutdown, err := config.ParseDurationOrDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout, 15*time.Second)
	if err != nil {
		return web.Config{}, err
	}
	return web.Config{
		Addr:            ":" + s.Port,
		ReadTimeout:     read,
		WriteTimeout:    write,
		ShutdownTimeout: shutdown,
		Debug:           s.Debug,
	}, nil
}

func mapOutbound(cfg *config.Config, s *config.Settings) (translate.Options, slack.Options, error) {
	oc := cfg.Outbound
	timeout, err := config.ParseDurationOrDefault("outbound.timeout", oc.Timeout, 10*time.Second)
	if err != nil {
		return translate.Options{}, slack.Options{}, err
	}
	var bc translate.BreakerConfig
	bc.Trip = oc.BreakerTrip
	if bc.BaseDelay, err = config.ParseDurationField("outbound.breaker_base_delay", oc.BreakerBaseDelay); err != nil {
		return translate.Options{}, slack.Options{}, err
	}
	if bc.MaxDelay, err = config.ParseDurationField("outbound.breaker_max_delay", oc.BreakerMaxDelay); err != nil {
		return translate.Options{}, slack.Options{}, err
	}
	if bc.ResetAfter, err = config.ParseDurationField("outbound.breaker_reset_after", oc.BreakerResetAfter); err != nil {
		return translate.Options{}, slack.Options{}, err
	}
	to := translate.Options{
		Timeout:           timeout,
		GoogleURL:         oc.GoogleURL,
		NaverURL:          oc.NaverURL,
		NaverClientID:     s.NaverClientID,
		NaverClientSecret: s.NaverClientSecret,
		Breaker:           bc,
	}
	so := slack.Options{
		APIURL:     oc.SlackAPIURL,
		Token:      s.SlackAPIToken,
		WebhookURL: s.SlackWebhookURL,
		LogChannel: s.SlackLogChannel,
		Timeout:    timeout,
		RatePerSec: float64(oc.WebhookRatePerSec),
		Burst:      oc.WebhookBurst,
	}
	return to, so, nil
}

func mapPprofConfig(cfg *config.Config, debug bool) pprof.Config {
	return pprof.Config{Enabled: cfg.Pprof.Enabled || debug, Addr: cfg.Pprof.Addr}
}
