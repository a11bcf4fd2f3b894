package slack

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultAPIURL is the Slack Web API base.
const DefaultAPIURL = "https://slack.com/api"

// Options configures the outbound Slack clients.
type Options struct {
	APIURL     string
	Token      string
	WebhookURL string
	LogChannel string
	Timeout    time.Duration

	// Webhook limiter; zero means 1/s with burst 4.
	RatePerSec float64
	Burst      int
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.APIURL) == "" {
		o.APIURL = DefaultAPIURL
	}
	o.APIURL = strings.TrimRight(o.APIURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 1
	}
	if o.Burst <= 0 {
		o.Burst = 4
	}
	return o
}

func newHTTP(o Options) *resty.Client {
	return resty.New().SetTimeout(o.Timeout)
}
