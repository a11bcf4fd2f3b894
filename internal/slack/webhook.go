package slack

import (
	"context"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	logx "slacktranslator/pkg/logx"
)

// Message is one post into a channel, impersonating a user.
type Message struct {
	Channel  string
	Username string
	IconURL  string
	Text     string
}

type webhookPayload struct {
	Channel  string `json:"channel"`
	Username string `json:"username"`
	IconURL  string `json:"icon_url,omitempty"`
	Text     string `json:"text"`
	Mrkdwn   bool   `json:"mrkdwn"`
	Parse    string `json:"parse"`
}

// Webhook is the delivery channel: a Slack incoming webhook. Posts are not
// retried.
type Webhook struct {
	http    *resty.Client
	url     string
	limiter *rate.Limiter
	log     logx.Logger
}

func NewWebhook(opt Options, log logx.Logger) *Webhook {
	opt = opt.withDefaults()
	return &Webhook{
		http:    newHTTP(opt),
		url:     opt.WebhookURL,
		limiter: rate.NewLimiter(rate.Limit(opt.RatePerSec), opt.Burst),
		log:     log,
	}
}

// Post sends m and returns the raw response body.
func (w *Webhook) Post(ctx context.Context, m Message) (string, error) {
	if w.url == "" {
		return "", &DeliveryError{Channel: m.Channel, Err: errNoWebhook}
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return "", &DeliveryError{Channel: m.Channel, Err: err}
	}

	resp, err := w.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookPayload{
			Channel:  m.Channel,
			Username: m.Username,
			IconURL:  m.IconURL,
			Text:     m.Text,
			Mrkdwn:   true,
			Parse:    "full",
		}).
		Post(w.url)
	if err != nil {
		return "", &DeliveryError{Channel: m.Channel, Err: err}
	}
	if resp.IsError() {
		return "", &DeliveryError{Channel: m.Channel, Status: resp.StatusCode(), Body: resp.String()}
	}
	w.log.Debug("webhook delivered", logx.String("channel", m.Channel), logx.Int("status", resp.StatusCode()))
	return resp.String(), nil
}
