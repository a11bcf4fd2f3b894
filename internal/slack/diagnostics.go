package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	logx "slacktranslator/pkg/logx"
)

// Diagnostics posts to the operations channel. It is used on error paths only,
// so its own failures are logged and dropped.
type Diagnostics struct {
	http    *resty.Client
	url     string
	token   string
	channel string
	log     logx.Logger
}

func NewDiagnostics(opt Options, log logx.Logger) *Diagnostics {
	opt = opt.withDefaults()
	return &Diagnostics{
		http:    newHTTP(opt),
		url:     opt.APIURL + "/chat.postMessage",
		token:   opt.Token,
		channel: opt.LogChannel,
		log:     log,
	}
}

// Post reports payload to the ops channel.
func (d *Diagnostics) Post(ctx context.Context, payload any) {
	if err := d.send(ctx, Stringify(payload)); err != nil {
		d.log.Warn("diagnostic post failed", logx.String("channel", d.channel), logx.Err(err), logx.SkipChat())
	}
}

// PostLog forwards one log line. Errors are returned to the caller, never
// logged, so a broken ops channel cannot feed back into the logger.
func (d *Diagnostics) PostLog(ctx context.Context, text string) error {
	return d.send(ctx, text)
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (d *Diagnostics) send(ctx context.Context, text string) error {
	if d.channel == "" {
		return errors.New("no diagnostic channel")
	}
	req := d.http.R().SetContext(ctx).
		SetFormData(map[string]string{
			"channel": d.channel,
			"text":    text,
		})
	if d.token != "" {
		req.SetAuthToken(d.token)
	}
	resp, err := req.Post(d.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("chat.postMessage: %s", resp.Status())
	}
	var body postMessageResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("chat.postMessage: %s", body.Error)
	}
	return nil
}

// Stringify renders a diagnostic payload: strings as-is, errors by message,
// anything else as JSON.
func Stringify(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%+v", payload)
	}
	return string(b)
}
