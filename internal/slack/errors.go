package slack

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ProfileLookupError reports a failed users.profile.get call. Code carries the
// Slack error code ("user_not_found", "invalid_auth", ...) when there is one.
type ProfileLookupError struct {
	UserID string
	Status int
	Code   string
	Err    error
}

func (e *ProfileLookupError) Error() string {
	msg := fmt.Sprintf("profile lookup %s", e.UserID)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProfileLookupError) Unwrap() error { return e.Err }

// DeliveryError reports a failed webhook post.
type DeliveryError struct {
	Channel string
	Status  int
	Body    string
	Err     error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("deliver to %s", e.Channel)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += "; body: " + abbreviate(e.Body, 300)
	}
	return msg
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var errNoWebhook = errors.New("SLACK_WEBHOOK_URL is not set")
