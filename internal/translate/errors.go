package translate

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ProviderError reports an upstream failure or a response that could not be
// normalized. Raw keeps the payload for diagnostics.
type ProviderError struct {
	Engine string
	Status int
	Raw    string
	Err    error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s translate", e.Engine)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += "; body: " + abbreviate(e.Raw, 500)
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

var (
	errEmptyResult = errors.New("empty translation")
	errBadShape    = errors.New("unexpected response shape")
)

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := max(n-3, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
