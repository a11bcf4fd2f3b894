package job

import (
	"strings"
)

// ValidationError lists request fields that were required but missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "invalid translation request: missing " + strings.Join(e.Missing, ", ")
}

// Validate checks the fields the pipeline cannot run without. Empty text is
// allowed and translated as is.
func (r TranslationRequest) Validate() error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("user_id", r.UserID)
	check("channel_id", r.ChannelID)
	check("from", r.From)
	check("to", r.To)
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
