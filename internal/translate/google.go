package translate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-resty/resty/v2"
)

const defaultGoogleURL = "https://translate.googleapis.com/translate_a/single"

// google uses the public gtx endpoint. The source language is always
// detected by the service, so from is ignored.
type google struct {
	http *resty.Client
	url  string
}

func newGoogle(hc *resty.Client, url string) *google {
	if url == "" {
		url = defaultGoogleURL
	}
	return &google{http: hc, url: url}
}

func (g *google) Name() string { return string(EngineGoogle) }

func (g *google) Translate(ctx context.Context, text, _, to string) (string, error) {
	r, err := g.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"client": "gtx",
			"sl":     "auto",
			"tl":     to,
			"dt":     "t",
			"q":      text,
		}).
		Get(g.url)
	if err != nil {
		return "", &ProviderError{Engine: g.Name(), Err: err}
	}
	if r.IsError() {
		return "", &ProviderError{Engine: g.Name(), Status: r.StatusCode(), Raw: r.String()}
	}

	out, err := parseGoogle(r.Body())
	if err != nil {
		return "", &ProviderError{Engine: g.Name(), Status: r.StatusCode(), Raw: r.String(), Err: err}
	}
	return out, nil
}

// parseGoogle reads [[["translated","original",...],...],...] and joins the
// first element of every fragment in order.
func parseGoogle(body []byte) (string, error) {
	var root []json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return "", err
	}
	if len(root) == 0 {
		return "", errBadShape
	}
	var fragments []json.RawMessage
	if err := json.Unmarshal(root[0], &fragments); err != nil {
		return "", errBadShape
	}

	var sb strings.Builder
	for _, f := range fragments {
		var parts []json.RawMessage
		if err := json.Unmarshal(f, &parts); err != nil || len(parts) == 0 {
			return "", errBadShape
		}
		var s *string
		if err := json.Unmarshal(parts[0], &s); err != nil {
			return "", errBadShape
		}
		if s != nil {
			sb.WriteString(*s)
		}
	}
	if sb.Len() == 0 {
		return "", errEmptyResult
	}
	return sb.String(), nil
}
