package translate

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"
)

const defaultNaverURL = "https://openapi.naver.com/v1/papago/n2mt"

type naver struct {
	http   *resty.Client
	url    string
	id     string
	secret string
}

func newNaver(hc *resty.Client, url, id, secret string) *naver {
	if url == "" {
		url = defaultNaverURL
	}
	return &naver{http: hc, url: url, id: id, secret: secret}
}

func (n *naver) Name() string { return string(EngineNaver) }

type naverResponse struct {
	Message struct {
		Result struct {
			TranslatedText string `json:"translatedText"`
		} `json:"result"`
	} `json:"message"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (n *naver) Translate(ctx context.Context, text, from, to string) (string, error) {
	r, err := n.http.R().SetContext(ctx).
		SetHeader("X-Naver-Client-Id", n.id).
		SetHeader("X-Naver-Client-Secret", n.secret).
		SetFormData(map[string]string{
			"text":   text,
			"source": from,
			"target": to,
		}).
		Post(n.url)
	if err != nil {
		return "", &ProviderError{Engine: n.Name(), Err: err}
	}
	if r.IsError() {
		return "", &ProviderError{Engine: n.Name(), Status: r.StatusCode(), Raw: r.String()}
	}

	var resp naverResponse
	if err := json.Unmarshal(r.Body(), &resp); err != nil {
		return "", &ProviderError{Engine: n.Name(), Status: r.StatusCode(), Raw: r.String(), Err: err}
	}
	out := resp.Message.Result.TranslatedText
	if out == "" {
		return "", &ProviderError{Engine: n.Name(), Status: r.StatusCode(), Raw: r.String(), Err: errEmptyResult}
	}
	return out, nil
}
