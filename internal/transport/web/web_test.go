package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"slacktranslator/internal/job"
	"slacktranslator/internal/transport/web/mw"
	logx "slacktranslator/pkg/logx"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []job.TranslationRequest
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req job.TranslationRequest) (job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return job.Job{}, f.err
	}
	return job.Job{ID: "j1", Request: req}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(sub Submitter, cache Pinger, debug bool) http.Handler {
	return New(Config{Addr: "127.0.0.1:0", Debug: debug}, Deps{
		Dispatcher: sub,
		Cache:      cache,
		Debug: map[string]Section{
			"mode":  func(context.Context) (any, error) { return "eager", nil },
			"queue": func(context.Context) (any, error) { return nil, errors.New("redis down") },
		},
	}, logx.Nop()).Handler()
}

func TestIngressPostForm(t *testing.T) {
	sub := &fakeSubmitter{}
	h := newTestServer(sub, nil, false)

	form := url.Values{
		"user_id":    {"U1"},
		"user_name":  {"ann"},
		"channel_id": {"C1"},
		"text":       {"hello world"},
	}
	req := httptest.NewRequest(http.MethodPost, "/en/ko", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(mw.HeaderRequestID) == "" {
		t.Fatalf("missing request id header")
	}
	want := job.TranslationRequest{UserID: "U1", UserName: "ann", ChannelID: "C1", Text: "hello world", From: "en", To: "ko"}
	if len(sub.reqs) != 1 || sub.reqs[0] != want {
		t.Fatalf("submitted = %+v", sub.reqs)
	}
}

func TestIngressGetQuery(t *testing.T) {
	sub := &fakeSubmitter{}
	h := newTestServer(sub, nil, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ja/en?user_id=U2&channel_id=C2&text=%E3%81%93", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	got := sub.reqs[0]
	if got.From != "ja" || got.To != "en" || got.UserID != "U2" || got.Text != "こ" {
		t.Fatalf("submitted = %+v", got)
	}
}

func TestIngressAlwaysOK(t *testing.T) {
	sub := &fakeSubmitter{err: &job.ValidationError{Missing: []string{"user_id"}}}
	h := newTestServer(sub, nil, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/en/ko", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(&fakeSubmitter{}, nil, false)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeSubmitter{}, fakePinger{}, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestServer(&fakeSubmitter{}, fakePinger{err: errors.New("conn refused")}, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "conn refused") {
		t.Fatalf("unready = %d %s", rec.Code, rec.Body.String())
	}
}

func TestDebugJobsOnlyInDebug(t *testing.T) {
	sub := &fakeSubmitter{}
	rec := httptest.NewRecorder()
	newTestServer(sub, nil, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("debug = %d", rec.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["mode"] != "eager" {
		t.Fatalf("mode = %v", doc["mode"])
	}
	if q, ok := doc["queue"].(map[string]any); !ok || q["error"] != "redis down" {
		t.Fatalf("queue = %v", doc["queue"])
	}
	if _, ok := doc["generated_at"]; !ok {
		t.Fatalf("missing generated_at")
	}
	if len(sub.reqs) != 0 {
		t.Fatalf("debug request reached ingress")
	}

	// Without debug the path is an ordinary from/to pair.
	rec = httptest.NewRecorder()
	newTestServer(sub, nil, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/jobs", nil))
	if rec.Body.String() != "ok" || len(sub.reqs) != 1 || sub.reqs[0].From != "debug" {
		t.Fatalf("non-debug = %q %+v", rec.Body.String(), sub.reqs)
	}
}

func TestRecoverReturns500(t *testing.T) {
	h := mw.Recover(logx.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
}
