package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"

	redisx "slacktranslator/internal/infra/redis"
	"slacktranslator/internal/memo"
	logx "slacktranslator/pkg/logx"
)

func TestProfileResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users.profile.get" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-1" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Query().Get("user") != "U1" {
			t.Errorf("user = %q", r.URL.Query().Get("user"))
		}
		_, _ = w.Write([]byte(`{"ok":true,"profile":{"real_name":"Ann Lee","image_48":"a48","image_72":"a72"}}`))
	}))
	defer srv.Close()

	r := NewProfileResolver(Options{APIURL: srv.URL, Token: "xoxb-1"}, nil, logx.Nop())
	p, err := r.Resolve(context.Background(), "U1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.RealName != "Ann Lee" || p.AvatarURL != "a72" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestProfileAvatarFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"profile":{"real_name":"Bo","image_48":"a48","image_192":"a192"}}`))
	}))
	defer srv.Close()

	r := NewProfileResolver(Options{APIURL: srv.URL}, nil, logx.Nop())
	p, err := r.Resolve(context.Background(), "U2")
	if err != nil || p.AvatarURL != "a48" {
		t.Fatalf("profile = %+v, %v", p, err)
	}
}

func TestProfileLookupErrors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"not found", http.StatusOK, `{"ok":false,"error":"user_not_found"}`, "user_not_found"},
		{"auth", http.StatusOK, `{"ok":false,"error":"invalid_auth"}`, "invalid_auth"},
		{"no profile", http.StatusOK, `{"ok":true}`, "user_not_found"},
		{"server", http.StatusInternalServerError, `oops`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			r := NewProfileResolver(Options{APIURL: srv.URL}, nil, logx.Nop())
			_, err := r.Resolve(context.Background(), "U1")
			var pe *ProfileLookupError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProfileLookupError, got %v", err)
			}
			if pe.UserID != "U1" || pe.Code != tc.wantCode {
				t.Fatalf("error = %+v", pe)
			}
		})
	}
}

func TestProfileIsMemoizedByUserID(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":true,"profile":{"real_name":"Ann","image_72":"a72"}}`))
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb, err := redisx.Open(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rdb.Close()
	m := memo.New(redisx.NewCache(rdb, logx.Nop()), "slack-translator", logx.Nop())

	r := NewProfileResolver(Options{APIURL: srv.URL}, m, logx.Nop())
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), "U1"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("upstream hits = %d, want 1", n)
	}
	key, _ := m.Key(OpProfile, "U1")
	if !mr.Exists(key) {
		t.Fatalf("missing cache key %s", key)
	}
}

func TestWebhookPost(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	wh := NewWebhook(Options{WebhookURL: srv.URL, RatePerSec: 100, Burst: 10}, logx.Nop())
	body, err := wh.Post(context.Background(), Message{Channel: "C1", Username: "Ann", IconURL: "a72", Text: "hi"})
	if err != nil || body != "ok" {
		t.Fatalf("Post = %q, %v", body, err)
	}
	want := webhookPayload{Channel: "C1", Username: "Ann", IconURL: "a72", Text: "hi", Mrkdwn: true, Parse: "full"}
	if got != want {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("channel_not_found"))
	}))
	defer srv.Close()

	wh := NewWebhook(Options{WebhookURL: srv.URL}, logx.Nop())
	_, err := wh.Post(context.Background(), Message{Channel: "C1", Text: "hi"})
	var de *DeliveryError
	if !errors.As(err, &de) || de.Status != http.StatusNotFound || de.Body != "channel_not_found" || de.Channel != "C1" {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
}

func TestWebhookWithoutURL(t *testing.T) {
	wh := NewWebhook(Options{}, logx.Nop())
	_, err := wh.Post(context.Background(), Message{Channel: "C1"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
}

func TestDiagnosticsPost(t *testing.T) {
	type post struct{ channel, text, auth string }
	posts := make(chan post, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		posts <- post{r.PostForm.Get("channel"), r.PostForm.Get("text"), r.Header.Get("Authorization")}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := NewDiagnostics(Options{APIURL: srv.URL, Token: "xoxb-1", LogChannel: "#translator-log"}, logx.Nop())
	d.Post(context.Background(), errors.New("provider down"))

	p := <-posts
	if p.channel != "#translator-log" || p.text != "provider down" || p.auth != "Bearer xoxb-1" {
		t.Fatalf("post = %+v", p)
	}
}

func TestDiagnosticsPostLogReportsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	d := NewDiagnostics(Options{APIURL: srv.URL, LogChannel: "#x"}, logx.Nop())
	if err := d.PostLog(context.Background(), "line"); err == nil {
		t.Fatalf("expected error for ok=false")
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{errors.New("boom"), "boom"},
		{map[string]int{"a": 1}, `{"a":1}`},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Fatalf("Stringify(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAbbreviateKeepsRunes(t *testing.T) {
	s := strings.Repeat("번역", 20)
	for n := 1; n < len(s); n++ {
		got := abbreviate(s, n)
		if !utf8.ValidString(got) || !strings.HasSuffix(got, "...") {
			t.Fatalf("abbreviate(%d) = %q", n, got)
		}
	}
	if got := abbreviate("ok", 5); got != "ok" {
		t.Fatalf("abbreviate short = %q", got)
	}
}
