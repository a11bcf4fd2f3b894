package job

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"slacktranslator/internal/eventbus"
	"slacktranslator/internal/slack"
	logx "slacktranslator/pkg/logx"
)

type fakeProvider struct {
	out   string
	err   error
	panic bool
	calls int
}

func (p *fakeProvider) Name() string { return "google" }

func (p *fakeProvider) Translate(_ context.Context, text, from, to string) (string, error) {
	p.calls++
	if p.panic {
		panic("provider exploded")
	}
	return p.out, p.err
}

type fakeProfiles struct {
	p   slack.UserProfile
	err error
}

func (f *fakeProfiles) Resolve(context.Context, string) (slack.UserProfile, error) { return f.p, f.err }

type fakeDelivery struct {
	mu     sync.Mutex
	posts  []slack.Message
	failAt int // 1-based; 0 never fails
}

func (d *fakeDelivery) Post(_ context.Context, m slack.Message) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.posts = append(d.posts, m)
	if d.failAt == len(d.posts) {
		return "", &slack.DeliveryError{Channel: m.Channel, Status: 500}
	}
	return "ok-" + m.Text, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []any
}

func (r *fakeReporter) Post(_ context.Context, payload any) {
	r.mu.Lock()
	r.reports = append(r.reports, payload)
	r.mu.Unlock()
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func testJob() Job {
	return Job{ID: "j1", Request: TranslationRequest{
		UserID: "U1", UserName: "ann", ChannelID: "C1", Text: "hello", From: "en", To: "ko",
	}}
}

func TestExecutorDeliversOriginalThenTranslation(t *testing.T) {
	tr := &fakeProvider{out: "안녕"}
	del := &fakeDelivery{}
	rep := &fakeReporter{}
	ex := NewExecutor(tr, &fakeProfiles{p: slack.UserProfile{RealName: "Ann Lee", AvatarURL: "a72"}}, del, rep, nil, logx.Nop())

	out := ex.Run(context.Background(), testJob())
	if !out.OK() {
		t.Fatalf("outcome = %+v", out)
	}
	if len(del.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(del.posts))
	}
	if del.posts[0].Text != "hello" || del.posts[1].Text != "안녕" {
		t.Fatalf("order = %q, %q", del.posts[0].Text, del.posts[1].Text)
	}
	for _, p := range del.posts {
		if p.Channel != "C1" || p.Username != "Ann Lee" || p.IconURL != "a72" {
			t.Fatalf("post = %+v", p)
		}
	}
	if out.Result != "ok-안녕" {
		t.Fatalf("result = %q, want body of the last delivery", out.Result)
	}
	if rep.count() != 0 {
		t.Fatalf("unexpected diagnostics")
	}
}

func TestExecutorUsesUserNameWhenProfileHasNoName(t *testing.T) {
	del := &fakeDelivery{}
	ex := NewExecutor(&fakeProvider{out: "x"}, &fakeProfiles{}, del, &fakeReporter{}, nil, logx.Nop())
	ex.Run(context.Background(), testJob())
	if del.posts[0].Username != "ann" {
		t.Fatalf("username = %q", del.posts[0].Username)
	}
}

func TestExecutorProviderFailure(t *testing.T) {
	del := &fakeDelivery{}
	rep := &fakeReporter{}
	ex := NewExecutor(&fakeProvider{err: errors.New("upstream 502")}, &fakeProfiles{}, del, rep, nil, logx.Nop())

	out := ex.Run(context.Background(), testJob())
	if out.Stage != StageTranslate || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if len(del.posts) != 0 {
		t.Fatalf("deliveries = %d, want 0", len(del.posts))
	}
	if rep.count() != 1 {
		t.Fatalf("diagnostics = %d, want 1", rep.count())
	}
	r := rep.reports[0].(Report)
	if r.Text != "hello" || !strings.Contains(r.Error, "upstream 502") || r.JobID != "j1" {
		t.Fatalf("report = %+v", r)
	}
}

// opsChannel stands in for the diagnostics channel in both its roles:
// failure reports and mirrored log lines.
type opsChannel struct {
	mu    sync.Mutex
	posts []string
}

func (o *opsChannel) Post(_ context.Context, payload any) {
	o.mu.Lock()
	o.posts = append(o.posts, slack.Stringify(payload))
	o.mu.Unlock()
}

func (o *opsChannel) PostLog(_ context.Context, text string) error {
	o.mu.Lock()
	o.posts = append(o.posts, text)
	o.mu.Unlock()
	return nil
}

func (o *opsChannel) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.posts)
}

func TestFailedJobPostsOnceToOpsChannel(t *testing.T) {
	ops := &opsChannel{}
	svc, log := logx.New(logx.Config{Level: "INFO", Chat: logx.ChatConfig{Enabled: true, RatePerSec: 10}}, ops)
	defer svc.Close()

	ex := NewExecutor(&fakeProvider{err: errors.New("upstream 502")}, &fakeProfiles{}, &fakeDelivery{}, ops, nil, log)
	ex.Run(context.Background(), testJob())

	d := NewDispatcher(&fakeRunner{}, ops, nil, log)
	_, _ = d.Submit(context.Background(), TranslationRequest{From: "en"})

	// Give the chat mirror time to flush anything it queued.
	log.Warn("flush marker")
	deadline := time.Now().Add(2 * time.Second)
	for ops.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if n := ops.count(); n != 3 {
		t.Fatalf("ops posts = %d, want 3 (two reports and the marker): %q", n, ops.posts)
	}
}

func TestExecutorProfileFailure(t *testing.T) {
	del := &fakeDelivery{}
	rep := &fakeReporter{}
	perr := &slack.ProfileLookupError{UserID: "U1", Code: "user_not_found"}
	ex := NewExecutor(&fakeProvider{out: "x"}, &fakeProfiles{err: perr}, del, rep, nil, logx.Nop())

	out := ex.Run(context.Background(), testJob())
	var pe *slack.ProfileLookupError
	if out.Stage != StageProfile || !errors.As(out.Err, &pe) {
		t.Fatalf("outcome = %+v", out)
	}
	if len(del.posts) != 0 || rep.count() != 1 {
		t.Fatalf("posts=%d diagnostics=%d", len(del.posts), rep.count())
	}
}

func TestExecutorDeliveryFailureStopsSecondPost(t *testing.T) {
	del := &fakeDelivery{failAt: 1}
	rep := &fakeReporter{}
	ex := NewExecutor(&fakeProvider{out: "x"}, &fakeProfiles{}, del, rep, nil, logx.Nop())

	out := ex.Run(context.Background(), testJob())
	var de *slack.DeliveryError
	if out.Stage != StageDeliver || !errors.As(out.Err, &de) {
		t.Fatalf("outcome = %+v", out)
	}
	if len(del.posts) != 1 || rep.count() != 1 {
		t.Fatalf("posts=%d diagnostics=%d", len(del.posts), rep.count())
	}
}

func TestExecutorRecoversPanics(t *testing.T) {
	rep := &fakeReporter{}
	ex := NewExecutor(&fakeProvider{panic: true}, &fakeProfiles{}, &fakeDelivery{}, rep, nil, logx.Nop())

	out := ex.Run(context.Background(), testJob())
	if out.Stage != StagePanic || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if rep.count() != 1 {
		t.Fatalf("diagnostics = %d, want 1", rep.count())
	}
}

func TestExecutorObserversAndEvents(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	h := NewHistory(2)
	ex := NewExecutor(&fakeProvider{out: "x"}, &fakeProfiles{}, &fakeDelivery{}, &fakeReporter{}, bus, logx.Nop())
	ex.Observe(h.Observe)

	for _, id := range []string{"a", "b", "c"} {
		j := testJob()
		j.ID = id
		ex.Run(context.Background(), j)
	}

	snap := h.Snapshot()
	if len(snap) != 2 || snap[0].ID != "c" || snap[1].ID != "b" {
		t.Fatalf("history = %+v", snap)
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	if len(types) != 6 || types[0] != eventbus.JobStarted || types[1] != eventbus.JobFinished {
		t.Fatalf("events = %v", types)
	}
}

type fakeRunner struct {
	mode string
	jobs []Job
	err  error
}

func (r *fakeRunner) Run(_ context.Context, j Job) error {
	r.jobs = append(r.jobs, j)
	return r.err
}

func (r *fakeRunner) Mode() string { return r.mode }

func TestDispatcherValidates(t *testing.T) {
	run := &fakeRunner{mode: "eager"}
	rep := &fakeReporter{}
	d := NewDispatcher(run, rep, nil, logx.Nop())

	_, err := d.Submit(context.Background(), TranslationRequest{Text: "hi", From: "en"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if strings.Join(ve.Missing, ",") != "user_id,channel_id,to" {
		t.Fatalf("missing = %v", ve.Missing)
	}
	if len(run.jobs) != 0 || rep.count() != 1 {
		t.Fatalf("jobs=%d diagnostics=%d", len(run.jobs), rep.count())
	}
}

func TestDispatcherAssignsIDAndAllowsEmptyText(t *testing.T) {
	run := &fakeRunner{mode: "deferred"}
	d := NewDispatcher(run, &fakeReporter{}, nil, logx.Nop())

	req := testJob().Request
	req.Text = ""
	j, err := d.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j.ID == "" || j.EnqueuedAt.IsZero() {
		t.Fatalf("job = %+v", j)
	}
	if len(run.jobs) != 1 || run.jobs[0].ID != j.ID {
		t.Fatalf("runner jobs = %+v", run.jobs)
	}
}

func TestDispatcherReportsRunnerFailure(t *testing.T) {
	run := &fakeRunner{mode: "deferred", err: errors.New("redis down")}
	rep := &fakeReporter{}
	d := NewDispatcher(run, rep, nil, logx.Nop())

	if _, err := d.Submit(context.Background(), testJob().Request); err == nil {
		t.Fatalf("expected error")
	}
	if rep.count() != 1 {
		t.Fatalf("diagnostics = %d, want 1", rep.count())
	}
}

type fakePublisher struct{ bodies [][]byte }

func (p *fakePublisher) Publish(_ context.Context, b []byte) error {
	p.bodies = append(p.bodies, b)
	return nil
}

func TestNewRunnerSelectsByMode(t *testing.T) {
	ex := NewExecutor(&fakeProvider{out: "x"}, &fakeProfiles{}, &fakeDelivery{}, &fakeReporter{}, nil, logx.Nop())
	pub := &fakePublisher{}

	if _, ok := NewRunner(true, ex, pub).(*QueuedRunner); !ok {
		t.Fatalf("async should select QueuedRunner")
	}
	if _, ok := NewRunner(false, ex, pub).(*InlineRunner); !ok {
		t.Fatalf("sync should select InlineRunner")
	}
}

func TestQueuedRunnerPublishesJob(t *testing.T) {
	pub := &fakePublisher{}
	r := NewQueuedRunner(pub)
	j := testJob()
	if err := r.Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.bodies) != 1 {
		t.Fatalf("published = %d", len(pub.bodies))
	}
	var got Job
	if err := json.Unmarshal(pub.bodies[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != j.ID || got.Request != j.Request {
		t.Fatalf("job = %+v", got)
	}
}

func TestInlineRunnerExecutesImmediately(t *testing.T) {
	del := &fakeDelivery{}
	ex := NewExecutor(&fakeProvider{out: "x"}, &fakeProfiles{}, del, &fakeReporter{}, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewInlineRunner(ex).Run(ctx, testJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(del.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(del.posts))
	}
}
