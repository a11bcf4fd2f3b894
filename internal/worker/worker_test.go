package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"slacktranslator/internal/eventbus"
	redisx "slacktranslator/internal/infra/redis"
	"slacktranslator/internal/job"
	logx "slacktranslator/pkg/logx"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []job.Job
}

func (r *recordingRunner) Run(_ context.Context, j job.Job) job.Outcome {
	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()
	return job.Outcome{JobID: j.ID, Stage: job.StageDone}
}

func (r *recordingRunner) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.ID)
	}
	return out
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []job.Report
}

func (r *recordingReporter) Post(_ context.Context, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rep, ok := payload.(job.Report); ok {
		r.reports = append(r.reports, rep)
	}
}

func (r *recordingReporter) all() []job.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]job.Report(nil), r.reports...)
}

func newQueue(t *testing.T) *redisx.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisx.NewQueue(rdb, "test", logx.Nop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPoolProcessesAndAcks(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		b, err := job.Job{ID: id, Request: job.TranslationRequest{UserID: "U", ChannelID: "C", From: "en", To: "ko"}}.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		if err := q.Publish(ctx, b); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Publish(ctx, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	run := &recordingRunner{}
	diag := &recordingReporter{}
	p := NewPool(q, run, diag, Config{Workers: 1, BlockTimeout: 100 * time.Millisecond, StopTimeout: 5 * time.Second}, logx.Nop())
	p.Start(ctx)

	waitFor(t, "queue drained", func() bool {
		st, err := q.Stats(ctx)
		s := p.Stats()
		return err == nil && st.Pending == 0 && st.Processing == 0 && s.Processed+s.Malformed == 3
	})
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	ids := run.ids()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ran %v, want [a b]", ids)
	}
	s := p.Stats()
	if s.Processed != 2 || s.Malformed != 1 || s.InFlight != 0 {
		t.Fatalf("stats = %+v", s)
	}
	reports := diag.all()
	if len(reports) != 1 || reports[0].Stage != job.StageDecode || reports[0].Text != "{not json" {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestPoolStopWithoutStart(t *testing.T) {
	p := NewPool(nil, &recordingRunner{}, nil, Config{}, logx.Nop())
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s := p.Stats(); s.Workers != 4 {
		t.Fatalf("default workers = %d", s.Workers)
	}
}

type fakeReclaimer struct {
	n   int
	err error
	vis time.Duration
}

func (f *fakeReclaimer) Reap(_ context.Context, visibility time.Duration) (int, error) {
	f.vis = visibility
	return f.n, f.err
}

func TestReaperRunOncePublishes(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	rc := &fakeReclaimer{n: 3}
	r := NewReaper(rc, "", 0, bus, logx.Nop())
	if n := r.RunOnce(context.Background()); n != 3 {
		t.Fatalf("RunOnce = %d, want 3", n)
	}
	if rc.vis != 5*time.Minute {
		t.Fatalf("visibility = %v", rc.vis)
	}
	select {
	case ev := <-events:
		if ev.Type != eventbus.QueueReaped || ev.Data.(ReapEvent).Requeued != 3 {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatalf("expected queue.reaped event")
	}
}

func TestReaperQuietWhenNothingRequeued(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	r := NewReaper(&fakeReclaimer{err: errors.New("boom")}, "", time.Minute, bus, logx.Nop())
	if n := r.RunOnce(context.Background()); n != 0 {
		t.Fatalf("RunOnce = %d", n)
	}
	if len(events) != 0 {
		t.Fatalf("unexpected event")
	}
}

func TestReaperRejectsBadSchedule(t *testing.T) {
	r := NewReaper(&fakeReclaimer{}, "every now and then", time.Minute, nil, logx.Nop())
	if err := r.Start(context.Background()); err == nil {
		r.Stop()
		t.Fatalf("expected schedule error")
	}
}

func TestReaperStartStop(t *testing.T) {
	r := NewReaper(&fakeReclaimer{}, "@every 1h", time.Minute, nil, logx.Nop())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
	r.Stop()
}
