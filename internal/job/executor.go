package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"slacktranslator/internal/eventbus"
	"slacktranslator/internal/slack"
	"slacktranslator/internal/translate"
	logx "slacktranslator/pkg/logx"
)

// ProfileResolver resolves the invoking user for impersonated delivery.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID string) (slack.UserProfile, error)
}

// Deliverer posts a message into the invoking channel and returns the
// response body.
type Deliverer interface {
	Post(ctx context.Context, m slack.Message) (string, error)
}

// Reporter receives failure reports for the operations channel.
type Reporter interface {
	Post(ctx context.Context, payload any)
}

// Observer is called once per finished job, in registration order.
type Observer func(ctx context.Context, j Job, o Outcome)

// Executor runs the translate -> profile -> deliver pipeline for one job.
//
// Run never returns an error: every failure becomes a diagnostic report and an
// Outcome, so a queued job is always acknowledged.
type Executor struct {
	translator translate.Provider
	profiles   ProfileResolver
	delivery   Deliverer
	diag       Reporter
	bus        eventbus.Bus
	log        logx.Logger
	now        func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

func NewExecutor(tr translate.Provider, profiles ProfileResolver, delivery Deliverer, diag Reporter, bus eventbus.Bus, log logx.Logger) *Executor {
	return &Executor{
		translator: tr,
		profiles:   profiles,
		delivery:   delivery,
		diag:       diag,
		bus:        bus,
		log:        log,
		now:        time.Now,
	}
}

// Observe registers fn to receive every outcome.
func (e *Executor) Observe(fn Observer) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// Run executes j to completion. ctx should not carry a shutdown signal;
// callers detach it with context.WithoutCancel.
func (e *Executor) Run(ctx context.Context, j Job) (out Outcome) {
	start := e.now()
	out = Outcome{JobID: j.ID, Engine: e.translator.Name(), Started: start}
	log := e.log.With(logx.String("job_id", j.ID), logx.String("channel", j.Request.ChannelID))

	e.publish(eventbus.JobStarted, Event{JobID: j.ID, Engine: out.Engine, At: start, Attempt: j.Attempt})
	log.Debug("job started", logx.String("from", j.Request.From), logx.String("to", j.Request.To))

	defer func() {
		if r := recover(); r != nil {
			out.Stage = StagePanic
			out.Err = fmt.Errorf("panic: %v", r)
			out.Result = ""
			log.Error("job panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())), logx.SkipChat())
			e.report(ctx, j, out)
		}
		out.Duration = e.now().Sub(start)
		e.finish(ctx, j, out, log)
	}()

	out.Stage, out.Result, out.Err = e.pipeline(ctx, j)
	if out.Err != nil {
		log.Warn("job failed", logx.String("stage", string(out.Stage)), logx.Err(out.Err), logx.SkipChat())
		e.report(ctx, j, out)
	}
	return out
}

func (e *Executor) pipeline(ctx context.Context, j Job) (Stage, string, error) {
	req := j.Request

	translated, err := e.translator.Translate(ctx, req.Text, req.From, req.To)
	if err != nil {
		return StageTranslate, "", err
	}

	profile, err := e.profiles.Resolve(ctx, req.UserID)
	if err != nil {
		return StageProfile, "", err
	}
	name := profile.RealName
	if name == "" {
		name = req.UserName
	}

	var body string
	for _, text := range []string{req.Text, translated} {
		body, err = e.delivery.Post(ctx, slack.Message{
			Channel:  req.ChannelID,
			Username: name,
			IconURL:  profile.AvatarURL,
			Text:     text,
		})
		if err != nil {
			return StageDeliver, "", err
		}
	}
	return StageDone, body, nil
}

func (e *Executor) finish(ctx context.Context, j Job, out Outcome, log logx.Logger) {
	ev := Event{JobID: j.ID, Engine: out.Engine, Stage: out.Stage, At: e.now(), Duration: out.Duration, Attempt: j.Attempt}
	if out.Err != nil {
		ev.Error = out.Err.Error()
		e.publish(eventbus.JobFailed, ev)
	} else {
		e.publish(eventbus.JobFinished, ev)
		log.Info("job finished", logx.Duration("took", out.Duration))
	}

	e.mu.RLock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.RUnlock()
	for _, fn := range obs {
		fn(ctx, j, out)
	}
}

func (e *Executor) report(ctx context.Context, j Job, out Outcome) {
	if e.diag == nil {
		return
	}
	e.diag.Post(ctx, Report{
		JobID:   j.ID,
		Stage:   out.Stage,
		Error:   errString(out.Err),
		Text:    j.Request.Text,
		UserID:  j.Request.UserID,
		Channel: j.Request.ChannelID,
	})
}

func (e *Executor) publish(typ string, ev Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// Event is the payload of job.* bus events.
type Event struct {
	JobID    string        `json:"job_id"`
	Engine   string        `json:"engine,omitempty"`
	Stage    Stage         `json:"stage,omitempty"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration,omitempty"`
	Attempt  int           `json:"attempt,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Report is the diagnostic posted when a job fails.
type Report struct {
	JobID   string `json:"job_id"`
	Stage   Stage  `json:"stage"`
	Error   string `json:"error"`
	Text    string `json:"text"`
	UserID  string `json:"user_id,omitempty"`
	Channel string `json:"channel_id,omitempty"`
}

func (r Report) String() string {
	return fmt.Sprintf("translation job %s failed at %s: %s\noriginal text: %s", r.JobID, r.Stage, r.Error, r.Text)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
