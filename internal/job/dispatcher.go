package job

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slacktranslator/internal/eventbus"
	logx "slacktranslator/pkg/logx"
)

// Dispatcher validates requests, assigns job ids and hands jobs to the
// runner chosen at startup.
type Dispatcher struct {
	runner JobRunner
	diag   Reporter
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
	newID  func() string
}

func NewDispatcher(runner JobRunner, diag Reporter, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		runner: runner,
		diag:   diag,
		bus:    bus,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Mode reports the runner's dispatch mode.
func (d *Dispatcher) Mode() string { return d.runner.Mode() }

// Submit dispatches req. A validation failure is returned as *ValidationError
// and also reported to the diagnostic channel.
func (d *Dispatcher) Submit(ctx context.Context, req TranslationRequest) (Job, error) {
	if err := req.Validate(); err != nil {
		d.log.Warn("request rejected", logx.Err(err), logx.String("channel", req.ChannelID), logx.SkipChat())
		if d.diag != nil {
			d.diag.Post(ctx, Report{Stage: StageValidate, Error: err.Error(), Text: req.Text, UserID: req.UserID, Channel: req.ChannelID})
		}
		return Job{}, err
	}

	j := Job{ID: d.newID(), Request: req, EnqueuedAt: d.now()}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.JobEnqueued, Time: j.EnqueuedAt, Data: Event{JobID: j.ID, At: j.EnqueuedAt}})
	}
	d.log.Debug("job dispatched", logx.String("job_id", j.ID), logx.String("mode", d.runner.Mode()))

	if err := d.runner.Run(ctx, j); err != nil {
		d.log.Error("job dispatch failed", logx.String("job_id", j.ID), logx.Err(err), logx.SkipChat())
		if d.diag != nil {
			d.diag.Post(ctx, Report{JobID: j.ID, Stage: StageDispatch, Error: err.Error(), Text: req.Text, UserID: req.UserID, Channel: req.ChannelID})
		}
		return j, err
	}
	return j, nil
}
