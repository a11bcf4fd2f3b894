package job

import (
	"context"
	"fmt"
)

// JobRunner decides where a dispatched job executes.
type JobRunner interface {
	Run(ctx context.Context, j Job) error
	Mode() string
}

// InlineRunner executes the job in the caller's goroutine. The caller blocks
// until delivery (or its failure) is complete.
type InlineRunner struct {
	exec *Executor
}

func NewInlineRunner(exec *Executor) *InlineRunner { return &InlineRunner{exec: exec} }

func (r *InlineRunner) Mode() string { return "eager" }

func (r *InlineRunner) Run(ctx context.Context, j Job) error {
	r.exec.Run(context.WithoutCancel(ctx), j)
	return nil
}

// Publisher is the write side of the job queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// QueuedRunner publishes the job and returns; a worker pool executes it later.
type QueuedRunner struct {
	pub Publisher
}

func NewQueuedRunner(pub Publisher) *QueuedRunner { return &QueuedRunner{pub: pub} }

func (r *QueuedRunner) Mode() string { return "deferred" }

func (r *QueuedRunner) Run(ctx context.Context, j Job) error {
	b, err := j.Marshal()
	if err != nil {
		return fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	if err := r.pub.Publish(ctx, b); err != nil {
		return fmt.Errorf("enqueue job %s: %w", j.ID, err)
	}
	return nil
}

// NewRunner picks the runner for the configured dispatch mode.
func NewRunner(async bool, exec *Executor, pub Publisher) JobRunner {
	if async {
		return NewQueuedRunner(pub)
	}
	return NewInlineRunner(exec)
}
