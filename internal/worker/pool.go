// Package worker consumes the job queue in deferred mode.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	redisx "slacktranslator/internal/infra/redis"
	"slacktranslator/internal/job"
	rtsup "slacktranslator/internal/runtime/supervisor"
	logx "slacktranslator/pkg/logx"
)

// Source is the read side of the job queue.
type Source interface {
	Receive(ctx context.Context, block time.Duration) (*redisx.Message, error)
}

// Runner executes one job. *job.Executor implements it.
type Runner interface {
	Run(ctx context.Context, j job.Job) job.Outcome
}

// Config controls the pool.
type Config struct {
	Workers      int
	BlockTimeout time.Duration
	StopTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
	return c
}

// Pool runs Workers consumer loops under a supervisor. Each loop claims one
// message, runs it to completion and acknowledges it.
type Pool struct {
	src  Source
	run  Runner
	diag job.Reporter
	cfg  Config
	log  logx.Logger

	mu  sync.Mutex
	sup *rtsup.Supervisor

	inFlight  atomic.Int32
	processed atomic.Uint64
	malformed atomic.Uint64
}

// NewPool builds a pool. diag receives a report for every queue body that
// does not decode; it may be nil.
func NewPool(src Source, run Runner, diag job.Reporter, cfg Config, log logx.Logger) *Pool {
	return &Pool{src: src, run: run, diag: diag, cfg: cfg.withDefaults(), log: log}
}

// Start launches the consumers. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sup != nil {
		return
	}
	p.sup = rtsup.New(ctx, rtsup.WithLogger(p.log))
	for i := 0; i < p.cfg.Workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		p.sup.GoRestart(name, func(ctx context.Context) error {
			return p.consume(ctx, name)
		}, rtsup.WithRestartBackoff(500*time.Millisecond, 30*time.Second))
	}
	p.log.Info("worker pool started", logx.Int("workers", p.cfg.Workers))
}

// Stop cancels the consumers and waits for in-flight jobs, at most
// StopTimeout. Jobs still running past that are redelivered by the reaper.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	sup := p.sup
	p.sup = nil
	p.mu.Unlock()
	if sup == nil {
		return nil
	}

	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, p.cfg.StopTimeout)
	defer cancel()
	err := sup.Wait(wctx)
	if errors.Is(err, context.DeadlineExceeded) {
		p.log.Warn("worker pool stop timed out", logx.Int("in_flight", int(p.inFlight.Load())))
		return err
	}
	p.log.Info("worker pool stopped", logx.Uint64("processed", p.processed.Load()))
	return nil
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int    `json:"workers"`
	InFlight  int32  `json:"in_flight"`
	Processed uint64 `json:"processed"`
	Malformed uint64 `json:"malformed"`
	Restarts  int    `json:"restarts"`
}

func (p *Pool) Stats() Stats {
	st := Stats{
		Workers:   p.cfg.Workers,
		InFlight:  p.inFlight.Load(),
		Processed: p.processed.Load(),
		Malformed: p.malformed.Load(),
	}
	p.mu.Lock()
	sup := p.sup
	p.mu.Unlock()
	if sup != nil {
		for _, t := range sup.Snapshot() {
			st.Restarts += t.Restarts
		}
	}
	return st
}

func (p *Pool) consume(ctx context.Context, name string) error {
	log := p.log.With(logx.String("worker", name))
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := p.src.Receive(ctx, p.cfg.BlockTimeout)
		if errors.Is(err, redisx.ErrNoMessage) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		p.handle(ctx, msg, log)
	}
}

func (p *Pool) handle(ctx context.Context, msg *redisx.Message, log logx.Logger) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	// A claimed job runs to completion even when the pool is stopping.
	runCtx := context.WithoutCancel(ctx)

	j, err := job.Unmarshal(msg.Body)
	if err != nil {
		p.malformed.Add(1)
		log.Error("dropping malformed job", logx.Err(err), logx.Int("bytes", len(msg.Body)), logx.SkipChat())
		if p.diag != nil {
			p.diag.Post(runCtx, job.Report{Stage: job.StageDecode, Error: err.Error(), Text: clip(string(msg.Body), 500)})
		}
	} else {
		p.run.Run(runCtx, j)
		p.processed.Add(1)
	}

	actx, cancel := context.WithTimeout(runCtx, 5*time.Second)
	defer cancel()
	switch err := msg.Ack(actx); {
	case errors.Is(err, redisx.ErrClaimLost):
		log.Warn("job was redelivered while running", logx.String("job_id", j.ID))
	case err != nil:
		log.Warn("job ack failed", logx.String("job_id", j.ID), logx.Err(err))
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
