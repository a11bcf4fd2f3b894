package worker

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"slacktranslator/internal/eventbus"
	logx "slacktranslator/pkg/logx"
)

// DefaultReapSchedule runs the reaper once a minute.
const DefaultReapSchedule = "@every 1m"

// Reclaimer moves stale processing entries back to the pending list.
type Reclaimer interface {
	Reap(ctx context.Context, visibility time.Duration) (int, error)
}

// ReapEvent is the payload of queue.reaped.
type ReapEvent struct {
	Requeued int       `json:"requeued"`
	At       time.Time `json:"at"`
}

// Reaper periodically requeues jobs whose worker died before acknowledging.
type Reaper struct {
	q          Reclaimer
	schedule   string
	visibility time.Duration
	bus        eventbus.Bus
	log        logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func NewReaper(q Reclaimer, schedule string, visibility time.Duration, bus eventbus.Bus, log logx.Logger) *Reaper {
	if schedule == "" {
		schedule = DefaultReapSchedule
	}
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &Reaper{q: q, schedule: schedule, visibility: visibility, bus: bus, log: log}
}

// Start registers the schedule and starts the cron runner.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.schedule, func() { r.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	r.c = c
	r.log.Info("reaper started", logx.String("schedule", r.schedule), logx.Duration("visibility", r.visibility))
	return nil
}

// Stop halts the schedule and waits for a running pass.
func (r *Reaper) Stop() {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// RunOnce performs one reap pass and returns how many jobs were requeued.
func (r *Reaper) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := r.q.Reap(rctx, r.visibility)
	if err != nil {
		r.log.Warn("reap failed", logx.Err(err))
	}
	if n > 0 {
		r.log.Warn("requeued stale jobs", logx.Int("count", n))
		if r.bus != nil {
			now := time.Now()
			r.bus.Publish(eventbus.Event{Type: eventbus.QueueReaped, Time: now, Data: ReapEvent{Requeued: n, At: now}})
		}
	}
	return n
}
