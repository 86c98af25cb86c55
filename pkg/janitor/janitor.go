// Package janitor periodically sweeps expired workflows and drafts out of
// the store. Stores with native TTL support still get swept; the sweep is a
// no-op for anything the store already evicted.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/errandlabs/errand/pkg/log"
	"github.com/errandlabs/errand/pkg/store"
)

// Janitor runs the TTL sweep on a schedule.
type Janitor struct {
	cron    *cron.Cron
	sweeper store.Sweeper
	logger  *slog.Logger
}

// New creates a janitor for the store. Stores without sweep support (e.g.
// Redis, where TTLs are native) yield a janitor that does nothing.
func New(st store.Store) *Janitor {
	sweeper, _ := st.(store.Sweeper)

	return &Janitor{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  log.WithModule("janitor"),
	}
}

// Start schedules the sweep with a cron spec such as "@every 5m".
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	if j.sweeper == nil {
		j.logger.Info("store handles expiry natively, janitor idle")

		return nil
	}

	_, err := j.cron.AddFunc(schedule, func() {
		j.sweep(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("janitor started", "schedule", schedule)

	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		j.logger.ErrorContext(ctx, "sweep failed", "error", err)

		return
	}

	if removed > 0 {
		j.logger.InfoContext(ctx, "swept expired records", "removed", removed)
	}
}
