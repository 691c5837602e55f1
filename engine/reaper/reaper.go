// Package reaper implements the Log Reaper (C11): a background task that
// trims old processed-trigger rows and event-log entries, per spec.md
// §4.6 ("two concurrent tasks: the poll sweep and the log reaper") and
// §4.11's retention policy. Runs on its own robfig/cron/v3 schedule,
// independent of the Scheduler's poll-sweep tick.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/workflowd/workflowd/engine/eventlog"
	"github.com/workflowd/workflowd/engine/workflow"
	"github.com/workflowd/workflowd/pkg/logger"
)

// Reaper periodically deletes processed-trigger and log rows older than
// the configured retention window.
type Reaper struct {
	workflows     workflow.Repository
	events        eventlog.Store
	retentionDays int
	cron          *cron.Cron
}

func New(workflows workflow.Repository, events eventlog.Store, retentionDays int) *Reaper {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Reaper{
		workflows:     workflows,
		events:        events,
		retentionDays: retentionDays,
		cron:          cron.New(cron.WithSeconds()),
	}
}

// Start schedules the reap at interval. Call Stop to end it.
func (r *Reaper) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	log := logger.FromContext(ctx)
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := r.reap(ctx); err != nil {
			log.Error("reaper: sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("reaper: scheduling: %w", err)
	}
	r.cron.Start()
	return nil
}

func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reaper) reap(ctx context.Context) error {
	log := logger.FromContext(ctx)
	triggersRemoved, err := r.workflows.DeleteProcessedBefore(ctx, r.retentionDays)
	if err != nil {
		return fmt.Errorf("reaper: trimming processed triggers: %w", err)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)
	eventsRemoved, err := r.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reaper: trimming log entries: %w", err)
	}
	log.Info("reaper: sweep complete", "processed_triggers_removed", triggersRemoved, "log_entries_removed", eventsRemoved)
	return nil
}
