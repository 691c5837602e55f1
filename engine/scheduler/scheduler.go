// Package scheduler implements the Scheduler (C6): a single periodic loop
// (configurable tick, 30s by default, spec.md §4.6) that finds active, due workflows, runs
// their trigger detector through the dispatcher, filters the result
// through the Dedup Store, and appends at most one job per workflow per
// tick to the Job Queue. robfig/cron/v3 drives the tick itself; the sweep
// logic runs synchronously inside the cron callback so two sweeps never
// overlap, satisfying §4.6's "no two sweeps run concurrently" rule without
// extra bookkeeping.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/dedup"
	"github.com/workflowd/workflowd/engine/eventlog"
	"github.com/workflowd/workflowd/engine/integration/dispatcher"
	"github.com/workflowd/workflowd/engine/queue"
	"github.com/workflowd/workflowd/engine/trigger"
	"github.com/workflowd/workflowd/engine/workflow"
	"github.com/workflowd/workflowd/pkg/config"
	"github.com/workflowd/workflowd/pkg/logger"
)

// Scheduler owns the cron-driven poll sweep.
type Scheduler struct {
	repo        workflow.Repository
	dispatcher  *dispatcher.Dispatcher
	dedup       *dedup.Store
	queue       *queue.Queue
	events      eventlog.Recorder
	pickOldest  bool
	cron        *cron.Cron
}

func New(
	repo workflow.Repository,
	d *dispatcher.Dispatcher,
	dd *dedup.Store,
	q *queue.Queue,
	events eventlog.Recorder,
	cfg config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		repo:       repo,
		dispatcher: d,
		dedup:      dd,
		queue:      q,
		events:     events,
		pickOldest: cfg.PickOldestFirst,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// tickSpec converts a tick duration to a robfig/cron "@every" spec.
func tickSpec(tick time.Duration) string {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return fmt.Sprintf("@every %s", tick)
}

// Start schedules the sweep at tick and begins running it in the
// background. Call Stop to end it.
func (s *Scheduler) Start(ctx context.Context, tick time.Duration) error {
	log := logger.FromContext(ctx)
	_, err := s.cron.AddFunc(tickSpec(tick), func() {
		if err := s.sweep(ctx); err != nil {
			log.Error("scheduler sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: scheduling sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop blocks until any in-flight sweep finishes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// sweep is one tick's work: spec.md §4.6 steps 1-5.
func (s *Scheduler) sweep(ctx context.Context) error {
	now := time.Now()
	due, err := s.repo.ListActiveWorkflowsDue(ctx, now, s.pickOldest)
	if err != nil {
		return fmt.Errorf("scheduler: listing due workflows: %w", err)
	}
	for _, wf := range due {
		if err := s.processWorkflow(ctx, wf, now); err != nil {
			logger.FromContext(ctx).Error("scheduler: workflow sweep failed", "workflow_id", wf.ID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) processWorkflow(ctx context.Context, wf *workflow.Workflow, now time.Time) error {
	triggerStep, err := wf.TriggerStep()
	if err != nil {
		return err
	}
	candidates, err := trigger.Detect(ctx, s.dispatcher, wf.UserID, triggerStep.TriggerID, triggerStep.Config)
	if err != nil {
		return err
	}
	_ = s.events.Record(ctx, eventlog.TriggerCheckedEvent(wf.ID, triggerStep.AppName, len(candidates)))

	events := make([]dedup.Event, 0, len(candidates))
	byExternalID := make(map[string]trigger.Candidate, len(candidates))
	for _, c := range candidates {
		events = append(events, dedup.Event{ExternalID: c.ExternalID, Metadata: c.Trigger})
		byExternalID[c.ExternalID] = c
	}
	unprocessed, err := s.dedup.Filter(ctx, wf.ID, triggerStep.TriggerID, events)
	if err != nil {
		return err
	}
	if len(unprocessed) == 0 {
		return s.repo.TouchLastRunAt(ctx, wf.ID)
	}

	picked := pick(unprocessed, s.pickOldest)
	candidate := byExternalID[picked.ExternalID]
	_ = s.events.Record(ctx, eventlog.TriggerFiredEvent(wf.ID, candidate.ExternalID))
	job := queue.Job{
		ID:         core.MustNewID().String(),
		WorkflowID: wf.ID,
		UserID:     wf.UserID,
		TriggerData: map[string]any{
			"trigger_id":  triggerStep.TriggerID,
			"external_id": candidate.ExternalID,
			"trigger":     candidate.Trigger,
		},
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("scheduler: enqueuing job: %w", err)
	}
	return s.repo.TouchLastRunAt(ctx, wf.ID)
}

// pick selects the candidate the job should carry: oldest-first picks the
// last entry of the newest-first-sorted, dedup-filtered list (the oldest
// unprocessed event); newest-first picks the head, per spec.md §4.6 step 5
// and the open-question resolution in SPEC_FULL.md.
func pick(candidates []dedup.Event, oldestFirst bool) dedup.Event {
	if oldestFirst {
		return candidates[len(candidates)-1]
	}
	return candidates[0]
}
