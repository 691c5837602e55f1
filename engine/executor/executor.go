// Package executor implements the Executor (C8): a bounded worker pool
// that dequeues jobs from the Job Queue, opens a run record, invokes the
// Step Interpreter, and applies the queue's retry policy on failure, per
// spec.md §4.8.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/eventlog"
	"github.com/workflowd/workflowd/engine/interpreter"
	"github.com/workflowd/workflowd/engine/kind"
	"github.com/workflowd/workflowd/engine/queue"
	"github.com/workflowd/workflowd/engine/workflow"
	"github.com/workflowd/workflowd/pkg/config"
	"github.com/workflowd/workflowd/pkg/logger"
)

// dequeueTimeout bounds each worker's blocking pop so the worker can observe
// ctx cancellation promptly instead of blocking indefinitely.
const dequeueTimeout = 5 * time.Second

// Pool is the C8 bounded worker pool.
type Pool struct {
	repo        workflow.Repository
	queue       *queue.Queue
	interpreter *interpreter.Interpreter
	events      eventlog.Recorder
	concurrency int
	dropOnFail  bool
}

func New(
	repo workflow.Repository,
	q *queue.Queue,
	interp *interpreter.Interpreter,
	events eventlog.Recorder,
	workerCfg config.WorkerConfig,
	dropOnTerminalFail bool,
) *Pool {
	concurrency := workerCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Pool{
		repo:        repo,
		queue:       q,
		interpreter: interp,
		events:      events,
		concurrency: concurrency,
		dropOnFail:  dropOnTerminalFail,
	}
}

// Run starts concurrency workers and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	log := logger.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		job, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			log.Error("executor: dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}
		if err := p.handle(ctx, *job); err != nil {
			log.Error("executor: job failed", "workflow_id", job.WorkflowID, "error", err)
		}
	}
}

// handle carries out spec.md §4.8 steps 1-7 for one dequeued job.
func (p *Pool) handle(ctx context.Context, job queue.Job) error {
	wf, err := p.repo.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		return p.terminal(ctx, job, fmt.Errorf("%w: %s", workflow.ErrNotFound, job.WorkflowID))
	}

	triggerData := job.TriggerData
	if data, ok := job.TriggerData["data"].(map[string]any); ok {
		triggerData = data
	}

	run := &workflow.Run{
		ID:          mustRunID(),
		WorkflowID:  wf.ID,
		Status:      workflow.RunStatusRunning,
		TriggerData: job.TriggerData,
		RetryCount:  job.AttemptsMade,
		StartedAt:   time.Now(),
	}
	if err := p.repo.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("executor: creating run: %w", err)
	}
	_ = p.events.Record(ctx, eventlog.WorkflowExecutionStartedEvent(wf.ID, run.ID))

	execLog, execErr := p.interpreter.Execute(ctx, wf.UserID, wf, run, triggerData)
	run.ExecutionLog = execLog

	if execErr == nil {
		return p.succeed(ctx, wf, run, job, triggerData)
	}
	return p.fail(ctx, wf, run, job, execErr)
}

func (p *Pool) succeed(ctx context.Context, wf *workflow.Workflow, run *workflow.Run, job queue.Job, triggerData map[string]any) error {
	run.Finish(workflow.RunStatusSuccess, nil, time.Now())
	if err := p.repo.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("executor: updating run: %w", err)
	}
	if err := p.repo.TouchLastRunAt(ctx, wf.ID); err != nil {
		return fmt.Errorf("executor: touching last_run_at: %w", err)
	}
	if externalID, _ := triggerData["external_id"].(string); externalID != "" {
		err := p.repo.MarkProcessed(ctx, &workflow.ProcessedTrigger{
			WorkflowID:  wf.ID,
			TriggerType: stringOr(job.TriggerData["trigger_id"]),
			ExternalID:  externalID,
		})
		if err != nil && !errors.Is(err, workflow.ErrAlreadyProcessed) {
			return fmt.Errorf("executor: marking processed: %w", err)
		}
	}
	_ = p.events.Record(ctx, eventlog.WorkflowExecutionCompletedEvent(wf.ID, run.ID))
	return nil
}

func (p *Pool) fail(ctx context.Context, wf *workflow.Workflow, run *workflow.Run, job queue.Job, execErr error) error {
	run.Finish(workflow.RunStatusFailed, execErr, time.Now())
	run.RetryCount = job.AttemptsMade + 1
	if err := p.repo.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("executor: updating failed run: %w", err)
	}
	_ = p.events.Record(ctx, eventlog.WorkflowExecutionFailedEvent(wf.ID, run.ID, execErr.Error()))

	if k, ok := kind.As(execErr); ok && !k.Retryable() {
		return p.terminal(ctx, job, execErr)
	}
	if queue.Terminal(job) {
		return p.terminal(ctx, job, execErr)
	}
	return p.queue.Retry(ctx, job, execErr)
}

// terminal applies spec.md §4.8a: after the retry budget (or a
// non-retryable kind) exhausts, the job is dropped and its event recorded
// as processed so it is never picked again, unless configured to be
// retained as a dead letter for manual inspection (no processed row then).
func (p *Pool) terminal(ctx context.Context, job queue.Job, terminalErr error) error {
	externalID, _ := job.TriggerData["external_id"].(string)
	if p.dropOnFail {
		if err := p.queue.Fail(ctx, job, terminalErr); err != nil {
			return err
		}
		if externalID == "" {
			return nil
		}
		err := p.repo.MarkProcessed(ctx, &workflow.ProcessedTrigger{
			WorkflowID:  job.WorkflowID,
			TriggerType: stringOr(job.TriggerData["trigger_id"]),
			ExternalID:  externalID,
		})
		if err != nil && !errors.Is(err, workflow.ErrAlreadyProcessed) {
			return fmt.Errorf("executor: marking processed: %w", err)
		}
		return nil
	}
	return p.repo.CreateDeadLetter(ctx, &workflow.DeadLetterJob{
		ID:          mustRunID(),
		WorkflowID:  job.WorkflowID,
		TriggerType: stringOr(job.TriggerData["trigger_id"]),
		ExternalID:  externalID,
		Payload:     job.TriggerData,
		LastError:   terminalErr.Error(),
		Attempts:    job.AttemptsMade + 1,
		CreatedAt:   time.Now(),
	})
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

func mustRunID() core.ID {
	return core.MustNewID()
}
