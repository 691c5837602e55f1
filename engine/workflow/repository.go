package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/workflowd/workflowd/engine/core"
)

var (
	ErrNotFound         = errors.New("workflow: not found")
	ErrAlreadyProcessed = errors.New("workflow: trigger already processed")
	ErrDuplicateName    = errors.New("workflow: name already in use for this user")
)

// Repository defines persistence for workflows, their run history, and the
// dedup ledger the scheduler and executor consult.
type Repository interface {
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id core.ID) (*Workflow, error)
	ListActiveWorkflowsDue(ctx context.Context, now time.Time, oldestFirst bool) ([]*Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *Workflow) error
	TouchLastRunAt(ctx context.Context, id core.ID) error
	DeleteWorkflow(ctx context.Context, id core.ID) error

	// MarkProcessed records a (workflow, trigger type, external id) tuple as
	// handled. Returns ErrAlreadyProcessed on a unique-constraint conflict so
	// the executor can treat the race as a no-op rather than a failure.
	MarkProcessed(ctx context.Context, p *ProcessedTrigger) error
	// IsProcessed reports whether the tuple has already been recorded,
	// used by the scheduler to filter a detector's output before enqueueing.
	IsProcessed(ctx context.Context, workflowID core.ID, triggerType, externalID string) (bool, error)
	DeleteProcessedBefore(ctx context.Context, retentionDays int) (int64, error)

	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id core.ID) (*Run, error)
	ListRunsByWorkflow(ctx context.Context, workflowID core.ID, limit int) ([]*Run, error)

	CreateDeadLetter(ctx context.Context, job *DeadLetterJob) error
	ListDeadLetters(ctx context.Context, workflowID core.ID) ([]*DeadLetterJob, error)
}
