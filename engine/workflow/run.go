package workflow

import (
	"time"

	"github.com/workflowd/workflowd/engine/core"
)

// RunStatus is the closed set of states a WorkflowRun passes through.
// A run is immutable once Status != RunStatusRunning.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// StepResult is one entry in a run's execution log: the outcome of
// evaluating or executing a single step.
type StepResult struct {
	StepID    string    `json:"step_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is one instance of executing a workflow for a specific triggering
// event. Created by the executor when a job is dequeued; mutated only by
// the executor.
type Run struct {
	ID           core.ID      `db:"id,pk"          json:"id"`
	WorkflowID   core.ID      `db:"workflow_id"     json:"workflow_id"`
	Status       RunStatus    `db:"status"          json:"status"`
	TriggerData  map[string]any `db:"trigger_data"  json:"trigger_data"`
	ExecutionLog []StepResult `db:"execution_log"   json:"execution_log"`
	RetryCount   int          `db:"retry_count"     json:"retry_count"`
	Error        *string      `db:"error"           json:"error,omitempty"`
	StartedAt    time.Time    `db:"started_at"      json:"started_at"`
	FinishedAt   *time.Time   `db:"finished_at"     json:"finished_at,omitempty"`
}

// AppendStep records one step's outcome to the run's execution log.
func (r *Run) AppendStep(stepID, status, detail string, at time.Time) {
	r.ExecutionLog = append(r.ExecutionLog, StepResult{
		StepID:    stepID,
		Status:    status,
		Detail:    detail,
		Timestamp: at,
	})
}

// Finish marks the run terminal. Calling it twice is a caller bug; the
// executor only ever finishes a run once.
func (r *Run) Finish(status RunStatus, runErr error, at time.Time) {
	r.Status = status
	r.FinishedAt = &at
	if runErr != nil {
		msg := runErr.Error()
		r.Error = &msg
	}
}

// ProcessedTrigger identifies an external event already executed for a
// workflow. Unique on (WorkflowID, TriggerType, ExternalID).
type ProcessedTrigger struct {
	ID          int64          `db:"id,pk"        json:"id"`
	WorkflowID  core.ID        `db:"workflow_id"   json:"workflow_id"`
	TriggerType string         `db:"trigger_type"  json:"trigger_type"`
	ExternalID  string         `db:"external_id"   json:"external_id"`
	Metadata    map[string]any `db:"metadata"      json:"metadata,omitempty"`
	ProcessedAt time.Time      `db:"processed_at"  json:"processed_at"`
}

// DeadLetterJob is a job the executor gave up on after its terminal
// failure, persisted for manual inspection when
// SchedulerConfig.DropOnTerminalFail is false. See SPEC_FULL.md §4.8a.
type DeadLetterJob struct {
	ID          core.ID        `db:"id,pk"        json:"id"`
	WorkflowID  core.ID        `db:"workflow_id"   json:"workflow_id"`
	TriggerType string         `db:"trigger_type"  json:"trigger_type"`
	ExternalID  string         `db:"external_id"   json:"external_id"`
	Payload     map[string]any `db:"payload"       json:"payload"`
	LastError   string         `db:"last_error"    json:"last_error,omitempty"`
	Attempts    int            `db:"attempts"      json:"attempts"`
	CreatedAt   time.Time      `db:"created_at"    json:"created_at"`
}
