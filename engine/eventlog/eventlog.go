// Package eventlog implements the Event Log (C10): an append-only,
// structured record of workflow lifecycle events, per spec.md §4.11 and
// §7's closed event-type enum. Entries are created, never updated, and
// removed only by the Reaper (C11).
package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/workflowd/workflowd/engine/core"
)

// EventType is the closed set named in spec.md §7.
type EventType string

const (
	WorkflowCreated            EventType = "workflow_created"
	WorkflowActivated          EventType = "workflow_activated"
	WorkflowDeactivated        EventType = "workflow_deactivated"
	WorkflowExecutionStarted   EventType = "workflow_execution_started"
	WorkflowExecutionCompleted EventType = "workflow_execution_completed"
	WorkflowExecutionFailed    EventType = "workflow_execution_failed"
	TriggerChecked             EventType = "trigger_checked"
	TriggerFired               EventType = "trigger_fired"
	ActionStarted              EventType = "action_started"
	ActionCompleted            EventType = "action_completed"
	ActionFailed               EventType = "action_failed"
	TokenRefreshed             EventType = "token_refreshed"
)

// DefaultLimit and MaxLimit bound retrieval per spec.md §4.11.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Entry is one append-only log row.
type Entry struct {
	ID         string         `db:"id,pk" json:"id"`
	EventType  EventType      `db:"event_type" json:"event_type"`
	Details    map[string]any `db:"details" json:"details"`
	UserID     *core.ID       `db:"user_id" json:"user_id,omitempty"`
	WorkflowID *core.ID       `db:"workflow_id" json:"workflow_id,omitempty"`
	RunID      *core.ID       `db:"run_id" json:"run_id,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Recorder is the write-side contract every other component depends on
// (the dispatcher, scheduler, executor, interpreter all log through it).
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store is the full Event Log contract: create plus the two retrieval
// shapes named in spec.md §4.11.
type Store interface {
	Recorder
	ListByWorkflow(ctx context.Context, workflowID core.ID, eventType *EventType, limit int) ([]Entry, error)
	ListByRun(ctx context.Context, runID core.ID, eventType *EventType, limit int) ([]Entry, error)
	// DeleteBefore removes entries older than cutoff, for the Reaper (C11).
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// New builds an Entry with a fresh id and the current timestamp; id
// generation uses google/uuid since these are high-volume append rows
// where a KSUID's extra ordering guarantee isn't needed.
func New(eventType EventType, details map[string]any) Entry {
	return Entry{
		ID:        uuid.NewString(),
		EventType: eventType,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// ClampLimit enforces spec.md §4.11's default/hard-max retrieval cap.
func ClampLimit(requested int) int {
	if requested <= 0 {
		return DefaultLimit
	}
	if requested > MaxLimit {
		return MaxLimit
	}
	return requested
}

func withUser(e Entry, userID core.ID) Entry {
	e.UserID = &userID
	return e
}

func withWorkflow(e Entry, workflowID core.ID) Entry {
	e.WorkflowID = &workflowID
	return e
}

func withRun(e Entry, runID core.ID) Entry {
	e.RunID = &runID
	return e
}
