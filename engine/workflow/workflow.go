// Package workflow holds the core data model: a workflow is a named graph
// of steps owned by a user, along with the run history and dedup state the
// rest of the engine produces while executing it.
package workflow

import (
	"fmt"
	"time"

	"github.com/workflowd/workflowd/engine/core"
)

// StepType is the closed set of step kinds a workflow step can be.
type StepType string

const (
	StepTrigger   StepType = "trigger"
	StepCondition StepType = "condition"
	StepAction    StepType = "action"
)

// DefaultStartStepID is used when a workflow doesn't set StartStepID
// explicitly, preserving the convention that step "1" is the trigger and
// execution begins at its first outgoing step.
const DefaultStartStepID = "2"

// ConditionClause is one entry in a condition step's ordered clause list.
// Exactly one of If/Then or Else is set: a clause with If evaluates the
// template/op/literal expression and, if true, transfers to Then; a clause
// with only Else is the unconditional fallback and must be last.
type ConditionClause struct {
	If   string  `json:"if,omitempty"`
	Then *string `json:"then,omitempty"`
	Else *string `json:"else,omitempty"`
}

// IsElse reports whether this clause is the unconditional fallback.
func (c ConditionClause) IsElse() bool {
	return c.If == "" && c.Else != nil
}

// Step is a discriminated union over StepType: only the fields relevant to
// Type are populated for a given step.
type Step struct {
	ID   string   `json:"id"`
	Type StepType `json:"type"`

	// trigger / action
	AppName string         `json:"app_name,omitempty"`
	Config  map[string]any `json:"config,omitempty"`

	// trigger
	TriggerID string `json:"trigger_id,omitempty"`

	// action
	ActionID string `json:"action_id,omitempty"`
	Next     *string `json:"next,omitempty"`

	// condition
	Conditions []ConditionClause `json:"conditions,omitempty"`
}

// Workflow is a named, owned graph of steps.
type Workflow struct {
	ID                     core.ID   `db:"id,pk"           json:"id"`
	UserID                 core.ID   `db:"user_id"          json:"user_id"`
	Name                   string    `db:"name"             json:"name"`
	Description            string    `db:"description"      json:"description"`
	IsActive               bool      `db:"is_active"        json:"is_active"`
	PollingIntervalSeconds int       `db:"polling_interval_seconds" json:"polling_interval_seconds"`
	StartStepID            string    `db:"start_step_id"    json:"start_step_id"`
	Steps                  []Step    `db:"steps"            json:"steps"`
	LastRunAt              *time.Time `db:"last_run_at"     json:"last_run_at,omitempty"`
	CreatedAt              time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"       json:"updated_at"`
}

// TriggerStep returns the workflow's single trigger step.
func (w *Workflow) TriggerStep() (*Step, error) {
	for i := range w.Steps {
		if w.Steps[i].Type == StepTrigger {
			return &w.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("workflow %s: no trigger step", w.ID)
}

// StepByID looks up a step by id, returning false when absent (a nil/absent
// next/then target is a legitimate terminal marker, not an error).
func (w *Workflow) StepByID(id string) (*Step, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// EffectiveStartStepID returns StartStepID, falling back to
// DefaultStartStepID when unset.
func (w *Workflow) EffectiveStartStepID() string {
	if w.StartStepID != "" {
		return w.StartStepID
	}
	return DefaultStartStepID
}

// Validate checks the invariants from the data model: exactly one trigger
// step, at least one action step, unique step ids, and every branch target
// resolving to an existing step id.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow: name is required")
	}
	seen := make(map[string]bool, len(w.Steps))
	triggerCount, actionCount := 0, 0
	for _, step := range w.Steps {
		if seen[step.ID] {
			return fmt.Errorf("workflow: duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		switch step.Type {
		case StepTrigger:
			triggerCount++
		case StepAction:
			actionCount++
		case StepCondition:
		default:
			return fmt.Errorf("workflow: step %q has unknown type %q", step.ID, step.Type)
		}
	}
	if triggerCount != 1 {
		return fmt.Errorf("workflow: must have exactly one trigger step, found %d", triggerCount)
	}
	if actionCount < 1 {
		return fmt.Errorf("workflow: must have at least one action step")
	}
	for _, step := range w.Steps {
		if err := w.validateTargets(step, seen); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workflow) validateTargets(step Step, seen map[string]bool) error {
	switch step.Type {
	case StepAction:
		if step.Next != nil && !seen[*step.Next] {
			return fmt.Errorf("workflow: step %q.next references unknown step %q", step.ID, *step.Next)
		}
	case StepCondition:
		for i, clause := range step.Conditions {
			target := clause.Then
			if clause.IsElse() {
				target = clause.Else
				if i != len(step.Conditions)-1 {
					return fmt.Errorf("workflow: step %q: else clause must be last", step.ID)
				}
			}
			if target != nil && !seen[*target] {
				return fmt.Errorf("workflow: step %q clause %d references unknown step %q", step.ID, i, *target)
			}
		}
	}
	return nil
}
