// Package interpreter implements the Step Interpreter (C9): the workflow
// step-graph walker invoked by the Executor (C8) once a run has been
// opened. Per spec.md §4.9 it starts at the workflow's effective start
// step, evaluates any condition steps in sequence, and executes at most
// one terminal action.
package interpreter

import (
	"context"
	"fmt"
	"time"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/credential"
	"github.com/workflowd/workflowd/engine/eventlog"
	"github.com/workflowd/workflowd/engine/integration/dispatcher"
	"github.com/workflowd/workflowd/engine/interpreter/template"
	"github.com/workflowd/workflowd/engine/workflow"
)

// Interpreter walks one workflow's step graph per invocation. It holds no
// per-run state; Execute is safe to call concurrently from multiple
// executor workers.
type Interpreter struct {
	dispatcher *dispatcher.Dispatcher
	events     eventlog.Recorder
	creds      credential.Store
}

func New(d *dispatcher.Dispatcher, events eventlog.Recorder, creds credential.Store) *Interpreter {
	return &Interpreter{dispatcher: d, events: events, creds: creds}
}

// Execute walks wf starting at its effective start step, against
// triggerData, appending one StepResult per step visited. Only an action
// step's failure is returned as an error; condition evaluation never
// fails (an unparseable clause is simply skipped).
func (ip *Interpreter) Execute(
	ctx context.Context,
	userID core.ID,
	wf *workflow.Workflow,
	run *workflow.Run,
	triggerData map[string]any,
) ([]workflow.StepResult, error) {
	var log []workflow.StepResult
	currentID := wf.EffectiveStartStepID()
	for {
		step, ok := wf.StepByID(currentID)
		if !ok {
			return log, nil
		}
		switch step.Type {
		case workflow.StepCondition:
			next, entry := evalCondition(step, triggerData)
			log = append(log, entry)
			if next == nil {
				return log, nil
			}
			currentID = *next
		case workflow.StepAction:
			entry, err := ip.runAction(ctx, userID, wf.ID, run.ID, step, triggerData)
			log = append(log, entry)
			return log, err
		default:
			return log, nil
		}
	}
}

// evalCondition applies spec.md §4.9's clause-evaluation rule: the first
// matching `if` clause wins; absent a match, a trailing `else` clause
// applies; absent either, the walk terminates.
func evalCondition(step *workflow.Step, data map[string]any) (*string, workflow.StepResult) {
	now := time.Now()
	var elseClause *workflow.ConditionClause
	for i := range step.Conditions {
		clause := step.Conditions[i]
		if clause.IsElse() {
			elseClause = &step.Conditions[i]
			continue
		}
		cond, ok := template.ParseCondition(clause.If)
		if !ok {
			continue
		}
		if cond.Eval(data) {
			return clause.Then, workflow.StepResult{
				StepID: step.ID, Status: "matched",
				Detail: fmt.Sprintf("-> %s", derefOr(clause.Then, "<terminate>")), Timestamp: now,
			}
		}
	}
	if elseClause != nil {
		return elseClause.Else, workflow.StepResult{
			StepID: step.ID, Status: "else",
			Detail: fmt.Sprintf("-> %s", derefOr(elseClause.Else, "<terminate>")), Timestamp: now,
		}
	}
	return nil, workflow.StepResult{StepID: step.ID, Status: "no_match", Timestamp: now}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
