package eventlog

import "github.com/workflowd/workflowd/engine/core"

// The constructors below bundle the Entry construction the dispatcher,
// scheduler, executor, and interpreter each need, so the closed
// EventType enum is never spelled out ad hoc at a call site.

func TokenRefreshedEvent(userID core.ID, app string) Entry {
	return withUser(New(TokenRefreshed, map[string]any{"app": app}), userID)
}

func TriggerCheckedEvent(workflowID core.ID, app string, candidateCount int) Entry {
	return withWorkflow(New(TriggerChecked, map[string]any{"app": app, "candidates": candidateCount}), workflowID)
}

func TriggerFiredEvent(workflowID core.ID, externalID string) Entry {
	return withWorkflow(New(TriggerFired, map[string]any{"external_id": externalID}), workflowID)
}

func WorkflowExecutionStartedEvent(workflowID, runID core.ID) Entry {
	return withRun(withWorkflow(New(WorkflowExecutionStarted, nil), workflowID), runID)
}

func WorkflowExecutionCompletedEvent(workflowID, runID core.ID) Entry {
	return withRun(withWorkflow(New(WorkflowExecutionCompleted, nil), workflowID), runID)
}

func WorkflowExecutionFailedEvent(workflowID, runID core.ID, reason string) Entry {
	return withRun(withWorkflow(New(WorkflowExecutionFailed, map[string]any{"error": reason}), workflowID), runID)
}

func ActionStartedEvent(workflowID, runID core.ID, actionID string) Entry {
	return withRun(withWorkflow(New(ActionStarted, map[string]any{"action_id": actionID}), workflowID), runID)
}

func ActionCompletedEvent(workflowID, runID core.ID, actionID, detail string) Entry {
	return withRun(withWorkflow(New(ActionCompleted, map[string]any{"action_id": actionID, "detail": detail}), workflowID), runID)
}

func ActionFailedEvent(workflowID, runID core.ID, actionID, reason string) Entry {
	return withRun(withWorkflow(New(ActionFailed, map[string]any{"action_id": actionID, "error": reason}), workflowID), runID)
}
