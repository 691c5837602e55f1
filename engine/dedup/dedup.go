// Package dedup implements the Dedup Store (C5): a persistent set of
// (workflow, trigger-type, external-id) already processed, used to
// filter detector output before it's allowed to become a job. Per
// spec.md §4.5 it surfaces exactly two operations, `filter` and
// `record`, backed by workflowrepo's UNIQUE-indexed processed_triggers
// table rather than duplicating persistence logic here.
package dedup

import (
	"context"
	"errors"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/workflow"
)

// Event is the minimal shape dedup needs from a detected candidate —
// callers (the scheduler) project trigger.Candidate down to this to
// avoid a trigger<->dedup import cycle.
type Event struct {
	ExternalID string
	Metadata   map[string]any
}

// Store is the C5 Dedup Store.
type Store struct {
	repo workflow.Repository
}

func New(repo workflow.Repository) *Store {
	return &Store{repo: repo}
}

// Filter removes already-processed candidates, per spec.md §4.5.
func (s *Store) Filter(
	ctx context.Context,
	workflowID core.ID,
	triggerType string,
	candidates []Event,
) ([]Event, error) {
	unprocessed := make([]Event, 0, len(candidates))
	for _, c := range candidates {
		processed, err := s.repo.IsProcessed(ctx, workflowID, triggerType, c.ExternalID)
		if err != nil {
			return nil, err
		}
		if !processed {
			unprocessed = append(unprocessed, c)
		}
	}
	return unprocessed, nil
}

// Record is the authoritative side effect. A duplicate insert — racing
// pollers, or a retried job whose first attempt already succeeded — is
// caught by the UNIQUE constraint and silently ignored, making Record
// idempotent as required by spec.md §4.5.
func (s *Store) Record(ctx context.Context, workflowID core.ID, triggerType, externalID string, metadata map[string]any) error {
	err := s.repo.MarkProcessed(ctx, &workflow.ProcessedTrigger{
		WorkflowID:  workflowID,
		TriggerType: triggerType,
		ExternalID:  externalID,
		Metadata:    metadata,
	})
	if errors.Is(err, workflow.ErrAlreadyProcessed) {
		return nil
	}
	return err
}

// IsProcessed exposes a single-candidate check: whether one external id
// has already been recorded for the workflow and trigger type.
func (s *Store) IsProcessed(ctx context.Context, workflowID core.ID, triggerType, externalID string) (bool, error) {
	return s.repo.IsProcessed(ctx, workflowID, triggerType, externalID)
}
