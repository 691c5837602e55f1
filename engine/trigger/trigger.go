// Package trigger implements the Trigger Detectors (C4): per-trigger-type
// "fetch latest items" routines (spec.md §4.4) returning a normalized,
// newest-first list of candidate events with stable external ids.
package trigger

import (
	"context"
	"sort"
	"time"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/integration/dispatcher"
)

// Candidate is one detected external event: a stable id plus the
// flattened payload the interpreter will template-substitute against.
type Candidate struct {
	ExternalID string
	Timestamp  time.Time
	Trigger    map[string]any // becomes trigger_data.trigger
}

// Detector fetches candidates for one trigger type. cfg is the step's
// free-form trigger config (query, channel, owner, repo, branch, ...).
// A detector missing required config returns an empty, non-error list
// per spec.md §4.4.
type Detector func(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, cfg map[string]any) ([]Candidate, error)

// registry is the closed set of supported trigger_id values.
var registry = map[string]Detector{
	"new_email":           newEmail,
	"email_starred":       emailStarred,
	"new_channel_message": newChannelMessage,
	"new_issue":           newIssue,
	"pull_request_opened": pullRequestOpened,
	"issue_commented":     issueCommented,
	"commit_pushed":       commitPushed,
}

// Detect dispatches to the registered detector for triggerID. An unknown
// triggerID returns an empty list and no error; Workflow.Validate does not
// check trigger ids, so such a workflow simply never fires.
func Detect(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, triggerID string, cfg map[string]any) ([]Candidate, error) {
	fn, ok := registry[triggerID]
	if !ok {
		return nil, nil
	}
	candidates, err := fn(ctx, d, userID, cfg)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(candidates)
	return candidates, nil
}

// sortNewestFirst applies the §4.4 ordering rule: descending by
// timestamp, so the oldest unprocessed item ends up last and the
// dedup-filtered oldest-first pick (§4.6a) is a simple tail scan.
func sortNewestFirst(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Timestamp.After(c[j].Timestamp) })
}

func stringCfg(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func requireStringCfg(cfg map[string]any, key string) (string, bool) {
	v, ok := cfg[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
