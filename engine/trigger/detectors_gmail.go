package trigger

import (
	"context"
	"time"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/integration/dispatcher"
)

const gmailListCap = 10

func newEmail(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, cfg map[string]any) ([]Candidate, error) {
	query := stringCfg(cfg, "query", "is:unread newer_than:2d")
	return fetchGmail(ctx, d, userID, query)
}

func emailStarred(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, _ map[string]any) ([]Candidate, error) {
	return fetchGmail(ctx, d, userID, "is:starred")
}

func fetchGmail(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, query string) ([]Candidate, error) {
	ops, err := d.Gmail(ctx, userID)
	if err != nil {
		return nil, err
	}
	refs, err := ops.ListMessages(ctx, query, gmailListCap)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	messages, err := ops.GetMessagesDetailed(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(messages))
	for _, m := range messages {
		out = append(out, Candidate{
			ExternalID: m.ID,
			Timestamp:  parseTimestamp(m.InternalDate),
			Trigger: map[string]any{
				"id":      m.ID,
				"from":    m.From,
				"subject": m.Subject,
				"body":    m.Body,
				"date":    m.InternalDate,
			},
		})
	}
	return out, nil
}

func parseTimestamp(iso string) time.Time {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return time.Time{}
	}
	return t
}
