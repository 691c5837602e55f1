package trigger

import (
	"context"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/integration/dispatcher"
)

const slackChannelLimit = 10

func newChannelMessage(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, cfg map[string]any) ([]Candidate, error) {
	channel, ok := requireStringCfg(cfg, "channel")
	if !ok {
		return nil, nil
	}
	ops, err := d.Slack(ctx, userID)
	if err != nil {
		return nil, err
	}
	messages, err := ops.ListChannelMessages(ctx, channel, slackChannelLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(messages))
	for _, m := range messages {
		out = append(out, Candidate{
			ExternalID: m.TS,
			Timestamp:  parseTimestamp(m.Timestamp),
			Trigger: map[string]any{
				"ts":      m.TS,
				"text":    m.Text,
				"user":    m.User,
				"channel": m.Channel,
			},
		})
	}
	return out, nil
}
