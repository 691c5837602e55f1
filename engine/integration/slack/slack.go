// Package slack wraps the Slack Web API (spec.md §4.2, §4.10) via
// slack-go/slack. Stateless: every call takes the caller's access token.
package slack

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/workflowd/workflowd/engine/kind"
)

type Client struct {
	api *slack.Client
}

func New(accessToken string) *Client {
	return &Client{api: slack.New(accessToken)}
}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WorkspaceInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Message is the normalized shape for a channel-history item, keyed by
// Slack's `ts` — the stable external id per spec.md §4.2.
type Message struct {
	TS        string `json:"ts"`
	Text      string `json:"text"`
	User      string `json:"user"`
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"` // ISO-8601, converted from ts
}

func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	chans, _, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
	})
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]Channel, 0, len(chans))
	for _, ch := range chans {
		out = append(out, Channel{ID: ch.ID, Name: ch.Name})
	}
	return out, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, User{ID: u.ID, Name: u.Name})
	}
	return out, nil
}

func (c *Client) GetWorkspaceInfo(ctx context.Context) (*WorkspaceInfo, error) {
	team, err := c.api.GetTeamInfoContext(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return &WorkspaceInfo{ID: team.ID, Name: team.Name, Domain: team.Domain}, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return &User{ID: resp.UserID, Name: resp.User}, nil
}

// ListChannelMessages fetches recent history for a channel, newest-first,
// normalizing `ts` to both the raw Slack value and an ISO-8601 timestamp
// (spec.md §4.2's "Slack fetch" normalization rule).
func (c *Client) ListChannelMessages(ctx context.Context, channel string, limit int) ([]Message, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Limit:     limit,
	})
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, Message{
			TS:        m.Timestamp,
			Text:      m.Text,
			User:      m.User,
			Channel:   channel,
			Timestamp: tsToISO(m.Timestamp),
		})
	}
	return out, nil
}

func (c *Client) PostMessage(ctx context.Context, channel, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return "", translateError(err)
	}
	return ts, nil
}

// PostDM opens (or reuses) a DM conversation with userID and posts text.
func (c *Client) PostDM(ctx context.Context, userID, text string) (string, error) {
	channel, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return "", translateError(err)
	}
	return c.PostMessage(ctx, channel.ID, text)
}

func (c *Client) UpdateMessage(ctx context.Context, channel, messageTS, text string) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, channel, messageTS, slack.MsgOptionText(text, false))
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channel, messageTS, reactionName string) error {
	err := c.api.AddReactionContext(ctx, reactionName, slack.NewRefToMessage(channel, messageTS))
	if err != nil {
		return translateError(err)
	}
	return nil
}

// tsToISO converts a Slack `ts` ("1234567890.123456") to ISO-8601.
func tsToISO(ts string) string {
	parts := strings.SplitN(ts, ".", 2)
	secs, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return ""
	}
	var nanos int64
	if len(parts) == 2 {
		if frac, err := strconv.ParseFloat("0."+parts[1], 64); err == nil {
			nanos = int64(frac * float64(time.Second))
		}
	}
	return time.Unix(int64(secs), nanos).UTC().Format(time.RFC3339)
}

// translateError maps a Slack API error into the kind taxonomy.
// slack-go surfaces rate limits as *slack.RateLimitedError and ok:false
// payloads as slack.SlackErrorResponse. Rate limits become RateLimited;
// everything else, ok:false payloads and transport errors alike, becomes
// ProviderError.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var rl *slack.RateLimitedError
	if asRateLimited(err, &rl) {
		return kind.NewRateLimited(err, int(rl.RetryAfter/time.Second))
	}
	return kind.New(kind.ProviderError, fmt.Errorf("slack: %w", err))
}

func asRateLimited(err error, target **slack.RateLimitedError) bool {
	if rl, ok := err.(*slack.RateLimitedError); ok {
		*target = rl
		return true
	}
	return false
}
