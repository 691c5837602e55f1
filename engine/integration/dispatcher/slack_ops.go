package dispatcher

import (
	"context"
	"fmt"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/integration/slack"
)

// SlackOps is a token-bound view over the Slack adapter for one user.
type SlackOps struct {
	d      *Dispatcher
	userID core.ID
	client *slack.Client
}

func (o *SlackOps) ListChannels(ctx context.Context) ([]slack.Channel, error) {
	return cached(ctx, o.d, o.cacheKey("listChannels"), ttlSlackChannels, func() ([]slack.Channel, error) {
		return o.client.ListChannels(ctx)
	})
}

func (o *SlackOps) ListUsers(ctx context.Context) ([]slack.User, error) {
	return cached(ctx, o.d, o.cacheKey("listUsers"), ttlSlackUsers, func() ([]slack.User, error) {
		return o.client.ListUsers(ctx)
	})
}

func (o *SlackOps) GetWorkspaceInfo(ctx context.Context) (*slack.WorkspaceInfo, error) {
	return cached(ctx, o.d, o.cacheKey("getWorkspaceInfo"), ttlSlackWorkspace, func() (*slack.WorkspaceInfo, error) {
		return o.client.GetWorkspaceInfo(ctx)
	})
}

func (o *SlackOps) GetCurrentUser(ctx context.Context) (*slack.User, error) {
	return cached(ctx, o.d, o.cacheKey("getCurrentUser"), ttlSlackCurrentUsr, func() (*slack.User, error) {
		return o.client.GetCurrentUser(ctx)
	})
}

func (o *SlackOps) ListChannelMessages(ctx context.Context, channel string, limit int) ([]slack.Message, error) {
	return o.client.ListChannelMessages(ctx, channel, limit)
}

func (o *SlackOps) PostMessage(ctx context.Context, channel, text string) (string, error) {
	return o.client.PostMessage(ctx, channel, text)
}

func (o *SlackOps) PostDM(ctx context.Context, userID, text string) (string, error) {
	return o.client.PostDM(ctx, userID, text)
}

func (o *SlackOps) UpdateMessage(ctx context.Context, channel, messageTS, text string) error {
	return o.client.UpdateMessage(ctx, channel, messageTS, text)
}

func (o *SlackOps) AddReaction(ctx context.Context, channel, messageTS, reactionName string) error {
	return o.client.AddReaction(ctx, channel, messageTS, reactionName)
}

func (o *SlackOps) cacheKey(method string) string {
	return fmt.Sprintf("slack:%s:%s", o.userID, method)
}
