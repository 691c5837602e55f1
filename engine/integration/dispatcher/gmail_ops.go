package dispatcher

import (
	"context"
	"fmt"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/integration/gmail"
)

// GmailOps is a token-bound view over the Gmail adapter for one user;
// its two cacheable reads (listLabels, getProfile) go through the
// dispatcher's shared TTL cache per spec.md §4.3.
type GmailOps struct {
	d      *Dispatcher
	userID core.ID
	client *gmail.Client
}

func (o *GmailOps) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	return cached(ctx, o.d, o.cacheKey("listLabels"), ttlGmailLabels, func() ([]gmail.Label, error) {
		return o.client.ListLabels(ctx)
	})
}

func (o *GmailOps) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	return cached(ctx, o.d, o.cacheKey("getProfile"), ttlGmailProfile, func() (*gmail.Profile, error) {
		return o.client.GetProfile(ctx)
	})
}

// The remaining Gmail operations are not cacheable and pass through
// directly — they are either mutations or per-poll fetches that must
// never be served stale.

func (o *GmailOps) ListMessages(ctx context.Context, query string, max int) ([]gmail.MessageRef, error) {
	return o.client.ListMessages(ctx, query, max)
}

func (o *GmailOps) GetMessagesDetailed(ctx context.Context, ids []string) ([]*gmail.Message, error) {
	return o.client.GetMessagesDetailed(ctx, ids)
}

func (o *GmailOps) SendEmail(ctx context.Context, to, subject, body string) error {
	return o.client.SendEmail(ctx, to, subject, body)
}

func (o *GmailOps) ReplyToEmail(ctx context.Context, to, messageID, threadID, subject, body string) error {
	return o.client.ReplyToEmail(ctx, to, messageID, threadID, subject, body)
}

func (o *GmailOps) AddLabel(ctx context.Context, messageID string, labelIDs []string) error {
	return o.client.AddLabel(ctx, messageID, labelIDs)
}

func (o *GmailOps) StarEmail(ctx context.Context, messageID string) error {
	return o.client.StarEmail(ctx, messageID)
}

func (o *GmailOps) cacheKey(method string) string {
	return fmt.Sprintf("gmail:%s:%s", o.userID, method)
}
