// Package webhook implements the `send_webhook` action (spec.md §4.10):
// a generic outbound HTTP POST with a 10 s timeout. It is the one
// "adapter" with no associated trigger and no OAuth credential.
package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/workflowd/workflowd/engine/kind"
)

const timeout = 10 * time.Second

type Client struct {
	http *resty.Client
}

func New() *Client {
	return &Client{http: resty.New().SetTimeout(timeout)}
}

// Send posts payload to url. Per spec.md §4.10, if url is Slack-hosted
// and payload is a raw string, it's wrapped as {"text": payload} before
// sending so a bare string action config still produces a valid Slack
// incoming-webhook body.
func (c *Client) Send(ctx context.Context, url string, payload any) error {
	body := payload
	if s, ok := payload.(string); ok && isSlackHosted(url) {
		body = map[string]any{"text": s}
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(url)
	if err != nil {
		return kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return kind.FromHTTPStatus(resp.StatusCode(), fmt.Errorf("webhook: %s", resp.String()))
	}
	return nil
}

func isSlackHosted(url string) bool {
	return strings.Contains(url, "hooks.slack.com")
}
