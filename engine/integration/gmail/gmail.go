// Package gmail is a thin, stateless wrapper over the Gmail REST v1 API
// (spec.md §4.2, §6). It holds no credentials — every call takes the
// caller's access token — and performs exactly the HTTP calls named in
// the spec, nothing more.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/workflowd/workflowd/engine/kind"
)

const baseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// detailFetchCap bounds per-poll detail hydration per spec.md §4.2.
const detailFetchCap = 5

// bodyTruncateLen is the max decoded body length kept per message.
const bodyTruncateLen = 500

type Client struct {
	http *resty.Client
}

func New(accessToken string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(accessToken).
		SetTimeout(30 * time.Second)
	return &Client{http: c}
}

type MessageRef struct {
	ID string `json:"id"`
}

type Message struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	From         string `json:"from"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	InternalDate string `json:"internalDate"` // ISO-8601
}

type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int    `json:"messagesTotal"`
}

type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type listMessagesResponse struct {
	Messages []MessageRef `json:"messages"`
}

// ListMessages returns up to max message ids matching query. The caller
// (the new_email / email_starred detectors) is responsible for enforcing
// the 10-item-per-poll cap; this only forwards Gmail's own maxResults.
func (c *Client) ListMessages(ctx context.Context, query string, max int) ([]MessageRef, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("maxResults", fmt.Sprintf("%d", max)).
		SetResult(&listMessagesResponse{}).
		Get("/messages")
	if err != nil {
		return nil, kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return nil, translateError(resp)
	}
	return resp.Result().(*listMessagesResponse).Messages, nil
}

// GetMessage fetches and normalizes one message: decodes the body from
// base64url, prefers text/plain, and truncates to bodyTruncateLen chars.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	var raw rawMessage
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("format", "full").
		SetResult(&raw).
		Get("/messages/" + id)
	if err != nil {
		return nil, kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return nil, translateError(resp)
	}
	return raw.normalize(), nil
}

// GetMessagesDetailed hydrates up to detailFetchCap ids in full, stopping
// early once the cap is reached.
func (c *Client) GetMessagesDetailed(ctx context.Context, ids []string) ([]*Message, error) {
	out := make([]*Message, 0, len(ids))
	for i, id := range ids {
		if i >= detailFetchCap {
			break
		}
		msg, err := c.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var body struct {
		Labels []Label `json:"labels"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/labels")
	if err != nil {
		return nil, kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return nil, translateError(resp)
	}
	return body.Labels, nil
}

func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	resp, err := c.http.R().SetContext(ctx).SetResult(&p).Get("/profile")
	if err != nil {
		return nil, kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return nil, translateError(resp)
	}
	return &p, nil
}

// SendEmail sends a plain-text message via messages.send, building a
// minimal RFC 2822 envelope. Gmail requires the raw message to be
// base64url (no padding).
func (c *Client) SendEmail(ctx context.Context, to, subject, body string) error {
	raw := buildRFC2822(to, "", "", subject, body)
	return c.send(ctx, raw)
}

// ReplyToEmail replies in-thread, preserving threadId and setting
// In-Reply-To/References to messageId.
func (c *Client) ReplyToEmail(ctx context.Context, to, messageID, threadID, subject, body string) error {
	raw := buildRFC2822(to, messageID, messageID, subject, body)
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"raw": raw, "threadId": threadID}).
		Post("/messages/send")
	if err != nil {
		return kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return translateError(resp)
	}
	return nil
}

func (c *Client) send(ctx context.Context, raw string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"raw": raw}).
		Post("/messages/send")
	if err != nil {
		return kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return translateError(resp)
	}
	return nil
}

// AddLabel adds labelIds to a message (used directly by add_label_to_email,
// and by StarEmail for the STARRED system label).
func (c *Client) AddLabel(ctx context.Context, messageID string, labelIDs []string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"addLabelIds": labelIDs}).
		Post("/messages/" + messageID + "/modify")
	if err != nil {
		return kind.New(kind.Transient, err)
	}
	if resp.IsError() {
		return translateError(resp)
	}
	return nil
}

func (c *Client) StarEmail(ctx context.Context, messageID string) error {
	return c.AddLabel(ctx, messageID, []string{"STARRED"})
}

type rawMessage struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		MimeType string `json:"mimeType"`
		Body     struct {
			Data string `json:"data"`
		} `json:"body"`
		Parts []struct {
			MimeType string `json:"mimeType"`
			Body     struct {
				Data string `json:"data"`
			} `json:"body"`
		} `json:"parts"`
	} `json:"payload"`
}

func (r *rawMessage) normalize() *Message {
	m := &Message{ID: r.ID, ThreadID: r.ThreadID}
	for _, h := range r.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			m.From = h.Value
		case "subject":
			m.Subject = h.Value
		}
	}
	m.InternalDate = internalDateToISO(r.InternalDate)
	m.Body = truncate(extractPlainTextBody(r), bodyTruncateLen)
	return m
}

func extractPlainTextBody(r *rawMessage) string {
	if r.Payload.MimeType == "text/plain" && r.Payload.Body.Data != "" {
		return decodeBase64URL(r.Payload.Body.Data)
	}
	for _, p := range r.Payload.Parts {
		if p.MimeType == "text/plain" && p.Body.Data != "" {
			return decodeBase64URL(p.Body.Data)
		}
	}
	return ""
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		return ""
	}
	return string(b)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// internalDateToISO converts Gmail's millisecond-epoch string to ISO-8601.
func internalDateToISO(ms string) string {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return ""
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}

func buildRFC2822(to, inReplyTo, references, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", inReplyTo)
	}
	if references != "" {
		fmt.Fprintf(&b, "References: %s\r\n", references)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n\r\n%s", subject, body)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(b.String()))
}

func translateError(resp *resty.Response) error {
	return kind.FromHTTPStatus(resp.StatusCode(), fmt.Errorf("gmail: %s", resp.String()))
}
