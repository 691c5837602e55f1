package interpreter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/credential"
	"github.com/workflowd/workflowd/engine/eventlog"
	"github.com/workflowd/workflowd/engine/interpreter/template"
	"github.com/workflowd/workflowd/engine/kind"
	"github.com/workflowd/workflowd/engine/workflow"
)

// runAction carries out one action step per spec.md §4.9-§4.10: log
// action_started, attempt execution, then log the terminal outcome.
func (ip *Interpreter) runAction(
	ctx context.Context,
	userID core.ID,
	workflowID, runID core.ID,
	step *workflow.Step,
	data map[string]any,
) (workflow.StepResult, error) {
	actionID := step.ActionID
	if actionID == "" {
		actionID = step.AppName // fallback, tolerated for backwards compatibility
	}
	_ = ip.events.Record(ctx, eventlog.ActionStartedEvent(workflowID, runID, actionID))
	result, err := ip.execute(ctx, userID, actionID, step.Config, data)
	now := time.Now()
	if err != nil {
		_ = ip.events.Record(ctx, eventlog.ActionFailedEvent(workflowID, runID, actionID, err.Error()))
		return workflow.StepResult{StepID: step.ID, Status: "failed", Detail: err.Error(), Timestamp: now}, err
	}
	_ = ip.events.Record(ctx, eventlog.ActionCompletedEvent(workflowID, runID, actionID, result))
	return workflow.StepResult{StepID: step.ID, Status: "success", Detail: result, Timestamp: now}, nil
}

// execute dispatches to the action named by actionID, the closed set from
// spec.md §4.10.
func (ip *Interpreter) execute(ctx context.Context, userID core.ID, actionID string, cfg, data map[string]any) (string, error) {
	switch actionID {
	case "send_channel_message":
		return ip.sendChannelMessage(ctx, userID, cfg, data)
	case "send_dm":
		return ip.sendDM(ctx, userID, cfg, data)
	case "update_message":
		return ip.updateMessage(ctx, userID, cfg)
	case "add_reaction":
		return ip.addReaction(ctx, userID, cfg)
	case "send_email":
		return ip.sendEmail(ctx, userID, cfg, data)
	case "reply_to_email":
		return ip.replyToEmail(ctx, userID, cfg, data)
	case "add_label_to_email":
		return ip.addLabelToEmail(ctx, userID, cfg, data)
	case "star_email":
		return ip.starEmail(ctx, userID, cfg, data)
	case "create_issue":
		return ip.createIssue(ctx, userID, cfg, data)
	case "add_comment_to_issue":
		return ip.addCommentToIssue(ctx, userID, cfg, data)
	case "close_issue":
		return ip.closeIssue(ctx, userID, cfg)
	case "assign_issue":
		return ip.assignIssue(ctx, userID, cfg)
	case "send_webhook":
		return ip.sendWebhook(ctx, cfg, data)
	default:
		return "", kind.New(kind.InvalidRequest, fmt.Errorf("interpreter: unknown action_id %q", actionID))
	}
}

func (ip *Interpreter) sendChannelMessage(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	channel, ok := cfgString(cfg, "channel")
	if !ok {
		return "", invalidf("send_channel_message: channel required")
	}
	text := firstNonEmpty(cfg, data, "message", "text", "description")
	ops, err := ip.dispatcher.Slack(ctx, userID)
	if err != nil {
		return "", err
	}
	return ops.PostMessage(ctx, channel, text)
}

// sendDM has no required config: when no target user is given, it falls
// back to the installing user recorded in the Slack credential's metadata
// at connect time, per spec.md §4.10.
func (ip *Interpreter) sendDM(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	target := cfgStringOr(cfg, "userId", cfgStringOr(cfg, "user_id", ""))
	if target == "" {
		cred, err := ip.creds.Load(ctx, userID, credential.AppSlack)
		if err != nil {
			return "", invalidf("send_dm: no target user and no installing user on record")
		}
		if v, ok := cred.Metadata["installer_user_id"].(string); ok {
			target = v
		}
	}
	if target == "" {
		return "", invalidf("send_dm: could not resolve a target user")
	}
	text := firstNonEmpty(cfg, data, "text", "message")
	ops, err := ip.dispatcher.Slack(ctx, userID)
	if err != nil {
		return "", err
	}
	return ops.PostDM(ctx, target, text)
}

func (ip *Interpreter) updateMessage(ctx context.Context, userID core.ID, cfg map[string]any) (string, error) {
	channel, ok1 := cfgString(cfg, "channel")
	ts, ok2 := cfgString(cfg, "messageTs")
	text, ok3 := cfgString(cfg, "text")
	if !ok1 || !ok2 || !ok3 {
		return "", invalidf("update_message: channel, messageTs, text required")
	}
	ops, err := ip.dispatcher.Slack(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.UpdateMessage(ctx, channel, ts, text); err != nil {
		return "", err
	}
	return "updated", nil
}

func (ip *Interpreter) addReaction(ctx context.Context, userID core.ID, cfg map[string]any) (string, error) {
	channel, ok1 := cfgString(cfg, "channel")
	ts, ok2 := cfgString(cfg, "messageTs")
	name, ok3 := cfgString(cfg, "reactionName")
	if !ok1 || !ok2 || !ok3 {
		return "", invalidf("add_reaction: channel, messageTs, reactionName required")
	}
	ops, err := ip.dispatcher.Slack(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.AddReaction(ctx, channel, ts, name); err != nil {
		return "", err
	}
	return "reacted", nil
}

func (ip *Interpreter) sendEmail(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	to, ok := cfgString(cfg, "to")
	if !ok {
		return "", invalidf("send_email: to required")
	}
	subject := template.Substitute(cfgStringOr(cfg, "subject", ""), data)
	body := template.Substitute(cfgStringOr(cfg, "body", ""), data)
	ops, err := ip.dispatcher.Gmail(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.SendEmail(ctx, to, subject, body); err != nil {
		return "", err
	}
	return "sent", nil
}

func (ip *Interpreter) replyToEmail(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	messageID, ok1 := cfgString(cfg, "messageId")
	threadID, ok2 := cfgString(cfg, "threadId")
	if !ok1 || !ok2 {
		return "", invalidf("reply_to_email: messageId and threadId required")
	}
	messageID = template.Substitute(messageID, data)
	threadID = template.Substitute(threadID, data)
	to := cfgStringOr(cfg, "to", "")
	if to == "" {
		to, _ = template.Resolve("trigger.from", data)
	}
	subject := template.Substitute(cfgStringOr(cfg, "subject", ""), data)
	body := template.Substitute(cfgStringOr(cfg, "body", ""), data)
	ops, err := ip.dispatcher.Gmail(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.ReplyToEmail(ctx, to, messageID, threadID, subject, body); err != nil {
		return "", err
	}
	return "replied", nil
}

func (ip *Interpreter) addLabelToEmail(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	messageID, ok := cfgString(cfg, "messageId")
	if !ok {
		return "", invalidf("add_label_to_email: messageId required")
	}
	messageID = template.Substitute(messageID, data)
	labelIDs := cfgStringSlice(cfg, "labelIds")
	if len(labelIDs) == 0 {
		return "", invalidf("add_label_to_email: labelIds required")
	}
	ops, err := ip.dispatcher.Gmail(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.AddLabel(ctx, messageID, labelIDs); err != nil {
		return "", err
	}
	return "labeled", nil
}

func (ip *Interpreter) starEmail(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	messageID, ok := cfgString(cfg, "messageId")
	if !ok {
		return "", invalidf("star_email: messageId required")
	}
	messageID = template.Substitute(messageID, data)
	ops, err := ip.dispatcher.Gmail(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.StarEmail(ctx, messageID); err != nil {
		return "", err
	}
	return "starred", nil
}

func (ip *Interpreter) createIssue(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	owner, ok1 := cfgString(cfg, "owner")
	repo, ok2 := cfgString(cfg, "repo")
	if !ok1 || !ok2 {
		return "", invalidf("create_issue: owner and repo required")
	}
	title := template.Substitute(cfgStringOr(cfg, "title", ""), data)
	body := template.Substitute(cfgStringOr(cfg, "body", ""), data)
	ops, err := ip.dispatcher.GitHub(ctx, userID)
	if err != nil {
		return "", err
	}
	issue, err := ops.CreateIssue(ctx, owner, repo, title, body)
	if err != nil {
		return "", err
	}
	return issue.Number, nil
}

func (ip *Interpreter) addCommentToIssue(ctx context.Context, userID core.ID, cfg, data map[string]any) (string, error) {
	owner, repo, issueNum, ok := ownerRepoIssue(cfg)
	if !ok {
		return "", invalidf("add_comment_to_issue: owner, repo, issue_number required")
	}
	comment := template.Substitute(cfgStringOr(cfg, "comment", ""), data)
	ops, err := ip.dispatcher.GitHub(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.AddCommentToIssue(ctx, owner, repo, issueNum, comment); err != nil {
		return "", err
	}
	return "commented", nil
}

func (ip *Interpreter) closeIssue(ctx context.Context, userID core.ID, cfg map[string]any) (string, error) {
	owner, repo, issueNum, ok := ownerRepoIssue(cfg)
	if !ok {
		return "", invalidf("close_issue: owner, repo, issue_number required")
	}
	ops, err := ip.dispatcher.GitHub(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.CloseIssue(ctx, owner, repo, issueNum); err != nil {
		return "", err
	}
	return "closed", nil
}

func (ip *Interpreter) assignIssue(ctx context.Context, userID core.ID, cfg map[string]any) (string, error) {
	owner, repo, issueNum, ok := ownerRepoIssue(cfg)
	if !ok {
		return "", invalidf("assign_issue: owner, repo, issue_number required")
	}
	assignees := cfgStringSlice(cfg, "assignees")
	if len(assignees) == 0 {
		return "", invalidf("assign_issue: assignees required")
	}
	ops, err := ip.dispatcher.GitHub(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := ops.AssignIssue(ctx, owner, repo, issueNum, assignees); err != nil {
		return "", err
	}
	return "assigned", nil
}

func (ip *Interpreter) sendWebhook(ctx context.Context, cfg, data map[string]any) (string, error) {
	url, ok := cfgString(cfg, "url")
	if !ok {
		return "", invalidf("send_webhook: url required")
	}
	payload := cfg["payload"]
	if s, ok := payload.(string); ok {
		payload = template.Substitute(s, data)
	}
	if err := ip.dispatcher.Webhook().Send(ctx, url, payload); err != nil {
		return "", err
	}
	return "sent", nil
}

func ownerRepoIssue(cfg map[string]any) (owner, repo string, issueNum int, ok bool) {
	owner, ok1 := cfgString(cfg, "owner")
	repo, ok2 := cfgString(cfg, "repo")
	n, ok3 := requireInt(cfg, "issue_number")
	return owner, repo, n, ok1 && ok2 && ok3
}

func firstNonEmpty(cfg, data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := cfgString(cfg, k); ok {
			return template.Substitute(s, data)
		}
	}
	return ""
}

func cfgString(cfg map[string]any, key string) (string, bool) {
	v, ok := cfg[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func cfgStringOr(cfg map[string]any, key, fallback string) string {
	if s, ok := cfgString(cfg, key); ok {
		return s
	}
	return fallback
}

func cfgStringSlice(cfg map[string]any, key string) []string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func requireInt(cfg map[string]any, key string) (int, bool) {
	v, ok := cfg[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func invalidf(format string, a ...any) error {
	return kind.New(kind.InvalidRequest, fmt.Errorf(format, a...))
}
