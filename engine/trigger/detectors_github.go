package trigger

import (
	"context"
	"strconv"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/integration/dispatcher"
	"github.com/workflowd/workflowd/engine/integration/github"
)

func newIssue(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, cfg map[string]any) ([]Candidate, error) {
	owner, repo, ok := ownerRepo(cfg)
	if !ok {
		return nil, nil
	}
	ops, err := d.GitHub(ctx, userID)
	if err != nil {
		return nil, err
	}
	issues, err := ops.ListIssues(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return issuesToCandidates(issues), nil
}

func pullRequestOpened(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, cfg map[string]any) ([]Candidate, error) {
	owner, repo, ok := ownerRepo(cfg)
	if !ok {
		return nil, nil
	}
	ops, err := d.GitHub(ctx, userID)
	if err != nil {
		return nil, err
	}
	prs, err := ops.ListPullRequests(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return issuesToCandidates(prs), nil
}

func issueCommented(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, cfg map[string]any) ([]Candidate, error) {
	owner, repo, ok := ownerRepo(cfg)
	if !ok {
		return nil, nil
	}
	issueNumStr, ok := requireStringCfg(cfg, "issue_number")
	if !ok {
		return nil, nil
	}
	issueNum, err := strconv.Atoi(issueNumStr)
	if err != nil {
		return nil, nil
	}
	ops, err := d.GitHub(ctx, userID)
	if err != nil {
		return nil, err
	}
	comments, err := ops.ListIssueComments(ctx, owner, repo, issueNum)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(comments))
	for _, c := range comments {
		out = append(out, Candidate{
			ExternalID: c.ID,
			Timestamp:  parseTimestamp(c.CreatedAt),
			Trigger: map[string]any{
				"id":   c.ID,
				"body": c.Body,
				"user": c.User,
			},
		})
	}
	return out, nil
}

func commitPushed(ctx context.Context, d *dispatcher.Dispatcher, userID core.ID, cfg map[string]any) ([]Candidate, error) {
	owner, repo, ok := ownerRepo(cfg)
	if !ok {
		return nil, nil
	}
	branch := stringCfg(cfg, "branch", "")
	ops, err := d.GitHub(ctx, userID)
	if err != nil {
		return nil, err
	}
	commits, err := ops.ListCommits(ctx, owner, repo, branch)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(commits))
	for _, c := range commits {
		out = append(out, Candidate{
			ExternalID: c.SHA,
			Timestamp:  parseTimestamp(c.CreatedAt),
			Trigger: map[string]any{
				"sha":     c.SHA,
				"message": c.Message,
				"author":  c.Author,
			},
		})
	}
	return out, nil
}

func ownerRepo(cfg map[string]any) (owner, repo string, ok bool) {
	owner, ok1 := requireStringCfg(cfg, "owner")
	repo, ok2 := requireStringCfg(cfg, "repo")
	return owner, repo, ok1 && ok2
}

func issuesToCandidates(issues []github.Issue) []Candidate {
	out := make([]Candidate, 0, len(issues))
	for _, i := range issues {
		out = append(out, Candidate{
			ExternalID: i.Number,
			Timestamp:  parseTimestamp(i.CreatedAt),
			Trigger: map[string]any{
				"number": i.Number,
				"title":  i.Title,
				"body":   i.Body,
				"user":   i.User,
			},
		})
	}
	return out
}
