// Package github wraps the GitHub REST v3 API (spec.md §4.2, §4.4, §4.10)
// via google/go-github. Stateless: every call takes the caller's access
// token.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gogithub "github.com/google/go-github/v74/github"

	"github.com/workflowd/workflowd/engine/kind"
)

type Client struct {
	gh *gogithub.Client
}

func New(accessToken string) *Client {
	return &Client{gh: gogithub.NewClient(nil).WithAuthToken(accessToken)}
}

// Issue is the normalized shape for issues and pull requests — GitHub
// represents a PR as an issue with a non-nil PullRequestLinks, which is
// how IsPullRequest is derived.
type Issue struct {
	Number          string `json:"number"` // stringified per spec.md §4.4
	Title           string `json:"title"`
	Body            string `json:"body"`
	State           string `json:"state"`
	User            string `json:"user"`
	CreatedAt       string `json:"created_at"` // ISO-8601
	IsPullRequest   bool   `json:"is_pull_request"`
}

type Comment struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	User      string `json:"user"`
	CreatedAt string `json:"created_at"`
}

type Commit struct {
	SHA       string `json:"sha"` // stable external id
	Message   string `json:"message"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

type Repo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

type User struct {
	Login string `json:"login"`
}

// ListIssues returns open issues (excluding pull requests), descending by
// creation time, per spec.md §4.4's `new_issue` rule.
func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, &gogithub.IssueListByRepoOptions{
		State:     "open",
		Sort:      "created",
		Direction: "desc",
	})
	if err != nil {
		return nil, translateError(resp, err)
	}
	out := make([]Issue, 0, len(issues))
	for _, i := range issues {
		if i.IsPullRequest() {
			continue
		}
		out = append(out, normalizeIssue(i))
	}
	return out, nil
}

// ListPullRequests returns open PRs, per `pull_request_opened`.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string) ([]Issue, error) {
	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, &gogithub.PullRequestListOptions{
		State:     "open",
		Sort:      "created",
		Direction: "desc",
	})
	if err != nil {
		return nil, translateError(resp, err)
	}
	out := make([]Issue, 0, len(prs))
	for _, pr := range prs {
		out = append(out, Issue{
			Number:        strconv.Itoa(pr.GetNumber()),
			Title:         pr.GetTitle(),
			Body:          pr.GetBody(),
			State:         pr.GetState(),
			User:          pr.GetUser().GetLogin(),
			CreatedAt:     pr.GetCreatedAt().Format(time.RFC3339),
			IsPullRequest: true,
		})
	}
	return out, nil
}

// ListIssueComments supports `issue_commented`.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, issueNumber int) ([]Comment, error) {
	comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, issueNumber, &gogithub.IssueListCommentsOptions{
		Sort:      gogithub.Ptr("created"),
		Direction: gogithub.Ptr("desc"),
	})
	if err != nil {
		return nil, translateError(resp, err)
	}
	out := make([]Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, Comment{
			ID:        strconv.FormatInt(cm.GetID(), 10),
			Body:      cm.GetBody(),
			User:      cm.GetUser().GetLogin(),
			CreatedAt: cm.GetCreatedAt().Format(time.RFC3339),
		})
	}
	return out, nil
}

// ListCommits supports `commit_pushed`; branch="" means GitHub's default.
func (c *Client) ListCommits(ctx context.Context, owner, repo, branch string) ([]Commit, error) {
	opts := &gogithub.CommitsListOptions{}
	if branch != "" {
		opts.SHA = branch
	}
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
	if err != nil {
		return nil, translateError(resp, err)
	}
	out := make([]Commit, 0, len(commits))
	for _, cm := range commits {
		out = append(out, Commit{
			SHA:       cm.GetSHA(),
			Message:   cm.GetCommit().GetMessage(),
			Author:    cm.GetCommit().GetAuthor().GetName(),
			CreatedAt: cm.GetCommit().GetAuthor().GetDate().Format(time.RFC3339),
		})
	}
	return out, nil
}

func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string) (*Issue, error) {
	issue, resp, err := c.gh.Issues.Create(ctx, owner, repo, &gogithub.IssueRequest{
		Title: gogithub.Ptr(title),
		Body:  gogithub.Ptr(body),
	})
	if err != nil {
		return nil, translateError(resp, err)
	}
	n := normalizeIssue(issue)
	return &n, nil
}

func (c *Client) AddCommentToIssue(ctx context.Context, owner, repo string, issueNumber int, comment string) error {
	_, resp, err := c.gh.Issues.CreateComment(ctx, owner, repo, issueNumber, &gogithub.IssueComment{
		Body: gogithub.Ptr(comment),
	})
	if err != nil {
		return translateError(resp, err)
	}
	return nil
}

func (c *Client) CloseIssue(ctx context.Context, owner, repo string, issueNumber int) error {
	_, resp, err := c.gh.Issues.Edit(ctx, owner, repo, issueNumber, &gogithub.IssueRequest{
		State: gogithub.Ptr("closed"),
	})
	if err != nil {
		return translateError(resp, err)
	}
	return nil
}

func (c *Client) AssignIssue(ctx context.Context, owner, repo string, issueNumber int, assignees []string) error {
	_, resp, err := c.gh.Issues.AddAssignees(ctx, owner, repo, issueNumber, assignees)
	if err != nil {
		return translateError(resp, err)
	}
	return nil
}

func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	repos, resp, err := c.gh.Repositories.List(ctx, "", &gogithub.RepositoryListOptions{})
	if err != nil {
		return nil, translateError(resp, err)
	}
	out := make([]Repo, 0, len(repos))
	for _, r := range repos {
		out = append(out, Repo{Name: r.GetName(), FullName: r.GetFullName()})
	}
	return out, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, translateError(resp, err)
	}
	return &User{Login: user.GetLogin()}, nil
}

func normalizeIssue(i *gogithub.Issue) Issue {
	return Issue{
		Number:        strconv.Itoa(i.GetNumber()),
		Title:         i.GetTitle(),
		Body:          i.GetBody(),
		State:         i.GetState(),
		User:          i.GetUser().GetLogin(),
		CreatedAt:     i.GetCreatedAt().Format(time.RFC3339),
		IsPullRequest: i.IsPullRequest(),
	}
}

func translateError(resp *gogithub.Response, err error) error {
	if resp == nil || resp.Response == nil {
		return kind.New(kind.Transient, err)
	}
	status := resp.StatusCode
	if rl, ok := err.(*gogithub.RateLimitError); ok {
		return kind.NewRateLimited(err, int(time.Until(rl.Rate.Reset.Time).Seconds()))
	}
	if status == http.StatusForbidden && isSecondaryRateLimit(err) {
		return kind.New(kind.RateLimited, err)
	}
	return kind.FromHTTPStatus(status, fmt.Errorf("github: %w", err))
}

func isSecondaryRateLimit(err error) bool {
	_, ok := err.(*gogithub.AbuseRateLimitError)
	return ok
}
