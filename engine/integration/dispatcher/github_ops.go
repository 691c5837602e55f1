package dispatcher

import (
	"context"
	"fmt"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/integration/github"
)

// GitHubOps is a token-bound view over the GitHub adapter for one user.
type GitHubOps struct {
	d      *Dispatcher
	userID core.ID
	client *github.Client
}

func (o *GitHubOps) ListRepos(ctx context.Context) ([]github.Repo, error) {
	return cached(ctx, o.d, o.cacheKey("listRepos"), ttlGitHubRepos, func() ([]github.Repo, error) {
		return o.client.ListRepos(ctx)
	})
}

func (o *GitHubOps) GetCurrentUser(ctx context.Context) (*github.User, error) {
	return cached(ctx, o.d, o.cacheKey("getCurrentUser"), ttlGitHubCurrentUsr, func() (*github.User, error) {
		return o.client.GetCurrentUser(ctx)
	})
}

func (o *GitHubOps) ListIssues(ctx context.Context, owner, repo string) ([]github.Issue, error) {
	return o.client.ListIssues(ctx, owner, repo)
}

func (o *GitHubOps) ListPullRequests(ctx context.Context, owner, repo string) ([]github.Issue, error) {
	return o.client.ListPullRequests(ctx, owner, repo)
}

func (o *GitHubOps) ListIssueComments(ctx context.Context, owner, repo string, issueNumber int) ([]github.Comment, error) {
	return o.client.ListIssueComments(ctx, owner, repo, issueNumber)
}

func (o *GitHubOps) ListCommits(ctx context.Context, owner, repo, branch string) ([]github.Commit, error) {
	return o.client.ListCommits(ctx, owner, repo, branch)
}

func (o *GitHubOps) CreateIssue(ctx context.Context, owner, repo, title, body string) (*github.Issue, error) {
	return o.client.CreateIssue(ctx, owner, repo, title, body)
}

func (o *GitHubOps) AddCommentToIssue(ctx context.Context, owner, repo string, issueNumber int, comment string) error {
	return o.client.AddCommentToIssue(ctx, owner, repo, issueNumber, comment)
}

func (o *GitHubOps) CloseIssue(ctx context.Context, owner, repo string, issueNumber int) error {
	return o.client.CloseIssue(ctx, owner, repo, issueNumber)
}

func (o *GitHubOps) AssignIssue(ctx context.Context, owner, repo string, issueNumber int, assignees []string) error {
	return o.client.AssignIssue(ctx, owner, repo, issueNumber, assignees)
}

func (o *GitHubOps) cacheKey(method string) string {
	return fmt.Sprintf("github:%s:%s", o.userID, method)
}
