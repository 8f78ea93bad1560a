// Package ghclient wraps the subset of the GitHub REST and GraphQL APIs
// reviewd's hosted backend needs: pull request lookup, unified diff and
// file content retrieval, and review-thread comment mutations, with
// rate-limit tracking.
package ghclient

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/go-github/v68/github"
)

// Client is the subset of GitHub operations reviewd's hosted backend needs.
type Client interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	GetPullRequestByBranch(ctx context.Context, owner, repo, branch string) (*github.PullRequest, error)
	ListFiles(ctx context.Context, owner, repo string, number int) ([]*github.CommitFile, error)
	GetDiff(ctx context.Context, owner, repo string, number int) (string, error)
	ListReviewComments(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestComment, error)
	CreatePullRequest(ctx context.Context, owner, repo, title, head, base string) (*github.PullRequest, error)
	GetFileContentAtRef(ctx context.Context, owner, repo, path, ref string) (string, bool, error)

	AddReviewThread(ctx context.Context, owner, repo string, number int, in AddReviewThreadInput) (*ReviewThread, error)
	ReplyToReviewThread(ctx context.Context, threadID, body string) (*ReviewThread, error)
	ResolveReviewThread(ctx context.Context, threadID string) error
	UnresolveReviewThread(ctx context.Context, threadID string) error

	RateLimit() RateLimitState
}

type clientImpl struct {
	gh    *github.Client
	token string
	rl    *rateLimitState
}

// NewClient creates a GitHub client authenticated with the given PAT.
// Returns nil if token is empty.
func NewClient(token string) Client {
	if token == "" {
		return nil
	}
	return &clientImpl{
		gh:    github.NewClient(nil).WithAuthToken(token),
		token: token,
		rl:    &rateLimitState{},
	}
}

// NewClientWithGitHub builds a Client around an existing *github.Client,
// used in tests to point at an httptest server the way
// ghclient/client_test.go injects one.
func NewClientWithGitHub(gh *github.Client, token string) Client {
	return &clientImpl{gh: gh, token: token, rl: &rateLimitState{}}
}

func (c *clientImpl) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	c.rl.update(resp)
	return pr, err
}

func (c *clientImpl) GetPullRequestByBranch(ctx context.Context, owner, repo, branch string) (*github.PullRequest, error) {
	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		Head:        owner + ":" + branch,
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 1},
	})
	c.rl.update(resp)
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return prs[0], nil
}

func (c *clientImpl) ListFiles(ctx context.Context, owner, repo string, number int) ([]*github.CommitFile, error) {
	var all []*github.CommitFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		c.rl.update(resp)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// GetDiff fetches the PR's unified diff via the
// application/vnd.github.v3.diff media type, per DESIGN.md's decision to
// source the hosted diff from REST rather than reconstruct it from
// GraphQL's per-file patches.
func (c *clientImpl) GetDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, resp, err := c.gh.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	c.rl.update(resp)
	return diff, err
}

func (c *clientImpl) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestComment, error) {
	var all []*github.PullRequestComment
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.gh.PullRequests.ListComments(ctx, owner, repo, number, opts)
		c.rl.update(resp)
		if err != nil {
			return nil, err
		}
		all = append(all, comments...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (c *clientImpl) CreatePullRequest(ctx context.Context, owner, repo, title, head, base string) (*github.PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
	})
	c.rl.update(resp)
	return pr, err
}

// GetFileContentAtRef fetches a single file's decoded content at ref.
// Returns (_, false, nil) if the path doesn't exist at that ref.
func (c *clientImpl) GetFileContentAtRef(ctx context.Context, owner, repo, path, ref string) (string, bool, error) {
	fileContent, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	c.rl.update(resp)
	if resp != nil && resp.StatusCode == 404 {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if fileContent == nil {
		return "", false, nil
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

func (c *clientImpl) RateLimit() RateLimitState {
	return c.rl.snapshot()
}

// --- PR URL parsing ---

var prURLRegex = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/pull/(\d+)`)

// PRReference holds the parsed components of a GitHub PR reference.
// ParsePRURL accepts two forms: a full HTTPS pull request URL or an
// `owner/repo#123` shorthand; SSH remotes are not parsed.
type PRReference struct {
	Owner  string
	Repo   string
	Number int
}

var shorthandRegex = regexp.MustCompile(`^([^/\s]+)/([^/\s#]+)#(\d+)$`)

// ParsePRURL parses a GitHub pull request reference into owner/repo/number.
func ParsePRURL(raw string) (*PRReference, error) {
	if m := prURLRegex.FindStringSubmatch(raw); m != nil {
		number, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, fmt.Errorf("invalid PR number in %q: %w", raw, err)
		}
		return &PRReference{Owner: m[1], Repo: m[2], Number: number}, nil
	}
	if m := shorthandRegex.FindStringSubmatch(raw); m != nil {
		number, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, fmt.Errorf("invalid PR number in %q: %w", raw, err)
		}
		return &PRReference{Owner: m[1], Repo: m[2], Number: number}, nil
	}
	return nil, fmt.Errorf("invalid GitHub PR reference: %q", raw)
}
