// Package hosted implements backend.Backend over a hosted GitHub pull
// request: REST for file listing, diff and content retrieval, GraphQL
// for review-thread mutations, with rate-limit awareness surfaced
// through reviewerr.
package hosted

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/ghclient"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
)

// Backend is a hosted-pull-request-backed review session.
type Backend struct {
	sessionID string
	owner     string
	repo      string
	number    int
	client    ghclient.Client
}

// New constructs a hosted backend for a session.
func New(sessionID, owner, repo string, number int, client ghclient.Client) *Backend {
	return &Backend{sessionID: sessionID, owner: owner, repo: repo, number: number, client: client}
}

func (b *Backend) SessionID() string   { return b.sessionID }
func (b *Backend) SessionType() string { return "hosted" }

func (b *Backend) Descriptor() map[string]any {
	return map[string]any{
		"type":   "hosted",
		"owner":  b.owner,
		"repo":   b.repo,
		"number": b.number,
	}
}

func (b *Backend) checkRateLimit() error {
	state := b.client.RateLimit()
	if !state.Allow(time.Now()) {
		return reviewerr.New(reviewerr.KindUpstream, "GitHub API rate limit exhausted").
			WithDetail("reset-at", state.ResetAt)
	}
	return nil
}

func (b *Backend) ListFiles(ctx context.Context) ([]backend.FileEntry, error) {
	if err := b.checkRateLimit(); err != nil {
		return nil, err
	}
	files, err := b.client.ListFiles(ctx, b.owner, b.repo, b.number)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to list pull request files")
	}
	out := make([]backend.FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, backend.FileEntry{Path: f.GetFilename(), Status: statusFromGitHub(f.GetStatus())})
	}
	return out, nil
}

func statusFromGitHub(s string) backend.FileStatus {
	switch s {
	case "added":
		return backend.StatusAdded
	case "removed":
		return backend.StatusDeleted
	case "renamed":
		return backend.StatusRenamed
	default:
		return backend.StatusModified
	}
}

func (b *Backend) GetDiff(ctx context.Context) (string, error) {
	if err := b.checkRateLimit(); err != nil {
		return "", err
	}
	diff, err := b.client.GetDiff(ctx, b.owner, b.repo, b.number)
	if err != nil {
		return "", reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to fetch pull request diff")
	}
	return diff, nil
}

func (b *Backend) GetFileContent(ctx context.Context, file string, side backend.ContentSide, from, to *int) (string, bool, error) {
	if err := b.checkRateLimit(); err != nil {
		return "", false, err
	}

	pr, err := b.client.GetPullRequest(ctx, b.owner, b.repo, b.number)
	if err != nil {
		return "", false, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to resolve pull request")
	}
	ref := pr.GetHead().GetSHA()
	if side == backend.SideBase {
		ref = pr.GetBase().GetSHA()
	}

	content, ok, err := b.client.GetFileContentAtRef(ctx, b.owner, b.repo, file, ref)
	if err != nil {
		return "", false, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to fetch file content")
	}
	if !ok {
		return "", false, nil
	}
	if from != nil && to != nil {
		extracted, ok := backend.ExtractLines(content, *from, *to)
		return extracted, ok, nil
	}
	return content, true, nil
}

func (b *Backend) ListComments(ctx context.Context) ([]backend.Comment, error) {
	if err := b.checkRateLimit(); err != nil {
		return nil, err
	}
	comments, err := b.client.ListReviewComments(ctx, b.owner, b.repo, b.number)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to list review comments")
	}
	out := make([]backend.Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, backend.Comment{
			ID:        fmt.Sprintf("%d", c.GetID()),
			ParentID:  parentRef(c),
			File:      c.GetPath(),
			Line:      c.GetLine(),
			Side:      c.GetSide(),
			Author:    c.GetUser().GetLogin(),
			CreatedAt: c.GetCreatedAt().String(),
			UpdatedAt: c.GetUpdatedAt().String(),
		})
	}
	return out, nil
}

func parentRef(c *github.PullRequestComment) string {
	if c.InReplyTo != nil {
		return fmt.Sprintf("%d", *c.InReplyTo)
	}
	return ""
}

func (b *Backend) AddComment(ctx context.Context, params backend.AddCommentParams) (backend.Comment, error) {
	if err := b.checkRateLimit(); err != nil {
		return backend.Comment{}, err
	}

	if params.ParentID != "" {
		thread, err := b.client.ReplyToReviewThread(ctx, params.ParentID, params.Body)
		if err != nil {
			return backend.Comment{}, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to reply to review thread")
		}
		return backend.Comment{ID: thread.ID, ParentID: params.ParentID, Author: params.Author}, nil
	}

	pr, err := b.client.GetPullRequest(ctx, b.owner, b.repo, b.number)
	if err != nil {
		return backend.Comment{}, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to resolve pull request head")
	}

	side := "RIGHT"
	if params.Side == string(backend.SideBase) {
		side = "LEFT"
	}
	thread, err := b.client.AddReviewThread(ctx, b.owner, b.repo, b.number, ghclient.AddReviewThreadInput{
		CommitSHA: pr.GetHead().GetSHA(),
		Path:      params.File,
		Line:      params.Line,
		Side:      side,
		Body:      params.Body,
	})
	if err != nil {
		return backend.Comment{}, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to add review thread")
	}
	return backend.Comment{ID: thread.ID, File: params.File, Line: params.Line, Side: params.Side, Author: params.Author}, nil
}

func (b *Backend) ResolveComment(ctx context.Context, id string) error {
	if err := b.client.ResolveReviewThread(ctx, id); err != nil {
		return reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to resolve review thread")
	}
	return nil
}

func (b *Backend) UnresolveComment(ctx context.Context, id string) error {
	if err := b.client.UnresolveReviewThread(ctx, id); err != nil {
		return reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to unresolve review thread")
	}
	return nil
}
