// Package pushcoordinator drives the push + hosted-pull-request
// create-or-reuse flow. For a local session it resolves the branch and
// remote, runs them past the push-permission gate, shells out to git,
// and, when the remote names a GitHub owner/repo, finds or creates the
// corresponding pull request. For a hosted session it reports the state
// of the session's existing pull request.
package pushcoordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"

	"github.com/reviewdeck/reviewd/internal/ghclient"
	"github.com/reviewdeck/reviewd/internal/gitutil"
	"github.com/reviewdeck/reviewd/internal/pushgate"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
	"github.com/reviewdeck/reviewd/internal/store"
)

// PRState describes the hosted pull request backing a session after a
// push, if any.
type PRState struct {
	Number int
	URL    string
	State  string
}

// Coordinator pushes a session's local branch and reconciles the
// hosted pull request that tracks it.
type Coordinator struct {
	gate       *pushgate.Gate
	ghFactory  func(sess *store.Session) (ghclient.Client, error)
	remoteName string
}

// New constructs a Coordinator. ghFactory resolves the GitHub client to
// use for a given session (so each session can authenticate with its
// own auth_token_ref, per hostedauth.ResolveToken).
func New(gate *pushgate.Gate, ghFactory func(sess *store.Session) (ghclient.Client, error)) *Coordinator {
	return &Coordinator{gate: gate, ghFactory: ghFactory, remoteName: "origin"}
}

// Push validates and performs a git push for a local sess, then, when
// the remote names a GitHub owner/repo and a client is available, finds
// the existing open pull request for the branch or creates one. For a
// hosted sess it does not push; it returns the state of the session's
// pull request.
//
// Push failures from git itself are upstream errors and are never
// absorbed: they propagate to the caller, unlike most of gitutil's
// read-only operations.
func (c *Coordinator) Push(ctx context.Context, sess *store.Session) (*PRState, error) {
	if sess.BackendType != "local" {
		return c.reconcileHostedPR(ctx, sess)
	}

	branch := sess.Branch
	if branch == "" {
		branch = gitutil.CurrentBranch(ctx, sess.RepoPath)
	}

	normalizedRepo, err := pushgate.ValidatePush(ctx, c.gate, sess.RepoPath, c.remoteName, branch)
	if err != nil {
		return nil, err
	}

	if err := gitutil.Push(ctx, sess.RepoPath, c.remoteName, branch); err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindUpstream, err, "git push failed")
	}

	owner, repo, ok := splitOwnerRepo(normalizedRepo)
	if !ok || c.ghFactory == nil {
		return nil, nil
	}

	gh, err := c.ghFactory(sess)
	if err != nil || gh == nil {
		return nil, nil
	}

	return c.findOrCreatePR(ctx, gh, owner, repo, branch, sess.TargetBranch)
}

func (c *Coordinator) reconcileHostedPR(ctx context.Context, sess *store.Session) (*PRState, error) {
	if c.ghFactory == nil {
		return nil, reviewerr.New(reviewerr.KindValidation, "no hosted GitHub client available for this session")
	}
	gh, err := c.ghFactory(sess)
	if err != nil {
		return nil, err
	}
	pr, err := gh.GetPullRequest(ctx, sess.Owner, sess.Repo, sess.PRNumber)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to fetch pull request")
	}
	return prStateFromGitHub(pr), nil
}

// findOrCreatePR checks for an existing open PR for branch before
// creating one, so reconciling the same branch twice is idempotent.
func (c *Coordinator) findOrCreatePR(ctx context.Context, gh ghclient.Client, owner, repo, branch, targetBranch string) (*PRState, error) {
	existing, err := gh.GetPullRequestByBranch(ctx, owner, repo, branch)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to look up existing pull request")
	}
	if existing != nil {
		return prStateFromGitHub(existing), nil
	}

	if targetBranch == "" {
		targetBranch = "main"
	}
	title := fmt.Sprintf("Review: %s", branch)
	created, err := gh.CreatePullRequest(ctx, owner, repo, title, branch, targetBranch)
	if err != nil {
		return nil, reviewerr.Wrap(reviewerr.KindUpstream, err, "failed to create pull request")
	}
	return prStateFromGitHub(created), nil
}

func prStateFromGitHub(pr *github.PullRequest) *PRState {
	if pr == nil {
		return nil
	}
	state := strings.ToLower(pr.GetState())
	if state == "" {
		state = "open"
	}
	return &PRState{Number: pr.GetNumber(), URL: pr.GetHTMLURL(), State: state}
}

func splitOwnerRepo(normalized string) (owner, repo string, ok bool) {
	parts := strings.SplitN(normalized, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
