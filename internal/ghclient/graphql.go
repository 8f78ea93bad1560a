package ghclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ReviewThread is the subset of a GraphQL PullRequestReviewThread the
// hosted backend needs to report back to the session manager.
type ReviewThread struct {
	ID          string
	IsResolved  bool
	Comments    []ReviewThreadComment
}

// ReviewThreadComment is a single comment within a review thread.
type ReviewThreadComment struct {
	ID   string
	Body string
}

// graphqlDo posts a GraphQL query/mutation, a reusable helper any
// review-thread operation can call.
func (c *clientImpl) graphqlDo(ctx context.Context, query string, variables map[string]any, out any) error {
	payload := map[string]any{"query": query, "variables": variables}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	graphqlURL := "https://api.github.com/graphql"
	if base := c.gh.BaseURL.String(); base != "" && base != "https://api.github.com/" {
		graphqlURL = base + "graphql"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphqlURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create GraphQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("GraphQL request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GraphQL returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode GraphQL response: %w", err)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("GraphQL error: %s", result.Errors[0].Message)
	}
	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal GraphQL data: %w", err)
		}
	}
	return nil
}

// AddReviewThreadInput describes a new top-level inline review comment.
type AddReviewThreadInput struct {
	CommitSHA string
	Path      string
	Line      int
	Side      string // "LEFT" | "RIGHT"
	Body      string
}

func (c *clientImpl) AddReviewThread(ctx context.Context, owner, repo string, number int, in AddReviewThreadInput) (*ReviewThread, error) {
	pr, err := c.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pull request node id: %w", err)
	}

	const mutation = `mutation($pr: ID!, $body: String!, $path: String!, $line: Int!, $side: DiffSide!, $sha: GitObjectID!) {
		addPullRequestReviewThread(input: {pullRequestId: $pr, body: $body, path: $path, line: $line, side: $side, commitOID: $sha}) {
			thread { id isResolved comments(first: 1) { nodes { id body } } }
		}
	}`
	var result struct {
		AddPullRequestReviewThread struct {
			Thread graphqlThread `json:"thread"`
		} `json:"addPullRequestReviewThread"`
	}
	vars := map[string]any{
		"pr": pr.GetNodeID(), "body": in.Body, "path": in.Path,
		"line": in.Line, "side": in.Side, "sha": in.CommitSHA,
	}
	if err := c.graphqlDo(ctx, mutation, vars, &result); err != nil {
		return nil, err
	}
	return result.AddPullRequestReviewThread.Thread.toReviewThread(), nil
}

func (c *clientImpl) ReplyToReviewThread(ctx context.Context, threadID, body string) (*ReviewThread, error) {
	const mutation = `mutation($thread: ID!, $body: String!) {
		addPullRequestReviewThreadReply(input: {pullRequestReviewThreadId: $thread, body: $body}) {
			comment { pullRequestReviewThread { id isResolved comments(first: 10) { nodes { id body } } } }
		}
	}`
	var result struct {
		AddPullRequestReviewThreadReply struct {
			Comment struct {
				PullRequestReviewThread graphqlThread `json:"pullRequestReviewThread"`
			} `json:"comment"`
		} `json:"addPullRequestReviewThreadReply"`
	}
	vars := map[string]any{"thread": threadID, "body": body}
	if err := c.graphqlDo(ctx, mutation, vars, &result); err != nil {
		return nil, err
	}
	return result.AddPullRequestReviewThreadReply.Comment.PullRequestReviewThread.toReviewThread(), nil
}

func (c *clientImpl) ResolveReviewThread(ctx context.Context, threadID string) error {
	const mutation = `mutation($thread: ID!) { resolveReviewThread(input: {threadId: $thread}) { thread { id } } }`
	return c.graphqlDo(ctx, mutation, map[string]any{"thread": threadID}, nil)
}

func (c *clientImpl) UnresolveReviewThread(ctx context.Context, threadID string) error {
	const mutation = `mutation($thread: ID!) { unresolveReviewThread(input: {threadId: $thread}) { thread { id } } }`
	return c.graphqlDo(ctx, mutation, map[string]any{"thread": threadID}, nil)
}

type graphqlThread struct {
	ID         string `json:"id"`
	IsResolved bool   `json:"isResolved"`
	Comments   struct {
		Nodes []ReviewThreadComment `json:"nodes"`
	} `json:"comments"`
}

func (t graphqlThread) toReviewThread() *ReviewThread {
	return &ReviewThread{ID: t.ID, IsResolved: t.IsResolved, Comments: t.Comments.Nodes}
}
