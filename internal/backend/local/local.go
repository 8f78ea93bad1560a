// Package local implements backend.Backend over a local git working
// tree, composing the git adapter with the comment store.
package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/gitutil"
	"github.com/reviewdeck/reviewd/internal/idutil"
	"github.com/reviewdeck/reviewd/internal/store"
)

// Backend is a local-git-backed review session.
type Backend struct {
	sessionID string
	repoPath  string
	target    string
	store     *store.Store
}

// New constructs a local backend for a session.
func New(sessionID, repoPath, targetBranch string, st *store.Store) *Backend {
	return &Backend{sessionID: sessionID, repoPath: repoPath, target: targetBranch, store: st}
}

func (b *Backend) SessionID() string   { return b.sessionID }
func (b *Backend) SessionType() string { return "local" }

func (b *Backend) Descriptor() map[string]any {
	return map[string]any{
		"type":          "local",
		"repo_path":     b.repoPath,
		"target_branch": b.target,
	}
}

// effectiveUntracked returns the session's registered files and manual
// additions that are currently untracked, so the diff can include a
// synthetic addition for them.
func (b *Backend) effectiveUntracked(ctx context.Context) ([]string, error) {
	sess, err := b.store.GetSession(ctx, b.sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s not found", b.sessionID)
	}
	untracked := map[string]bool{}
	for _, path := range gitutil.Untracked(ctx, b.repoPath) {
		untracked[path] = true
	}
	var out []string
	for path := range sess.RegisteredFiles {
		if untracked[path] {
			out = append(out, path)
		}
	}
	for _, path := range sess.ManualAdditions {
		if untracked[path] {
			out = append(out, path)
		}
	}
	return out, nil
}

func (b *Backend) ListFiles(ctx context.Context) ([]backend.FileEntry, error) {
	diff, err := b.GetDiff(ctx)
	if err != nil {
		return nil, err
	}
	return filesFromDiff(diff), nil
}

func (b *Backend) GetDiff(ctx context.Context) (string, error) {
	untracked, err := b.effectiveUntracked(ctx)
	if err != nil {
		return "", err
	}
	diff, err := gitutil.Diff(ctx, b.repoPath, b.target, untracked)
	if err != nil {
		return "", fmt.Errorf("local backend diff: %w", err)
	}
	return diff, nil
}

func (b *Backend) GetFileContent(ctx context.Context, file string, side backend.ContentSide, from, to *int) (string, bool, error) {
	var ref *string
	if side == backend.SideBase {
		ref = &b.target
	}
	content, ok := gitutil.FileContent(ctx, b.repoPath, ref, file)
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
	rows, err := b.store.ListComments(ctx, b.sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]backend.Comment, 0, len(rows))
	for _, c := range rows {
		out = append(out, toBackendComment(c))
	}
	return out, nil
}

func (b *Backend) AddComment(ctx context.Context, params backend.AddCommentParams) (backend.Comment, error) {
	content, _ := gitutil.LinesRange(ctx, b.repoPath, params.File, params.Line, params.Line)
	c := &store.Comment{
		SessionID:       b.sessionID,
		ParentID:        params.ParentID,
		File:            params.File,
		Line:            params.Line,
		Side:            params.Side,
		LineContent:     content,
		LineContentHash: idutil.HashLine(content),
		Author:          params.Author,
	}
	if before, ok := gitutil.LinesRange(ctx, b.repoPath, params.File, params.Line-3, params.Line-1); ok {
		c.ContextBefore = before
	}
	if after, ok := gitutil.LinesRange(ctx, b.repoPath, params.File, params.Line+1, params.Line+3); ok {
		c.ContextAfter = after
	}
	if err := b.store.CreateComment(ctx, c); err != nil {
		return backend.Comment{}, err
	}
	return toBackendComment(c), nil
}

func (b *Backend) ResolveComment(ctx context.Context, id string) error {
	return b.store.SetCommentResolved(ctx, id, true)
}

func (b *Backend) UnresolveComment(ctx context.Context, id string) error {
	return b.store.SetCommentResolved(ctx, id, false)
}

func toBackendComment(c *store.Comment) backend.Comment {
	return backend.Comment{
		ID: c.ID, ParentID: c.ParentID, File: c.File, Line: c.Line, Side: c.Side,
		LineContent: c.LineContent, LineContentHash: c.LineContentHash,
		ContextBefore: c.ContextBefore, ContextAfter: c.ContextAfter,
		Author: c.Author, Resolved: c.Resolved, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func filesFromDiff(diffText string) []backend.FileEntry {
	var entries []backend.FileEntry
	for _, line := range strings.Split(diffText, "\n") {
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		entries = append(entries, backend.FileEntry{
			Path:   strings.TrimPrefix(fields[3], "b/"),
			Status: backend.StatusModified,
		})
	}
	return entries
}
