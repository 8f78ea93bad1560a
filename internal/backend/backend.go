// Package backend defines the protocol shared by reviewd's two session
// backends — a local git working tree and a hosted pull request — plus
// the helpers common to both.
package backend

import "context"

// FileStatus is the change status of a single file entry.
type FileStatus string

const (
	StatusAdded     FileStatus = "added"
	StatusModified  FileStatus = "modified"
	StatusDeleted   FileStatus = "deleted"
	StatusRenamed   FileStatus = "renamed"
	StatusUntracked FileStatus = "untracked"
)

// FileEntry is one file participating in a session's diff.
type FileEntry struct {
	Path   string
	Status FileStatus
}

// ContentSide selects which side of a diff to read file content from.
type ContentSide string

const (
	SideBase ContentSide = "base"
	SideHead ContentSide = "head"
)

// Comment mirrors store.Comment but is backend-agnostic: a hosted
// backend may synthesize these from GitHub review threads instead of
// reading them from the local store.
type Comment struct {
	ID              string
	ParentID        string
	File            string
	Line            int
	Side            string
	LineContent     string
	LineContentHash string
	ContextBefore   string
	ContextAfter    string
	Author          string
	Resolved        bool
	CreatedAt       string
	UpdatedAt       string
}

// AddCommentParams describes a new top-level comment or reply.
type AddCommentParams struct {
	ParentID string
	File     string
	Line     int
	Side     string
	Author   string
	Body     string
}

// Backend is implemented by both the local-git and hosted-PR session types.
type Backend interface {
	SessionID() string
	SessionType() string // "local" | "hosted"
	Descriptor() map[string]any

	ListFiles(ctx context.Context) ([]FileEntry, error)
	GetDiff(ctx context.Context) (string, error)
	GetFileContent(ctx context.Context, file string, side ContentSide, from, to *int) (string, bool, error)

	ListComments(ctx context.Context) ([]Comment, error)
	AddComment(ctx context.Context, params AddCommentParams) (Comment, error)
	ResolveComment(ctx context.Context, id string) error
	UnresolveComment(ctx context.Context, id string) error
}

// ExtractLines returns the 1-indexed inclusive [from, to] lines of
// content, clamped to its bounds. This is the shared default any
// backend can use when it already has the full file content in hand.
func ExtractLines(content string, from, to int) (string, bool) {
	if from > to {
		return "", false
	}
	lines := splitLines(content)
	if from < 1 {
		from = 1
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from > len(lines) {
		return "", false
	}
	out := ""
	for i := from - 1; i < to; i++ {
		if i > from-1 {
			out += "\n"
		}
		out += lines[i]
	}
	return out, true
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
