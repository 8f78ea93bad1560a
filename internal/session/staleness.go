package session

import (
	"context"
	"strings"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/idutil"
)

// AnnotateStaleness walks the thread forest, setting each root comment's
// Staleness against the anchored file's current content on b's head
// side (the working tree for a local backend, the PR head commit for a
// hosted one). Replies, at every depth, are judged against the parent's
// anchor rather than their own captured hash, so each one takes its root
// comment's staleness.
func AnnotateStaleness(ctx context.Context, threads []*Thread, b backend.Backend, window int) {
	var inherit func(replies []*Thread, staleness string)
	inherit = func(replies []*Thread, staleness string) {
		for _, reply := range replies {
			reply.Staleness = staleness
			inherit(reply.Replies, staleness)
		}
	}
	for _, t := range threads {
		annotate(ctx, t, b, window)
		inherit(t.Replies, t.Staleness)
	}
}

func annotate(ctx context.Context, t *Thread, b backend.Backend, window int) {
	c := t.Comment
	content, ok, err := b.GetFileContent(ctx, c.File, backend.SideHead, nil, nil)
	if err != nil || !ok {
		t.Staleness = "changed"
		return
	}
	lines := strings.Split(content, "\n")
	if c.Line >= 1 && c.Line <= len(lines) {
		current := lines[c.Line-1]
		if idutil.HashLine(current) == c.LineContentHash {
			t.Staleness = "fresh"
			return
		}
	}

	if shiftedNearby(lines, c.Line, window, c.ContextBefore, c.ContextAfter) {
		t.Staleness = "shifted"
		return
	}
	t.Staleness = "changed"
}

// shiftedNearby reports whether the comment's captured context lines
// appear within +/-window lines of the original anchor, indicating the
// surrounding code moved rather than changed.
func shiftedNearby(lines []string, originalLine, window int, before, after string) bool {
	if before == "" && after == "" {
		return false
	}
	lo := originalLine - window
	if lo < 1 {
		lo = 1
	}
	hi := originalLine + window
	if hi > len(lines) {
		hi = len(lines)
	}
	for i := lo; i <= hi; i++ {
		idx := i - 1
		if idx < 0 || idx >= len(lines) {
			continue
		}
		if before != "" && lines[idx] == lastLine(before) {
			return true
		}
		if after != "" && lines[idx] == firstLine(after) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	parts := strings.Split(s, "\n")
	return parts[len(parts)-1]
}

func firstLine(s string) string {
	parts := strings.Split(s, "\n")
	return parts[0]
}
