package session

import "github.com/reviewdeck/reviewd/internal/backend"

// Thread is a root comment with its replies assembled beneath it.
type Thread struct {
	Comment   backend.Comment
	Staleness string // "fresh" | "shifted" | "changed"
	Replies   []*Thread
}

// AssembleThreads builds threads from a flat, creation-ordered comment
// list: a single pass keyed by id, attaching each reply under its
// already-seen parent. Replies whose parent never resolves (e.g. the
// parent was deleted) are dropped rather than surfaced, per DESIGN.md's
// Open Question decision.
func AssembleThreads(comments []backend.Comment) []*Thread {
	byID := map[string]*Thread{}
	var roots []*Thread

	for _, c := range comments {
		t := &Thread{Comment: c, Staleness: "fresh"}
		byID[c.ID] = t
		if c.ParentID == "" {
			roots = append(roots, t)
			continue
		}
		parent, ok := byID[c.ParentID]
		if !ok {
			continue // orphaned reply; dropped
		}
		parent.Replies = append(parent.Replies, t)
	}
	return roots
}
