package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/backend"
)

func TestAssembleThreadsNestsReplies(t *testing.T) {
	comments := []backend.Comment{
		{ID: "a", File: "x.go", Line: 1},
		{ID: "b", ParentID: "a", File: "x.go", Line: 1},
		{ID: "c", File: "y.go", Line: 2},
	}
	threads := AssembleThreads(comments)
	require.Len(t, threads, 2)
	assert.Equal(t, "a", threads[0].Comment.ID)
	require.Len(t, threads[0].Replies, 1)
	assert.Equal(t, "b", threads[0].Replies[0].Comment.ID)
	assert.Equal(t, "c", threads[1].Comment.ID)
}

func TestAssembleThreadsDropsOrphanedReplies(t *testing.T) {
	comments := []backend.Comment{
		{ID: "b", ParentID: "missing", File: "x.go", Line: 1},
	}
	threads := AssembleThreads(comments)
	assert.Empty(t, threads)
}
