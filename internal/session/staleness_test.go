package session

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewdeck/reviewd/internal/backend"
	"github.com/reviewdeck/reviewd/internal/backend/local"
	"github.com/reviewdeck/reviewd/internal/idutil"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestAnnotateStalenessFresh(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.go", "one\ntwo\nthree\n")

	c := backend.Comment{ID: "a", File: "a.go", Line: 2, LineContentHash: idutil.HashLine("two")}
	threads := []*Thread{{Comment: c}}
	AnnotateStaleness(context.Background(), threads, local.New("s", dir, "main", nil), 5)
	assert.Equal(t, "fresh", threads[0].Staleness)
}

func TestAnnotateStalenessShifted(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.go", "zero\none\ntwo\nthree\n")

	c := backend.Comment{
		ID: "a", File: "a.go", Line: 1,
		LineContentHash: idutil.HashLine("one"), // no longer at line 1
		ContextBefore:   "zero",
		ContextAfter:    "two",
	}
	threads := []*Thread{{Comment: c}}
	AnnotateStaleness(context.Background(), threads, local.New("s", dir, "main", nil), 5)
	assert.Equal(t, "shifted", threads[0].Staleness)
}

func TestAnnotateStalenessChangedWhenFileMissing(t *testing.T) {
	dir := initRepo(t)
	c := backend.Comment{ID: "a", File: "missing.go", Line: 1, LineContentHash: "whatever"}
	threads := []*Thread{{Comment: c}}
	AnnotateStaleness(context.Background(), threads, local.New("s", dir, "main", nil), 5)
	assert.Equal(t, "changed", threads[0].Staleness)
}

func TestAnnotateStalenessChangedWhenNoMatch(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.go", "completely\ndifferent\ncontent\n")
	c := backend.Comment{ID: "a", File: "a.go", Line: 1, LineContentHash: idutil.HashLine("old line")}
	threads := []*Thread{{Comment: c}}
	AnnotateStaleness(context.Background(), threads, local.New("s", dir, "main", nil), 5)
	assert.Equal(t, "changed", threads[0].Staleness)
}
