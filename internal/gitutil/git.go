// Package gitutil wraps the git CLI for the small set of operations
// reviewd needs: branch discovery, diffing, file content retrieval, and
// staging. It shells out rather than linking a git-porcelain library.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LooksAvailable reports whether the git executable can be found on PATH.
func LooksAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// IsGitRepo reports whether dir is inside a git working tree.
func IsGitRepo(ctx context.Context, dir string) bool {
	out, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// CurrentBranch returns the checked-out branch name, or "working" if dir
// isn't a git repository (matching the non-repo session type in spec).
func CurrentBranch(ctx context.Context, dir string) string {
	if !IsGitRepo(ctx, dir) {
		return "working"
	}
	out, err := run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "working"
	}
	return strings.TrimSpace(out)
}

// DetectDefaultBranch finds the repository's default branch: the
// remote's HEAD symref if available, else "main", else "master", else
// the first local branch.
func DetectDefaultBranch(ctx context.Context, dir string) string {
	if out, err := run(ctx, dir, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		ref := strings.TrimSpace(out)
		if idx := strings.LastIndex(ref, "/"); idx >= 0 {
			return ref[idx+1:]
		}
	}
	branches := ListBranches(ctx, dir)
	for _, candidate := range []string{"main", "master"} {
		for _, b := range branches {
			if b == candidate {
				return candidate
			}
		}
	}
	if len(branches) > 0 {
		return branches[0]
	}
	return "main"
}

// ListBranches returns local branch names.
func ListBranches(ctx context.Context, dir string) []string {
	out, err := run(ctx, dir, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches
}

// BranchExists reports whether branch is a known local branch.
func BranchExists(ctx context.Context, dir, branch string) bool {
	for _, b := range ListBranches(ctx, dir) {
		if b == branch {
			return true
		}
	}
	return false
}

// Diff returns the unified diff against target's merge-base, plus
// synthetic whole-file additions for any untracked paths passed in
// registeredUntracked (so files a session has explicitly registered show
// up in the diff even before they're tracked by git).
func Diff(ctx context.Context, dir, target string, registeredUntracked []string) (string, error) {
	var out strings.Builder

	base, err := run(ctx, dir, "merge-base", target, "HEAD")
	ref := strings.TrimSpace(base)
	if err != nil || ref == "" {
		ref = target
	}

	diff, err := run(ctx, dir, "diff", ref, "--")
	if err != nil {
		return "", fmt.Errorf("failed to diff against %s: %w", target, err)
	}
	out.WriteString(diff)

	for _, path := range registeredUntracked {
		content, ok := FileContent(ctx, dir, nil, path)
		if !ok {
			continue
		}
		out.WriteString(syntheticAddDiff(path, content))
	}

	return out.String(), nil
}

func syntheticAddDiff(path, content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	fmt.Fprintf(&b, "new file mode 100644\n")
	fmt.Fprintf(&b, "--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, line := range lines {
		fmt.Fprintf(&b, "+%s\n", line)
	}
	return b.String()
}

// FileContent returns the content of file at ref (nil for the working
// tree) or (_, false) if it doesn't exist there.
func FileContent(ctx context.Context, dir string, ref *string, file string) (string, bool) {
	if ref == nil {
		return readWorkingFile(dir, file)
	}
	out, err := run(ctx, dir, "show", *ref+":"+file)
	if err != nil {
		return "", false
	}
	return out, true
}

// LinesRange returns the 1-indexed inclusive [from, to] lines of file in
// the working tree, clamped to the file's bounds. Returns ("", false) if
// from > to or the file doesn't exist.
func LinesRange(ctx context.Context, dir, file string, from, to int) (string, bool) {
	if from > to {
		return "", false
	}
	content, ok := FileContent(ctx, dir, nil, file)
	if !ok {
		return "", false
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if from < 1 {
		from = 1
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from > len(lines) {
		return "", false
	}
	return strings.Join(lines[from-1:to], "\n"), true
}

// Staged returns paths with staged changes.
func Staged(ctx context.Context, dir string) []string {
	out, err := run(ctx, dir, "diff", "--name-only", "--cached")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

// Unstaged returns paths with unstaged changes.
func Unstaged(ctx context.Context, dir string) []string {
	out, err := run(ctx, dir, "diff", "--name-only")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

// Untracked returns untracked (but not ignored) paths.
func Untracked(ctx context.Context, dir string) []string {
	out, err := run(ctx, dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

// Stage runs `git add` on a single file.
func Stage(ctx context.Context, dir, file string) error {
	_, err := run(ctx, dir, "add", "--", file)
	return err
}

// Restore discards working-tree changes to a single file.
func Restore(ctx context.Context, dir, file string) error {
	_, err := run(ctx, dir, "checkout", "--", file)
	return err
}

// Push pushes the current branch to the given remote, returning the
// underlying error unwrapped since push failures are upstream, not
// validation, and must surface to the caller per the error-handling design.
func Push(ctx context.Context, dir, remote, branch string) error {
	_, err := run(ctx, dir, "push", remote, branch)
	return err
}

// RemoteURL returns the fetch URL configured for the named remote.
func RemoteURL(ctx context.Context, dir, remote string) (string, error) {
	out, err := run(ctx, dir, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func readWorkingFile(dir, file string) (string, bool) {
	out, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return "", false
	}
	return string(out), true
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
