// Package pushgate implements reviewd's push-permission whitelist: a
// repo-pattern -> branch-pattern allowlist checked before a local
// session is allowed to push its branch upstream.
package pushgate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/reviewdeck/reviewd/internal/gitutil"
	"github.com/reviewdeck/reviewd/internal/reviewerr"
)

// NormalizeRemote strips protocol/host/suffix noise from a git remote
// URL so it can be compared against configured repo patterns,
// regardless of which of the common forms it was written in.
func NormalizeRemote(repository string) string {
	normalized := strings.ToLower(strings.TrimSpace(repository))
	normalized = strings.TrimSuffix(normalized, "/")
	normalized = strings.TrimSuffix(normalized, ".git")
	normalized = strings.TrimSuffix(normalized, "/")
	normalized = strings.TrimPrefix(normalized, "https://github.com/")
	normalized = strings.TrimPrefix(normalized, "http://github.com/")
	normalized = strings.TrimPrefix(normalized, "github.com/")
	normalized = strings.TrimPrefix(normalized, "git@github.com:")
	return normalized
}

// Decision is the result of a push-permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate holds the configured repo-pattern -> branch-pattern whitelist.
type Gate struct {
	mu    sync.RWMutex
	rules map[string][]string

	patternCache map[string]*regexp.Regexp
}

// New constructs a Gate from a repo-pattern -> branch-pattern map, the
// same shape internal/config loads from the push_allow config section.
func New(rules map[string][]string) *Gate {
	return &Gate{rules: rules, patternCache: map[string]*regexp.Regexp{}}
}

func (g *Gate) compile(pattern string) *regexp.Regexp {
	g.mu.Lock()
	defer g.mu.Unlock()
	if re, ok := g.patternCache[pattern]; ok {
		return re
	}
	re := globToRegexp(pattern)
	g.patternCache[pattern] = re
	return re
}

// globToRegexp translates a pattern where "*" matches any run of
// characters and everything else is literal, into an anchored regexp.
func globToRegexp(pattern string) *regexp.Regexp {
	segments := strings.Split(pattern, "*")
	quoted := make([]string, len(segments))
	for i, s := range segments {
		quoted[i] = regexp.QuoteMeta(s)
	}
	return regexp.MustCompile("^" + strings.Join(quoted, ".*") + "$")
}

// Check reports whether repo/branch is permitted to be pushed to. Every
// repo-pattern matching repo contributes its branch patterns; the push is
// allowed if any of them match branch, so a broad repo pattern with a
// narrow branch list can't shadow a more specific pattern that also matches.
func (g *Gate) Check(repo, branch string) Decision {
	normalizedRepo := NormalizeRemote(repo)

	g.mu.RLock()
	rules := g.rules
	g.mu.RUnlock()

	matched := false
	for repoPattern, branchPatterns := range rules {
		if !g.compile(repoPattern).MatchString(normalizedRepo) {
			continue
		}
		matched = true
		for _, branchPattern := range branchPatterns {
			if g.compile(branchPattern).MatchString(branch) {
				return Decision{Allowed: true}
			}
		}
	}
	if matched {
		return Decision{Allowed: false, Reason: fmt.Sprintf("branch %q not permitted for %q", branch, repo)}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("repository %q is not in the push whitelist", repo)}
}

// ValidatePush resolves the remote URL for a local repo path and branch,
// then checks it against the whitelist, returning the normalized repo
// name on success.
func ValidatePush(ctx context.Context, gate *Gate, repoPath, remoteName, branch string) (string, error) {
	remoteURL, err := gitutil.RemoteURL(ctx, repoPath, remoteName)
	if err != nil {
		return "", reviewerr.Wrap(reviewerr.KindValidation, err, "failed to resolve remote URL")
	}
	decision := gate.Check(remoteURL, branch)
	if !decision.Allowed {
		return "", reviewerr.New(reviewerr.KindPermissionDenied, decision.Reason)
	}
	return NormalizeRemote(remoteURL), nil
}
