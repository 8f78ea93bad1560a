package httpapi

import (
	"path/filepath"
	"strings"
)

// resolveInRepo resolves userPath against repoPath and reports whether
// the result still lies inside repoPath, the universal path-traversal
// guard every handler accepting a file path applies, adapted from
// flatcoke-prview's safeRepoPath.
func resolveInRepo(repoPath, userPath string) (string, bool) {
	for _, part := range strings.Split(filepath.ToSlash(userPath), "/") {
		if part == "" || part == "." || part == ".." {
			return "", false
		}
	}
	joined := filepath.Join(repoPath, filepath.FromSlash(userPath))
	base := filepath.Clean(repoPath) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(joined)+string(filepath.Separator), base) {
		return "", false
	}
	return joined, true
}
