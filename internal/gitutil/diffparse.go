package gitutil

import "strings"

// Hunk is a single @@ -old,count +new,count @@ block plus its body
// lines, each retaining its leading ' '/'+'/'-' marker byte.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []string
}

// FileDiff is the set of hunks for a single file within a unified diff.
type FileDiff struct {
	FileA, FileB string
	Hunks        []Hunk
}

// Parse is a best-effort unified-diff parser: malformed or empty input
// yields an empty slice rather than an error, since diff parsing backs
// display plumbing, not a correctness-critical path.
func Parse(text string) []FileDiff {
	var out []FileDiff
	var current *FileDiff
	var hunk *Hunk

	flushHunk := func() {
		if current != nil && hunk != nil {
			current.Hunks = append(current.Hunks, *hunk)
			hunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			a, b := parseDiffGitLine(line)
			current = &FileDiff{FileA: a, FileB: b}
		case strings.HasPrefix(line, "@@ "):
			if current == nil {
				continue
			}
			flushHunk()
			h, ok := parseHunkHeader(line)
			if ok {
				hunk = &h
			}
		case strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "--- "):
			// file-path detail lines; diff --git already carries the names.
		default:
			if hunk != nil {
				hunk.Lines = append(hunk.Lines, line)
			}
		}
	}
	flushFile()
	return out
}

func parseDiffGitLine(line string) (a, b string) {
	// "diff --git a/path b/path"
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return "", ""
	}
	a = strings.TrimPrefix(fields[2], "a/")
	b = strings.TrimPrefix(fields[3], "b/")
	return a, b
}

func parseHunkHeader(line string) (Hunk, bool) {
	// "@@ -oldStart,oldCount +newStart,newCount @@ optional context"
	end := strings.Index(line[3:], "@@")
	if end < 0 {
		return Hunk{}, false
	}
	body := strings.TrimSpace(line[3 : 3+end])
	parts := strings.Fields(body)
	if len(parts) < 2 {
		return Hunk{}, false
	}
	oldStart, oldCount := parseRange(parts[0])
	newStart, newCount := parseRange(parts[1])
	return Hunk{OldStart: oldStart, OldCount: oldCount, NewStart: newStart, NewCount: newCount}, true
}

func parseRange(spec string) (start, count int) {
	spec = strings.TrimPrefix(spec, "+")
	spec = strings.TrimPrefix(spec, "-")
	idx := strings.Index(spec, ",")
	if idx < 0 {
		return atoiSafe(spec), 1
	}
	return atoiSafe(spec[:idx]), atoiSafe(spec[idx+1:])
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Serialize re-emits a parsed diff as unified-diff text. Round-tripping
// Parse(Serialize(Parse(x))) reproduces the original hunk boundaries and
// line content, though whitespace around the "@@" markers may differ.
func Serialize(files []FileDiff) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("diff --git a/" + f.FileA + " b/" + f.FileB + "\n")
		b.WriteString("--- a/" + f.FileA + "\n")
		b.WriteString("+++ b/" + f.FileB + "\n")
		for _, h := range f.Hunks {
			b.WriteString(hunkHeader(h) + "\n")
			for _, line := range h.Lines {
				b.WriteString(line + "\n")
			}
		}
	}
	return b.String()
}

func hunkHeader(h Hunk) string {
	return "@@ -" + itoa(h.OldStart) + "," + itoa(h.OldCount) + " +" + itoa(h.NewStart) + "," + itoa(h.NewCount) + " @@"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
