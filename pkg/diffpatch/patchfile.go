package diffpatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInputMalformed is returned when a patch body violates the ±-ordering
// invariant (§4.2) or carries content the graph engine can't safely quote.
var ErrInputMalformed = fmt.Errorf("diffpatch: malformed patch input")

var (
	fileTargetRegex = regexp.MustCompile(`^\+\+\+ ([^\t\n]+)[\t]*.*$`)
	hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@.*$`)
)

// descriptionDelimiters are the two byte sequences the original Gremlin
// query-string composer couldn't escape (patch_importer.py raised on
// either appearing in a patch description). ParsePatchFile rejects
// descriptions containing them rather than silently mangling the query.
var descriptionDelimiters = []string{"$/", "/$"}

// ParsePatchFile reads a unified-diff file's raw content and splits it into
// its header description and per-file SubPatches.
func ParsePatchFile(path string, content []byte) (*PatchFile, error) {
	lines := strings.Split(string(content), "\n")

	description, bodyStart := splitDescription(lines)
	for _, delim := range descriptionDelimiters {
		if strings.Contains(description, delim) {
			return nil, fmt.Errorf("%w: patch description contains reserved sequence %q", ErrInputMalformed, delim)
		}
	}

	subPatches, err := parseSubPatches(lines[bodyStart:])
	if err != nil {
		return nil, err
	}

	return &PatchFile{
		Path:        path,
		Description: description,
		SubPatches:  subPatches,
	}, nil
}

// splitDescription returns everything before the first line starting with
// "diff " (the patch description, per §6) and the index of that line.
func splitDescription(lines []string) (string, int) {
	var b strings.Builder
	for i, line := range lines {
		if strings.HasPrefix(line, "diff ") {
			return strings.TrimSpace(b.String()), i
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), len(lines)
}

// parseSubPatches walks the per-file sections of a patch body. Each section
// is recognized by a "--- a/..." / "+++ b/..." pair followed by one or more
// "@@ ... @@" hunks.
func parseSubPatches(lines []string) ([]SubPatch, error) {
	var subPatches []SubPatch
	var current *SubPatch

	flush := func() {
		if current != nil && len(current.Hunks) > 0 {
			subPatches = append(subPatches, *current)
		}
		current = nil
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if strings.HasPrefix(line, "--- ") {
			flush()
			current = &SubPatch{}
			i++
			continue
		}

		if current != nil && current.Path == "" {
			if m := fileTargetRegex.FindStringSubmatch(line); m != nil {
				current.Path = stripGitPrefix(m[1])
				i++
				continue
			}
		}

		if current != nil && current.Path != "" {
			if m := hunkHeaderRegex.FindStringSubmatch(line); m != nil {
				origStart, _ := strconv.Atoi(m[1])
				origLen := 1
				if m[2] != "" {
					origLen, _ = strconv.Atoi(m[2])
				}

				bodyEnd := i + 1
				for bodyEnd < len(lines) {
					l := lines[bodyEnd]
					if strings.HasPrefix(l, "@@") || strings.HasPrefix(l, "--- ") || strings.HasPrefix(l, "diff ") {
						break
					}
					bodyEnd++
				}

				body := strings.Join(lines[i:bodyEnd], "\n")
				added, removed := countHunkLines(lines[i+1 : bodyEnd])

				current.Hunks = append(current.Hunks, Hunk{
					OriginalStart:  origStart,
					OriginalLength: origLen,
					Body:           body,
					LinesAdded:     added,
					LinesRemoved:   removed,
				})
				current.LinesAdded += added
				current.LinesRemoved += removed

				i = bodyEnd
				continue
			}
		}

		i++
	}
	flush()

	return subPatches, nil
}

// countHunkLines tallies added and removed lines in a hunk body. The
// ±-ordering invariant itself (§4.2) is enforced by HunkParser, which walks
// the same body with the drift-corrected cursor and is the sole source of
// truth for ErrInputMalformed.
func countHunkLines(bodyLines []string) (added, removed int) {
	for _, l := range bodyLines {
		if l == "" {
			continue
		}
		switch l[0] {
		case '+':
			added++
		case '-':
			removed++
		}
	}
	return added, removed
}

// stripGitPrefix removes the conventional a/ or b/ prefix git-style diffs
// use, so SubPatch.Path matches the code base's relative layout.
func stripGitPrefix(p string) string {
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(p, prefix) {
			return strings.TrimPrefix(p, prefix)
		}
	}
	return p
}
