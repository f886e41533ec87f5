// Package fuzzyapply wraps the host's GNU-style `patch` utility to tolerate
// drift between a patch's assumed line numbers and the current on-disk
// code, per spec §4.1. Process invocation (timeout, captured stdout/stderr,
// exit-code classification) is delegated to pkg/cmdexec; this package only
// builds the patch argument list and parses the resulting progress stream
// instead of returning it verbatim.
package fuzzyapply

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/patextra/patchlink/pkg/cmdexec"
)

// HunkResolution is one hunk's outcome from a fuzzy application attempt.
type HunkResolution struct {
	Applied bool
	Line    int // valid iff Applied
	Failed  bool
	Ignored bool
}

// SubPatchReport holds one resolution per hunk of a single sub-patch.
type SubPatchReport []HunkResolution

// Report is the per-patchfile result of FuzzyApplier.Apply. AlreadyApplied
// is the sentinel described in §3: when true, SubPatches is empty and the
// caller should retry with Reverse=true.
type Report struct {
	AlreadyApplied bool
	SubPatches     []SubPatchReport
}

// ErrDoubleReverse is returned when a patch that was invoked with
// reverse=true is itself reported as already-applied by the patch tool —
// a protocol error per §4.1/§7.
var ErrDoubleReverse = fmt.Errorf("fuzzyapply: reversed patch reported already-applied again")

// ErrExternalToolFailure wraps any unrecognized non-zero exit or output
// encoding problem from the external patch tool (§7 ExternalToolFailure).
var ErrExternalToolFailure = fmt.Errorf("fuzzyapply: external patch tool failure")

var (
	hunkOneRegex  = regexp.MustCompile(`^Hunk #1 `)
	hunkAnyRegex  = regexp.MustCompile(`^Hunk `)
	reversedRegex = regexp.MustCompile(`^Reversed`)
	atLineRegex   = regexp.MustCompile(`at (\d+)`)
)

// Applier invokes an external unified-diff applier binary (GNU patch by
// convention) against a seeded workspace directory.
type Applier struct {
	// BinaryPath is the patch executable to invoke, defaulting to "patch"
	// on the current PATH.
	BinaryPath string
}

// New returns an Applier using the given patch binary path ("patch" if empty).
func New(binaryPath string) *Applier {
	if binaryPath == "" {
		binaryPath = "patch"
	}
	return &Applier{BinaryPath: binaryPath}
}

// Apply runs the patch tool against patchPath inside workspaceRoot. reverse
// requests reverse-direction application (the AlreadyApplied-retry path
// uses this); dryRun prevents any file mutation (the vulnerable-code
// side-car path uses this).
func (a *Applier) Apply(ctx context.Context, patchPath, workspaceRoot string, reverse, dryRun bool) (*Report, error) {
	args := []string{
		"--verbose",
		"--ignore-whitespace",
		"--strip", "1",
		"-r", "/dev/null",
		"-d", workspaceRoot,
		"-i", patchPath,
	}
	if dryRun {
		args = append(args, "--dry-run")
	}
	if reverse {
		args = append(args, "-R", "-f")
	}

	// patch's diagnostics for FAILED/ignored/Reversed all go to stdout with
	// --verbose; stderr is only quoted in the error or log line for a
	// non-zero exit.
	result, runErr := cmdexec.Run(ctx, 0, a.BinaryPath, args, "")
	if runErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalToolFailure, runErr)
	}

	report, alreadyApplied, parseErr := parseProgressStream(bytes.NewReader(result.Stdout), reverse)
	if alreadyApplied {
		if reverse {
			return nil, ErrDoubleReverse
		}
		return &Report{AlreadyApplied: true}, nil
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalToolFailure, parseErr)
	}

	if result.ExitCode > 1 {
		// GNU patch exits 1 when some hunks failed or were skipped and 2 on
		// serious trouble; anything above 1 is not a state parsed above.
		return nil, fmt.Errorf("%w: patch exited %d for %s: %s", ErrExternalToolFailure,
			result.ExitCode, patchPath, strings.TrimSpace(string(result.Stderr)))
	}
	if result.ExitCode != 0 {
		// A non-zero exit from `patch` is expected whenever any hunk failed;
		// that's already reflected in report as Failed resolutions, so it's
		// not itself fatal.
		log.Printf("[FuzzyApply] patch exited %d for %s (reverse=%v dryRun=%v): %s",
			result.ExitCode, patchPath, reverse, dryRun, strings.TrimSpace(string(result.Stderr)))
	}

	return report, nil
}

// parseProgressStream implements §4.1's line-by-line parsing rules.
func parseProgressStream(r *bytes.Reader, reverse bool) (*Report, bool, error) {
	report := &Report{}
	var current SubPatchReport
	haveCurrent := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if reversedRegex.MatchString(line) {
			return nil, true, nil
		}

		if !hunkAnyRegex.MatchString(line) {
			continue
		}

		if hunkOneRegex.MatchString(line) {
			if haveCurrent {
				report.SubPatches = append(report.SubPatches, current)
			}
			current = SubPatchReport{}
			haveCurrent = true
		}
		if !haveCurrent {
			// A "Hunk" line arrived before any "Hunk #1 " line; tolerate it
			// defensively by starting an implicit sub-patch.
			current = SubPatchReport{}
			haveCurrent = true
		}

		switch {
		case strings.Contains(line, "FAILED"):
			current = append(current, HunkResolution{Failed: true})
		case strings.Contains(line, "ignored"):
			current = append(current, HunkResolution{Ignored: true})
		default:
			if m := atLineRegex.FindStringSubmatch(line); m != nil {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					return nil, false, fmt.Errorf("unparseable line number in %q: %w", line, err)
				}
				current = append(current, HunkResolution{Applied: true, Line: n})
			}
		}
	}
	if haveCurrent {
		report.SubPatches = append(report.SubPatches, current)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	_ = reverse // direction is informational here; AlreadyApplied detection doesn't depend on it beyond ErrDoubleReverse upstream
	return report, false, nil
}
