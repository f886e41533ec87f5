package diffpatch

import (
	"fmt"
	"strings"
)

// lastOp tracks the previous body line's operation while walking a hunk.
type lastOp int

const (
	opNone lastOp = iota
	opAdd
	opRemove
)

// ParseHunk walks one hunk's raw body and emits the ordered, non-overlapping
// list of Add/Remove/Replace segments described in §4.2. startLine is the
// drift-corrected starting line in the current file's coordinate space, as
// produced by DriftTracker — not the hunk's own "@@" header value.
func ParseHunk(body string, startLine int) ([]Segment, error) {
	var segments []Segment

	cursor := startLine
	op := opNone
	replaceActive := false

	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "@@") {
			continue
		}
		if line == "" {
			// Treat a blank body line as context (a genuinely empty context line).
			op = opNone
			replaceActive = false
			cursor++
			continue
		}

		switch line[0] {
		case '+':
			switch op {
			case opRemove:
				removed := segments[len(segments)-1]
				segments = segments[:len(segments)-1]
				segments = append(segments, Segment{
					Op:           SegmentReplace,
					Start:        removed.Start,
					RemovedCount: removed.Count,
					AddedCount:   1,
				})
				replaceActive = true
			case opAdd:
				last := &segments[len(segments)-1]
				if replaceActive {
					last.AddedCount++
				} else {
					last.Count++
				}
			default:
				segments = append(segments, Segment{Op: SegmentAdd, Start: cursor, Count: 1})
			}
			op = opAdd
			// Added lines don't exist in the current file's coordinate space: cursor does not advance.

		case '-':
			if op == opAdd {
				return nil, fmt.Errorf("%w: removed line follows added line in hunk body", ErrInputMalformed)
			}
			if op == opRemove {
				last := &segments[len(segments)-1]
				last.Count++
			} else {
				segments = append(segments, Segment{Op: SegmentRemove, Start: cursor, Count: 1})
			}
			op = opRemove
			replaceActive = false
			cursor++

		default:
			op = opNone
			replaceActive = false
			cursor++
		}
	}

	return segments, nil
}
