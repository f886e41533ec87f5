// Package diffpatch parses unified-diff patch files into PatchFile / SubPatch
// / Hunk values and, given a drift-adjusted start line, turns one hunk's body
// into an ordered list of Add/Remove/Replace Segments.
package diffpatch

// SegmentOp classifies one contiguous edit produced by HunkParser.
type SegmentOp string

const (
	SegmentAdd     SegmentOp = "add"
	SegmentRemove  SegmentOp = "remove"
	SegmentReplace SegmentOp = "replace"
)

// Segment is the parser's output unit. For SegmentAdd, Count is the number of
// inserted lines at Start (patched-file coordinates). For SegmentRemove,
// Count is the number of deleted lines at Start (vulnerable-file
// coordinates). For SegmentReplace, RemovedCount lines at Start are removed
// and AddedCount lines are inserted at the same position.
type Segment struct {
	Op           SegmentOp
	Start        int
	Count        int
	RemovedCount int
	AddedCount   int
}

// End returns the inclusive last line affected by the removed (or plain
// Count) side of the segment, i.e. the span GraphLinker range-queries
// against.
func (s Segment) End() int {
	n := s.Count
	if s.Op == SegmentReplace {
		n = s.RemovedCount
	}
	if n <= 0 {
		return s.Start
	}
	return s.Start + n - 1
}

// AddedLines returns the number of inserted lines this segment carries,
// for HunkNode's linesAdded metadata (§4.5).
func (s Segment) AddedLines() int {
	switch s.Op {
	case SegmentAdd:
		return s.Count
	case SegmentReplace:
		return s.AddedCount
	default:
		return 0
	}
}

// RemovedLines returns the number of deleted lines this segment carries,
// for HunkNode's linesRemoved metadata (§4.5).
func (s Segment) RemovedLines() int {
	switch s.Op {
	case SegmentRemove:
		return s.Count
	case SegmentReplace:
		return s.RemovedCount
	default:
		return 0
	}
}

// Hunk is one @@-delimited chunk of a SubPatch.
type Hunk struct {
	OriginalStart  int
	OriginalLength int
	Body           string // raw hunk body lines, including the leading "@@ ... @@" header line
	LinesAdded     int
	LinesRemoved   int
}

// SubPatch is the portion of a PatchFile targeting one specific file.
type SubPatch struct {
	Path         string
	Hunks        []Hunk
	LinesAdded   int
	LinesRemoved int
}

// PatchFile is a unified-diff file on disk.
type PatchFile struct {
	Path        string
	Description string
	SubPatches  []SubPatch
}

// TotalHunks returns the number of hunks across every sub-patch, the
// `originalHunks` counter from §4.6.
func (p PatchFile) TotalHunks() int {
	n := 0
	for _, sp := range p.SubPatches {
		n += len(sp.Hunks)
	}
	return n
}

// TotalLinesAdded/TotalLinesRemoved sum per-subpatch counters.
func (p PatchFile) TotalLinesAdded() int {
	n := 0
	for _, sp := range p.SubPatches {
		n += sp.LinesAdded
	}
	return n
}

func (p PatchFile) TotalLinesRemoved() int {
	n := 0
	for _, sp := range p.SubPatches {
		n += sp.LinesRemoved
	}
	return n
}
