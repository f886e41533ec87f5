package diffpatch

// DriftTracker maintains the running delta between a patch's authored
// (original-file) line coordinates and the current on-disk coordinates that
// FuzzyApplier reports, per §4.3.
//
// FuzzyApplier reports each hunk's start line in the *current* file, but the
// hunk body is authored against the *original* file and HunkParser's cursor
// must walk in lock-step with the body. Subtracting the accumulated delta
// once, up front, converts the fuzzy-reported start into the coordinate
// space HunkParser expects.
type DriftTracker struct {
	reverse     bool
	globalDelta int
}

// NewDriftTracker creates a tracker for one patch direction. A reverse patch
// keeps globalDelta pinned at zero: the fuzzy applier already reports
// post-patch (vulnerable) coordinates directly in that case.
func NewDriftTracker(reverse bool) *DriftTracker {
	return &DriftTracker{reverse: reverse}
}

// AdjustStart converts a fuzzy-reported current-file start line into the
// coordinate HunkParser.ParseHunk should begin its cursor at.
func (d *DriftTracker) AdjustStart(fuzzyStart int) int {
	return fuzzyStart - d.globalDelta
}

// Advance records one successfully parsed hunk's net line delta
// (added-removed), to be applied to subsequent hunks in the same sub-patch.
// No-op for reverse patches.
func (d *DriftTracker) Advance(added, removed int) {
	if d.reverse {
		return
	}
	d.globalDelta += added - removed
}

// Delta returns the accumulated delta so far (for tests and diagnostics).
func (d *DriftTracker) Delta() int {
	return d.globalDelta
}
