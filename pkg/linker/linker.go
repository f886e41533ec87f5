// Package linker implements GraphLinker (§4.5): turning one parsed
// SubPatch's segments into PatchFileNode/HunkNode vertices and range-linking
// them against a file's CPG nodes.
package linker

import (
	"context"
	"fmt"
	"log"

	"github.com/patextra/patchlink/internal/graphengine"
	"github.com/patextra/patchlink/pkg/diffpatch"
)

// Result is what one SubPatch's linking produced, rolled up for
// IngestionOrchestrator's actual* counters.
type Result struct {
	PatchFileID    string
	HunkIDs        []string
	ConnectedNodes int
}

// Linker creates PatchFileNode/HunkNode vertices in engine and range-links
// them to CPG nodes.
type Linker struct {
	Engine graphengine.Engine
}

// New returns a Linker backed by engine.
func New(engine graphengine.Engine) *Linker {
	return &Linker{Engine: engine}
}

// LinkSubPatch creates a PatchFileNode (affects patchID, isFile fileNodeID)
// and one HunkNode per segment, range-linking each to vulnFileID's or
// patchedFileID's CPG nodes. segments is the caller's already-resolved
// segment list (built from FuzzyApplier's reported line numbers via a
// single DriftTracker per §4.3, with any Failed/Ignored hunks already
// excluded per §7) — this method never re-parses hunk bodies itself, so it
// only ever links what was actually applied. Routing follows §4.5 in both
// directions: a segment's Remove side goes to vulnFileID (the vulnerable
// file version) and its Add side to patchedFileID (the patched version, if
// known). reverse does not change this routing; on a reverse patch the
// caller passes the freshly-imported derived vulnerable file as vulnFileID
// and the on-disk, already-patched file as patchedFileID.
// patchedFileID may be empty when the patched-file CPG snapshot isn't
// available — the Add/Replace-add side of the routing then links nothing
// instead of erroring, since the file genuinely may not exist yet in that
// direction. fileNodeID is the isFile target and is independent of the
// routing swap: it is always the currently-resolved on-disk file version
// (patch_importer.py's `file_node_id`) — vulnFileID itself on a forward
// patch or a side-car import, but patchedFileID on a reverse patch, since
// there the on-disk file is the already-patched one and vulnFileID instead
// names a freshly-imported derived file with no prior identity in the graph.
func (l *Linker) LinkSubPatch(ctx context.Context, patchID, path string, segments []diffpatch.Segment, fileNodeID, vulnFileID, patchedFileID string, reverse bool) (Result, error) {
	var res Result

	pfID, err := l.Engine.CreatePatchFileNode(ctx, patchID, fileNodeID)
	if err != nil {
		return res, fmt.Errorf("linker: create patch file node for %s: %w", path, err)
	}
	res.PatchFileID = pfID

	for _, seg := range segments {
		hunkID, err := l.Engine.CreateHunkNode(ctx, pfID, seg.AddedLines(), seg.RemovedLines())
		if err != nil {
			return res, fmt.Errorf("linker: create hunk node for %s: %w", path, err)
		}
		res.HunkIDs = append(res.HunkIDs, hunkID)

		removeTarget, addTarget := vulnFileID, patchedFileID

		switch seg.Op {
		case diffpatch.SegmentRemove:
			if removeTarget == "" {
				continue
			}
			n, err := l.Engine.ConnectPatchWithAffectedCode(ctx, removeTarget, hunkID, "remove", seg.Start, seg.End())
			if err != nil {
				return res, fmt.Errorf("linker: connect remove for %s: %w", path, err)
			}
			res.ConnectedNodes += n

		case diffpatch.SegmentAdd:
			if addTarget == "" {
				continue
			}
			n, err := l.Engine.ConnectPatchWithAffectedCode(ctx, addTarget, hunkID, "add", seg.Start, seg.Start+seg.Count-1)
			if err != nil {
				return res, fmt.Errorf("linker: connect add for %s: %w", path, err)
			}
			res.ConnectedNodes += n

		case diffpatch.SegmentReplace:
			if removeTarget != "" {
				n, err := l.Engine.ConnectPatchWithAffectedCode(ctx, removeTarget, hunkID, "replace", seg.Start, seg.End())
				if err != nil {
					return res, fmt.Errorf("linker: connect replace (remove side) for %s: %w", path, err)
				}
				res.ConnectedNodes += n
			}
			if addTarget != "" {
				n, err := l.Engine.ConnectPatchWithAffectedCode(ctx, addTarget, hunkID, "replace", seg.Start, seg.Start+seg.AddedCount-1)
				if err != nil {
					return res, fmt.Errorf("linker: connect replace (add side) for %s: %w", path, err)
				}
				res.ConnectedNodes += n
			}
		}
	}

	log.Printf("[Linker] linked %s: %d hunks, %d CPG nodes connected", path, len(res.HunkIDs), res.ConnectedNodes)
	return res, nil
}
