// Package graphengine defines the graph-backed store that owns PatchNode,
// PatchFileNode, and HunkNode vertices plus their typed edges into a
// Code Property Graph, per spec §4.5/§6. It ships a concrete pgx-backed
// adapter (pgengine.go), an optional Redis read-through cache (cache.go),
// and an in-memory fake used by tests and by callers that don't have a
// Postgres instance handy.
package graphengine

import (
	"context"
	"errors"
)

// EdgeLabel names one of the typed edges GraphLinker creates, per §4.5.
type EdgeLabel string

const (
	EdgeAffects  EdgeLabel = "affects"  // PatchNode -> PatchFileNode
	EdgeIsFile   EdgeLabel = "isFile"   // PatchFileNode -> file-version CPG node
	EdgeApplies  EdgeLabel = "applies"  // PatchFileNode -> HunkNode
	EdgeRemoves  EdgeLabel = "removes"  // HunkNode -> CPG node
	EdgeAdds     EdgeLabel = "adds"     // HunkNode -> CPG node
	EdgeReplaces EdgeLabel = "replaces" // HunkNode -> CPG node
)

// VertexLabel names one of the vertex kinds this package creates directly.
// CPG nodes (file-version and code nodes) are externally owned and only
// ever referenced by id.
type VertexLabel string

const (
	LabelPatch     VertexLabel = "PatchNode"
	LabelPatchFile VertexLabel = "PatchFileNode"
	LabelHunk      VertexLabel = "HunkNode"
)

// fileVertexLabel is the externally-owned CPG label QueryFileByPath and
// ImportParsedSource match file-version vertices against, per the external
// source parser's convention (§6).
const fileVertexLabel = "File"

// ErrDuplicatePatch is the sentinel CreatePatchNode returns, together with
// the existing id, whenever a PatchNode for the path already exists —
// whether from an earlier call or from a concurrent creation that won the
// race.
var ErrDuplicatePatch = errors.New("graphengine: duplicate patch node")

// ErrConflict is returned when an optimistic-concurrency write loses a race
// and exhausts its retry budget (§7 GraphConflict).
var ErrConflict = errors.New("graphengine: concurrent write conflict")

// PatchCounters is the persisted state on a PatchNode, per §6.
type PatchCounters struct {
	Reversed              bool
	OriginalFilesAffected int
	OriginalLinesAdded    int
	OriginalLinesRemoved  int
	OriginalHunks         int
	ActualFilesAffected   int
	ActualLinesAdded      int
	ActualLinesRemoved    int
	ActualHunks           int
	AvgHunkComplexity     float64
}

// Engine is the GraphEngine contract from §6, abstracted over whatever
// concrete store backs it.
type Engine interface {
	// CreatePatchNode is idempotent by path: a second call with the same
	// path returns the existing id and ErrDuplicatePatch, not a new vertex.
	CreatePatchNode(ctx context.Context, path, description string) (id string, err error)

	// CleanupPatchEffects removes every PatchFileNode/HunkNode owned
	// (transitively, via affects/applies) by patchID, leaving the PatchNode
	// itself untouched.
	CleanupPatchEffects(ctx context.Context, patchID string) error

	// QueryFileByPath looks up file-version CPG node ids whose path ends in
	// suffix, the range GraphLinker needs to resolve a sub-patch's target.
	QueryFileByPath(ctx context.Context, suffix string) ([]string, error)

	// CreatePatchFileNode creates a PatchFileNode owned by patchID, linked
	// to fileID via isFile.
	CreatePatchFileNode(ctx context.Context, patchID, fileID string) (id string, err error)

	// CreateHunkNode creates a HunkNode owned by patchFileID via applies,
	// carrying the hunk's line-count metadata (§4.5 "HunkNode metadata").
	CreateHunkNode(ctx context.Context, patchFileID string, linesAdded, linesRemoved int) (id string, err error)

	// ConnectPatchWithAffectedCode range-queries fileID's CPG nodes for the
	// line span [start, end] and links hunkID to each via the edge label
	// matching op ("add" -> adds, "remove" -> removes, "replace" ->
	// replaces). Returns the number of CPG nodes linked.
	ConnectPatchWithAffectedCode(ctx context.Context, fileID, hunkID, op string, start, end int) (count int, err error)

	// SetPatchCounters writes Finalize/Rollback's aggregate counters onto
	// the PatchNode, retrying on optimistic-concurrency conflicts up to the
	// caller-supplied budget and returning ErrConflict if exhausted.
	SetPatchCounters(ctx context.Context, patchID string, counters PatchCounters) error

	// GetPatchCounters reads back a PatchNode's persisted counters, the
	// typed-property-read half of §6's "typed property writes" primitive.
	GetPatchCounters(ctx context.Context, patchID string) (PatchCounters, error)

	// RemoveVertex deletes a vertex and its incident edges outright. Nothing
	// in this module calls it: Orchestrator.Rollback zeroes counters rather
	// than deleting the PatchNode (see DESIGN.md's zeroing-vs-delete
	// decision).
	RemoveVertex(ctx context.Context, id string) error

	// ImportParsedSource loads the external source parser's tabular CPG
	// output (§6 "External source parser") from tableDir into the graph and
	// returns the id of the File-labeled vertex matching relPath. Used for
	// the side-car vulnerable-code path and for reverse-patch ingestion,
	// where the vulnerable file version has no pre-existing CPG snapshot and
	// must be parsed fresh (see pkg/sourceimport). The returned File vertex
	// is marked so QueryFileByPath never resolves it on a later, unrelated
	// lookup for the same path: it is a one-off derived snapshot (the
	// vulnerable version reconstructed for this one ingestion run), not the
	// live file version QueryFileByPath's callers expect.
	ImportParsedSource(ctx context.Context, tableDir, relPath string) (fileID string, err error)
}
