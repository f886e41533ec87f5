// Package ingest implements IngestionOrchestrator (§4.6): the per-patch
// state machine that parses a patch file, fuzzy-applies it against a scoped
// workspace, and links its effect into the graph via pkg/linker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/patextra/patchlink/internal/graphengine"
	"github.com/patextra/patchlink/pkg/diffpatch"
	"github.com/patextra/patchlink/pkg/fuzzyapply"
	"github.com/patextra/patchlink/pkg/linker"
	"github.com/patextra/patchlink/pkg/workspace"
)

// DefaultSourceExtensions lists the file extensions that participate in the
// side-car vulnerable-code import path. Configurable (unlike the original
// importer's hard-coded {.c, .cpp, .h}) to leave room for language
// expansion; callers that don't care can use this default as-is.
var DefaultSourceExtensions = []string{".c", ".cpp", ".h"}

// SourceImporter is the "external source parser" collaborator (§6): given a
// directory of source files, it produces a CPG representation and returns
// the file-version node id for the named file. Orchestrator calls this on
// the side-car vulnerable-code path and on a reverse patch, the two cases
// where no live CPG snapshot of the vulnerable file exists yet.
type SourceImporter interface {
	ImportFile(ctx context.Context, dir, relPath string) (fileID string, err error)
}

// Sentinels surfaced by Run, matching §7's error-kind taxonomy.
var (
	ErrInputMalformed      = diffpatch.ErrInputMalformed
	ErrDoubleReverse       = fuzzyapply.ErrDoubleReverse
	ErrExternalToolFailure = fuzzyapply.ErrExternalToolFailure
	ErrGraphConflict       = graphengine.ErrConflict
)

// Orchestrator runs one patch file through DescribePatch -> CreatePatchNode
// -> SeedWorkspace -> TryForward/TryReverse -> LinkSubPatches -> Finalize.
type Orchestrator struct {
	Engine   graphengine.Engine
	Linker   *linker.Linker
	Applier  *fuzzyapply.Applier
	Importer SourceImporter // optional; only needed for the side-car and reverse paths

	// WorkspaceBaseDir is where scoped scratch directories are created.
	WorkspaceBaseDir string
	// SourceRoot is the live codebase root a forward/reverse patch is
	// fuzzy-applied against when no side-car vulnerable-code tree exists.
	SourceRoot string

	SourceExtensions []string

	// PathLookupTruncateTo, when > 0, truncates a sub-patch's relative path
	// to its last N characters before querying the graph for the matching
	// file-version node. Off by default; some graph index implementations
	// apparently need this, but it is not something to replicate blindly.
	PathLookupTruncateTo int
}

// New returns an Orchestrator with DefaultSourceExtensions.
func New(engine graphengine.Engine, l *linker.Linker, applier *fuzzyapply.Applier, workspaceBaseDir, sourceRoot string) *Orchestrator {
	return &Orchestrator{
		Engine:           engine,
		Linker:           l,
		Applier:          applier,
		WorkspaceBaseDir: workspaceBaseDir,
		SourceRoot:       sourceRoot,
		SourceExtensions: DefaultSourceExtensions,
	}
}

// Report summarizes one patch's ingestion for CLI/MCP surfaces.
type Report struct {
	PatchID    string
	Reversed   bool
	Vulnerable bool // side-car vulnerable-code path was used
	Counters   graphengine.PatchCounters
}

// Run executes the full state machine for one patch file on disk at
// patchPath, whose content has already been read into raw.
func (o *Orchestrator) Run(ctx context.Context, patchPath string, raw []byte) (*Report, error) {
	// DescribePatch
	patchFile, err := diffpatch.ParsePatchFile(patchPath, raw)
	if err != nil {
		return nil, fmt.Errorf("ingest: describe patch %s: %w", patchPath, err)
	}

	// CreatePatchNode (idempotent by path; re-ingestion cleans up prior effects)
	patchID, err := o.Engine.CreatePatchNode(ctx, patchPath, patchFile.Description)
	if err != nil && !errors.Is(err, graphengine.ErrDuplicatePatch) {
		return nil, fmt.Errorf("ingest: create patch node: %w", err)
	}
	if err := o.Engine.CleanupPatchEffects(ctx, patchID); err != nil {
		return nil, fmt.Errorf("ingest: cleanup prior effects: %w", err)
	}

	// Side-car vulnerable-code detection.
	sideCarDir := strings.TrimSuffix(patchPath, filepath.Ext(patchPath))
	vulnerable := dirExists(sideCarDir)

	// SeedWorkspace
	ws, err := workspace.Acquire(o.WorkspaceBaseDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: seed workspace: %w", err)
	}
	defer ws.Release()

	seedRoot := o.SourceRoot
	if vulnerable {
		seedRoot = sideCarDir
	}
	if _, err := ws.Seed(patchFile.SubPatches, seedRoot); err != nil {
		return nil, fmt.Errorf("ingest: seed workspace files: %w", err)
	}

	reversed := false
	var report *fuzzyapply.Report

	if vulnerable {
		// Dry-run only: the vulnerable tree is already known-good; we only
		// want the fuzzy line offsets, never a mutation.
		report, err = o.Applier.Apply(ctx, patchPath, ws.Root, false, true)
	} else {
		report, err = o.Applier.Apply(ctx, patchPath, ws.Root, false, false)
		if err == nil && report.AlreadyApplied {
			reversed = true
			report, err = o.Applier.Apply(ctx, patchPath, ws.Root, true, false)
			if err == nil && report.AlreadyApplied {
				err = ErrDoubleReverse
			}
		}
	}
	if err != nil {
		if rerr := o.Rollback(ctx, patchID, reversed); rerr != nil {
			log.Printf("[Ingest] %s: rollback after apply failure also failed: %v", patchPath, rerr)
		}
		return nil, fmt.Errorf("ingest: apply patch: %w", err)
	}

	// LinkSubPatches
	var (
		actualFiles, actualAdded, actualRemoved, actualHunks int
	)

	for i, sp := range patchFile.SubPatches {
		if i >= len(report.SubPatches) {
			log.Printf("[Ingest] %s: no fuzzy report for sub-patch %s, skipping", patchPath, sp.Path)
			continue
		}

		vulnFileID, patchedFileID, ferr := o.resolveFileIDs(ctx, sp.Path, vulnerable, reversed, sideCarDir, ws.Root)
		if ferr != nil {
			log.Printf("[Ingest] %s: %v, skipping sub-patch", sp.Path, ferr)
			continue
		}
		if vulnFileID == "" {
			log.Printf("[Ingest] %s: target file not found in graph, skipping sub-patch", sp.Path)
			continue
		}

		segments, serr := buildSegments(sp, report.SubPatches[i], reversed)
		if serr != nil {
			log.Printf("[Ingest] %s: %v, skipping sub-patch", sp.Path, serr)
			continue
		}
		if len(segments) == 0 {
			continue
		}

		// isFile always anchors to the currently-resolved on-disk file
		// version, which is not always vulnFileID: on a reverse patch it is
		// patchedFileID (see LinkSubPatch's doc).
		fileNodeID := vulnFileID
		if reversed {
			fileNodeID = patchedFileID
		}

		res, lerr := o.Linker.LinkSubPatch(ctx, patchID, sp.Path, segments, fileNodeID, vulnFileID, patchedFileID, reversed)
		if lerr != nil {
			if rerr := o.Rollback(ctx, patchID, reversed); rerr != nil {
				log.Printf("[Ingest] %s: rollback after link failure also failed: %v", patchPath, rerr)
			}
			return nil, fmt.Errorf("ingest: link sub-patch %s: %w", sp.Path, lerr)
		}

		actualFiles++
		actualHunks += len(res.HunkIDs)
		for _, seg := range segments {
			actualAdded += seg.AddedLines()
			actualRemoved += seg.RemovedLines()
		}
	}

	counters := graphengine.PatchCounters{
		Reversed:              reversed,
		OriginalFilesAffected: len(patchFile.SubPatches),
		OriginalLinesAdded:    patchFile.TotalLinesAdded(),
		OriginalLinesRemoved:  patchFile.TotalLinesRemoved(),
		OriginalHunks:         patchFile.TotalHunks(),
		ActualFilesAffected:   actualFiles,
		ActualLinesAdded:      actualAdded,
		ActualLinesRemoved:    actualRemoved,
		ActualHunks:           actualHunks,
	}
	if counters.OriginalHunks > 0 {
		raw := float64(counters.OriginalLinesAdded+counters.OriginalLinesRemoved) / float64(counters.OriginalHunks)
		counters.AvgHunkComplexity = math.Round(raw*1000) / 1000
	}

	if err := o.Engine.SetPatchCounters(ctx, patchID, counters); err != nil {
		return nil, fmt.Errorf("ingest: finalize counters: %w", err)
	}

	log.Printf("[Ingest] %s: connected %d/%d hunks across %d/%d files", patchPath,
		actualHunks, counters.OriginalHunks, actualFiles, counters.OriginalFilesAffected)

	return &Report{PatchID: patchID, Reversed: reversed, Vulnerable: vulnerable, Counters: counters}, nil
}

// Rollback undoes a Run that failed while applying the patch or partway
// through LinkSubPatches: it removes every PatchFileNode/HunkNode this Run
// call may have created (CleanupPatchEffects, idempotent whether or not any
// partials exist) and then stores a zero-valued PatchCounters on the
// PatchNode, keeping only reversed, so the original* counters are zeroed
// along with the actual* ones. The PatchNode vertex itself is not deleted —
// the deployment policy decided on in DESIGN.md — so a patch that fails
// never leaves dangling linked nodes or a stale counters snapshot from a
// previous, unrelated successful run.
func (o *Orchestrator) Rollback(ctx context.Context, patchID string, reversed bool) error {
	if err := o.Engine.CleanupPatchEffects(ctx, patchID); err != nil {
		return fmt.Errorf("rollback cleanup: %w", err)
	}
	return o.Engine.SetPatchCounters(ctx, patchID, graphengine.PatchCounters{Reversed: reversed})
}

// resolveFileIDs resolves the vulnFileID/patchedFileID pair LinkSubPatch
// routes Remove/Add segments against (§4.5). In either direction vulnFileID
// is the vulnerable file version (the Remove side) and patchedFileID the
// patched version (the Add side); LinkSubPatch routes by these roles as
// given, so which physical file plays which role is decided here.
//
//   - side-car vulnerable tree present: vulnFileID is freshly imported from
//     sideCarDir; there is no separately-imported patched side.
//   - forward, no side-car: vulnFileID is the live on-disk file already in
//     the graph; no patched side is imported.
//   - reverse, no side-car: the live on-disk file is already the patched
//     version (the patch is already applied); the vulnerable version only
//     exists in the scoped workspace after Apply(reverse=true) mutated it,
//     so it must be freshly imported from wsRoot and returned as vulnFileID,
//     with the live on-disk file returned as patchedFileID — matching
//     patch_importer.py's `_import_patched_file` / reversed-patch branch.
func (o *Orchestrator) resolveFileIDs(ctx context.Context, relPath string, vulnerable, reversed bool, sideCarDir, wsRoot string) (vulnFileID, patchedFileID string, err error) {
	if vulnerable {
		if o.Importer == nil {
			return "", "", fmt.Errorf("side-car vulnerable code present but no source importer configured")
		}
		if !hasSourceExtension(relPath, o.SourceExtensions) {
			return "", "", nil
		}
		id, err := o.Importer.ImportFile(ctx, sideCarDir, relPath)
		if err != nil {
			return "", "", fmt.Errorf("import vulnerable file %s: %w", relPath, err)
		}
		return id, "", nil
	}

	ids, err := o.Engine.QueryFileByPath(ctx, o.truncatePath(relPath))
	if err != nil {
		return "", "", fmt.Errorf("query file %s: %w", relPath, err)
	}
	if len(ids) == 0 {
		return "", "", nil
	}
	currentFileID := ids[0]

	if !reversed {
		return currentFileID, "", nil
	}

	if o.Importer == nil {
		return "", "", fmt.Errorf("reversed patch requires a source importer to import the derived vulnerable file")
	}
	if !hasSourceExtension(relPath, o.SourceExtensions) {
		return "", "", nil
	}
	derivedVulnFileID, err := o.Importer.ImportFile(ctx, wsRoot, relPath)
	if err != nil {
		return "", "", fmt.Errorf("import derived vulnerable file %s: %w", relPath, err)
	}
	return derivedVulnFileID, currentFileID, nil
}

// buildSegments runs HunkParser over a sub-patch's hunks using the fuzzy
// applier's reported start lines, carrying one DriftTracker across them
// per §4.3. Hunks FuzzyApplier marked Failed or Ignored are skipped
// (§7 FuzzyMismatch: non-fatal, proceed with the rest).
func buildSegments(sp diffpatch.SubPatch, resolutions fuzzyapply.SubPatchReport, reverse bool) ([]diffpatch.Segment, error) {
	tracker := diffpatch.NewDriftTracker(reverse)
	var all []diffpatch.Segment

	for i, h := range sp.Hunks {
		if i >= len(resolutions) {
			break
		}
		res := resolutions[i]
		if !res.Applied {
			continue
		}

		start := tracker.AdjustStart(res.Line)
		segs, err := diffpatch.ParseHunk(h.Body, start)
		if err != nil {
			return nil, fmt.Errorf("%w", err)
		}
		all = append(all, segs...)
		tracker.Advance(h.LinesAdded, h.LinesRemoved)
	}
	return all, nil
}

// truncatePath applies PathLookupTruncateTo when configured, keeping only
// the trailing N characters of path.
func (o *Orchestrator) truncatePath(path string) string {
	if o.PathLookupTruncateTo <= 0 || len(path) <= o.PathLookupTruncateTo {
		return path
	}
	return path[len(path)-o.PathLookupTruncateTo:]
}

func hasSourceExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
