package graphengine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// cpgNode is a minimal externally-owned CPG node as the in-memory fake
// models it: a file-version id and the line range it covers.
type cpgNode struct {
	fileID    string
	startLine int
	endLine   int
}

// FakeEngine is an in-memory Engine for tests and for callers without a
// Postgres instance. It holds no back-pointers between vertices (§9's
// "arena-of-ids over heap-allocated node objects" guidance) — only flat
// maps keyed by generated ids, mirroring what IngestionOrchestrator itself
// is allowed to assume about the graph.
type FakeEngine struct {
	mu sync.Mutex

	nextID int

	patchByPath map[string]string
	patchProps  map[string]PatchCounters
	patchDesc   map[string]string

	patchFileOwner map[string]string // patchFileID -> patchID
	patchFileOfFile map[string]string // patchFileID -> fileID

	hunkOwner map[string]string // hunkID -> patchFileID
	hunkMeta  map[string][2]int // hunkID -> [linesAdded, linesRemoved]

	edges map[string][]edge // vertexID (from) -> outgoing edges

	// CPGNodes is the fixture of externally-owned code nodes QueryFileByPath
	// and ConnectPatchWithAffectedCode range-query against, keyed by id.
	CPGNodes map[string]cpgNode

	// FilesByPath maps a full path to its file-version CPG node id, the
	// fixture QueryFileByPath matches by suffix.
	FilesByPath map[string]string

	// syntheticFiles marks file-version ids ImportParsedSource produced, so
	// QueryFileByPath can exclude them the same way PGEngine excludes its
	// props.synthetic vertices: a parsed snapshot is a one-off for this
	// ingestion run, not a durable addition to the path index.
	syntheticFiles map[string]bool
}

type edge struct {
	to    string
	label EdgeLabel
}

// NewFakeEngine returns an empty FakeEngine ready for use.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		patchByPath:     make(map[string]string),
		patchProps:      make(map[string]PatchCounters),
		patchDesc:       make(map[string]string),
		patchFileOwner:  make(map[string]string),
		patchFileOfFile: make(map[string]string),
		hunkOwner:       make(map[string]string),
		hunkMeta:        make(map[string][2]int),
		edges:           make(map[string][]edge),
		CPGNodes:        make(map[string]cpgNode),
		FilesByPath:     make(map[string]string),
		syntheticFiles:  make(map[string]bool),
	}
}

// SeedCPGNode registers a fixture CPG node under fileID covering
// [startLine, endLine], for ConnectPatchWithAffectedCode to range-match.
func (f *FakeEngine) SeedCPGNode(id, fileID string, startLine, endLine int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CPGNodes[id] = cpgNode{fileID: fileID, startLine: startLine, endLine: endLine}
}

// SeedFile registers fileID as the file-version node for path, for
// QueryFileByPath to match by suffix.
func (f *FakeEngine) SeedFile(path, fileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FilesByPath[path] = fileID
}

func (f *FakeEngine) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeEngine) CreatePatchNode(_ context.Context, path, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.patchByPath[path]; ok {
		return id, ErrDuplicatePatch
	}
	id := f.newID("patch")
	f.patchByPath[path] = id
	f.patchDesc[id] = description
	f.patchProps[id] = PatchCounters{}
	return id, nil
}

func (f *FakeEngine) CleanupPatchEffects(_ context.Context, patchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for pfID, owner := range f.patchFileOwner {
		if owner != patchID {
			continue
		}
		for hID, hOwner := range f.hunkOwner {
			if hOwner == pfID {
				delete(f.hunkOwner, hID)
				delete(f.hunkMeta, hID)
				delete(f.edges, hID)
			}
		}
		delete(f.patchFileOwner, pfID)
		delete(f.patchFileOfFile, pfID)
		delete(f.edges, pfID)
	}
	delete(f.edges, patchID)
	return nil
}

func (f *FakeEngine) QueryFileByPath(_ context.Context, suffix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for path, id := range f.FilesByPath {
		if f.syntheticFiles[id] {
			continue
		}
		if len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FakeEngine) CreatePatchFileNode(_ context.Context, patchID, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.newID("pfile")
	f.patchFileOwner[id] = patchID
	f.patchFileOfFile[id] = fileID
	f.edges[patchID] = append(f.edges[patchID], edge{to: id, label: EdgeAffects})
	f.edges[id] = append(f.edges[id], edge{to: fileID, label: EdgeIsFile})
	return id, nil
}

func (f *FakeEngine) CreateHunkNode(_ context.Context, patchFileID string, linesAdded, linesRemoved int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.newID("hunk")
	f.hunkOwner[id] = patchFileID
	f.hunkMeta[id] = [2]int{linesAdded, linesRemoved}
	f.edges[patchFileID] = append(f.edges[patchFileID], edge{to: id, label: EdgeApplies})
	return id, nil
}

func (f *FakeEngine) ConnectPatchWithAffectedCode(_ context.Context, fileID, hunkID, op string, start, end int) (int, error) {
	var label EdgeLabel
	switch op {
	case "add":
		label = EdgeAdds
	case "remove":
		label = EdgeRemoves
	case "replace":
		label = EdgeReplaces
	default:
		return 0, fmt.Errorf("graphengine: unknown segment op %q", op)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for id, node := range f.CPGNodes {
		if node.fileID != fileID {
			continue
		}
		if node.startLine <= end && node.endLine >= start {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		f.edges[hunkID] = append(f.edges[hunkID], edge{to: id, label: label})
	}
	return len(ids), nil
}

func (f *FakeEngine) SetPatchCounters(_ context.Context, patchID string, counters PatchCounters) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.patchDesc[patchID]; !ok {
		return fmt.Errorf("graphengine: patch node %s not found", patchID)
	}
	f.patchProps[patchID] = counters
	return nil
}

// Counters returns the currently stored counters for patchID, for test
// assertions.
func (f *FakeEngine) Counters(patchID string) PatchCounters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patchProps[patchID]
}

func (f *FakeEngine) GetPatchCounters(_ context.Context, patchID string) (PatchCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.patchDesc[patchID]; !ok {
		return PatchCounters{}, fmt.Errorf("graphengine: patch node %s not found", patchID)
	}
	return f.patchProps[patchID], nil
}

// ImportParsedSource is the in-memory counterpart of PGEngine's nodes.csv/
// edges.csv loader (see its doc comment for the tabular format), registering
// parsed nodes as fixture CPGNodes/FilesByPath entries instead of Postgres
// rows. The File row's id is marked in syntheticFiles so QueryFileByPath
// never resolves it on a later, unrelated lookup for the same path; a File
// row is added to FilesByPath only when that path has no entry yet, so a
// live file already registered there keeps its mapping.
func (f *FakeEngine) ImportParsedSource(_ context.Context, tableDir, relPath string) (string, error) {
	rows, err := readCSVRows(filepath.Join(tableDir, "nodes.csv"))
	if err != nil {
		return "", fmt.Errorf("graphengine: open nodes.csv: %w", err)
	}
	if len(rows) < 2 {
		return "", fmt.Errorf("graphengine: nodes.csv for %s has no data rows", relPath)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make(map[string]string, len(rows)-1)
	var fileVertexID string
	type codeRow struct {
		id         string
		start, end int
	}
	var codeRows []codeRow

	for _, row := range rows[1:] {
		if len(row) < 5 {
			continue
		}
		rawID, label, path, startStr, endStr := row[0], row[1], row[2], row[3], row[4]
		start, _ := strconv.Atoi(startStr)
		end, _ := strconv.Atoi(endStr)

		id := f.newID("cpg")
		ids[rawID] = id

		if label == "File" {
			// Never overwrite an existing (live) mapping for the same path.
			if _, exists := f.FilesByPath[path]; !exists {
				f.FilesByPath[path] = id
			}
			f.syntheticFiles[id] = true
			if path == relPath {
				fileVertexID = id
			}
		} else {
			codeRows = append(codeRows, codeRow{id: id, start: start, end: end})
		}
	}
	if fileVertexID == "" {
		return "", fmt.Errorf("graphengine: parsed output for %s has no matching File vertex", relPath)
	}

	for _, cr := range codeRows {
		f.CPGNodes[cr.id] = cpgNode{fileID: fileVertexID, startLine: cr.start, endLine: cr.end}
		f.edges[fileVertexID] = append(f.edges[fileVertexID], edge{to: cr.id, label: "contains"})
	}

	if edgeRows, err := readCSVRows(filepath.Join(tableDir, "edges.csv")); err == nil && len(edgeRows) >= 2 {
		for _, row := range edgeRows[1:] {
			if len(row) < 3 {
				continue
			}
			from, ok1 := ids[row[0]]
			to, ok2 := ids[row[1]]
			if !ok1 || !ok2 {
				continue
			}
			f.edges[from] = append(f.edges[from], edge{to: to, label: EdgeLabel(row[2])})
		}
	}

	return fileVertexID, nil
}

func (f *FakeEngine) RemoveVertex(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.patchByPath, id)
	for path, vid := range f.patchByPath {
		if vid == id {
			delete(f.patchByPath, path)
		}
	}
	delete(f.patchProps, id)
	delete(f.patchDesc, id)
	delete(f.patchFileOwner, id)
	delete(f.patchFileOfFile, id)
	delete(f.hunkOwner, id)
	delete(f.hunkMeta, id)
	delete(f.edges, id)
	return nil
}
