package graphengine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFakeEngine_CreatePatchNodeIsIdempotentByPath(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	id1, err := e.CreatePatchNode(ctx, "a.patch", "first description")
	if err != nil {
		t.Fatalf("first create: unexpected error: %v", err)
	}

	id2, err := e.CreatePatchNode(ctx, "a.patch", "second description")
	if !errors.Is(err, ErrDuplicatePatch) {
		t.Fatalf("second create: got err %v, want ErrDuplicatePatch", err)
	}
	if id2 != id1 {
		t.Fatalf("second create returned a different id: %s != %s", id2, id1)
	}
}

func TestFakeEngine_CleanupPatchEffectsRemovesOwnedVerticesOnly(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	patchA, _ := e.CreatePatchNode(ctx, "a.patch", "")
	patchB, _ := e.CreatePatchNode(ctx, "b.patch", "")

	pfA, _ := e.CreatePatchFileNode(ctx, patchA, "file-1")
	hunkA, _ := e.CreateHunkNode(ctx, pfA, 1, 0)

	pfB, _ := e.CreatePatchFileNode(ctx, patchB, "file-2")
	hunkB, _ := e.CreateHunkNode(ctx, pfB, 0, 1)

	if err := e.CleanupPatchEffects(ctx, patchA); err != nil {
		t.Fatalf("cleanup: unexpected error: %v", err)
	}

	if _, ok := e.hunkOwner[hunkA]; ok {
		t.Errorf("hunk owned by patch A survived cleanup")
	}
	if _, ok := e.patchFileOwner[pfA]; ok {
		t.Errorf("patch-file owned by patch A survived cleanup")
	}
	if _, ok := e.hunkOwner[hunkB]; !ok {
		t.Errorf("hunk owned by patch B was wrongly removed")
	}
	if _, ok := e.patchFileOwner[pfB]; !ok {
		t.Errorf("patch-file owned by patch B was wrongly removed")
	}
}

func TestFakeEngine_QueryFileByPathMatchesSuffix(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	e.SeedFile("/repo/src/foo.c", "file-foo")
	e.SeedFile("/repo/src/barfoo.c", "file-barfoo")

	ids, err := e.QueryFileByPath(ctx, "src/foo.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "file-foo" {
		t.Fatalf("got %v, want exactly [file-foo] (barfoo.c shares the suffix \"foo.c\" but not \"src/foo.c\")", ids)
	}
}

func TestFakeEngine_ConnectPatchWithAffectedCodeRangeIntersection(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	e.SeedCPGNode("node-in-range", "file-1", 10, 20)
	e.SeedCPGNode("node-out-of-range", "file-1", 100, 110)
	e.SeedCPGNode("node-other-file", "file-2", 10, 20)

	linked, err := e.ConnectPatchWithAffectedCode(ctx, "file-1", "hunk-1", "remove", 15, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if linked != 1 {
		t.Fatalf("linked %d nodes, want 1", linked)
	}

	edges := e.edges["hunk-1"]
	if len(edges) != 1 || edges[0].to != "node-in-range" || edges[0].label != EdgeRemoves {
		t.Fatalf("unexpected edges: %+v", edges)
	}
}

func TestFakeEngine_SetAndGetPatchCountersRoundTrip(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	patchID, _ := e.CreatePatchNode(ctx, "a.patch", "")
	want := PatchCounters{
		Reversed:            true,
		ActualFilesAffected: 2,
		ActualHunks:         3,
		AvgHunkComplexity:   1.5,
	}
	if err := e.SetPatchCounters(ctx, patchID, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := e.GetPatchCounters(ctx, patchID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFakeEngine_SetPatchCountersUnknownPatchFails(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	if err := e.SetPatchCounters(ctx, "no-such-patch", PatchCounters{}); err == nil {
		t.Fatalf("expected error for unknown patch id, got nil")
	}
}

func TestFakeEngine_ImportParsedSourceWiresFileAndContainsEdges(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	dir := t.TempDir()
	nodes := "rawID,label,path,startLine,endLine\n" +
		"n1,File,src/foo.c,0,0\n" +
		"n2,Method,src/foo.c,2,4\n"
	if err := os.WriteFile(filepath.Join(dir, "nodes.csv"), []byte(nodes), 0o644); err != nil {
		t.Fatalf("write nodes.csv: %v", err)
	}
	edges := "rawFromID,rawToID,label\n" +
		"n1,n2,contains\n"
	if err := os.WriteFile(filepath.Join(dir, "edges.csv"), []byte(edges), 0o644); err != nil {
		t.Fatalf("write edges.csv: %v", err)
	}

	fileID, err := e.ImportParsedSource(ctx, dir, "src/foo.c")
	if err != nil {
		t.Fatalf("ImportParsedSource: %v", err)
	}
	if fileID == "" {
		t.Fatalf("expected a non-empty file vertex id")
	}
	if got := e.FilesByPath["src/foo.c"]; got != fileID {
		t.Fatalf("FilesByPath[src/foo.c] = %q, want %q", got, fileID)
	}

	node, ok := e.CPGNodes[fileID]
	_ = node
	if ok {
		t.Fatalf("the File row itself must not be registered as a code CPG node")
	}

	var methodID string
	for id, n := range e.CPGNodes {
		if n.fileID == fileID && n.startLine == 2 && n.endLine == 4 {
			methodID = id
		}
	}
	if methodID == "" {
		t.Fatalf("expected the Method row to be registered as a CPG node under the file, got %+v", e.CPGNodes)
	}

	containsEdges := e.edges[fileID]
	found := false
	for _, edge := range containsEdges {
		if edge.to == methodID && edge.label == "contains" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a contains edge from the file vertex to the method vertex, got %+v", containsEdges)
	}
}

func TestFakeEngine_ImportParsedSourceFileNeverMatchesLaterQueryFileByPath(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	e.SeedFile("src/foo.c", "file-foo-live")

	dir := t.TempDir()
	nodes := "rawID,label,path,startLine,endLine\n" +
		"n1,File,src/foo.c,0,0\n"
	if err := os.WriteFile(filepath.Join(dir, "nodes.csv"), []byte(nodes), 0o644); err != nil {
		t.Fatalf("write nodes.csv: %v", err)
	}

	if _, err := e.ImportParsedSource(ctx, dir, "src/foo.c"); err != nil {
		t.Fatalf("ImportParsedSource: %v", err)
	}

	ids, err := e.QueryFileByPath(ctx, "src/foo.c")
	if err != nil {
		t.Fatalf("QueryFileByPath: %v", err)
	}
	if len(ids) != 1 || ids[0] != "file-foo-live" {
		t.Fatalf("expected only the live file id, got %v (a later, unrelated lookup must not resolve the derived/parsed snapshot)", ids)
	}
}

func TestFakeEngine_ImportParsedSourceMissingFileRowFails(t *testing.T) {
	e := NewFakeEngine()
	ctx := context.Background()

	dir := t.TempDir()
	nodes := "rawID,label,path,startLine,endLine\n" +
		"n1,Method,src/foo.c,2,4\n"
	if err := os.WriteFile(filepath.Join(dir, "nodes.csv"), []byte(nodes), 0o644); err != nil {
		t.Fatalf("write nodes.csv: %v", err)
	}

	if _, err := e.ImportParsedSource(ctx, dir, "src/foo.c"); err == nil {
		t.Fatalf("expected an error when no File row matches relPath")
	}
}
