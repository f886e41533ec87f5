package batch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/patextra/patchlink/internal/graphengine"
	"github.com/patextra/patchlink/pkg/fuzzyapply"
	"github.com/patextra/patchlink/pkg/ingest"
	"github.com/patextra/patchlink/pkg/linker"
)

func writeTestPatch(t *testing.T, dir, name, targetFile, before, after string) string {
	t.Helper()

	sourceRoot := filepath.Join(dir, name+"-src")
	if err := os.MkdirAll(sourceRoot, 0o755); err != nil {
		t.Fatalf("mkdir source root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sourceRoot, targetFile), []byte(before), 0o644); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	patchPath := filepath.Join(dir, name+".patch")
	diff := "diff --git a/" + targetFile + " b/" + targetFile + "\n" +
		"--- a/" + targetFile + "\n" +
		"+++ b/" + targetFile + "\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-" + before +
		"+" + after
	if err := os.WriteFile(patchPath, []byte(diff), 0o644); err != nil {
		t.Fatalf("write patch: %v", err)
	}
	return patchPath
}

func TestScheduler_RunProcessesAllPatchesSmallestFirst(t *testing.T) {
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch not found in PATH")
	}

	dir := t.TempDir()

	engine := graphengine.NewFakeEngine()
	engine.SeedFile("one.c", "file-one")
	engine.SeedFile("two.c", "file-two")

	// Each patch gets its own source root since Orchestrator.SourceRoot is
	// fixed per-orchestrator; a real deployment runs one orchestrator per
	// project, so sharing an engine across two orchestrators here models
	// "two different patches against the same graph" rather than "two
	// different projects".
	sourceA := filepath.Join(dir, "proj-a")
	sourceB := filepath.Join(dir, "proj-b")
	for _, d := range []string{sourceA, sourceB} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(sourceA, "one.c"), []byte("int a;\n"), 0o644); err != nil {
		t.Fatalf("seed one.c: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sourceB, "two.c"), []byte("int b;\n"), 0o644); err != nil {
		t.Fatalf("seed two.c: %v", err)
	}

	patchOne := filepath.Join(dir, "one.patch")
	diffOne := "diff --git a/one.c b/one.c\n--- a/one.c\n+++ b/one.c\n@@ -1,1 +1,1 @@\n-int a;\n+int aa;\n"
	if err := os.WriteFile(patchOne, []byte(diffOne), 0o644); err != nil {
		t.Fatalf("write patch one: %v", err)
	}

	patchTwo := filepath.Join(dir, "two.patch")
	diffTwo := "diff --git a/two.c b/two.c\n--- a/two.c\n+++ b/two.c\n@@ -1,1 +1,1 @@\n-int b;\n+int bbbbbbbbbbbbbbbbbbbbbb;\n"
	if err := os.WriteFile(patchTwo, []byte(diffTwo), 0o644); err != nil {
		t.Fatalf("write patch two: %v", err)
	}

	// Run dispatches in sortBySizeAscending order: the shorter patch one
	// must come before patch two regardless of input order.
	if ordered := sortBySizeAscending([]string{patchTwo, patchOne}); len(ordered) != 2 || ordered[0] != patchOne || ordered[1] != patchTwo {
		t.Fatalf("expected smallest patch first, got %v", ordered)
	}

	orchA := ingest.New(engine, linker.New(engine), fuzzyapply.New(""), t.TempDir(), sourceA)
	schedA := New(orchA)
	schedA.Concurrency = 2

	resultsA := schedA.Run(context.Background(), []string{patchOne})
	if len(resultsA) != 1 || resultsA[0].Err != nil {
		t.Fatalf("expected patch one to succeed, got %+v", resultsA)
	}
	if ExitCode(resultsA) != 0 {
		t.Fatalf("expected exit code 0 with a successful patch")
	}

	orchB := ingest.New(engine, linker.New(engine), fuzzyapply.New(""), t.TempDir(), sourceB)
	schedB := New(orchB)
	resultsB := schedB.Run(context.Background(), []string{patchTwo})
	if len(resultsB) != 1 || resultsB[0].Err != nil {
		t.Fatalf("expected patch two to succeed, got %+v", resultsB)
	}
}

func TestScheduler_MissingFileFailsOnlyThatPatch(t *testing.T) {
	orch := ingest.New(graphengine.NewFakeEngine(), linker.New(graphengine.NewFakeEngine()), fuzzyapply.New(""), t.TempDir(), t.TempDir())
	sched := New(orch)

	results := sched.Run(context.Background(), []string{filepath.Join(t.TempDir(), "does-not-exist.patch")})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatalf("expected an error for a missing patch file")
	}
	if ExitCode(results) != 1 {
		t.Fatalf("expected exit code 1 when no patch was processable")
	}
}

func TestExitCode_ZeroIfAnyPatchSucceeded(t *testing.T) {
	results := []PatchResult{
		{Path: "a.patch", Err: os.ErrNotExist},
		{Path: "b.patch", Err: nil},
	}
	if ExitCode(results) != 0 {
		t.Fatalf("expected exit code 0 when at least one patch succeeded")
	}
}
