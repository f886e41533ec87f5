package diffpatch

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePatchFile_DescriptionAndSubPatches(t *testing.T) {
	raw := "fixes an off-by-one\n" +
		"diff --git a/foo.c b/foo.c\n" +
		"--- a/foo.c\n" +
		"+++ b/foo.c\n" +
		"@@ -10,2 +10,3 @@\n" +
		" ctx1\n" +
		"+new\n" +
		" ctx2\n"

	pf, err := ParsePatchFile("fix.patch", []byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pf.Description != "fixes an off-by-one" {
		t.Errorf("description: got %q", pf.Description)
	}
	if len(pf.SubPatches) != 1 {
		t.Fatalf("got %d sub-patches, want 1", len(pf.SubPatches))
	}
	sp := pf.SubPatches[0]
	if sp.Path != "foo.c" {
		t.Errorf("path: got %q, want foo.c (git a/ prefix should be stripped)", sp.Path)
	}
	if len(sp.Hunks) != 1 {
		t.Fatalf("got %d hunks, want 1", len(sp.Hunks))
	}
	if sp.LinesAdded != 1 || sp.LinesRemoved != 0 {
		t.Errorf("counts: got +%d/-%d, want +1/-0", sp.LinesAdded, sp.LinesRemoved)
	}
	if pf.TotalHunks() != 1 {
		t.Errorf("TotalHunks: got %d, want 1", pf.TotalHunks())
	}
}

func TestParsePatchFile_MultipleFilesAndHunks(t *testing.T) {
	raw := "diff --git a/a.c b/a.c\n" +
		"--- a/a.c\n" +
		"+++ b/a.c\n" +
		"@@ -1,2 +1,2 @@\n" +
		" ctx\n" +
		"-old\n" +
		"+new\n" +
		"diff --git a/b.c b/b.c\n" +
		"--- a/b.c\n" +
		"+++ b/b.c\n" +
		"@@ -5,1 +5,2 @@\n" +
		" ctx\n" +
		"+added\n"

	pf, err := ParsePatchFile("multi.patch", []byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pf.SubPatches) != 2 {
		t.Fatalf("got %d sub-patches, want 2", len(pf.SubPatches))
	}
	if pf.SubPatches[0].Path != "a.c" || pf.SubPatches[1].Path != "b.c" {
		t.Fatalf("unexpected paths: %+v", pf.SubPatches)
	}
	if pf.TotalLinesAdded() != 2 || pf.TotalLinesRemoved() != 1 {
		t.Errorf("totals: got +%d/-%d, want +2/-1", pf.TotalLinesAdded(), pf.TotalLinesRemoved())
	}
}

func TestParsePatchFile_RejectsReservedDescriptionDelimiter(t *testing.T) {
	raw := "$/quoted description/$\n" +
		"diff --git a/foo.c b/foo.c\n" +
		"--- a/foo.c\n" +
		"+++ b/foo.c\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-old\n" +
		"+new\n"

	_, err := ParsePatchFile("bad.patch", []byte(raw))
	if !errors.Is(err, ErrInputMalformed) {
		t.Fatalf("got err %v, want ErrInputMalformed", err)
	}
	if !strings.Contains(err.Error(), "$/") {
		t.Errorf("error should name the offending delimiter: %v", err)
	}
}

func TestParsePatchFile_NoDescriptionIsEmptyNotError(t *testing.T) {
	raw := "diff --git a/foo.c b/foo.c\n" +
		"--- a/foo.c\n" +
		"+++ b/foo.c\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-old\n" +
		"+new\n"

	pf, err := ParsePatchFile("nodesc.patch", []byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pf.Description != "" {
		t.Errorf("description: got %q, want empty", pf.Description)
	}
}
