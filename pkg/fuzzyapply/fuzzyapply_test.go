package fuzzyapply

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestParseProgressStream_AppliedAndFailed(t *testing.T) {
	stream := "Hunk #1 succeeded at 100\n" +
		"Hunk #2 FAILED at 150.\n" +
		"Hunk #3 succeeded at 210\n"

	report, already, err := parseProgressStream(bytes.NewReader([]byte(stream)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already {
		t.Fatalf("did not expect AlreadyApplied")
	}
	if len(report.SubPatches) != 1 {
		t.Fatalf("expected 1 sub-patch report, got %d", len(report.SubPatches))
	}
	hunks := report.SubPatches[0]
	if len(hunks) != 3 {
		t.Fatalf("expected 3 hunk resolutions, got %d", len(hunks))
	}
	if !hunks[0].Applied || hunks[0].Line != 100 {
		t.Errorf("hunk 0: got %+v", hunks[0])
	}
	if !hunks[1].Failed {
		t.Errorf("hunk 1: expected Failed, got %+v", hunks[1])
	}
	if !hunks[2].Applied || hunks[2].Line != 210 {
		t.Errorf("hunk 2: got %+v", hunks[2])
	}
}

func TestParseProgressStream_Hunk10DoesNotTriggerNewSubPatch(t *testing.T) {
	stream := "Hunk #1 succeeded at 10\n" +
		"Hunk #10 succeeded at 1234\n"

	report, _, err := parseProgressStream(bytes.NewReader([]byte(stream)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.SubPatches) != 1 {
		t.Fatalf("expected 1 sub-patch (Hunk #10 should not start a new one), got %d", len(report.SubPatches))
	}
	if len(report.SubPatches[0]) != 2 {
		t.Fatalf("expected 2 hunk resolutions, got %d", len(report.SubPatches[0]))
	}
	if report.SubPatches[0][1].Line != 1234 {
		t.Errorf("expected line 1234 for Hunk #10, got %+v", report.SubPatches[0][1])
	}
}

func TestParseProgressStream_Ignored(t *testing.T) {
	stream := "Hunk #1 ignored at 1 (missing file).\n"
	report, _, err := parseProgressStream(bytes.NewReader([]byte(stream)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.SubPatches[0][0].Ignored {
		t.Errorf("expected Ignored resolution, got %+v", report.SubPatches[0][0])
	}
}

func TestParseProgressStream_AlreadyApplied(t *testing.T) {
	stream := "Reversed (or previously applied) patch detected!  Assume -R? [n]\n"
	_, already, err := parseProgressStream(bytes.NewReader([]byte(stream)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !already {
		t.Fatalf("expected AlreadyApplied to be detected")
	}
}

func TestParseProgressStream_MultipleSubPatches(t *testing.T) {
	stream := "Hunk #1 succeeded at 5\n" +
		"Hunk #2 succeeded at 40\n" +
		"Hunk #1 succeeded at 3\n"

	report, _, err := parseProgressStream(bytes.NewReader([]byte(stream)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.SubPatches) != 2 {
		t.Fatalf("expected 2 sub-patches, got %d", len(report.SubPatches))
	}
	if len(report.SubPatches[0]) != 2 || len(report.SubPatches[1]) != 1 {
		t.Fatalf("unexpected sub-patch shapes: %+v", report.SubPatches)
	}
}

func TestApply_RealPatchBinary(t *testing.T) {
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch not found in PATH")
	}

	ws := t.TempDir()
	target := filepath.Join(ws, "greeting.txt")
	if err := os.WriteFile(target, []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatalf("seed target file: %v", err)
	}

	patchPath := filepath.Join(t.TempDir(), "greeting.patch")
	diff := "--- a/greeting.txt\n" +
		"+++ b/greeting.txt\n" +
		"@@ -1,2 +1,2 @@\n" +
		" hello\n" +
		"-world\n" +
		"+there\n"
	if err := os.WriteFile(patchPath, []byte(diff), 0o644); err != nil {
		t.Fatalf("write patch file: %v", err)
	}

	applier := New("")
	report, err := applier.Apply(context.Background(), patchPath, ws, false, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.AlreadyApplied {
		t.Fatalf("did not expect AlreadyApplied")
	}
	if len(report.SubPatches) != 1 || len(report.SubPatches[0]) != 1 || !report.SubPatches[0][0].Applied {
		t.Fatalf("expected a single applied hunk, got %+v", report.SubPatches)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read patched file: %v", err)
	}
	if string(got) != "hello\nthere\n" {
		t.Fatalf("unexpected patched content: %q", got)
	}

	// Re-applying forward should now report AlreadyApplied.
	again, err := applier.Apply(context.Background(), patchPath, ws, false, false)
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if !again.AlreadyApplied {
		t.Fatalf("expected AlreadyApplied on re-application")
	}
}
