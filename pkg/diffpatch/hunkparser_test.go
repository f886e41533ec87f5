package diffpatch

import "testing"

func TestParseHunk_SingleAdd(t *testing.T) {
	body := "@@ -10,2 +10,3 @@\n ctx1\n+NEW\n ctx2"
	got, err := ParseHunk(body, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Segment{{Op: SegmentAdd, Start: 11, Count: 1}}
	assertSegments(t, got, want)
}

func TestParseHunk_SingleRemove(t *testing.T) {
	body := "@@ -10,3 +10,2 @@\n ctx1\n-OLD\n ctx2"
	got, err := ParseHunk(body, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Segment{{Op: SegmentRemove, Start: 11, Count: 1}}
	assertSegments(t, got, want)
}

func TestParseHunk_Replace(t *testing.T) {
	body := "@@ -10,3 +10,3 @@\n ctx1\n-OLD\n+NEW\n ctx2"
	got, err := ParseHunk(body, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Segment{{Op: SegmentReplace, Start: 11, RemovedCount: 1, AddedCount: 1}}
	assertSegments(t, got, want)
}

func TestParseHunk_EndOfFileNoTrailingContext(t *testing.T) {
	body := "@@ -8,2 +8,1 @@\n ctx1\n-LAST"
	got, err := ParseHunk(body, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Segment{{Op: SegmentRemove, Start: 9, Count: 1}}
	assertSegments(t, got, want)
}

func TestParseHunk_MultiLineAddAndRemoveRuns(t *testing.T) {
	body := "@@ -1,4 +1,5 @@\n ctx\n-old1\n-old2\n+new1\n+new2\n+new3\n ctx2"
	got, err := ParseHunk(body, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Segment{{Op: SegmentReplace, Start: 2, RemovedCount: 2, AddedCount: 3}}
	assertSegments(t, got, want)
}

func TestParseHunk_AddThenRemoveIsMalformed(t *testing.T) {
	body := "@@ -1,2 +1,2 @@\n+new\n-old"
	_, err := ParseHunk(body, 1)
	if err == nil {
		t.Fatalf("expected ErrInputMalformed, got nil")
	}
}

func TestParseHunk_OrderedAndNonOverlapping(t *testing.T) {
	body := "@@ -1,6 +1,6 @@\n ctx\n-a\n+b\n ctx2\n-c\n ctx3"
	got, err := ParseHunk(body, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start <= got[i-1].Start {
			t.Fatalf("segments not strictly ordered: %+v", got)
		}
		if got[i].Start <= got[i-1].End() {
			t.Fatalf("segments overlap: %+v", got)
		}
	}
}

func assertSegments(t *testing.T, got, want []Segment) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d segments, want %d: got=%+v want=%+v", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("segment %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
