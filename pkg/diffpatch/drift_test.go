package diffpatch

import "testing"

func TestDriftTracker_ForwardAccumulatesDelta(t *testing.T) {
	d := NewDriftTracker(false)

	if got := d.AdjustStart(10); got != 10 {
		t.Fatalf("first hunk: got %d, want 10", got)
	}
	d.Advance(3, 1) // net +2

	if got := d.AdjustStart(25); got != 23 {
		t.Fatalf("second hunk: got %d, want 23", got)
	}
	d.Advance(0, 4) // net -4

	if got := d.AdjustStart(50); got != 52 {
		t.Fatalf("third hunk: got %d, want 52", got)
	}
	if got := d.Delta(); got != -2 {
		t.Fatalf("accumulated delta: got %d, want -2", got)
	}
}

func TestDriftTracker_ReverseNeverAccumulates(t *testing.T) {
	d := NewDriftTracker(true)

	d.Advance(5, 1)
	d.Advance(0, 9)

	if got := d.Delta(); got != 0 {
		t.Fatalf("reverse delta: got %d, want 0", got)
	}
	if got := d.AdjustStart(42); got != 42 {
		t.Fatalf("reverse AdjustStart: got %d, want 42 (unchanged)", got)
	}
}
