package bridge

import "testing"

func TestChangeDetector_FirstSnapshotIsChange(t *testing.T) {
	var d ChangeDetector
	if !d.Detect("a 1") {
		t.Fatal("first non-empty snapshot should be a change")
	}
	if d.Last() != "a 1" {
		t.Fatalf("Last = %q", d.Last())
	}
}

func TestChangeDetector_SameSnapshotIsNotChange(t *testing.T) {
	var d ChangeDetector
	d.Detect("a 1\nb 2")
	if d.Detect("a 1\nb 2") {
		t.Fatal("identical snapshot reported as change")
	}
	if !d.Detect("a 1\nb 3") {
		t.Fatal("different snapshot not reported")
	}
}

func TestChangeDetector_EmptyNeverProcessed(t *testing.T) {
	var d ChangeDetector
	if d.Detect("") {
		t.Fatal("empty snapshot reported as change")
	}
	d.Detect("x y")
	if d.Detect("") {
		t.Fatal("empty snapshot reported as change")
	}
	if d.Last() != "x y" {
		t.Fatalf("empty snapshot overwrote last: %q", d.Last())
	}
	if d.Detect("x y") {
		t.Fatal("snapshot after empty one compared against the empty one")
	}
}
