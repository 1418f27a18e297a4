package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := openMemory(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	j.Record(ctx, Entry{Kind: KindUndelivered, EventID: "ev-1", Topic: "simulator/input",
		Payload: []byte("LED_ON"), Reason: "frame not found", CreatedAt: base})
	j.Record(ctx, Entry{Kind: KindOverflow, EventID: "ev-2", Topic: "simulator/input",
		Payload: []byte("LED_OFF"), Reason: "queue full", CreatedAt: base.Add(time.Second)})

	all, err := j.List(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("List all: got %d entries, want 2", len(all))
	}
	if all[0].EventID != "ev-2" {
		t.Errorf("newest first: got %q", all[0].EventID)
	}

	und, err := j.List(ctx, KindUndelivered, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(und) != 1 {
		t.Fatalf("List undelivered: got %d, want 1", len(und))
	}
	e := und[0]
	if e.ID == "" || string(e.Payload) != "LED_ON" || e.Reason != "frame not found" {
		t.Errorf("entry = %+v", e)
	}
	if !e.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, base)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "journal.db")
	j, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	var mode string
	if err := j.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}
