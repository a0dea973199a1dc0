package tt

import (
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	table := New(1024)
	table.Put(10, Exact, 3)
	table.Put(20, Lower, -5)
	table.Put(30, Upper, 9)

	dir := t.TempDir()
	path := filepath.Join(dir, "snap.gob")
	if err := table.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	for _, key := range []uint64{10, 20, 30} {
		wantKind, wantScore, wantOK := table.Get(key)
		gotKind, gotScore, gotOK := loaded.Get(key)
		if gotOK != wantOK || gotKind != wantKind || gotScore != wantScore {
			t.Fatalf("key %d: got (%v, %d, %v), want (%v, %d, %v)", key, gotKind, gotScore, gotOK, wantKind, wantScore, wantOK)
		}
	}
}

func TestSnapshotEmptyTable(t *testing.T) {
	table := New(64)
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.gob")
	if err := table.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if _, _, ok := loaded.Get(1); ok {
		t.Fatalf("expected a miss in a loaded-empty table")
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Fatalf("expected an error loading a missing snapshot file")
	}
}
