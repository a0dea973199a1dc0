package book

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	b, err := parse(strings.NewReader("# depth 3\n1234 2 5\n\n# comment\n999 0 -1\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b.Depth != 3 {
		t.Fatalf("Depth = %d, want 3", b.Depth)
	}
	if move, score, ok := b.Lookup(1234); !ok || move != 2 || score != 5 {
		t.Fatalf("Lookup(1234) = (%d, %d, %v), want (2, 5, true)", move, score, ok)
	}
	if move, score, ok := b.Lookup(999); !ok || move != 0 || score != -1 {
		t.Fatalf("Lookup(999) = (%d, %d, %v), want (0, -1, true)", move, score, ok)
	}
	if _, _, ok := b.Lookup(42); ok {
		t.Fatalf("Lookup(42) unexpectedly found an entry")
	}
}

func TestParseMissingDepthDefaultsToFullBoard(t *testing.T) {
	b, err := parse(strings.NewReader("1 0 0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b.Depth != 42 {
		t.Fatalf("Depth = %d, want 42 (safe fallback)", b.Depth)
	}
}

func TestParseMalformedLineFails(t *testing.T) {
	if _, err := parse(strings.NewReader("not enough fields\n")); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestParseOutOfRangeScoreFails(t *testing.T) {
	if _, err := parse(strings.NewReader("1 0 99\n")); err == nil {
		t.Fatalf("expected error for out-of-range score")
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	b := New()
	b.Depth = 5
	b.Put(10, 3, 7)
	b.Put(20, 0, -4)

	dir := t.TempDir()
	path := filepath.Join(dir, "book.txt")
	if err := b.Store(path); err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Depth != 5 {
		t.Fatalf("Depth = %d, want 5", loaded.Depth)
	}
	if loaded.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", loaded.Len())
	}
	if move, score, ok := loaded.Lookup(10); !ok || move != 3 || score != 7 {
		t.Fatalf("Lookup(10) = (%d, %d, %v), want (3, 7, true)", move, score, ok)
	}
	if move, score, ok := loaded.Lookup(20); !ok || move != 0 || score != -4 {
		t.Fatalf("Lookup(20) = (%d, %d, %v), want (0, -4, true)", move, score, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(os.TempDir(), "does-not-exist-c4-book.txt")); err == nil {
		t.Fatalf("expected error loading a missing file")
	}
}
