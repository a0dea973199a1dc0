package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/WannesMalfait/Connect-4/internal/board"
	"github.com/WannesMalfait/Connect-4/internal/config"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TTSize = 1 << 16
	cfg.Threads = 1
	store := config.NewStore()
	store.Update(cfg)
	return New(store)
}

func mustSolve(t *testing.T, c *Coordinator, pos board.Position) int {
	t.Helper()
	got, err := c.Solve(pos)
	if err != nil {
		t.Fatalf("Solve: unexpected error %v", err)
	}
	return got
}

func TestSolveEmptyBoard(t *testing.T) {
	c := newTestCoordinator(t)
	if got := mustSolve(t, c, board.New()); got != 1 {
		t.Fatalf("Solve(empty) = %d, want 1", got)
	}
}

func TestSolveQuickWin(t *testing.T) {
	c := newTestCoordinator(t)
	pos, err := board.FromMoves([]int{4, 4, 5})
	if err != nil {
		t.Fatalf("FromMoves: %v", err)
	}
	if got := mustSolve(t, c, pos); got != 2 {
		t.Fatalf("Solve(4 4 5) = %d, want 2", got)
	}
}

func TestSolveImmediateWinShortcut(t *testing.T) {
	c := newTestCoordinator(t)
	pos, err := board.FromMoves([]int{4, 1, 4, 1, 4, 1})
	if err != nil {
		t.Fatalf("FromMoves: %v", err)
	}
	if !pos.CanWinNext() {
		t.Fatalf("expected an immediate win to be available")
	}
	got := mustSolve(t, c, pos)
	want := (board.Width*board.Height + 1 - pos.MovesPlayed()) / 2
	if got != want {
		t.Fatalf("Solve(immediate win) = %d, want %d", got, want)
	}
	if c.LastNodes() != 0 {
		t.Fatalf("LastNodes() = %d, want 0 (shortcut, no search ran)", c.LastNodes())
	}
}

func TestWeakSolveReturnsSign(t *testing.T) {
	c := newTestCoordinator(t)
	c.SetWeak(true)
	pos, err := board.FromMoves([]int{4, 4, 5})
	if err != nil {
		t.Fatalf("FromMoves: %v", err)
	}
	if got := mustSolve(t, c, pos); got != 1 {
		t.Fatalf("weak Solve(4 4 5) = %d, want 1", got)
	}
}

func TestAnalyzeMarksFullColumnIllegal(t *testing.T) {
	c := newTestCoordinator(t)
	cols := []int{4, 4, 4, 4, 4, 4}
	pos, err := board.FromMoves(cols)
	if err != nil {
		t.Fatalf("FromMoves: %v", err)
	}
	scores, err := c.Analyze(pos)
	if err != nil {
		t.Fatalf("Analyze: unexpected error %v", err)
	}
	if scores[3] != nil {
		t.Fatalf("scores[3] = %v, want nil (column 4 is full)", *scores[3])
	}
	for col := 0; col < board.Width; col++ {
		if col == 3 {
			continue
		}
		if scores[col] == nil {
			t.Fatalf("scores[%d] = nil, want a legal score", col)
		}
	}
}

func TestNarrowMidpointMovesToHalfBound(t *testing.T) {
	if med := narrowMidpoint(-18, 18); med != -9 {
		t.Fatalf("narrowMidpoint(-18, 18) = %d, want -9", med)
	}
	if med := narrowMidpoint(1, 18); med <= 0 {
		t.Fatalf("narrowMidpoint(1, 18) = %d, want a positive bias", med)
	}
	if med := narrowMidpoint(-18, -1); med >= 0 {
		t.Fatalf("narrowMidpoint(-18, -1) = %d, want a negative bias", med)
	}
}

func TestGenerateBookRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "book.txt")
	if err := c.GenerateBook(board.New(), 2, out); err != nil {
		t.Fatalf("GenerateBook: %v", err)
	}

	verify := newTestCoordinator(t)
	if err := verify.LoadBook(out); err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	if got := mustSolve(t, verify, board.New()); got != 1 {
		t.Fatalf("Solve via generated book = %d, want 1", got)
	}
}

func TestGenerateBookRefusesWhileLoaded(t *testing.T) {
	c := newTestCoordinator(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "book.txt")
	if err := c.GenerateBook(board.New(), 1, out); err != nil {
		t.Fatalf("GenerateBook: %v", err)
	}
	if err := c.LoadBook(out); err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	if err := c.GenerateBook(board.New(), 1, filepath.Join(dir, "other.txt")); err != ErrBookLoadedDuringGenerate {
		t.Fatalf("GenerateBook while loaded = %v, want ErrBookLoadedDuringGenerate", err)
	}
}

func TestThreadedSolveAgreesWithSingleThreaded(t *testing.T) {
	single := newTestCoordinator(t)
	pos, err := board.FromMoves([]int{4, 4, 5})
	if err != nil {
		t.Fatalf("FromMoves: %v", err)
	}
	want := mustSolve(t, single, pos)

	threaded := newTestCoordinator(t)
	threaded.SetThreads(2)
	if got := mustSolve(t, threaded, pos); got != want {
		t.Fatalf("threaded Solve = %d, want %d (single-threaded result)", got, want)
	}
}

// TestSearchWindowReportsCancelledWhenStopped pre-sets the stop flag
// before the single-threaded searchWindow path ever runs. Unlike
// Solve, searchWindow never resets c.stop itself in this branch, so
// the result is deterministic: the first Negamax call observes the
// flag (checked every 1024 nodes) well before a full empty-board
// search converges, and searchWindow must report the bail as
// cancelled rather than return its discarded 0 as a bound.
func TestSearchWindowReportsCancelledWhenStopped(t *testing.T) {
	c := newTestCoordinator(t)
	c.stop.Store(true)
	result, _, _, cancelled := c.searchWindow(board.New(), 0, 1)
	if !cancelled {
		t.Fatalf("searchWindow with stop set: cancelled = false, want true")
	}
	if result != 0 {
		t.Fatalf("searchWindow with stop set: result = %d, want the discarded 0 sentinel", result)
	}
}

// TestCancelDuringThreadedSearchWindowStopsBothHelpers mirrors how
// cmd/c4-server's shutdown path calls Cancel concurrently with an
// in-flight search: the threads>=2 path resets c.stop to false itself
// right before starting its two helper goroutines, so Cancel has to
// race that reset. A short delay before calling Cancel, against a
// position slow enough that neither helper finishes first, reliably
// lands it after the reset and before either helper converges, giving
// the "both helpers observed the stop flag" case searchWindow must
// treat as cancelled rather than fall back to a genuine result.
func TestCancelDuringThreadedSearchWindowStopsBothHelpers(t *testing.T) {
	c := newTestCoordinator(t)
	go func() {
		time.Sleep(time.Millisecond)
		c.Cancel()
	}()
	result, _, _, cancelled := c.searchWindow(board.New(), 0, 2)
	if !cancelled {
		t.Fatalf("searchWindow(threads=2) cancelled mid-search: cancelled = false, want true")
	}
	if result != 0 {
		t.Fatalf("searchWindow(threads=2) cancelled mid-search: result = %d, want the discarded 0 sentinel", result)
	}
}

// TestCancelDuringSolveReturnsErrCancelled drives the same race
// through the public Solve entry point: a concurrent Cancel must
// surface as ErrCancelled, never as a fabricated score.
func TestCancelDuringSolveReturnsErrCancelled(t *testing.T) {
	c := newTestCoordinator(t)
	go func() {
		time.Sleep(time.Millisecond)
		c.Cancel()
	}()
	got, err := c.Solve(board.New())
	if err != ErrCancelled {
		t.Fatalf("Solve cancelled mid-search = (%d, %v), want ErrCancelled", got, err)
	}
}

// TestCancelDuringAnalyzeReturnsErrCancelled checks the same discard
// contract on the Analyze path, which drives its own Solve calls per
// column.
func TestCancelDuringAnalyzeReturnsErrCancelled(t *testing.T) {
	c := newTestCoordinator(t)
	go func() {
		time.Sleep(time.Millisecond)
		c.Cancel()
	}()
	_, err := c.Analyze(board.New())
	if err != ErrCancelled {
		t.Fatalf("Analyze cancelled mid-search = %v, want ErrCancelled", err)
	}
}
