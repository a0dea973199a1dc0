// Package engine implements the root coordinator: the iterative
// null-window narrowing loop that converges on a position's exact
// score, the Search API surface (Solve/Analyze/SetThreads/SetWeak/
// LoadBook/GenerateBook), and the small worker pool that fans the
// search out across a couple of goroutines.
package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/WannesMalfait/Connect-4/internal/book"
	"github.com/WannesMalfait/Connect-4/internal/board"
	"github.com/WannesMalfait/Connect-4/internal/config"
	"github.com/WannesMalfait/Connect-4/internal/search"
	"github.com/WannesMalfait/Connect-4/internal/tt"
)

// ErrBookLoadedDuringGenerate is returned by GenerateBook when a book
// is already loaded. Callers must ClearBook first.
var ErrBookLoadedDuringGenerate = errors.New("engine: cannot generate a book while one is loaded")

// ErrCancelled is returned by Solve, Analyze, and GenerateBook when
// Cancel aborted the in-flight search before it produced a real
// result. Every negamax call that observes the stop flag returns a
// discardable 0 sentinel rather than a genuine bound; callers that
// see ErrCancelled must not treat the accompanying score as
// meaningful.
var ErrCancelled = errors.New("engine: search was cancelled")

// staticColumnOrder is the same center-first column preference as the
// searcher's own column order, used by the coordinator's root-level
// loops (GenerateBook's enumeration and best-move choice, and
// principalVariation) so their ordering matches the searcher's.
var staticColumnOrder = [board.Width]int{3, 2, 4, 1, 5, 0, 6}

// Progress describes one iteration of the null-window narrowing loop,
// emitted to any registered ProgressFunc.
type Progress struct {
	Alpha              int
	Beta               int
	Duration           time.Duration
	NodesSearched      uint64
	NodesPerSecond     uint64
	PrincipalVariation []int
}

// ProgressFunc receives one Progress event per narrowing iteration.
type ProgressFunc func(Progress)

// Coordinator is the Search API: it owns the shared transposition
// table and opening book, and drives one or more Searcher goroutines
// per call to Solve/Analyze/GenerateBook.
type Coordinator struct {
	tt        *tt.Table
	book      *book.Book
	cfg       *config.Store
	stop      atomic.Bool
	onProg    ProgressFunc
	lastNodes atomic.Uint64
}

// New returns a Coordinator with a fresh transposition table sized per
// cfg's TTSize, and threads/weak defaults taken from cfg.
func New(cfg *config.Store) *Coordinator {
	c := cfg.Get()
	return &Coordinator{
		tt:  tt.New(c.TTSize),
		cfg: cfg,
	}
}

// SetThreads updates the worker-pool size used by every subsequent
// Solve/Analyze call. Values <= 1 run single-threaded.
func (c *Coordinator) SetThreads(n int) {
	cfg := c.cfg.Get()
	cfg.Threads = n
	c.cfg.Update(cfg)
}

// SetWeak toggles weak-solve mode: Solve then returns only sign(score)
// (win/draw/loss) instead of the exact ply-accurate score.
func (c *Coordinator) SetWeak(weak bool) {
	cfg := c.cfg.Get()
	cfg.Weak = weak
	c.cfg.Update(cfg)
}

// OnProgress registers fn to receive a Progress event after every
// narrowing iteration. A nil fn (the default) disables callbacks.
func (c *Coordinator) OnProgress(fn ProgressFunc) {
	c.onProg = fn
}

// LoadBook reads an opening book from path and installs it.
func (c *Coordinator) LoadBook(path string) error {
	b, err := book.Load(path)
	if err != nil {
		return err
	}
	c.book = b
	cfg := c.cfg.Get()
	cfg.BookPath = path
	cfg.BookDepth = b.Depth
	c.cfg.Update(cfg)
	return nil
}

// ClearBook removes the loaded opening book, if any.
func (c *Coordinator) ClearBook() {
	c.book = nil
}

// ResetTT clears every entry in the shared transposition table. Call
// between independent solves that should not see each other's cached
// bounds (e.g. successive bench cases), per the data model's lifecycle
// note.
func (c *Coordinator) ResetTT() {
	c.tt.Clear()
}

// Cancel sets the cooperative stop flag, aborting any in-flight
// Solve/Analyze call across every worker goroutine. The flag is reset
// automatically at the start of the next call.
func (c *Coordinator) Cancel() {
	c.stop.Store(true)
}

func (c *Coordinator) newSearcher() *search.Searcher {
	s := search.New(c.tt)
	if c.book != nil {
		s.SetBook(c.book, c.book.Depth)
	}
	s.SetStopFlag(&c.stop)
	return s
}

// Solve returns the exact negamax score of pos: positive means the
// side to move wins, magnitude rewards faster wins, 0 is a draw. If
// Cancel aborts the search before it converges, Solve returns
// ErrCancelled and the returned score must be ignored.
func (c *Coordinator) Solve(pos board.Position) (int, error) {
	c.lastNodes.Store(0)
	score, found := 0, false
	if pos.CanWinNext() {
		score, found = (board.Width*board.Height+1-pos.MovesPlayed())/2, true
	} else if c.book != nil && pos.MovesPlayed() <= c.book.Depth {
		_, score, found = c.book.Lookup(pos.Key())
	}
	if !found {
		c.stop.Store(false)
		var err error
		if score, err = c.narrow(pos); err != nil {
			return score, err
		}
	}
	if c.cfg.Get().Weak {
		switch {
		case score > 0:
			score = 1
		case score < 0:
			score = -1
		}
	}
	return score, nil
}

// LastNodes returns the number of nodes explored by the most recent
// Solve call. Concurrent Solve calls on the same Coordinator race on
// this counter like any other shared mutable statistic; callers that
// need per-call node counts from concurrent solves should use separate
// Coordinators.
func (c *Coordinator) LastNodes() uint64 {
	return c.lastNodes.Load()
}

// Analyze returns the score of playing each column, from the
// perspective of the side to move before playing it. An illegal
// column (full, or out of range) has a nil entry. If Cancel aborts one
// of the underlying solves, Analyze returns ErrCancelled and the
// partial out must be ignored.
func (c *Coordinator) Analyze(pos board.Position) ([board.Width]*int, error) {
	var out [board.Width]*int
	for col := 0; col < board.Width; col++ {
		if !pos.CanPlay(col) {
			continue
		}
		var score int
		if pos.IsWinningMove(col) {
			score = (board.Width*board.Height + 1 - pos.MovesPlayed()) / 2
		} else {
			child, err := pos.Play(col)
			if err != nil {
				continue
			}
			s, err := c.Solve(child)
			if err != nil {
				return out, err
			}
			score = -s
		}
		v := score
		out[col] = &v
	}
	return out, nil
}

// narrow runs the iterative null-window loop and returns the converged
// score. If any iteration is cancelled mid-flight, narrow stops
// immediately and returns ErrCancelled without folding the iteration's
// discarded sentinel into min/max.
func (c *Coordinator) narrow(root board.Position) (int, error) {
	cfg := c.cfg.Get()
	moves := root.MovesPlayed()
	min := -(board.Width*board.Height - moves) / 2
	max := (board.Width*board.Height + 1 - moves) / 2
	if cfg.Weak {
		min, max = -1, 1
	}
	for min < max {
		med := narrowMidpoint(min, max)
		start := time.Now()
		r, queriedAlpha, nodes, cancelled := c.searchWindow(root, med, cfg.Threads)
		elapsed := time.Since(start)
		c.lastNodes.Add(nodes)
		if cancelled {
			return 0, ErrCancelled
		}
		if r <= queriedAlpha {
			max = r
		} else {
			min = r
		}
		if c.onProg != nil {
			c.onProg(Progress{
				Alpha:              med,
				Beta:               med + 1,
				Duration:           elapsed,
				NodesSearched:      nodes,
				NodesPerSecond:     nodesPerSecond(nodes, elapsed),
				PrincipalVariation: c.principalVariation(root),
			})
		}
	}
	return min, nil
}

// narrowMidpoint computes the next null-window alpha: the straight
// midpoint of [min, max], moved out to min/2 when it is <= 0 and
// min/2 lies below it, or to max/2 when it is >= 0 and max/2 lies
// above it. For the window [-18, 18] this probes -9 rather than 0.
func narrowMidpoint(min, max int) int {
	med := min + (max-min)/2
	if med <= 0 && min/2 < med {
		med = min / 2
	} else if med >= 0 && max/2 > med {
		med = max / 2
	}
	return med
}

func nodesPerSecond(nodes uint64, elapsed time.Duration) uint64 {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return uint64(int64(nodes) * 1000 / ms)
}

// searchWindow runs one null-window iteration at alpha=med. With
// threads>=2 a helper goroutine searches the adjacent window
// concurrently; whichever finishes first is used and the other is
// cancelled. It returns the null-window result (a bound, as described
// on search.Searcher.Negamax), the alpha that was
// actually queried to produce it (needed by the caller's <=/> update
// rule, since the helper's window differs from the principal one), the
// combined node count, and whether the result was cancelled. A
// cancelled result's score is the discardable 0 sentinel Negamax
// returns on a stop; callers must not treat it as a bound.
func (c *Coordinator) searchWindow(root board.Position, med, threads int) (result int, queriedAlpha int, nodes uint64, cancelled bool) {
	if threads < 2 {
		s := c.newSearcher()
		r := s.Negamax(root, med, med+1)
		if s.Stopped() {
			return 0, med, s.Stats.Nodes, true
		}
		return r, med, s.Stats.Nodes, false
	}

	type outcome struct {
		result       int
		queriedAlpha int
		nodes        uint64
		stopped      bool
	}
	c.stop.Store(false)
	out := make(chan outcome, 2)
	run := func(alpha int) {
		s := c.newSearcher()
		r := s.Negamax(root, alpha, alpha+1)
		out <- outcome{result: r, queriedAlpha: alpha, nodes: s.Stats.Nodes, stopped: s.Stopped()}
	}
	go run(med)
	go run(med + 1)

	first := <-out
	c.stop.Store(true)
	second := <-out
	c.stop.Store(false)
	total := first.nodes + second.nodes
	if first.stopped && second.stopped {
		// Both helpers observed an external Cancel mid-search: neither
		// result is a real bound.
		return 0, first.queriedAlpha, total, true
	}
	if first.stopped {
		// The first helper to report observed a cancellation set
		// from outside (c.stop); fall back to the other one, which
		// completed.
		return second.result, second.queriedAlpha, total, false
	}
	return first.result, first.queriedAlpha, total, false
}

// principalVariation walks the shared transposition table from root,
// at each step picking the first legal move whose child carries an
// Exact entry matching the parent's known score. It is a best-effort
// diagnostic, not a correctness contract: early in the narrowing loop
// the table may not hold enough Exact entries to walk all the way, and
// the walk simply stops short in that case. search.Searcher stores only
// Lower and Upper entries, so on a table filled by searches alone the
// walk stops at the root and the returned variation is empty.
func (c *Coordinator) principalVariation(root board.Position) []int {
	const maxLen = board.Width * board.Height
	pv := make([]int, 0, maxLen)
	pos := root
	for i := 0; i < maxLen; i++ {
		kind, score, ok := c.tt.Get(pos.Key())
		if !ok || kind != tt.Exact {
			break
		}
		found := false
		for _, col := range staticColumnOrder {
			if !pos.CanPlay(col) {
				continue
			}
			child, err := pos.Play(col)
			if err != nil {
				continue
			}
			if childKind, childScore, childOK := c.tt.Get(child.Key()); childOK {
				if childKind == tt.Exact && -childScore == score {
					pv = append(pv, col)
					pos = child
					found = true
					break
				}
			}
		}
		if !found {
			break
		}
	}
	return pv
}

// GenerateBook enumerates every position reachable from root that has
// at most depth moves played in total, counted from the empty board
// (deduplicated by symmetric key), solves each with Solve,
// and writes the result to outPath in the book file format. The book
// must not already be loaded: generating against a loaded book risks
// solving against stale book entries, so this refuses rather than
// produce a book that silently contradicts itself.
func (c *Coordinator) GenerateBook(root board.Position, depth int, outPath string) error {
	if c.book != nil {
		return ErrBookLoadedDuringGenerate
	}
	generated := book.New()
	generated.Depth = depth
	seen := make(map[uint64]bool)
	if err := c.generateRec(root, depth, generated, seen); err != nil {
		return err
	}
	if err := generated.Store(outPath); err != nil {
		return fmt.Errorf("engine: generate book: %w", err)
	}
	return nil
}

func (c *Coordinator) generateRec(pos board.Position, depth int, out *book.Book, seen map[uint64]bool) error {
	key := pos.Key()
	if seen[key] {
		return nil
	}
	seen[key] = true

	move, score, err := c.bestMoveAndScore(pos)
	if err != nil {
		return err
	}
	out.Put(key, move, score)

	if pos.MovesPlayed() >= depth {
		return nil
	}
	for _, col := range staticColumnOrder {
		if !pos.CanPlay(col) || pos.IsWinningMove(col) {
			// A winning move ends the game; there is nothing further
			// to add to the book down that branch.
			continue
		}
		child, err := pos.Play(col)
		if err != nil {
			return err
		}
		if err := c.generateRec(child, depth, out, seen); err != nil {
			return err
		}
	}
	return nil
}

// bestMoveAndScore solves pos by trying every legal move and picking
// the one with the highest score from the mover's perspective. The
// book is guaranteed nil here (GenerateBook refuses otherwise), so
// every Solve call below is a genuine search, never a book hit.
func (c *Coordinator) bestMoveAndScore(pos board.Position) (move int, score int, err error) {
	bestScore := board.MinScore - 1
	bestMove := 0
	for _, col := range staticColumnOrder {
		if !pos.CanPlay(col) {
			continue
		}
		var s int
		if pos.IsWinningMove(col) {
			s = (board.Width*board.Height + 1 - pos.MovesPlayed()) / 2
		} else {
			child, playErr := pos.Play(col)
			if playErr != nil {
				continue
			}
			childScore, solveErr := c.Solve(child)
			if solveErr != nil {
				return 0, 0, solveErr
			}
			s = -childScore
		}
		if s > bestScore {
			bestScore = s
			bestMove = col
		}
	}
	if bestScore == board.MinScore-1 {
		// No legal move: a full, undecided board is a draw.
		return 0, 0, nil
	}
	return bestMove, bestScore, nil
}
