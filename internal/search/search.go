// Package search implements the negamax alpha-beta searcher: the
// single-threaded tree walk over board.Position that the root
// coordinator (internal/engine) drives with a sequence of null-window
// calls. It consults a transposition table on every node and, near the
// root, an opening book.
package search

import (
	"sync/atomic"

	"github.com/WannesMalfait/Connect-4/internal/board"
	"github.com/WannesMalfait/Connect-4/internal/order"
	"github.com/WannesMalfait/Connect-4/internal/tt"
)

// Book is the subset of internal/book.Book that the searcher needs: a
// lookup by symmetric key returning the move played and the position's
// exact score. The searcher never writes to the book.
type Book interface {
	Lookup(key uint64) (move int, score int, ok bool)
}

// Stats accumulates counters for one Negamax call tree. The zero value
// is ready to use. Safe for a single searcher's own goroutine to read
// and write without synchronization; the coordinator only reads a
// Searcher's Stats after that searcher's goroutine has returned.
type Stats struct {
	Nodes  uint64
	TTHits uint64
}

// Searcher runs negamax over a shared transposition table and an
// optional shared opening book. Each worker goroutine in the
// coordinator owns its own Searcher (and hence its own Orderer and own
// cancellation checks), matching the "no per-node locking" rule in the
// concurrency model: only the TT and the book are shared.
type Searcher struct {
	tt        *tt.Table
	book      Book
	bookDepth int
	stop      *atomic.Bool
	stopped   bool

	Stats Stats
}

// New returns a Searcher over table, with no opening book and no
// cancellation flag (searches always run to completion).
func New(table *tt.Table) *Searcher {
	return &Searcher{tt: table}
}

// SetBook installs an opening book consulted for any position with
// MovesPlayed() <= depth. A nil book disables the book probe.
func (s *Searcher) SetBook(b Book, depth int) {
	s.book = b
	s.bookDepth = depth
}

// SetStopFlag installs the shared atomic cancellation flag the
// coordinator uses to abort this searcher's in-flight call. A nil flag
// (the default) means this searcher never cancels.
func (s *Searcher) SetStopFlag(stop *atomic.Bool) {
	s.stop = stop
}

// Stopped reports whether the most recent Negamax call observed the
// cancellation flag and returned early. The coordinator must check this
// and discard the returned score rather than trust it.
func (s *Searcher) Stopped() bool {
	return s.stopped
}

// columnOrder is the static center-first move preference used for
// every node: columns nearer the center tend to open more alignments
// and are explored first so alpha-beta cuts sooner.
var columnOrder = [board.Width]int{3, 2, 4, 1, 5, 0, 6}

// Negamax returns the exact negamax value of pos when it lies strictly
// inside the window (alpha, beta). Otherwise the result is a bound on
// the side the value lies: a result <= alpha is an upper bound and a
// result >= beta is a lower bound; cutoff scores are returned as found,
// not clamped to the window. pos must not already contain a four-in-a-row
// for the player who just moved (board.Position's own invariants, plus
// FromMoves / Play, guarantee this for every position the coordinator
// ever constructs).
func (s *Searcher) Negamax(pos board.Position, alpha, beta int) int {
	s.stopped = false
	return s.negamax(pos, alpha, beta)
}

func (s *Searcher) negamax(pos board.Position, alpha, beta int) int {
	s.Stats.Nodes++
	if s.stop != nil && s.Stats.Nodes%1024 == 0 && s.stop.Load() {
		s.stopped = true
		return 0
	}

	moves := pos.MovesPlayed()

	// Step 1: draw check.
	if moves == board.Width*board.Height {
		return 0
	}

	// Step 2: immediate win short-circuits before any TT probe.
	if pos.CanWinNext() {
		return (board.Width*board.Height + 1 - moves) / 2
	}

	// Step 3: non-losing moves; empty means every move loses.
	nonLosing := pos.NonLosingMoves()
	if nonLosing == 0 {
		return -(board.Width*board.Height - moves) / 2
	}

	// Step 4: with two plies left before the board fills, no alignment
	// is possible given the checks above, so it is a forced draw.
	if moves == board.Width*board.Height-2 {
		return 0
	}

	max := (board.Width*board.Height - 1 - moves) / 2
	minScore := -(board.Width*board.Height - 2 - moves) / 2

	key := pos.Key()
	if kind, score, ok := s.tt.Get(key); ok {
		s.Stats.TTHits++
		// An exact hit is simultaneously the tightest possible bound
		// of both kinds, so it tightens max and minScore together.
		if kind == tt.Lower || kind == tt.Exact {
			if score > minScore {
				minScore = score
			}
		}
		if kind == tt.Upper || kind == tt.Exact {
			if score < max {
				max = score
			}
		}
	}

	// Step 5: upper-bound tightening from remaining plies / TT.
	if beta > max {
		beta = max
		if alpha >= beta {
			return beta
		}
	}
	// Step 6: lower-bound tightening from remaining plies / TT.
	if alpha < minScore {
		alpha = minScore
		if alpha >= beta {
			return alpha
		}
	}

	// Step 7: opening-book probe, only within the book's covered depth.
	if s.book != nil && moves <= s.bookDepth {
		if _, score, ok := s.book.Lookup(key); ok {
			return score
		}
	}

	// Step 8: move generation & ordering.
	var orderer order.Orderer
	for _, col := range columnOrder {
		move := nonLosing & board.ColumnMask(col)
		if move == 0 {
			continue
		}
		orderer.Add(move, col, pos.MoveScore(move))
	}

	// Step 9: recurse in descending heuristic-score order.
	bestAlpha := alpha
	for {
		move, _, ok := orderer.Next()
		if !ok {
			break
		}
		child := pos.PlayBit(move)
		score := -s.negamax(child, -beta, -bestAlpha)
		if s.stopped {
			return 0
		}
		if score >= beta {
			s.tt.Put(key, tt.Lower, score)
			return score
		}
		if score > bestAlpha {
			bestAlpha = score
		}
	}

	// Step 10: no move reached beta; bestAlpha is an exact upper bound.
	s.tt.Put(key, tt.Upper, bestAlpha)
	return bestAlpha
}
