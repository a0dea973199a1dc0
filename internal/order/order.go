// Package order implements the per-node move orderer: a fixed-capacity
// insertion-sorted array of candidate moves, consumed by the searcher
// in descending heuristic-score order.
package order

// capacity matches the board width: at most one candidate move per
// column.
const capacity = 7

type entry struct {
	move  uint64
	col   int
	score int
}

// Orderer holds up to capacity candidate moves sorted by descending
// score. The zero value is ready to use.
type Orderer struct {
	entries [capacity]entry
	size    int
}

// Reset empties the orderer for reuse at the next node, avoiding a
// fresh allocation per call.
func (o *Orderer) Reset() {
	o.size = 0
}

// Add inserts (move, col, score) in descending-score order. If col is
// already present its entry is replaced with the new score and
// repositioned; ties keep insertion order (a newly added move with a
// score equal to an existing one is returned by Next after it).
func (o *Orderer) Add(move uint64, col int, score int) {
	o.remove(col)
	pos := o.size
	for pos > 0 && o.entries[pos-1].score >= score {
		pos--
	}
	for i := o.size; i > pos; i-- {
		o.entries[i] = o.entries[i-1]
	}
	o.entries[pos] = entry{move: move, col: col, score: score}
	o.size++
}

func (o *Orderer) remove(col int) {
	for i := 0; i < o.size; i++ {
		if o.entries[i].col == col {
			copy(o.entries[i:o.size-1], o.entries[i+1:o.size])
			o.size--
			return
		}
	}
}

// Next pops the highest-scoring remaining move. ok is false once the
// orderer is empty.
func (o *Orderer) Next() (move uint64, col int, ok bool) {
	if o.size == 0 {
		return 0, 0, false
	}
	o.size--
	e := o.entries[o.size]
	return e.move, e.col, true
}

// Len reports how many candidates remain.
func (o *Orderer) Len() int { return o.size }
