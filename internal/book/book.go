// Package book implements the opening book: a persistent, immutable
// mapping from a position's symmetric key to its best move and exact
// score, loaded at startup and consulted near the root of every search.
//
// The on-disk format is UTF-8 text, one entry per line: "<key> <move>
// <score>", decimal integers separated by single spaces. Blank lines
// and lines starting with '#' are ignored (including the "# depth n"
// comment Generate writes so a re-loaded book remembers its own
// coverage without the reader needing to understand the comment).
package book

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/WannesMalfait/Connect-4/internal/board"
)

// ErrMalformedLine is wrapped with line content/number context and
// returned by Load for any non-blank, non-comment line that does not
// parse as "<key> <move> <score>".
var ErrMalformedLine = errors.New("book: malformed line")

type entry struct {
	move  int
	score int
}

// Book is an immutable-after-load map from symmetric key to (best
// move, exact score). The zero value is an empty book with Depth 0.
type Book struct {
	entries map[uint64]entry
	Depth   int
}

// New returns an empty, writable book. Used by Generate to accumulate
// entries before they are ever persisted.
func New() *Book {
	return &Book{entries: make(map[uint64]entry)}
}

// Lookup returns the best move and exact score recorded for key, and
// whether an entry exists.
func (b *Book) Lookup(key uint64) (move int, score int, ok bool) {
	if b == nil || b.entries == nil {
		return 0, 0, false
	}
	e, ok := b.entries[key]
	if !ok {
		return 0, 0, false
	}
	return e.move, e.score, true
}

// Put records (or overwrites) the entry for key. Generate is the only
// caller; a loaded book is never mutated afterward.
func (b *Book) Put(key uint64, move, score int) {
	b.entries[key] = entry{move: move, score: score}
}

// Len returns the number of entries in the book.
func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Load parses a book file at path. A malformed non-comment line is a
// fatal error: the whole load fails rather than silently dropping
// entries, since a partially loaded book could return wrong scores.
func Load(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("book: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Book, error) {
	b := New()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	sawDepthComment := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if depth, ok := parseDepthComment(line); ok {
				b.Depth = depth
				sawDepthComment = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d: expected 3 fields, got %d", ErrMalformedLine, lineNo, len(fields))
		}
		key, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad key %q: %v", ErrMalformedLine, lineNo, fields[0], err)
		}
		move, err := strconv.Atoi(fields[1])
		if err != nil || move < 0 || move >= board.Width {
			return nil, fmt.Errorf("%w: line %d: bad move %q", ErrMalformedLine, lineNo, fields[1])
		}
		score, err := strconv.Atoi(fields[2])
		if err != nil || score < board.MinScore || score > board.MaxScore {
			return nil, fmt.Errorf("%w: line %d: bad score %q", ErrMalformedLine, lineNo, fields[2])
		}
		b.Put(key, move, score)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("book: read: %w", err)
	}
	if !sawDepthComment {
		// No depth hint: a position's symmetric key does not cheaply
		// invert to moves_played, so fall back to treating the book as
		// covering every depth. A miss past the book's real coverage
		// just costs one wasted lookup, never an incorrect score.
		b.Depth = board.Width * board.Height
	}
	return b, nil
}

func parseDepthComment(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "#" || fields[1] != "depth" {
		return 0, false
	}
	depth, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, false
	}
	return depth, true
}

// Store writes b to path in the load format, sorted by key so the
// output is deterministic across runs with the same entry set.
func (b *Book) Store(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("book: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# depth %d\n", b.Depth)
	keys := make([]uint64, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		e := b.entries[k]
		if _, err := fmt.Fprintf(w, "%d %d %d\n", k, e.move, e.score); err != nil {
			return fmt.Errorf("book: write %s: %w", path, err)
		}
	}
	return w.Flush()
}
