// Command c4 is the interactive shell: a thin line-oriented front end
// over the Search API, with 1-based columns at this boundary and
// 0-based columns everywhere below it.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/WannesMalfait/Connect-4/internal/bench"
	"github.com/WannesMalfait/Connect-4/internal/board"
	"github.com/WannesMalfait/Connect-4/internal/config"
	"github.com/WannesMalfait/Connect-4/internal/engine"
)

func main() {
	threads := flag.Int("threads", 0, "worker threads, 0 keeps the config default")
	ttSize := flag.Int("tt-size", 0, "transposition table capacity, 0 keeps the config default")
	bookPath := flag.String("book", "", "opening book file to load at startup")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *threads > 0 {
		cfg.Threads = *threads
	}
	if *ttSize > 0 {
		cfg.TTSize = *ttSize
	}
	store := config.NewStore()
	store.Update(cfg)

	coordinator := engine.New(store)
	if *bookPath != "" {
		if err := coordinator.LoadBook(*bookPath); err != nil {
			log.Fatalf("[c4] loading book %s: %v", *bookPath, err)
		}
		fmt.Printf("loaded opening book %s\n", *bookPath)
	}

	repl := &repl{
		coordinator: coordinator,
		position:    board.New(),
		out:         os.Stdout,
	}
	os.Exit(repl.run(os.Stdin))
}

type repl struct {
	coordinator *engine.Coordinator
	position    board.Position
	weak        bool
	out         io.Writer
}

func (r *repl) run(in io.Reader) int {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "quit", "exit":
			return 0
		case "help":
			r.help()
		case "position":
			r.position2(args)
		case "play", "move", "moves":
			r.play(args)
		case "solve":
			r.solve()
		case "analyze":
			r.analyze()
		case "bench":
			r.bench(args)
		case "toggle-weak":
			r.weak = !r.weak
			r.coordinator.SetWeak(r.weak)
			fmt.Fprintf(r.out, "weak mode: %v\n", r.weak)
		case "threads":
			r.threads(args)
		case "load-book":
			r.loadBook(args)
		case "generate-book":
			r.generateBook(args)
		default:
			fmt.Fprintf(r.out, "unknown command %q; try help\n", cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(r.out, "io error: %v\n", err)
		return 1
	}
	return 0
}

func (r *repl) help() {
	fmt.Fprint(r.out, `commands:
  help
  position <cols...>     replace the current position, 1-based columns
  play|move|moves <cols...>   play a sequence of 1-based columns
  solve                   print the exact score of the current position
  analyze                 print the score of every legal column
  bench <path|all> [limit]    run a benchmark file, or every file in benchmark_files/
  toggle-weak             toggle win/draw/loss-only scoring
  threads <n>             set the worker pool size
  load-book <path>        load an opening book
  generate-book <depth>   generate and save a book from the current position
  quit
`)
}

func (r *repl) position2(args []string) {
	cols, err := parseColumns(args)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	pos, err := board.FromMoves(cols)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.position = pos
	fmt.Fprintf(r.out, "position set, %d moves played\n", pos.MovesPlayed())
}

func (r *repl) play(args []string) {
	cols, err := parseColumns(args)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	pos, err := extendMoves(r.position, cols)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.position = pos
	fmt.Fprintf(r.out, "played, %d moves played\n", pos.MovesPlayed())
}

// extendMoves plays cols (1-based columns) on top of pos, rejecting a
// sequence that plays into an already-won position the same way
// board.FromMoves does when building from an empty board.
func extendMoves(pos board.Position, cols []int) (board.Position, error) {
	for i, col1 := range cols {
		col := col1 - 1
		if col < 0 || col >= board.Width {
			return pos, fmt.Errorf("%w: %d", board.ErrColumnRange, col1)
		}
		if !pos.CanPlay(col) {
			return pos, fmt.Errorf("%w: %d", board.ErrColumnFull, col1)
		}
		won := pos.IsWinningMove(col)
		next, err := pos.Play(col)
		if err != nil {
			return pos, err
		}
		if won && i != len(cols)-1 {
			return pos, fmt.Errorf("%w", board.ErrAlreadyWon)
		}
		pos = next
	}
	return pos, nil
}

func (r *repl) solve() {
	score, err := r.coordinator.Solve(r.position)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "%d\n", score)
}

func (r *repl) analyze() {
	scores, err := r.coordinator.Analyze(r.position)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	parts := make([]string, board.Width)
	for col := 0; col < board.Width; col++ {
		if scores[col] == nil {
			parts[col] = fmt.Sprintf("%d:illegal", col+1)
		} else {
			parts[col] = fmt.Sprintf("%d:%d", col+1, *scores[col])
		}
	}
	fmt.Fprintln(r.out, strings.Join(parts, " "))
}

// benchmarkFilesDir is where "bench all" looks for benchmark files,
// matching the original's fs::read_dir("./benchmark_files").
const benchmarkFilesDir = "benchmark_files"

func (r *repl) bench(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "usage: bench <path|all> [limit]")
		return
	}
	limit := -1
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		limit = n
	}
	if args[0] == "all" {
		r.benchAll(limit)
		return
	}
	r.benchFile(args[0], limit)
}

// benchAll runs every file in benchmarkFilesDir through benchFile, in
// directory order, the same way handle_bench iterates fs::read_dir
// when no single path is given.
func (r *repl) benchAll(limit int) {
	entries, err := os.ReadDir(benchmarkFilesDir)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(benchmarkFilesDir, entry.Name())
		fmt.Fprintf(r.out, "%s:\n", path)
		r.benchFile(path, limit)
	}
}

func (r *repl) benchFile(path string, limit int) {
	result, err := bench.Load(path)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	cases := result.Cases
	if limit >= 0 && limit < len(cases) {
		cases = cases[:limit]
	}
	report := bench.Run(cases, coordinatorSolver{r.coordinator}, r.weak)
	fmt.Fprintf(r.out, "%d cases, %d skipped, %d mismatches, avg %.0f nodes, %.1f kN/s\n",
		report.Cases, result.Skipped, len(report.Mismatches), report.AverageNodes(), report.KilonodesPerSecond())
	for _, m := range report.Mismatches {
		fmt.Fprintf(r.out, "  mismatch %s: want %d got %d\n", m.Case.MoveSequence, m.Case.ExpectedScore, m.Got)
	}
}

func (r *repl) threads(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: threads <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	r.coordinator.SetThreads(n)
	fmt.Fprintf(r.out, "threads: %d\n", n)
}

func (r *repl) loadBook(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: load-book <path>")
		return
	}
	if err := r.coordinator.LoadBook(args[0]); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "loaded %s\n", args[0])
}

func (r *repl) generateBook(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: generate-book <depth>")
		return
	}
	depth, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	out := fmt.Sprintf("book_depth_%d.txt", depth)
	if err := r.coordinator.GenerateBook(r.position, depth, out); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "wrote %s\n", out)
}

func parseColumns(args []string) ([]int, error) {
	cols := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bad column %q: %w", a, err)
		}
		cols = append(cols, n)
	}
	return cols, nil
}

// coordinatorSolver adapts engine.Coordinator to bench.Solver, mirroring
// the one in internal/httpapi.
type coordinatorSolver struct {
	c *engine.Coordinator
}

// Solve satisfies bench.Solver, which has no room for an error return.
// A cancelled solve reports a score that cannot match any recorded
// expectation, so bench.Run surfaces it as a mismatch rather than a
// silently fabricated pass.
func (c coordinatorSolver) Solve(pos board.Position) (int, uint64) {
	score, err := c.c.Solve(pos)
	if err != nil {
		log.Printf("[c4] bench solve cancelled: %v", err)
		return board.MinScore - 1, c.c.LastNodes()
	}
	return score, c.c.LastNodes()
}

func (c coordinatorSolver) Reset() { c.c.ResetTT() }
