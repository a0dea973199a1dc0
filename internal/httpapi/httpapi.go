// Package httpapi exposes the Search API (solve/analyze/bench/book
// generation) over HTTP, with search progress streamed to connected
// WebSocket clients: a thin facade over internal/engine.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/WannesMalfait/Connect-4/internal/bench"
	"github.com/WannesMalfait/Connect-4/internal/board"
	"github.com/WannesMalfait/Connect-4/internal/engine"
)

// Server wraps a chi router over a single engine.Coordinator, plus a
// Hub that fans out progress events to /ws/progress subscribers.
type Server struct {
	Router      chi.Router
	coordinator *engine.Coordinator
	hub         *Hub
}

// New builds a Server around coordinator. It registers coordinator's
// progress callback with the server's Hub, so every narrowing
// iteration is published to connected WebSocket clients as it happens.
func New(coordinator *engine.Coordinator) *Server {
	s := &Server{
		coordinator: coordinator,
		hub:         NewHub(),
	}
	coordinator.OnProgress(func(p engine.Progress) {
		s.hub.Publish(p)
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/status", s.handleStatus)
	r.Post("/api/solve", s.handleSolve)
	r.Post("/api/analyze", s.handleAnalyze)
	r.Post("/api/bench", s.handleBench)
	r.Post("/api/book/generate", s.handleGenerateBook)
	r.Get("/ws/progress", s.handleProgressWS)

	s.Router = r
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type moveRequest struct {
	Moves string `json:"moves"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pos, err := board.FromDigits(req.Moves)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start := time.Now()
	score, err := s.coordinator.Solve(pos)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"score":       score,
		"nodes":       s.coordinator.LastNodes(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pos, err := board.FromDigits(req.Moves)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	scores, err := s.coordinator.Analyze(pos)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	out := make([]*int, board.Width)
	copy(out, scores[:])
	writeJSON(w, http.StatusOK, map[string]any{"scores": out})
}

type benchRequest struct {
	Path string `json:"path"`
	Weak bool   `json:"weak"`
}

func (s *Server) handleBench(w http.ResponseWriter, r *http.Request) {
	var req benchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := bench.Load(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report := bench.Run(result.Cases, coordinatorSolver{s.coordinator}, req.Weak)
	writeJSON(w, http.StatusOK, map[string]any{
		"cases":         report.Cases,
		"skipped":       result.Skipped,
		"mismatches":    len(report.Mismatches),
		"total_nodes":   report.TotalNodes,
		"total_time_ms": report.TotalTime.Milliseconds(),
		"avg_nodes":     report.AverageNodes(),
		"knps":          report.KilonodesPerSecond(),
	})
}

type generateBookRequest struct {
	Depth int    `json:"depth"`
	Path  string `json:"path"`
}

func (s *Server) handleGenerateBook(w http.ResponseWriter, r *http.Request) {
	var req generateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	go func() {
		if err := s.coordinator.GenerateBook(board.New(), req.Depth, req.Path); err != nil {
			log.Printf("[httpapi] generate-book failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

var wsUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{send: make(chan []byte, 16)}
	s.hub.Register(client)
	go func() {
		defer conn.Close()
		writeWithHeartbeat(conn, client.send)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Unregister(client)
			return
		}
	}
}

// coordinatorSolver adapts engine.Coordinator to bench.Solver.
type coordinatorSolver struct {
	c *engine.Coordinator
}

// Solve satisfies bench.Solver, which has no room for an error return.
// A cancelled solve only happens if something calls Cancel mid-run,
// which a bench pass never does on its own; if it ever does race with
// one, the mismatch it reports against the expected score is the
// correct signal rather than a silently fabricated match.
func (c coordinatorSolver) Solve(pos board.Position) (int, uint64) {
	score, err := c.c.Solve(pos)
	if err != nil {
		log.Printf("[httpapi] bench solve cancelled: %v", err)
		return board.MinScore - 1, c.c.LastNodes()
	}
	return score, c.c.LastNodes()
}

func (c coordinatorSolver) Reset() { c.c.ResetTT() }

// Hub fans out progress events to every connected WebSocket client: a
// registration map guarded by a mutex plus a single broadcast channel
// drained by run.
type Hub struct {
	mu        sync.Mutex
	clients   map[*Client]struct{}
	broadcast chan engine.Progress
}

// Client is one registered WebSocket connection's outgoing queue.
type Client struct {
	send chan []byte
}

type progressMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewHub returns a Hub whose fan-out goroutine is already running.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan engine.Progress, 32),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for p := range h.broadcast {
		payload, err := json.Marshal(progressPayload{
			Alpha:              p.Alpha,
			Beta:               p.Beta,
			DurationMs:         p.Duration.Milliseconds(),
			NodesSearched:      p.NodesSearched,
			NodesPerSecond:     p.NodesPerSecond,
			PrincipalVariation: p.PrincipalVariation,
		})
		if err != nil {
			continue
		}
		msg := progressMessage{Type: "progress", Payload: payload}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		h.mu.Lock()
		for c := range h.clients {
			select {
			case c.send <- data:
			default:
			}
		}
		h.mu.Unlock()
	}
}

type progressPayload struct {
	Alpha              int    `json:"alpha"`
	Beta               int    `json:"beta"`
	DurationMs         int64  `json:"duration_ms"`
	NodesSearched      uint64 `json:"nodes_searched"`
	NodesPerSecond     uint64 `json:"nodes_per_second"`
	PrincipalVariation []int  `json:"principal_variation"`
}

// Publish enqueues a progress event for the fan-out goroutine.
func (h *Hub) Publish(p engine.Progress) {
	select {
	case h.broadcast <- p:
	default:
	}
}

// Register adds c to the set of clients that receive future Publish
// events.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes and closes c's send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

const idlePingInterval = 30 * time.Second

// writeWithHeartbeat pumps messages from send to conn, and writes an
// idle ping if nothing has been sent for idlePingInterval.
func writeWithHeartbeat(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(idlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	ping, _ := json.Marshal(progressMessage{Type: "ping"})
	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < idlePingInterval {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
			lastWrite = time.Now()
		}
	}
}
