// Package api provides the HTTP surface over the engine.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coldasblues/the-grid/internal/action"
	"github.com/coldasblues/the-grid/internal/broadcast"
	"github.com/coldasblues/the-grid/internal/scheduler"
	"github.com/coldasblues/the-grid/internal/spatial"
	"github.com/coldasblues/the-grid/internal/world"
)

// Server serves world state and the admin command surface over HTTP.
type Server struct {
	Store    *world.Store
	Spatial  *spatial.Resolver
	Exec     *action.Executor
	Sched    *scheduler.Scheduler
	Hub      *broadcast.Hub // nil when broadcasting is disabled
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// DeliberateLimit caps /api/v1/deliberate calls per IP per hour.
	DeliberateLimit int
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	limit := s.DeliberateLimit
	if limit <= 0 {
		limit = 12
	}
	deliberateLimiter := NewRateLimiter(limit, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/residents", s.handleResidents)
	mux.HandleFunc("/api/v1/resident/", s.handleResidentDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/goals", s.handleGoals)
	mux.HandleFunc("/api/v1/map", s.handleMap)

	// Observer stream.
	if s.Hub != nil {
		mux.HandleFunc("/ws", s.Hub.Handler())
	}

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/spawn", s.adminOnly(s.handleSpawn))
	mux.HandleFunc("/api/v1/build", s.adminOnly(s.handleIntent(action.KindBuild)))
	mux.HandleFunc("/api/v1/gather", s.adminOnly(s.handleIntent(action.KindGather)))
	mux.HandleFunc("/api/v1/instruct", s.adminOnly(s.handleIntent(action.KindInstruct)))
	mux.HandleFunc("/api/v1/announce", s.adminOnly(s.handleIntent(action.KindAnnounce)))
	mux.HandleFunc("/api/v1/move", s.adminOnly(s.handleIntent(action.KindMoveResident)))
	mux.HandleFunc("/api/v1/deliberate", s.adminOnly(RateLimitMiddleware(deliberateLimiter, s.handleDeliberate)))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// adminOnly gates a handler behind POST + bearer-token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ── Public handlers ──────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Store.Snapshot()
	goals := s.Sched.Goals()
	active := 0
	for _, g := range goals {
		if g.Status == scheduler.GoalActive {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"population":   snap.Population,
		"world_time":   snap.WorldTime,
		"cycle":        s.Sched.Cycle(),
		"active_goals": active,
	})
}

func (s *Server) handleResidents(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		ID       string         `json:"id"`
		Name     string         `json:"name"`
		Position world.Position `json:"position"`
		GridRef  string         `json:"grid_ref"`
		State    string         `json:"state"`
	}
	residents := s.Store.Residents()
	out := make([]entry, 0, len(residents))
	for _, res := range residents {
		out = append(out, entry{
			ID:       res.ID,
			Name:     res.Name,
			Position: res.Position,
			GridRef:  s.Spatial.WorldToGridRef(res.Position.X, res.Position.Z),
			State:    string(res.State),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResidentDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/resident/")
	res := s.Store.Resident(id)
	if res == nil {
		http.Error(w, "resident not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resident": res,
		"grid_ref": s.Spatial.WorldToGridRef(res.Position.X, res.Position.Z),
		"memories": s.Store.RecentMemories(id, 20),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 50
	if q := r.URL.Query().Get("n"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 500 {
			n = v
		}
	}
	writeJSON(w, http.StatusOK, s.Store.RecentEvents(n))
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sched.Goals())
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	radius := 8
	if q := r.URL.Query().Get("radius"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 32 {
			radius = v
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.Spatial.RenderTextMap(world.Position{}, radius))
}

// ── Admin handlers ───────────────────────────────────────────────────

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	// Spawn is a marker intent; fulfillment goes through the scheduler's
	// profile generator.
	res := s.Exec.Execute(action.Intent{Kind: action.KindSpawn})
	if res.SpawnRequested {
		if err := s.Sched.SpawnResident(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleIntent decodes the request body as intent params and executes.
func (s *Server) handleIntent(kind action.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p action.Params
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil && err != io.EOF {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		res := s.Exec.Execute(action.Intent{Kind: kind, Params: p})
		status := http.StatusOK
		if !res.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, res)
	}
}

func (s *Server) handleDeliberate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	s.Sched.ForceDeliberation(ctx)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "goals": s.Sched.Goals()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="grid-snapshot.json.gz"`)
	if err := s.Store.ExportSnapshot(w); err != nil {
		slog.Error("snapshot export failed", "error", err)
	}
}
