// Package scheduler drives the world forward on two independent cadences:
// a per-resident world tick and a slower deliberation cycle. All
// orchestration state — goals, the pending-action queue, per-resident
// instruction queues — lives on one Scheduler instance.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coldasblues/the-grid/internal/action"
	"github.com/coldasblues/the-grid/internal/broadcast"
	"github.com/coldasblues/the-grid/internal/decide"
	"github.com/coldasblues/the-grid/internal/spatial"
	"github.com/coldasblues/the-grid/internal/world"
)

// GoalStatus is the lifecycle of a deliberation goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalDone      GoalStatus = "done"
	GoalAbandoned GoalStatus = "abandoned"
)

// Goal is a standing objective produced by deliberation.
type Goal struct {
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	Status      GoalStatus `json:"status"`
}

const (
	maxObservations = 20
	mapRadiusCells  = 6
	memoryRecall    = 10
	thoughtMaxRunes = 160
)

// Config controls scheduler cadence and world parameters.
type Config struct {
	TurnInterval         time.Duration
	DeliberationInterval time.Duration
	DecisionTimeout      time.Duration
	DrainGrace           time.Duration
	PerceptionRadius     float64
	MinPopulation        int
}

// Scheduler owns the two periodic tasks and all deliberation state.
type Scheduler struct {
	cfg      Config
	store    *world.Store
	spatial  *spatial.Resolver
	exec     *action.Executor
	source   decide.Source // may be nil: every turn then uses the fallback
	fallback *decide.Fallback
	spawner  *world.Spawner
	sink     broadcast.Sink

	// turnMu serializes a resident's turn (perception through applied
	// mutation) against action-queue dispatches.
	turnMu sync.Mutex
	cycle  uint64

	// delibMu guards the deliberation state below.
	delibMu      sync.Mutex
	goals        []Goal
	observations []string
	pending      []action.Intent
	instructions map[string][]string

	worldTask *Task
	delibTask *Task
}

// New wires a scheduler. source may be nil, in which case every turn is
// produced by the deterministic fallback policy.
func New(cfg Config, store *world.Store, res *spatial.Resolver, exec *action.Executor,
	source decide.Source, fallback *decide.Fallback, spawner *world.Spawner, sink broadcast.Sink) *Scheduler {

	s := &Scheduler{
		cfg:          cfg,
		store:        store,
		spatial:      res,
		exec:         exec,
		source:       source,
		fallback:     fallback,
		spawner:      spawner,
		sink:         sink,
		instructions: make(map[string][]string),
	}
	s.worldTask = NewTask("world", cfg.TurnInterval, s.worldTick)
	s.delibTask = NewTask("deliberation", cfg.DeliberationInterval, s.deliberationTick)
	return s
}

// Init ensures the world holds the minimum population before ticking
// starts.
func (s *Scheduler) Init() error {
	current := len(s.store.Residents())
	for i := current; i < s.cfg.MinPopulation; i++ {
		if err := s.SpawnResident(); err != nil {
			return err
		}
	}
	return nil
}

// SpawnResident fulfills a spawn through the profile generator.
func (s *Scheduler) SpawnResident() error {
	gen := s.spawner.NewProfile()
	r, err := s.store.AddResident(gen.Name, gen.Profile)
	if err != nil {
		return err
	}
	payload := map[string]any{"resident_id": r.ID, "name": r.Name, "position": r.Position}
	if err := s.store.LogEvent("resident_spawned", payload); err != nil {
		return err
	}
	s.sink.Emit("resident_spawned", payload)
	slog.Info("resident spawned", "id", r.ID, "name", r.Name)
	return nil
}

// Start arms both periodic tasks.
func (s *Scheduler) Start() {
	s.worldTask.Start()
	s.delibTask.Start()
}

// Stop stops arming new cycles and waits for in-flight work up to the
// drain grace period.
func (s *Scheduler) Stop() {
	s.worldTask.Stop()
	s.delibTask.Stop()
	s.worldTask.Drain(s.cfg.DrainGrace)
	s.delibTask.Drain(s.cfg.DrainGrace)
}

// StepWorld runs one world tick synchronously. Exposed for tests.
func (s *Scheduler) StepWorld(ctx context.Context) {
	s.worldTask.Step(ctx)
}

// ForceDeliberation runs one deliberation cycle synchronously. Used by the
// admin surface and tests.
func (s *Scheduler) ForceDeliberation(ctx context.Context) {
	s.delibTask.Step(ctx)
}

// Cycle returns the world tick counter.
func (s *Scheduler) Cycle() uint64 {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	return s.cycle
}

// Goals returns a copy of the deliberation goals.
func (s *Scheduler) Goals() []Goal {
	s.delibMu.Lock()
	defer s.delibMu.Unlock()
	out := make([]Goal, len(s.goals))
	copy(out, s.goals)
	return out
}

// QueueInstruction appends a directive to a resident's instruction queue.
// The directive is merged into the resident's next perception.
func (s *Scheduler) QueueInstruction(residentID, text string) {
	if text == "" {
		return
	}
	s.delibMu.Lock()
	defer s.delibMu.Unlock()
	s.instructions[residentID] = append(s.instructions[residentID], text)
}

// EnqueueAction adds an intent to the pending-action queue. It is
// dispatched on the next deliberation drain.
func (s *Scheduler) EnqueueAction(in action.Intent) {
	s.delibMu.Lock()
	defer s.delibMu.Unlock()
	s.pending = append(s.pending, in)
}

func (s *Scheduler) takeInstruction(residentID string) string {
	s.delibMu.Lock()
	defer s.delibMu.Unlock()
	q := s.instructions[residentID]
	if len(q) == 0 {
		return ""
	}
	head := q[0]
	if len(q) == 1 {
		delete(s.instructions, residentID)
	} else {
		s.instructions[residentID] = q[1:]
	}
	return head
}

// ── World tick ───────────────────────────────────────────────────────

// worldTick advances exactly one resident's turn, selected round-robin by
// the cycle counter. The counter only advances after the turn fully
// completes, so turns are never interleaved.
func (s *Scheduler) worldTick(ctx context.Context) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	residents := s.store.Residents()
	if len(residents) == 0 {
		return
	}
	r := residents[int(s.cycle)%len(residents)]

	s.sink.Emit("turn_start", map[string]any{"resident_id": r.ID, "name": r.Name, "cycle": s.cycle})
	if err := s.runTurn(ctx, r); err != nil {
		// Persistence failure: skip the cycle, the timer stays armed.
		slog.Error("turn failed", "resident", r.ID, "cycle", s.cycle, "error", err)
	}
	s.sink.Emit("turn_end", map[string]any{"resident_id": r.ID, "name": r.Name, "cycle": s.cycle})

	s.cycle++
}

func (s *Scheduler) runTurn(ctx context.Context, r *world.Resident) error {
	if err := s.store.SetState(r.ID, world.StateActing); err != nil {
		return err
	}
	// The resident returns to idle even when applying the turn fails.
	defer func() {
		if err := s.store.SetState(r.ID, world.StateIdle); err != nil {
			slog.Error("failed to reset resident state", "resident", r.ID, "error", err)
		}
	}()

	per := s.store.Perception(r.ID, s.cfg.PerceptionRadius)
	if per == nil {
		return nil // removed mid-cycle
	}

	req := decide.TurnRequest{
		ResidentID:  r.ID,
		Name:        r.Name,
		Profile:     r.Profile,
		Memories:    s.store.RecentMemories(r.ID, memoryRecall),
		Perception:  per,
		Instruction: s.takeInstruction(r.ID),
	}

	turn := s.requestTurn(ctx, req)
	return s.applyTurn(r, turn)
}

// requestTurn asks the decision source for a turn, degrading to the
// deterministic fallback on timeout, failure, or a rejected payload. The
// resident is never left without a turn outcome.
func (s *Scheduler) requestTurn(ctx context.Context, req decide.TurnRequest) *decide.Turn {
	if s.source != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.DecisionTimeout)
		turn, err := s.source.RequestTurn(callCtx, req)
		cancel()
		if err == nil && turn != nil {
			return turn
		}
		if err != nil && !errors.Is(err, decide.ErrUnavailable) {
			slog.Warn("decision source returned unexpected error", "error", err)
		} else {
			slog.Warn("decision source unavailable, using fallback", "resident", req.ResidentID)
		}
	}
	return s.fallback.Turn(req, s.cycle)
}

// applyTurn commits a turn's effects: movement, speech, action, thought.
// Each mutating step logs its event before the broadcast goes out.
func (s *Scheduler) applyTurn(r *world.Resident, turn *decide.Turn) error {
	if m := turn.Movement; m != nil {
		dir := world.Direction(strings.ToUpper(m.Direction))
		pos, err := s.store.Move(r.ID, dir, m.Distance)
		if err != nil {
			return err
		}
		if pos != nil {
			payload := map[string]any{
				"resident_id": r.ID, "name": r.Name,
				"direction": dir, "distance": m.Distance, "position": *pos,
			}
			if err := s.store.LogEvent("resident_moved", payload); err != nil {
				return err
			}
			s.sink.Emit("resident_moved", payload)
		}
	}

	if turn.Speech != "" {
		payload := map[string]any{"resident_id": r.ID, "name": r.Name, "speech": turn.Speech}
		if err := s.store.LogEvent("speech", payload); err != nil {
			return err
		}
		s.sink.Emit("speech", payload)
	}

	if turn.Action != "" {
		payload := map[string]any{"resident_id": r.ID, "name": r.Name, "action": turn.Action}
		if err := s.store.LogEvent("action", payload); err != nil {
			return err
		}
		s.sink.Emit("action", payload)
	}

	if turn.Thought != "" {
		if err := s.store.AddMemory(r.ID, compressThought(turn.Thought), 0.5); err != nil {
			return err
		}
	}
	return nil
}

// compressThought collapses whitespace and truncates to a bounded length
// before the thought is stored as a memory.
func compressThought(thought string) string {
	compact := strings.Join(strings.Fields(thought), " ")
	runes := []rune(compact)
	if len(runes) <= thoughtMaxRunes {
		return compact
	}
	return string(runes[:thoughtMaxRunes-1]) + "…"
}
