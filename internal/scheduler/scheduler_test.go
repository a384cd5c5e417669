package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coldasblues/the-grid/internal/action"
	"github.com/coldasblues/the-grid/internal/broadcast"
	"github.com/coldasblues/the-grid/internal/decide"
	"github.com/coldasblues/the-grid/internal/spatial"
	"github.com/coldasblues/the-grid/internal/world"
)

// scriptedSource lets each test shape the decision source's behavior.
type scriptedSource struct {
	turn  func(ctx context.Context, req decide.TurnRequest) (*decide.Turn, error)
	delib func(ctx context.Context, dc decide.DeliberationContext) (*decide.Deliberation, error)
}

func (s *scriptedSource) RequestTurn(ctx context.Context, req decide.TurnRequest) (*decide.Turn, error) {
	if s.turn == nil {
		return &decide.Turn{Thought: "carrying on"}, nil
	}
	return s.turn(ctx, req)
}

func (s *scriptedSource) RequestDeliberation(ctx context.Context, dc decide.DeliberationContext) (*decide.Deliberation, error) {
	if s.delib == nil {
		return &decide.Deliberation{}, nil
	}
	return s.delib(ctx, dc)
}

func newTestScheduler(t *testing.T, source decide.Source, minPopulation int) (*Scheduler, *world.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.db")
	store, err := world.Open(path, world.StoreOptions{SpawnRadius: 40, Seed: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	res := spatial.NewResolver(store, 10)
	sink := broadcast.LogSink{}
	exec := &action.Executor{Store: store, Spatial: res, Sink: sink}

	cfg := Config{
		TurnInterval:         time.Hour, // tests step manually
		DeliberationInterval: time.Hour,
		DecisionTimeout:      time.Second,
		DrainGrace:           time.Second,
		PerceptionRadius:     30,
		MinPopulation:        minPopulation,
	}
	s := New(cfg, store, res, exec, source, decide.NewFallback(1), world.NewSpawner(1), sink)
	exec.Instructor = s
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, store
}

func TestInitSeedsMinimumPopulation(t *testing.T) {
	_, store := newTestScheduler(t, nil, 5)
	if got := len(store.Residents()); got != 5 {
		t.Fatalf("population = %d, want 5", got)
	}
	// Each spawn is logged.
	spawned := 0
	for _, ev := range store.RecentEvents(20) {
		if ev.Type == "resident_spawned" {
			spawned++
		}
	}
	if spawned != 5 {
		t.Fatalf("resident_spawned events = %d, want 5", spawned)
	}
}

func TestRoundRobinTurnOrder(t *testing.T) {
	var served []string
	src := &scriptedSource{
		turn: func(ctx context.Context, req decide.TurnRequest) (*decide.Turn, error) {
			served = append(served, req.ResidentID)
			return &decide.Turn{Thought: "noted"}, nil
		},
	}
	s, _ := newTestScheduler(t, src, 5)

	for i := 0; i < 10; i++ {
		s.StepWorld(context.Background())
	}
	if len(served) != 10 {
		t.Fatalf("served %d turns, want 10", len(served))
	}
	if s.Cycle() != 10 {
		t.Fatalf("cycle = %d, want 10", s.Cycle())
	}

	// Two full rotations: positions i and i+5 serve the same resident, and
	// the first five are all distinct.
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		if served[i] != served[i+5] {
			t.Fatalf("rotation broke at %d: %s then %s", i, served[i], served[i+5])
		}
		seen[served[i]] = true
	}
	if len(seen) != 5 {
		t.Fatalf("first rotation served %d distinct residents, want 5", len(seen))
	}
}

func TestFallbackOnSlowSource(t *testing.T) {
	src := &scriptedSource{
		turn: func(ctx context.Context, req decide.TurnRequest) (*decide.Turn, error) {
			<-ctx.Done()
			return nil, decide.ErrUnavailable
		},
	}
	s, store := newTestScheduler(t, src, 1)
	r := store.Residents()[0]

	start := time.Now()
	s.StepWorld(context.Background())
	elapsed := time.Since(start)

	if elapsed > 3*time.Second {
		t.Fatalf("turn took %v, want bounded by the decision timeout", elapsed)
	}
	// The fallback still produced a full turn: a thought was stored.
	if got := store.RecentMemories(r.ID, 1); len(got) == 0 {
		t.Fatal("no memory stored, fallback turn not applied")
	}
	if s.Cycle() != 1 {
		t.Fatalf("cycle = %d, want 1", s.Cycle())
	}
}

func TestTurnWithoutMovementKeepsPosition(t *testing.T) {
	src := &scriptedSource{
		turn: func(ctx context.Context, req decide.TurnRequest) (*decide.Turn, error) {
			return &decide.Turn{Thought: "standing still"}, nil
		},
	}
	s, store := newTestScheduler(t, src, 1)
	before := store.Residents()[0].Position

	s.StepWorld(context.Background())

	after := store.Residents()[0].Position
	if before != after {
		t.Fatalf("position drifted without movement: %+v -> %+v", before, after)
	}
}

func TestTurnMovementApplied(t *testing.T) {
	src := &scriptedSource{
		turn: func(ctx context.Context, req decide.TurnRequest) (*decide.Turn, error) {
			return &decide.Turn{
				Thought:  "heading east",
				Movement: &decide.Movement{Direction: "E", Distance: 2},
			}, nil
		},
	}
	s, store := newTestScheduler(t, src, 1)
	before := store.Residents()[0].Position

	s.StepWorld(context.Background())

	after := store.Residents()[0].Position
	if after.X != before.X+2 || after.Z != before.Z {
		t.Fatalf("moved %+v -> %+v, want +2 on x", before, after)
	}
	moved := false
	for _, ev := range store.RecentEvents(20) {
		if ev.Type == "resident_moved" {
			moved = true
		}
	}
	if !moved {
		t.Fatal("movement not logged")
	}
}

func TestResidentReturnsToIdle(t *testing.T) {
	s, store := newTestScheduler(t, nil, 1)
	r := store.Residents()[0]

	s.StepWorld(context.Background())

	if got := store.Resident(r.ID).State; got != world.StateIdle {
		t.Fatalf("state after turn = %q, want idle", got)
	}
}

func TestInstructionConsumedByNextTurn(t *testing.T) {
	var got []string
	src := &scriptedSource{
		turn: func(ctx context.Context, req decide.TurnRequest) (*decide.Turn, error) {
			got = append(got, req.Instruction)
			return &decide.Turn{Thought: "ok"}, nil
		},
	}
	s, store := newTestScheduler(t, src, 1)
	r := store.Residents()[0]

	s.QueueInstruction(r.ID, "dig a well")
	s.StepWorld(context.Background())
	s.StepWorld(context.Background())

	if len(got) != 2 || got[0] != "dig a well" || got[1] != "" {
		t.Fatalf("instructions seen = %q, want [\"dig a well\" \"\"]", got)
	}
}

func TestDeliberationMergeAndDrain(t *testing.T) {
	src := &scriptedSource{
		delib: func(ctx context.Context, dc decide.DeliberationContext) (*decide.Deliberation, error) {
			return &decide.Deliberation{
				Observation: "the settlement is quiet",
				NewGoal:     "raise a hall",
				Actions: []action.Intent{
					{Kind: action.KindAnnounce, Params: action.Params{Message: "work begins"}},
				},
			}, nil
		},
	}
	s, store := newTestScheduler(t, src, 2)

	s.ForceDeliberation(context.Background())

	goals := s.Goals()
	if len(goals) != 1 || goals[0].Description != "raise a hall" || goals[0].Status != GoalActive {
		t.Fatalf("goals = %+v", goals)
	}
	announced := false
	for _, ev := range store.RecentEvents(20) {
		if ev.Type == "announcement" {
			announced = true
		}
	}
	if !announced {
		t.Fatal("queued action not dispatched on drain")
	}
}

func TestDeliberationInstructionRoutedByName(t *testing.T) {
	s, store := newTestScheduler(t, nil, 1)
	target := store.Residents()[0]

	src := &scriptedSource{
		delib: func(ctx context.Context, dc decide.DeliberationContext) (*decide.Deliberation, error) {
			return &decide.Deliberation{
				Instruction: &decide.ResidentInstruction{Target: target.Name, Text: "scout north"},
			}, nil
		},
	}
	s.source = src

	s.ForceDeliberation(context.Background())

	if got := s.takeInstruction(target.ID); got != "scout north" {
		t.Fatalf("queued instruction = %q, want \"scout north\"", got)
	}
}

func TestSpawnDispatchGrowsPopulation(t *testing.T) {
	s, store := newTestScheduler(t, nil, 1)

	s.EnqueueAction(action.Intent{Kind: action.KindSpawn})
	s.ForceDeliberation(context.Background())

	if got := len(store.Residents()); got != 2 {
		t.Fatalf("population = %d, want 2 after spawn dispatch", got)
	}
}

// Spawns arrive from both the admin surface and deliberation dispatch, so
// SpawnResident must be safe to call from multiple goroutines.
func TestConcurrentSpawns(t *testing.T) {
	s, store := newTestScheduler(t, nil, 1)

	const spawns = 8
	var wg sync.WaitGroup
	errs := make(chan error, spawns)
	for i := 0; i < spawns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.SpawnResident()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("SpawnResident: %v", err)
		}
	}
	if got := len(store.Residents()); got != 1+spawns {
		t.Fatalf("population = %d, want %d", got, 1+spawns)
	}
}

func TestDeliberationContextShape(t *testing.T) {
	var captured decide.DeliberationContext
	src := &scriptedSource{
		delib: func(ctx context.Context, dc decide.DeliberationContext) (*decide.Deliberation, error) {
			captured = dc
			return &decide.Deliberation{}, nil
		},
	}
	s, store := newTestScheduler(t, src, 3)
	store.LogEvent("announcement", map[string]string{"message": "welcome"})

	s.ForceDeliberation(context.Background())

	if captured.Population != 3 || len(captured.Residents) != 3 {
		t.Fatalf("context population = %d residents = %d, want 3/3", captured.Population, len(captured.Residents))
	}
	if captured.Map == "" {
		t.Fatal("context carries no map")
	}
	found := false
	for _, line := range captured.Conversation {
		if strings.Contains(line, "welcome") {
			found = true
		}
	}
	if !found {
		t.Fatalf("conversation %v missing the announcement", captured.Conversation)
	}
}

func TestCompressThought(t *testing.T) {
	if got := compressThought("  a\n b\t c  "); got != "a b c" {
		t.Fatalf("whitespace collapse = %q", got)
	}
	long := strings.Repeat("x", 500)
	got := compressThought(long)
	if runes := []rune(got); len(runes) != thoughtMaxRunes {
		t.Fatalf("truncated length = %d, want %d", len(runes), thoughtMaxRunes)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatal("truncation marker missing")
	}
}
