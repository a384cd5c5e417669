package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coldasblues/the-grid/internal/action"
	"github.com/coldasblues/the-grid/internal/decide"
	"github.com/coldasblues/the-grid/internal/world"
)

// deliberationTick runs one higher-level planning pass: summarize the
// world, ask the decision source for a deliberation, merge the results,
// then drain the pending-action queue completely. A failed decision call
// is non-fatal and simply skips the merge.
func (s *Scheduler) deliberationTick(ctx context.Context) {
	dc := s.buildContext()

	if s.source != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.DecisionTimeout)
		d, err := s.source.RequestDeliberation(callCtx, dc)
		cancel()
		switch {
		case err == nil && d != nil:
			s.merge(d)
		case errors.Is(err, decide.ErrUnavailable):
			slog.Warn("deliberation unavailable, skipping cycle")
		case err != nil:
			slog.Warn("deliberation failed, skipping cycle", "error", err)
		}
	}

	s.drainActions()
}

// buildContext assembles the summary handed to the decision source.
func (s *Scheduler) buildContext() decide.DeliberationContext {
	snap := s.store.Snapshot()

	dc := decide.DeliberationContext{Population: snap.Population}
	for _, r := range snap.Residents {
		dc.Residents = append(dc.Residents, decide.ResidentRef{
			Name:    r.Name,
			GridRef: s.spatial.WorldToGridRef(r.Position.X, r.Position.Z),
			State:   string(r.State),
		})
	}
	dc.Map = s.spatial.RenderTextMap(world.Position{}, mapRadiusCells)
	dc.Conversation = conversationLines(snap.RecentEvents)

	s.delibMu.Lock()
	for _, g := range s.goals {
		if g.Status == GoalActive {
			dc.Goals = append(dc.Goals, g.Description)
		}
	}
	dc.Observations = append(dc.Observations, s.observations...)
	s.delibMu.Unlock()

	return dc
}

// conversationLines extracts recent speech and announcements from the
// event log for the deliberation prompt.
func conversationLines(events []world.Event) []string {
	var lines []string
	for _, ev := range events {
		switch ev.Type {
		case "speech":
			var p struct {
				Name   string `json:"name"`
				Speech string `json:"speech"`
			}
			if json.Unmarshal(ev.Payload, &p) == nil && p.Speech != "" {
				lines = append(lines, fmt.Sprintf("%s: %s", p.Name, p.Speech))
			}
		case "announcement":
			var p struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(ev.Payload, &p) == nil && p.Message != "" {
				lines = append(lines, fmt.Sprintf("[announcement] %s", p.Message))
			}
		}
	}
	return lines
}

// merge folds a deliberation result into scheduler state.
func (s *Scheduler) merge(d *decide.Deliberation) {
	s.delibMu.Lock()

	if d.NewGoal != "" {
		s.goals = append(s.goals, Goal{
			Description: d.NewGoal,
			CreatedAt:   time.Now(),
			Status:      GoalActive,
		})
		slog.Info("new goal", "goal", d.NewGoal)
	}
	if d.Observation != "" {
		s.observations = append(s.observations, d.Observation)
		if len(s.observations) > maxObservations {
			s.observations = s.observations[len(s.observations)-maxObservations:]
		}
	}
	s.pending = append(s.pending, d.Actions...)
	s.delibMu.Unlock()

	if ins := d.Instruction; ins != nil && ins.Text != "" {
		// Targets arrive as names; resolve to an id before queueing.
		if r := s.resolveByName(ins.Target); r != nil {
			s.QueueInstruction(r.ID, ins.Text)
		} else {
			slog.Warn("directive target not found", "target", ins.Target)
		}
	}
}

func (s *Scheduler) resolveByName(target string) *world.Resident {
	if r := s.store.Resident(target); r != nil {
		return r
	}
	for _, r := range s.store.Residents() {
		if r.Name == target {
			return r
		}
	}
	return nil
}

// drainActions dispatches every queued intent through the executor,
// logging each outcome. Dispatches take the turn mutex so they cannot
// interleave with a resident's in-flight turn.
func (s *Scheduler) drainActions() {
	for {
		s.delibMu.Lock()
		if len(s.pending) == 0 {
			s.delibMu.Unlock()
			return
		}
		in := s.pending[0]
		s.pending = s.pending[1:]
		s.delibMu.Unlock()

		s.dispatch(in)
	}
}

func (s *Scheduler) dispatch(in action.Intent) {
	s.turnMu.Lock()
	res := s.exec.Execute(in)
	s.turnMu.Unlock()

	if res.SpawnRequested {
		if err := s.SpawnResident(); err != nil {
			slog.Error("spawn fulfillment failed", "error", err)
			return
		}
	}
	if res.Success {
		slog.Info("action dispatched", "kind", in.Kind, "detail", res.Detail)
	} else {
		slog.Warn("action rejected", "kind", in.Kind, "detail", res.Detail)
	}
}
