package action

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coldasblues/the-grid/internal/broadcast"
	"github.com/coldasblues/the-grid/internal/spatial"
	"github.com/coldasblues/the-grid/internal/world"
)

// gatherStep caps how far one gather call moves each resident. A single
// call never completes a long-distance gather; callers re-issue it.
const gatherStep = 5.0

// searchMaxCells bounds the spiral search when build resolves a "near"
// target.
const searchMaxCells = 15

// Instructor receives directives targeted at a specific resident. The
// scheduler satisfies this with its per-resident instruction queues.
type Instructor interface {
	QueueInstruction(residentID, text string)
}

// Executor applies intents by combining resolver output with store
// mutation, then notifying the broadcast sink.
type Executor struct {
	Store   *world.Store
	Spatial *spatial.Resolver
	Sink    broadcast.Sink

	// Optional: directives are queued here in addition to being logged.
	Instructor Instructor
}

// Execute validates and applies one intent.
func (e *Executor) Execute(intent Intent) Result {
	switch intent.Kind {
	case KindBuild:
		return e.build(intent.Params)
	case KindInstruct:
		return e.instruct(intent.Params)
	case KindGather:
		return e.gather(intent.Params)
	case KindAnnounce:
		return e.announce(intent.Params)
	case KindSpawn:
		return Result{Success: true, SpawnRequested: true}
	case KindMoveResident:
		return e.moveResident(intent.Params)
	}
	return fail(fmt.Errorf("%w: %q", ErrUnknownKind, intent.Kind))
}

func (e *Executor) build(p Params) Result {
	tmpl, ok := world.StructureTemplates[p.StructureType]
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrUnknownStructureType, p.StructureType))
	}

	explicit := p.X != nil && p.Z != nil
	target, err := e.resolveTarget(p)
	if err != nil {
		return fail(err)
	}

	var pos world.Position
	var ref string
	if explicit {
		// The caller asked for this exact point; validate rather than search.
		if !e.Spatial.ValidatePlacement(target, tmpl.Size) {
			return fail(fmt.Errorf("%w: %s at (%.1f, %.1f)", ErrPlacementOccupied, p.StructureType, target.X, target.Z))
		}
		pos, ref = target, e.Spatial.WorldToGridRef(target.X, target.Z)
	} else {
		found := e.Spatial.FindEmptySpace(spatial.SearchSpec{
			Near:        target,
			Size:        tmpl.Size,
			MinDistance: 0,
			MaxDistance: searchMaxCells * e.Spatial.CellSize(),
		})
		if found == nil {
			return fail(fmt.Errorf("%w: %s near (%.1f, %.1f)", ErrNoSpaceFound, p.StructureType, target.X, target.Z))
		}
		pos, ref = found.Position, found.GridRef
	}

	params, _ := json.Marshal(map[string]any{"effect": tmpl.Effect, "size": tmpl.Size})
	id, err := e.Store.AddStructure(p.StructureType, pos.X, pos.Y, pos.Z, params, p.Target)
	if err != nil {
		return fail(err)
	}

	payload := map[string]any{
		"structure_id": id,
		"type":         p.StructureType,
		"position":     pos,
		"grid_ref":     ref,
	}
	if err := e.Store.LogEvent("structure_built", payload); err != nil {
		return fail(err)
	}
	e.Sink.Emit("structure_built", payload)

	return Result{Success: true, StructureID: id, Position: &pos, GridRef: ref,
		Detail: fmt.Sprintf("built %s at %s", p.StructureType, ref)}
}

func (e *Executor) instruct(p Params) Result {
	r := e.resolveResident(p.Target)
	if r == nil {
		return fail(fmt.Errorf("%w: %q", ErrEntityNotFound, p.Target))
	}

	if e.Instructor != nil {
		e.Instructor.QueueInstruction(r.ID, p.Message)
	}
	payload := map[string]any{"resident_id": r.ID, "name": r.Name, "directive": p.Message}
	if err := e.Store.LogEvent("instruction", payload); err != nil {
		return fail(err)
	}
	e.Sink.Emit("instruction", payload)

	return Result{Success: true, Detail: fmt.Sprintf("instructed %s", r.Name)}
}

func (e *Executor) gather(p Params) Result {
	target, err := e.resolveTarget(p)
	if err != nil {
		return fail(err)
	}

	type moveRecord struct {
		Resident *world.Resident
		Position world.Position
	}
	var moved []moveRecord
	for _, r := range e.Store.Residents() {
		est := e.Spatial.EstimatePath(r.Position, target)
		step := est.Distance
		if step > gatherStep {
			step = gatherStep
		}
		if step <= 0 {
			continue
		}
		pos, err := e.Store.Move(r.ID, est.Direction, step)
		if err != nil || pos == nil {
			slog.Warn("gather move skipped", "resident", r.ID, "error", err)
			continue
		}
		moved = append(moved, moveRecord{Resident: r, Position: *pos})
	}

	payload := map[string]any{
		"target": target,
		"moved":  len(moved),
	}
	if err := e.Store.LogEvent("gathering", payload); err != nil {
		return fail(err)
	}
	e.Sink.Emit("gathering", payload)
	for _, m := range moved {
		e.Sink.Emit("resident_moved", map[string]any{
			"resident_id": m.Resident.ID,
			"name":        m.Resident.Name,
			"position":    m.Position,
		})
	}

	return Result{Success: true, Moved: len(moved),
		Detail: fmt.Sprintf("gathering %d residents toward (%.1f, %.1f)", len(moved), target.X, target.Z)}
}

func (e *Executor) announce(p Params) Result {
	msg := strings.TrimSpace(p.Message)
	if msg == "" {
		return fail(ErrEmptyMessage)
	}

	payload := map[string]any{"message": msg}
	if err := e.Store.LogEvent("announcement", payload); err != nil {
		return fail(err)
	}
	e.Sink.Emit("announcement", payload)

	return Result{Success: true, Detail: "announced"}
}

func (e *Executor) moveResident(p Params) Result {
	r := e.resolveResident(p.Target)
	if r == nil {
		return fail(fmt.Errorf("%w: %q", ErrEntityNotFound, p.Target))
	}

	dir := world.Direction(strings.ToUpper(p.Direction))
	dist := p.Distance
	if !dir.Valid() {
		// No explicit direction: head toward the resolved target point.
		target, err := e.resolveTarget(p)
		if err != nil {
			return fail(err)
		}
		est := e.Spatial.EstimatePath(r.Position, target)
		dir = est.Direction
		dist = est.Distance
		if p.MaxDistance > 0 && dist > p.MaxDistance {
			dist = p.MaxDistance
		}
	}

	pos, err := e.Store.Move(r.ID, dir, dist)
	if err != nil {
		return fail(err)
	}
	if pos == nil {
		return fail(fmt.Errorf("%w: %s %s %.1f", ErrMoveFailed, r.ID, dir, dist))
	}

	payload := map[string]any{
		"resident_id": r.ID,
		"name":        r.Name,
		"direction":   dir,
		"distance":    dist,
		"position":    *pos,
	}
	if err := e.Store.LogEvent("resident_moved", payload); err != nil {
		return fail(err)
	}
	e.Sink.Emit("resident_moved", payload)

	return Result{Success: true, Moved: 1, Position: pos,
		Detail: fmt.Sprintf("moved %s %s by %.1f", r.Name, dir, dist)}
}

// resolveTarget turns the location fields of Params into a world point:
// explicit coordinate first, then grid reference, then a "near" name/type
// lookup that falls back to the world origin.
func (e *Executor) resolveTarget(p Params) (world.Position, error) {
	if p.X != nil && p.Z != nil {
		return world.Position{X: *p.X, Z: *p.Z}, nil
	}
	if p.GridRef != "" {
		x, z, err := e.Spatial.GridRefToWorld(p.GridRef)
		if err != nil {
			return world.Position{}, err
		}
		return world.Position{X: x, Z: z}, nil
	}
	if p.Near != "" {
		return e.lookupAnchor(p.Near), nil
	}
	return world.Position{}, nil
}

// lookupAnchor finds a position by resident name or structure type,
// defaulting to the world origin when nothing matches.
func (e *Executor) lookupAnchor(name string) world.Position {
	if r := e.resolveResident(name); r != nil {
		return r.Position
	}
	needle := strings.ToLower(name)
	for _, st := range e.Store.Structures() {
		if strings.ToLower(st.Type) == needle {
			return st.Position
		}
	}
	return world.Position{}
}

// resolveResident matches by exact id first, then case-insensitive name
// substring.
func (e *Executor) resolveResident(target string) *world.Resident {
	if target == "" {
		return nil
	}
	if r := e.Store.Resident(target); r != nil {
		return r
	}
	needle := strings.ToLower(target)
	for _, r := range e.Store.Residents() {
		if strings.Contains(strings.ToLower(r.Name), needle) {
			return r
		}
	}
	return nil
}
