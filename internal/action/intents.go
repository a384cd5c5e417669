// Package action validates and applies named intents against the world
// store. Every successful mutating path logs an event and then broadcasts,
// in that order; validation failures short-circuit before either.
package action

import (
	"errors"

	"github.com/coldasblues/the-grid/internal/world"
)

// Kind tags an intent.
type Kind string

const (
	KindBuild        Kind = "build"
	KindInstruct     Kind = "instruct"
	KindGather       Kind = "gather"
	KindAnnounce     Kind = "announce"
	KindSpawn        Kind = "spawn"
	KindMoveResident Kind = "move_resident"
)

// Validation failures. No mutation is performed when any of these is
// returned.
var (
	ErrUnknownKind          = errors.New("unknown intent kind")
	ErrUnknownStructureType = errors.New("unknown structure type")
	ErrNoSpaceFound         = errors.New("no empty space found")
	ErrPlacementOccupied    = errors.New("placement occupied")
	ErrEntityNotFound       = errors.New("entity not found")
	ErrEmptyMessage         = errors.New("empty message")
	ErrMoveFailed           = errors.New("move failed")
)

// Params carries the fields an intent may reference. Unused fields stay at
// their zero value.
type Params struct {
	// Target resident, by id or fuzzy name (instruct, move_resident).
	Target string `json:"target,omitempty"`

	// Structure type for build.
	StructureType string `json:"structure_type,omitempty"`

	// Target location: explicit coordinate, grid reference, or a "near"
	// name/type lookup. Checked in that order; the lookup defaults to the
	// world origin.
	X       *float64 `json:"x,omitempty"`
	Z       *float64 `json:"z,omitempty"`
	GridRef string   `json:"grid_ref,omitempty"`
	Near    string   `json:"near,omitempty"`

	// Message for announce / instruct.
	Message string `json:"message,omitempty"`

	// Explicit movement (move_resident).
	Direction string  `json:"direction,omitempty"`
	Distance  float64 `json:"distance,omitempty"`

	// Cap on path-estimate movement (move_resident toward a point).
	MaxDistance float64 `json:"max_distance,omitempty"`
}

// Intent is a tagged executable record.
type Intent struct {
	Kind   Kind   `json:"kind"`
	Params Params `json:"params"`
}

// Result reports the outcome of executing one intent.
type Result struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`

	// Set by build.
	StructureID string          `json:"structure_id,omitempty"`
	Position    *world.Position `json:"position,omitempty"`
	GridRef     string          `json:"grid_ref,omitempty"`

	// Set by gather / move_resident.
	Moved int `json:"moved,omitempty"`

	// Spawn does not mutate; the caller fulfills the request through the
	// profile-generation collaborator.
	SpawnRequested bool `json:"spawn_requested,omitempty"`

	// The validation error for failed results.
	Err error `json:"-"`
}

func fail(err error) Result {
	return Result{Success: false, Detail: err.Error(), Err: err}
}
