// Package world owns all shared world state: residents, structures, the
// append-only event log, and bounded per-resident memory. Every mutation
// goes through the Store, which serializes access and persists to SQLite.
package world

import (
	"encoding/json"
	"time"
)

// ResidentState is the lifecycle state of a resident.
type ResidentState string

const (
	StateIdle   ResidentState = "idle"
	StateActing ResidentState = "acting"
)

// Position is a point in world space. Y is elevation and stays zero for
// anything placed on the ground plane.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Direction is one of the four cardinal movement axes. Diagonal motion is
// not supported.
type Direction string

const (
	North Direction = "N" // +Z
	South Direction = "S" // -Z
	East  Direction = "E" // +X
	West  Direction = "W" // -X
)

// Vector returns the unit axis step for the direction.
func (d Direction) Vector() (dx, dz float64) {
	switch d {
	case North:
		return 0, 1
	case South:
		return 0, -1
	case East:
		return 1, 0
	case West:
		return -1, 0
	}
	return 0, 0
}

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West:
		return true
	}
	return false
}

// Resident is a simulated inhabitant of the grid. The profile document is
// produced by an external generator and treated as read-only here.
type Resident struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Profile      json.RawMessage `json:"profile"`
	Position     Position        `json:"position"`
	State        ResidentState   `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActiveAt time.Time       `json:"last_active_at"`
}

// Structure is an immutable built object occupying world space.
type Structure struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Position  Position        `json:"position"`
	Params    json.RawMessage `json:"params,omitempty"`
	BuilderID string          `json:"builder_id,omitempty"`
	BuiltAt   time.Time       `json:"built_at"`
}

// Event is an append-only log entry. IDs and timestamps are non-decreasing
// in insertion order.
type Event struct {
	ID        int64           `json:"id" db:"id"`
	Type      string          `json:"type" db:"type"`
	Payload   json.RawMessage `json:"payload,omitempty" db:"payload_json"`
	Timestamp time.Time       `json:"timestamp"`
}

// Memory is one entry in a resident's bounded memory ring.
type Memory struct {
	Seq        int64     `json:"seq"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Timestamp  time.Time `json:"timestamp"`
}

// MaxMemories caps the per-resident memory ring. Inserts beyond the cap
// prune the oldest entries by timestamp.
const MaxMemories = 100

// NearbyResident is one neighbor entry in a perception.
type NearbyResident struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Position Position      `json:"position"`
	Distance float64       `json:"distance"`
	State    ResidentState `json:"state"`
}

// Perception is the bounded view of the world supplied to a decision request.
type Perception struct {
	Position     Position         `json:"position"`
	Nearby       []NearbyResident `json:"nearby"`
	RecentEvents []Event          `json:"recent_events"`
}

// Snapshot is a point-in-time summary of the whole world.
type Snapshot struct {
	Residents    []*Resident `json:"residents"`
	RecentEvents []Event     `json:"recent_events"`
	Population   int         `json:"population"`
	WorldTime    float64     `json:"world_time_seconds"`
}

// StructureTemplate describes one buildable structure type.
type StructureTemplate struct {
	Size   int    // footprint in cells
	Effect string // effect tag
}

// StructureTemplates is the fixed set of buildable structure types.
var StructureTemplates = map[string]StructureTemplate{
	"beacon":   {Size: 1, Effect: "signal"},
	"well":     {Size: 1, Effect: "water"},
	"shelter":  {Size: 2, Effect: "rest"},
	"workshop": {Size: 2, Effect: "craft"},
	"garden":   {Size: 2, Effect: "food"},
	"hall":     {Size: 3, Effect: "meet"},
}
