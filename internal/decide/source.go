// Package decide models the external decision-making capability: turn and
// deliberation requests with bounded timeouts, payload validation at the
// boundary, and a deterministic fallback policy for when the source is
// unavailable.
package decide

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/coldasblues/the-grid/internal/action"
	"github.com/coldasblues/the-grid/internal/world"
)

// ErrUnavailable covers timeouts, transport failures, and unparseable
// results. Callers recover locally via the fallback policy; it is never
// fatal.
var ErrUnavailable = errors.New("decision source unavailable")

// TurnRequest is the context supplied for one resident's turn.
type TurnRequest struct {
	ResidentID  string
	Name        string
	Profile     json.RawMessage
	Memories    []world.Memory
	Perception  *world.Perception
	Instruction string // queued directive merged into this turn, if any
}

// Movement is an optional cardinal step in a turn.
type Movement struct {
	Direction string  `json:"direction"`
	Distance  float64 `json:"distance"`
}

// Turn is the outcome of a turn request. Thought is always present;
// everything else is optional.
type Turn struct {
	Thought  string    `json:"thought"`
	Speech   string    `json:"speech,omitempty"`
	Action   string    `json:"action,omitempty"`
	Movement *Movement `json:"movement,omitempty"`
}

// ResidentRef is one resident's entry in a deliberation context.
type ResidentRef struct {
	Name    string `json:"name"`
	GridRef string `json:"grid_ref"`
	State   string `json:"state"`
}

// DeliberationContext summarizes the world for a higher-level decision.
type DeliberationContext struct {
	Population   int
	Residents    []ResidentRef
	Map          string
	Goals        []string
	Observations []string
	Conversation []string
}

// ResidentInstruction is a directive for one resident.
type ResidentInstruction struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

// Deliberation is the outcome of a deliberation request. All fields are
// optional; an empty deliberation is a valid no-op.
type Deliberation struct {
	Observation string               `json:"observation,omitempty"`
	NewGoal     string               `json:"new_goal,omitempty"`
	Instruction *ResidentInstruction `json:"resident_instruction,omitempty"`
	Actions     []action.Intent      `json:"actions,omitempty"`
}

// Source supplies turn and deliberation decisions. Implementations must
// honor ctx cancellation and report failure as ErrUnavailable rather than
// letting transport errors escape untyped.
type Source interface {
	RequestTurn(ctx context.Context, req TurnRequest) (*Turn, error)
	RequestDeliberation(ctx context.Context, dc DeliberationContext) (*Deliberation, error)
}
