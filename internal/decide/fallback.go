package decide

import (
	"fmt"
	"hash/fnv"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Fallback is the deterministic turn policy used when the decision source
// times out, fails, or returns an unparseable payload. It always produces
// a schema-valid turn, so no resident is ever left without an outcome.
//
// Direction and distance come from a smooth noise field sampled at
// (resident, cycle), which gives each resident an organic-looking wander
// that is fully reproducible from the seed.
type Fallback struct {
	noise opensimplex.Noise
}

// NewFallback creates a fallback policy with the given seed.
func NewFallback(seed int64) *Fallback {
	return &Fallback{noise: opensimplex.New(seed)}
}

var fallbackDirections = []string{"N", "E", "S", "W"}

// Turn produces a well-formed turn for the request, deterministic in
// (resident id, cycle).
func (f *Fallback) Turn(req TurnRequest, cycle uint64) *Turn {
	h := fnv.New32a()
	h.Write([]byte(req.ResidentID))
	offset := float64(h.Sum32()%1000) * 0.37

	// Smooth drift: nearby cycles keep a similar heading.
	v := f.noise.Eval2(offset, float64(cycle)*0.15)
	dir := fallbackDirections[quadrant(v)]

	dist := 1.0 + 2.0*abs(f.noise.Eval2(offset+500, float64(cycle)*0.15))

	t := &Turn{
		Thought:  fmt.Sprintf("%s wanders, taking in the surroundings.", req.Name),
		Movement: &Movement{Direction: dir, Distance: dist},
	}
	if req.Instruction != "" {
		// Acknowledge a pending directive even when improvising.
		t.Thought = fmt.Sprintf("%s mulls over the directive: %s", req.Name, req.Instruction)
		t.Movement = nil
	}
	return t
}

// quadrant buckets a noise value in [-1, 1] into four direction indexes.
func quadrant(v float64) int {
	switch {
	case v < -0.5:
		return 0
	case v < 0:
		return 1
	case v < 0.5:
		return 2
	default:
		return 3
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
