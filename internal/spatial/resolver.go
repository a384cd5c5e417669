// Package spatial provides stateless geometry over the world store:
// grid-reference mapping, spiral empty-space search, straight-line path
// estimates, and text-map rendering.
package spatial

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/coldasblues/the-grid/internal/world"
)

// Occupancy is the narrow view of the store the resolver needs.
type Occupancy interface {
	ResidentsInRadius(x, z, r float64) []*world.Resident
	StructuresInRadius(x, z, r float64) []*world.Structure
}

const (
	gridAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	gridBias     = 50  // shifts z cell indexes non-negative
	gridWrap     = 100 // z labels wrap modulo this
)

// Resolver performs spatial queries over a fixed cell size.
type Resolver struct {
	store    Occupancy
	cellSize float64
}

// NewResolver creates a resolver over the given occupancy source.
func NewResolver(store Occupancy, cellSize float64) *Resolver {
	return &Resolver{store: store, cellSize: cellSize}
}

// CellSize returns the resolver's cell size.
func (r *Resolver) CellSize() float64 {
	return r.cellSize
}

// WorldToGridRef buckets (x, z) into a cell and encodes it as a short
// label like "F12". The encoding is lossy: the letter wraps every 26 cells
// on the x axis and the number wraps every 100 cells on the z axis, so
// labels alias once the world extends past the expected play area.
func (r *Resolver) WorldToGridRef(x, z float64) string {
	cx := int(math.Floor(x / r.cellSize))
	cz := int(math.Floor(z / r.cellSize))
	letter := gridAlphabet[((cx%len(gridAlphabet))+len(gridAlphabet))%len(gridAlphabet)]
	num := ((cz+gridBias)%gridWrap + gridWrap) % gridWrap
	return fmt.Sprintf("%c%d", letter, num)
}

// GridRefToWorld decodes a grid reference to the center point of its cell.
func (r *Resolver) GridRefToWorld(ref string) (x, z float64, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if len(ref) < 2 {
		return 0, 0, fmt.Errorf("grid ref %q too short", ref)
	}
	cx := strings.IndexByte(gridAlphabet, ref[0])
	if cx < 0 {
		return 0, 0, fmt.Errorf("grid ref %q: bad letter", ref)
	}
	num, perr := strconv.Atoi(ref[1:])
	if perr != nil || num < 0 || num >= gridWrap {
		return 0, 0, fmt.Errorf("grid ref %q: bad number", ref)
	}
	cz := num - gridBias
	return (float64(cx) + 0.5) * r.cellSize, (float64(cz) + 0.5) * r.cellSize, nil
}

// SearchSpec parameterizes an empty-space search.
type SearchSpec struct {
	Near        world.Position
	Size        int // footprint in cells
	MinDistance float64
	MaxDistance float64
}

// Placement is a found empty space paired with its grid reference.
type Placement struct {
	Position world.Position
	GridRef  string
}

// FindEmptySpace spirals outward from spec.Near — distance stepping from
// MinDistance to MaxDistance in cell-size increments, angle stepping in
// fixed increments around the full circle — and returns the first clear
// point, or nil if the whole spiral is exhausted.
func (r *Resolver) FindEmptySpace(spec SearchSpec) *Placement {
	if spec.Size < 1 {
		spec.Size = 1
	}
	for dist := spec.MinDistance; dist <= spec.MaxDistance; dist += r.cellSize {
		if dist == 0 {
			// All angles collapse onto the center point.
			if r.IsSpaceClear(spec.Near.X, spec.Near.Z, spec.Size) {
				return &Placement{
					Position: world.Position{X: spec.Near.X, Y: 0, Z: spec.Near.Z},
					GridRef:  r.WorldToGridRef(spec.Near.X, spec.Near.Z),
				}
			}
			continue
		}
		for deg := 0.0; deg < 360; deg += 30 {
			rad := deg * math.Pi / 180
			x := spec.Near.X + dist*math.Cos(rad)
			z := spec.Near.Z + dist*math.Sin(rad)
			if r.IsSpaceClear(x, z, spec.Size) {
				return &Placement{
					Position: world.Position{X: x, Y: 0, Z: z},
					GridRef:  r.WorldToGridRef(x, z),
				}
			}
		}
	}
	return nil
}

// IsSpaceClear reports whether a candidate point is farther than
// size × cellSize from every resident and structure.
func (r *Resolver) IsSpaceClear(x, z float64, size int) bool {
	clearance := float64(size) * r.cellSize
	if len(r.store.ResidentsInRadius(x, z, clearance)) > 0 {
		return false
	}
	return len(r.store.StructuresInRadius(x, z, clearance)) == 0
}

// ValidatePlacement checks a proposed placement against all occupants
// within twice the clearance range.
func (r *Resolver) ValidatePlacement(pos world.Position, size int) bool {
	clearance := float64(size) * r.cellSize
	for _, n := range r.store.ResidentsInRadius(pos.X, pos.Z, 2*clearance) {
		if math.Hypot(n.Position.X-pos.X, n.Position.Z-pos.Z) <= clearance {
			return false
		}
	}
	for _, st := range r.store.StructuresInRadius(pos.X, pos.Z, 2*clearance) {
		if math.Hypot(st.Position.X-pos.X, st.Position.Z-pos.Z) <= clearance {
			return false
		}
	}
	return true
}

// PathEstimate is a straight-line estimate, not an obstacle-aware path.
type PathEstimate struct {
	Direction world.Direction
	Distance  float64 // rounded Euclidean distance
	Steps     int     // ceil(distance / cellSize)
}

// EstimatePath returns the dominant axis direction from one point toward
// another. Ties between axes break toward the z axis.
func (r *Resolver) EstimatePath(from, to world.Position) PathEstimate {
	dx := to.X - from.X
	dz := to.Z - from.Z

	var dir world.Direction
	if math.Abs(dx) > math.Abs(dz) {
		dir = world.East
		if dx < 0 {
			dir = world.West
		}
	} else {
		dir = world.North
		if dz < 0 {
			dir = world.South
		}
	}

	dist := math.Round(math.Hypot(dx, dz))
	return PathEstimate{
		Direction: dir,
		Distance:  dist,
		Steps:     int(math.Ceil(dist / r.cellSize)),
	}
}
