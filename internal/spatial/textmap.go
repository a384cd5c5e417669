package spatial

import (
	"math"
	"strings"

	"github.com/coldasblues/the-grid/internal/world"
)

// Map markers, in precedence order.
const (
	MarkerCenter    = '@'
	MarkerResident  = 'R'
	MarkerStructure = '#'
	MarkerEmpty     = '.'
)

// RenderTextMap produces a row-major grid of markers for a square of side
// 2·radius+1 cells around center. Each cell is resolved independently from
// store queries, so cost grows with radius².
func (r *Resolver) RenderTextMap(center world.Position, radius int) string {
	if radius < 0 {
		radius = 0
	}
	ccx := int(math.Floor(center.X / r.cellSize))
	ccz := int(math.Floor(center.Z / r.cellSize))

	var b strings.Builder
	// Rows run north (high z) to south so the map reads naturally.
	for cz := ccz + radius; cz >= ccz-radius; cz-- {
		for cx := ccx - radius; cx <= ccx+radius; cx++ {
			b.WriteRune(r.cellMarker(cx, cz, cx == ccx && cz == ccz))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Resolver) cellMarker(cx, cz int, isCenter bool) rune {
	if isCenter {
		return MarkerCenter
	}
	x := (float64(cx) + 0.5) * r.cellSize
	z := (float64(cz) + 0.5) * r.cellSize
	half := r.cellSize / 2
	if len(r.store.ResidentsInRadius(x, z, half)) > 0 {
		return MarkerResident
	}
	if len(r.store.StructuresInRadius(x, z, half)) > 0 {
		return MarkerStructure
	}
	return MarkerEmpty
}
