package spatial

import (
	"strings"
	"testing"

	"github.com/coldasblues/the-grid/internal/world"
)

func TestRenderTextMapDimensions(t *testing.T) {
	r := newTestResolver(nil)
	out := r.RenderTextMap(world.Position{}, 3)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d rows, want 7", len(lines))
	}
	for i, line := range lines {
		if len(line) != 7 {
			t.Fatalf("row %d has %d cells, want 7", i, len(line))
		}
	}
	// Center marker sits in the middle row and column.
	if lines[3][3] != byte(MarkerCenter) {
		t.Fatalf("center cell = %q, want %q", lines[3][3], MarkerCenter)
	}
}

func TestRenderTextMapMarkers(t *testing.T) {
	occ := &stubOccupancy{
		residents: []*world.Resident{
			{ID: "r1", Position: world.Position{X: 15, Z: 5}}, // one cell east of center
		},
		structures: []*world.Structure{
			{ID: "s1", Type: "well", Position: world.Position{X: 5, Z: 15}}, // one cell north
		},
	}
	r := newTestResolver(occ)
	out := r.RenderTextMap(world.Position{X: 5, Z: 5}, 1)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d rows, want 3", len(lines))
	}
	// Row 0 is the northernmost row.
	if lines[0][1] != byte(MarkerStructure) {
		t.Fatalf("north cell = %q, want %q", lines[0][1], MarkerStructure)
	}
	if lines[1][1] != byte(MarkerCenter) {
		t.Fatalf("center cell = %q, want %q", lines[1][1], MarkerCenter)
	}
	if lines[1][2] != byte(MarkerResident) {
		t.Fatalf("east cell = %q, want %q", lines[1][2], MarkerResident)
	}
	if lines[2][0] != byte(MarkerEmpty) {
		t.Fatalf("southwest cell = %q, want %q", lines[2][0], MarkerEmpty)
	}
}
