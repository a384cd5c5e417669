package world

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestExportSnapshot(t *testing.T) {
	s := openTestStore(t)
	s.AddResident("Ada", nil)
	s.AddStructure("well", 10, 0, 10, nil, "")

	var buf bytes.Buffer
	if err := s.ExportSnapshot(&buf); err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()

	var doc struct {
		Snapshot   *Snapshot    `json:"snapshot"`
		Structures []*Structure `json:"structures"`
	}
	if err := json.NewDecoder(gz).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Snapshot == nil || doc.Snapshot.Population != 1 {
		t.Fatalf("snapshot = %+v", doc.Snapshot)
	}
	if len(doc.Structures) != 1 || doc.Structures[0].Type != "well" {
		t.Fatalf("structures = %+v", doc.Structures)
	}
}
