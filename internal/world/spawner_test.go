package world

import (
	"encoding/json"
	"testing"
)

func TestSpawnerDeterministic(t *testing.T) {
	a := NewSpawner(7)
	b := NewSpawner(7)
	for i := 0; i < 10; i++ {
		pa, pb := a.NewProfile(), b.NewProfile()
		if pa.Name != pb.Name || string(pa.Profile) != string(pb.Profile) {
			t.Fatalf("profile %d diverged: %q vs %q", i, pa.Name, pb.Name)
		}
	}
}

func TestSpawnerProfileShape(t *testing.T) {
	p := NewSpawner(1).NewProfile()
	if p.Name == "" {
		t.Fatal("empty name")
	}
	var doc struct {
		Temperament string   `json:"temperament"`
		Values      []string `json:"values"`
		Appearance  string   `json:"appearance"`
		Quirk       string   `json:"quirk"`
	}
	if err := json.Unmarshal(p.Profile, &doc); err != nil {
		t.Fatalf("profile not valid JSON: %v", err)
	}
	if doc.Temperament == "" || len(doc.Values) != 2 || doc.Appearance == "" || doc.Quirk == "" {
		t.Fatalf("incomplete profile: %+v", doc)
	}
}
