// Resident profile generation — names, temperament, values, and appearance
// for newly spawned residents. The engine treats the produced document as
// opaque; only the name is read back.
package world

import (
	"encoding/json"
	"math/rand"
	"sync"
)

// GeneratedProfile is the output of the profile generator: a display name
// plus an opaque profile document.
type GeneratedProfile struct {
	Name    string
	Profile json.RawMessage
}

// Spawner produces resident profiles deterministically from a seed.
type Spawner struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSpawner creates a profile generator with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{rng: rand.New(rand.NewSource(seed + 300))}
}

// NewProfile generates one resident profile.
func (s *Spawner) NewProfile() GeneratedProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	name := first + " " + last

	values := make([]string, 0, 2)
	for _, i := range s.rng.Perm(len(valuePool))[:2] {
		values = append(values, valuePool[i])
	}

	doc := map[string]any{
		"temperament": temperaments[s.rng.Intn(len(temperaments))],
		"values":      values,
		"appearance":  appearances[s.rng.Intn(len(appearances))],
		"quirk":       quirks[s.rng.Intn(len(quirks))],
	}
	raw, _ := json.Marshal(doc)

	return GeneratedProfile{Name: name, Profile: raw}
}

// Name pools for procedural generation.
var firstNames = []string{
	"Ada", "Basil", "Clio", "Dex", "Emrys", "Fable", "Gris", "Hollis",
	"Idra", "Juno", "Kit", "Lorn", "Moss", "Nim", "Onyx", "Pell",
	"Quill", "Rook", "Sable", "Tamsin", "Ursa", "Vesper", "Wick",
	"Xan", "Yarrow", "Zephyr", "Arlo", "Briar", "Cassian", "Delta",
}

var lastNames = []string{
	"Ashgrove", "Bellweather", "Coldspring", "Duskfield", "Emberlane",
	"Farrow", "Glasswater", "Hollowell", "Ironridge", "Juniper",
	"Kestrelmoor", "Larkspur", "Mirewood", "Nightvale", "Orchardson",
	"Palegrove", "Quicksilver", "Ravenhall", "Saltmarsh", "Thistledown",
	"Umberfall", "Veilwright", "Wrenfield", "Yellowbrook", "Zinnfell",
}

var temperaments = []string{
	"curious", "cautious", "gregarious", "stoic", "restless",
	"methodical", "dreamy", "wry", "earnest", "contrary",
}

var valuePool = []string{
	"community", "solitude", "craft", "exploration", "tradition",
	"novelty", "fairness", "comfort", "knowledge", "beauty",
}

var appearances = []string{
	"a patched grey coat and mismatched boots",
	"a wide-brimmed hat pulled low",
	"a bright scarf wound twice around the neck",
	"ink-stained fingers and a heavy satchel",
	"a walking stick carved with small birds",
	"a long braid threaded with copper wire",
	"sun-faded overalls and a tool belt",
	"a neat waistcoat missing one button",
}

var quirks = []string{
	"hums while walking",
	"collects unusual stones",
	"names every structure they pass",
	"speaks in questions",
	"keeps a journal of the weather",
	"never takes the same path twice",
	"greets strangers twice",
	"counts steps under their breath",
}
