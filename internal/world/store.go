package world

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// StoreOptions configures a Store at open time.
type StoreOptions struct {
	SpawnRadius float64 // new residents land within this radius of origin
	Seed        int64   // seeds spawn placement
}

// Store is the single authority over world state. All mutating operations
// are serialized through an internal mutex; operations referencing an
// unknown id return a nil/empty result rather than an error.
type Store struct {
	mu   sync.Mutex
	conn *sqlx.DB
	rng  *rand.Rand

	spawnRadius float64
	origin      time.Time // world time zero, persisted in world_meta
	lastTS      int64     // last issued event/memory timestamp (unix nanos)
}

// Open opens or creates the world database at the given path.
func Open(path string, opts StoreOptions) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		conn:        conn,
		rng:         rand.New(rand.NewSource(opts.Seed)),
		spawnRadius: opts.SpawnRadius,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadOrigin(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("world origin: %w", err)
	}
	if err := s.loadLastTS(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("timestamp floor: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS residents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		profile_json TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS structures (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		params_json TEXT NOT NULL,
		builder_id TEXT,
		built_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		ts INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memories (
		resident_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		content TEXT NOT NULL,
		importance REAL NOT NULL,
		ts INTEGER NOT NULL,
		PRIMARY KEY (resident_id, seq)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_memories_resident ON memories(resident_id, ts);
	CREATE INDEX IF NOT EXISTS idx_residents_pos ON residents(x, z);
	CREATE INDEX IF NOT EXISTS idx_structures_pos ON structures(x, z);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) loadOrigin() error {
	var v string
	err := s.conn.Get(&v, "SELECT value FROM world_meta WHERE key = 'origin'")
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now()
		s.origin = now
		_, err = s.conn.Exec(
			"INSERT INTO world_meta (key, value) VALUES ('origin', ?)",
			strconv.FormatInt(now.UnixNano(), 10),
		)
		return err
	}
	if err != nil {
		return err
	}
	ns, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt origin %q: %w", v, err)
	}
	s.origin = time.Unix(0, ns)
	return nil
}

// loadLastTS seeds the timestamp floor from persisted rows so stamp stays
// non-decreasing across restarts even if the wall clock moved backward.
func (s *Store) loadLastTS() error {
	var ts sql.NullInt64
	if err := s.conn.Get(&ts, "SELECT MAX(ts) FROM events"); err != nil {
		return err
	}
	s.lastTS = ts.Int64
	if err := s.conn.Get(&ts, "SELECT MAX(ts) FROM memories"); err != nil {
		return err
	}
	if ts.Int64 > s.lastTS {
		s.lastTS = ts.Int64
	}
	return nil
}

// stamp issues a non-decreasing timestamp for log-ordered rows.
func (s *Store) stamp() int64 {
	ts := time.Now().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// ── Residents ────────────────────────────────────────────────────────

type residentRow struct {
	ID           string  `db:"id"`
	Name         string  `db:"name"`
	ProfileJSON  string  `db:"profile_json"`
	X            float64 `db:"x"`
	Y            float64 `db:"y"`
	Z            float64 `db:"z"`
	State        string  `db:"state"`
	CreatedAt    int64   `db:"created_at"`
	LastActiveAt int64   `db:"last_active_at"`
}

func (r residentRow) resident() *Resident {
	return &Resident{
		ID:           r.ID,
		Name:         r.Name,
		Profile:      json.RawMessage(r.ProfileJSON),
		Position:     Position{X: r.X, Y: r.Y, Z: r.Z},
		State:        ResidentState(r.State),
		CreatedAt:    time.Unix(0, r.CreatedAt),
		LastActiveAt: time.Unix(0, r.LastActiveAt),
	}
}

// AddResident creates a resident with a fresh id at a random position
// within the spawn radius, at zero elevation, in the idle state.
func (s *Store) AddResident(name string, profile json.RawMessage) (*Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(profile) == 0 {
		profile = json.RawMessage("{}")
	}

	// Uniform over the spawn disc.
	angle := s.rng.Float64() * 2 * math.Pi
	dist := math.Sqrt(s.rng.Float64()) * s.spawnRadius

	now := time.Now()
	r := &Resident{
		ID:           uuid.NewString(),
		Name:         name,
		Profile:      profile,
		Position:     Position{X: dist * math.Cos(angle), Y: 0, Z: dist * math.Sin(angle)},
		State:        StateIdle,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	_, err := s.conn.Exec(`INSERT INTO residents
		(id, name, profile_json, x, y, z, state, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, string(r.Profile), r.Position.X, r.Position.Y, r.Position.Z,
		string(r.State), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert resident: %w", err)
	}
	return r, nil
}

// Resident returns the resident with the given id, or nil if unknown.
func (s *Store) Resident(id string) *Resident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.residentLocked(id)
}

func (s *Store) residentLocked(id string) *Resident {
	var row residentRow
	err := s.conn.Get(&row, "SELECT * FROM residents WHERE id = ?", id)
	if err != nil {
		return nil
	}
	return row.resident()
}

// Residents lists all residents in creation order. The ordering is stable,
// which the scheduler's round-robin depends on.
func (s *Store) Residents() []*Resident {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []residentRow
	if err := s.conn.Select(&rows, "SELECT * FROM residents ORDER BY created_at, id"); err != nil {
		return nil
	}
	out := make([]*Resident, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.resident())
	}
	return out
}

// ResidentsInRadius returns residents within r of (x, z), inclusive.
func (s *Store) ResidentsInRadius(x, z, r float64) []*Resident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.residentsInRadiusLocked(x, z, r)
}

func (s *Store) residentsInRadiusLocked(x, z, r float64) []*Resident {
	var rows []residentRow
	err := s.conn.Select(&rows,
		"SELECT * FROM residents WHERE x BETWEEN ? AND ? AND z BETWEEN ? AND ? ORDER BY created_at, id",
		x-r, x+r, z-r, z+r,
	)
	if err != nil {
		return nil
	}
	var out []*Resident
	for _, row := range rows {
		if math.Hypot(row.X-x, row.Z-z) <= r {
			out = append(out, row.resident())
		}
	}
	return out
}

// SetPosition moves a resident to an absolute position. Unknown ids are a
// no-op.
func (s *Store) SetPosition(id string, x, y, z float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(
		"UPDATE residents SET x = ?, y = ?, z = ?, last_active_at = ? WHERE id = ?",
		x, y, z, time.Now().UnixNano(), id,
	)
	return err
}

// Move steps a resident along a cardinal axis by distance units and returns
// the new position, or nil if the id is unknown or the direction invalid.
func (s *Store) Move(id string, dir Direction, distance float64) (*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !dir.Valid() {
		return nil, nil
	}
	r := s.residentLocked(id)
	if r == nil {
		return nil, nil
	}

	dx, dz := dir.Vector()
	pos := Position{
		X: r.Position.X + dx*distance,
		Y: r.Position.Y,
		Z: r.Position.Z + dz*distance,
	}
	_, err := s.conn.Exec(
		"UPDATE residents SET x = ?, z = ?, last_active_at = ? WHERE id = ?",
		pos.X, pos.Z, time.Now().UnixNano(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("move resident: %w", err)
	}
	return &pos, nil
}

// SetState updates a resident's lifecycle state. Unknown ids are a no-op.
func (s *Store) SetState(id string, state ResidentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(
		"UPDATE residents SET state = ?, last_active_at = ? WHERE id = ?",
		string(state), time.Now().UnixNano(), id,
	)
	return err
}

// RemoveResident deletes a resident and its memories. Unknown ids are a
// no-op.
func (s *Store) RemoveResident(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec("DELETE FROM memories WHERE resident_id = ?", id); err != nil {
		return err
	}
	_, err := s.conn.Exec("DELETE FROM residents WHERE id = ?", id)
	return err
}

// ── Structures ───────────────────────────────────────────────────────

type structureRow struct {
	ID         string         `db:"id"`
	Type       string         `db:"type"`
	X          float64        `db:"x"`
	Y          float64        `db:"y"`
	Z          float64        `db:"z"`
	ParamsJSON string         `db:"params_json"`
	BuilderID  sql.NullString `db:"builder_id"`
	BuiltAt    int64          `db:"built_at"`
}

func (r structureRow) structure() *Structure {
	return &Structure{
		ID:        r.ID,
		Type:      r.Type,
		Position:  Position{X: r.X, Y: r.Y, Z: r.Z},
		Params:    json.RawMessage(r.ParamsJSON),
		BuilderID: r.BuilderID.String,
		BuiltAt:   time.Unix(0, r.BuiltAt),
	}
}

// AddStructure records a built structure. Placement validation is the
// caller's responsibility; structures are immutable once created.
func (s *Store) AddStructure(typ string, x, y, z float64, params json.RawMessage, builder string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	id := uuid.NewString()
	_, err := s.conn.Exec(`INSERT INTO structures
		(id, type, x, y, z, params_json, builder_id, built_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, typ, x, y, z, string(params), builder, time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert structure: %w", err)
	}
	return id, nil
}

// Structures lists all structures in build order.
func (s *Store) Structures() []*Structure {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []structureRow
	if err := s.conn.Select(&rows, "SELECT * FROM structures ORDER BY built_at, id"); err != nil {
		return nil
	}
	out := make([]*Structure, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.structure())
	}
	return out
}

// StructuresInRadius returns structures within r of (x, z), inclusive.
func (s *Store) StructuresInRadius(x, z, r float64) []*Structure {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []structureRow
	err := s.conn.Select(&rows,
		"SELECT * FROM structures WHERE x BETWEEN ? AND ? AND z BETWEEN ? AND ? ORDER BY built_at, id",
		x-r, x+r, z-r, z+r,
	)
	if err != nil {
		return nil
	}
	var out []*Structure
	for _, row := range rows {
		if math.Hypot(row.X-x, row.Z-z) <= r {
			out = append(out, row.structure())
		}
	}
	return out
}

// ── Events ───────────────────────────────────────────────────────────

type eventRow struct {
	ID          int64  `db:"id"`
	Type        string `db:"type"`
	PayloadJSON string `db:"payload_json"`
	TS          int64  `db:"ts"`
}

func (r eventRow) event() Event {
	return Event{
		ID:        r.ID,
		Type:      r.Type,
		Payload:   json.RawMessage(r.PayloadJSON),
		Timestamp: time.Unix(0, r.TS),
	}
}

// LogEvent appends an entry to the event log. Payloads that fail to
// marshal are recorded as an empty document rather than dropped.
func (s *Store) LogEvent(typ string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := []byte("{}")
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			body = b
		}
	}
	_, err := s.conn.Exec(
		"INSERT INTO events (type, payload_json, ts) VALUES (?, ?, ?)",
		typ, string(body), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent n events, oldest first.
func (s *Store) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentEventsLocked(n)
}

func (s *Store) recentEventsLocked(n int) []Event {
	if n <= 0 {
		return nil
	}
	var rows []eventRow
	err := s.conn.Select(&rows,
		"SELECT id, type, payload_json, ts FROM events ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil
	}
	out := make([]Event, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.event()
	}
	return out
}

// ── Memories ─────────────────────────────────────────────────────────

// AddMemory appends a memory to a resident's ring, pruning the oldest
// entries by timestamp beyond MaxMemories. Unknown ids are a no-op.
func (s *Store) AddMemory(id, content string, importance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.residentLocked(id) == nil {
		return nil
	}

	var seq sql.NullInt64
	if err := s.conn.Get(&seq, "SELECT MAX(seq) FROM memories WHERE resident_id = ?", id); err != nil {
		return fmt.Errorf("memory seq: %w", err)
	}

	_, err := s.conn.Exec(
		"INSERT INTO memories (resident_id, seq, content, importance, ts) VALUES (?, ?, ?, ?, ?)",
		id, seq.Int64+1, content, importance, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	_, err = s.conn.Exec(`DELETE FROM memories WHERE resident_id = ? AND seq NOT IN (
		SELECT seq FROM memories WHERE resident_id = ? ORDER BY ts DESC, seq DESC LIMIT ?)`,
		id, id, MaxMemories,
	)
	if err != nil {
		return fmt.Errorf("prune memories: %w", err)
	}
	return nil
}

// RecentMemories returns a resident's n most recent memories, newest first.
func (s *Store) RecentMemories(id string, n int) []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil
	}
	type memRow struct {
		Seq        int64   `db:"seq"`
		Content    string  `db:"content"`
		Importance float64 `db:"importance"`
		TS         int64   `db:"ts"`
	}
	var rows []memRow
	err := s.conn.Select(&rows,
		"SELECT seq, content, importance, ts FROM memories WHERE resident_id = ? ORDER BY ts DESC, seq DESC LIMIT ?",
		id, n,
	)
	if err != nil {
		return nil
	}
	out := make([]Memory, 0, len(rows))
	for _, r := range rows {
		out = append(out, Memory{
			Seq:        r.Seq,
			Content:    r.Content,
			Importance: r.Importance,
			Timestamp:  time.Unix(0, r.TS),
		})
	}
	return out
}

// ── Composite views ──────────────────────────────────────────────────

// Perception builds the bounded view supplied to a decision request:
// the resident's position, neighbors within radius (excluding the resident
// itself), and recent ambient events. Returns nil for unknown ids.
func (s *Store) Perception(id string, radius float64) *Perception {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.residentLocked(id)
	if r == nil {
		return nil
	}

	p := &Perception{Position: r.Position}
	for _, n := range s.residentsInRadiusLocked(r.Position.X, r.Position.Z, radius) {
		if n.ID == id {
			continue
		}
		p.Nearby = append(p.Nearby, NearbyResident{
			ID:       n.ID,
			Name:     n.Name,
			Position: n.Position,
			Distance: math.Hypot(n.Position.X-r.Position.X, n.Position.Z-r.Position.Z),
			State:    n.State,
		})
	}
	p.RecentEvents = s.recentEventsLocked(10)
	return p
}

// Snapshot summarizes the whole world at a point in time.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []residentRow
	if err := s.conn.Select(&rows, "SELECT * FROM residents ORDER BY created_at, id"); err != nil {
		return &Snapshot{}
	}
	residents := make([]*Resident, 0, len(rows))
	for _, r := range rows {
		residents = append(residents, r.resident())
	}
	return &Snapshot{
		Residents:    residents,
		RecentEvents: s.recentEventsLocked(20),
		Population:   len(residents),
		WorldTime:    time.Since(s.origin).Seconds(),
	}
}
