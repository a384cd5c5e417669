package broadcast

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversEvents(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn := dialTestHub(t, h)

	// Registration happens in the handler goroutine; give it a beat.
	deadline := time.Now().Add(time.Second)
	for h.observerCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.Emit("announcement", map[string]string{"message": "hello"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
		TS      int64           `json:"ts"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != "announcement" {
		t.Fatalf("event = %q, want announcement", env.Event)
	}
	if env.TS == 0 {
		t.Fatal("timestamp missing")
	}
}

func TestHubEmitWithoutObservers(t *testing.T) {
	h := NewHub()
	defer h.Close()
	// Must not block or panic.
	h.Emit("turn_start", nil)
}

func TestHubCloseRefusesNewObservers(t *testing.T) {
	h := NewHub()
	h.Close()

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return // refused at upgrade, also fine
	}
	defer conn.Close()

	// The hub closes the connection immediately; the read must fail.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded on a closed hub")
	}
}

func TestFanout(t *testing.T) {
	var a, b recordSink
	f := Fanout{&a, &b}
	f.Emit("speech", nil)
	f.Emit("action", nil)

	if len(a.events) != 2 || len(b.events) != 2 {
		t.Fatalf("fanout delivered %d/%d, want 2/2", len(a.events), len(b.events))
	}
	if a.events[0] != "speech" || a.events[1] != "action" {
		t.Fatalf("order = %v", a.events)
	}
}

type recordSink struct {
	events []string
}

func (r *recordSink) Emit(event string, payload any) {
	r.events = append(r.events, event)
}
