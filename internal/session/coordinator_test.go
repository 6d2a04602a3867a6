package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"
)

// fakeTransport records every outbound message so tests can assert on
// fan-out without a network layer.
type fakeTransport struct {
	mu    sync.Mutex
	sent  []emit
	rooms map[string]map[string]bool
}

type emit struct {
	Kind   string // "to", "room", "room-except"
	Target string // connID or roomID
	Except string
	Event  string
	Data   any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{rooms: map[string]map[string]bool{}}
}

func (f *fakeTransport) JoinRoom(connID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[roomID] == nil {
		f.rooms[roomID] = map[string]bool{}
	}
	f.rooms[roomID][connID] = true
}

func (f *fakeTransport) LeaveRoom(connID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[roomID], connID)
}

func (f *fakeTransport) EmitTo(connID, event string, data any) {
	f.record(emit{Kind: "to", Target: connID, Event: event, Data: data})
}

func (f *fakeTransport) EmitToRoom(roomID, event string, data any) {
	f.record(emit{Kind: "room", Target: roomID, Event: event, Data: data})
}

func (f *fakeTransport) EmitToRoomExcept(roomID, exceptConnID, event string, data any) {
	f.record(emit{Kind: "room-except", Target: roomID, Except: exceptConnID, Event: event, Data: data})
}

func (f *fakeTransport) record(e emit) {
	f.mu.Lock()
	f.sent = append(f.sent, e)
	f.mu.Unlock()
}

func (f *fakeTransport) emits(event string) []emit {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emit
	for _, e := range f.sent {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// waitEmits polls until at least n messages with the event name arrived,
// for handlers that complete on another goroutine.
func (f *fakeTransport) waitEmits(t *testing.T, event string, n int) []emit {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.emits(event); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q emits, have %v", n, event, f.emits(event))
	return nil
}

type fakeRunner struct{ output string }

func (r fakeRunner) Run(context.Context, string, string) string { return r.output }

func newTestCoordinator(run Runner) (*Coordinator, *Store, *fakeTransport) {
	tr := newFakeTransport()
	store := NewStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCoordinator(log, store, NewRegistry(), tr, run), store, tr
}

func TestJoinDeliversSnapshotToEveryMember(t *testing.T) {
	c, _, tr := newTestCoordinator(fakeRunner{})

	c.Join("alice-conn", JoinPayload{RoomID: "r1", Username: "alice"})
	c.Join("bob-conn", JoinPayload{RoomID: "r1", Username: "bob"})

	// alice's solo join, then one unicast each for alice and bob
	joined := tr.emits(EvJoined)
	if len(joined) != 3 {
		t.Fatalf("want 3 joined unicasts, got %d", len(joined))
	}

	last := joined[len(joined)-1]
	p, ok := last.Data.(JoinedPayload)
	if !ok {
		t.Fatalf("joined payload has wrong type %T", last.Data)
	}
	if p.Username != "bob" || p.SocketID != "bob-conn" {
		t.Fatalf("joined payload names wrong joiner: %+v", p)
	}
	if p.Code != DefaultCode || p.Language != DefaultLanguage || p.TerminalOutput != "" {
		t.Fatalf("fresh room snapshot not defaults: %+v", p)
	}

	seen := map[string]int{}
	for _, m := range p.Clients {
		seen[m.SocketID]++
	}
	if len(p.Clients) != 2 || seen["alice-conn"] != 1 || seen["bob-conn"] != 1 {
		t.Fatalf("roster wrong: %+v", p.Clients)
	}
}

func TestRejoinYieldsNoDuplicateRoster(t *testing.T) {
	c, _, tr := newTestCoordinator(fakeRunner{})

	c.Join("c1", JoinPayload{RoomID: "r1", Username: "alice"})
	c.Join("c1", JoinPayload{RoomID: "r1", Username: "alice"})

	joined := tr.emits(EvJoined)
	p := joined[len(joined)-1].Data.(JoinedPayload)
	if len(p.Clients) != 1 {
		t.Fatalf("duplicate roster entries after re-join: %+v", p.Clients)
	}
}

func TestCodeChangeUpdatesStoreAndExcludesSender(t *testing.T) {
	c, store, tr := newTestCoordinator(fakeRunner{})
	c.Join("alice", JoinPayload{RoomID: "r1", Username: "alice"})
	c.Join("bob", JoinPayload{RoomID: "r1", Username: "bob"})

	c.CodeChange("alice", CodeChangePayload{RoomID: "r1", Code: "x=1"})

	state, _ := store.GetRoom("r1")
	if state.Code != "x=1" {
		t.Fatalf("store not updated, code=%q", state.Code)
	}

	got := tr.emits(EvCodeChange)
	if len(got) != 1 {
		t.Fatalf("want 1 code-change fan-out, got %d", len(got))
	}
	e := got[0]
	if e.Kind != "room-except" || e.Target != "r1" || e.Except != "alice" {
		t.Fatalf("sender not excluded: %+v", e)
	}
	if p := e.Data.(CodeChangePayload); p.Code != "x=1" || p.RoomID != "" {
		t.Fatalf("outbound payload wrong: %+v", p)
	}
}

func TestEditOnMissingRoomIsDropped(t *testing.T) {
	c, store, tr := newTestCoordinator(fakeRunner{})

	c.CodeChange("c1", CodeChangePayload{RoomID: "nope", Code: "x"})
	c.LanguageChange("c1", LanguageChangePayload{RoomID: "nope", Language: "python"})

	if len(tr.emits(EvCodeChange))+len(tr.emits(EvLanguageChange)) != 0 {
		t.Fatal("edit on missing room produced fan-out")
	}
	if _, ok := store.GetRoom("nope"); ok {
		t.Fatal("edit on missing room created it")
	}
}

func TestLanguageChangeFanOut(t *testing.T) {
	c, store, tr := newTestCoordinator(fakeRunner{})
	c.Join("alice", JoinPayload{RoomID: "r1", Username: "alice"})

	c.LanguageChange("alice", LanguageChangePayload{RoomID: "r1", Language: "python"})

	state, _ := store.GetRoom("r1")
	if state.Language != "python" {
		t.Fatalf("language not stored: %q", state.Language)
	}
	got := tr.emits(EvLanguageChange)
	if len(got) != 1 || got[0].Except != "alice" {
		t.Fatalf("unexpected fan-out: %+v", got)
	}
}

func TestRunCodeBroadcastsToWholeRoom(t *testing.T) {
	c, store, tr := newTestCoordinator(fakeRunner{output: "Hello, World!\n"})
	c.Join("alice", JoinPayload{RoomID: "r1", Username: "alice"})

	c.RunCode(context.Background(), "alice", RunCodePayload{RoomID: "r1", Code: `print("hi")`, Language: "python"})

	got := tr.waitEmits(t, EvTerminalOutput, 1)
	e := got[0]
	if e.Kind != "room" || e.Target != "r1" {
		t.Fatalf("terminal-output must reach the whole room, got %+v", e)
	}
	if p := e.Data.(TerminalOutputPayload); p.Output != "Hello, World!\n" {
		t.Fatalf("wrong output: %q", p.Output)
	}

	state, _ := store.GetRoom("r1")
	if state.TerminalOutput != "Hello, World!\n" {
		t.Fatalf("output not stored: %q", state.TerminalOutput)
	}
}

func TestDisconnectNotifiesEveryRoomOnce(t *testing.T) {
	c, store, tr := newTestCoordinator(fakeRunner{})
	c.Join("alice", JoinPayload{RoomID: "r1", Username: "alice"})
	c.Join("alice", JoinPayload{RoomID: "r2", Username: "alice"})
	c.Join("bob", JoinPayload{RoomID: "r1", Username: "bob"})
	c.Join("carol", JoinPayload{RoomID: "r2", Username: "carol"})

	c.Disconnect("alice")

	got := tr.emits(EvDisconnected)
	if len(got) != 2 {
		t.Fatalf("want exactly one notice per room, got %d", len(got))
	}
	rooms := map[string]bool{}
	for _, e := range got {
		rooms[e.Target] = true
		if e.Except != "alice" {
			t.Fatalf("leaver notified about itself: %+v", e)
		}
		p := e.Data.(DisconnectedPayload)
		if p.SocketID != "alice" || p.Username != "alice" {
			t.Fatalf("notice lost pre-removal username: %+v", p)
		}
	}
	if !rooms["r1"] || !rooms["r2"] {
		t.Fatalf("wrong rooms notified: %v", rooms)
	}

	for _, roomID := range []string{"r1", "r2"} {
		for _, id := range store.MembersOf(roomID) {
			if id == "alice" {
				t.Fatalf("alice still member of %s", roomID)
			}
		}
	}
	if rooms := store.RoomsOf("alice"); len(rooms) != 0 {
		t.Fatalf("alice still in rooms: %v", rooms)
	}
}

func TestDisconnectLastMemberEvictsRoom(t *testing.T) {
	c, store, _ := newTestCoordinator(fakeRunner{})
	c.Join("alice", JoinPayload{RoomID: "r1", Username: "alice"})

	c.Disconnect("alice")

	if _, ok := store.GetRoom("r1"); ok {
		t.Fatal("empty room survived disconnect")
	}
}
