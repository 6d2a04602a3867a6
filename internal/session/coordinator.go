package session

import (
	"context"
	"sort"
	"sync"

	"log/slog"

	"github.com/mon1909/Collaborative-Coding/pkg/metrics"
)

// Transport is the outbound half of the event channel. The websocket hub
// implements it; tests substitute a recorder. Delivery to a connection that
// has already gone away is a transport-level no-op, never an error here.
type Transport interface {
	JoinRoom(connID, roomID string)
	LeaveRoom(connID, roomID string)
	EmitTo(connID, event string, data any)
	EmitToRoom(roomID, event string, data any)
	EmitToRoomExcept(roomID, exceptConnID, event string, data any)
}

// Runner executes untrusted source out-of-process and returns whatever text
// should be shown in the shared terminal. It never returns an error: compile
// failures, runtime crashes, and timeouts all come back as output.
type Runner interface {
	Run(ctx context.Context, language, source string) string
}

// Coordinator is the single sequencing point for all room mutations. Every
// inbound event is handled to completion under one mutex, which gives each
// room a total order of state changes without per-room locking. Only the
// child-process wait inside a run happens off the dispatch path.
type Coordinator struct {
	log      *slog.Logger
	store    *Store
	registry *Registry
	tr       Transport
	runner   Runner

	mu sync.Mutex
}

func NewCoordinator(log *slog.Logger, store *Store, reg *Registry, tr Transport, runner Runner) *Coordinator {
	return &Coordinator{log: log, store: store, registry: reg, tr: tr, runner: runner}
}

// Join registers the connection's username, adds it to the room (creating
// the room with default state on first sight), and unicasts a full snapshot
// to every current member, the joiner included.
func (c *Coordinator) Join(connID string, p JoinPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Register(connID, p.Username)
	state, created := c.store.EnsureRoom(p.RoomID)
	if created {
		metrics.RoomsActive.Inc()
		c.log.Debug("room.created", "room", p.RoomID)
	}
	c.store.AddMember(p.RoomID, connID)
	c.tr.JoinRoom(connID, p.RoomID)
	metrics.JoinsTotal.Inc()

	clients := c.roster(p.RoomID)
	payload := JoinedPayload{
		Clients:        clients,
		Username:       p.Username,
		SocketID:       connID,
		Code:           state.Code,
		Language:       state.Language,
		TerminalOutput: state.TerminalOutput,
	}
	// Unicast so each member can later be addressed by the ids it now holds.
	for _, m := range clients {
		c.tr.EmitTo(m.SocketID, EvJoined, payload)
	}
	c.log.Info("session.join", "room", p.RoomID, "user", p.Username, "conn", connID, "members", len(clients))
}

// CodeChange overwrites the room's document and relays the new text to every
// member except the sender, which already holds the value it just typed.
// Edits to rooms that don't exist are dropped.
func (c *Coordinator) CodeChange(connID string, p CodeChangePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store.GetRoom(p.RoomID); !ok {
		return
	}
	c.store.SetCode(p.RoomID, p.Code)
	c.tr.EmitToRoomExcept(p.RoomID, connID, EvCodeChange, CodeChangePayload{Code: p.Code})
}

// LanguageChange mirrors CodeChange for the language tag.
func (c *Coordinator) LanguageChange(connID string, p LanguageChangePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store.GetRoom(p.RoomID); !ok {
		return
	}
	c.store.SetLanguage(p.RoomID, p.Language)
	c.tr.EmitToRoomExcept(p.RoomID, connID, EvLanguageChange, LanguageChangePayload{Language: p.Language})
}

// RunCode hands the source to the runner on its own goroutine and, once the
// process finishes, stores the output and broadcasts it to the whole room —
// requester included, since everyone shares one terminal. A second run
// request while one is pending simply starts another process; there is no
// cancellation of an in-flight run.
func (c *Coordinator) RunCode(ctx context.Context, connID string, p RunCodePayload) {
	metrics.RunsTotal.WithLabelValues(p.Language).Inc()
	c.log.Info("run.start", "room", p.RoomID, "language", p.Language, "conn", connID)

	go func() {
		output := c.runner.Run(ctx, p.Language, p.Code)

		c.mu.Lock()
		defer c.mu.Unlock()
		// The room may have been evicted while the process ran; SetOutput
		// drops the write and the broadcast reaches nobody.
		c.store.SetOutput(p.RoomID, output)
		c.tr.EmitToRoom(p.RoomID, EvTerminalOutput, TerminalOutputPayload{Output: output})
	}()
}

// Disconnect tears the connection down: one "disconnected" notice per room
// it belonged to (carrying the pre-removal username), then removal from the
// registry and from every member set.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	username, _ := c.registry.Lookup(connID)
	for _, roomID := range c.store.RoomsOf(connID) {
		c.tr.EmitToRoomExcept(roomID, connID, EvDisconnected, DisconnectedPayload{
			SocketID: connID,
			Username: username,
		})
		if c.store.RemoveMember(roomID, connID) {
			metrics.RoomsActive.Dec()
			c.log.Debug("room.evicted", "room", roomID)
		}
		c.tr.LeaveRoom(connID, roomID)
	}
	c.registry.Remove(connID)
	c.log.Info("session.disconnect", "conn", connID, "user", username)
}

// roster resolves the room's member set to (id, name) pairs. The set
// guarantees unique connection ids; sorting keeps delivery deterministic.
func (c *Coordinator) roster(roomID string) []Member {
	ids := c.store.MembersOf(roomID)
	sort.Strings(ids)
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		name, _ := c.registry.Lookup(id)
		out = append(out, Member{SocketID: id, Username: name})
	}
	return out
}
