package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"log/slog"

	"github.com/mon1909/Collaborative-Coding/internal/session"
	"github.com/mon1909/Collaborative-Coding/pkg/metrics"
)

// Hub owns every live connection and the room-scoped delivery channels the
// coordinator addresses. It is the session.Transport implementation: the
// coordinator decides who hears what, the hub only moves bytes.
type Hub struct {
	log *slog.Logger
	bus *RedisBus // nil when single-instance

	coord *session.Coordinator

	mu    sync.RWMutex
	conns map[string]*Conn            // connID -> conn
	rooms map[string]map[string]*Conn // roomID -> connID -> conn
}

// NewHub sets up the hub; bus may be nil for single-instance deployments.
func NewHub(logger *slog.Logger, bus *RedisBus) *Hub {
	return &Hub{
		log:   logger,
		bus:   bus,
		conns: map[string]*Conn{},
		rooms: map[string]map[string]*Conn{},
	}
}

// Bind attaches the coordinator after construction; hub and coordinator
// reference each other, so one side has to be wired late.
func (h *Hub) Bind(c *session.Coordinator) { h.coord = c }

// Run relays bus traffic from other instances into local rooms until ctx
// ends. No-op without a bus.
func (h *Hub) Run(ctx context.Context) {
	if h.bus == nil {
		<-ctx.Done()
		return
	}
	go h.bus.Subscribe(ctx, func(msg BusMessage) {
		h.deliverLocal(msg.RoomID, "", msg.Event, json.RawMessage(msg.Data))
	})
	<-ctx.Done()
}

// ServeWS handles a new /ws connection: read loop in, event dispatch out.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sock, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	c := NewConn(sock)
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
	metrics.ConnectionsActive.Inc()
	h.log.Debug("ws.connected", "conn", c.ID())

	go c.WriteLoop(ctx)

	for {
		env, ok := c.Read(ctx)
		if !ok {
			break
		}
		h.dispatch(ctx, c.ID(), env)
	}

	h.coord.Disconnect(c.ID())
	h.mu.Lock()
	delete(h.conns, c.ID())
	h.mu.Unlock()
	metrics.ConnectionsActive.Dec()
	_ = c.Close()
}

// dispatch routes one inbound envelope to the coordinator. Payloads that
// fail to decode are dropped; a malformed client must not hurt the room.
func (h *Hub) dispatch(ctx context.Context, connID string, env session.Envelope) {
	switch env.Event {
	case session.EvJoin:
		var p session.JoinPayload
		if json.Unmarshal(env.Data, &p) == nil && p.RoomID != "" {
			h.coord.Join(connID, p)
		}
	case session.EvCodeChange:
		var p session.CodeChangePayload
		if json.Unmarshal(env.Data, &p) == nil {
			h.coord.CodeChange(connID, p)
		}
	case session.EvLanguageChange:
		var p session.LanguageChangePayload
		if json.Unmarshal(env.Data, &p) == nil {
			h.coord.LanguageChange(connID, p)
		}
	case session.EvRunCode:
		var p session.RunCodePayload
		if json.Unmarshal(env.Data, &p) == nil {
			// Detach from the request context so a tab closing mid-run
			// doesn't kill an execution the rest of the room is waiting on.
			h.coord.RunCode(context.WithoutCancel(ctx), connID, p)
		}
	default:
		h.log.Debug("ws.unknown_event", "event", env.Event, "conn", connID)
	}
}

// JoinRoom implements session.Transport.
func (h *Hub) JoinRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.conns[connID]
	if c == nil {
		return
	}
	rm := h.rooms[roomID]
	if rm == nil {
		rm = map[string]*Conn{}
		h.rooms[roomID] = rm
	}
	rm[connID] = c
}

// LeaveRoom implements session.Transport.
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm := h.rooms[roomID]
	if rm == nil {
		return
	}
	delete(rm, connID)
	if len(rm) == 0 {
		delete(h.rooms, roomID)
	}
}

// EmitTo implements session.Transport. Unknown ids are a no-op: the
// connection may have dropped between the coordinator's decision and here.
func (h *Hub) EmitTo(connID, event string, data any) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c != nil {
		c.Send(event, data)
	}
}

// EmitToRoom implements session.Transport.
func (h *Hub) EmitToRoom(roomID, event string, data any) {
	h.deliverLocal(roomID, "", event, data)
	h.publish(roomID, event, data)
}

// EmitToRoomExcept implements session.Transport. The excluded sender is by
// definition local, so the bus copy goes out unfiltered.
func (h *Hub) EmitToRoomExcept(roomID, exceptConnID, event string, data any) {
	h.deliverLocal(roomID, exceptConnID, event, data)
	h.publish(roomID, event, data)
}

func (h *Hub) deliverLocal(roomID, exceptConnID, event string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[roomID] {
		if id == exceptConnID {
			continue
		}
		c.Send(event, data)
	}
}

func (h *Hub) publish(roomID, event string, data any) {
	if h.bus == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := h.bus.Publish(context.Background(), BusMessage{RoomID: roomID, Event: event, Data: raw}); err != nil {
		h.log.Error("bus.publish", "room", roomID, "event", event, "err", err)
	}
}
