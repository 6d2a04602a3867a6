package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/mon1909/Collaborative-Coding/internal/session"
)

type Conn struct {
	id  string
	ws  *websocket.Conn
	out chan []byte
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps a socket and assigns it the opaque connection id the rest
// of the protocol addresses it by.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		id:  uuid.NewString(),
		ws:  ws,
		out: make(chan []byte, 256),
	}
}

func (c *Conn) ID() string { return c.id }

// Read blocks until the next parseable event envelope.
// Returns false when the connection is closed.
func (c *Conn) Read(ctx context.Context) (session.Envelope, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return session.Envelope{}, false
		}
		if typ != websocket.MessageText {
			continue
		}
		var env session.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			continue // garbage frames are dropped, not fatal
		}
		return env, true
	}
}

// Send marshals an envelope and enqueues it without blocking; a client too
// slow to drain its buffer loses frames rather than stalling the room.
func (c *Conn) Send(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	b, err := json.Marshal(session.Envelope{Event: event, Data: raw})
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default: // skip if send buffer is full
	}
}

// WriteLoop drains outbound messages and keeps the socket alive with
// periodic pings. Exits when ctx is cancelled.
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the WS connection normally
func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
