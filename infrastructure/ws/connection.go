package ws

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/auth"
	"chat-relay/sink"
)

// Connection lifecycle. Disconnected is terminal and irreversible; a new
// connection re-authenticates and re-joins from scratch.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

// InboundFrame is the wire shape of a client command. AckID is optional;
// when present the client wants an acknowledgment for this command.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId,omitempty"`
}

// Connection owns one upgraded socket: its resolved identity, its delivery
// sink, and its read/write pumps. The registry only holds a non-owning
// reference to the sink.
type Connection struct {
	ID       string
	Identity auth.Identity

	conn  *websocket.Conn
	sink  *sink.WsSink
	state atomic.Int32
	log   *slog.Logger
}

func newConnection(id string, identity auth.Identity, conn *websocket.Conn,
	snk *sink.WsSink, log *slog.Logger) *Connection {
	c := &Connection{
		ID:       id,
		Identity: identity,
		conn:     conn,
		sink:     snk,
		log:      log,
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// transition moves the lifecycle forward. Disconnected wins every race and
// can never be left.
func (c *Connection) transition(next State) {
	for {
		current := c.state.Load()
		if State(current) == StateDisconnected {
			return
		}
		if c.state.CompareAndSwap(current, int32(next)) {
			return
		}
	}
}

// readLoop decodes inbound frames and hands them to the dispatcher until
// the client goes away. Each frame is dispatched on its own goroutine:
// commands from the same connection may be in flight concurrently, races
// are resolved by the store's per-row atomicity.
func (c *Connection) readLoop(dispatch func(*Connection, InboundFrame)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected close", "conn_id", c.ID, "error", err)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug("Dropping unparseable frame", "conn_id", c.ID, "error", err)
			continue
		}

		go dispatch(c, frame)
	}
}

// writePump drains the sink buffer into the socket and keeps the
// connection alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.sink.Out():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.sink.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
