// Package ws is the transport surface of the relay: the WebSocket upgrade
// at /ws, the health endpoints, and the per-connection lifecycle from
// handshake to teardown.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/services"
	"chat-relay/sink"
)

const ServiceName = "chat-relay"

type Server struct {
	log        *slog.Logger
	resolver   *auth.Resolver
	service    *services.ChatService
	registry   contract.Registry
	store      contract.Store
	stats      *observability.Stats
	upgrader   websocket.Upgrader
	sinkBuffer int
}

func NewServer(log *slog.Logger, resolver *auth.Resolver, service *services.ChatService,
	registry contract.Registry, store contract.Store, allowedOrigin string, sinkBuffer int) *Server {
	return &Server{
		log:      log,
		resolver: resolver,
		service:  service,
		registry: registry,
		store:    store,
		stats:    observability.NewStats(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
		sinkBuffer: sinkBuffer,
	}
}

// Routes exposes the WebSocket endpoint and the unauthenticated health
// surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleHealth)
	return mux
}

type healthPayload struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Timestamp time.Time              `json:"timestamp"`
	Stats     observability.Snapshot `json:"stats"`
}

// handleHealth serves the liveness payload on / and /health; any other
// path gets a generic running-status text response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" || r.URL.Path == "/health" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthPayload{
			Status:    "ok",
			Service:   ServiceName,
			Timestamp: time.Now().UTC(),
			Stats:     s.stats.Snapshot(),
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "%s is running", ServiceName)
}

// handleWebSocket gates the handshake on the identity resolver: a missing
// or invalid token is refused with 401 before any connection state exists.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "WebSocket endpoint only accepts GET", http.StatusMethodNotAllowed)
		return
	}

	identity, err := s.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	connection := newConnection(uuid.NewString(), identity, conn,
		sink.NewWsSink(s.log, s.sinkBuffer), s.log)
	s.stats.IncrConnectionsOpened()
	s.log.Info("Connection authenticated",
		"conn_id", connection.ID, "user_id", identity.UserID, "role", identity.Role)

	go s.run(connection)
}

// run drives one connection from Authenticated to its terminal state.
func (s *Server) run(c *Connection) {
	defer s.teardown(c)

	s.registry.Register(c.ID, c.sink)
	s.autoJoin(c)
	c.transition(StateActive)

	go c.writePump()
	c.readLoop(s.dispatch)
}

// autoJoin subscribes the connection to every conversation the user is a
// participant of, sourced from the store once at connect time. Best
// effort: a failure is logged, not fatal to the connection.
func (s *Server) autoJoin(c *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rooms, err := s.store.ConversationsOf(ctx, c.Identity.UserID)
	if err != nil {
		s.log.Warn("Auto-join failed, continuing without rooms",
			"conn_id", c.ID, "user_id", c.Identity.UserID, "error", err)
		return
	}
	for _, roomID := range rooms {
		s.registry.Join(c.ID, roomID)
	}
	s.log.Debug("Auto-joined rooms", "conn_id", c.ID, "count", len(rooms))
}

func (s *Server) teardown(c *Connection) {
	c.transition(StateDisconnected)
	s.registry.Leave(c.ID)
	c.sink.Close()
	_ = c.conn.Close()
	s.stats.IncrConnectionsClosed()
	s.log.Info("Connection closed", "conn_id", c.ID, "user_id", c.Identity.UserID)
}

// dispatch decodes and routes one inbound frame. Handler results are
// mapped uniformly: an acknowledgment when the client asked for one, plus
// a standalone error event where the command calls for it.
func (s *Server) dispatch(c *Connection, frame InboundFrame) {
	ctx := context.Background()
	s.stats.IncrFramesDispatched()

	cmd, err := domain.DecodeCommand(frame.Event, frame.Data)
	if err != nil {
		s.finish(c, frame, nil, err)
		return
	}

	caller := services.Caller{
		ConnID:      c.ID,
		UserID:      c.Identity.UserID,
		DisplayName: c.Identity.DisplayName,
		Role:        c.Identity.Role,
	}

	var data any
	switch command := cmd.(type) {
	case domain.SendMessageCommand:
		data, err = s.service.SendMessage(ctx, caller, command)
	case domain.VotePollCommand:
		data, err = s.service.VotePoll(ctx, caller, command)
	case domain.EditMessageCommand:
		data, err = s.service.EditMessage(ctx, caller, command)
	case domain.DeleteMessageCommand:
		err = s.service.DeleteMessage(ctx, caller, command)
	case domain.ReactCommand:
		err = s.service.React(ctx, caller, command)
	case domain.MarkReadCommand:
		data, err = s.service.MarkRead(ctx, caller, command)
	case domain.TypingCommand:
		if frame.Event == domain.CmdTypingStart {
			err = s.service.TypingStart(ctx, caller, command)
		} else {
			err = s.service.TypingStop(ctx, caller, command)
		}
	case domain.JoinCommand:
		s.service.Join(ctx, caller, command)
	}

	s.finish(c, frame, data, err)
}

// acknowledged lists the commands whose callers get an ack; the rest are
// fire-and-forget.
func acknowledged(eventName string) bool {
	switch eventName {
	case domain.CmdSendMessage, domain.CmdVotePoll, domain.CmdEditMessage,
		domain.CmdDeleteMessage, domain.CmdMarkRead:
		return true
	}
	return false
}

type ackPayload struct {
	AckID string `json:"ackId"`
	errors.Ack
}

func (s *Server) finish(c *Connection, frame InboundFrame, data any, err error) {
	if err != nil {
		s.stats.IncrCommandsRejected()
		s.log.Warn("Command rejected",
			"conn_id", c.ID, "event", frame.Event, "error", err)
	}

	ack := errors.MapToAck(err, data)

	if frame.AckID != "" && acknowledged(frame.Event) {
		if pushErr := c.sink.Push(sink.Frame{
			Event: "ack",
			Data:  ackPayload{AckID: frame.AckID, Ack: ack},
		}); pushErr != nil {
			s.log.Debug("Ack delivery failed", "conn_id", c.ID, "error", pushErr)
		}
	}

	// Edit failures are additionally pushed as a standalone error event,
	// so clients not tracking the ack still roll back optimistic edits.
	if err != nil && frame.Event == domain.CmdEditMessage {
		_ = c.sink.Push(sink.Frame{
			Event: "error",
			Data: event.Error{
				Event:   frame.Event,
				Code:    ack.Code,
				Message: ack.Message,
			},
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
