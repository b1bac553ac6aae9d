// Package sink adapts delivery targets to the EventSink contract.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"chat-relay/domain/event"
)

// Frame is the outbound wire envelope.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// WsSink buffers outbound frames for one WebSocket connection. The write
// pump drains Out; Consume never blocks past its context, so one dead
// connection cannot stall a room broadcast.
type WsSink struct {
	log  *slog.Logger
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func NewWsSink(log *slog.Logger, buffer int) *WsSink {
	return &WsSink{
		log:  log,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Consume waits for buffer room up to the fan-out's per-sink timeout,
// then gives up so the broadcast loop moves on.
func (s *WsSink) Consume(ctx context.Context, e event.DomainEvent) error {
	payload, err := json.Marshal(Frame{Event: e.Name(), Data: e})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Name(), err)
	}

	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return fmt.Errorf("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push enqueues one frame, dropping it when the connection's buffer is
// full or the connection is gone.
func (s *WsSink) Push(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frame.Event, err)
	}

	select {
	case <-s.done:
		return fmt.Errorf("connection closed")
	default:
	}

	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return fmt.Errorf("connection closed")
	default:
		return fmt.Errorf("send buffer full, dropping %s", frame.Event)
	}
}

// Out is drained by the connection's write pump.
func (s *WsSink) Out() <-chan []byte {
	return s.out
}

// Close detaches the sink. Safe to call more than once; Consume calls
// racing a broadcast snapshot after teardown fail cleanly.
func (s *WsSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done signals the write pump that the sink was closed.
func (s *WsSink) Done() <-chan struct{} {
	return s.done
}
