package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// Envelope is one fan-out unit: an event addressed to a room, optionally
// skipping the originating connection.
type Envelope struct {
	RoomID  string
	Exclude string // connection id to skip, empty delivers to all members
	Event   event.DomainEvent
}

// FanoutWorker drains the envelope channel and delivers each event to every
// current member sink of the addressed room.
//
// Delivery is best-effort with no ordering, durability, or retry guarantee.
// A slow or dead sink only loses its own copy; it never stalls the loop or
// the other members of the room.
type FanoutWorker struct {
	log         *slog.Logger
	registry    contract.Registry
	envelopes   <-chan Envelope
	sinkTimeout time.Duration
}

func NewFanoutWorker(log *slog.Logger, registry contract.Registry,
	envelopes <-chan Envelope, sinkTimeout time.Duration) *FanoutWorker {
	return &FanoutWorker{
		log:         log,
		registry:    registry,
		envelopes:   envelopes,
		sinkTimeout: sinkTimeout,
	}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fan-out")
			return nil
		case env, ok := <-w.envelopes:
			if !ok {
				return nil
			}
			w.Fanout(ctx, env)
		}
	}
}

// Fanout delivers one envelope to the room's membership snapshot.
func (w *FanoutWorker) Fanout(ctx context.Context, env Envelope) {
	sinks := w.registry.SinksForRoom(env.RoomID, env.Exclude)

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, env.Event); err != nil {
			w.log.Warn("Sink refused event",
				"room_id", env.RoomID,
				"event", env.Event.Name(),
				"error", err)
		}
		cancel()
	}
}
