// Package observability tracks lightweight process counters for the health
// surface. Counters are atomic; a snapshot is assembled on demand, there is
// no background collection loop.
package observability

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// Stats aggregates relay-level counters. Fields are written with atomic
// operations only.
type Stats struct {
	log     *slog.Logger
	started time.Time

	ConnectionsOpened uint64
	ConnectionsClosed uint64
	FramesDispatched  uint64
	CommandsRejected  uint64
}

func NewStats(log *slog.Logger) *Stats {
	return &Stats{log: log, started: time.Now().UTC()}
}

func (s *Stats) IncrConnectionsOpened() {
	atomic.AddUint64(&s.ConnectionsOpened, 1)
}

func (s *Stats) IncrConnectionsClosed() {
	atomic.AddUint64(&s.ConnectionsClosed, 1)
}

func (s *Stats) IncrFramesDispatched() {
	atomic.AddUint64(&s.FramesDispatched, 1)
}

func (s *Stats) IncrCommandsRejected() {
	atomic.AddUint64(&s.CommandsRejected, 1)
}

// Snapshot is the health endpoint's view of the relay.
type Snapshot struct {
	UptimeSeconds     float64 `json:"uptimeSeconds"`
	ActiveConnections uint64  `json:"activeConnections"`
	ConnectionsOpened uint64  `json:"connectionsOpened"`
	FramesDispatched  uint64  `json:"framesDispatched"`
	CommandsRejected  uint64  `json:"commandsRejected"`
	AllocMemMb        uint64  `json:"allocMemMb"`
	NumGC             uint32  `json:"numGc"`
	Goroutines        int     `json:"goroutines"`
}

func (s *Stats) Snapshot() Snapshot {
	opened := atomic.LoadUint64(&s.ConnectionsOpened)
	closed := atomic.LoadUint64(&s.ConnectionsClosed)

	var active uint64
	if opened > closed {
		active = opened - closed
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snapshot := Snapshot{
		UptimeSeconds:     time.Since(s.started).Seconds(),
		ActiveConnections: active,
		ConnectionsOpened: opened,
		FramesDispatched:  atomic.LoadUint64(&s.FramesDispatched),
		CommandsRejected:  atomic.LoadUint64(&s.CommandsRejected),
		AllocMemMb:        m.Alloc / 1024 / 1024,
		NumGC:             m.NumGC,
		Goroutines:        runtime.NumGoroutine(),
	}

	s.log.Debug("Stats snapshot",
		"active_connections", snapshot.ActiveConnections,
		"frames_dispatched", snapshot.FramesDispatched,
		"mem_mb", snapshot.AllocMemMb,
	)
	return snapshot
}
