package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStats_Snapshot(t *testing.T) {
	req := require.New(t)
	stats := NewStats(slog.Default())

	for i := 0; i < 3; i++ {
		stats.IncrConnectionsOpened()
	}
	stats.IncrConnectionsClosed()
	stats.IncrFramesDispatched()
	stats.IncrFramesDispatched()
	stats.IncrCommandsRejected()

	snapshot := stats.Snapshot()

	req.Equal(uint64(3), snapshot.ConnectionsOpened)
	req.Equal(uint64(2), snapshot.ActiveConnections)
	req.Equal(uint64(2), snapshot.FramesDispatched)
	req.Equal(uint64(1), snapshot.CommandsRejected)
	req.Positive(snapshot.Goroutines)
}

func TestStats_ActiveNeverUnderflows(t *testing.T) {
	req := require.New(t)
	stats := NewStats(slog.Default())

	// A close counted before its open must not wrap around
	stats.IncrConnectionsClosed()

	req.Zero(stats.Snapshot().ActiveConnections)
}
