package checks

import (
	"context"
	"fmt"

	"github.com/charlesng35/proctorrelay/internal/monitoring"
	"github.com/charlesng35/proctorrelay/internal/realtime"
)

// RelayHub exposes what the relay probe inspects.
type RelayHub interface {
	Accepting() bool
	Directory() *realtime.Directory
}

// Relays reports whether the hub still accepts sessions and summarises live rooms.
func Relays(hub RelayHub) monitoring.Check {
	return monitoring.NewCheck("relays", func(context.Context) monitoring.ProbeResult {
		if hub == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "relay hub not configured"}
		}
		if !hub.Accepting() {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "relay hub is shutting down"}
		}

		stats := hub.Directory().Stats()
		return monitoring.ProbeResult{
			Status:  monitoring.StatusUp,
			Details: fmt.Sprintf("%d rooms, %d proctors, %d members", stats.Rooms, stats.Proctors, stats.Members),
		}
	})
}
