package realtime

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/proctorrelay/pkg/logger"
)

// Directory maps room keys to relays. A relay is created on first reference and is
// kept for the lifetime of the process.
type Directory struct {
	mu     sync.Mutex
	relays map[string]*Relay
}

// DirectoryStats summarises the rooms held by a Directory.
type DirectoryStats struct {
	Rooms      int `json:"rooms"`
	Proctors   int `json:"proctors"`
	Members    int `json:"members"`
	EmptyRooms int `json:"empty_rooms"`
}

// NewDirectory constructs an empty room directory.
func NewDirectory() *Directory {
	return &Directory{relays: make(map[string]*Relay)}
}

// GetOrCreate returns the relay for roomID, constructing it under the directory lock
// when the key has not been seen before. Concurrent callers always observe the same relay.
func (d *Directory) GetOrCreate(roomID string) *Relay {
	d.mu.Lock()
	relay, ok := d.relays[roomID]
	if !ok {
		relay = newRelay(roomID)
		d.relays[roomID] = relay
	}
	d.mu.Unlock()

	if !ok {
		logger.WithModule("realtime").Info("relay created", zap.String("room", roomID))
	}
	return relay
}

// Lookup returns the relay for roomID without creating one.
func (d *Directory) Lookup(roomID string) (*Relay, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	relay, ok := d.relays[roomID]
	return relay, ok
}

// RoomIDs lists the known room keys in lexical order.
func (d *Directory) RoomIDs() []string {
	d.mu.Lock()
	ids := make([]string, 0, len(d.relays))
	for id := range d.relays {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Stats walks every relay and aggregates roster counts. Each relay is locked on its own,
// after the directory lock has been released.
func (d *Directory) Stats() DirectoryStats {
	d.mu.Lock()
	relays := make([]*Relay, 0, len(d.relays))
	for _, relay := range d.relays {
		relays = append(relays, relay)
	}
	d.mu.Unlock()

	stats := DirectoryStats{Rooms: len(relays)}
	for _, relay := range relays {
		snapshot := relay.Snapshot()
		if snapshot.HasProctor {
			stats.Proctors++
		}
		stats.Members += len(snapshot.MemberIDs)
		if !snapshot.HasProctor && len(snapshot.MemberIDs) == 0 {
			stats.EmptyRooms++
		}
	}
	return stats
}
