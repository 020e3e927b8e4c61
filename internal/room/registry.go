// Package room provides session-scoped rooms that fan uploaded pages
// and evaluation results out to connected viewers.
package room

import (
	"log/slog"
	"sync"
)

// Event is a named payload delivered to every viewer in a room.
type Event struct {
	Name string
	Data any
}

// Subscriber receives events for the rooms it has joined. A
// subscription exists only while its transport connection is open and
// carries no identity beyond room membership.
type Subscriber interface {
	// Send delivers one event. Implementations must be safe for
	// concurrent use. A returned error affects that delivery only.
	Send(event Event) error

	// Close terminates the underlying connection.
	Close(reason string) error
}

// Registry maps session ids to the set of connected viewer
// subscriptions. Session ids are compared byte-for-byte: ids differing
// in case or whitespace address distinct, non-communicating rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Subscriber]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[Subscriber]struct{})}
}

// Join adds sub to the room for sessionID, creating the room lazily.
// Joining the same room twice is a no-op. Rooms have no size limit.
func (r *Registry) Join(sessionID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[sessionID]; !ok {
		r.rooms[sessionID] = make(map[Subscriber]struct{})
	}
	r.rooms[sessionID][sub] = struct{}{}
	slog.Info("Viewer joined room", "session_id", sessionID, "viewers", len(r.rooms[sessionID]))
}

// Leave removes sub from every room it has joined. It never errors,
// even if the subscriber is already gone; the transport calls it on
// disconnect.
func (r *Registry) Leave(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, members := range r.rooms {
		if _, ok := members[sub]; ok {
			delete(members, sub)
			if len(members) == 0 {
				delete(r.rooms, sessionID)
			}
			slog.Info("Viewer left room", "session_id", sessionID)
		}
	}
}

// Broadcast delivers event to every subscriber currently in the room
// for sessionID. An empty or absent room drops the event with no error
// and no buffering: there is no replay for late joiners. Consecutive
// broadcasts from one goroutine reach each subscriber in call order.
func (r *Registry) Broadcast(sessionID string, event Event) {
	r.mu.RLock()
	members := make([]Subscriber, 0, len(r.rooms[sessionID]))
	for sub := range r.rooms[sessionID] {
		members = append(members, sub)
	}
	r.mu.RUnlock()

	if len(members) == 0 {
		slog.Debug("Broadcast to empty room dropped", "session_id", sessionID, "event", event.Name)
		return
	}

	for _, sub := range members {
		if err := sub.Send(event); err != nil {
			// A dead viewer never fails an upload; the read loop will
			// notice the broken connection and leave the room.
			slog.Debug("Broadcast write failed", "session_id", sessionID, "event", event.Name, "error", err)
		}
	}
}

// Viewers returns the current number of subscribers in a room.
func (r *Registry) Viewers(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[sessionID])
}

// CloseRoom disconnects every subscriber in the room for sessionID and
// removes the room. Closing an absent room is a no-op.
func (r *Registry) CloseRoom(sessionID, reason string) {
	r.mu.Lock()
	members := r.rooms[sessionID]
	delete(r.rooms, sessionID)
	r.mu.Unlock()

	for sub := range members {
		_ = sub.Close(reason)
	}
	if len(members) > 0 {
		slog.Info("Room closed", "session_id", sessionID, "viewers", len(members), "reason", reason)
	}
}
