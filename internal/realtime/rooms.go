package realtime

import "sync"

// Rooms tracks transient room subscriptions of connected users. Nothing here is
// persisted; memberships are rebuilt on every connect.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	joined  map[string]map[string]struct{}
}

// NewRooms constructs an empty membership index.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join subscribes userID to room.
func (r *Rooms) Join(room, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[room]; !ok {
		r.members[room] = make(map[string]struct{})
	}
	r.members[room][userID] = struct{}{}

	if _, ok := r.joined[userID]; !ok {
		r.joined[userID] = make(map[string]struct{})
	}
	r.joined[userID][room] = struct{}{}
}

// Leave unsubscribes userID from room.
func (r *Rooms) Leave(room, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, userID)
}

// LeaveAll drops every subscription held by userID.
func (r *Rooms) LeaveAll(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.joined[userID] {
		r.leaveLocked(room, userID)
	}
	delete(r.joined, userID)
}

func (r *Rooms) leaveLocked(room, userID string) {
	if members, ok := r.members[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.members, room)
		}
	}
	if rooms, ok := r.joined[userID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, userID)
		}
	}
}

// Members returns the users subscribed to room.
func (r *Rooms) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members[room]))
	for userID := range r.members[room] {
		out = append(out, userID)
	}
	return out
}

// IsMember reports whether userID is subscribed to room.
func (r *Rooms) IsMember(room, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][userID]
	return ok
}

// RoomsOf returns the rooms userID is subscribed to.
func (r *Rooms) RoomsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[userID]))
	for room := range r.joined[userID] {
		out = append(out, room)
	}
	return out
}
