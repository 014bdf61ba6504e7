package internal

import (
	"sort"
	"sync"

	"roomshare/internal/wire"
)

// DefaultRoom exists from startup in both authorities.
const DefaultRoom = "general"

// Hub is the TCP-side room registry. Every read-modify-write of rooms, files
// and memberships happens under one lock.
type Hub struct {
	mutex sync.RWMutex
	rooms map[string]*Room
}

// NewHub builds a registry seeded with the default room.
func NewHub() *Hub {
	hub := &Hub{rooms: make(map[string]*Room)}
	hub.rooms[DefaultRoom] = newRoom(DefaultRoom)
	return hub
}

// Exists reports whether a room with the given name is registered.
func (hub *Hub) Exists(name string) bool {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	_, ok := hub.rooms[name]
	return ok
}

// CreateRoom registers an empty room.
func (hub *Hub) CreateRoom(name string) error {
	if name == "" {
		return ErrRoomExists
	}
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if _, exists := hub.rooms[name]; exists {
		return ErrRoomExists
	}
	hub.rooms[name] = newRoom(name)
	return nil
}

// RoomNames lists every registered room.
func (hub *Hub) RoomNames() []string {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	names := make([]string, 0, len(hub.rooms))
	for name := range hub.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Join moves sessionID from room `from` (may be empty) into room `to` and
// returns the target room's file names. Nothing changes when `to` is unknown.
func (hub *Hub) Join(sessionID, from, to string) ([]string, error) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	target, ok := hub.rooms[to]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if previous, ok := hub.rooms[from]; ok && from != "" {
		delete(previous.sessions, sessionID)
	}
	target.sessions[sessionID] = struct{}{}
	return target.fileNames(), nil
}

// Leave drops sessionID from a room's membership set.
func (hub *Hub) Leave(sessionID, room string) {
	if room == "" {
		return
	}
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if r, ok := hub.rooms[room]; ok {
		delete(r.sessions, sessionID)
	}
}

// Members returns the session ids currently joined to a room.
func (hub *Hub) Members(room string) []string {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	r, ok := hub.rooms[room]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Files lists file metadata for a room.
func (hub *Hub) Files(room string) ([]wire.FileInfo, error) {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	r, ok := hub.rooms[room]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.fileInfos(), nil
}

// File looks up one entry in a room.
func (hub *Hub) File(room, filename string) (FileEntry, error) {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	r, ok := hub.rooms[room]
	if !ok {
		return FileEntry{}, ErrRoomNotFound
	}
	entry, ok := r.files[filename]
	if !ok {
		return FileEntry{}, ErrFileNotFound
	}
	return entry, nil
}

// PutFile records or replaces a file entry. Last write wins.
func (hub *Hub) PutFile(room string, entry FileEntry) error {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	r, ok := hub.rooms[room]
	if !ok {
		return ErrRoomNotFound
	}
	r.files[entry.Filename] = entry
	return nil
}

// Summaries snapshots every room for reporting.
func (hub *Hub) Summaries() []RoomSummary {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	out := make([]RoomSummary, 0, len(hub.rooms))
	for _, r := range hub.rooms {
		out = append(out, RoomSummary{
			Name:      r.name,
			Members:   len(r.sessions),
			Files:     len(r.files),
			CreatedAt: r.created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
