package internal

import (
	"net"
	"sort"
	"sync"
	"time"
)

// PresenceEntry is one UDP registration. Values handed out by the registry
// are copies.
type PresenceEntry struct {
	ClientID string
	Username string
	Room     string
	Addr     *net.UDPAddr
	LastSeen time.Time
}

// PresenceRegistry tracks live UDP clients and which room each is shown in.
// One mutex guards both maps so membership and entries never disagree.
type PresenceRegistry struct {
	mu      sync.Mutex
	entries map[string]*PresenceEntry
	rooms   map[string]map[string]struct{}
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]*PresenceEntry),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register upserts an entry. A client re-registering into another room is
// moved out of its previous room's set.
func (p *PresenceRegistry) Register(entry PresenceEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.entries[entry.ClientID]; ok && prev.Room != entry.Room {
		p.leaveLocked(prev.ClientID, prev.Room)
	}
	stored := entry
	p.entries[entry.ClientID] = &stored
	p.joinLocked(entry.ClientID, entry.Room)
}

// Unregister removes the entry and its membership.
func (p *PresenceRegistry) Unregister(clientID string) (PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[clientID]
	if !ok {
		return PresenceEntry{}, false
	}
	p.leaveLocked(clientID, entry.Room)
	delete(p.entries, clientID)
	return *entry, true
}

// Touch refreshes the liveness timestamp of a known client.
func (p *PresenceRegistry) Touch(clientID string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[clientID]
	if ok {
		entry.LastSeen = now
	}
	return ok
}

// Move switches a known client to another room and returns the room it left.
func (p *PresenceRegistry) Move(clientID, room string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[clientID]
	if !ok {
		return "", false
	}
	old := entry.Room
	p.leaveLocked(clientID, old)
	entry.Room = room
	p.joinLocked(clientID, room)
	return old, true
}

func (p *PresenceRegistry) Lookup(clientID string) (PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[clientID]
	if !ok {
		return PresenceEntry{}, false
	}
	return *entry, true
}

// Users returns the sorted display names shown in a room.
func (p *PresenceRegistry) Users(room string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := make([]string, 0, len(p.rooms[room]))
	for id := range p.rooms[room] {
		if entry, ok := p.entries[id]; ok {
			users = append(users, entry.Username)
		}
	}
	sort.Strings(users)
	return users
}

// Targets snapshots a room's members for a broadcast.
func (p *PresenceRegistry) Targets(room string) []PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	targets := make([]PresenceEntry, 0, len(p.rooms[room]))
	for id := range p.rooms[room] {
		if entry, ok := p.entries[id]; ok {
			targets = append(targets, *entry)
		}
	}
	return targets
}

// Sweep evicts every entry silent for longer than window and returns them.
func (p *PresenceRegistry) Sweep(now time.Time, window time.Duration) []PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var evicted []PresenceEntry
	for id, entry := range p.entries {
		if now.Sub(entry.LastSeen) > window {
			evicted = append(evicted, *entry)
			p.leaveLocked(id, entry.Room)
			delete(p.entries, id)
		}
	}
	return evicted
}

// Clear drops every entry.
func (p *PresenceRegistry) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.entries)
	p.entries = make(map[string]*PresenceEntry)
	p.rooms = make(map[string]map[string]struct{})
	return n
}

func (p *PresenceRegistry) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *PresenceRegistry) joinLocked(clientID, room string) {
	members, ok := p.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		p.rooms[room] = members
	}
	members[clientID] = struct{}{}
}

func (p *PresenceRegistry) leaveLocked(clientID, room string) {
	members, ok := p.rooms[room]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(p.rooms, room)
	}
}
