// Package registry tracks which identities hold a live transport session and
// which rooms each session has joined.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/model"
)

var ErrUnknownSession = errors.New("unknown session")

type session struct {
	identity model.Identity
	rooms    map[string]struct{}
}

type Stats struct {
	Authenticated int `json:"authenticatedCount"`
	Guests        int `json:"guestCount"`
	Sessions      int `json:"totalSessions"`
}

// UnregisterResult describes what a disconnect removed.
type UnregisterResult struct {
	Identity model.Identity
	Found    bool
	// WentOffline is true when the authenticated forward entry pointed at the
	// removed session, so the identity no longer has a live session.
	WentOffline bool
}

type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]string
	sessions map[string]*session
	rooms    map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		byUser:   make(map[string]string),
		sessions: make(map[string]*session),
		rooms:    make(map[string]map[string]struct{}),
	}
}

// Register records handle as the live session of id. For an authenticated
// identity any previous handle is superseded and returned; it is not closed.
func (r *Registry) Register(id model.Identity, handle string) (superseded string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[handle] = &session{identity: id, rooms: make(map[string]struct{})}
	if id.IsGuest() {
		return ""
	}

	if prev, ok := r.byUser[id.ID]; ok && prev != handle {
		superseded = prev
	}
	r.byUser[id.ID] = handle
	return superseded
}

func (r *Registry) Unregister(handle string) UnregisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return UnregisterResult{}
	}

	for room := range s.rooms {
		r.removeMember(room, handle)
	}
	delete(r.sessions, handle)

	result := UnregisterResult{Identity: s.identity, Found: true}
	if !s.identity.IsGuest() && r.byUser[s.identity.ID] == handle {
		delete(r.byUser, s.identity.ID)
		result.WentOffline = true
	}
	return result
}

// LookupHandle returns the live session of an authenticated identity. Guests
// are never reverse-lookupable.
func (r *Registry) LookupHandle(identityID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.byUser[identityID]
	return handle, ok
}

func (r *Registry) LookupIdentity(handle string) (model.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[handle]
	if !ok {
		return model.Identity{}, false
	}
	return s.identity, true
}

func (r *Registry) ListAuthenticated() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	guests := 0
	for _, s := range r.sessions {
		if s.identity.IsGuest() {
			guests++
		}
	}
	return Stats{
		Authenticated: len(r.byUser),
		Guests:        guests,
		Sessions:      len(r.sessions),
	}
}

// JoinRoom adds handle to room. Unknown room names are ignored with a
// warning and report joined=false.
func (r *Registry) JoinRoom(handle, room string) (bool, error) {
	if !model.Category(room).ValidFilter() {
		log.Warn().Str("sessionId", handle).Str("room", room).Msg("ignoring join for unknown room")
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return false, ErrUnknownSession
	}

	s.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[handle] = struct{}{}
	return true, nil
}

func (r *Registry) LeaveRoom(handle, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return ErrUnknownSession
	}
	delete(s.rooms, room)
	r.removeMember(room, handle)
	return nil
}

func (r *Registry) removeMember(room, handle string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, handle)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) RoomMembers(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	handles := make([]string, 0, len(members))
	for h := range members {
		handles = append(handles, h)
	}
	return handles
}

func (r *Registry) Rooms(handle string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[handle]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Handles returns every registered session, including superseded ones that
// are still attached.
func (r *Registry) Handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]string, 0, len(r.sessions))
	for h := range r.sessions {
		handles = append(handles, h)
	}
	return handles
}
