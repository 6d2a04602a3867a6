package session

import "sync"

// Defaults seeded into every freshly created room.
const (
	DefaultCode     = `console.log("Hello, World!");`
	DefaultLanguage = "javascript"
)

// RoomState is the authoritative shared state of one room. Members converge
// on these values through the coordinator's fan-out; last write wins.
type RoomState struct {
	Code           string
	Language       string
	TerminalOutput string
}

// Store owns all room state and membership for the life of the process.
// Rooms are created lazily on first join and evicted as soon as the last
// member leaves; nothing is ever persisted.
//
// Mutations addressed to a room that does not exist are silently dropped —
// callers race with eviction and a stale edit to a dead room is not an error.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*RoomState
	members map[string]map[string]struct{} // roomID -> set of connIDs
}

func NewStore() *Store {
	return &Store{
		rooms:   map[string]*RoomState{},
		members: map[string]map[string]struct{}{},
	}
}

// EnsureRoom returns the room's state, creating it with defaults if this is
// the first time the id has been seen. Idempotent; created reports whether
// this call brought the room into existence.
func (s *Store) EnsureRoom(roomID string) (state RoomState, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := s.rooms[roomID]
	if rm == nil {
		rm = &RoomState{Code: DefaultCode, Language: DefaultLanguage}
		s.rooms[roomID] = rm
		s.members[roomID] = map[string]struct{}{}
		created = true
	}
	return *rm, created
}

// GetRoom returns a copy of the room's state, or ok=false if it was never
// created or has been evicted.
func (s *Store) GetRoom(roomID string) (RoomState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rm := s.rooms[roomID]
	if rm == nil {
		return RoomState{}, false
	}
	return *rm, true
}

// SetCode overwrites the room's document text.
func (s *Store) SetCode(roomID, code string) {
	s.mu.Lock()
	if rm := s.rooms[roomID]; rm != nil {
		rm.Code = code
	}
	s.mu.Unlock()
}

// SetLanguage overwrites the room's language tag.
func (s *Store) SetLanguage(roomID, language string) {
	s.mu.Lock()
	if rm := s.rooms[roomID]; rm != nil {
		rm.Language = language
	}
	s.mu.Unlock()
}

// SetOutput records the latest execution output.
func (s *Store) SetOutput(roomID, output string) {
	s.mu.Lock()
	if rm := s.rooms[roomID]; rm != nil {
		rm.TerminalOutput = output
	}
	s.mu.Unlock()
}

// AddMember adds a connection to the room's member set. Adding the same
// connection twice is a no-op, so re-join races cannot duplicate a member.
func (s *Store) AddMember(roomID, connID string) {
	s.mu.Lock()
	if set := s.members[roomID]; set != nil {
		set[connID] = struct{}{}
	}
	s.mu.Unlock()
}

// RemoveMember drops a connection from the room. When the last member
// leaves, the room and its state are evicted entirely; evicted reports
// whether that happened on this call.
func (s *Store) RemoveMember(roomID, connID string) (evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.members[roomID]
	if set == nil {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.members, roomID)
		delete(s.rooms, roomID)
		return true
	}
	return false
}

// MembersOf returns the connection ids currently in the room.
func (s *Store) MembersOf(roomID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.members[roomID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// RoomsOf returns every room the connection is currently a member of.
// Used by the disconnect path; a tab normally sits in exactly one room.
func (s *Store) RoomsOf(connID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for roomID, set := range s.members {
		if _, ok := set[connID]; ok {
			out = append(out, roomID)
		}
	}
	return out
}
