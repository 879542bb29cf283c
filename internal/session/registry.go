package session

import (
	"encoding/json"
	"sync"
)

// DefaultDisplayName is used when a client logs in without a name.
const DefaultDisplayName = "Player"

// Conn is the server side of one live client connection.
type Conn interface {
	ID() string
	// Emit queues a named event for delivery. It must not block.
	Emit(event string, payload any) error
	Alive() bool
}

// Session is the server-side record of one logged-in connection.
type Session struct {
	Conn        Conn
	DisplayName string
	Selection   json.RawMessage // chosen at findMatch, nil until then
	RoomID      string
	Rating      int
	Wins        int
}

// ID returns the connection identity the session is keyed by.
func (s *Session) ID() string {
	return s.Conn.ID()
}

// Registry maps live connections to their sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates the session for conn, or updates it in place when conn is already
// logged in. An existing session keeps its selection and room so a re-login mid-match
// does not orphan the room.
func (r *Registry) Register(conn Conn, displayName string, rating, wins int) *Session {
	if displayName == "" {
		displayName = DefaultDisplayName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[conn.ID()]; ok {
		s.DisplayName = displayName
		s.Rating = rating
		s.Wins = wins
		return s
	}
	s := &Session{
		Conn:        conn,
		DisplayName: displayName,
		Rating:      rating,
		Wins:        wins,
	}
	r.sessions[conn.ID()] = s
	return s
}

func (r *Registry) Lookup(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Remove deletes the session for connID. Unknown ids are ignored.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
