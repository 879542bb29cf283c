package room

import (
	"sync"
	"time"

	"github.com/cheildo/duel-relay/internal/session"
)

// Role is the fixed side a participant plays for the lifetime of a room.
type Role string

const (
	RoleFirst  Role = "green"
	RoleSecond Role = "red"
)

// Participant is one side of a room.
type Participant struct {
	Session *session.Session
	Role    Role
}

// Room is an active match between exactly two sessions. Membership never changes after
// NewRoom returns.
type Room struct {
	ID           string
	Participants [2]Participant
	CreatedAt    time.Time
}

// ID derives the room identifier from the two connection identities, first player first.
func ID(firstConnID, secondConnID string) string {
	return "battle_" + firstConnID + "_" + secondConnID
}

func NewRoom(first, second *session.Session) *Room {
	return &Room{
		ID: ID(first.ID(), second.ID()),
		Participants: [2]Participant{
			{Session: first, Role: RoleFirst},
			{Session: second, Role: RoleSecond},
		},
		CreatedAt: time.Now(),
	}
}

// Has reports whether connID is a member of the room.
func (r *Room) Has(connID string) bool {
	for _, p := range r.Participants {
		if p.Session.ID() == connID {
			return true
		}
	}
	return false
}

// Opponent returns the participant that is not connID.
func (r *Room) Opponent(connID string) (Participant, bool) {
	switch connID {
	case r.Participants[0].Session.ID():
		return r.Participants[1], true
	case r.Participants[1].Session.ID():
		return r.Participants[0], true
	}
	return Participant{}, false
}

// PlayerIDs returns the member connection ids in role order.
func (r *Room) PlayerIDs() []string {
	return []string{r.Participants[0].Session.ID(), r.Participants[1].Session.ID()}
}

// Directory is the set of active rooms, indexed by id and by member.
type Directory struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	byMember map[string]string
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:    make(map[string]*Room),
		byMember: make(map[string]string),
	}
}

// Add joins both members to the room's broadcast group in one step.
func (d *Directory) Add(r *Room) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[r.ID] = r
	for _, p := range r.Participants {
		d.byMember[p.Session.ID()] = r.ID
	}
}

func (d *Directory) Get(id string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[id]
	return r, ok
}

// RoomOf returns the id of the room connID is in, or "".
func (d *Directory) RoomOf(connID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byMember[connID]
}

// Remove drops the room and its member index. It returns nil for unknown ids.
func (d *Directory) Remove(id string) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[id]
	if !ok {
		return nil
	}
	delete(d.rooms, id)
	for _, p := range r.Participants {
		if d.byMember[p.Session.ID()] == id {
			delete(d.byMember, p.Session.ID())
		}
	}
	return r
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}
