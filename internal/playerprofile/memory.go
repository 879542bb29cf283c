package playerprofile

import (
	"context"
	"sync"
)

// memoryStore keeps profiles for the lifetime of the process.
type memoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
}

func NewMemoryStore() Store {
	return &memoryStore{profiles: make(map[string]Profile)}
}

func (m *memoryStore) GetByName(_ context.Context, username string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[username]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *memoryStore) CreateDefault(_ context.Context, username string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[username]
	if !ok {
		p = Profile{Username: username, Rating: DefaultRating, Wins: DefaultWins}
		m.profiles[username] = p
	}
	return &p, nil
}
