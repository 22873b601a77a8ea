package history

import (
	"context"
	"sort"
	"sync"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

// MemoryStore keeps chat history in process memory. Sessions are
// deep-copied on the way in and out so callers can never alias the
// stored state. Suitable for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[types.AgentName]map[string]types.ChatSession
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[types.AgentName]map[string]types.ChatSession),
	}
}

// Create registers a new session.
func (s *MemoryStore) Create(_ context.Context, agent types.AgentName, session types.ChatSession) error {
	if session.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.sessions[agent]
	if !ok {
		byID = make(map[string]types.ChatSession)
		s.sessions[agent] = byID
	}
	byID[session.ID] = session.Clone()
	return nil
}

// Get returns a deep copy of one session.
func (s *MemoryStore) Get(_ context.Context, agent types.AgentName, id string) (types.ChatSession, error) {
	if id == "" {
		return types.ChatSession{}, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[agent][id]
	if !ok {
		return types.ChatSession{}, ErrNotFound
	}
	return sess.Clone(), nil
}

// List returns an agent's sessions, newest first.
func (s *MemoryStore) List(_ context.Context, agent types.AgentName) ([]types.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ChatSession, 0, len(s.sessions[agent]))
	for _, sess := range s.sessions[agent] {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AppendPair appends one completed turn atomically.
func (s *MemoryStore) AppendPair(_ context.Context, agent types.AgentName, id string, user, ai types.Message) error {
	if id == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[agent][id]
	if !ok {
		return ErrNotFound
	}
	applyPair(&sess, user.Clone(), ai.Clone())
	s.sessions[agent][id] = sess
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(_ context.Context, agent types.AgentName, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[agent][id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions[agent], id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
