// Package history persists chat sessions per agent. Live sessions
// append one user/assistant message pair per completed turn; the
// store keeps those pairs atomic so a transcript never shows half a
// turn.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("chat session not found")
	// ErrInvalidID is returned for empty session IDs.
	ErrInvalidID = errors.New("invalid chat session id")
)

// titleLimit caps a derived session title, ellipsis included.
const titleLimit = 30

// Store is the chat history backend.
type Store interface {
	// Create registers a new empty session.
	Create(ctx context.Context, agent types.AgentName, session types.ChatSession) error

	// Get returns one session.
	Get(ctx context.Context, agent types.AgentName, id string) (types.ChatSession, error)

	// List returns an agent's sessions, newest first.
	List(ctx context.Context, agent types.AgentName) ([]types.ChatSession, error)

	// AppendPair appends one completed turn atomically. The first
	// pair also titles the session from the user's words.
	AppendPair(ctx context.Context, agent types.AgentName, id string, user, ai types.Message) error

	// Delete removes a session.
	Delete(ctx context.Context, agent types.AgentName, id string) error
}

// NewSession builds an empty untitled session.
func NewSession() types.ChatSession {
	return types.ChatSession{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

// DeriveTitle shortens the first user message into a session title of
// at most titleLimit characters including the trailing ellipsis.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit-3]) + "..."
	}
	return text
}

// applyPair mutates a session in place with one completed turn. Only
// real transcribed speech titles a session; a visual-only turn leaves
// it untitled so a later spoken turn can.
func applyPair(s *types.ChatSession, user, ai types.Message) {
	if s.Title == "" && user.Text != "" && user.Text != types.VisualInputPlaceholder {
		s.Title = DeriveTitle(user.Text)
	}
	s.Messages = append(s.Messages, user, ai)
}
