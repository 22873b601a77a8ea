// Package types defines the shared domain types for the live session
// engine: chat messages, image payloads, agent identities and the
// interactive overlay elements emitted by tool calls.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message ID prefixes distinguish transcripts produced by a live voice
// session from ordinary typed messages.
const (
	liveUserIDPrefix = "user-live-"
	liveAIIDPrefix   = "ai-live-"
)

// VisualInputPlaceholder stands in for the user side of a turn the
// model started from the video feed alone, without transcribed speech.
const VisualInputPlaceholder = "[Visual input]"

// ImagePayload is raw inline image data together with its MIME type,
// suitable for both persistence and API upload.
type ImagePayload struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mimeType"`
}

// Clone returns a deep copy of the payload.
func (p *ImagePayload) Clone() *ImagePayload {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Data = append([]byte(nil), p.Data...)
	return &cp
}

// Message is a single chat entry. Image carries a snapshot attached to
// the message, if any. InteractiveElements are overlay shapes the model
// referenced while speaking; they are kept for replay.
type Message struct {
	ID                  string               `json:"id"`
	Sender              Sender               `json:"sender"`
	Text                string               `json:"text"`
	Image               *ImagePayload        `json:"image,omitempty"`
	InteractiveElements []InteractiveElement `json:"interactiveElements,omitempty"`
	Timestamp           time.Time            `json:"timestamp"`
}

// NewLiveUserMessage builds a user-side transcript message for a live turn.
func NewLiveUserMessage(text string, image *ImagePayload) Message {
	return Message{
		ID:        liveUserIDPrefix + uuid.NewString(),
		Sender:    SenderUser,
		Text:      text,
		Image:     image,
		Timestamp: time.Now(),
	}
}

// NewLiveAIMessage builds a model-side transcript message for a live turn.
func NewLiveAIMessage(text string, elements []InteractiveElement) Message {
	return Message{
		ID:                  liveAIIDPrefix + uuid.NewString(),
		Sender:              SenderAI,
		Text:                text,
		InteractiveElements: elements,
		Timestamp:           time.Now(),
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	cp := m
	cp.Image = m.Image.Clone()
	cp.InteractiveElements = append([]InteractiveElement(nil), m.InteractiveElements...)
	return cp
}

// ChatSession is one stored conversation with a single agent.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the session.
func (s ChatSession) Clone() ChatSession {
	cp := s
	cp.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		cp.Messages[i] = m.Clone()
	}
	return cp
}

// FacingMode selects which camera to capture from.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Flipped returns the opposite camera.
func (f FacingMode) Flipped() FacingMode {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// Valid reports whether f names a known camera facing.
func (f FacingMode) Valid() bool {
	return f == FacingUser || f == FacingEnvironment
}

// AgentName identifies one of the built-in assistant personas.
type AgentName string

const (
	AgentAva          AgentName = "ava"
	AgentTutor        AgentName = "tutor"
	AgentAcademics    AgentName = "academics"
	AgentWork         AgentName = "work"
	AgentEntrepreneur AgentName = "entrepreneur"
)

// AgentNames lists every known agent in display order.
func AgentNames() []AgentName {
	return []AgentName{AgentAva, AgentTutor, AgentAcademics, AgentWork, AgentEntrepreneur}
}

// Valid reports whether n names a known agent.
func (n AgentName) Valid() bool {
	for _, a := range AgentNames() {
		if n == a {
			return true
		}
	}
	return false
}

// ParseAgentName validates a raw agent name.
func ParseAgentName(raw string) (AgentName, error) {
	n := AgentName(raw)
	if !n.Valid() {
		return "", fmt.Errorf("unknown agent %q", raw)
	}
	return n, nil
}
