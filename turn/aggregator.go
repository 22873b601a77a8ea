// Package turn folds the transcription stream of a live session into
// chat history entries. Fragments of user and model speech accumulate
// while a turn is in flight and become one user/assistant message pair
// when the server marks the turn complete.
package turn

import (
	"strings"
	"sync"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

// Pair is the transcript artifact of one completed turn.
type Pair struct {
	User types.Message
	AI   types.Message
}

// Aggregator accumulates transcription fragments for the turn in
// flight. It is idle until the first fragment arrives and returns to
// idle when the turn completes, so a duplicate completion signal
// yields nothing.
type Aggregator struct {
	mu           sync.Mutex
	accumulating bool
	input        strings.Builder
	output       strings.Builder
}

// AddInput appends a fragment of the user's transcribed speech.
func (a *Aggregator) AddInput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accumulating = true
	a.input.WriteString(text)
}

// AddOutput appends a fragment of the model's transcribed speech.
func (a *Aggregator) AddOutput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accumulating = true
	a.output.WriteString(text)
}

// Active reports whether a turn is in flight.
func (a *Aggregator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accumulating
}

// Complete closes the turn in flight and builds its message pair.
// snapshot, when not nil, provides a best-effort camera still for the
// user message. elements are the overlay shapes the model drew during
// the turn and attach to the assistant message.
//
// Complete returns nil when no turn is in flight or when both
// transcripts are blank after trimming.
func (a *Aggregator) Complete(snapshot func() *types.ImagePayload, elements []types.InteractiveElement) *Pair {
	a.mu.Lock()
	if !a.accumulating {
		a.mu.Unlock()
		return nil
	}
	input := strings.TrimSpace(a.input.String())
	output := strings.TrimSpace(a.output.String())
	a.input.Reset()
	a.output.Reset()
	a.accumulating = false
	a.mu.Unlock()

	if input == "" && output == "" {
		return nil
	}
	if input == "" {
		input = types.VisualInputPlaceholder
	}

	var image *types.ImagePayload
	if snapshot != nil {
		image = snapshot()
	}

	return &Pair{
		User: types.NewLiveUserMessage(input, image),
		AI:   types.NewLiveAIMessage(output, elements),
	}
}

// Reset drops any partial transcripts, used when the session ends
// mid-turn.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.Reset()
	a.output.Reset()
	a.accumulating = false
}
