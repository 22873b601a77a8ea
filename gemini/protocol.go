// Package gemini implements the duplex live-session transport to the
// Gemini bidirectional generation endpoint: session setup, realtime
// media upload and the server event stream.
package gemini

import (
	"encoding/json"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/audio"
)

// DefaultModel is the native-audio live model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// DefaultHost is the production websocket host.
const DefaultHost = "wss://generativelanguage.googleapis.com"

// livePath is the bidirectional generation endpoint path.
const livePath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// MIMEPCMOutput is the MIME type of model speech chunks.
const MIMEPCMOutput = "audio/pcm;rate=24000"

// Blob is inline base64 media on the wire.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one piece of model content. Only the fields the live path
// uses are modeled.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is a sequence of parts.
type Content struct {
	Parts []Part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

// Schema describes a tool parameter in the subset of JSON Schema the
// API accepts.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Default     any                `json:"default,omitempty"`
}

// FunctionDeclaration advertises one callable tool to the model.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Tool groups function declarations in the setup message.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// Setup is the first client message on a live connection.
type Setup struct {
	Model                    string            `json:"model"`
	GenerationConfig         *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *Content          `json:"systemInstruction,omitempty"`
	Tools                    []Tool            `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig selects response modalities and voice.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects a prebuilt voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// VoiceConfig names a prebuilt voice.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// PrebuiltVoiceConfig is the inner voice selector.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// RealtimeInput carries one streamed media chunk upstream.
type RealtimeInput struct {
	Media *Blob `json:"media,omitempty"`
}

// FunctionResponse acknowledges one executed tool call.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ToolResponse carries tool acknowledgements upstream.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// clientMessage is the envelope for everything the client sends.
type clientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// FunctionCall is one tool invocation requested by the model.
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolCall groups the tool invocations of one server event.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// Transcription is a fragment of speech-to-text for either direction.
type Transcription struct {
	Text string `json:"text"`
}

// ServerContent is the model-turn portion of a server event. Fields
// are optional and may arrive in any combination.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

// ServerMessage is the envelope for everything the server sends.
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCall      `json:"toolCall,omitempty"`
}

// AudioChunks extracts the base64 PCM payloads of a model turn.
func (sc *ServerContent) AudioChunks() []string {
	if sc == nil || sc.ModelTurn == nil {
		return nil
	}
	var out []string
	for _, p := range sc.ModelTurn.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			out = append(out, p.InlineData.Data)
		}
	}
	return out
}

// NewAudioChunk frames a capture block as an upstream media blob.
func NewAudioChunk(samples []float32) Blob {
	return Blob{
		MIMEType: audio.MIMEPCMInput,
		Data:     audio.EncodeBlock(samples),
	}
}
