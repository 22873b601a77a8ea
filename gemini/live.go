package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/internal/wsstream"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/logger"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/media"
)

// TransportError reports a failure on the live connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config describes one live session.
type Config struct {
	APIKey string
	Host   string // defaults to DefaultHost
	Model  string // defaults to DefaultModel

	Voice             string
	SystemInstruction string
	Tools             []FunctionDeclaration

	HeartbeatInterval time.Duration // 0 disables pings
}

// Callbacks receives session events. OnMessage is invoked from a
// single goroutine in arrival order. OnClose fires exactly once, for
// both local and remote shutdown.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(*ServerMessage)
	OnError   func(error)
	OnClose   func()
}

// LiveSession is a handle to one duplex conversation. It is usable
// immediately: media sent before the connection is ready is queued and
// flushed in order once setup is on the wire, and media sent after
// Close is dropped silently.
type LiveSession struct {
	cfg  Config
	cb   Callbacks
	conn *wsstream.Conn

	cancel context.CancelFunc

	mu      sync.Mutex
	opened  bool
	closed  bool
	pending [][]byte

	closeOnce sync.Once
}

// Open starts connecting and returns the session handle immediately.
func Open(ctx context.Context, cfg Config, cb Callbacks) *LiveSession {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	url := cfg.Host + livePath
	if cfg.APIKey != "" {
		url += "?key=" + cfg.APIKey
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &LiveSession{
		cfg:    cfg,
		cb:     cb,
		conn:   wsstream.New(wsstream.Config{URL: url}),
		cancel: cancel,
	}
	go s.run(runCtx)
	return s
}

func (s *LiveSession) run(ctx context.Context) {
	if err := s.conn.ConnectWithRetry(ctx); err != nil {
		s.fail("dial", err)
		s.shutdown()
		return
	}

	if err := s.sendSetup(); err != nil {
		s.fail("setup", err)
		s.shutdown()
		return
	}

	if s.cfg.HeartbeatInterval > 0 {
		s.conn.StartHeartbeat(ctx, s.cfg.HeartbeatInterval)
	}

	s.flushPending()
	if s.cb.OnOpen != nil {
		s.cb.OnOpen()
	}

	// Single reader keeps OnMessage calls in arrival order.
	for {
		data, err := s.conn.Receive(ctx)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && ctx.Err() == nil {
				s.fail("receive", err)
			}
			break
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.fail("decode", err)
			continue
		}
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(&msg)
		}
	}

	s.shutdown()
}

func (s *LiveSession) sendSetup() error {
	setup := &Setup{
		Model: "models/" + s.cfg.Model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if s.cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: &VoiceConfig{
				PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: s.cfg.Voice},
			},
		}
	}
	if s.cfg.SystemInstruction != "" {
		setup.SystemInstruction = &Content{Parts: []Part{{Text: s.cfg.SystemInstruction}}}
	}
	if len(s.cfg.Tools) > 0 {
		setup.Tools = []Tool{{FunctionDeclarations: s.cfg.Tools}}
	}

	data, err := json.Marshal(clientMessage{Setup: setup})
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

func (s *LiveSession) flushPending() {
	s.mu.Lock()
	var flushErr error
	for _, data := range s.pending {
		if flushErr = s.conn.Send(data); flushErr != nil {
			break
		}
	}
	s.pending = nil
	s.opened = true
	s.mu.Unlock()

	if flushErr != nil {
		s.fail("flush", flushErr)
	}
}

// send queues, drops or writes one client message depending on
// session state.
func (s *LiveSession) send(msg clientMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.fail("encode", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Debug("live session closed, dropping outbound message")
		return
	}
	if !s.opened {
		s.pending = append(s.pending, data)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.conn.Send(data); err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.fail("send", err)
		}
	}
}

// SendAudio streams one microphone chunk.
func (s *LiveSession) SendAudio(chunk Blob) {
	s.send(clientMessage{RealtimeInput: &RealtimeInput{Media: &chunk}})
}

// SendVideoFrame streams one JPEG camera frame.
func (s *LiveSession) SendVideoFrame(jpeg []byte) {
	s.send(clientMessage{RealtimeInput: &RealtimeInput{Media: &Blob{
		MIMEType: media.MIMEJPEG,
		Data:     base64.StdEncoding.EncodeToString(jpeg),
	}}})
}

// SendToolResponses acknowledges executed tool calls.
func (s *LiveSession) SendToolResponses(responses []FunctionResponse) {
	if len(responses) == 0 {
		return
	}
	s.send(clientMessage{ToolResponse: &ToolResponse{FunctionResponses: responses}})
}

func (s *LiveSession) fail(op string, err error) {
	terr := &TransportError{Op: op, Err: err}
	logger.Warn("live session error", "op", op, "error", logger.Redact(err.Error()))
	if s.cb.OnError != nil {
		s.cb.OnError(terr)
	}
}

// Close tears the session down. Safe to call more than once; later
// sends are dropped silently.
func (s *LiveSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	_ = s.conn.Close()
	s.fireClose()
}

func (s *LiveSession) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	_ = s.conn.Close()
	s.fireClose()
}

func (s *LiveSession) fireClose() {
	s.closeOnce.Do(func() {
		if s.cb.OnClose != nil {
			s.cb.OnClose()
		}
	})
}

// Active reports whether the connection is open for sending.
func (s *LiveSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened && !s.closed && s.conn.IsConnected()
}
