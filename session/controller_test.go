package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/agents"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/audio"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/capture"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/config"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/gemini"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/history"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

// liveServer stands in for the generation endpoint. It records every
// client message and can push server events on the newest connection.
type liveServer struct {
	t   *testing.T
	srv *httptest.Server

	mu    sync.Mutex
	msgs  []map[string]any
	conns []*websocket.Conn
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()
	s := &liveServer{t: t}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			s.mu.Lock()
			s.msgs = append(s.msgs, msg)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *liveServer) host() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *liveServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *liveServer) push(msg gemini.ServerMessage) {
	waitFor(s.t, "a connection", func() bool { return s.connections() > 0 })
	data, err := json.Marshal(msg)
	if err != nil {
		s.t.Fatalf("marshal: %v", err)
	}
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.t.Errorf("server write: %v", err)
	}
}

func (s *liveServer) countKey(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if _, ok := m[key]; ok {
			n++
		}
	}
	return n
}

// Capture device fakes.

type fakeAudioSrc struct {
	blocks chan []float32
}

func (f *fakeAudioSrc) ReadBlock(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b := <-f.blocks:
		return b, nil
	}
}

type fakeVideoSrc struct{}

func (fakeVideoSrc) Ready() bool { return true }

func (fakeVideoSrc) Frame() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{G: 255, A: 255})
	return img, nil
}

type fakeDevices struct {
	audio  *fakeAudioSrc
	facing types.FacingMode

	mu     sync.Mutex
	closed bool
}

func (d *fakeDevices) Audio() capture.AudioSource { return d.audio }
func (d *fakeDevices) Video() capture.VideoSource { return fakeVideoSrc{} }
func (d *fakeDevices) Facing() types.FacingMode   { return d.facing }

func (d *fakeDevices) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevices) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeOpener struct {
	mu    sync.Mutex
	fail  bool
	opens []types.FacingMode
	last  *fakeDevices
}

func (o *fakeOpener) Open(_ context.Context, facing types.FacingMode) (capture.Devices, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return nil, &capture.MediaAccessError{Device: "camera", Err: errors.New("permission denied")}
	}
	o.opens = append(o.opens, facing)
	o.last = &fakeDevices{
		audio:  &fakeAudioSrc{blocks: make(chan []float32, 16)},
		facing: facing,
	}
	return o.last, nil
}

// Playback fakes, driven manually.

type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type playedChunk struct {
	mu       sync.Mutex
	canceled bool
	done     func()
}

type fakeOutput struct {
	mu     sync.Mutex
	chunks []*playedChunk
}

func (o *fakeOutput) Play(_ *audio.Buffer, _ time.Duration, done func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &playedChunk{done: done}
	o.chunks = append(o.chunks, p)
	return func() {
		p.mu.Lock()
		p.canceled = true
		p.mu.Unlock()
	}
}

func (o *fakeOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.chunks)
}

func (o *fakeOutput) allCanceled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range o.chunks {
		c.mu.Lock()
		canceled := c.canceled
		c.mu.Unlock()
		if !canceled {
			return false
		}
	}
	return true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	ctrl   *Controller
	server *liveServer
	opener *fakeOpener
	output *fakeOutput
	store  *history.MemoryStore

	mu         sync.Mutex
	states     []State
	responding []bool
	elements   [][]types.InteractiveElement
	dialCfgs   []gemini.Config
}

func newHarness(t *testing.T, tweaks ...func(*config.Config)) *harness {
	t.Helper()
	h := &harness{
		server: newLiveServer(t),
		opener: &fakeOpener{},
		output: &fakeOutput{},
		store:  history.NewMemoryStore(),
	}
	cfg := config.Default()
	cfg.FrameInterval = 10 * time.Millisecond
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	h.ctrl = New(Deps{
		Opener:  h.opener,
		History: h.store,
		Output:  h.output,
		Clock:   &fakeClock{},
		Config:  cfg,
		Dial: func(ctx context.Context, c gemini.Config, cb gemini.Callbacks) *gemini.LiveSession {
			h.mu.Lock()
			h.dialCfgs = append(h.dialCfgs, c)
			h.mu.Unlock()
			c.Host = h.server.host()
			c.APIKey = ""
			return gemini.Open(ctx, c, cb)
		},
	}, Callbacks{
		OnState: func(s State) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		},
		OnResponding: func(r bool) {
			h.mu.Lock()
			h.responding = append(h.responding, r)
			h.mu.Unlock()
		},
		OnElements: func(els []types.InteractiveElement) {
			h.mu.Lock()
			h.elements = append(h.elements, els)
			h.mu.Unlock()
		},
	})
	t.Cleanup(func() { h.ctrl.Stop() })
	return h
}

func pcmChunk(ms int) string {
	bytes := make([]byte, audio.OutputSampleRate*ms/1000*2)
	return base64.StdEncoding.EncodeToString(bytes)
}

func speechEvent(ms int) gemini.ServerMessage {
	return gemini.ServerMessage{ServerContent: &gemini.ServerContent{
		ModelTurn: &gemini.Content{Parts: []gemini.Part{
			{InlineData: &gemini.Blob{MIMEType: gemini.MIMEPCMOutput, Data: pcmChunk(ms)}},
		}},
	}}
}

func TestStartStopLifecycle(t *testing.T) {
	h := newHarness(t)

	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.ctrl.State() != StateActive {
		t.Fatalf("state = %v after start", h.ctrl.State())
	}
	if h.ctrl.SessionID() == "" {
		t.Error("no chat session created")
	}
	waitFor(t, "setup on the wire", func() bool { return h.server.countKey("setup") == 1 })

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.ctrl.State() != StateOff {
		t.Errorf("state = %v after stop", h.ctrl.State())
	}
	if !h.opener.last.isClosed() {
		t.Error("devices not closed on stop")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	want := []State{StateStarting, StateActive, StateOff}
	if len(h.states) != len(want) {
		t.Fatalf("state transitions = %v", h.states)
	}
	for i := range want {
		if h.states[i] != want[i] {
			t.Fatalf("state transitions = %v, want %v", h.states, want)
		}
	}
}

func TestStartWhileActiveFails(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err == nil {
		t.Error("second Start succeeded")
	}
}

func TestMediaAccessFailureReturnsToOff(t *testing.T) {
	h := newHarness(t)
	h.opener.fail = true

	err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser)
	if err == nil {
		t.Fatal("Start succeeded with broken devices")
	}
	var mae *capture.MediaAccessError
	if !errors.As(err, &mae) {
		t.Errorf("error type = %T", err)
	}
	if h.ctrl.State() != StateOff {
		t.Errorf("state = %v", h.ctrl.State())
	}
}

func TestMicAudioFlowsWhenGateOpen(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Muted by default: blocks are consumed but never sent.
	h.opener.last.audio.blocks <- make([]float32, audio.FrameSamples)
	time.Sleep(50 * time.Millisecond)
	before := h.server.countKey("realtimeInput")

	h.ctrl.SetMicActive(true)
	h.opener.last.audio.blocks <- make([]float32, audio.FrameSamples)

	waitFor(t, "mic chunk on the wire", func() bool {
		return h.server.countKey("realtimeInput") > before
	})
}

func TestBargeInFlushesPlayback(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.server.push(speechEvent(100))
	h.server.push(speechEvent(100))
	h.server.push(speechEvent(100))
	waitFor(t, "speech scheduled", func() bool { return h.output.count() == 3 })

	h.ctrl.SetMicActive(true)

	if !h.output.allCanceled() {
		t.Error("model speech still playing after barge-in")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.responding) == 0 || h.responding[len(h.responding)-1] != false {
		t.Errorf("responding history = %v, want trailing false", h.responding)
	}
}

func TestServerInterruptionFlushesPlayback(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.server.push(speechEvent(100))
	h.server.push(speechEvent(100))
	waitFor(t, "speech scheduled", func() bool { return h.output.count() == 2 })

	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{Interrupted: true}})
	waitFor(t, "playback flushed", h.output.allCanceled)
}

func TestInterruptionCoversSameEventAudio(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// One event carrying both speech and the interruption flag nets
	// to silence: the chunk is scheduled and then flushed.
	msg := speechEvent(100)
	msg.ServerContent.Interrupted = true
	h.server.push(msg)

	waitFor(t, "carried audio flushed", func() bool {
		return h.output.count() == 1 && h.output.allCanceled()
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.responding) == 0 || h.responding[len(h.responding)-1] != false {
		t.Errorf("responding history = %v, want trailing false", h.responding)
	}
}

func TestVoiceConfigOverridesAgent(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Voice = "Puck" })
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.dialCfgs) != 1 || h.dialCfgs[0].Voice != "Puck" {
		t.Errorf("dialed voice = %+v, want Puck", h.dialCfgs)
	}
}

func TestAgentVoiceUsedWithoutOverride(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.dialCfgs) != 1 || h.dialCfgs[0].Voice != agents.DefaultVoice {
		t.Errorf("dialed voice = %+v, want %q", h.dialCfgs, agents.DefaultVoice)
	}
}

func TestTurnFoldsIntoHistory(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentTutor, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{
		InputTranscription: &gemini.Transcription{Text: "what is this resistor "},
	}})
	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{
		InputTranscription: &gemini.Transcription{Text: "for?"},
	}})
	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{
		OutputTranscription: &gemini.Transcription{Text: "It limits the LED current."},
	}})
	h.server.push(gemini.ServerMessage{ToolCall: &gemini.ToolCall{FunctionCalls: []gemini.FunctionCall{
		{ID: "call-1", Name: "pointToArea", Args: json.RawMessage(`{"x":40,"y":60,"comment":"this resistor"}`)},
	}}})
	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{TurnComplete: true}})

	waitFor(t, "turn in history", func() bool {
		sess, err := h.store.Get(context.Background(), types.AgentTutor, h.ctrl.SessionID())
		return err == nil && len(sess.Messages) == 2
	})

	sess, _ := h.store.Get(context.Background(), types.AgentTutor, h.ctrl.SessionID())
	user, ai := sess.Messages[0], sess.Messages[1]
	if user.Text != "what is this resistor for?" {
		t.Errorf("user text = %q", user.Text)
	}
	if user.Image == nil {
		t.Error("no snapshot attached to user message")
	}
	if ai.Text != "It limits the LED current." {
		t.Errorf("ai text = %q", ai.Text)
	}
	if len(ai.InteractiveElements) != 1 || ai.InteractiveElements[0].Kind != types.ElementPoint {
		t.Errorf("ai elements = %+v", ai.InteractiveElements)
	}
	if sess.Title != "what is this resistor for?" {
		t.Errorf("title = %q", sess.Title)
	}

	waitFor(t, "tool acknowledgement", func() bool { return h.server.countKey("toolResponse") == 1 })

	// A duplicate completion signal must not append another pair.
	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{TurnComplete: true}})
	time.Sleep(50 * time.Millisecond)
	sess, _ = h.store.Get(context.Background(), types.AgentTutor, h.ctrl.SessionID())
	if len(sess.Messages) != 2 {
		t.Errorf("%d messages after duplicate turn complete", len(sess.Messages))
	}
}

func TestVisualOnlyTurnGetsPlaceholder(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingEnvironment); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{
		OutputTranscription: &gemini.Transcription{Text: "That cable is unplugged."},
	}})
	h.server.push(gemini.ServerMessage{ServerContent: &gemini.ServerContent{TurnComplete: true}})

	waitFor(t, "turn in history", func() bool {
		sess, err := h.store.Get(context.Background(), types.AgentAva, h.ctrl.SessionID())
		return err == nil && len(sess.Messages) == 2
	})
	sess, _ := h.store.Get(context.Background(), types.AgentAva, h.ctrl.SessionID())
	if sess.Messages[0].Text != types.VisualInputPlaceholder {
		t.Errorf("user text = %q", sess.Messages[0].Text)
	}
	if sess.Title != "" {
		t.Errorf("visual-only turn titled the session %q", sess.Title)
	}
}

func TestSwitchCameraKeepsTranscript(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	firstID := h.ctrl.SessionID()
	firstDevices := h.opener.last

	if err := h.ctrl.SwitchCamera(context.Background()); err != nil {
		t.Fatalf("SwitchCamera: %v", err)
	}

	if h.ctrl.State() != StateActive {
		t.Errorf("state = %v after switch", h.ctrl.State())
	}
	if h.ctrl.SessionID() != firstID {
		t.Error("camera switch started a new chat session")
	}
	if !firstDevices.isClosed() {
		t.Error("old devices left open")
	}

	h.opener.mu.Lock()
	opens := append([]types.FacingMode(nil), h.opener.opens...)
	h.opener.mu.Unlock()
	if len(opens) != 2 || opens[0] != types.FacingUser || opens[1] != types.FacingEnvironment {
		t.Errorf("opens = %v", opens)
	}

	waitFor(t, "second transport connection", func() bool { return h.server.connections() == 2 })
}

func TestStoppedSessionStaysSilent(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Start(context.Background(), types.AgentAva, types.FacingUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.ctrl.SetMicActive(true)
	devices := h.opener.last
	waitFor(t, "setup", func() bool { return h.server.countKey("setup") == 1 })

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	sent := h.server.countKey("realtimeInput")

	// Late events must go nowhere: the pumps are revoked and the
	// transport drops writes after close.
	select {
	case devices.audio.blocks <- make([]float32, audio.FrameSamples):
	default:
	}
	time.Sleep(80 * time.Millisecond)

	if got := h.server.countKey("realtimeInput"); got != sent {
		t.Errorf("messages kept flowing after stop: %d -> %d", sent, got)
	}
	if h.output.count() != 0 {
		t.Errorf("%d chunks played", h.output.count())
	}
}

func TestSwitchCameraRequiresActive(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.SwitchCamera(context.Background()); err == nil {
		t.Error("SwitchCamera succeeded while off")
	}
}
