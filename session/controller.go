// Package session runs the live multimodal conversation: it owns the
// capture devices, the duplex transport, speech playback, the tool
// call interpreter and the transcript, and moves the whole assembly
// through its lifecycle as one unit.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/agents"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/audio"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/capture"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/config"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/gemini"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/history"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/logger"
	prom "github.com/TsieOmni/AVA-Artificial-Virtual-Agent/metrics/prometheus"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/overlay"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/turn"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

// State is the lifecycle phase of the controller.
type State int

const (
	StateOff State = iota
	StateStarting
	StateActive
	StateSwitchingCamera
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateSwitchingCamera:
		return "switching_camera"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Deps are the collaborators a controller runs against. Dial defaults
// to the production transport; tests substitute their own.
type Deps struct {
	Opener  capture.Opener
	History history.Store
	Output  audio.Output
	Clock   audio.Clock
	Metrics *prom.Metrics
	Config  config.Config
	Dial    func(ctx context.Context, cfg gemini.Config, cb gemini.Callbacks) *gemini.LiveSession
}

// Callbacks surface session events to the embedding application.
type Callbacks struct {
	OnState      func(State)
	OnElements   func([]types.InteractiveElement)
	OnResponding func(bool)
	OnError      func(error)
}

// Controller drives one live session at a time. Start, Stop and
// SwitchCamera are serialized; SetMicActive and State may be called
// from any goroutine.
type Controller struct {
	deps Deps
	cb   Callbacks

	gate capture.MicGate

	opMu sync.Mutex // serializes lifecycle operations

	mu        sync.Mutex
	state     State
	current   *run
	sessionID string
}

// run is the per-activation state. Its fields are fixed at start and
// the liveness token gates every late callback, so the message
// handlers need no locking.
type run struct {
	c         *Controller
	agent     agents.Agent
	facing    types.FacingMode
	sessionID string

	live    *capture.Liveness
	devices capture.Devices
	session *gemini.LiveSession
	sched   *audio.Scheduler
	interp  *overlay.Interpreter
	agg     *turn.Aggregator
	cancel  context.CancelFunc
}

// New builds a controller.
func New(deps Deps, cb Callbacks) *Controller {
	if deps.Clock == nil {
		deps.Clock = audio.NewSystemClock()
	}
	if deps.Dial == nil {
		deps.Dial = gemini.Open
	}
	return &Controller{deps: deps, cb: cb}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the chat session the transcript is written to.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.cb.OnState != nil {
		c.cb.OnState(s)
	}
}

// Start brings the session up for the given agent and camera facing.
// The transport connects in the background; media produced before it
// is ready is queued in order.
func (c *Controller) Start(ctx context.Context, agentName types.AgentName, facing types.FacingMode) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateOff {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start in state %s", state)
	}
	c.mu.Unlock()

	c.setState(StateStarting)
	if err := c.startRun(ctx, agentName, facing); err != nil {
		c.setState(StateOff)
		return err
	}
	c.setState(StateActive)
	return nil
}

// startRun builds and wires a run. Callers own the state transitions.
func (c *Controller) startRun(ctx context.Context, agentName types.AgentName, facing types.FacingMode) error {
	agent, err := agents.Get(agentName)
	if err != nil {
		return err
	}
	if !facing.Valid() {
		return fmt.Errorf("unknown camera facing %q", facing)
	}

	devices, err := c.deps.Opener.Open(ctx, facing)
	if err != nil {
		c.countError("media_access")
		return fmt.Errorf("open capture devices: %w", err)
	}

	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		sess := history.NewSession()
		if err := c.deps.History.Create(ctx, agentName, sess); err != nil {
			devices.Close()
			c.countError("history")
			return fmt.Errorf("create chat session: %w", err)
		}
		sessionID = sess.ID
		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		c:         c,
		agent:     agent,
		facing:    facing,
		sessionID: sessionID,
		live:      capture.NewLiveness(),
		devices:   devices,
		sched:     audio.NewScheduler(c.deps.Output, c.deps.Clock),
		interp:    overlay.NewInterpreter(c.cb.OnElements),
		agg:       &turn.Aggregator{},
		cancel:    cancel,
	}
	r.sched.SetOnDrained(func() {
		if r.live.Alive() {
			c.notifyResponding(false)
		}
	})

	voice := agent.Voice
	if c.deps.Config.Voice != "" {
		voice = c.deps.Config.Voice
	}

	r.session = c.deps.Dial(runCtx, gemini.Config{
		APIKey:            c.deps.Config.APIKey,
		Model:             c.deps.Config.Model,
		Voice:             voice,
		SystemInstruction: agent.LiveInstruction,
		Tools:             overlay.Declarations(),
		HeartbeatInterval: c.deps.Config.HeartbeatInterval,
	}, gemini.Callbacks{
		OnOpen:    func() { logger.Info("live session open", "agent", agent.Name) },
		OnMessage: r.onMessage,
		OnError:   r.onError,
		OnClose:   r.onClose,
	})

	go capture.PumpAudio(runCtx, r.live, devices.Audio(), &c.gate, func(samples []float32) {
		r.session.SendAudio(gemini.NewAudioChunk(samples))
		c.count(func(m *prom.Metrics) { m.AudioChunksSent.Inc() })
	})
	go capture.SampleVideo(runCtx, r.live, devices.Video(), facing, c.deps.Config.FrameInterval, func(jpeg []byte) {
		r.session.SendVideoFrame(jpeg)
		c.count(func(m *prom.Metrics) { m.VideoFramesSent.Inc() })
	})

	c.mu.Lock()
	c.current = r
	c.mu.Unlock()

	c.count(func(m *prom.Metrics) {
		m.SessionsStarted.WithLabelValues(string(agent.Name)).Inc()
		m.ActiveSessions.Inc()
	})
	logger.Info("live session starting", "agent", agent.Name, "facing", facing, "chat", sessionID)
	return nil
}

// Stop tears the session down. Every step runs even if an earlier one
// fails; the first error is returned.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	c.mu.Lock()
	r := c.current
	c.current = nil
	c.mu.Unlock()

	if r == nil {
		c.setState(StateOff)
		return nil
	}

	err := c.teardown(r)
	c.setState(StateOff)
	return err
}

// teardown dismantles a run in a fixed order: silence the pumps, stop
// the devices, flush playback, then close the transport.
func (c *Controller) teardown(r *run) error {
	var errs []error

	r.live.Revoke()
	r.cancel()
	c.gate.Set(false)

	if r.devices != nil {
		if err := r.devices.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close devices: %w", err))
		}
	}

	r.sched.Interrupt()
	r.agg.Reset()
	r.interp.Drain()

	if r.session != nil {
		r.session.Close()
	}

	c.count(func(m *prom.Metrics) { m.ActiveSessions.Dec() })
	c.notifyResponding(false)
	logger.Info("live session stopped", "agent", r.agent.Name)
	return errors.Join(errs...)
}

// SwitchCamera flips between the user and environment cameras. The
// running session is torn down and a fresh one comes up on the other
// camera, continuing the same chat transcript.
func (c *Controller) SwitchCamera(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateActive || c.current == nil {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot switch camera in state %s", state)
	}
	r := c.current
	c.current = nil
	agentName := r.agent.Name
	next := r.facing.Flipped()
	c.mu.Unlock()

	c.setState(StateSwitchingCamera)
	teardownErr := c.teardown(r)

	if err := c.startRun(ctx, agentName, next); err != nil {
		c.setState(StateOff)
		return errors.Join(teardownErr, err)
	}
	c.setState(StateActive)
	c.count(func(m *prom.Metrics) { m.CameraSwitches.Inc() })
	return teardownErr
}

// SetMicActive opens or mutes the microphone. Turning the mic on is a
// barge-in: queued model speech is flushed before the first new block
// can be forwarded.
func (c *Controller) SetMicActive(active bool) {
	if active {
		c.mu.Lock()
		r := c.current
		c.mu.Unlock()
		if r != nil {
			r.sched.Interrupt()
			c.count(func(m *prom.Metrics) { m.PlaybackInterrupts.Inc() })
			c.notifyResponding(false)
		}
	}
	c.gate.Set(active)
}

// MicActive reports the microphone gate.
func (c *Controller) MicActive() bool { return c.gate.Active() }

func (c *Controller) notifyResponding(responding bool) {
	if c.cb.OnResponding != nil {
		c.cb.OnResponding(responding)
	}
}

func (c *Controller) count(fn func(*prom.Metrics)) {
	if c.deps.Metrics != nil {
		fn(c.deps.Metrics)
	}
}

func (c *Controller) countError(kind string) {
	c.count(func(m *prom.Metrics) { m.SessionErrors.WithLabelValues(kind).Inc() })
}

// onMessage routes one server event. It runs on the transport's
// dispatch goroutine, so ordering across events is guaranteed.
func (r *run) onMessage(m *gemini.ServerMessage) {
	if !r.live.Alive() {
		return
	}

	if m.SetupComplete != nil {
		logger.Debug("live session setup complete", "agent", r.agent.Name)
	}

	if m.ToolCall != nil {
		for _, call := range m.ToolCall.FunctionCalls {
			r.c.count(func(mm *prom.Metrics) { mm.ToolCalls.WithLabelValues(call.Name).Inc() })
		}
		if responses := r.interp.HandleToolCall(m.ToolCall); len(responses) > 0 {
			r.session.SendToolResponses(responses)
		}
	}

	sc := m.ServerContent
	if sc == nil {
		return
	}

	for _, chunk := range sc.AudioChunks() {
		buf, err := audio.DecodeBase64PCM(chunk, audio.OutputSampleRate)
		if err != nil {
			r.c.countError("decode")
			logger.Warn("dropping undecodable speech chunk", "error", err)
			continue
		}
		wasActive := r.sched.Active()
		r.sched.Schedule(buf)
		r.c.count(func(mm *prom.Metrics) { mm.AudioChunksPlayed.Inc() })
		if !wasActive {
			r.c.notifyResponding(true)
		}
	}

	// Interrupted lands after any audio in the same event so the
	// flush covers chunks the event itself carried.
	if sc.Interrupted {
		r.sched.Interrupt()
		r.c.count(func(mm *prom.Metrics) { mm.PlaybackInterrupts.Inc() })
		r.c.notifyResponding(false)
	}

	if sc.InputTranscription != nil {
		r.agg.AddInput(sc.InputTranscription.Text)
	}
	if sc.OutputTranscription != nil {
		r.agg.AddOutput(sc.OutputTranscription.Text)
	}

	if sc.TurnComplete {
		r.completeTurn()
	}
}

// completeTurn folds the finished turn into chat history with a best
// effort camera snapshot and the overlay the model drew.
func (r *run) completeTurn() {
	elements := r.interp.Drain()
	pair := r.agg.Complete(func() *types.ImagePayload {
		return capture.Snapshot(r.devices.Video(), r.facing)
	}, elements)
	if pair == nil {
		return
	}

	ctx := context.Background()
	if err := r.c.deps.History.AppendPair(ctx, r.agent.Name, r.sessionID, pair.User, pair.AI); err != nil {
		r.c.countError("history")
		logger.Error("failed to persist turn", "error", err, "chat", r.sessionID)
		if r.c.cb.OnError != nil {
			r.c.cb.OnError(err)
		}
		return
	}
	r.c.count(func(m *prom.Metrics) { m.TurnsCompleted.WithLabelValues(string(r.agent.Name)).Inc() })
}

func (r *run) onError(err error) {
	if !r.live.Alive() {
		return
	}
	r.c.countError("transport")
	if r.c.cb.OnError != nil {
		r.c.cb.OnError(err)
	}
}

// onClose handles the transport dropping out from under an active
// session; a locally initiated teardown has already revoked the token.
func (r *run) onClose() {
	if !r.live.Alive() {
		return
	}
	logger.Warn("live transport closed unexpectedly", "agent", r.agent.Name)
	go r.c.stopIfCurrent(r)
}

// stopIfCurrent tears down r only if it is still the active run, so a
// stale close from an already replaced transport cannot kill its
// successor.
func (c *Controller) stopIfCurrent(r *run) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current != r {
		return
	}
	_ = c.stopLocked()
}
