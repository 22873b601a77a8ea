// Package prometheus exposes the live session engine's operational
// metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "avachat"

// Metrics holds the engine's instruments. One instance is shared by
// all sessions of a process.
type Metrics struct {
	SessionsStarted    *prometheus.CounterVec
	SessionErrors      *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	AudioChunksSent    prometheus.Counter
	AudioChunksPlayed  prometheus.Counter
	VideoFramesSent    prometheus.Counter
	ToolCalls          *prometheus.CounterVec
	TurnsCompleted     *prometheus.CounterVec
	PlaybackInterrupts prometheus.Counter
	CameraSwitches     prometheus.Counter
}

// New builds the instrument set.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "sessions_started_total",
			Help:      "Live sessions started, by agent.",
		}, []string{"agent"}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "session_errors_total",
			Help:      "Errors surfaced during live sessions, by kind.",
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "active_sessions",
			Help:      "Live sessions currently running.",
		}),
		AudioChunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "audio_chunks_sent_total",
			Help:      "Microphone chunks streamed upstream.",
		}),
		AudioChunksPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "audio_chunks_played_total",
			Help:      "Model speech chunks scheduled for playback.",
		}),
		VideoFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "video_frames_sent_total",
			Help:      "Camera frames streamed upstream.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "tool_calls_total",
			Help:      "Tool calls received from the model, by tool name.",
		}, []string{"tool"}),
		TurnsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "turns_completed_total",
			Help:      "Conversation turns folded into chat history, by agent.",
		}, []string{"agent"}),
		PlaybackInterrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "playback_interrupts_total",
			Help:      "Times model speech was cut off by barge-in or server interruption.",
		}),
		CameraSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "live",
			Name:      "camera_switches_total",
			Help:      "Camera facing switches during live sessions.",
		}),
	}
}

// collectors lists every instrument for registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SessionsStarted,
		m.SessionErrors,
		m.ActiveSessions,
		m.AudioChunksSent,
		m.AudioChunksPlayed,
		m.VideoFramesSent,
		m.ToolCalls,
		m.TurnsCompleted,
		m.PlaybackInterrupts,
		m.CameraSwitches,
	}
}
