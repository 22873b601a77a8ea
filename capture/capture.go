// Package capture defines the device ports of the live session and
// the pumps that move microphone blocks and camera frames off them.
// Concrete devices are provided by the host platform; everything here
// works against the AudioSource and VideoSource interfaces so the
// pipelines can be driven by fakes.
package capture

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/logger"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/media"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

// MediaAccessError reports that a capture device could not be opened.
type MediaAccessError struct {
	Device string
	Err    error
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("media access %s: %v", e.Device, e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// AudioSource delivers microphone audio as mono float blocks at the
// input sample rate. ReadBlock blocks until a full block is available.
type AudioSource interface {
	ReadBlock(ctx context.Context) ([]float32, error)
}

// VideoSource delivers camera frames. Ready reports whether the
// device has produced its first frame.
type VideoSource interface {
	Ready() bool
	Frame() (image.Image, error)
}

// Devices is one opened microphone and camera pair.
type Devices interface {
	Audio() AudioSource
	Video() VideoSource
	Facing() types.FacingMode
	Close() error
}

// Opener acquires capture devices for a camera facing.
type Opener interface {
	Open(ctx context.Context, facing types.FacingMode) (Devices, error)
}

// MicGate is the shared mute flag read by the audio pump at send
// time, so toggling it takes effect on the very next block.
type MicGate struct {
	active atomic.Bool
}

// Set opens or mutes the gate.
func (g *MicGate) Set(active bool) { g.active.Store(active) }

// Active reports whether microphone audio may be forwarded.
func (g *MicGate) Active() bool { return g.active.Load() }

// Liveness is a revocable token handed to the pump goroutines. A
// teardown revokes it, and every pump re-checks it after each
// blocking operation so no stale goroutine keeps sending.
type Liveness struct {
	alive atomic.Bool
}

// NewLiveness returns a live token.
func NewLiveness() *Liveness {
	l := &Liveness{}
	l.alive.Store(true)
	return l
}

// Revoke marks the token dead.
func (l *Liveness) Revoke() { l.alive.Store(false) }

// Alive reports whether the token is still valid.
func (l *Liveness) Alive() bool { return l.alive.Load() }

// DefaultFrameInterval is the camera sampling cadence, about 2 fps.
const DefaultFrameInterval = 500 * time.Millisecond

// PumpAudio forwards microphone blocks to send while the gate is
// open. It returns when the context ends, the liveness token is
// revoked or the source fails. Blocks read while the gate is muted
// are discarded.
func PumpAudio(ctx context.Context, live *Liveness, src AudioSource, gate *MicGate, send func(samples []float32)) {
	for {
		if ctx.Err() != nil || !live.Alive() {
			return
		}

		block, err := src.ReadBlock(ctx)
		if err != nil {
			if ctx.Err() == nil && live.Alive() {
				logger.Warn("audio source failed", "error", err)
			}
			return
		}
		if !live.Alive() {
			return
		}
		if gate.Active() {
			send(block)
		}
	}
}

// SampleVideo encodes camera frames at the given interval and hands
// the JPEG bytes to send. Frames from the user-facing camera are
// mirrored. A frame that fails to read or encode is skipped; the loop
// only stops when the context ends or the token is revoked.
func SampleVideo(ctx context.Context, live *Liveness, src VideoSource, facing types.FacingMode, interval time.Duration, send func(jpeg []byte)) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	mirror := facing == types.FacingUser

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if !live.Alive() {
			return
		}
		if !src.Ready() {
			continue
		}

		img, err := src.Frame()
		if err != nil {
			logger.Debug("skipping unreadable frame", "error", err)
			continue
		}
		data, err := media.EncodeFrame(img, mirror)
		if err != nil {
			logger.Debug("skipping unencodable frame", "error", err)
			continue
		}
		if !live.Alive() {
			return
		}
		send(data)
	}
}

// Snapshot grabs one high-quality frame for the transcript. It is
// best effort and returns nil when the camera has nothing usable.
func Snapshot(src VideoSource, facing types.FacingMode) *types.ImagePayload {
	if src == nil || !src.Ready() {
		return nil
	}
	img, err := src.Frame()
	if err != nil {
		logger.Debug("snapshot frame unavailable", "error", err)
		return nil
	}
	data, err := media.EncodeSnapshot(img, facing == types.FacingUser)
	if err != nil {
		logger.Debug("snapshot encode failed", "error", err)
		return nil
	}
	return &types.ImagePayload{Data: data, MIMEType: media.MIMEJPEG}
}
