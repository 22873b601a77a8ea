// Package audio implements the PCM pipeline of the live session
// engine: conversion between float samples and 16-bit wire PCM,
// sample-rate conversion, and gapless scheduling of model speech.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Fixed rates of the live audio path. Microphone capture is sent at
// 16 kHz; model speech arrives at 24 kHz.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000

	// FrameSamples is the capture block size in samples.
	FrameSamples = 4096
)

// MIMEPCMInput is the MIME type for upstream microphone PCM.
const MIMEPCMInput = "audio/pcm;rate=16000"

// DecodeError reports a malformed audio payload.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("decode %s", e.What)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodePCM16 converts float samples to little-endian 16-bit PCM.
// Samples are clamped to [-1, 1]. Negative values scale by 32768 and
// non-negative values by 32767, so -1 maps to -32768 and 1 to 32767.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts little-endian 16-bit PCM to float samples in
// [-1, 1). The byte length must be even.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, &DecodeError{What: "pcm16", Err: fmt.Errorf("odd byte length %d", len(data))}
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// EncodeBlock converts a capture block to the base64 form sent on the
// wire.
func EncodeBlock(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodeBase64PCM decodes a base64 PCM16 chunk into a playable buffer.
func DecodeBase64PCM(b64 string, sampleRate int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, &DecodeError{What: "base64 audio", Err: err}
	}
	samples, err := DecodePCM16(raw)
	if err != nil {
		return nil, err
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// Downmix folds interleaved multi-channel samples to mono by
// averaging the channels of each frame. Trailing samples that do not
// fill a frame are dropped. Device implementations use this to meet
// the mono contract of the capture pipeline.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// RMS returns the root mean square level of a block, useful for level
// metering.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
