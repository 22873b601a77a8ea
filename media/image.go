// Package media prepares camera frames for the live session: selfie
// mirroring, bounded downscaling and JPEG encoding at the qualities
// used for streaming and snapshots.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// JPEG qualities on the two image paths. Streamed frames trade quality
// for rate; snapshots attached to the transcript keep more detail.
const (
	StreamQuality   = 0.70
	SnapshotQuality = 0.80
)

// MIMEJPEG is the MIME type for encoded frames.
const MIMEJPEG = "image/jpeg"

// MaxFrameDim bounds the longer edge of a streamed frame.
const MaxFrameDim = 1024

// Mirror returns img flipped horizontally. Front-camera frames are
// mirrored so the model sees what the user sees.
func Mirror(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(b.Dx()-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Fit downscales img so its longer edge does not exceed maxDim,
// preserving aspect ratio. Images already within bounds are returned
// unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, draw.Over, nil)
	return out
}

// EncodeJPEG encodes img at a quality in (0, 1].
func EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	if quality <= 0 || quality > 1 {
		return nil, fmt.Errorf("jpeg quality out of range: %v", quality)
	}
	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: int(quality * 100)}
	if err := jpeg.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeFrame prepares a streamed camera frame: optional mirroring,
// downscale to the streaming bound, then JPEG at stream quality.
func EncodeFrame(img image.Image, mirror bool) ([]byte, error) {
	if mirror {
		img = Mirror(img)
	}
	return EncodeJPEG(Fit(img, MaxFrameDim), StreamQuality)
}

// EncodeSnapshot prepares a transcript snapshot at snapshot quality.
func EncodeSnapshot(img image.Image, mirror bool) ([]byte, error) {
	if mirror {
		img = Mirror(img)
	}
	return EncodeJPEG(img, SnapshotQuality)
}
