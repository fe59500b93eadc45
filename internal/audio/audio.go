// Package audio holds the PCM format the engine mixes in, decoding into it,
// and the per-session Mixing Bus.
package audio

import (
	"math"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// TrackInfo identifies the track currently on the bus.
type TrackInfo struct {
	Index  int
	Title  string
	Artist string
}

// Clip is decoded interleaved stereo PCM at SampleRate.
type Clip struct {
	Samples []int16
}

// Len returns the number of sample frames (one per channel pair).
func (c *Clip) Len() int64 {
	if c == nil {
		return 0
	}
	return int64(len(c.Samples) / Channels)
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	return float64(c.Len()) / SampleRate
}

// SampleIndex converts seconds to the first sample frame at or after t.
func SampleIndex(t float64) int64 {
	return int64(math.Ceil(t*SampleRate - 1e-9))
}

// Seconds converts a sample frame index to seconds.
func Seconds(n int64) float64 {
	return float64(n) / SampleRate
}
