package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/satindergrewal/lyricast/internal/timeline"
)

type channel struct {
	slide timeline.Slide
	clip  *Clip
	start int64 // first sample frame inside the slide window
	end   int64 // first sample frame past the slide window
}

// Bus is the per-session Mixing Bus: the primary track plus every attached
// slide channel, summed additively. Each slide is gated by its mute flag,
// volume and time window, evaluated per sample frame.
type Bus struct {
	log *slog.Logger

	mu       sync.RWMutex
	primary  *Clip
	channels []channel
	track    TrackInfo
	position time.Duration
	duration time.Duration

	frameCh chan []int16
	pending []int16
	closed  bool
}

// NewBus creates a bus. The monitor tap buffers up to 100 frames (2s); frames
// are dropped when no one reads.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		log:     logger,
		frameCh: make(chan []int16, 100),
	}
}

// Frames returns the monitor tap: the mixed signal in 20ms frames.
func (b *Bus) Frames() <-chan []int16 {
	return b.frameCh
}

// Load replaces the primary track and drops every slide channel.
func (b *Bus) Load(info TrackInfo, primary *Clip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.primary = primary
	b.channels = nil
	b.track = info
	b.position = 0
	b.duration = time.Duration(primary.Duration() * float64(time.Second))
}

// Attach adds an audio-bearing slide. Its clip plays from the slide start.
func (b *Bus) Attach(slide timeline.Slide, clip *Clip) {
	if !slide.Kind.Audible() || clip == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel{
		slide: slide,
		clip:  clip,
		start: SampleIndex(slide.Window.Start),
		end:   SampleIndex(slide.Window.End),
	})
	b.log.Debug("bus channel attached", "slide", slide.ID, "muted", slide.IsMuted(), "volume", slide.Volume)
}

// Channels returns the number of attached slide channels.
func (b *Bus) Channels() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

// Mix renders sample frames [from, to) of track time and returns them as
// interleaved stereo. Positions past the end of a source are silent.
func (b *Bus) Mix(from, to int64) []int16 {
	if to <= from {
		return nil
	}
	out := make([]int16, (to-from)*Channels)

	b.mu.Lock()
	defer b.mu.Unlock()

	copyRange(out, b.primary, from, to, 0)

	for _, ch := range b.channels {
		lo := max(from, ch.start)
		hi := min(to, ch.end)
		if lo >= hi {
			continue
		}
		// Gain is constant inside the window; mute and volume do not change
		// during a session.
		gain := ch.slide.Gain(ch.slide.Window.Start)
		if gain == 0 {
			continue
		}
		seg := make([]int16, (hi-lo)*Channels)
		copyRange(seg, ch.clip, lo-ch.start, hi-ch.start, 0)
		MixInto(out[(lo-from)*Channels:], seg, gain)
	}

	b.position = time.Duration(Seconds(to) * float64(time.Second))
	b.tap(out)
	return out
}

// copyRange copies clip frames [from, to) into dst starting at dstOff
// frames, leaving silence where the clip has no data.
func copyRange(dst []int16, c *Clip, from, to, dstOff int64) {
	if c == nil {
		return
	}
	n := c.Len()
	if from < 0 {
		dstOff -= from
		from = 0
	}
	if to > n {
		to = n
	}
	if from >= to {
		return
	}
	copy(dst[dstOff*Channels:], c.Samples[from*Channels:to*Channels])
}

// tap re-chunks mixed audio into 20ms frames for the monitor. Never blocks.
func (b *Bus) tap(samples []int16) {
	if b.closed {
		return
	}
	b.pending = append(b.pending, samples...)
	for len(b.pending) >= FrameSamples {
		frame := make([]int16, FrameSamples)
		copy(frame, b.pending[:FrameSamples])
		b.pending = b.pending[FrameSamples:]
		select {
		case b.frameCh <- frame:
		default:
		}
	}
	if len(b.pending) == 0 {
		b.pending = nil
	}
}

// Status returns current playback info.
func (b *Bus) Status() (track TrackInfo, position, duration time.Duration) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.track, b.position, b.duration
}

// Close tears the bus down and closes the monitor tap. Safe to call twice.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.primary = nil
	b.channels = nil
	b.pending = nil
	close(b.frameCh)
}
