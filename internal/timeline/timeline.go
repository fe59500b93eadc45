// Package timeline holds the time-windowed model a render is driven by:
// slides, caption lines and the selection rules evaluated at a playback time.
package timeline

import (
	"fmt"
	"math"
)

// Kind is the media kind carried by a slide.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindAudio
)

var kindNames = map[Kind]string{
	KindImage: "image",
	KindVideo: "video",
	KindAudio: "audio",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown (%d)", int(k))
}

// ParseKind maps a name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown slide kind %q", s)
}

// Visual reports whether the kind paints the background layer.
func (k Kind) Visual() bool { return k == KindImage || k == KindVideo }

// Audible reports whether the kind carries its own audio channel.
func (k Kind) Audible() bool { return k == KindVideo || k == KindAudio }

// Window is a half-open interval [Start, End) in seconds.
type Window struct {
	Start float64
	End   float64
}

// Contains reports whether t falls inside the window. End is exclusive.
func (w Window) Contains(t float64) bool {
	return t >= w.Start && t < w.End
}

// Duration returns End - Start.
func (w Window) Duration() float64 { return w.End - w.Start }

// Local converts track time to window-relative time.
func (w Window) Local(t float64) float64 { return t - w.Start }

// Slide is one visual or audio overlay on the track timeline.
type Slide struct {
	ID     string
	Kind   Kind
	Window Window
	Source string
	// Muted overrides the per-kind default when set.
	Muted  *bool
	Volume float64
}

// IsMuted resolves the mute flag. Video is audible unless explicitly muted,
// audio overlays are muted unless explicitly unmuted.
func (s Slide) IsMuted() bool {
	if s.Muted != nil {
		return *s.Muted
	}
	return s.Kind == KindAudio
}

// Gain is the linear gain the slide contributes at time t: zero when muted
// or outside the window, otherwise the clamped volume.
func (s Slide) Gain(t float64) float64 {
	if !s.Kind.Audible() || s.IsMuted() || !s.Window.Contains(t) {
		return 0
	}
	return clamp01(s.Volume)
}

// ActiveVisual returns the visual slide on screen at t. When windows
// overlap the later-declared slide wins.
func ActiveVisual(slides []Slide, t float64) (Slide, bool) {
	for i := len(slides) - 1; i >= 0; i-- {
		s := slides[i]
		if s.Kind.Visual() && s.Window.Contains(t) {
			return s, true
		}
	}
	return Slide{}, false
}

// ActiveAudible returns every audio-bearing slide whose window contains t.
// These are mixed together, never tie-broken.
func ActiveAudible(slides []Slide, t float64) []Slide {
	var out []Slide
	for _, s := range slides {
		if s.Kind.Audible() && s.Window.Contains(t) {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
