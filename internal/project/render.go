package project

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satindergrewal/lyricast/internal/timeline"
)

// Animation is the entrance effect of the active caption line.
type Animation string

const (
	AnimationNone Animation = "none"
	AnimationFade Animation = "fade"
	AnimationRise Animation = "rise"
)

// Align is the horizontal caption alignment.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Background is the background source policy, evaluated in order:
// timeline slides, configured color/gradient, cover art, default gradient.
type Background struct {
	Slides   bool
	Color    string
	Gradient []string
	Cover    bool
}

// Metadata toggles the cover/title/artist overlay.
type Metadata struct {
	Cover  bool
	Title  bool
	Artist bool
}

// RenderConfig is the read-only configuration of one render session.
type RenderConfig struct {
	Resolution  int
	AspectRatio string
	FrameRate   int
	Codec       string
	Quality     string

	Display        timeline.DisplayMode
	Animation      Animation
	Align          Align
	FontSize       float64 // pixels at the 1080p reference
	Bold           bool
	TextColor      string
	HighlightColor string

	Background Background
	Metadata   Metadata
}

// DefaultRenderConfig returns the built-in render defaults.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Resolution:     1080,
		AspectRatio:    "16:9",
		FrameRate:      30,
		Codec:          "h264",
		Quality:        "high",
		Display:        timeline.DisplayContext,
		Animation:      AnimationFade,
		Align:          AlignCenter,
		FontSize:       64,
		Bold:           true,
		TextColor:      "#FFFFFF",
		HighlightColor: "#FFD166",
		Background:     Background{Slides: true, Cover: true},
		Metadata:       Metadata{Cover: true, Title: true, Artist: true},
	}
}

// Aspect terms are small integers and the long side is at most maxAspect
// times the short side, which keeps the canvas size bounded.
const (
	maxAspectTerm = 100
	maxAspect     = 4
)

// Aspect parses AspectRatio into its two terms.
func (c RenderConfig) Aspect() (w, h int, err error) {
	parts := strings.SplitN(c.AspectRatio, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("aspect ratio %q is not W:H", c.AspectRatio)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("aspect ratio %q is not W:H", c.AspectRatio)
	}
	if w > maxAspectTerm || h > maxAspectTerm || max(w, h) > maxAspect*min(w, h) {
		return 0, 0, fmt.Errorf("aspect ratio %q is out of range", c.AspectRatio)
	}
	return w, h, nil
}

// Portrait reports whether the output is taller than wide.
func (c RenderConfig) Portrait() bool {
	w, h, err := c.Aspect()
	return err == nil && h > w
}

// Size returns the output dimensions. The resolution tier is the short side;
// both sides are rounded down to even numbers for yuv420p.
func (c RenderConfig) Size() (width, height int) {
	w, h, err := c.Aspect()
	if err != nil {
		w, h = 16, 9
	}
	short := c.Resolution
	if w >= h {
		height = short
		width = short * w / h
	} else {
		width = short
		height = short * h / w
	}
	return width &^ 1, height &^ 1
}

// Scale is the factor from the 1080p reference to the output short side.
func (c RenderConfig) Scale() float64 {
	w, h := c.Size()
	short := min(w, h)
	return float64(short) / 1080
}

// Validate rejects settings the engine cannot render.
func (c RenderConfig) Validate() error {
	if _, _, err := c.Aspect(); err != nil {
		return err
	}
	switch c.Resolution {
	case 360, 480, 720, 1080, 1440, 2160:
	default:
		return fmt.Errorf("unsupported resolution tier %d", c.Resolution)
	}
	if c.FrameRate < 1 || c.FrameRate > 120 {
		return fmt.Errorf("frame rate %d out of range 1-120", c.FrameRate)
	}
	switch c.Quality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("unknown quality %q", c.Quality)
	}
	switch c.Animation {
	case AnimationNone, AnimationFade, AnimationRise:
	default:
		return fmt.Errorf("unknown animation %q", c.Animation)
	}
	switch c.Align {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return fmt.Errorf("unknown alignment %q", c.Align)
	}
	if c.FontSize <= 0 {
		return fmt.Errorf("font size must be positive, got %v", c.FontSize)
	}
	return nil
}
