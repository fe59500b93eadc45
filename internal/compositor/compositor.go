// Package compositor paints one output frame for a playback time from the
// background, wash, caption and metadata layers.
package compositor

import (
	"image"
	"log/slog"
	"strings"

	"github.com/gogpu/gg"

	"github.com/satindergrewal/lyricast/internal/assets"
	"github.com/satindergrewal/lyricast/internal/project"
	"github.com/satindergrewal/lyricast/internal/timeline"
)

// Reference sizes in pixels at 1080p; scaled by RenderConfig.Scale.
const (
	refMargin      = 60.0
	refCoverSize   = 160.0
	refTitleSize   = 44.0
	refArtistSize  = 32.0
	refMetaGap     = 24.0
	lineSpacing    = 1.35
	entranceLength = 0.35 // seconds
	inactiveAlpha  = 0.55
)

// Wash opacity per background source.
const (
	washSlide = 0.30
	washCover = 0.60
	washFlat  = 0.15
)

var defaultGradient = []string{"#1A1A2E", "#16213E", "#0F3460"}

// BackgroundSource says which layer painted the background.
type BackgroundSource int

const (
	BackgroundDefault BackgroundSource = iota
	BackgroundSlide
	BackgroundColor
	BackgroundGradient
	BackgroundCover
)

// Compositor renders frames for one session. Not safe for concurrent use;
// the scheduling loop is its only caller.
type Compositor struct {
	cfg   project.RenderConfig
	w, h  int
	scale float64
	dc    *gg.Context
	fonts *fonts
	cache *assets.Cache
	log   *slog.Logger

	track project.Track
}

// New creates a compositor drawing from cache.
func New(cfg project.RenderConfig, cache *assets.Cache, logger *slog.Logger) (*Compositor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f, err := loadFonts()
	if err != nil {
		return nil, err
	}
	w, h := cfg.Size()
	return &Compositor{
		cfg:   cfg,
		w:     w,
		h:     h,
		scale: cfg.Scale(),
		dc:    gg.NewContext(w, h),
		fonts: f,
		cache: cache,
		log:   logger,
	}, nil
}

// Size returns the frame dimensions.
func (c *Compositor) Size() (w, h int) { return c.w, c.h }

// SetTrack switches the captions, slides and metadata being drawn.
func (c *Compositor) SetTrack(tr project.Track) {
	c.track = tr
}

// Render paints the frame for track time t.
func (c *Compositor) Render(t float64) *image.RGBA {
	src := c.drawBackground(t)
	c.drawWash(src)
	c.drawCaptions(t)
	c.drawMetadata()
	return c.dc.Image().(*image.RGBA)
}

// Close releases the drawing context.
func (c *Compositor) Close() error {
	return c.dc.Close()
}

// background picks the source for time t without drawing.
func (c *Compositor) background(t float64) (BackgroundSource, timeline.Slide) {
	bg := c.cfg.Background
	if bg.Slides {
		if s, ok := timeline.ActiveVisual(c.track.Slides, t); ok {
			if _, ready := c.cache.Get(s.ID); ready {
				return BackgroundSlide, s
			}
		}
	}
	switch {
	case bg.Color != "":
		return BackgroundColor, timeline.Slide{}
	case len(bg.Gradient) >= 2:
		return BackgroundGradient, timeline.Slide{}
	case bg.Cover && c.cache.Cover() != nil:
		return BackgroundCover, timeline.Slide{}
	}
	return BackgroundDefault, timeline.Slide{}
}

func (c *Compositor) drawBackground(t float64) BackgroundSource {
	src, s := c.background(t)
	switch src {
	case BackgroundSlide:
		c.dc.ClearWithColor(gg.Black)
		h, _ := c.cache.Get(s.ID)
		switch h := h.(type) {
		case *assets.ImageHandle:
			c.drawFill(h.Buf, h.W, h.H)
		case *assets.VideoHandle:
			if buf, ok := h.FrameAt(s.Window.Local(t)); ok {
				w, hh := buf.Bounds()
				c.drawFill(buf, w, hh)
			}
		}
	case BackgroundColor:
		c.dc.ClearWithColor(gg.Hex(c.cfg.Background.Color))
	case BackgroundGradient:
		c.fillGradient(c.cfg.Background.Gradient)
	case BackgroundCover:
		c.dc.ClearWithColor(gg.Black)
		cover := c.cache.Cover()
		c.drawFill(cover.Buf, cover.W, cover.H)
	default:
		c.fillGradient(defaultGradient)
	}
	return src
}

// drawFill scales an image to cover the frame, centered and cropped.
func (c *Compositor) drawFill(buf *gg.ImageBuf, iw, ih int) {
	if buf == nil || iw == 0 || ih == 0 {
		return
	}
	k := max(float64(c.w)/float64(iw), float64(c.h)/float64(ih))
	dw, dh := float64(iw)*k, float64(ih)*k
	c.dc.DrawImageEx(buf, gg.DrawImageOptions{
		X:             (float64(c.w) - dw) / 2,
		Y:             (float64(c.h) - dh) / 2,
		DstWidth:      dw,
		DstHeight:     dh,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
	})
}

func (c *Compositor) fillGradient(stops []string) {
	g := gg.NewLinearGradientBrush(0, 0, float64(c.w), float64(c.h))
	for i, s := range stops {
		g.AddColorStop(float64(i)/float64(len(stops)-1), gg.Hex(s))
	}
	c.dc.SetFillBrush(g)
	c.dc.DrawRectangle(0, 0, float64(c.w), float64(c.h))
	if err := c.dc.Fill(); err != nil {
		c.log.Debug("gradient fill failed", "err", err)
	}
}

func (c *Compositor) drawWash(src BackgroundSource) {
	alpha := washFlat
	switch src {
	case BackgroundSlide:
		alpha = washSlide
	case BackgroundCover:
		alpha = washCover
	}
	c.dc.SetRGBA(0, 0, 0, alpha)
	c.dc.DrawRectangle(0, 0, float64(c.w), float64(c.h))
	if err := c.dc.Fill(); err != nil {
		c.log.Debug("wash fill failed", "err", err)
	}
}

func (c *Compositor) setColor(col gg.RGBA, alpha float64) {
	c.dc.SetRGBA(col.R, col.G, col.B, col.A*alpha)
}

// drawText draws s with a soft drop shadow.
func (c *Compositor) drawText(s string, x, y, ax, ay float64, col gg.RGBA, alpha float64) {
	off := 2 * c.scale
	c.dc.SetRGBA(0, 0, 0, 0.45*alpha)
	c.dc.DrawStringAnchored(s, x+off, y+off, ax, ay)
	c.setColor(col, alpha)
	c.dc.DrawStringAnchored(s, x, y, ax, ay)
}

// wrap breaks s into lines no wider than maxW with the current font.
func (c *Compositor) wrap(s string, maxW float64) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if cw, _ := c.dc.MeasureString(candidate); cw > maxW {
			lines = append(lines, line)
			line = w
			continue
		}
		line = candidate
	}
	return append(lines, line)
}

func (c *Compositor) anchorX() (x, ax float64) {
	margin := refMargin * c.scale
	switch c.cfg.Align {
	case project.AlignLeft:
		return margin, 0
	case project.AlignRight:
		return float64(c.w) - margin, 1
	}
	return float64(c.w) / 2, 0.5
}
