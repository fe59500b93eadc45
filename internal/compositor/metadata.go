package compositor

import "github.com/gogpu/gg"

// rect is a layout box in frame pixels.
type rect struct {
	X, Y, W, H float64
}

// metaLayout positions the cover thumbnail and the title/artist text.
type metaLayout struct {
	Cover  rect
	Title  rect
	Artist rect
	Anchor float64 // horizontal text anchor: 0 left, 0.5 center
}

// layoutMetadata places the overlay: portrait frames get a centered stack at
// the top, landscape frames a cover with text to its right in the top-left.
func (c *Compositor) layoutMetadata(showCover bool) metaLayout {
	s := c.scale
	margin := refMargin * s
	cover := refCoverSize * s
	titleH := refTitleSize * s * lineSpacing
	artistH := refArtistSize * s * lineSpacing
	gap := refMetaGap * s

	var l metaLayout
	if c.cfg.Portrait() {
		l.Anchor = 0.5
		y := margin
		if showCover {
			l.Cover = rect{X: (float64(c.w) - cover) / 2, Y: y, W: cover, H: cover}
			y += cover + gap
		}
		l.Title = rect{X: float64(c.w) / 2, Y: y, W: float64(c.w) - 2*margin, H: titleH}
		l.Artist = rect{X: float64(c.w) / 2, Y: y + titleH, W: float64(c.w) - 2*margin, H: artistH}
		return l
	}

	x := margin
	textTop := margin
	if showCover {
		l.Cover = rect{X: margin, Y: margin, W: cover, H: cover}
		x += cover + gap
		textTop = margin + (cover-titleH-artistH)/2
	}
	l.Title = rect{X: x, Y: textTop, W: float64(c.w)/2 - x, H: titleH}
	l.Artist = rect{X: x, Y: textTop + titleH, W: float64(c.w)/2 - x, H: artistH}
	return l
}

func (c *Compositor) drawMetadata() {
	m := c.cfg.Metadata
	cover := c.cache.Cover()
	showCover := m.Cover && cover != nil
	showTitle := m.Title && c.track.Title != ""
	showArtist := m.Artist && c.track.Artist != ""
	if !showCover && !showTitle && !showArtist {
		return
	}
	l := c.layoutMetadata(showCover)

	if showCover {
		radius := 12 * c.scale
		c.dc.SetRGBA(0, 0, 0, 0.35)
		c.dc.DrawRoundedRectangle(l.Cover.X+4*c.scale, l.Cover.Y+4*c.scale, l.Cover.W, l.Cover.H, radius)
		if err := c.dc.Fill(); err != nil {
			c.log.Debug("cover shadow fill failed", "err", err)
		}
		c.dc.DrawImageEx(cover.Buf, gg.DrawImageOptions{
			X:             l.Cover.X,
			Y:             l.Cover.Y,
			DstWidth:      l.Cover.W,
			DstHeight:     l.Cover.H,
			Interpolation: gg.InterpBilinear,
			Opacity:       1,
		})
	}
	if showTitle {
		c.dc.SetFont(c.fonts.face(refTitleSize*c.scale, true))
		c.drawText(c.track.Title, l.Title.X, l.Title.Y+l.Title.H/2, l.Anchor, 0.5, gg.White, 1)
	}
	if showArtist {
		c.dc.SetFont(c.fonts.face(refArtistSize*c.scale, false))
		c.drawText(c.track.Artist, l.Artist.X, l.Artist.Y+l.Artist.H/2, l.Anchor, 0.5, gg.White, 0.75)
	}
}
