package compositor

import (
	"github.com/gogpu/gg"

	"github.com/satindergrewal/lyricast/internal/project"
	"github.com/satindergrewal/lyricast/internal/timeline"
)

type captionRow struct {
	text   string
	active bool
}

func (c *Compositor) drawCaptions(t float64) {
	caps := c.track.Captions
	if len(caps) == 0 {
		c.drawPlaceholder()
		return
	}
	active := caps.ActiveIndex(t)
	visible := caps.Visible(c.cfg.Display, active)
	if len(visible) == 0 {
		return
	}

	size := c.cfg.FontSize * c.scale
	lineH := size * lineSpacing
	maxW := float64(c.w) - 2*refMargin*c.scale

	var rows []captionRow
	activeRow := -1
	for _, v := range visible {
		c.dc.SetFont(c.fonts.face(size, c.cfg.Bold || v.Active))
		for _, text := range c.wrap(caps[v.Index].Text, maxW) {
			if v.Active && activeRow < 0 {
				activeRow = len(rows)
			}
			rows = append(rows, captionRow{text: text, active: v.Active})
		}
	}
	if len(rows) == 0 {
		return
	}

	// The active line sits at the vertical center in scrolling mode; the
	// other modes center the whole block.
	centerY := float64(c.h) / 2
	var top float64
	if c.cfg.Display == timeline.DisplayAll && activeRow >= 0 {
		top = centerY - float64(activeRow)*lineH - lineH/2
	} else {
		top = centerY - float64(len(rows))*lineH/2
	}

	x, ax := c.anchorX()
	text := gg.Hex(c.cfg.TextColor)
	highlight := gg.Hex(c.cfg.HighlightColor)
	entrance := 1.0
	if active >= 0 {
		entrance = timeline.Entrance(caps.Window(active), t, entranceLength)
	}

	for i, r := range rows {
		y := top + float64(i)*lineH + lineH/2
		if y < -lineH || y > float64(c.h)+lineH {
			continue
		}
		col, alpha := text, inactiveAlpha
		if r.active {
			col, alpha = highlight, 1.0
			switch c.cfg.Animation {
			case project.AnimationFade:
				alpha *= entrance
			case project.AnimationRise:
				alpha *= entrance
				y += (1 - entrance) * lineH * 0.5
			}
		} else if c.cfg.Display == timeline.DisplayActive {
			col, alpha = text, 1.0
		}
		c.dc.SetFont(c.fonts.face(size, c.cfg.Bold || r.active))
		c.drawText(r.text, x, y, ax, 0.5, col, alpha)
	}
}

// drawPlaceholder shows title and artist when a track has no captions.
func (c *Compositor) drawPlaceholder() {
	title := c.track.Title
	if title == "" {
		title = "Untitled"
	}
	x, ax := c.anchorX()
	cy := float64(c.h) / 2
	size := c.cfg.FontSize * c.scale * 1.2
	c.dc.SetFont(c.fonts.face(size, true))
	c.drawText(title, x, cy-size*0.4, ax, 0.5, gg.Hex(c.cfg.HighlightColor), 1)
	if c.track.Artist != "" {
		c.dc.SetFont(c.fonts.face(size*0.6, false))
		c.drawText(c.track.Artist, x, cy+size*0.7, ax, 0.5, gg.Hex(c.cfg.TextColor), 0.85)
	}
}
