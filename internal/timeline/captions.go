package timeline

import (
	"fmt"
	"math"
	"sort"
)

// Caption is one timed line. End is zero when the line runs until the next
// line starts.
type Caption struct {
	Time float64
	End  float64
	Text string
}

// Captions is a line list ordered by Time ascending.
type Captions []Caption

// Window returns the active window of line i. The last line without an
// explicit end stays active until the track ends.
func (c Captions) Window(i int) Window {
	w := Window{Start: c[i].Time, End: math.Inf(1)}
	switch {
	case c[i].End > 0:
		w.End = c[i].End
	case i+1 < len(c):
		w.End = c[i+1].Time
	}
	return w
}

// ActiveIndex returns the index of the line whose window contains t, or -1.
// Among overlapping explicit windows the most recently started line wins.
func (c Captions) ActiveIndex(t float64) int {
	// last line with Time <= t
	i := sort.Search(len(c), func(i int) bool { return c[i].Time > t }) - 1
	for ; i >= 0; i-- {
		if c.Window(i).Contains(t) {
			return i
		}
	}
	return -1
}

// Validate checks ordering and explicit end times.
func (c Captions) Validate() error {
	for i, line := range c {
		if line.Time < 0 {
			return fmt.Errorf("caption %d has negative time", i)
		}
		if line.End != 0 && line.End <= line.Time {
			return fmt.Errorf("caption %d ends at %.3f before it starts at %.3f", i, line.End, line.Time)
		}
		if i > 0 && line.Time < c[i-1].Time {
			return fmt.Errorf("caption %d at %.3f is before caption %d at %.3f", i, line.Time, i-1, c[i-1].Time)
		}
	}
	return nil
}

// DisplayMode selects which lines around the active one are drawn.
type DisplayMode int

const (
	DisplayAll DisplayMode = iota
	DisplayActive
	DisplayActiveNext
	DisplayContext
)

var displayModeNames = map[DisplayMode]string{
	DisplayAll:        "all",
	DisplayActive:     "active",
	DisplayActiveNext: "active-next",
	DisplayContext:    "context",
}

func (m DisplayMode) String() string {
	if s, ok := displayModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("unknown (%d)", int(m))
}

// ParseDisplayMode maps a name to a DisplayMode.
func ParseDisplayMode(s string) (DisplayMode, error) {
	for m, name := range displayModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown display mode %q", s)
}

// VisibleLine is a line chosen for drawing.
type VisibleLine struct {
	Index  int
	Active bool
}

// Visible returns the lines to draw for the given active index, in order.
// Nothing is drawn when no line is active.
func (c Captions) Visible(mode DisplayMode, active int) []VisibleLine {
	if active < 0 || active >= len(c) {
		return nil
	}
	lo, hi := active, active
	switch mode {
	case DisplayAll:
		lo, hi = 0, len(c)-1
	case DisplayActiveNext:
		hi = active + 1
	case DisplayContext:
		lo, hi = active-1, active+1
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(c)-1 {
		hi = len(c) - 1
	}
	out := make([]VisibleLine, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, VisibleLine{Index: i, Active: i == active})
	}
	return out
}
