package ffmpeg

import (
	"strconv"
	"strings"
	"unicode"
)

// Progress is one block of -progress output.
type Progress struct {
	Frame     int64
	FPS       float64
	TotalSize int64
	OutTimeUS int64
	Speed     float64
	Progress  string // "continue" or "end"
}

// OutSeconds returns the encoded output time in seconds.
func (p Progress) OutSeconds() float64 {
	return float64(p.OutTimeUS) / 1e6
}

// ParseProgress folds one "key=value" line into p and reports whether the
// line closed a block.
func ParseProgress(p *Progress, line string) bool {
	name, raw, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return false
	}
	value := strings.TrimFunc(raw, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	i64, _ := strconv.ParseInt(value, 10, 64)
	f64, _ := strconv.ParseFloat(value, 64)

	switch name {
	case "frame":
		p.Frame = i64
	case "fps":
		p.FPS = f64
	case "total_size":
		p.TotalSize = i64
	case "out_time_us":
		p.OutTimeUS = i64
	case "speed":
		p.Speed = f64
	case "progress":
		p.Progress = strings.TrimSpace(raw)
		return true
	}
	return false
}
