package timeline

// Smoothstep returns the smoothstep interpolation for t in [0,1]: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Entrance returns eased progress of an entrance animation of length dur
// that starts at the window start.
func Entrance(w Window, t, dur float64) float64 {
	if dur <= 0 {
		return 1
	}
	return Smoothstep(w.Local(t) / dur)
}
