package audio

// clip16 saturates v to the int16 range.
func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// MixInto adds src scaled by gain into dst, clipping each sample. Only the
// overlapping prefix of the two slices is mixed.
func MixInto(dst, src []int16, gain float64) {
	if gain == 0 {
		return
	}
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = clip16(float64(dst[i]) + float64(src[i])*gain)
	}
}

// Scale multiplies every sample by gain, clipping.
func Scale(samples []int16, gain float64) {
	if gain == 1 {
		return
	}
	for i, s := range samples {
		samples[i] = clip16(float64(s) * gain)
	}
}
