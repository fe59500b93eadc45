package encode

// Video bitrate in bits per second at 30fps and high quality, per
// resolution tier (the short side of the frame).
var tierBitrate = map[int]int{
	360:  1_000_000,
	480:  2_500_000,
	720:  5_000_000,
	1080: 8_000_000,
	1440: 16_000_000,
	2160: 35_000_000,
}

var qualityMultiplier = map[string]float64{
	"low":    0.5,
	"medium": 0.75,
	"high":   1.0,
}

// AudioBitrate is the encoded audio bitrate in bits per second.
const AudioBitrate = 192_000

// Bitrate returns the video bitrate: tier × frame-rate multiplier × quality
// multiplier. Unknown tiers use the nearest lower tier; unknown qualities
// count as high.
func Bitrate(tier, fps int, quality string) int {
	base := tierBitrate[360]
	best := 0
	for t, b := range tierBitrate {
		if t <= tier && t > best {
			best, base = t, b
		}
	}
	q, ok := qualityMultiplier[quality]
	if !ok {
		q = 1
	}
	return int(float64(base) * fpsMultiplier(fps) * q)
}

func fpsMultiplier(fps int) float64 {
	switch {
	case fps > 30:
		return 1.5
	case fps < 24:
		return 0.75
	}
	return 1
}
