// Package encode turns composited frames and mixed PCM into an encoded
// video artifact.
package encode

import (
	"fmt"
	"strings"
)

// Codec is a video codec paired with the container and encoders that carry
// it.
type Codec struct {
	Name         string // h264, vp9, vp8, av1, mpeg4
	VideoEncoder string // ffmpeg encoder name
	AudioEncoder string
	Muxer        string
	Ext          string
	MIME         string

	// VideoOptions are extra output options for the video encoder.
	VideoOptions map[string]string
	// MuxOptions are extra output options needed to mux into a pipe.
	MuxOptions map[string]string
}

func (c Codec) String() string { return c.Name + "/" + c.Ext }

var fragmentedMP4 = map[string]string{"movflags": "frag_keyframe+empty_moov+default_base_moof"}

var codecs = map[string]Codec{
	"h264": {
		Name: "h264", VideoEncoder: "libx264", AudioEncoder: "aac", Muxer: "mp4", Ext: "mp4", MIME: "video/mp4",
		VideoOptions: map[string]string{"preset": "veryfast", "tune": "zerolatency"},
		MuxOptions:   fragmentedMP4,
	},
	"vp9": {
		Name: "vp9", VideoEncoder: "libvpx-vp9", AudioEncoder: "libopus", Muxer: "webm", Ext: "webm", MIME: "video/webm",
		VideoOptions: map[string]string{"deadline": "realtime", "cpu-used": "8", "row-mt": "1"},
	},
	"vp8": {
		Name: "vp8", VideoEncoder: "libvpx", AudioEncoder: "libopus", Muxer: "webm", Ext: "webm", MIME: "video/webm",
		VideoOptions: map[string]string{"deadline": "realtime", "cpu-used": "8"},
	},
	"av1": {
		Name: "av1", VideoEncoder: "libsvtav1", AudioEncoder: "libopus", Muxer: "webm", Ext: "webm", MIME: "video/webm",
		VideoOptions: map[string]string{"preset": "10"},
	},
	"mpeg4": {
		Name: "mpeg4", VideoEncoder: "mpeg4", AudioEncoder: "aac", Muxer: "mp4", Ext: "mp4", MIME: "video/mp4",
		MuxOptions: fragmentedMP4,
	},
}

// Fallbacks is the ordered list of known-good codecs tried when the
// preferred one is unavailable.
var Fallbacks = []string{"h264", "vp9", "vp8", "mpeg4"}

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, bool) {
	c, ok := codecs[strings.ToLower(name)]
	return c, ok
}

// Support reports which encoders and muxers the host provides.
// ffmpeg.Capabilities implements it.
type Support interface {
	HasEncoder(name string) bool
	HasMuxer(name string) bool
}

// CapabilityError means no codec could be negotiated.
type CapabilityError struct {
	Preferred string
	Tried     []string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("no supported codec (preferred %q, tried %s)", e.Preferred, strings.Join(e.Tried, ", "))
}

func supported(c Codec, s Support) bool {
	return s.HasEncoder(c.VideoEncoder) && s.HasEncoder(c.AudioEncoder) && s.HasMuxer(c.Muxer)
}

// Negotiate picks the preferred codec if the host supports it, else the
// first supported entry of Fallbacks.
func Negotiate(preferred string, s Support) (Codec, error) {
	var tried []string
	if c, ok := Lookup(preferred); ok {
		if supported(c, s) {
			return c, nil
		}
		tried = append(tried, c.String())
	}
	for _, name := range Fallbacks {
		c := codecs[name]
		if c.Name == strings.ToLower(preferred) {
			continue
		}
		if supported(c, s) {
			return c, nil
		}
		tried = append(tried, c.String())
	}
	return Codec{}, &CapabilityError{Preferred: preferred, Tried: tried}
}
