package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/satindergrewal/lyricast/internal/ffmpeg"
)

// DecodeFile decodes the audio stream of a file or URL to interleaved stereo
// PCM at 48kHz.
func DecodeFile(ctx context.Context, path string) (*Clip, error) {
	var out bytes.Buffer
	cmd := &ffmpeg.Cmd{
		Inputs: []*ffmpeg.Input{{File: path}},
		Outputs: []*ffmpeg.Output{{
			File:   &out,
			Format: "s16le",
			Options: map[string]string{
				"map":    "0:a:0",
				"acodec": "pcm_s16le",
				"ar":     strconv.Itoa(SampleRate),
				"ac":     strconv.Itoa(Channels),
			},
		}},
	}
	if err := cmd.Run(ctx); err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}
	return &Clip{Samples: BytesToSamples(out.Bytes())}, nil
}

// BytesToSamples converts little-endian bytes to int16 samples. A trailing
// odd byte is dropped.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
