package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe's JSON output the engine reads.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ProbeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

// Stream returns the first stream of the given codec type.
func (r ProbeResult) Stream(codecType string) (ProbeStream, bool) {
	for _, s := range r.Streams {
		if s.CodecType == codecType {
			return s, true
		}
	}
	return ProbeStream{}, false
}

// HasAudio reports whether the media carries an audio stream.
func (r ProbeResult) HasAudio() bool {
	_, ok := r.Stream("audio")
	return ok
}

// HasVideo reports whether the media carries a video stream.
func (r ProbeResult) HasVideo() bool {
	_, ok := r.Stream("video")
	return ok
}

// Duration returns the container duration in seconds, falling back to the
// longest stream duration. Zero means unknown.
func (r ProbeResult) Duration() float64 {
	if d, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil && d > 0 {
		return d
	}
	var longest float64
	for _, s := range r.Streams {
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > longest {
			longest = d
		}
	}
	return longest
}

// Probe runs ffprobe on a file or URL.
func Probe(ctx context.Context, input string) (ProbeResult, error) {
	cmd := exec.CommandContext(ctx, FFprobePath,
		"-hide_banner",
		"-loglevel", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	)
	var stdout bytes.Buffer
	stderr := newTail(20)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		stderr.Close()
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w: %s", input, err, strings.TrimSpace(stderr.String()))
	}

	var res ProbeResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: decode: %w", input, err)
	}
	return res, nil
}
