package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Capabilities is the set of encoders and muxers the host ffmpeg provides.
type Capabilities struct {
	Encoders map[string]bool
	Muxers   map[string]bool
}

// HasEncoder reports whether the named encoder is available.
func (c Capabilities) HasEncoder(name string) bool { return c.Encoders[name] }

// HasMuxer reports whether the named muxer is available.
func (c Capabilities) HasMuxer(name string) bool { return c.Muxers[name] }

// LoadCapabilities queries the host ffmpeg.
func LoadCapabilities(ctx context.Context) (Capabilities, error) {
	enc, err := listCommand(ctx, "-encoders")
	if err != nil {
		return Capabilities{}, err
	}
	encoders, err := ParseEncoders(bytes.NewReader(enc))
	if err != nil {
		return Capabilities{}, fmt.Errorf("parse encoders: %w", err)
	}

	mux, err := listCommand(ctx, "-muxers")
	if err != nil {
		return Capabilities{}, err
	}
	muxers, err := ParseMuxers(bytes.NewReader(mux))
	if err != nil {
		return Capabilities{}, fmt.Errorf("parse muxers: %w", err)
	}
	return Capabilities{Encoders: encoders, Muxers: muxers}, nil
}

func listCommand(ctx context.Context, arg string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, FFmpegPath, "-hide_banner", arg).Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", FFmpegPath, arg, err)
	}
	return out, nil
}

// ParseEncoders parses the output of "ffmpeg -encoders". Entries follow a
// " ------" separator line as "<flags> <name> <description>".
func ParseEncoders(r io.Reader) (map[string]bool, error) {
	return parseListing(r, func(line string) bool {
		return strings.HasPrefix(strings.TrimSpace(line), "------")
	})
}

// ParseMuxers parses the output of "ffmpeg -muxers". Entries follow a " --"
// separator line as "<flags> <name[,name]> <description>".
func ParseMuxers(r io.Reader) (map[string]bool, error) {
	return parseListing(r, func(line string) bool {
		return strings.TrimSpace(line) == "--"
	})
}

func parseListing(r io.Reader, isSeparator func(string) bool) (map[string]bool, error) {
	names := make(map[string]bool)
	started := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !started {
			started = isSeparator(line)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			if name != "" {
				names[name] = true
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !started {
		return nil, fmt.Errorf("no listing separator found")
	}
	return names, nil
}
