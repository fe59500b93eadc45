package assets

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/ffmpeg"
)

// Loader turns a media reference into a handle.
type Loader interface {
	LoadImage(ctx context.Context, ref string) (*ImageHandle, error)
	LoadVideo(ctx context.Context, ref string, withAudio bool) (*VideoHandle, error)
	LoadAudio(ctx context.Context, ref string) (*AudioHandle, error)
}

// MediaLoader decodes images in-process and audio/video through ffmpeg.
// Video frames are scaled and cropped to Width x Height at FPS.
//
// FrameWait, when set, makes video frame lookups wait up to that long for
// the exact frame instead of returning the newest decoded one. Renders not
// paced by the wall clock set it so their output is reproducible.
type MediaLoader struct {
	Width, Height, FPS int
	FrameWait          time.Duration
	Fetcher            *Fetcher
	Logger             *slog.Logger
}

// NewMediaLoader creates a loader for the given output geometry.
func NewMediaLoader(width, height, fps int, fetcher *Fetcher, logger *slog.Logger) *MediaLoader {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MediaLoader{Width: width, Height: height, FPS: fps, Fetcher: fetcher, Logger: logger}
}

// Close removes the files downloaded for remote references. Handles loaded
// from them must be closed first.
func (l *MediaLoader) Close() error {
	l.Fetcher.Cleanup()
	return nil
}

func (l *MediaLoader) LoadImage(ctx context.Context, ref string) (*ImageHandle, error) {
	p, err := l.Fetcher.Local(ctx, ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", ref, err)
	}
	l.Logger.Debug("image loaded", "ref", ref, "format", format, "size", img.Bounds().Size())
	return NewImageHandle(img), nil
}

func (l *MediaLoader) LoadVideo(ctx context.Context, ref string, withAudio bool) (*VideoHandle, error) {
	p, err := l.Fetcher.Local(ctx, ref)
	if err != nil {
		return nil, err
	}
	info, err := ffmpeg.Probe(ctx, p)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo() {
		return nil, fmt.Errorf("video %s: no video stream", ref)
	}

	frames, err := openFrames(ctx, p, l.Width, l.Height, l.FPS, l.FrameWait, l.Logger)
	if err != nil {
		return nil, err
	}
	h := &VideoHandle{Frames: frames}
	if withAudio && info.HasAudio() {
		clip, err := audio.DecodeFile(ctx, p)
		if err != nil {
			frames.Close()
			return nil, err
		}
		h.Audio = clip
	}
	return h, nil
}

func (l *MediaLoader) LoadAudio(ctx context.Context, ref string) (*AudioHandle, error) {
	p, err := l.Fetcher.Local(ctx, ref)
	if err != nil {
		return nil, err
	}
	clip, err := audio.DecodeFile(ctx, p)
	if err != nil {
		return nil, err
	}
	return &AudioHandle{Clip: clip}, nil
}
