// Package assets resolves slide and cover references into ready-to-sample
// media handles before capture starts.
package assets

import (
	"image"
	"sync"

	"github.com/gogpu/gg"

	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/timeline"
)

// Handle is a loaded asset. The concrete type follows the slide kind:
// *ImageHandle, *VideoHandle or *AudioHandle.
type Handle interface {
	Kind() timeline.Kind
	Close() error
}

// ImageHandle is a decoded still image, converted once for drawing.
type ImageHandle struct {
	Buf *gg.ImageBuf
	W   int
	H   int
}

// NewImageHandle wraps a decoded image.
func NewImageHandle(img image.Image) *ImageHandle {
	b := img.Bounds()
	return &ImageHandle{Buf: gg.ImageBufFromImage(img), W: b.Dx(), H: b.Dy()}
}

func (*ImageHandle) Kind() timeline.Kind { return timeline.KindImage }
func (*ImageHandle) Close() error        { return nil }

// FrameSource yields the video frame shown at a slide-local time.
type FrameSource interface {
	// Frame returns the frame for local time t without blocking. ok is false
	// until the first frame is decoded.
	Frame(t float64) (img image.Image, ok bool)
	Close() error
}

// VideoHandle is a seekable video with an optional decoded audio channel.
type VideoHandle struct {
	Frames FrameSource
	Audio  *audio.Clip // nil when muted or silent

	mu   sync.Mutex
	last image.Image
	buf  *gg.ImageBuf
}

func (*VideoHandle) Kind() timeline.Kind { return timeline.KindVideo }

// FrameAt returns the drawable frame for local time t. Conversion to an
// ImageBuf is skipped while the source keeps returning the same frame.
func (v *VideoHandle) FrameAt(t float64) (*gg.ImageBuf, bool) {
	img, ok := v.Frames.Frame(t)
	if !ok {
		return nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if img != v.last {
		v.last = img
		v.buf = gg.ImageBufFromImage(img)
	}
	return v.buf, true
}

func (v *VideoHandle) Close() error {
	if v.Frames == nil {
		return nil
	}
	return v.Frames.Close()
}

// AudioHandle is a decoded audio overlay.
type AudioHandle struct {
	Clip *audio.Clip
}

func (*AudioHandle) Kind() timeline.Kind { return timeline.KindAudio }
func (*AudioHandle) Close() error        { return nil }

// StillFrames is a FrameSource that always returns the same image.
type StillFrames struct {
	Image image.Image
}

func (s StillFrames) Frame(float64) (image.Image, bool) { return s.Image, s.Image != nil }
func (StillFrames) Close() error                        { return nil }
