package assets

import (
	"bytes"
	"context"
	"image"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/satindergrewal/lyricast/internal/ffmpeg"
)

// testClip writes a 3s 10fps test pattern, skipping without ffmpeg.
func testClip(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath(ffmpeg.FFmpegPath); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	clip := filepath.Join(t.TempDir(), "clip.mp4")
	gen := &ffmpeg.Cmd{
		Inputs: []*ffmpeg.Input{{File: "testsrc=size=64x36:rate=10:duration=3", Format: "lavfi"}},
		Outputs: []*ffmpeg.Output{{
			File:    clip,
			Options: map[string]string{"pix_fmt": "yuv420p"},
		}},
	}
	if err := gen.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	return clip
}

func TestFFmpegFramesResync(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	ctx := context.Background()
	clip := testClip(t)

	l := NewMediaLoader(32, 18, 10, nil, nil)
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	h, err := l.LoadVideo(pctx, clip, true)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if h.Audio != nil {
		t.Error("testsrc has no audio stream")
	}
	buf, ok := h.FrameAt(0)
	if !ok {
		t.Fatal("first frame should be ready after load")
	}
	if w, hh := buf.Bounds(); w != 32 || hh != 18 {
		t.Errorf("frame size = %dx%d, want 32x18", w, hh)
	}

	// Jump ahead past the lag tolerance; the source must keep returning a
	// frame while it restarts and then catch up.
	frames := h.Frames.(*ffmpegFrames)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := frames.Frame(2.0); !ok {
			t.Fatal("Frame returned nothing during resync")
		}
		frames.mu.Lock()
		idx := frames.curIdx
		frames.mu.Unlock()
		if idx == 20 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("decoder never reached frame 20, at %d", idx)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// renderClip plays clip from the start the way the scheduler does, as fast
// as Frame returns, and keeps a copy of every frame.
func renderClip(t *testing.T, clip string, wait time.Duration) [][]byte {
	t.Helper()
	l := NewMediaLoader(32, 18, 10, nil, nil)
	l.FrameWait = wait
	defer l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, err := l.LoadVideo(ctx, clip, false)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	var out [][]byte
	for n := range 30 {
		img, ok := h.Frames.Frame(float64(n) / 10)
		if !ok {
			t.Fatalf("no frame at %d", n)
		}
		out = append(out, bytes.Clone(img.(*image.RGBA).Pix))
	}
	return out
}

func TestFFmpegFramesWaitIsReproducible(t *testing.T) {
	clip := testClip(t)
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	first := renderClip(t, clip, 5*time.Second)
	second := renderClip(t, clip, 5*time.Second)
	for n := range first {
		if !bytes.Equal(first[n], second[n]) {
			t.Fatalf("frame %d differs between renders", n)
		}
	}
}

func TestFFmpegFramesWaitRewinds(t *testing.T) {
	clip := testClip(t)
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	l := NewMediaLoader(32, 18, 10, nil, nil)
	l.FrameWait = 5 * time.Second
	defer l.Close()
	h, err := l.LoadVideo(context.Background(), clip, false)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	frames := h.Frames.(*ffmpegFrames)

	for _, target := range []int{15, 5} {
		if _, ok := frames.Frame(float64(target) / 10); !ok {
			t.Fatalf("no frame at %d", target)
		}
		frames.mu.Lock()
		idx := frames.curIdx
		frames.mu.Unlock()
		if idx != target {
			t.Errorf("after Frame(%d) decoder at %d", target, idx)
		}
	}
}
