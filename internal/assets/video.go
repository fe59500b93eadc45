package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/satindergrewal/lyricast/internal/ffmpeg"
)

var errFramesStopped = errors.New("frame decoder stopped")

type decodedFrame struct {
	idx int
	img *image.RGBA
}

// ffmpegFrames decodes a video to RGBA frames at the render size and rate in
// a background process. With wait zero Frame never blocks: it returns the
// newest decoded frame not past the requested time and restarts the decoder
// at the requested position when playback and decoding drift apart. With
// wait set Frame blocks up to wait for the exact frame, so renders that are
// not paced by the wall clock see the same frames every time.
type ffmpegFrames struct {
	ref         string
	w, h, fps   int
	resyncAfter int // frames of lag tolerated before a restart
	wait        time.Duration
	log         *slog.Logger

	quit     chan struct{}
	quitOnce sync.Once

	mu      sync.Mutex
	frames  chan decodedFrame
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cur     *image.RGBA
	curIdx  int
	peek    *decodedFrame
	seeking bool
	eof     bool
	closed  bool
}

// openFrames starts decoding from the beginning and waits, bounded by ctx,
// for the first frame.
func openFrames(ctx context.Context, ref string, w, h, fps int, wait time.Duration, logger *slog.Logger) (*ffmpegFrames, error) {
	f := &ffmpegFrames{
		ref:         ref,
		w:           w,
		h:           h,
		fps:         fps,
		resyncAfter: fps / 2,
		wait:        wait,
		log:         logger,
		quit:        make(chan struct{}),
	}
	f.mu.Lock()
	f.startLocked(0)
	ch := f.frames
	f.mu.Unlock()

	select {
	case fr, ok := <-ch:
		if !ok {
			f.Close()
			return nil, fmt.Errorf("video %s: no frames decoded", ref)
		}
		f.mu.Lock()
		f.cur, f.curIdx = fr.img, fr.idx
		f.mu.Unlock()
		return f, nil
	case <-ctx.Done():
		f.Close()
		return nil, ctx.Err()
	}
}

func (f *ffmpegFrames) startLocked(fromIdx int) {
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan decodedFrame, 8)
	f.frames, f.cancel = ch, cancel
	f.peek = nil
	f.eof = false
	f.wg.Add(1)
	go f.decode(ctx, fromIdx, ch)
}

func (f *ffmpegFrames) decode(ctx context.Context, fromIdx int, ch chan<- decodedFrame) {
	defer f.wg.Done()
	defer close(ch)

	pr, pw := io.Pipe()
	cmd := &ffmpeg.Cmd{
		Inputs: []*ffmpeg.Input{{
			File:    f.ref,
			Options: map[string]string{"ss": strconv.FormatFloat(float64(fromIdx)/float64(f.fps), 'f', 3, 64)},
		}},
		Outputs: []*ffmpeg.Output{{
			File:   pw,
			Format: "rawvideo",
			Options: map[string]string{
				"vf":      fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", f.w, f.h, f.w, f.h),
				"r":       strconv.Itoa(f.fps),
				"pix_fmt": "rgba",
			},
			Flags: []string{"-an", "-sn"},
		}},
	}
	if err := cmd.Start(ctx); err != nil {
		f.log.Warn("video decoder start failed", "ref", f.ref, "err", err)
		return
	}
	waitDone := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		if err == nil {
			err = io.EOF
		}
		pw.CloseWithError(err)
		waitDone <- err
	}()

	for idx := fromIdx; ; idx++ {
		img := image.NewRGBA(image.Rect(0, 0, f.w, f.h))
		if _, err := io.ReadFull(pr, img.Pix); err != nil {
			break
		}
		select {
		case ch <- decodedFrame{idx: idx, img: img}:
			continue
		case <-ctx.Done():
		}
		break
	}
	pr.CloseWithError(errFramesStopped)
	if err := <-waitDone; err != io.EOF && ctx.Err() == nil {
		f.log.Debug("video decoder exited", "ref", f.ref, "err", err)
	}
}

func (f *ffmpegFrames) Frame(t float64) (image.Image, bool) {
	target := int(math.Floor(t*float64(f.fps) + 1e-6))

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false
	}
	if f.wait > 0 {
		return f.awaitLocked(target)
	}

drain:
	for {
		if f.peek == nil {
			select {
			case fr, ok := <-f.frames:
				if !ok {
					f.frames = nil
					f.eof = true
					break drain
				}
				f.peek = &fr
				f.seeking = false
			default:
				break drain
			}
		}
		if f.peek.idx > target {
			break
		}
		f.cur, f.curIdx = f.peek.img, f.peek.idx
		f.peek = nil
	}

	if !f.seeking {
		behind := target < f.curIdx
		lagging := !f.eof && f.peek == nil && target-f.curIdx > f.resyncAfter
		if behind || lagging {
			f.log.Debug("video resync", "ref", f.ref, "from", f.curIdx, "to", target)
			f.seeking = true
			f.startLocked(target)
		}
	}

	if f.cur == nil {
		return nil, false
	}
	return f.cur, true
}

// awaitLocked advances the decoder to target, blocking up to f.wait. It
// seeks only backwards, so a forward run always decodes every frame in
// order. On timeout it keeps the last frame it has.
func (f *ffmpegFrames) awaitLocked(target int) (image.Image, bool) {
	if target < f.curIdx {
		f.log.Debug("video rewind", "ref", f.ref, "from", f.curIdx, "to", target)
		f.startLocked(target)
		f.curIdx = target - 1
	}

	timer := time.NewTimer(f.wait)
	defer timer.Stop()
	for !f.eof && (f.curIdx < target || f.peek != nil && f.peek.idx <= target) {
		if f.peek == nil {
			select {
			case fr, ok := <-f.frames:
				if !ok {
					f.frames = nil
					f.eof = true
					continue
				}
				f.peek = &fr
			case <-timer.C:
				f.log.Warn("video frame wait timed out", "ref", f.ref, "frame", target, "have", f.curIdx)
				return f.cur, f.cur != nil
			case <-f.quit:
				return nil, false
			}
		}
		if f.peek.idx > target {
			break
		}
		f.cur, f.curIdx = f.peek.img, f.peek.idx
		f.peek = nil
	}
	return f.cur, f.cur != nil
}

func (f *ffmpegFrames) Close() error {
	f.quitOnce.Do(func() { close(f.quit) })
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}
