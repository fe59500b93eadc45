package encode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/ffmpeg"
)

// ErrNotStarted is returned when frames are written before Start.
var ErrNotStarted = errors.New("encoder not started")

// Encoder consumes composited frames and mixed audio. Frames arrive in
// increasing time; each WriteVideo is one frame interval and is followed by
// the audio samples covering it. Not safe for concurrent use.
type Encoder interface {
	Start(ctx context.Context) error
	WriteVideo(frame *image.RGBA) error
	WriteAudio(samples []int16) error
	CanPause() bool
	Pause()
	Resume()
	// Finish flushes the encoder and returns the artifact.
	Finish(ctx context.Context) (*Artifact, error)
	// Abort stops the encoder and discards its output. Idempotent.
	Abort()
}

// Settings describe one encode.
type Settings struct {
	Codec   Codec
	Width   int
	Height  int
	FPS     int
	Bitrate int // video bits per second
	Name    string
}

// FFmpegEncoder feeds raw RGBA frames and s16le PCM to ffmpeg over two
// extra pipes and collects the muxed output in an Accumulator.
type FFmpegEncoder struct {
	settings Settings
	log      *slog.Logger

	cmd    *ffmpeg.Cmd
	cancel context.CancelFunc
	video  *feeder
	audio  *feeder
	done   chan error
	acc    Accumulator

	mu       sync.Mutex
	progress ffmpeg.Progress

	frames  int64
	paused  bool
	stopped bool
}

// NewFFmpegEncoder creates an encoder; call Start before writing.
func NewFFmpegEncoder(s Settings, logger *slog.Logger) *FFmpegEncoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FFmpegEncoder{settings: s, log: logger}
}

func (e *FFmpegEncoder) command(video, pcm *os.File) *ffmpeg.Cmd {
	s := e.settings
	out := map[string]string{
		"c:v":     s.Codec.VideoEncoder,
		"b:v":     strconv.Itoa(s.Bitrate),
		"pix_fmt": "yuv420p",
		"g":       strconv.Itoa(s.FPS * 2),
		"c:a":     s.Codec.AudioEncoder,
		"b:a":     strconv.Itoa(AudioBitrate),
	}
	for k, v := range s.Codec.VideoOptions {
		out[k] = v
	}
	for k, v := range s.Codec.MuxOptions {
		out[k] = v
	}
	return &ffmpeg.Cmd{
		Inputs: []*ffmpeg.Input{
			{
				File:   video,
				Format: "rawvideo",
				Options: map[string]string{
					"pix_fmt":    "rgba",
					"video_size": fmt.Sprintf("%dx%d", s.Width, s.Height),
					"framerate":  strconv.Itoa(s.FPS),
				},
			},
			{
				File:   pcm,
				Format: "s16le",
				Options: map[string]string{
					"ar": strconv.Itoa(audio.SampleRate),
					"ac": strconv.Itoa(audio.Channels),
				},
			},
		},
		Outputs: []*ffmpeg.Output{{
			File:    &e.acc,
			Format:  s.Codec.Muxer,
			Options: out,
			Flags:   []string{"-map", "0:v:0", "-map", "1:a:0"},
		}},
		ProgressFn: e.onProgress,
		Logger:     e.log,
	}
}

func (e *FFmpegEncoder) onProgress(p ffmpeg.Progress) {
	e.mu.Lock()
	e.progress = p
	e.mu.Unlock()
}

// Start launches ffmpeg. Cancelling ctx kills it.
func (e *FFmpegEncoder) Start(ctx context.Context) error {
	if e.cmd != nil {
		return errors.New("encoder already started")
	}
	vr, vw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("video pipe: %w", err)
	}
	ar, aw, err := os.Pipe()
	if err != nil {
		vr.Close()
		vw.Close()
		return fmt.Errorf("audio pipe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := e.command(vr, ar)
	err = cmd.Start(ctx)
	// The child holds its own copies of the read ends.
	vr.Close()
	ar.Close()
	if err != nil {
		cancel()
		vw.Close()
		aw.Close()
		return fmt.Errorf("start encoder: %w", err)
	}

	e.cmd = cmd
	e.cancel = cancel
	e.video = newFeeder(vw, videoQueue)
	e.audio = newFeeder(aw, max(e.settings.FPS, 1))
	e.done = make(chan error, 1)
	go func() { e.done <- cmd.Wait() }()

	e.log.Info("encoder started",
		"codec", e.settings.Codec.Name,
		"size", fmt.Sprintf("%dx%d", e.settings.Width, e.settings.Height),
		"fps", e.settings.FPS,
		"bitrate", e.settings.Bitrate)
	return nil
}

// WriteVideo queues one frame. Frames written while paused are dropped.
func (e *FFmpegEncoder) WriteVideo(frame *image.RGBA) error {
	if e.video == nil {
		return ErrNotStarted
	}
	if e.paused || e.stopped {
		return nil
	}
	if err := e.video.send(packRGBA(frame, e.settings.Width, e.settings.Height)); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	e.frames++
	return nil
}

// WriteAudio queues interleaved stereo samples. Samples written while paused
// are dropped.
func (e *FFmpegEncoder) WriteAudio(samples []int16) error {
	if e.audio == nil {
		return ErrNotStarted
	}
	if e.paused || e.stopped || len(samples) == 0 {
		return nil
	}
	if err := e.audio.send(audio.SamplesToBytes(samples)); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// CanPause reports true: the raw inputs carry no wall-clock timestamps, so
// a gap in writes leaves no gap in the output.
func (e *FFmpegEncoder) CanPause() bool { return true }
func (e *FFmpegEncoder) Pause()         { e.paused = true }
func (e *FFmpegEncoder) Resume()        { e.paused = false }

// Duration returns the seconds of video written so far.
func (e *FFmpegEncoder) Duration() float64 {
	return float64(e.frames) / float64(max(e.settings.FPS, 1))
}

// Progress returns the latest progress block reported by ffmpeg.
func (e *FFmpegEncoder) Progress() ffmpeg.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Finish closes the inputs, waits for ffmpeg to flush and returns the
// concatenated output.
func (e *FFmpegEncoder) Finish(ctx context.Context) (*Artifact, error) {
	if e.cmd == nil {
		return nil, ErrNotStarted
	}
	if e.stopped {
		return nil, errors.New("encoder already stopped")
	}
	e.stopped = true
	e.video.close()
	e.audio.close()

	select {
	case err := <-e.done:
		e.cancel()
		if err != nil {
			e.acc.Reset()
			return nil, fmt.Errorf("encoder: %w", err)
		}
	case <-ctx.Done():
		e.cancel()
		<-e.done
		e.acc.Reset()
		return nil, ctx.Err()
	}
	if verr := e.video.Err(); verr != nil {
		e.acc.Reset()
		return nil, fmt.Errorf("write video: %w", verr)
	}

	s := e.settings
	a := &Artifact{
		Name:     s.Name,
		MIME:     s.Codec.MIME,
		Codec:    s.Codec.Name,
		Width:    s.Width,
		Height:   s.Height,
		Duration: e.Duration(),
		Data:     e.acc.Bytes(),
	}
	e.log.Info("encoder finished", "codec", a.Codec, "bytes", a.Size(), "chunks", e.acc.Chunks(), "duration", a.Duration)
	e.acc.Reset()
	return a, nil
}

// Abort kills ffmpeg and discards any output.
func (e *FFmpegEncoder) Abort() {
	if e.cmd == nil || e.stopped {
		e.stopped = true
		return
	}
	e.stopped = true
	e.cancel()
	e.video.close()
	e.audio.close()
	<-e.done
	e.acc.Reset()
	e.log.Info("encoder aborted", "codec", e.settings.Codec.Name)
}

// packRGBA returns the frame's pixels as tightly packed w×h RGBA.
func packRGBA(img *image.RGBA, w, h int) []byte {
	if img.Stride == w*4 && len(img.Pix) == w*h*4 {
		return img.Pix
	}
	out := make([]byte, w*h*4)
	b := img.Bounds()
	rows := min(h, b.Dy())
	cols := min(w, b.Dx()) * 4
	for y := 0; y < rows; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out[y*w*4:y*w*4+cols], img.Pix[off:off+cols])
	}
	return out
}

// videoQueue is how many packed frames may wait for ffmpeg. Each one is a
// full RGBA canvas, so the bound stays small.
const videoQueue = 3

// feeder writes queued buffers to w from its own goroutine so a slow
// ffmpeg input does not stall the caller until the queue fills.
type feeder struct {
	w    io.WriteCloser
	ch   chan []byte
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func newFeeder(w io.WriteCloser, queue int) *feeder {
	f := &feeder{w: w, ch: make(chan []byte, queue), done: make(chan struct{})}
	go f.run()
	return f
}

func (f *feeder) run() {
	defer close(f.done)
	for b := range f.ch {
		if f.Err() != nil {
			continue
		}
		if _, err := f.w.Write(b); err != nil {
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
		}
	}
	f.w.Close()
}

func (f *feeder) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *feeder) send(b []byte) error {
	if err := f.Err(); err != nil {
		return err
	}
	f.ch <- b
	return nil
}

func (f *feeder) close() {
	f.once.Do(func() { close(f.ch) })
	<-f.done
}
