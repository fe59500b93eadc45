package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/satindergrewal/lyricast/internal/assets"
	"github.com/satindergrewal/lyricast/internal/audio"
	"github.com/satindergrewal/lyricast/internal/compositor"
	"github.com/satindergrewal/lyricast/internal/encode"
	"github.com/satindergrewal/lyricast/internal/project"
	"github.com/satindergrewal/lyricast/internal/timeline"
)

// Session is one export in flight.
type Session struct {
	ID string

	project *project.Project
	codec   encode.Codec
	ctrl    *Controller
	opts    Options
	log     *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	abortCh   chan struct{}
	abortOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	progress Progress
	outcome  Outcome
}

func newSession(parent context.Context, id string, p *project.Project, codec encode.Codec, c *Controller) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:      id,
		project: p,
		codec:   codec,
		ctrl:    c,
		opts:    c.opts,
		log:     c.log.With("session", id),
		ctx:     ctx,
		cancel:  cancel,
		abortCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.progress = Progress{
		SessionID: id,
		State:     Preloading,
		Tracks:    len(p.Tracks),
		Title:     p.Tracks[0].Title,
		Codec:     codec.Name,
		Fallback:  codec.Name != p.Render.Codec,
	}
	return s
}

// Abort requests the session to stop. Safe to call any number of times.
func (s *Session) Abort() {
	s.abortOnce.Do(func() {
		close(s.abortCh)
		s.cancel()
	})
}

func (s *Session) aborted() bool {
	select {
	case <-s.abortCh:
		return true
	default:
		return false
	}
}

// Done is closed once the session has released everything.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends and returns its outcome.
func (s *Session) Wait() Outcome {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Progress returns the current snapshot.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Session) update(fn func(p *Progress)) {
	s.mu.Lock()
	fn(&s.progress)
	p := s.progress
	s.mu.Unlock()
	if s.opts.OnProgress != nil {
		s.opts.OnProgress(p)
	}
}

func (s *Session) setState(st State) {
	s.update(func(p *Progress) { p.State = st })
	s.log.Debug("session state", "state", st)
}

// playback is the per-session machinery torn down on exit.
type playback struct {
	cache   *assets.Cache
	bus     *audio.Bus
	comp    *compositor.Compositor
	enc     encode.Encoder
	loader  assets.Loader
	preload *assets.Preloader

	started bool
	paused  bool
	frames  int64 // frames written across the whole queue
}

func (s *Session) run() {
	started := time.Now()
	cfg := s.project.Render
	w, h := cfg.Size()

	pb := &playback{
		cache: assets.NewCache(),
		bus:   audio.NewBus(s.log),
	}
	pb.loader = s.opts.NewLoader(w, h, cfg.FrameRate)
	pb.preload = assets.NewPreloader(pb.loader, s.opts.AssetTimeout, s.log)
	pb.enc = s.opts.NewEncoder(encode.Settings{
		Codec:   s.codec,
		Width:   w,
		Height:  h,
		FPS:     cfg.FrameRate,
		Bitrate: encode.Bitrate(cfg.Resolution, cfg.FrameRate, cfg.Quality),
		Name:    encode.FileName(s.project.ArtifactTitle(), cfg.AspectRatio, w, h, s.codec.Ext),
	})
	if s.opts.OnBus != nil {
		s.opts.OnBus(pb.bus)
	}

	s.log.Info("export started", "tracks", len(s.project.Tracks), "codec", s.codec.Name,
		"size", fmt.Sprintf("%dx%d", w, h), "fps", cfg.FrameRate)

	o := s.execute(pb)
	o.ID = s.ID
	o.Title = s.project.ArtifactTitle()
	o.Codec = s.codec.Name
	o.Fallback = s.codec.Name != cfg.Codec
	o.Tracks = len(s.project.Tracks)
	o.Started = started

	if pb.comp != nil {
		pb.comp.Close()
	}
	pb.bus.Close()
	pb.cache.Close()
	if c, ok := pb.loader.(io.Closer); ok {
		c.Close()
	}
	s.cancel()
	o.Ended = time.Now()

	s.mu.Lock()
	s.outcome = o
	s.mu.Unlock()
	s.setState(Idle)
	s.ctrl.finish(s, o)
	close(s.done)
}

// execute runs the state machine and returns the outcome. The encoder is
// either finished or aborted on return.
func (s *Session) execute(pb *playback) Outcome {
	tracks := s.project.Tracks

	if err := pb.preload.Preload(s.ctx, pb.cache, tracks[0].Slides, tracks[0].Cover); err != nil {
		return s.abortWith(pb, err)
	}
	comp, err := compositor.New(s.project.Render, pb.cache, s.log)
	if err != nil {
		return s.failWith(pb, err)
	}
	pb.comp = comp

	var cumulative float64
	for i, tr := range tracks {
		if s.aborted() {
			return s.abortWith(pb, ErrAborted)
		}
		s.update(func(p *Progress) {
			p.Track = i
			p.Title = tr.Title
			p.Percent = 0
		})

		if i > 0 {
			if err := pb.preload.Preload(s.ctx, pb.cache, tr.Slides, tr.Cover); err != nil {
				return s.abortWith(pb, err)
			}
		}

		dur, err := s.loadTrack(pb, i, tr)
		if err != nil {
			if s.aborted() {
				return s.abortWith(pb, ErrAborted)
			}
			return s.trackFailed(pb, &TrackError{Index: i, Title: tr.Title, Err: err})
		}

		cumulative += dur
		end := int64(math.Round(cumulative * float64(s.project.Render.FrameRate)))
		if err := s.play(pb, end-pb.frames); err != nil {
			if errors.Is(err, ErrAborted) {
				return s.abortWith(pb, ErrAborted)
			}
			return s.trackFailed(pb, &TrackError{Index: i, Title: tr.Title, Err: err})
		}

		if i < len(tracks)-1 && pb.enc.CanPause() {
			pb.enc.Pause()
			pb.paused = true
		}
	}

	s.setState(Finalizing)
	if s.opts.TrailingDelay > 0 {
		select {
		case <-s.abortCh:
			return s.abortWith(pb, ErrAborted)
		case <-s.opts.Clock.After(s.opts.TrailingDelay):
		}
	}
	a, err := pb.enc.Finish(s.ctx)
	if err != nil {
		if s.aborted() {
			return s.abortWith(pb, ErrAborted)
		}
		return Outcome{Status: Failed, Err: fmt.Errorf("finalize: %w", err)}
	}
	return Outcome{Status: Succeeded, Artifact: a}
}

// loadTrack waits for the primary audio, attaches the slide channels and
// switches the compositor to tr. It returns the track duration.
func (s *Session) loadTrack(pb *playback, i int, tr project.Track) (float64, error) {
	h, res, err := assets.Await(s.ctx, s.opts.TrackTimeout, func(ctx context.Context) (*assets.AudioHandle, error) {
		return pb.loader.LoadAudio(ctx, tr.Audio)
	}, nil)
	if res != assets.Ready {
		if err == nil {
			err = fmt.Errorf("load audio: %s", res)
		}
		return 0, err
	}

	dur := tr.Duration
	if dur <= 0 {
		dur = h.Clip.Duration()
	}
	if dur <= 0 {
		return 0, fmt.Errorf("track audio %q is empty", tr.Audio)
	}

	pb.bus.Load(audio.TrackInfo{Index: i, Title: tr.Title, Artist: tr.Artist}, h.Clip)
	for _, sl := range tr.Slides {
		if !sl.Kind.Audible() {
			continue
		}
		handle, ok := pb.cache.Get(sl.ID)
		if !ok {
			continue
		}
		switch hh := handle.(type) {
		case *assets.VideoHandle:
			pb.bus.Attach(sl, hh.Audio)
		case *assets.AudioHandle:
			pb.bus.Attach(sl, hh.Clip)
		}
	}
	pb.comp.SetTrack(tr)

	s.log.Info("track loaded", "track", i+1, "title", tr.Title, "duration", dur,
		"slides", len(tr.Slides), "bus_channels", pb.bus.Channels(), "skipped", skipped(pb.cache, tr.Slides))
	return dur, nil
}

func skipped(cache *assets.Cache, slides []timeline.Slide) int {
	n := 0
	for _, sl := range slides {
		if _, ok := cache.Get(sl.ID); !ok {
			n++
		}
	}
	return n
}

// play runs the scheduling loop for one track: frames ticks, each painting
// the frame at tick×interval and mixing the audio that covers it.
func (s *Session) play(pb *playback, frames int64) error {
	fps := float64(s.project.Render.FrameRate)

	first := pb.comp.Render(0)
	if !pb.started {
		if err := pb.enc.Start(s.ctx); err != nil {
			return fmt.Errorf("start encoder: %w", err)
		}
		pb.started = true
		s.setState(Playing)
	} else if pb.paused {
		pb.enc.Resume()
		pb.paused = false
	}

	tick, stop := s.opts.Clock.Ticker(time.Duration(float64(time.Second) / fps))
	defer stop()

	lastPct := -1
	for n := int64(0); n < frames; n++ {
		if s.aborted() {
			return ErrAborted
		}
		select {
		case <-s.abortCh:
			return ErrAborted
		case <-tick:
		}

		t := float64(n) / fps
		frame := first
		if n > 0 {
			frame = pb.comp.Render(t)
		}
		if err := pb.enc.WriteVideo(frame); err != nil {
			return err
		}
		from, to := audio.SampleIndex(t), audio.SampleIndex(float64(n+1)/fps)
		if err := pb.enc.WriteAudio(pb.bus.Mix(from, to)); err != nil {
			return err
		}
		pb.frames++

		pct := 100 * float64(n+1) / float64(frames)
		if int(pct) != lastPct {
			lastPct = int(pct)
			s.update(func(p *Progress) { p.Percent = pct })
		}
	}
	return nil
}

// abortWith ends the session as aborted by the user. A cause that is not a
// cancellation is a plain failure and never passes through Aborted.
func (s *Session) abortWith(pb *playback, cause error) Outcome {
	if cause != nil && !s.aborted() && !errors.Is(cause, ErrAborted) && !errors.Is(cause, context.Canceled) {
		return s.failWith(pb, cause)
	}
	s.setState(Aborted)
	pb.enc.Abort()
	return Outcome{Status: AbortedByUser, Err: ErrAborted}
}

func (s *Session) failWith(pb *playback, err error) Outcome {
	pb.enc.Abort()
	return Outcome{Status: Failed, Err: err}
}

// trackFailed stops the queue. With FinalizeOnTrackError the frames encoded
// so far are kept.
func (s *Session) trackFailed(pb *playback, terr *TrackError) Outcome {
	s.log.Error("track failed", "track", terr.Index+1, "title", terr.Title, "err", terr.Err)
	if !s.opts.FinalizeOnTrackError || pb.frames == 0 {
		pb.enc.Abort()
		return Outcome{Status: Failed, Err: terr}
	}
	s.setState(Finalizing)
	if pb.paused {
		pb.enc.Resume()
	}
	a, err := pb.enc.Finish(s.ctx)
	if err != nil {
		return Outcome{Status: Failed, Err: errors.Join(terr, fmt.Errorf("finalize: %w", err))}
	}
	return Outcome{Status: Failed, Err: terr, Artifact: a}
}
